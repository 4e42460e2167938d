package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Filters is the optional YAML file overriding the aggregation blocklists.
//
//	exclude:
//	  clothing: [shirt, jeans]
//	  winter: [snow]
//	min_orders: 2500
type Filters struct {
	Exclude   map[string][]string `yaml:"exclude"`
	MinOrders *int                `yaml:"min_orders"`
}

// Keywords flattens every blocklist group, ordered by group name.
func (f *Filters) Keywords() []string {
	groups := make([]string, 0, len(f.Exclude))
	for g := range f.Exclude {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	var keywords []string
	for _, g := range groups {
		keywords = append(keywords, f.Exclude[g]...)
	}
	return keywords
}

func ReadFiltersFile(path string) (*Filters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filters file: %w", err)
	}
	var f Filters
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse filters file %s: %w", path, err)
	}
	return &f, nil
}
