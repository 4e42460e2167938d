package catalog

import "strings"

// Filter drops products whose title or category contains a blocked keyword
// (case-insensitive) or whose popularity is below MinPopularity.
type Filter struct {
	Keywords      []string
	MinPopularity int
}

func NewFilter(keywords []string, minPopularity int) Filter {
	lower := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lower = append(lower, k)
		}
	}
	return Filter{Keywords: lower, MinPopularity: minPopularity}
}

// Excluded reports whether title or category matches a blocked keyword.
func (f Filter) Excluded(title, category string) bool {
	title = strings.ToLower(title)
	category = strings.ToLower(category)
	for _, k := range f.Keywords {
		if strings.Contains(title, k) || strings.Contains(category, k) {
			return true
		}
	}
	return false
}

func (f Filter) Keep(p RawProduct) bool {
	return !f.Excluded(p.Title(), p.CategoryName) && p.Popularity() >= f.MinPopularity
}

func (f Filter) Apply(items []RawProduct) []RawProduct {
	kept := make([]RawProduct, 0, len(items))
	for _, p := range items {
		if f.Keep(p) {
			kept = append(kept, p)
		}
	}
	return kept
}
