package config

import "time"

type AggregationConfig interface {
	GetRefreshPeriod() time.Duration
	GetPageDelay() time.Duration
	GetMinOrders() int
	GetPublicCap() int
	GetScoredCap() int
	GetScoringEnabled() bool
	GetExcludeKeywords() []string
}

var (
	defaultClothingKeywords = []string{
		"clothing", "clothes", "apparel", "shirt", "t-shirt", "tshirt", "pants", "jeans", "dress", "jacket", "coat",
		"sweater", "hoodie", "skirt", "blouse", "legging", "socks", "underwear", "bra", "scarf", "gloves",
	}
	defaultWinterKeywords = []string{
		"winter", "snow", "ski", "skate", "thermal", "heater", "heating", "christmas", "xmas", "santa", "beanie",
		"earmuff", "fleece", "boots", "ice",
	}
)

type Aggregation struct {
	RefreshPeriod  time.Duration `env:"WIN_REFRESH_PERIOD" envDefault:"72h"`
	PageDelay      time.Duration `env:"WIN_PAGE_DELAY" envDefault:"400ms"`
	MinOrders      int           `env:"WIN_MIN_ORDERS" envDefault:"3000"`
	PublicCap      int           `env:"WIN_PUBLIC_CAP" envDefault:"12"`
	ScoredCap      int           `env:"WIN_SCORED_CAP" envDefault:"20"`
	ScoringEnabled bool          `env:"SCORING_ENABLED" envDefault:"true"`
	FiltersFile    string        `env:"FILTERS_FILE"`

	excludeKeywords []string
}

var _ AggregationConfig = Aggregation{}

func (a Aggregation) GetRefreshPeriod() time.Duration {
	return a.RefreshPeriod
}

func (a Aggregation) GetPageDelay() time.Duration {
	return a.PageDelay
}

func (a Aggregation) GetMinOrders() int {
	return a.MinOrders
}

func (a Aggregation) GetPublicCap() int {
	return a.PublicCap
}

func (a Aggregation) GetScoredCap() int {
	return a.ScoredCap
}

func (a Aggregation) GetScoringEnabled() bool {
	return a.ScoringEnabled
}

// GetExcludeKeywords returns the category/title blocklist, clothing and winter
// items by default.
func (a Aggregation) GetExcludeKeywords() []string {
	if a.excludeKeywords != nil {
		return a.excludeKeywords
	}
	keywords := make([]string, 0, len(defaultClothingKeywords)+len(defaultWinterKeywords))
	keywords = append(keywords, defaultClothingKeywords...)
	return append(keywords, defaultWinterKeywords...)
}

func (a *Aggregation) applyFilters(f *Filters) {
	if len(f.Exclude) > 0 {
		a.excludeKeywords = f.Keywords()
	}
	if f.MinOrders != nil {
		a.MinOrders = *f.MinOrders
	}
}
