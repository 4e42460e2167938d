package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	CorsConfig
	UpstreamConfig
	AggregationConfig
	SignalsConfig
	GuardConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
	GetWebhookSecret() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Upstream
	Aggregation
	Signals
	Guard
}

// New loads the configuration from the environment. When FILTERS_FILE is set
// its keyword blocklists and thresholds override the defaults.
func New() (Config, error) {
	var c mainConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config New] parse environment: %w", err)
	}
	if c.Aggregation.FiltersFile != "" {
		filters, err := ReadFiltersFile(c.Aggregation.FiltersFile)
		if err != nil {
			return nil, fmt.Errorf("[config New] %w", err)
		}
		c.Aggregation.applyFilters(filters)
	}
	if c.Aggregation.RefreshPeriod <= 0 {
		c.Aggregation.RefreshPeriod = 72 * time.Hour
	}
	return c, nil
}
