package reliability

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ReliabilityConfig holds configuration for reliability testing.
// Values are read from SPANZ_RELIABILITY_* environment variables.
type ReliabilityConfig struct {
	Level         string        `envconfig:"LEVEL"`
	Duration      time.Duration `envconfig:"DURATION" default:"30s"`
	MaxGoroutines int           `envconfig:"MAX_GOROUTINES" default:"100"`
}

// getReliabilityConfig reads configuration from the environment.
// Malformed values fall back to defaults.
func getReliabilityConfig() ReliabilityConfig {
	var config ReliabilityConfig
	if err := envconfig.Process("spanz_reliability", &config); err != nil {
		return ReliabilityConfig{Duration: 30 * time.Second, MaxGoroutines: 100}
	}
	return config
}
