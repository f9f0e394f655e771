package spanz

import (
	"fmt"
	"runtime"

	"github.com/kelseyhightower/envconfig"
)

// Config holds Subscriber configuration.
// Fields are read from SPANZ_* environment variables by LoadConfig.
type Config struct {
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
	InitialCapacity int    `envconfig:"INITIAL_CAPACITY" default:"32"`
	Workers         int    `envconfig:"WORKERS" default:"0"`
	QueueSize       int    `envconfig:"QUEUE_SIZE" default:"1024"`
	IDPoolSize      int    `envconfig:"ID_POOL_SIZE" default:"0"`
	Debug           bool   `envconfig:"DEBUG" default:"false"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("spanz", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the configuration used when the environment is empty.
func DefaultConfig() Config {
	return Config{
		LogLevel:        "info",
		InitialCapacity: 32,
		QueueSize:       1024,
	}
}

func (c Config) idPoolSize() int {
	if c.IDPoolSize > 0 {
		return c.IDPoolSize
	}
	// Pool size based on number of CPUs for optimal contention balance.
	return runtime.NumCPU() * 100
}

// NewFromConfig creates a Subscriber from cfg.
// A positive Workers value enables the async worker pool.
func NewFromConfig(cfg Config, opts ...Option) (*Subscriber, error) {
	logger, err := NewLogger(LogConfig{Level: cfg.LogLevel, Development: cfg.Debug})
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithLogger(logger),
		WithCapacity(cfg.InitialCapacity),
		WithIDPoolSize(cfg.idPoolSize()),
	}
	sub := New(append(base, opts...)...)

	if cfg.Workers > 0 {
		if err := sub.EnableWorkerPool(cfg.Workers, cfg.QueueSize); err != nil {
			sub.Close()
			return nil, fmt.Errorf("failed to enable worker pool: %w", err)
		}
	}
	return sub, nil
}
