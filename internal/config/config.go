// Package config loads engine settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every tunable of the deduction engine.
type Config struct {
	// SolverTimeout bounds one global consistency solve.
	SolverTimeout time.Duration `env:"SAPPER_SOLVER_TIMEOUT" envDefault:"5s"`
	// SolverParallelism caps solver workers; 0 means one per CPU.
	SolverParallelism int `env:"SAPPER_SOLVER_PARALLELISM" envDefault:"0"`
	// SuggestMaxUncertainty bounds which slots the suggester simulates.
	SuggestMaxUncertainty int `env:"SAPPER_SUGGEST_MAX_UNCERTAINTY" envDefault:"3"`
	// SuggestParallelism caps concurrent candidate simulations; 0 means
	// one per CPU, 1 forces the sequential path.
	SuggestParallelism int `env:"SAPPER_SUGGEST_PARALLELISM" envDefault:"0"`
	// SubsetSizeCap bounds the hidden-subset filter's combinations.
	SubsetSizeCap int `env:"SAPPER_SUBSET_SIZE_CAP" envDefault:"4"`
	// Informal skips truthful-possession checks when processing calls.
	Informal bool `env:"SAPPER_INFORMAL" envDefault:"false"`

	LogLevel  string `env:"SAPPER_LOG_LEVEL" envDefault:"info"`
	StorePath string `env:"SAPPER_STORE_PATH" envDefault:"sapper.db"`
}

// Load reads a .env file when present, then parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SolverTimeout <= 0 {
		return fmt.Errorf("solver timeout must be positive, got %s", c.SolverTimeout)
	}
	if c.SuggestMaxUncertainty < 1 {
		return fmt.Errorf("suggest max uncertainty must be at least 1, got %d", c.SuggestMaxUncertainty)
	}
	if c.SubsetSizeCap < 2 {
		return fmt.Errorf("subset size cap must be at least 2, got %d", c.SubsetSizeCap)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("bad log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Logger builds the process logger at the configured level.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
