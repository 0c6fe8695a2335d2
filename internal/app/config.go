package app

import "errors"

// Config holds all the necessary configuration for a runner invocation.
type Config struct {
	GridPath string // hcl file

	LogFormat string
	LogLevel  string
	Workers   int // 0 keeps the grid file's worker count
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.GridPath == "" {
		return nil, errors.New("GridPath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
