package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	SweepPath    string // hcl file or directory
	DatasetPath  string // yaml manifest for the input dataset
	DatasetKey   string // object store key for the input dataset
	PersistLeafs bool   // store leaf outputs in the object store

	LogFormat   string
	LogLevel    string
	WorkerCount int
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.SweepPath == "" {
		return nil, errors.New("SweepPath is a required configuration field and cannot be empty")
	}
	if cfg.DatasetPath != "" && cfg.DatasetKey != "" {
		return nil, errors.New("DatasetPath and DatasetKey are mutually exclusive")
	}
	return &cfg, nil
}
