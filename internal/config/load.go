package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Load reads a job configuration from a YAML or JSON file, applies defaults
// and validates it.
func Load(path string) (*JobConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read job file %s: %w", path, err)
	}

	var job JobConfig
	if err := v.Unmarshal(&job); err != nil {
		return nil, fmt.Errorf("failed to parse job file %s: %w", path, err)
	}

	job.ApplyDefaults()
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}
