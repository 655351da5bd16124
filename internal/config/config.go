// Package config loads, defaults and validates the YAML configuration, and
// watches it for hot reloads of the risk section.
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}

	setKeys := make(keySet)
	flattenConfigKeys("", v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// flattenConfigKeys records every leaf path present in the file.
func flattenConfigKeys(prefix string, node any, dest keySet) {
	switch val := node.(type) {
	case map[string]any:
		for k, v := range val {
			next := strings.ToLower(strings.TrimSpace(k))
			if next == "" {
				continue
			}
			if prefix != "" {
				next = prefix + "." + next
			}
			flattenConfigKeys(next, v, dest)
		}
	case []any:
		if prefix != "" {
			dest.mark(prefix)
		}
		for _, item := range val {
			flattenConfigKeys(prefix, item, dest)
		}
	default:
		if prefix != "" {
			dest.mark(prefix)
		}
	}
}
