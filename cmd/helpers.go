package cmd

import (
	"github.com/spf13/pflag"

	"github.com/tanelvakker/qwtimers/internal/config"
	"github.com/tanelvakker/qwtimers/internal/errors"
	"github.com/tanelvakker/qwtimers/internal/logging"
)

// flagOverride applies a command-line value on top of the loaded config
// when the flag was set explicitly.
type flagOverride struct {
	name  string
	apply func(cfg *config.Config)
}

// loadConfig reads the --config file (or the defaults) and layers
// explicitly set flags over it.
func loadConfig(flags *pflag.FlagSet, overrides ...flagOverride) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, errors.ConfigError("failed to load configuration", err)
	}

	changed := false
	for _, o := range overrides {
		if flags.Changed(o.name) {
			o.apply(cfg)
			logging.Debug("flag overrides config", "flag", o.name)
			changed = true
		}
	}

	if changed {
		if err := cfg.Validate(); err != nil {
			return nil, errors.ConfigError("invalid configuration", err)
		}
	}
	return cfg, nil
}
