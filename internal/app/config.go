package app

import (
	"k8s.io/client-go/rest"

	"theiacloud/internal/config"
)

// Config holds the runtime settings of one operator process.
type Config struct {
	// ConfigPath points to the operator YAML file. Empty means defaults only.
	ConfigPath string

	// Overrides are applied on top of the loaded file, e.g. from command line flags.
	Overrides []func(*config.OperatorConfig)

	// RestConfig is used instead of the kubeconfig or in-cluster lookup when set.
	RestConfig *rest.Config

	// Operator is filled by NewApplication.
	Operator config.OperatorConfig
}

// NewConfig creates a Config reading configPath and applying overrides in order.
func NewConfig(configPath string, overrides ...func(*config.OperatorConfig)) *Config {
	return &Config{
		ConfigPath: configPath,
		Overrides:  overrides,
	}
}

// load reads the operator configuration and validates the result.
func (c *Config) load() error {
	operatorConfig, err := config.LoadConfig(c.ConfigPath)
	if err != nil {
		return err
	}
	for _, override := range c.Overrides {
		override(&operatorConfig)
	}
	if err := operatorConfig.Validate(); err != nil {
		return err
	}
	c.Operator = operatorConfig
	return nil
}
