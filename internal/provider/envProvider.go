package provider

import (
	"fmt"
	"os"
)

// EnvProvider reads the secret from an environment variable.
type EnvProvider struct {
	Name string `json:"name" yaml:"name" mapstructure:"name"`
}

func (ep *EnvProvider) Open() error {
	if ep.Name == "" {
		return fmt.Errorf("no environment variable name set")
	}
	if _, ok := os.LookupEnv(ep.Name); !ok {
		return fmt.Errorf("environment variable %s not set", ep.Name)
	}
	return nil
}

func (ep *EnvProvider) Read() ([]byte, error) {
	value, ok := os.LookupEnv(ep.Name)
	if !ok {
		return nil, fmt.Errorf("environment variable %s not set", ep.Name)
	}
	return []byte(value), nil
}

func (ep *EnvProvider) Close() error {
	return nil
}
