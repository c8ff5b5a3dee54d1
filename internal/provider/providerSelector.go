package provider

import "fmt"

// A proxy of the available providers.
// The Provider-Interface functions call the funtions of the selected, thus configured, provider.
type ProviderSelector struct {
	File *FileProvider `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
	Env  *EnvProvider  `json:"env,omitempty" yaml:"env,omitempty" mapstructure:"env"`

	// gets set when Open() called and represents the configured provider
	selectedProvider Provider
}

// Checks which provider was actually configured and uses this for further function calls.
// The file provider wins when both are configured.
func (ps *ProviderSelector) Open() error {
	switch {
	case ps.File != nil:
		ps.selectedProvider = ps.File
	case ps.Env != nil:
		ps.selectedProvider = ps.Env
	}
	if ps.selectedProvider == nil {
		return fmt.Errorf("no known provider found in configuration")
	}
	return ps.selectedProvider.Open()
}

func (ps *ProviderSelector) Read() ([]byte, error) {
	if ps.selectedProvider == nil {
		return nil, fmt.Errorf("no provider selected. Call Open() to set the provider from the configuration")
	}
	return ps.selectedProvider.Read()
}

func (ps *ProviderSelector) Close() error {
	if ps.selectedProvider == nil {
		return fmt.Errorf("no provider selected. Call Open() to set the provider from the configuration")
	}
	return ps.selectedProvider.Close()
}

// Secret resolves a secret that is either given literally or through a
// provider. The provider takes precedence. An empty result without error
// means the secret is not configured.
func Secret(literal string, from *ProviderSelector) ([]byte, error) {
	if from == nil {
		return []byte(literal), nil
	}
	if err := from.Open(); err != nil {
		return nil, err
	}
	// use result vars instead of early return to close the providerSelector properly
	secret, readErr := from.Read()
	if err := from.Close(); err != nil && readErr == nil {
		readErr = err
	}
	if readErr != nil {
		return nil, readErr
	}
	return secret, nil
}
