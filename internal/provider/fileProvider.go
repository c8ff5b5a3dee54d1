package provider

import (
	"bytes"
	"fmt"
	"os"
)

type FileProvider struct {
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

func (fp *FileProvider) Open() error {
	if fp.Path == "" {
		return fmt.Errorf("no path set")
	}
	if _, err := os.Stat(fp.Path); err != nil {
		return err
	}
	return nil
}

// Read returns the file content without the trailing newline editors add.
func (fp *FileProvider) Read() ([]byte, error) {
	data, err := os.ReadFile(fp.Path)
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(data, "\r\n"), nil
}

func (fp *FileProvider) Close() error {
	// nothing to do
	return nil
}
