// Package props reads tracker property files: flat YAML mappings of tracker
// options such as
//
//	error_severity: warnings
//	fire_and_forget: true
//	sitespeed_sample_rate: 10
package props

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load returns the properties in path. An empty file yields an empty map.
func Load(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open properties %s: %w", path, err)
	}
	defer f.Close()

	props := map[string]any{}
	if err := yaml.NewDecoder(f).Decode(&props); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode properties %s: %w", path, err)
	}
	return props, nil
}
