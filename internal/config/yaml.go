package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads a YAML document shaped like the two-level section -> name
// -> value map (the same shape RawMap has) and resolves it into a Config.
// This is a convenience on-ramp for local testing and the demo command; the
// canonical configuration source remains the header-file loader's RawMap.
func LoadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseYAML(data)
}

// ParseYAML resolves a Config directly from YAML document bytes.
func ParseYAML(data []byte) (*Config, error) {
	var raw RawMap
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return Resolve(raw)
}
