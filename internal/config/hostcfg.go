package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Integration is one entry in the host application's integration registry:
// a command line the host launches, plus the environment it runs with.
type Integration struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// HostConfig models the host application's configuration file. Only the
// integration registry is typed; everything else in the file is preserved
// verbatim through a read-modify-write cycle.
type HostConfig struct {
	Integrations map[string]Integration

	extra map[string]json.RawMessage
}

const integrationsKey = "mcpServers"

// LoadHostConfig reads the host configuration file. A missing file yields an
// empty config so setup can create it from scratch.
func LoadHostConfig(path string) (*HostConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &HostConfig{Integrations: map[string]Integration{}}, nil
		}

		return nil, fmt.Errorf("reading host config: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing host config %s: %w", path, err)
	}

	hc := &HostConfig{Integrations: map[string]Integration{}, extra: raw}

	if reg, ok := raw[integrationsKey]; ok {
		if err := json.Unmarshal(reg, &hc.Integrations); err != nil {
			return nil, fmt.Errorf("parsing host config %s: %w", path, err)
		}

		delete(hc.extra, integrationsKey)
	}

	return hc, nil
}

// Set adds or replaces a named integration.
func (hc *HostConfig) Set(name string, integ Integration) {
	if hc.Integrations == nil {
		hc.Integrations = map[string]Integration{}
	}

	hc.Integrations[name] = integ
}

// SaveHostConfig writes the host configuration file, keeping every top-level
// key the host wrote that gtm-go does not understand.
func SaveHostConfig(path string, hc *HostConfig) error {
	out := map[string]any{}
	for k, v := range hc.extra {
		out[k] = v
	}

	out[integrationsKey] = hc.Integrations

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding host config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating host config directory: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing host config: %w", err)
	}

	return nil
}
