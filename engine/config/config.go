// Package config loads and validates the migration configuration document.
// Validation failures are reported before any connection attempt.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/vecbridge/vecbridge/engine/migrate"
)

// Sentinel errors for configuration validation.
var (
	ErrMissingKey  = errors.New("missing required key")
	ErrUnknownType = errors.New("unknown backend type")
)

// Endpoint configures one side of a migration. Connection, Query and Load are
// forwarded verbatim to the adapter, which owns their interpretation.
type Endpoint struct {
	Type       string          `json:"type"`
	Connection json.RawMessage `json:"connection"`
	Query      json.RawMessage `json:"query,omitempty"`
	Load       json.RawMessage `json:"load,omitempty"`
}

// Params converts the endpoint into adapter call parameters.
func (e Endpoint) Params() migrate.EndpointParams {
	return migrate.EndpointParams{
		Connection: e.Connection,
		Query:      e.Query,
		Load:       e.Load,
	}
}

// Config is the migration configuration document.
type Config struct {
	Source Endpoint `json:"source"`
	Target Endpoint `json:"target"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the document against the registry before any I/O: both
// endpoints must be present, carry a type, and the type must be registered
// (case-insensitive).
func (c *Config) Validate(reg *migrate.Registry) error {
	for role, ep := range map[string]Endpoint{"source": c.Source, "target": c.Target} {
		if ep.Type == "" && ep.Connection == nil && ep.Query == nil && ep.Load == nil {
			return fmt.Errorf("%w: %s", ErrMissingKey, role)
		}
		if ep.Type == "" {
			return fmt.Errorf("%w: %s.type", ErrMissingKey, role)
		}
		if !reg.Has(ep.Type) {
			return fmt.Errorf("%w: %s %q", ErrUnknownType, role, ep.Type)
		}
	}
	return nil
}
