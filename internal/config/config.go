// Package config loads project-level settings from csngraph.yml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds project-level settings loaded from csngraph.yml.
type Config struct {
	// SchemaSource is a CSN file path, directory, or http(s) URL.
	SchemaSource string `yaml:"schemaSource,omitempty"`
	// RegistryURL is the base URL of a CSN registry for product lookups.
	RegistryURL string `yaml:"registryURL,omitempty"`
	// DatabaseDSN is the Postgres connection string for data graph builds
	// and the persistent cache.
	DatabaseDSN string `yaml:"databaseDSN,omitempty"`
	// DatabaseSchema is the schema searched for entity tables.
	DatabaseSchema string `yaml:"databaseSchema,omitempty"`

	// Backend selects the query engine: "in-memory" or "property-graph".
	Backend string `yaml:"backend,omitempty"`
	// AllowBackendFallback falls back to the in-memory engine when the
	// property-graph backend is unavailable.
	AllowBackendFallback *bool `yaml:"allowBackendFallback,omitempty"`

	// Lenient makes the loader drop unresolved associations with a
	// warning instead of failing.
	Lenient bool `yaml:"lenient,omitempty"`
	// InferenceMode controls foreign key inference: "strict" or
	// "heuristic".
	InferenceMode string `yaml:"inferenceMode,omitempty"`
	// MaxRecordsPerEntity bounds the instance rows scanned per entity.
	MaxRecordsPerEntity int `yaml:"maxRecordsPerEntity,omitempty"`
	// KeepFloatingTables includes tables without a schema entity match.
	KeepFloatingTables *bool `yaml:"keepFloatingTables,omitempty"`

	// HTTPTimeoutSec bounds a single schema fetch.
	HTTPTimeoutSec int `yaml:"httpTimeoutSec,omitempty"`
	// SQLReadTimeoutSec bounds a single table scan.
	SQLReadTimeoutSec int `yaml:"sqlReadTimeoutSec,omitempty"`
	// PathQueryTimeoutSec bounds a path query and, with it, an end-to-end
	// graph build.
	PathQueryTimeoutSec int `yaml:"pathQueryTimeoutSec,omitempty"`

	// MCPAddr is the listen address for the MCP server.
	MCPAddr string `yaml:"mcpAddr,omitempty"`
	Verbose bool   `yaml:"verbose,omitempty"`
}

// Default returns the configuration used when no file overrides apply.
func Default() *Config {
	t := true
	return &Config{
		DatabaseSchema:       "public",
		Backend:              "in-memory",
		AllowBackendFallback: &t,
		InferenceMode:        "heuristic",
		MaxRecordsPerEntity:  20,
		KeepFloatingTables:   &t,
		HTTPTimeoutSec:       10,
		SQLReadTimeoutSec:    30,
		PathQueryTimeoutSec:  60,
		MCPAddr:              ":8391",
	}
}

// HTTPTimeout returns the schema fetch timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

// SQLReadTimeout returns the table scan timeout as a duration.
func (c *Config) SQLReadTimeout() time.Duration {
	return time.Duration(c.SQLReadTimeoutSec) * time.Second
}

// PathQueryTimeout returns the build and path query timeout as a duration.
func (c *Config) PathQueryTimeout() time.Duration {
	return time.Duration(c.PathQueryTimeoutSec) * time.Second
}

// Load attempts to read csngraph.yml or csngraph.yaml from the given
// directory. Returns the defaults (not an error) if no config file exists.
func Load(dir string) (*Config, error) {
	for _, name := range []string{"csngraph.yml", "csngraph.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		cfg := Default()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return cfg, nil
	}
	return Default(), nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case "", "in-memory", "property-graph":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.InferenceMode {
	case "", "strict", "heuristic":
	default:
		return fmt.Errorf("unknown inferenceMode %q", c.InferenceMode)
	}
	if c.MaxRecordsPerEntity < 0 {
		return fmt.Errorf("maxRecordsPerEntity must be >= 0")
	}
	if c.HTTPTimeoutSec < 0 || c.SQLReadTimeoutSec < 0 || c.PathQueryTimeoutSec < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	return nil
}

// FallbackAllowed reports whether backend fallback is enabled, defaulting
// to true when unset.
func (c *Config) FallbackAllowed() bool {
	return c.AllowBackendFallback == nil || *c.AllowBackendFallback
}

// FloatingKept reports whether unmatched tables are kept, defaulting to
// true when unset.
func (c *Config) FloatingKept() bool {
	return c.KeepFloatingTables == nil || *c.KeepFloatingTables
}
