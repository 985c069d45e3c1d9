// Package config loads the tool configuration file. Settings layer as
// defaults < config file < environment < flags; the environment and flag
// layers are bound by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/macropower/checkit/pkg/schema"
)

// Config is the tool configuration.
type Config struct {
	// Cache toggles the persistent fact cache.
	Cache *CacheConfig `json:"cache,omitempty" jsonschema:"title=Cache"`
	// Timeout bounds each eval-command fact, as a Go duration string.
	Timeout string `json:"timeout,omitempty" jsonschema:"title=Timeout,example=30s"`
	// Checklists lists additional rule documents or directories.
	Checklists []string `json:"checklists,omitempty" jsonschema:"title=Checklists"`
	// Remotes lists pinned remote rule documents, as <url>::<sha256>.
	Remotes []string `json:"remotes,omitempty" jsonschema:"title=Remote Documents"`
	// Jobs bounds check and fact concurrency. Zero means NumCPU.
	Jobs int `json:"jobs,omitempty" jsonschema:"title=Jobs,minimum=0"`
	// FailFast stops scheduling new checks after the first failure.
	FailFast bool `json:"failFast,omitempty" jsonschema:"title=Fail Fast"`
}

// CacheConfig toggles the persistent fact cache.
type CacheConfig struct {
	// Read toggles consulting cached fact values. Defaults to true.
	Read *bool `json:"read,omitempty" jsonschema:"title=Read"`
	// Write toggles recording resolved fact values. Defaults to true.
	Write *bool `json:"write,omitempty" jsonschema:"title=Write"`
}

// New creates a [Config] with defaults applied.
func New() *Config {
	c := &Config{}
	c.EnsureDefaults()

	return c
}

// EnsureDefaults fills unset fields with their defaults.
func (c *Config) EnsureDefaults() {
	if c.Timeout == "" {
		c.Timeout = "30s"
	}

	if c.Cache == nil {
		c.Cache = &CacheConfig{}
	}
}

// GetTimeout parses the configured timeout.
func (c *Config) GetTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parse timeout: %w", err)
	}

	return d, nil
}

// CacheRead reports whether cached fact values may be consulted.
func (c *Config) CacheRead() bool {
	return c.Cache == nil || c.Cache.Read == nil || *c.Cache.Read
}

// CacheWrite reports whether resolved fact values may be recorded.
func (c *Config) CacheWrite() bool {
	return c.Cache == nil || c.Cache.Write == nil || *c.Cache.Write
}

// LoadBytes decodes and validates a configuration document.
func LoadBytes(data []byte) (*Config, error) {
	var doc any

	dec := yaml.NewDecoder(bytes.NewReader(data))

	err := dec.Decode(&doc)
	if errors.Is(err, io.EOF) || (err == nil && doc == nil) {
		// An empty or comment-only file means all defaults.
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	err = DefaultValidator.Validate(doc)
	if err != nil {
		var validationErr *schema.ValidationError
		if errors.As(err, &validationErr) && validationErr.Path != nil {
			if annotated, aerr := validationErr.Path.AnnotateSource(data, false); aerr == nil {
				return nil, fmt.Errorf("%s:\n%s", validationErr.Detail, string(annotated))
			}
		}

		return nil, fmt.Errorf("validate config: %w", err)
	}

	c := New()

	dec = yaml.NewDecoder(bytes.NewReader(data))

	err = dec.Decode(c)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	c.EnsureDefaults()

	return c, nil
}

// Load reads and decodes the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	c, err := LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return c, nil
}
