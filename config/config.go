// Package config provides configuration loading and management for the
// ingestion pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pipeline configuration.
type Config struct {
	Source        SourceConfig   `yaml:"source"`
	Schemas       SchemaConfig   `yaml:"schemas"`
	DocumentStore StoreConfig    `yaml:"document_store"`
	GraphSink     GraphConfig    `yaml:"graph_sink"`
	Pipeline      PipelineConfig `yaml:"pipeline"`
	NATS          NATSConfig     `yaml:"nats"`
	Metrics       MetricsConfig  `yaml:"metrics"`
}

// SourceConfig selects where raw documents come from.
type SourceConfig struct {
	// Kind is "file" or "object".
	Kind string `yaml:"kind"`
	// Root is the directory to read (file kind).
	Root string `yaml:"root"`
	// Patterns are doublestar globs relative to Root (file kind).
	Patterns []string `yaml:"patterns"`
	// Object store settings (object kind).
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// SchemaConfig selects the schema backend.
type SchemaConfig struct {
	// Backend is "builtin", "file", or "mongo".
	Backend string `yaml:"backend"`
	// Dir holds JSON schema files (file backend).
	Dir string `yaml:"dir"`
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	// Backend is "file" or "mongo".
	Backend string `yaml:"backend"`
	// Dir is the JSONL directory (file backend).
	Dir string `yaml:"dir"`
	// MongoURI and MongoDatabase configure the mongo backend; they also
	// serve the mongo schema backend.
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// GraphConfig selects the graph sink backend.
type GraphConfig struct {
	// Backend is "file" or "neo4j".
	Backend string `yaml:"backend"`
	// Dir is the JSONL/snapshot directory (file backend).
	Dir string `yaml:"dir"`
	// Neo4j connection settings.
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PipelineConfig tunes concurrency and timeouts.
type PipelineConfig struct {
	// Workers is the document worker pool size.
	Workers int `yaml:"workers"`
	// DocumentTimeout bounds one document end to end.
	DocumentTimeout time.Duration `yaml:"document_timeout"`
	// SettleWindow is the watch-mode debounce.
	SettleWindow time.Duration `yaml:"settle_window"`
}

// NATSConfig configures the optional event broker.
type NATSConfig struct {
	// URL is the NATS server URL (empty = eventing disabled).
	URL string `yaml:"url"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// DefaultConfig returns a Config with sensible defaults: local files
// for every backend, a small worker pool.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Kind:     "file",
			Root:     "data/incoming",
			Patterns: nil, // reader defaults
		},
		Schemas: SchemaConfig{
			Backend: "builtin",
		},
		DocumentStore: StoreConfig{
			Backend: "file",
			Dir:     "data/store",
		},
		GraphSink: GraphConfig{
			Backend:  "file",
			Dir:      "data/graph",
			Database: "neo4j",
		},
		Pipeline: PipelineConfig{
			Workers:         8,
			DocumentTimeout: 60 * time.Second,
			SettleWindow:    2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9090",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case "file":
		if c.Source.Root == "" {
			return fmt.Errorf("source.root is required for the file source")
		}
	case "object":
		if c.Source.Endpoint == "" || c.Source.Bucket == "" {
			return fmt.Errorf("source.endpoint and source.bucket are required for the object source")
		}
	default:
		return fmt.Errorf("source.kind must be \"file\" or \"object\", got %q", c.Source.Kind)
	}

	switch c.Schemas.Backend {
	case "builtin":
	case "file":
		if c.Schemas.Dir == "" {
			return fmt.Errorf("schemas.dir is required for the file schema backend")
		}
	case "mongo":
		if c.DocumentStore.MongoURI == "" || c.DocumentStore.MongoDatabase == "" {
			return fmt.Errorf("document_store.mongo_uri and mongo_database are required for the mongo schema backend")
		}
	default:
		return fmt.Errorf("schemas.backend must be \"builtin\", \"file\", or \"mongo\", got %q", c.Schemas.Backend)
	}

	switch c.DocumentStore.Backend {
	case "file":
		if c.DocumentStore.Dir == "" {
			return fmt.Errorf("document_store.dir is required for the file backend")
		}
	case "mongo":
		if c.DocumentStore.MongoURI == "" || c.DocumentStore.MongoDatabase == "" {
			return fmt.Errorf("document_store.mongo_uri and mongo_database are required for the mongo backend")
		}
	default:
		return fmt.Errorf("document_store.backend must be \"file\" or \"mongo\", got %q", c.DocumentStore.Backend)
	}

	switch c.GraphSink.Backend {
	case "file":
		if c.GraphSink.Dir == "" {
			return fmt.Errorf("graph_sink.dir is required for the file backend")
		}
	case "neo4j":
		if c.GraphSink.URI == "" {
			return fmt.Errorf("graph_sink.uri is required for the neo4j backend")
		}
	default:
		return fmt.Errorf("graph_sink.backend must be \"file\" or \"neo4j\", got %q", c.GraphSink.Backend)
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1")
	}
	if c.Pipeline.DocumentTimeout <= 0 {
		return fmt.Errorf("pipeline.document_timeout must be positive")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence
// for non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Source
	if other.Source.Kind != "" {
		c.Source.Kind = other.Source.Kind
	}
	if other.Source.Root != "" {
		c.Source.Root = other.Source.Root
	}
	if len(other.Source.Patterns) > 0 {
		c.Source.Patterns = other.Source.Patterns
	}
	if other.Source.Endpoint != "" {
		c.Source.Endpoint = other.Source.Endpoint
	}
	if other.Source.AccessKey != "" {
		c.Source.AccessKey = other.Source.AccessKey
	}
	if other.Source.SecretKey != "" {
		c.Source.SecretKey = other.Source.SecretKey
	}
	if other.Source.UseSSL {
		c.Source.UseSSL = true
	}
	if other.Source.Bucket != "" {
		c.Source.Bucket = other.Source.Bucket
	}
	if other.Source.Prefix != "" {
		c.Source.Prefix = other.Source.Prefix
	}

	// Schemas
	if other.Schemas.Backend != "" {
		c.Schemas.Backend = other.Schemas.Backend
	}
	if other.Schemas.Dir != "" {
		c.Schemas.Dir = other.Schemas.Dir
	}

	// Document store
	if other.DocumentStore.Backend != "" {
		c.DocumentStore.Backend = other.DocumentStore.Backend
	}
	if other.DocumentStore.Dir != "" {
		c.DocumentStore.Dir = other.DocumentStore.Dir
	}
	if other.DocumentStore.MongoURI != "" {
		c.DocumentStore.MongoURI = other.DocumentStore.MongoURI
	}
	if other.DocumentStore.MongoDatabase != "" {
		c.DocumentStore.MongoDatabase = other.DocumentStore.MongoDatabase
	}

	// Graph sink
	if other.GraphSink.Backend != "" {
		c.GraphSink.Backend = other.GraphSink.Backend
	}
	if other.GraphSink.Dir != "" {
		c.GraphSink.Dir = other.GraphSink.Dir
	}
	if other.GraphSink.URI != "" {
		c.GraphSink.URI = other.GraphSink.URI
	}
	if other.GraphSink.Username != "" {
		c.GraphSink.Username = other.GraphSink.Username
	}
	if other.GraphSink.Password != "" {
		c.GraphSink.Password = other.GraphSink.Password
	}
	if other.GraphSink.Database != "" {
		c.GraphSink.Database = other.GraphSink.Database
	}

	// Pipeline
	if other.Pipeline.Workers != 0 {
		c.Pipeline.Workers = other.Pipeline.Workers
	}
	if other.Pipeline.DocumentTimeout != 0 {
		c.Pipeline.DocumentTimeout = other.Pipeline.DocumentTimeout
	}
	if other.Pipeline.SettleWindow != 0 {
		c.Pipeline.SettleWindow = other.Pipeline.SettleWindow
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	// Metrics
	if other.Metrics.Enabled {
		c.Metrics.Enabled = true
	}
	if other.Metrics.Listen != "" {
		c.Metrics.Listen = other.Metrics.Listen
	}
}
