package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all OntoMed NLU configuration.
type Config struct {
	// Annotator configures the external linguistic annotation service.
	Annotator AnnotatorConfig `yaml:"annotator"`

	// Scoring configures evidence weights and calibration.
	Scoring ScoringConfig `yaml:"scoring"`

	// Ontology configures the ontology backend client.
	Ontology OntologyConfig `yaml:"ontology"`

	// Store configures vocabulary persistence.
	Store StoreConfig `yaml:"store"`

	// Templates configures the capability/template registry.
	Templates TemplatesConfig `yaml:"templates"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// AnnotatorConfig configures the annotation sidecar client.
type AnnotatorConfig struct {
	Endpoint string `yaml:"endpoint"`
	Timeout  string `yaml:"timeout"`
}

// OntologyConfig configures the ontology backend client and the concept
// snapshot lifetime.
type OntologyConfig struct {
	Endpoint string `yaml:"endpoint"`
	TTL      string `yaml:"ttl"`
}

// ScoringConfig configures evidence weights, softmax temperature and
// confidence thresholds for the intent resolver.
type ScoringConfig struct {
	EntityWeight     float64 `yaml:"entity_weight"`
	DependencyWeight float64 `yaml:"dependency_weight"`
	KeywordWeight    float64 `yaml:"keyword_weight"`
	Temperature      float64 `yaml:"temperature"`

	// MinimumConfidence is the floor below which the resolver falls back
	// to the generic intent.
	MinimumConfidence float64 `yaml:"minimum_confidence"`

	// FallbackConfidence is the fixed confidence assigned to the fallback
	// intent when nothing else resolves.
	FallbackConfidence float64 `yaml:"fallback_confidence"`

	// StaticOverrideThreshold short-circuits the dynamic pipeline when the
	// static matcher reaches it.
	StaticOverrideThreshold float64 `yaml:"static_override_threshold"`

	// AmbiguityEpsilon triggers a diagnostic when the top two calibrated
	// scores are within this distance.
	AmbiguityEpsilon float64 `yaml:"ambiguity_epsilon"`
}

// StoreConfig configures the SQLite vocabulary store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// TemplatesConfig configures the template registry directory and watcher.
type TemplatesConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// LoggingConfig configures log level and encoding.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Annotator: AnnotatorConfig{
			Endpoint: "http://localhost:9010",
			Timeout:  "10s",
		},
		Scoring: ScoringConfig{
			EntityWeight:            4.0,
			DependencyWeight:        5.0,
			KeywordWeight:           3.0,
			Temperature:             0.8,
			MinimumConfidence:       0.3,
			FallbackConfidence:      0.3,
			StaticOverrideThreshold: 0.7,
			AmbiguityEpsilon:        0.05,
		},
		Ontology: OntologyConfig{
			Endpoint: "http://localhost:5000/api",
			TTL:      "1h",
		},
		Store: StoreConfig{
			Path: ".ontomed/vocabulary.db",
		},
		Templates: TemplatesConfig{
			Dir:   "templates",
			Watch: false,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Load reads configuration from a YAML file, layering it over defaults and
// then applying environment overrides. A missing file is not an error; the
// defaults (plus env) are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments override file settings
// without editing the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ONTOMED_ANNOTATOR_ENDPOINT"); v != "" {
		c.Annotator.Endpoint = v
	}
	if v := os.Getenv("ONTOMED_ONTOLOGY_ENDPOINT"); v != "" {
		c.Ontology.Endpoint = v
	}
	if v := os.Getenv("ONTOMED_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("ONTOMED_TEMPLATES_DIR"); v != "" {
		c.Templates.Dir = v
	}
	if v := os.Getenv("ONTOMED_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Scoring.Temperature <= 0 {
		return fmt.Errorf("scoring.temperature must be positive, got %v", c.Scoring.Temperature)
	}
	if c.Scoring.MinimumConfidence < 0 || c.Scoring.MinimumConfidence > 1 {
		return fmt.Errorf("scoring.minimum_confidence must be in [0,1], got %v", c.Scoring.MinimumConfidence)
	}
	if c.Scoring.StaticOverrideThreshold < 0 || c.Scoring.StaticOverrideThreshold > 1 {
		return fmt.Errorf("scoring.static_override_threshold must be in [0,1], got %v", c.Scoring.StaticOverrideThreshold)
	}
	if _, err := c.AnnotatorTimeout(); err != nil {
		return err
	}
	if _, err := c.OntologyTTL(); err != nil {
		return err
	}
	return nil
}

// OntologyTTL parses the concept snapshot lifetime.
func (c *Config) OntologyTTL() (time.Duration, error) {
	if c.Ontology.TTL == "" {
		return time.Hour, nil
	}
	d, err := time.ParseDuration(c.Ontology.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid ontology.ttl %q: %w", c.Ontology.TTL, err)
	}
	return d, nil
}

// AnnotatorTimeout parses the annotator timeout string.
func (c *Config) AnnotatorTimeout() (time.Duration, error) {
	if c.Annotator.Timeout == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Annotator.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid annotator.timeout %q: %w", c.Annotator.Timeout, err)
	}
	return d, nil
}
