package neurales

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	Nt "github.com/maroda/neurales/types"
)

// StreamConfig controls chunk slicing and the analysis window.
type StreamConfig struct {
	ChunkSeconds     float64 `json:"chunk_seconds" yaml:"chunk_seconds" mapstructure:"chunk_seconds"`
	WindowSeconds    float64 `json:"window_seconds" yaml:"window_seconds" mapstructure:"window_seconds"`
	MinWindowSamples int     `json:"min_window_samples" yaml:"min_window_samples" mapstructure:"min_window_samples"`
	Annotator        string  `json:"annotator" yaml:"annotator" mapstructure:"annotator"`
}

// Validate checks that both durations are positive and finite.
func (sc StreamConfig) Validate() error {
	if !(sc.ChunkSeconds > 0) || math.IsInf(sc.ChunkSeconds, 0) {
		return &ConfigError{Field: "stream.chunk_seconds", Reason: "must be positive"}
	}
	if !(sc.WindowSeconds > 0) || math.IsInf(sc.WindowSeconds, 0) {
		return &ConfigError{Field: "stream.window_seconds", Reason: "must be positive"}
	}
	if sc.MinWindowSamples < 0 {
		return &ConfigError{Field: "stream.min_window_samples", Reason: "cannot be negative"}
	}
	return nil
}

// ChunkInterval is ChunkSeconds as a time.Duration.
func (sc StreamConfig) ChunkInterval() time.Duration {
	return time.Duration(sc.ChunkSeconds * float64(time.Second))
}

// RecordingConfig says where the recording for live sessions comes from.
type RecordingConfig struct {
	Path      string   `json:"path" yaml:"path" mapstructure:"path"`
	Picks     []string `json:"picks" yaml:"picks" mapstructure:"picks"`
	Synthetic bool     `json:"synthetic" yaml:"synthetic" mapstructure:"synthetic"`
}

// ServerConfig is the HTTP side.
type ServerConfig struct {
	Addr        string   `json:"addr" yaml:"addr" mapstructure:"addr"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" mapstructure:"cors_origins"`
}

// StorageConfig enables BadgerDB score history.
type StorageConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Path      string `json:"path" yaml:"path" mapstructure:"path"`
	BatchSize int    `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
}

// MirrorConfig copies every payload to a broker as well as the live client.
// Kind is "", "kafka" or "mqtt".
type MirrorConfig struct {
	Kind    string   `json:"kind" yaml:"kind" mapstructure:"kind"`
	Brokers []string `json:"brokers" yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `json:"topic" yaml:"topic" mapstructure:"topic"`
}

// TelemetryConfig picks a trace exporter: "", "honeycomb" or "otlp".
type TelemetryConfig struct {
	Exporter string `json:"exporter" yaml:"exporter" mapstructure:"exporter"`
}

// Config is the whole neurales configuration document.
type Config struct {
	Scoring   Nt.ScoringConfig `json:"scoring" yaml:"scoring" mapstructure:"scoring"`
	Stream    StreamConfig     `json:"stream" yaml:"stream" mapstructure:"stream"`
	Recording RecordingConfig  `json:"recording" yaml:"recording" mapstructure:"recording"`
	Server    ServerConfig     `json:"server" yaml:"server" mapstructure:"server"`
	Storage   StorageConfig    `json:"storage" yaml:"storage" mapstructure:"storage"`
	Mirror    MirrorConfig     `json:"mirror" yaml:"mirror" mapstructure:"mirror"`
	Telemetry TelemetryConfig  `json:"telemetry" yaml:"telemetry" mapstructure:"telemetry"`
}

// DefaultPicks are the Sleep-EDF EEG derivations used when none are configured.
// Unlike configured picks they may be missing from a recording, which then falls back to its first two channels.
var DefaultPicks = []string{"Fpz-Cz", "Pz-Oz"}

// DefaultConfig returns a complete, valid configuration.
func DefaultConfig() *Config {
	return &Config{
		Scoring: DefaultScoringConfig(),
		Stream: StreamConfig{
			ChunkSeconds:  0.05,
			WindowSeconds: 10.0,
			Annotator:     "constant",
		},
		Server: ServerConfig{
			Addr:        ":8090",
			CORSOrigins: []string{"http://localhost:5173"},
		},
		Storage: StorageConfig{
			Path:      "./neurales_db",
			BatchSize: 50,
		},
	}
}

// Validate runs every section check and returns the first ConfigError.
func (c *Config) Validate() error {
	if err := ValidateScoring(c.Scoring); err != nil {
		return err
	}
	if err := c.Stream.Validate(); err != nil {
		return err
	}
	if c.Storage.Enabled && c.Storage.BatchSize < 1 {
		return &ConfigError{Field: "storage.batch_size", Reason: "must be at least 1"}
	}
	switch c.Mirror.Kind {
	case "":
	case "kafka", "mqtt":
		if len(c.Mirror.Brokers) == 0 {
			return &ConfigError{Field: "mirror.brokers", Reason: "at least one broker is required"}
		}
		if c.Mirror.Topic == "" {
			return &ConfigError{Field: "mirror.topic", Reason: "a topic is required"}
		}
	default:
		return &ConfigError{Field: "mirror.kind", Reason: fmt.Sprintf("unknown mirror %q", c.Mirror.Kind)}
	}
	switch c.Telemetry.Exporter {
	case "", "honeycomb", "otlp":
	default:
		return &ConfigError{Field: "telemetry.exporter", Reason: fmt.Sprintf("unknown exporter %q", c.Telemetry.Exporter)}
	}
	return nil
}

// LoadConfigFileName pulls a given filename config off local disk.
// The format follows the extension: .yaml/.yml or .json.
// Values missing from the file keep their defaults.
func LoadConfigFileName(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	// validation
	if len(bytes.TrimSpace(data)) == 0 {
		slog.Error("file is empty", slog.String("file", filename))
		return nil, errors.New("file is empty")
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return LoadConfigYAML(data)
	default:
		return LoadConfig(data)
	}
}

// LoadConfig decodes a JSON document over the defaults.
func LoadConfig(data []byte) (*Config, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Error("could not decode config", slog.Any("error", err))
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigYAML decodes a YAML document over the defaults.
func LoadConfigYAML(data []byte) (*Config, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		slog.Error("could not decode config", slog.Any("error", err))
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Round-trip through JSON so the schema sees plain JSON values
	js, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(js, &doc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

const configSchemaURL = "https://github.com/maroda/neurales/config.schema.json"

// configSchema checks shape and types only. Cross-field rules live in Validate.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "scoring": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "theta_min": {"type": "number", "minimum": 0},
        "theta_max": {"type": "number", "exclusiveMinimum": 0},
        "alpha_min": {"type": "number", "minimum": 0},
        "alpha_max": {"type": "number", "exclusiveMinimum": 0},
        "fatigue_ratio_min": {"type": "number"},
        "fatigue_ratio_max": {"type": "number"}
      }
    },
    "stream": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "chunk_seconds": {"type": "number", "exclusiveMinimum": 0},
        "window_seconds": {"type": "number", "exclusiveMinimum": 0},
        "min_window_samples": {"type": "integer", "minimum": 0},
        "annotator": {"type": "string"}
      }
    },
    "recording": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "path": {"type": "string"},
        "picks": {"type": "array", "items": {"type": "string"}, "uniqueItems": true},
        "synthetic": {"type": "boolean"}
      }
    },
    "server": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "addr": {"type": "string"},
        "cors_origins": {"type": "array", "items": {"type": "string"}}
      }
    },
    "storage": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "path": {"type": "string"},
        "batch_size": {"type": "integer", "minimum": 1}
      }
    },
    "mirror": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "kind": {"enum": ["", "kafka", "mqtt"]},
        "brokers": {"type": "array", "items": {"type": "string"}},
        "topic": {"type": "string"}
      }
    },
    "telemetry": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "exporter": {"enum": ["", "honeycomb", "otlp"]}
      }
    }
  }
}`

func compileConfigSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(configSchemaURL, strings.NewReader(configSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile(configSchemaURL)
}

func validateDocument(doc interface{}) error {
	schema, err := compileConfigSchema()
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			for len(ve.Causes) > 0 {
				ve = ve.Causes[0]
			}
			return &ConfigError{Field: ve.InstanceLocation, Reason: ve.Message}
		}
		return &ConfigError{Field: "document", Reason: err.Error()}
	}
	return nil
}
