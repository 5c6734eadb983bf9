package configuration

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "LINSCORE"

// AppConfig represents the complete application configuration.
type AppConfig struct {
	// Logger: logger component configuration
	Logger LoggerConfig `mapstructure:"logger"`
	// Server: HTTP server configuration
	Server ServerConfig `mapstructure:"server"`
	// Scoring: weights and scorers
	Scoring ScoringConfig `mapstructure:"scoring"`
	// Events: per-entity event buffer
	Events EventsConfig `mapstructure:"events"`
	// Features: derivation rules applied to buffered events
	Features FeaturesConfig `mapstructure:"features"`
	// Store: SQLite database with weights versions and scoring results
	Store StoreConfig `mapstructure:"store"`
	// Dataset: rotated JSON archive of scoring results
	Dataset DatasetConfig `mapstructure:"dataset"`
}

// LoggerConfig defines logging settings.
type LoggerConfig struct {
	// Level: log level: debug, info, warn, warning, error.
	// Value is case-insensitive but checked in lowercase.
	Level string `mapstructure:"level"`
	// File: optional log file, rotated by size. Logs always go to stdout as well.
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// ServerConfig contains HTTP server parameters.
type ServerConfig struct {
	// Address: address and port where the server will listen (e.g., ":8080").
	Address string `mapstructure:"address"`
	// Token: value expected in the X-Api-Token header of API requests.
	Token string `mapstructure:"token"`
}

// ModelConfig points to an external classification model. It is disabled when URL is empty.
type ModelConfig struct {
	Name    string        `mapstructure:"name"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ScoringConfig defines how scores are computed.
type ScoringConfig struct {
	// PrimaryKey: entity key column of features tables and events.
	PrimaryKey string `mapstructure:"primary_key"`
	// Weights: weights file (.yaml, .yml or .csv).
	Weights string `mapstructure:"weights"`
	// WeightsVersion: version loaded from the store when Weights is empty.
	// "latest" selects the most recently imported version.
	WeightsVersion string `mapstructure:"weights_version"`
	// MissingAsZero: treat a missing feature column as all-null instead of failing.
	MissingAsZero bool `mapstructure:"missing_as_zero"`
	// Tolerance: absolute tolerance of the zero weights check.
	Tolerance float64     `mapstructure:"tolerance"`
	Model     ModelConfig `mapstructure:"model"`
}

// EventsConfig defines the event buffer.
type EventsConfig struct {
	// Length: maximum number of stored events per entity.
	Length int `mapstructure:"length"`
	// TTL: inactive entities are removed after this period. Example: "5m", "1h".
	TTL time.Duration `mapstructure:"ttl"`
}

// FeaturesConfig defines feature derivation from events.
type FeaturesConfig struct {
	// Rules: YAML file with the derivation rules. Derivation is disabled when empty.
	Rules string `mapstructure:"rules"`
	// Fields: event field types: int, double, bool, string or dyn.
	Fields map[string]string `mapstructure:"fields"`
}

// StoreConfig defines the SQLite store. It is disabled when Path is empty.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// DatasetConfig defines the scores dataset.
type DatasetConfig struct {
	// Dataset file path (optional)
	File string `mapstructure:"file"`
	// Maximal dataset file size in megabytes
	Size int `mapstructure:"size"`
	// Number of dataset files
	Amount int `mapstructure:"amount"`
}

// Validate checks the correctness of the entire application configuration.
// Calls validation for each nested structure and returns the first detected error.
func (c *AppConfig) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return err
	}

	if err := c.Scoring.Validate(); err != nil {
		return err
	}

	if err := c.Events.Validate(); err != nil {
		return err
	}

	if err := c.Features.Validate(); err != nil {
		return err
	}

	return c.Dataset.Validate()
}

// ValidateServer checks the sections required by the HTTP service only.
func (c *AppConfig) ValidateServer() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if c.Features.Rules == "" {
		return errors.New("features.rules: must be specified to serve events")
	}
	return nil
}

// Validate checks the correctness of the logger configuration.
// Supported values: debug, info, warn, warning, error (case-insensitive).
func (l *LoggerConfig) Validate() error {
	if l.Level == "" {
		return errors.New("logger.level: must be specified")
	}

	valid := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !valid[strings.ToLower(l.Level)] {
		return fmt.Errorf("logger.level: unsupported level '%s'", l.Level)
	}

	if l.MaxSize < 0 || l.MaxBackups < 0 || l.MaxAge < 0 {
		return errors.New("logger: rotation limits must not be negative")
	}

	return nil
}

// Validate checks the correctness of the server configuration.
func (s *ServerConfig) Validate() error {
	if s.Address == "" {
		return errors.New("server.address: must be specified")
	}

	if s.Token == "" {
		return errors.New("server.token: must be specified")
	}

	return nil
}

// Validate checks the scoring configuration.
func (s *ScoringConfig) Validate() error {
	if s.PrimaryKey == "" {
		return errors.New("scoring.primary_key: must be specified")
	}

	if s.Tolerance < 0 {
		return errors.New("scoring.tolerance: must not be negative")
	}

	return s.Model.Validate()
}

// Validate checks the model configuration when the model is enabled.
func (m *ModelConfig) Validate() error {
	if m.URL == "" {
		return nil
	}

	if m.Name == "" {
		return errors.New("scoring.model.name: must be specified")
	}
	if u, err := url.Parse(m.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("scoring.model.url: URL is incorrect")
	}
	if m.Timeout <= 0 {
		return errors.New("scoring.model.timeout: must be positive")
	}

	return nil
}

// Validate checks the event buffer parameters.
func (e *EventsConfig) Validate() error {
	if e.Length <= 0 {
		return errors.New("events.length: must be positive")
	}

	if e.TTL < 0 {
		return errors.New("events.ttl: must not be negative")
	}

	return nil
}

// Validate checks the declared event field types.
func (f *FeaturesConfig) Validate() error {
	for name, kind := range f.Fields {
		switch strings.ToLower(kind) {
		case "int", "double", "float", "bool", "string", "dyn", "":
		default:
			return fmt.Errorf("features.fields.%s: unsupported type '%s'", name, kind)
		}
	}

	return nil
}

// Validate dataset parameters
func (d *DatasetConfig) Validate() error {
	if d.File == "" {
		return nil
	}

	if d.Size <= 0 {
		return errors.New("dataset.size: must be positive")
	}

	if d.Amount <= 0 {
		return errors.New("dataset.amount: must be positive")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("scoring.primary_key", "service_id")
	v.SetDefault("scoring.weights_version", "latest")
	v.SetDefault("scoring.tolerance", 1e-8)
	v.SetDefault("scoring.model.timeout", 3*time.Second)
	v.SetDefault("events.length", 100)
	v.SetDefault("events.ttl", time.Hour)
	v.SetDefault("dataset.size", 100)
	v.SetDefault("dataset.amount", 20)
}

// LoadConfig loads configuration from the specified YAML file.
// Environment variables prefixed with LINSCORE_ override file values,
// e.g. LINSCORE_SERVER_TOKEN overrides server.token.
//
// Returns an error if the file is not readable, cannot be decoded
// or one of the sections fails validation.
func LoadConfig(configPath string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}
