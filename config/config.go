// Package config loads ontograph settings from defaults, an optional YAML,
// JSON or TOML file and ONTOGRAPH_* environment variables, in that order.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/TFMV/ontograph/backend"
	"github.com/TFMV/ontograph/explore"
	"github.com/TFMV/ontograph/graph"
	"github.com/TFMV/ontograph/physics"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
	"github.com/TFMV/ontograph/render"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ONTOGRAPH_"

// Config is the complete application configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server" json:"server" toml:"server"`
	Backend backend.Config `yaml:"backend" json:"backend" toml:"backend"`
	// Dataset is a local dataset file served instead of a remote backend.
	Dataset string        `yaml:"dataset" json:"dataset" toml:"dataset"`
	Graph   GraphConfig   `yaml:"graph" json:"graph" toml:"graph"`
	Logging LoggingConfig `yaml:"logging" json:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics" toml:"metrics"`
	Theme   ThemeConfig   `yaml:"theme" json:"theme" toml:"theme"`

	// Path is the file the configuration was read from, if any.
	Path string `yaml:"-" json:"-" toml:"-"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host" toml:"host"`
	Port            int           `yaml:"port" json:"port" toml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" toml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins" json:"allowed_origins" toml:"allowed_origins"`
	MaxSessions     int           `yaml:"max_sessions" json:"max_sessions" toml:"max_sessions" validate:"min=1"`
	SessionTTL      time.Duration `yaml:"session_ttl" json:"session_ttl" toml:"session_ttl"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GraphConfig configures graphs created by the server and the CLI.
type GraphConfig struct {
	Forces           graph.Forces  `yaml:"forces" json:"forces" toml:"forces"`
	Threshold        int           `yaml:"threshold" json:"threshold" toml:"threshold" validate:"min=0"`
	Width            float64       `yaml:"width" json:"width" toml:"width" validate:"gt=0"`
	Height           float64       `yaml:"height" json:"height" toml:"height" validate:"gt=0"`
	TickInterval     time.Duration `yaml:"tick_interval" json:"tick_interval" toml:"tick_interval" validate:"gte=0"`
	HideLiterals     bool          `yaml:"hide_literals" json:"hide_literals" toml:"hide_literals"`
	Concurrency      int           `yaml:"concurrency" json:"concurrency" toml:"concurrency" validate:"min=1,max=64"`
	SettleIterations int           `yaml:"settle_iterations" json:"settle_iterations" toml:"settle_iterations" validate:"min=0"`
	VelocityDecay    float64       `yaml:"velocity_decay" json:"velocity_decay" toml:"velocity_decay" validate:"gte=0,lte=1"`
}

// LoggingConfig selects the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" toml:"format" validate:"oneof=json console"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" toml:"enabled"`
	Path    string `yaml:"path" json:"path" toml:"path" validate:"required,startswith=/"`
}

// ThemeConfig selects the stylesheet used by SVG output and export.
type ThemeConfig struct {
	// Stylesheet is a CSS file; empty selects the built-in theme.
	Stylesheet string `yaml:"stylesheet" json:"stylesheet" toml:"stylesheet"`
	Background string `yaml:"background" json:"background" toml:"background"`
}

// CSS returns the configured stylesheet. Relative paths resolve against the
// directory of the configuration file.
func (c *Config) CSS() (string, error) {
	if c.Theme.Stylesheet == "" {
		return render.DefaultTheme, nil
	}
	path := c.Resolve(c.Theme.Stylesheet)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.NewValidation(fmt.Sprintf("failed to read stylesheet %s: %v", path, err))
	}
	return string(data), nil
}

// Resolve interprets a relative path against the configuration file's
// directory.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Path == "" {
		return path
	}
	return filepath.Join(filepath.Dir(c.Path), path)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
			MaxSessions:     100,
			SessionTTL:      30 * time.Minute,
		},
		Backend: backend.Config{
			Timeout: 10 * time.Second,
			Breaker: backend.DefaultBreakerConfig(),
		},
		Graph: GraphConfig{
			Forces:           graph.DefaultForces(),
			Threshold:        explore.DefaultThreshold,
			Width:            800,
			Height:           600,
			TickInterval:     16 * time.Millisecond,
			Concurrency:      4,
			SettleIterations: 300,
			VelocityDecay:    physics.DefaultVelocityDecay,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		Theme:   ThemeConfig{Background: "#ffffff"},
	}
}

// Load builds the configuration. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
		cfg.Path = path
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.NewNotFound(fmt.Sprintf("config file %s not found", path))
		}
		return apperrors.NewInternal("failed to read config file", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(cfg)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	case ".toml":
		var md toml.MetaData
		md, err = toml.Decode(string(data), cfg)
		if err == nil {
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				err = fmt.Errorf("unknown keys: %v", undecoded)
			}
		}
	default:
		return apperrors.NewValidation(fmt.Sprintf("unsupported config format %q", ext))
	}
	if err != nil {
		return apperrors.NewValidation(fmt.Sprintf("failed to parse %s: %v", path, err))
	}
	return nil
}

// applyEnv overlays ONTOGRAPH_* variables.
func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"SERVER_HOST":      &cfg.Server.Host,
		"BACKEND_URL":      &cfg.Backend.BaseURL,
		"DATASET":          &cfg.Dataset,
		"LOG_LEVEL":        &cfg.Logging.Level,
		"LOG_FORMAT":       &cfg.Logging.Format,
		"THEME_STYLESHEET": &cfg.Theme.Stylesheet,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SERVER_PORT":     &cfg.Server.Port,
		"GRAPH_THRESHOLD": &cfg.Graph.Threshold,
		"MAX_SESSIONS":    &cfg.Server.MaxSessions,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return apperrors.NewValidation(fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"BACKEND_TIMEOUT": &cfg.Backend.Timeout,
		"SESSION_TTL":     &cfg.Server.SessionTTL,
	}
	for key, dst := range durations {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return apperrors.NewValidation(fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
			}
			*dst = d
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "METRICS_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return apperrors.NewValidation(fmt.Sprintf("%sMETRICS_ENABLED: %v", EnvPrefix, err))
		}
		cfg.Metrics.Enabled = b
	}
	return nil
}

var validate = validator.New()

// Validate checks struct constraints, including the nested force and
// backend settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.NewValidation(fmt.Sprintf("invalid configuration: %v", err))
	}
	return nil
}
