package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Terminal TerminalConfig `yaml:"terminal"`
	Console  ConsoleConfig  `yaml:"console"`
	Resize   ResizeConfig   `yaml:"resize"`
	Logging  LogConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080" yaml:"port"`
	Host string `envconfig:"HOST" default:"0.0.0.0" yaml:"host"`
}

// TerminalConfig holds session spawning configuration.
type TerminalConfig struct {
	// Shell is the program hosted in spawned sessions. Empty falls back
	// to $SHELL, then a platform default.
	Shell string `envconfig:"TERM_SHELL" default:"" yaml:"shell"`

	// Python is the interpreter used for the PTY and resizer helpers.
	Python string `envconfig:"TERM_PYTHON" default:"python3" yaml:"python"`

	Cols int `envconfig:"TERM_COLS" default:"80" yaml:"cols"`
	Rows int `envconfig:"TERM_ROWS" default:"24" yaml:"rows"`

	// UseConhost nests the Windows shell under conhost for resizable
	// output.
	UseConhost bool `envconfig:"TERM_CONHOST" default:"true" yaml:"use_conhost"`
}

// ConsoleConfig holds developer-console configuration.
type ConsoleConfig struct {
	HistoryMax int `envconfig:"CONSOLE_HISTORY_MAX" default:"100" yaml:"history_max"`
	QueueDepth int `envconfig:"CONSOLE_QUEUE_DEPTH" default:"32" yaml:"queue_depth"`
	EventMax   int `envconfig:"CONSOLE_EVENT_MAX" default:"1000" yaml:"event_max"`
	Depth      int `envconfig:"CONSOLE_DEPTH" default:"2" yaml:"depth"`
}

// ResizeConfig holds resize and lifecycle timing, in milliseconds.
type ResizeConfig struct {
	DebounceMS  int `envconfig:"RESIZE_DEBOUNCE_MS" default:"250" yaml:"debounce_ms"`
	KeepAliveMS int `envconfig:"RESIZE_KEEPALIVE_MS" default:"5000" yaml:"keepalive_ms"`
	GraceMS     int `envconfig:"EXIT_GRACE_MS" default:"10000" yaml:"grace_ms"`
}

// Debounce returns the resize debounce window.
func (r ResizeConfig) Debounce() time.Duration {
	return time.Duration(r.DebounceMS) * time.Millisecond
}

// KeepAlive returns the resizer keep-alive interval.
func (r ResizeConfig) KeepAlive() time.Duration {
	return time.Duration(r.KeepAliveMS) * time.Millisecond
}

// Grace returns the exit-code file retention window.
func (r ResizeConfig) Grace() time.Duration {
	return time.Duration(r.GraceMS) * time.Millisecond
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile loads configuration from the environment and overlays a
// YAML file on top; values present in the file win.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Terminal: TerminalConfig{
			Python:     "python3",
			Cols:       80,
			Rows:       24,
			UseConhost: true,
		},
		Console: ConsoleConfig{
			HistoryMax: 100,
			QueueDepth: 32,
			EventMax:   1000,
			Depth:      2,
		},
		Resize: ResizeConfig{
			DebounceMS:  250,
			KeepAliveMS: 5000,
			GraceMS:     10000,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
