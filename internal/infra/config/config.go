// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultVolume is the start volume when none is configured.
const DefaultVolume = 200

// Console modes.
const (
	ConsoleSerial = "serial"
	ConsoleTUI    = "tui"
	ConsoleNone   = "none"
)

// Config represents the application configuration.
type Config struct {
	Player  PlayerConfig  `yaml:"player"`
	Output  OutputConfig  `yaml:"output"`
	Control ControlConfig `yaml:"control"`
	Log     LogConfig     `yaml:"log"`
	Hooks   HooksConfig   `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// PlayerConfig represents playback engine configuration.
type PlayerConfig struct {
	MusicDir    string `yaml:"music_dir" validate:"required"`
	Extension   string `yaml:"extension" default:".WAV" validate:"required,startswith=."`
	BufferSize  int    `yaml:"buffer_size" default:"4096" validate:"gte=512,lte=65536"`
	Volume      *uint8 `yaml:"volume" default:"200"` // Pointer so an explicit 0 survives defaults
	Muted       bool   `yaml:"muted"`
	IOTimeoutMs int    `yaml:"io_timeout_ms" default:"2000" validate:"gte=0,lte=60000"`
	Autoplay    bool   `yaml:"autoplay"`
}

// OutputConfig represents audio output configuration.
type OutputConfig struct {
	Driver   string         `yaml:"driver" default:"oto" validate:"oneof=oto null"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// ControlConfig represents the control surfaces.
type ControlConfig struct {
	Console   string          `yaml:"console" default:"serial" validate:"oneof=serial tui none"`
	Websocket WebsocketConfig `yaml:"websocket"`
	MDNS      MDNSConfig      `yaml:"mdns"`
}

// WebsocketConfig represents the websocket control endpoint.
type WebsocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" default:":7070" validate:"required"`
	Path    string `yaml:"path" default:"/control" validate:"required,startswith=/"`
}

// MDNSConfig represents service advertisement.
type MDNSConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name" default:"wavbox" validate:"required"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Output     string `yaml:"output" default:"stdout"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"10" validate:"gte=1"`
	MaxBackups int    `yaml:"max_backups" default:"3" validate:"gte=0"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("WAVBOX_MUSIC_DIR"); v != "" {
		c.Player.MusicDir = v
	}
	if v := os.Getenv("WAVBOX_WS_ADDR"); v != "" {
		c.Control.Websocket.Addr = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	// Each half must hold whole 16-bit stereo frames
	if c.Player.BufferSize%8 != 0 {
		return errors.Newf("buffer_size (%d) must be a multiple of 8", c.Player.BufferSize)
	}

	if c.Log.Output == "file" && c.Log.File == "" {
		return errors.New("log.file is required when log.output is file")
	}

	return nil
}

// InitialVolume returns the configured start volume.
func (c *Config) InitialVolume() uint8 {
	if c.Player.Volume == nil {
		return DefaultVolume
	}
	return *c.Player.Volume
}

// IOTimeout returns the store call timeout.
func (c *Config) IOTimeout() time.Duration {
	return time.Duration(c.Player.IOTimeoutMs) * time.Millisecond
}
