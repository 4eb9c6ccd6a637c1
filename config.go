package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mil-ad/glockctl/session"
)

const (
	transportProfile = "profile"
	transportRFCOMM  = "rfcomm"
	transportTTY     = "tty"
)

type Config struct {
	// Device is the bonded device name used when none is given.
	Device         string        `yaml:"device"`
	Tempo          int           `yaml:"tempo"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	StrictNotes    bool          `yaml:"strict_notes"`
	StrictNames    bool          `yaml:"strict_names"`
	Transport      struct {
		Kind        string `yaml:"kind"` // "profile" | "rfcomm" | "tty"
		ServiceUUID string `yaml:"service_uuid"`
		Channel     uint8  `yaml:"channel"`
		Port        string `yaml:"port"`
		Baud        int    `yaml:"baud"`
	} `yaml:"transport"`
	HTTP struct {
		Listen         string   `yaml:"listen"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func defaultConfig() *Config {
	cfg := &Config{
		Tempo:          session.DefaultTempo,
		ConnectTimeout: session.DefaultConnectTimeout,
	}
	cfg.Transport.Kind = transportProfile
	cfg.Transport.ServiceUUID = session.SerialPortUUID
	cfg.Transport.Baud = 9600
	cfg.Log.Level = "INFO"
	return cfg
}

func configPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "glockctl", "config.yaml")
}

// loadConfig reads path, falling back to defaults when it does not exist.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Tempo <= 0 {
		return fmt.Errorf("tempo must be positive, got %d", c.Tempo)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout)
	}
	id, err := uuid.Parse(c.Transport.ServiceUUID)
	if err != nil {
		return fmt.Errorf("transport.service_uuid: %w", err)
	}
	c.Transport.ServiceUUID = id.String()

	switch c.Transport.Kind {
	case transportProfile:
	case transportRFCOMM:
		if c.Transport.Channel < 1 || c.Transport.Channel > 30 {
			return fmt.Errorf("transport.channel must be 1-30 for rfcomm, got %d", c.Transport.Channel)
		}
	case transportTTY:
		if c.Transport.Port == "" {
			return fmt.Errorf("transport.port is required for tty")
		}
		if c.Transport.Baud <= 0 {
			return fmt.Errorf("transport.baud must be positive, got %d", c.Transport.Baud)
		}
	default:
		return fmt.Errorf("unknown transport.kind %q", c.Transport.Kind)
	}

	if _, ok := logLevels[strings.ToUpper(c.Log.Level)]; !ok {
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	return nil
}

// resolveDevice picks a device name. If name is non-empty, it is returned
// directly. Otherwise, the configured device is used.
func resolveDevice(cfg *Config, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	if cfg.Device == "" {
		return "", fmt.Errorf("no device specified and config has no device")
	}
	return cfg.Device, nil
}

var logLevels = map[string]slog.Level{
	"DEBUG": slog.LevelDebug,
	"INFO":  slog.LevelInfo,
	"WARN":  slog.LevelWarn,
	"ERROR": slog.LevelError,
}

// logger is the process-wide structured logger; initLogger replaces it once
// the config is known.
var logger = slog.Default()

func initLogger(level string) {
	lvl, ok := logLevels[strings.ToUpper(level)]
	if !ok {
		lvl = slog.LevelInfo
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}
