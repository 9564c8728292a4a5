package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/zucenko/rescuegrid/engine"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Mission MissionConfig `yaml:"mission"`
}

type ServerConfig struct {
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	// RateLimitRPM limits POST calls per client IP; 0 disables limiting.
	RateLimitRPM   int           `yaml:"rate_limit_rpm"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
	ArchiveSize    int           `yaml:"archive_size"`
	HubTimeout     time.Duration `yaml:"hub_timeout"`
	WatcherBuffer  int           `yaml:"watcher_buffer"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MissionConfig holds the defaults applied to generate requests that leave
// a field out. It is the only section picked up by hot reload.
type MissionConfig struct {
	Size    int `yaml:"size"`
	Exits   int `yaml:"exits"`
	MinFree int `yaml:"min_free"`
	MaxSize int `yaml:"max_size"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			CORSOrigins:    []string{"*"},
			RateLimitRPM:   600,
			RateLimitBurst: 20,
			ArchiveSize:    64,
			HubTimeout:     200 * time.Millisecond,
			WatcherBuffer:  16,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Mission: MissionConfig{
			Size:    engine.DefaultSize,
			Exits:   engine.DefaultExits,
			MinFree: 0,
			MaxSize: 64,
		},
	}
}

func loadYAML(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, out)
}

// Load reads the YAML file at path over the defaults. An empty path yields
// the defaults. PORT and RESCUE_LOG_LEVEL override the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if level := os.Getenv("RESCUE_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		errs = append(errs, fmt.Errorf("server.port %q is not a number", c.Server.Port))
	}
	if c.Server.RateLimitRPM < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit_rpm cannot be negative"))
	}
	if c.Server.ArchiveSize < 1 {
		errs = append(errs, fmt.Errorf("server.archive_size must be at least 1"))
	}
	if c.Server.HubTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.hub_timeout must be positive"))
	}
	if c.Server.WatcherBuffer < 1 {
		errs = append(errs, fmt.Errorf("server.watcher_buffer must be at least 1"))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	errs = append(errs, c.Mission.validate())
	return errors.Join(errs...)
}

func (m MissionConfig) validate() error {
	switch {
	case m.MaxSize < 1:
		return fmt.Errorf("mission.max_size must be at least 1")
	case m.Size < 1 || m.Size > m.MaxSize:
		return fmt.Errorf("mission.size %d must be between 1 and %d", m.Size, m.MaxSize)
	case m.Exits < 1:
		return fmt.Errorf("mission.exits must be at least 1")
	case m.MinFree < 0:
		return fmt.Errorf("mission.min_free cannot be negative")
	}
	return nil
}

// Apply sets the logrus level and formatter.
func (l LogConfig) Apply() error {
	level, err := log.ParseLevel(l.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if l.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
