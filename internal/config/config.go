package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Converter     ConverterConfig     `toml:"converter"`
	Logging       LoggingConfig       `toml:"logging"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
}

// GeneralConfig holds directory and storage settings
type GeneralConfig struct {
	InputDir     string `toml:"input_dir"`
	OutputRoot   string `toml:"output_root"`
	DatabasePath string `toml:"database_path"`
}

// ConverterConfig holds Chunker CLI invocation settings
type ConverterConfig struct {
	JavaPath     string `toml:"java_path"`
	JarPath      string `toml:"jar_path"`
	JarDir       string `toml:"jar_dir"` // searched when jar_path is empty
	Format       string `toml:"format"`
	AddSuffix    bool   `toml:"add_suffix"`
	MinJavaMajor int    `toml:"min_java_major"`
	GraceSeconds int    `toml:"grace_seconds"` // interrupt-to-kill window on cancel
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
}

// NotificationsConfig holds completion notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds status API settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			InputDir:     "",
			OutputRoot:   "",
			DatabasePath: filepath.Join(home, ".chunkerbatch", "history.db"),
		},
		Converter: ConverterConfig{
			JavaPath:     "java",
			JarDir:       ".",
			Format:       "BEDROCK_1_21_70",
			AddSuffix:    true,
			MinJavaMajor: 17,
			GraceSeconds: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		Web: WebConfig{
			Port: 8190,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Expand paths
	cfg.General.InputDir = ExpandPath(cfg.General.InputDir)
	cfg.General.OutputRoot = ExpandPath(cfg.General.OutputRoot)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.Converter.JavaPath = ExpandPath(cfg.Converter.JavaPath)
	cfg.Converter.JarPath = ExpandPath(cfg.Converter.JarPath)
	cfg.Converter.JarDir = ExpandPath(cfg.Converter.JarDir)

	return cfg, nil
}

// Grace converts the configured cancel window into a duration
func (c *ConverterConfig) Grace() time.Duration {
	if c.GraceSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.GraceSeconds) * time.Second
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "chunkerbatch", "config.toml")
}
