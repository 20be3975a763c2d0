// Package config provides configuration management for the tango CLI
// using Viper for flexible configuration loading from files, environment
// variables, and command-line flags.
//
// Configuration comes from a .tango.yml file, environment variables with
// a TANGO_ prefix, and bound command-line flags, in ascending precedence.
// It covers engine policy (debug, autoescape, charset, the invalid-
// variable replacement string), template search directories, and the
// preview server.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Debug           bool     `mapstructure:"debug" yaml:"debug"`
	Autoescape      bool     `mapstructure:"autoescape" yaml:"autoescape"`
	Charset         string   `mapstructure:"charset" yaml:"charset"`
	StringIfInvalid string   `mapstructure:"string_if_invalid" yaml:"string_if_invalid"`
	Dirs            []string `mapstructure:"dirs" yaml:"dirs"`
	Extensions      []string `mapstructure:"extensions" yaml:"extensions"`
	IncludeRoots    []string `mapstructure:"include_roots" yaml:"include_roots"`

	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Host     string        `mapstructure:"host" yaml:"host"`
	Port     int           `mapstructure:"port" yaml:"port"`
	NoReload bool          `mapstructure:"no_reload" yaml:"no_reload"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers every default on the shared viper instance.
// Call it before binding flags so flag defaults and config defaults
// stay in one place.
func SetDefaults() {
	viper.SetDefault("debug", false)
	viper.SetDefault("autoescape", false)
	viper.SetDefault("charset", "utf-8")
	viper.SetDefault("string_if_invalid", "")
	viper.SetDefault("dirs", []string{"."})
	viper.SetDefault("extensions", []string{".html", ".txt"})
	viper.SetDefault("include_roots", []string{})
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.no_reload", false)
	viper.SetDefault("server.debounce", 300*time.Millisecond)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

// Load unmarshals the accumulated viper state and validates it.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// validateConfig validates configuration values for security and correctness.
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	for _, dir := range config.Dirs {
		if err := validatePath(dir); err != nil {
			return fmt.Errorf("invalid template dir %q: %w", dir, err)
		}
	}
	for _, ext := range config.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}
	if config.Charset == "" {
		return fmt.Errorf("charset must not be empty")
	}
	return nil
}

func validateServerConfig(config *ServerConfig) error {
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}
	if config.Host != "" {
		dangerous := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerous {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}
	if config.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative")
	}
	return nil
}

// validatePath rejects search directories that smuggle in traversal or
// shell metacharacters. Directories may be absolute; template names
// resolved against them are checked separately by the loader.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}
	dangerous := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerous {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}
	return nil
}
