// Package config loads inspoflow settings from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.5-flash"

// ErrMissingAPIKey means no credential is configured; generation requests
// must not be issued.
var ErrMissingAPIKey = errors.New("API key is not configured (set api_key or INSPOFLOW_API_KEY)")

type Config struct {
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"`
	Model   string        `mapstructure:"model" yaml:"model" validate:"required"`
	BaseURL string        `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Batch   BatchConfig   `mapstructure:"batch" yaml:"batch"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=sqlite bolt memory"`
	Path   string `mapstructure:"path" yaml:"path"`
}

type BatchConfig struct {
	Size        int `mapstructure:"size" yaml:"size" validate:"min=1,max=50"`
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency" validate:"min=1"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"required"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// Dir returns the directory holding the config file and default database.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "inspoflow")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "inspoflow")
}

// DefaultPath is where settings are written when no file was loaded.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("model", DefaultModel)
	v.SetDefault("base_url", "")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", filepath.Join(Dir(), "inspoflow.db"))
	v.SetDefault("batch.size", 5)
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// NewViper returns a viper instance with defaults, search paths and the
// INSPOFLOW_ environment prefix wired up.
func NewViper(file string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
	}

	v.SetEnvPrefix("INSPOFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads settings from file (or the search paths when file is empty).
// A missing config file is not an error.
func Load(file string) (*Config, *viper.Viper, error) {
	v := NewViper(file)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(file != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := FromViper(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the configuration for structural errors. A missing API
// key is not a structural error; see RequireAPIKey.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// RequireAPIKey returns ErrMissingAPIKey when no credential is set.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// MaskedAPIKey returns the credential with all but the last four
// characters hidden.
func (c *Config) MaskedAPIKey() string {
	if len(c.APIKey) <= 4 {
		return strings.Repeat("*", len(c.APIKey))
	}
	return strings.Repeat("*", len(c.APIKey)-4) + c.APIKey[len(c.APIKey)-4:]
}

// SaveSettings writes the credential and model name to path. An empty path
// means the file v was loaded from, then DefaultPath. Only the keys already
// in that file and the ones given here are written; defaults and
// environment values stay out of it.
func SaveSettings(v *viper.Viper, path, apiKey, model string) (string, error) {
	target := path
	if target == "" {
		target = v.ConfigFileUsed()
	}
	if target == "" {
		target = DefaultPath()
	}

	file := viper.New()
	file.SetConfigFile(target)
	if err := file.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read config: %w", err)
	}

	for key, value := range map[string]string{"api_key": apiKey, "model": model} {
		if value == "" {
			continue
		}
		file.Set(key, value)
		v.Set(key, value)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := file.WriteConfigAs(target); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return target, nil
}
