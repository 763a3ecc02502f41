// Package config loads rangedl settings from a YAML file, RANGEDL_* environment
// variables and defaults, in that order of precedence (environment first).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/tanq16/rangedl/internal/utils"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Connections   int              `mapstructure:"connections" yaml:"connections" validate:"min=1,max=15"`
	OutputDir     string           `mapstructure:"output_dir" yaml:"output_dir"`
	ProbeAttempts int              `mapstructure:"probe_attempts" yaml:"probe_attempts" validate:"min=1,max=20"`
	Breakpoint    BreakpointConfig `mapstructure:"breakpoint" yaml:"breakpoint"`
	HTTP          HTTPConfig       `mapstructure:"http" yaml:"http"`
	S3            S3Config         `mapstructure:"s3" yaml:"s3"`
	Log           LogConfig        `mapstructure:"log" yaml:"log"`
	Metrics       MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// BreakpointConfig selects where resume records are kept. An empty Dir means
// next to the downloaded file for the file backend.
type BreakpointConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend" validate:"oneof=file badger"`
	Dir     string `mapstructure:"dir" yaml:"dir,omitempty" validate:"required_if=Backend badger"`
}

type HTTPConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
	KeepAlive     time.Duration `mapstructure:"keep_alive" yaml:"keep_alive" validate:"gte=0"`
	Proxy         string        `mapstructure:"proxy" yaml:"proxy,omitempty" validate:"omitempty,url"`
	ProxyUsername string        `mapstructure:"proxy_username" yaml:"proxy_username,omitempty"`
	ProxyPassword string        `mapstructure:"proxy_password" yaml:"proxy_password,omitempty"`
	UserAgent     string        `mapstructure:"user_agent" yaml:"user_agent,omitempty"`
	Token         string        `mapstructure:"token" yaml:"token,omitempty"`
	Headers       []string      `mapstructure:"headers" yaml:"headers,omitempty"`
}

type S3Config struct {
	Profile   string `mapstructure:"profile" yaml:"profile,omitempty"`
	Region    string `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint,omitempty" validate:"omitempty,url"`
	PathStyle bool   `mapstructure:"path_style" yaml:"path_style"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
}

func Default() *Config {
	return &Config{
		Connections:   8,
		ProbeAttempts: 3,
		Breakpoint:    BreakpointConfig{Backend: "file"},
		HTTP: HTTPConfig{
			Timeout:   60 * time.Second,
			KeepAlive: 60 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/rangedl/config.yaml or its platform equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "rangedl", "config.yaml")
}

// Load reads path, or DefaultPath when path is empty. A missing file is not an
// error; defaults and environment still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RANGEDL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
				if explicit {
					return nil, fmt.Errorf("configuration file not found: %s", path)
				}
			} else {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("connections", d.Connections)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("probe_attempts", d.ProbeAttempts)
	v.SetDefault("breakpoint.backend", d.Breakpoint.Backend)
	v.SetDefault("breakpoint.dir", d.Breakpoint.Dir)
	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.keep_alive", d.HTTP.KeepAlive)
	v.SetDefault("http.proxy", "")
	v.SetDefault("http.proxy_username", "")
	v.SetDefault("http.proxy_password", "")
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.token", "")
	v.SetDefault("http.headers", []string{})
	v.SetDefault("s3.profile", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.path_style", false)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("metrics.addr", "")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}

// Save writes cfg as YAML, creating the parent directory.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	// May hold a bearer token or proxy password.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) HTTPClientConfig() utils.HTTPClientConfig {
	return utils.HTTPClientConfig{
		Timeout:        c.HTTP.Timeout,
		KATimeout:      c.HTTP.KeepAlive,
		ProxyURL:       c.HTTP.Proxy,
		ProxyUsername:  c.HTTP.ProxyUsername,
		ProxyPassword:  c.HTTP.ProxyPassword,
		UserAgent:      c.HTTP.UserAgent,
		Token:          c.HTTP.Token,
		Headers:        utils.ParseHeaderArgs(c.HTTP.Headers),
		HighThreadMode: c.Connections > 5,
	}
}

func (c *Config) S3ClientConfig() utils.S3ClientConfig {
	return utils.S3ClientConfig{
		Profile:   c.S3.Profile,
		Region:    c.S3.Region,
		Endpoint:  c.S3.Endpoint,
		PathStyle: c.S3.PathStyle,
	}
}
