// Package config handles configuration for flutter-driver.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Tunnel backends for iOS real devices.
const (
	TunnelGoIOS  = "goios"
	TunnelIProxy = "iproxy"
)

// Config represents the driver configuration (flutter-driver.yaml).
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Drivers DriverURLs    `yaml:"drivers"`
	Flutter FlutterConfig `yaml:"flutter"`
	IOS     IOSConfig     `yaml:"ios"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig is the WebDriver front end listen address.
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	BasePath string `yaml:"basePath"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DriverURLs are the platform driver endpoints, one per platformName.
type DriverURLs struct {
	Android string `yaml:"android"`
	IOS     string `yaml:"ios"`
	Windows string `yaml:"windows"`
	Mac     string `yaml:"mac"`
}

// ForPlatform returns the endpoint for a canonical platform name.
func (d DriverURLs) ForPlatform(platform string) string {
	switch platform {
	case "Android":
		return d.Android
	case "iOS":
		return d.IOS
	case "Windows":
		return d.Windows
	case "Mac":
		return d.Mac
	}
	return ""
}

// FlutterConfig holds defaults for talking to the in-app server.
type FlutterConfig struct {
	DevicePort     int             `yaml:"devicePort"`
	Address        string          `yaml:"address"`
	Readiness      ReadinessConfig `yaml:"readiness"`
	CommandTimeout time.Duration   `yaml:"commandTimeout"`
}

// ReadinessConfig bounds the readiness probe loop.
type ReadinessConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Interval    time.Duration `yaml:"interval"`
}

// IOSConfig selects the real device tunnel backend.
type IOSConfig struct {
	Tunnel string `yaml:"tunnel"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 4723},
		Drivers: DriverURLs{
			Android: "http://127.0.0.1:4724",
			IOS:     "http://127.0.0.1:4725",
			Windows: "http://127.0.0.1:4726",
			Mac:     "http://127.0.0.1:4727",
		},
		Flutter: FlutterConfig{
			DevicePort: 9000,
			Address:    "127.0.0.1",
			Readiness: ReadinessConfig{
				MaxAttempts: 20,
				Interval:    500 * time.Millisecond,
			},
			CommandTimeout: 2 * time.Minute,
		},
		IOS: IOSConfig{Tunnel: TunnelGoIOS},
		Log: LogConfig{Level: "info"},
	}
}

// Load loads configuration from a file. Keys absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir looks for flutter-driver.yaml or flutter-driver.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	return LoadFromDirs(dir)
}

// LoadFromDirs loads the first config file found, searching dirs in order.
func LoadFromDirs(dirs ...string) (*Config, error) {
	for _, dir := range dirs {
		for _, name := range configNames {
			configPath := filepath.Join(dir, name)
			if _, err := os.Stat(configPath); err == nil {
				return Load(configPath)
			}
		}
	}

	// No config file found, return defaults
	return Default(), nil
}

// Validate rejects values the driver cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Flutter.DevicePort <= 0 || c.Flutter.DevicePort > 65535 {
		return fmt.Errorf("flutter.devicePort %d out of range", c.Flutter.DevicePort)
	}
	if c.Flutter.Readiness.MaxAttempts < 1 {
		return fmt.Errorf("flutter.readiness.maxAttempts must be at least 1")
	}
	if c.Flutter.Readiness.Interval < 0 {
		return fmt.Errorf("flutter.readiness.interval must not be negative")
	}
	switch c.IOS.Tunnel {
	case TunnelGoIOS, TunnelIProxy:
	default:
		return fmt.Errorf("ios.tunnel must be %q or %q, got %q", TunnelGoIOS, TunnelIProxy, c.IOS.Tunnel)
	}
	return nil
}
