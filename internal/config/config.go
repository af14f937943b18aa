package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultDiscoveryPort is the well-known airOS discovery broadcast port.
const DefaultDiscoveryPort = 10001

// Config represents the complete service configuration
type Config struct {
	Listener ListenerConfig `yaml:"listener"`
	HTTP     HTTPConfig     `yaml:"http"`
	Registry RegistryConfig `yaml:"registry"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ListenerConfig contains UDP discovery listener configuration
type ListenerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bind_address"`
	BufferSize   int    `yaml:"buffer_size"`
	QueueSize    int    `yaml:"queue_size"`
	Workers      int    `yaml:"workers"`
	ScanDuration int    `yaml:"scan_duration"` // seconds, 0 = listen until stopped
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// RegistryConfig contains device registry configuration
type RegistryConfig struct {
	DeviceTimeout   int `yaml:"device_timeout"`   // seconds
	CleanupInterval int `yaml:"cleanup_interval"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Listener: ListenerConfig{
			Port:        DefaultDiscoveryPort,
			BindAddress: "0.0.0.0",
			BufferSize:  65536,
			QueueSize:   256,
			Workers:     2,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Registry: RegistryConfig{
			DeviceTimeout:   300,
			CleanupInterval: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Listener.Validate(); err != nil {
		return fmt.Errorf("listener config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates listener configuration
func (l *ListenerConfig) Validate() error {
	if l.Port < 1 || l.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", l.Port)
	}

	if l.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if l.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", l.BufferSize)
	}

	if l.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", l.QueueSize)
	}

	if l.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", l.Workers)
	}

	if l.ScanDuration < 0 {
		return fmt.Errorf("scan_duration cannot be negative, got %d", l.ScanDuration)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates registry configuration
func (r *RegistryConfig) Validate() error {
	if r.DeviceTimeout < 1 {
		return fmt.Errorf("device_timeout must be at least 1 second, got %d", r.DeviceTimeout)
	}

	if r.CleanupInterval < 1 {
		return fmt.Errorf("cleanup_interval must be at least 1 second, got %d", r.CleanupInterval)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be one of debug, info, warn, error; got %q", l.Level)
	}

	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be text or json, got %q", l.Format)
	}

	return nil
}

// GetScanDuration returns the scan window as a duration; zero means
// listen until stopped.
func (l *ListenerConfig) GetScanDuration() time.Duration {
	return time.Duration(l.ScanDuration) * time.Second
}

// GetDeviceTimeout returns the device expiry timeout as a duration
func (r *RegistryConfig) GetDeviceTimeout() time.Duration {
	return time.Duration(r.DeviceTimeout) * time.Second
}

// GetCleanupInterval returns the registry cleanup interval as a duration
func (r *RegistryConfig) GetCleanupInterval() time.Duration {
	return time.Duration(r.CleanupInterval) * time.Second
}
