// Package config provides configuration loading and validation for the
// discovery service. It handles YAML-based configuration with per-section
// validation and sensible defaults for running without a config file.
package config
