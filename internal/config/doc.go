// Package config provides configuration loading and validation for the call
// translation service. It handles YAML-based configuration with defaults and
// per-section struct validation.
package config
