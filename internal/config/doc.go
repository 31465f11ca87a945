// Package config provides centralized configuration management for the
// wallet gateway, layering YAML files under environment variable overrides
// with the OPENMCP_WALLET_ prefix.
package config
