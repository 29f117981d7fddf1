// Package config loads and validates the agent's YAML configuration.
package config
