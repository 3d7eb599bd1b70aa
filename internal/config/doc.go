// Package config loads, normalizes, and validates TOML configuration for
// the pipeline, external service adapters, and the read API.
package config
