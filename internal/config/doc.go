// Package config provides 12-factor configuration for the session
// engine.
//
// Configuration is loaded from environment variables with sensible
// defaults; an optional YAML file can be overlaid for deployments that
// prefer files.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Terminal: shell, Python helper interpreter, default geometry
//   - Console: developer-console history and queue bounds
//   - Resize: debounce, keep-alive, and exit-grace timing
//   - Logging: log level and output format
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Serving on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
package config
