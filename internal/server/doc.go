// Package server provides HTTP server setup and initialization.
//
// This package orchestrates all components:
//   - HTTP routing with Gin framework
//   - Middleware stack (CORS, metrics, recovery)
//   - The WebSocket session bridge
//   - The process-wide developer console, fed by the host logger
//   - Prometheus metrics exposition
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Create the console store and hook the logger into it
//  3. Build the platform-appropriate session factory
//  4. Setup HTTP routes and middleware
//  5. Start HTTP server
//  6. Graceful shutdown on signal
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.New(cfg)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
