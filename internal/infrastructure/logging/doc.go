// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Every entry carries the service name and process id. The level is atomic:
// SetLevel or the LevelHandler endpoint change it for every derived logger.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "8080"))
//	logger.Error("Failed to open sandbox", zap.Error(err))
package logging
