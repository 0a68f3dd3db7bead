// Package middleware provides HTTP middleware for the fs-proxy server.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing, exposing range and trace headers
//   - RateLimit: Per-IP token bucket rate limiting with idle client cleanup
//   - GlobalRateLimit: One token bucket shared by all clients
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
