// Package middleware holds the gin middleware in front of the termhub REST
// surface: CORS, per-IP rate limiting and request logging. The /stream
// WebSocket route sits outside the rate limiter and meters input per
// connection instead.
package middleware
