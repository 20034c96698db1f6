// Package http provides the REST surface of the session orchestrator.
//
// Endpoints:
//   - Health: / and /health
//   - Sessions: GET /sessions?project=, GET /sessions/:id
//   - Buffer: GET /sessions/:id/buffer
//   - Close: DELETE /sessions/:id
//
// Sessions are created and driven over the WebSocket stream; these
// endpoints are for inspection and cleanup.
//
// Example Usage:
//
//	handlers := http.NewHandlers(manager, streams)
//	handlers.Register(router)
package http
