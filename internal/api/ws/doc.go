// Package ws provides the WebSocket surface of the session orchestrator.
//
// Each connection may create and drive any number of sessions. Sessions are
// owned by the connection that created or last reattached them, and lifecycle
// events are routed only to that owner.
//
// Features:
//   - One text frame per protocol message (see package protocol)
//   - Non-blocking event routing through a per-connection send queue
//   - Per-connection input rate limiting
//   - Sessions survive a dropped connection and can be reattached with
//     buffer-request or resume
//
// Example Usage:
//
//	handler := ws.NewHandler(manager, ws.DefaultConfig(), logger)
//	router.GET("/stream", handler.HandleConnection)
package ws
