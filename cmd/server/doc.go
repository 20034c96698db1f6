// Command server runs termhub, the terminal session server.
//
// It hosts PTY-backed sessions, either plain shells or agent CLIs, for a
// client UI. Sessions are driven over the /stream WebSocket and can be
// listed, read or closed over REST (/sessions, /sessions/:id,
// /sessions/:id/buffer). /health, /metrics and /debug/log-level cover
// operations.
//
// Settings come from the environment (see package config); the flags below
// override them:
//
//	server -port 8000 -max-sessions 5 -agents ~/.termctl/agents.yaml
//	server -dev    # console logs
//
// SIGINT or SIGTERM closes every session and kills its process before exit.
package main
