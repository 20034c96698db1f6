// Package config loads termhub settings from the environment with envconfig.
//
// Config is the server's view: listen address, logging, REST rate limits and
// the orchestrator's session limits. PolicyConfig is termctl's view: the
// catalogue location and the inactivity and background timeouts. Both read
// MAX_SESSIONS so client and server agree on the cap.
//
//	PORT, HOST                         listen address
//	LOG_LEVEL, LOG_DEV                 logging
//	RATE_LIMIT_RPS, _BURST, _ENABLED   per-IP REST limit
//	MAX_SESSIONS                       session cap (server and client)
//	BUFFER_MAX_LINES, BUFFER_MAX_BYTES, PAUSED_BUFFER_RATIO
//	SESSION_REMOVAL_GRACE, PROCESS_IDLE_TIMEOUT
//	DEFAULT_SHELL, AGENT_CONFIG, ALLOWED_PROJECT_ROOTS
//	INACTIVITY_TIMEOUT, BACKGROUND_TIMEOUT, TERMCTL_STORE
//
// Invalid session settings fail Load; LoadOrDefault falls back to Default.
package config
