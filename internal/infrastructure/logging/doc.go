// Package logging builds the zap loggers used by the termhub server and the
// termctl CLI.
//
// The server logs JSON to stdout; with LOG_DEV set it switches to a colored
// console encoder. The CLI always logs to stderr so its stdout can be piped.
// Each subsystem takes a named child via Component, which shows up as the
// "component" field:
//
//	logger, err := logging.New(logging.ServerConfig("info", false))
//	mgr := terminal.NewManager(driver, resolver, cfg, logger.Component(logging.Orchestrator))
//
// The level is atomic. LevelHandler exposes it over HTTP for runtime changes.
package logging
