// Package terminal is the session orchestrator: it owns the live set of
// terminal sessions, binds each one to a PTY process, buffers its output and
// publishes lifecycle events.
//
// State machine:
//
//	creating → active ⇄ paused
//	active | paused → closed
//
// Nothing re-enters from closed and nothing skips creating. Operations that
// do not apply to the current state return false (or an empty result) and
// leave the session untouched.
//
// Buffering:
//   - Live output is retained in a line buffer bounded by line and byte caps
//   - While paused, output goes to a smaller paused buffer instead of being
//     forwarded; resume hands that text back and clears it
//   - Trimming always discards the oldest lines
//
// Events (see Bus): created, data, paused, resumed, closed. The message
// router is expected to be the only subscriber.
//
// Example Usage:
//
//	m := terminal.NewManager(driver, resolver, terminal.DefaultConfig(), logger)
//	info, err := m.CreateSession(terminal.CreateRequest{ProjectPath: "/src/app", TerminalType: terminal.TypeShell})
//	m.SendInput(info.ID, "ls\n")
//	m.PauseSession(info.ID)
//	missed, ok := m.ResumeSession(info.ID)
package terminal
