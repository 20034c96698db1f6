// Package pty is the PTY driver: it spawns processes attached to a
// pseudo-terminal and reports their output and exit asynchronously.
//
// Every process is addressed by an execution handle chosen by the caller.
// The driver never interprets terminal content; chunks are delivered as they
// are read, trimmed only so a multi-byte UTF-8 sequence is never split across
// two chunks.
//
// Architecture:
//   - One reader goroutine per process forwards output to Handlers.OnData
//   - One waiter goroutine per process reaps it and calls Handlers.OnExit
//     after the reader has drained
//   - An optional idle watchdog kills processes with no I/O for too long
//
// Example Usage:
//
//	driver := pty.NewDriver(logger)
//	driver.SetHandlers(pty.Handlers{OnData: onData, OnExit: onExit})
//	proc, err := driver.Spawn(pty.SpawnOptions{ExecutionID: execID, Command: "/bin/bash", Cols: 80, Rows: 24})
//	driver.Write(execID, []byte("ls\n"))
//	driver.Kill(execID)
package pty
