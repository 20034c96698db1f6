// Package protocol defines the WebSocket message protocol spoken between
// terminal clients and the session orchestrator.
//
// Every frame is a single JSON object with a "type" discriminator.
//
// Message Types (Client → Server):
//   - create: {requestId, projectPath, terminalType, modelConfig?, cols?, rows?}
//   - input: {sessionId, data}
//   - resize: {sessionId, cols, rows}
//   - pause / resume / close / buffer-request: {sessionId}
//   - ping: keep-alive
//
// Message Types (Server → Client):
//   - created: {requestId, sessionId, session}
//   - data: {sessionId, data}
//   - closed: {sessionId, exitCode?}
//   - paused: {sessionId}
//   - resumed: {sessionId, buffer}
//   - buffer-response: {sessionId, buffer}
//   - error: {requestId?, sessionId?, code, message}
//   - pong
//
// requestId correlates a create with its eventual created or error reply;
// sessionId correlates everything else.
package protocol
