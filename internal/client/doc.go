// Package client talks to a terminal session server.
//
// Stream speaks the WebSocket session protocol: it creates sessions, sends
// input and waits for pause, resume and close acknowledgements. It satisfies
// policy.Controller, so the policy layer can drive live sessions through it.
//
// REST wraps the inspection endpoints with retries and a circuit breaker.
//
// Example Usage:
//
//	stream, err := client.Dial(ctx, "ws://localhost:8000/stream", logger)
//	summary, err := stream.Create(ctx, client.CreateParams{ProjectPath: dir, TerminalType: "plain-shell"})
//	stream.OnMessage(func(msg protocol.Message) { ... })
package client
