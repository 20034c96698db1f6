/*
Package resilience provides the circuit breaker termhub puts in front of
dependencies that can go away: the on-disk session catalogue and, on the
client side, the termhub server's REST surface.

Closed passes calls through and counts failures. Once ReadyToTrip says so
the breaker opens and rejects calls with ErrCircuitOpen until Timeout
elapses. It then goes half-open and admits MaxRequests trial calls; a
failure reopens it, enough successes close it.

IsFailure lets callers exclude expected errors, e.g. a 404 for a session
that has already exited says nothing about the server's health.

	breaker := resilience.New("session-store", resilience.Settings{
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 3 },
	})
	err := breaker.Do(func() error { return store.Put(ctx, rec) })
*/
package resilience
