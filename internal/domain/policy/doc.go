// Package policy keeps the client-side catalogue of terminal sessions and
// decides when a session should be paused.
//
// Each active record carries two independent timers: an inactivity timer,
// reset by RecordActivity, and a background timer that only runs while the
// client is hidden. Either one expiring moves the record to paused and asks
// the server to pause the live session. Resumption is always explicit.
//
// Records are persisted through a storage.Store guarded by a circuit
// breaker. When the store fails the policy keeps working from memory and
// reports the degradation once.
package policy
