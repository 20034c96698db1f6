package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStore = errors.New("disk I/O error")

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func tripAfter(n uint32) func(Counts) bool {
	return func(c Counts) bool { return c.ConsecutiveFailures >= n }
}

func fail() error    { return errStore }
func succeed() error { return nil }

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		requests      []bool // true = success, false = failure
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			requests:      []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name:          "opens after consecutive failures",
			requests:      []bool{false, false, false},
			expectedState: StateOpen,
		},
		{
			name:          "success resets the failure streak",
			requests:      []bool{false, false, true, false, false},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("test", Settings{ReadyToTrip: tripAfter(3)})

			for _, success := range tt.requests {
				fn := fail
				if success {
					fn = succeed
				}
				_ = breaker.Do(fn)
			}

			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	breaker := New("test", Settings{})

	require.NoError(t, breaker.Do(succeed))

	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)

	assert.ErrorIs(t, breaker.Do(fail), errStore)

	counts = breaker.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerOpenRejectsWithoutCalling(t *testing.T) {
	breaker := New("test", Settings{ReadyToTrip: tripAfter(2)})
	_ = breaker.Do(fail)
	_ = breaker.Do(fail)
	require.Equal(t, StateOpen, breaker.State())

	called := false
	err := breaker.Do(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clock := newManualClock()
	breaker := New("test", Settings{
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: tripAfter(2),
		Now:         clock.Now,
	})

	_ = breaker.Do(fail)
	_ = breaker.Do(fail)
	require.Equal(t, StateOpen, breaker.State())

	clock.Advance(29 * time.Second)
	assert.Equal(t, StateOpen, breaker.State())

	clock.Advance(time.Second)
	assert.Equal(t, StateHalfOpen, breaker.State())

	require.NoError(t, breaker.Do(succeed))
	assert.Equal(t, StateHalfOpen, breaker.State())
	require.NoError(t, breaker.Do(succeed))
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := newManualClock()
	breaker := New("test", Settings{
		Timeout:     time.Second,
		ReadyToTrip: tripAfter(1),
		Now:         clock.Now,
	})

	_ = breaker.Do(fail)
	clock.Advance(time.Second)
	require.Equal(t, StateHalfOpen, breaker.State())

	_ = breaker.Do(fail)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerIsFailure(t *testing.T) {
	errMissing := errors.New("record not found")
	breaker := New("test", Settings{
		ReadyToTrip: tripAfter(1),
		IsFailure:   func(err error) bool { return err != nil && !errors.Is(err, errMissing) },
	})

	assert.ErrorIs(t, breaker.Do(func() error { return errMissing }), errMissing)
	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, uint32(1), breaker.Counts().TotalSuccesses)
}

func TestBreakerIntervalClearsCounts(t *testing.T) {
	clock := newManualClock()
	breaker := New("test", Settings{
		Interval:    time.Minute,
		ReadyToTrip: tripAfter(3),
		Now:         clock.Now,
	})

	_ = breaker.Do(fail)
	_ = breaker.Do(fail)
	clock.Advance(time.Minute)
	_ = breaker.Do(fail)

	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, uint32(1), breaker.Counts().ConsecutiveFailures)
}

func TestBreakerCallbacksAndReset(t *testing.T) {
	clock := newManualClock()
	var transitions []string

	breaker := New("store", Settings{
		Timeout:     time.Second,
		ReadyToTrip: tripAfter(2),
		Now:         clock.Now,
		OnStateChange: func(name string, from State, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	_ = breaker.Do(fail)
	_ = breaker.Do(fail)
	clock.Advance(time.Second)
	_ = breaker.State()
	breaker.Reset()

	assert.Equal(t, []string{
		"store:closed->open",
		"store:open->half-open",
		"store:half-open->closed",
	}, transitions)
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	breaker := New("test", Settings{ReadyToTrip: tripAfter(1)})

	assert.Panics(t, func() {
		_ = breaker.Do(func() error { panic("boom") })
	})
	assert.Equal(t, StateOpen, breaker.State())
}
