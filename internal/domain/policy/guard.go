package policy

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/storage"
)

// guardedStore wraps the durable store. Failures trip a breaker so a dead
// store is not hit on every state change, and the first failure is logged.
type guardedStore struct {
	store    storage.Store
	breaker  *resilience.Breaker
	logger   *zap.Logger
	degraded atomic.Bool
}

func newGuardedStore(store storage.Store, logger *zap.Logger) *guardedStore {
	g := &guardedStore{store: store, logger: logger}
	g.breaker = resilience.New("session-store", resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, storage.ErrNotFound)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Debug("Store breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	if store == nil {
		g.markDegraded(storage.ErrUnavailable)
	}
	return g
}

func (g *guardedStore) put(ctx context.Context, rec storage.Record) error {
	return g.do(func() error { return g.store.Put(ctx, rec) })
}

func (g *guardedStore) delete(ctx context.Context, id string) error {
	return g.do(func() error { return g.store.Delete(ctx, id) })
}

func (g *guardedStore) list(ctx context.Context, projectPath string) ([]storage.Record, error) {
	var out []storage.Record
	err := g.do(func() error {
		recs, err := g.store.ListByProject(ctx, projectPath)
		out = recs
		return err
	})
	return out, err
}

func (g *guardedStore) do(fn func() error) error {
	if g.store == nil {
		return storage.ErrUnavailable
	}
	err := g.breaker.Do(fn)
	if err != nil {
		g.markDegraded(err)
		return err
	}
	return nil
}

func (g *guardedStore) markDegraded(err error) {
	if g.degraded.CompareAndSwap(false, true) {
		g.logger.Warn("Session store unavailable, continuing in memory only; state will not survive a restart",
			zap.Error(err))
	}
}
