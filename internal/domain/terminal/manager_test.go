package terminal

import (
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/providers/pty"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

type fakeDriver struct {
	mu       sync.Mutex
	handlers pty.Handlers
	spawned  []pty.SpawnOptions
	written  map[id.ExecutionID]string
	killed   map[id.ExecutionID]bool
	spawnErr error
	nextPID  int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		written: make(map[id.ExecutionID]string),
		killed:  make(map[id.ExecutionID]bool),
		nextPID: 1000,
	}
}

func (d *fakeDriver) SetHandlers(h pty.Handlers) { d.handlers = h }

func (d *fakeDriver) Spawn(opts pty.SpawnOptions) (*pty.Process, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.spawnErr != nil {
		return nil, d.spawnErr
	}
	d.spawned = append(d.spawned, opts)
	d.nextPID++
	return &pty.Process{ExecutionID: opts.ExecutionID, PID: d.nextPID}, nil
}

func (d *fakeDriver) Write(execID id.ExecutionID, data []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written[execID] += string(data)
	return true
}

func (d *fakeDriver) Resize(execID id.ExecutionID, cols, rows int) error { return nil }

func (d *fakeDriver) Kill(execID id.ExecutionID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.killed[execID] = true
	return true
}

func (d *fakeDriver) emit(execID id.ExecutionID, chunk string) { d.handlers.OnData(execID, chunk) }
func (d *fakeDriver) exit(execID id.ExecutionID, code int)     { d.handlers.OnExit(execID, code) }

type fakeResolver struct{}

func (fakeResolver) Resolve(t TerminalType, mc *ModelConfig) (Command, error) {
	if t == TypeAgent && (mc == nil || mc.Model == "") {
		return Command{}, ErrMissingModelConfig
	}
	return Command{Path: "/bin/sh"}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func setup(t *testing.T, cfg Config) (*Manager, *fakeDriver, *recorder) {
	t.Helper()
	driver := newFakeDriver()
	m := NewManager(driver, fakeResolver{}, cfg, nil)
	rec := &recorder{}
	m.Events().Subscribe(rec.listen)
	return m, driver, rec
}

func shellRequest(t *testing.T) CreateRequest {
	return CreateRequest{ProjectPath: t.TempDir(), TerminalType: TypeShell, Owner: "conn-1", RequestID: "req-1"}
}

func execOf(t *testing.T, m *Manager, sid id.SessionID) id.ExecutionID {
	t.Helper()
	s, ok := m.lookup(sid)
	require.True(t, ok)
	return s.execID
}

func TestCreateSession(t *testing.T) {
	m, driver, rec := setup(t, DefaultConfig())

	info, err := m.CreateSession(shellRequest(t))
	require.NoError(t, err)

	assert.Equal(t, StatusActive, info.Status)
	assert.True(t, id.IsValidPrefixed(info.ID.String(), id.SessionPrefix))
	assert.Equal(t, 80, info.Cols)
	assert.Equal(t, 24, info.Rows)
	assert.NotZero(t, info.PID)

	require.Len(t, driver.spawned, 1)
	assert.Equal(t, "/bin/sh", driver.spawned[0].Command)

	require.Equal(t, []EventKind{EventCreated}, rec.kinds())
	ev := rec.last()
	assert.Equal(t, "conn-1", ev.Owner)
	assert.Equal(t, "req-1", ev.RequestID)
	assert.Equal(t, info.ID, ev.Info.ID)
}

func TestCreateSessionAdmission(t *testing.T) {
	t.Run("missing model config", func(t *testing.T) {
		m, driver, rec := setup(t, DefaultConfig())
		req := shellRequest(t)
		req.TerminalType = TypeAgent

		_, err := m.CreateSession(req)
		assert.ErrorIs(t, err, ErrMissingModelConfig)
		assert.Empty(t, driver.spawned)
		assert.Empty(t, rec.kinds())
		assert.Empty(t, m.List())
	})

	t.Run("unknown terminal type", func(t *testing.T) {
		m, _, _ := setup(t, DefaultConfig())
		req := shellRequest(t)
		req.TerminalType = "teletype"

		_, err := m.CreateSession(req)
		assert.ErrorIs(t, err, ErrUnknownTerminalType)
	})

	t.Run("relative project path", func(t *testing.T) {
		m, _, _ := setup(t, DefaultConfig())
		req := shellRequest(t)
		req.ProjectPath = "relative/dir"

		_, err := m.CreateSession(req)
		assert.ErrorIs(t, err, ErrInvalidProjectPath)
	})
}

func TestMaxSessions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSessions = 2
	m, driver, _ := setup(t, cfg)

	first, err := m.CreateSession(shellRequest(t))
	require.NoError(t, err)
	_, err = m.CreateSession(shellRequest(t))
	require.NoError(t, err)

	_, err = m.CreateSession(shellRequest(t))
	assert.ErrorIs(t, err, ErrMaxSessionsReached)
	assert.Len(t, driver.spawned, 2)

	// A paused session still holds its slot
	require.True(t, m.PauseSession(first.ID))
	_, err = m.CreateSession(shellRequest(t))
	assert.ErrorIs(t, err, ErrMaxSessionsReached)

	require.True(t, m.CloseSession(first.ID))
	_, err = m.CreateSession(shellRequest(t))
	assert.NoError(t, err)
}

func TestMaxSessionsConcurrent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSessions = 3
	m, _, _ := setup(t, cfg)
	dir := t.TempDir()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.CreateSession(CreateRequest{ProjectPath: dir, TerminalType: TypeShell})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, created)
	assert.Len(t, m.List(), 3)
}

func TestSpawnFailureRollsBack(t *testing.T) {
	m, driver, rec := setup(t, DefaultConfig())
	driver.spawnErr = exec.ErrNotFound

	_, err := m.CreateSession(shellRequest(t))
	require.Error(t, err)

	var spawnErr *SpawnError
	require.True(t, errors.As(err, &spawnErr))
	assert.Equal(t, "/bin/sh: command not found in PATH", err.Error())
	assert.Empty(t, m.List())
	assert.Empty(t, rec.kinds())
	assert.Equal(t, 0, m.Stats().Total)
}

func TestDataRouting(t *testing.T) {
	m, driver, rec := setup(t, DefaultConfig())
	info, err := m.CreateSession(shellRequest(t))
	require.NoError(t, err)
	execID := execOf(t, m, info.ID)

	driver.emit(execID, "hello\n")
	ev := rec.last()
	assert.Equal(t, EventData, ev.Kind)
	assert.Equal(t, "hello\n", ev.Data)
	assert.Equal(t, "conn-1", ev.Owner)

	buf, ok := m.Buffer(info.ID)
	require.True(t, ok)
	assert.Equal(t, "hello\n", buf)
}

func TestPauseResume(t *testing.T) {
	m, driver, rec := setup(t, DefaultConfig())
	info, err := m.CreateSession(shellRequest(t))
	require.NoError(t, err)
	execID := execOf(t, m, info.ID)

	require.True(t, m.PauseSession(info.ID))
	assert.False(t, m.PauseSession(info.ID), "second pause is a no-op")

	got, _ := m.Get(info.ID)
	assert.Equal(t, StatusPaused, got.Status)
	assert.NotNil(t, got.PausedAt)

	driver.emit(execID, "line 1\n")
	driver.emit(execID, "line 2\n")
	assert.Equal(t, []EventKind{EventCreated, EventPaused}, rec.kinds(), "no data while paused")

	missed, ok := m.ResumeSession(info.ID)
	require.True(t, ok)
	assert.Equal(t, "line 1\nline 2\n", missed)

	ev := rec.last()
	assert.Equal(t, EventResumed, ev.Kind)
	assert.Equal(t, missed, ev.Buffer)

	driver.emit(execID, "after\n")
	assert.Equal(t, []EventKind{EventCreated, EventPaused, EventResumed, EventData}, rec.kinds())

	got, _ = m.Get(info.ID)
	assert.Equal(t, StatusActive, got.Status)
	assert.Nil(t, got.PausedAt)
	assert.Equal(t, 0, got.PausedLines)

	buf, _ := m.Buffer(info.ID)
	assert.Equal(t, "line 1\nline 2\nafter\n", buf)

	_, ok = m.ResumeSession(info.ID)
	assert.False(t, ok, "resume of an active session is a no-op")
}

func TestInputDroppedWhilePaused(t *testing.T) {
	m, driver, _ := setup(t, DefaultConfig())
	info, err := m.CreateSession(shellRequest(t))
	require.NoError(t, err)
	execID := execOf(t, m, info.ID)

	assert.True(t, m.SendInput(info.ID, "ls\n"))
	require.True(t, m.PauseSession(info.ID))
	assert.False(t, m.SendInput(info.ID, "rm\n"))
	_, _ = m.ResumeSession(info.ID)
	assert.True(t, m.SendInput(info.ID, "pwd\n"))

	assert.Equal(t, "ls\npwd\n", driver.written[execID])
	assert.False(t, m.SendInput("term_missing", "x"))
}

func TestPausedBufferBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferMaxLines = 10
	cfg.PausedBufferRatio = 0.5
	m, driver, _ := setup(t, cfg)
	info, err := m.CreateSession(shellRequest(t))
	require.NoError(t, err)
	execID := execOf(t, m, info.ID)

	require.True(t, m.PauseSession(info.ID))
	for i := 0; i < 20; i++ {
		driver.emit(execID, string(rune('a'+i))+"\n")
	}

	got, _ := m.Get(info.ID)
	assert.Equal(t, 5, got.PausedLines)

	missed, _ := m.ResumeSession(info.ID)
	assert.Equal(t, "p\nq\nr\ns\nt\n", missed)
}

func TestOverflowWarnedOncePerSession(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := DefaultConfig()
	cfg.BufferMaxLines = 4
	driver := newFakeDriver()
	m := NewManager(driver, fakeResolver{}, cfg, zap.New(core))

	var ids []id.SessionID
	for i := 0; i < 2; i++ {
		info, err := m.CreateSession(shellRequest(t))
		require.NoError(t, err)
		ids = append(ids, info.ID)
		execID := execOf(t, m, info.ID)

		for j := 0; j < 10; j++ {
			driver.emit(execID, "live\n")
		}
		require.True(t, m.PauseSession(info.ID))
		for j := 0; j < 10; j++ {
			driver.emit(execID, "paused\n")
		}
		_, ok := m.ResumeSession(info.ID)
		require.True(t, ok)
	}

	warned := logs.FilterMessage("Session output buffer overflow, dropping oldest lines").All()
	require.Len(t, warned, 2)
	assert.Equal(t, ids[0].String(), warned[0].ContextMap()["session_id"])
	assert.Equal(t, ids[1].String(), warned[1].ContextMap()["session_id"])
}

func TestCloseSession(t *testing.T) {
	m, driver, rec := setup(t, DefaultConfig())
	info, err := m.CreateSession(shellRequest(t))
	require.NoError(t, err)
	execID := execOf(t, m, info.ID)

	require.True(t, m.CloseSession(info.ID))
	assert.True(t, driver.killed[execID])
	assert.Equal(t, EventClosed, rec.last().Kind)

	_, ok := m.Get(info.ID)
	assert.False(t, ok)
	assert.False(t, m.CloseSession(info.ID))

	// Late output and exit after close are ignored
	driver.emit(execID, "late")
	driver.exit(execID, 0)
	assert.Equal(t, []EventKind{EventCreated, EventClosed}, rec.kinds())
}

func TestClosedIsTerminal(t *testing.T) {
	m, driver, _ := setup(t, DefaultConfig())
	var scheduled []func()
	m.afterFunc = func(_ time.Duration, f func()) { scheduled = append(scheduled, f) }

	info, err := m.CreateSession(shellRequest(t))
	require.NoError(t, err)
	execID := execOf(t, m, info.ID)

	driver.exit(execID, 3)

	assert.False(t, m.PauseSession(info.ID))
	_, ok := m.ResumeSession(info.ID)
	assert.False(t, ok)
	assert.False(t, m.SendInput(info.ID, "x"))
	assert.False(t, m.ResizeSession(info.ID, 100, 40))
	assert.False(t, m.Rebind(info.ID, "conn-2"))

	got, ok := m.Get(info.ID)
	require.True(t, ok)
	assert.Equal(t, StatusClosed, got.Status)
}

func TestExitRemovalGrace(t *testing.T) {
	m, driver, rec := setup(t, DefaultConfig())
	var delays []time.Duration
	var scheduled []func()
	m.afterFunc = func(d time.Duration, f func()) {
		delays = append(delays, d)
		scheduled = append(scheduled, f)
	}

	info, err := m.CreateSession(shellRequest(t))
	require.NoError(t, err)
	execID := execOf(t, m, info.ID)

	driver.exit(execID, 7)

	ev := rec.last()
	require.Equal(t, EventClosed, ev.Kind)
	require.NotNil(t, ev.ExitCode)
	assert.Equal(t, 7, *ev.ExitCode)

	// Still visible during the grace period
	got, ok := m.Get(info.ID)
	require.True(t, ok)
	assert.Equal(t, StatusClosed, got.Status)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, 7, *got.ExitCode)
	assert.Equal(t, 0, m.Stats().Active)

	require.Len(t, scheduled, 1)
	assert.Equal(t, 5*time.Second, delays[0])
	scheduled[0]()

	_, ok = m.Get(info.ID)
	assert.False(t, ok)
}

func TestCloseDuringGraceKeepsFinalState(t *testing.T) {
	m, driver, _ := setup(t, DefaultConfig())
	var scheduled []func()
	m.afterFunc = func(_ time.Duration, f func()) { scheduled = append(scheduled, f) }

	info, err := m.CreateSession(shellRequest(t))
	require.NoError(t, err)
	driver.exit(execOf(t, m, info.ID), 1)

	assert.False(t, m.CloseSession(info.ID))

	got, ok := m.Get(info.ID)
	require.True(t, ok, "close of an exited session must not cut the grace period short")
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, 1, *got.ExitCode)

	require.Len(t, scheduled, 1)
	scheduled[0]()
	_, ok = m.Get(info.ID)
	assert.False(t, ok)
}

func TestClosedSessionFreesSlotWhileLocked(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSessions = 1
	m, driver, _ := setup(t, cfg)
	m.afterFunc = func(time.Duration, func()) {}

	info, err := m.CreateSession(shellRequest(t))
	require.NoError(t, err)
	driver.exit(execOf(t, m, info.ID), 0)

	// A reader holding the exited session's lock must not make it count
	s, ok := m.lookup(info.ID)
	require.True(t, ok)
	s.mu.Lock()
	_, err = m.CreateSession(shellRequest(t))
	s.mu.Unlock()
	require.NoError(t, err)

	_, err = m.CreateSession(shellRequest(t))
	assert.ErrorIs(t, err, ErrMaxSessionsReached)
}

func TestResize(t *testing.T) {
	m, _, _ := setup(t, DefaultConfig())
	info, err := m.CreateSession(shellRequest(t))
	require.NoError(t, err)

	assert.True(t, m.ResizeSession(info.ID, 120, 40))
	require.True(t, m.PauseSession(info.ID))
	assert.True(t, m.ResizeSession(info.ID, 100, 30), "resize is allowed while paused")
	assert.False(t, m.ResizeSession(info.ID, 0, 30))

	got, _ := m.Get(info.ID)
	assert.Equal(t, 100, got.Cols)
	assert.Equal(t, 30, got.Rows)
}

func TestRebindAndRelease(t *testing.T) {
	m, driver, rec := setup(t, DefaultConfig())
	info, err := m.CreateSession(shellRequest(t))
	require.NoError(t, err)
	execID := execOf(t, m, info.ID)

	require.True(t, m.Rebind(info.ID, "conn-2"))
	driver.emit(execID, "x")
	assert.Equal(t, "conn-2", rec.last().Owner)

	assert.Equal(t, 1, m.Release("conn-2"))
	driver.emit(execID, "y")
	assert.Equal(t, "", rec.last().Owner)
}

func TestResumeFor(t *testing.T) {
	m, driver, rec := setup(t, DefaultConfig())
	info, err := m.CreateSession(shellRequest(t))
	require.NoError(t, err)
	execID := execOf(t, m, info.ID)

	// Rejected resume leaves ownership alone
	_, ok := m.ResumeFor(info.ID, "conn-2")
	assert.False(t, ok)
	driver.emit(execID, "x")
	assert.Equal(t, "conn-1", rec.last().Owner)

	owner, ok := m.Pause(info.ID)
	require.True(t, ok)
	assert.Equal(t, "conn-1", owner)

	_, ok = m.ResumeFor(info.ID, "conn-2")
	require.True(t, ok)
	ev := rec.last()
	assert.Equal(t, EventResumed, ev.Kind)
	assert.Equal(t, "conn-2", ev.Owner)
}

func TestListByProject(t *testing.T) {
	m, _, _ := setup(t, DefaultConfig())
	a, b := t.TempDir(), t.TempDir()

	_, err := m.CreateSession(CreateRequest{ProjectPath: a, TerminalType: TypeShell})
	require.NoError(t, err)
	_, err = m.CreateSession(CreateRequest{ProjectPath: b, TerminalType: TypeShell})
	require.NoError(t, err)
	_, err = m.CreateSession(CreateRequest{ProjectPath: a, TerminalType: TypeShell})
	require.NoError(t, err)

	assert.Len(t, m.List(), 3)
	assert.Len(t, m.ListByProject(a), 2)
	assert.Len(t, m.ListByProject(b), 1)

	list := m.List()
	assert.Less(t, string(list[0].ID), string(list[1].ID))
}

func TestShutdown(t *testing.T) {
	m, driver, _ := setup(t, DefaultConfig())
	for i := 0; i < 3; i++ {
		_, err := m.CreateSession(shellRequest(t))
		require.NoError(t, err)
	}

	m.Shutdown()
	assert.Empty(t, m.List())
	assert.Len(t, driver.killed, 3)
}

func TestManagerMetrics(t *testing.T) {
	metrics := monitoring.NewMetrics()
	driver := newFakeDriver()
	m := NewManager(driver, fakeResolver{}, DefaultConfig(), nil).WithMetrics(metrics)

	info, err := m.CreateSession(shellRequest(t))
	require.NoError(t, err)
	require.True(t, m.PauseSession(info.ID))

	stats := m.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Paused)
	assert.Equal(t, 5, stats.MaxSessions)
}

func TestAttach(t *testing.T) {
	m, driver, rec := setup(t, DefaultConfig())
	info, err := m.CreateSession(shellRequest(t))
	require.NoError(t, err)
	execID := execOf(t, m, info.ID)
	driver.emit(execID, "before\n")

	var snapshot string
	require.True(t, m.Attach(info.ID, "conn-2", func(buf string) { snapshot = buf }))
	assert.Equal(t, "before\n", snapshot)

	driver.emit(execID, "after\n")
	assert.Equal(t, "conn-2", rec.last().Owner)

	assert.False(t, m.Attach("term_missing", "conn-2", func(string) {}))
}
