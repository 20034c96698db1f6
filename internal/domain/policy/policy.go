package policy

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/storage"
)

var (
	// ErrMaxSessionsReached rejects a record when the project is at its cap
	ErrMaxSessionsReached = errors.New("maximum sessions reached, close one first")
	// ErrDuplicateRecord rejects a second record with the same id
	ErrDuplicateRecord = errors.New("session record already exists")
)

// controllerTimeout bounds each pause/resume request sent to the server
const controllerTimeout = 10 * time.Second

// Controller asks the server to pause or resume live sessions
type Controller interface {
	PauseSession(ctx context.Context, sessionID string) error
	ResumeSession(ctx context.Context, sessionID string) error
}

// Reason says why a record changed
type Reason string

const (
	ReasonCreated      Reason = "created"
	ReasonInactivity   Reason = "inactivity"
	ReasonBackground   Reason = "background"
	ReasonUser         Reason = "user"
	ReasonProjectSwap  Reason = "project-switch"
	ReasonReconnecting Reason = "reconnecting"
	ReasonReconciled   Reason = "reconciled"
	ReasonClosed       Reason = "closed"
)

// Change is delivered to OnChange listeners after a record transitions
type Change struct {
	Record storage.Record
	Reason Reason
}

// Config holds the policy's limits
type Config struct {
	MaxSessions       int
	InactivityTimeout time.Duration
	BackgroundTimeout time.Duration
}

// DefaultConfig returns the stock limits
func DefaultConfig() Config {
	return Config{
		MaxSessions:       5,
		InactivityTimeout: 30 * time.Minute,
		BackgroundTimeout: 10 * time.Minute,
	}
}

// CreateParams describes a session the server has just created
type CreateParams struct {
	ID           string
	Name         string
	ModelID      string
	ProviderID   string
	ProjectPath  string
	TerminalType string
}

// tracked is one record plus the timers that target it. A timer callback
// only acts when its generation still matches, so a stopped timer that
// already fired is harmless.
type tracked struct {
	rec storage.Record

	inactivity    Timer
	inactivityGen uint64
	background    Timer
	backgroundGen uint64

	// pausedByBackground marks records the background timer paused
	pausedByBackground bool
}

// Policy tracks session records and runs their timeout timers
type Policy struct {
	mu      sync.Mutex
	records map[string]*tracked // Protected by mu
	hidden  bool
	project string
	closed  bool

	cfg        Config
	store      *guardedStore
	controller Controller
	clock      Clock
	logger     *zap.Logger
	onChange   func(Change)
}

// New creates a policy. store may be nil, in which case the policy runs in
// memory only; controller may be nil when no server is attached.
func New(cfg Config, store storage.Store, controller Controller, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = def.InactivityTimeout
	}
	if cfg.BackgroundTimeout <= 0 {
		cfg.BackgroundTimeout = def.BackgroundTimeout
	}

	return &Policy{
		records:    make(map[string]*tracked),
		cfg:        cfg,
		store:      newGuardedStore(store, logger),
		controller: controller,
		clock:      realClock{},
		logger:     logger,
	}
}

// WithClock replaces the clock; call before any record exists
func (p *Policy) WithClock(c Clock) *Policy {
	p.clock = c
	return p
}

// WithController attaches the server controller; call before any record
// transition
func (p *Policy) WithController(c Controller) *Policy {
	p.controller = c
	return p
}

// OnChange registers a listener for record transitions
func (p *Policy) OnChange(fn func(Change)) *Policy {
	p.onChange = fn
	return p
}

// Degraded reports whether the durable store has failed
func (p *Policy) Degraded() bool {
	return p.store.degraded.Load()
}

// Load restores every persisted record. Active records resume inactivity
// tracking; nothing is sent to the server.
func (p *Policy) Load(ctx context.Context) int {
	recs, err := p.store.list(ctx, "")
	if err != nil {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	loaded := 0
	for _, rec := range recs {
		if _, ok := p.records[rec.ID]; ok || !rec.Status.Valid() {
			continue
		}
		t := &tracked{rec: rec}
		p.records[rec.ID] = t
		if rec.Status == storage.StatusActive {
			p.armInactivityLocked(t)
		}
		loaded++
	}
	return loaded
}

// Admit reports whether a project has room for another session
func (p *Policy) Admit(projectPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.liveCountLocked(projectPath) >= p.cfg.MaxSessions {
		return ErrMaxSessionsReached
	}
	return nil
}

// CreateRecord persists a new active record and starts inactivity tracking
func (p *Policy) CreateRecord(ctx context.Context, params CreateParams) (storage.Record, error) {
	p.mu.Lock()
	if _, ok := p.records[params.ID]; ok {
		p.mu.Unlock()
		return storage.Record{}, ErrDuplicateRecord
	}
	if p.liveCountLocked(params.ProjectPath) >= p.cfg.MaxSessions {
		p.mu.Unlock()
		return storage.Record{}, ErrMaxSessionsReached
	}

	now := p.clock.Now()
	name := params.Name
	if name == "" {
		name = "Terminal " + params.ID
	}
	t := &tracked{rec: storage.Record{
		ID:           params.ID,
		Name:         name,
		ModelID:      params.ModelID,
		ProviderID:   params.ProviderID,
		ProjectPath:  params.ProjectPath,
		Status:       storage.StatusActive,
		TerminalType: params.TerminalType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}}
	p.records[params.ID] = t
	p.armInactivityLocked(t)
	if p.hidden {
		p.armBackgroundLocked(t)
	}
	rec := t.rec
	p.mu.Unlock()

	p.persist(ctx, rec)
	p.notify(rec, ReasonCreated)
	return rec, nil
}

// RecordActivity resets the inactivity timer of an active record
func (p *Policy) RecordActivity(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.records[id]
	if !ok || t.rec.Status != storage.StatusActive {
		return
	}
	p.armInactivityLocked(t)
}

// PauseRecord pauses an active record on user request
func (p *Policy) PauseRecord(ctx context.Context, id string) bool {
	return p.pause(ctx, id, ReasonUser, 0, false)
}

// ResumeRecord reactivates a paused record and asks the server to resume
func (p *Policy) ResumeRecord(ctx context.Context, id string) bool {
	p.mu.Lock()
	t, ok := p.records[id]
	if !ok || t.rec.Status != storage.StatusPaused {
		p.mu.Unlock()
		return false
	}
	p.cancelTimersLocked(t)
	t.pausedByBackground = false
	t.rec.Status = storage.StatusActive
	t.rec.UpdatedAt = p.clock.Now()
	p.armInactivityLocked(t)
	if p.hidden {
		p.armBackgroundLocked(t)
	}
	rec := t.rec
	p.mu.Unlock()

	p.persist(ctx, rec)
	p.notify(rec, ReasonUser)
	p.requestResume(ctx, id)
	return true
}

// CloseRecord marks a record closed and cancels its timers. The record stays
// in the catalogue until purged.
func (p *Policy) CloseRecord(ctx context.Context, id string) bool {
	p.mu.Lock()
	t, ok := p.records[id]
	if !ok || t.rec.Status == storage.StatusClosed {
		p.mu.Unlock()
		return false
	}
	p.cancelTimersLocked(t)
	t.pausedByBackground = false
	t.rec.Status = storage.StatusClosed
	t.rec.UpdatedAt = p.clock.Now()
	rec := t.rec
	p.mu.Unlock()

	p.persist(ctx, rec)
	p.notify(rec, ReasonClosed)
	return true
}

// PurgeRecord removes a record entirely
func (p *Policy) PurgeRecord(ctx context.Context, id string) bool {
	p.mu.Lock()
	t, ok := p.records[id]
	if ok {
		p.cancelTimersLocked(t)
		delete(p.records, id)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	if err := p.store.delete(ctx, id); err != nil {
		p.logger.Debug("Record delete not persisted", zap.String("session_id", id), zap.Error(err))
	}
	return true
}

// SwitchProject pauses every active record of the previous project
func (p *Policy) SwitchProject(ctx context.Context, projectPath string) int {
	p.mu.Lock()
	previous := p.project
	p.project = projectPath
	var ids []string
	if previous != "" && previous != projectPath {
		for id, t := range p.records {
			if t.rec.ProjectPath == previous && t.rec.Status == storage.StatusActive {
				ids = append(ids, id)
			}
		}
	}
	p.mu.Unlock()

	sort.Strings(ids)
	paused := 0
	for _, id := range ids {
		if p.pause(ctx, id, ReasonProjectSwap, 0, false) {
			paused++
		}
	}
	return paused
}

// MarkReconnecting flags every active or paused record of the current
// project, or of all projects when none is selected, as awaiting a handshake
func (p *Policy) MarkReconnecting(ctx context.Context) int {
	p.mu.Lock()
	var changed []storage.Record
	for _, t := range p.records {
		if p.project != "" && t.rec.ProjectPath != p.project {
			continue
		}
		if t.rec.Status != storage.StatusActive && t.rec.Status != storage.StatusPaused {
			continue
		}
		p.cancelTimersLocked(t)
		t.rec.Status = storage.StatusReconnecting
		t.rec.UpdatedAt = p.clock.Now()
		changed = append(changed, t.rec)
	}
	p.mu.Unlock()

	sort.Slice(changed, func(i, j int) bool { return changed[i].ID < changed[j].ID })
	for _, rec := range changed {
		p.persist(ctx, rec)
		p.notify(rec, ReasonReconnecting)
	}
	return len(changed)
}

// Reconcile settles a reconnecting record with the status the server
// reports. Unknown or closed sessions close the record.
func (p *Policy) Reconcile(ctx context.Context, id string, serverStatus string, exists bool) bool {
	p.mu.Lock()
	t, ok := p.records[id]
	if !ok || t.rec.Status != storage.StatusReconnecting {
		p.mu.Unlock()
		return false
	}

	switch {
	case exists && serverStatus == "active":
		t.rec.Status = storage.StatusActive
		p.armInactivityLocked(t)
		if p.hidden {
			p.armBackgroundLocked(t)
		}
	case exists && serverStatus == "paused":
		t.rec.Status = storage.StatusPaused
	default:
		t.rec.Status = storage.StatusClosed
	}
	t.rec.UpdatedAt = p.clock.Now()
	rec := t.rec
	p.mu.Unlock()

	p.persist(ctx, rec)
	p.notify(rec, ReasonReconciled)
	return true
}

// SetHidden records client visibility. Hiding starts a background timer for
// every active record. Showing cancels them all and re-arms inactivity
// tracking for records the background timer paused; they stay paused.
func (p *Policy) SetHidden(hidden bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hidden == hidden {
		return
	}
	p.hidden = hidden

	for _, t := range p.records {
		if hidden {
			if t.rec.Status == storage.StatusActive {
				p.armBackgroundLocked(t)
			}
			continue
		}
		p.stopBackgroundLocked(t)
		if t.rec.Status == storage.StatusPaused && t.pausedByBackground {
			t.pausedByBackground = false
			p.armInactivityLocked(t)
		}
	}
}

// Project returns the selected project
func (p *Policy) Project() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.project
}

// Get returns a record by id
func (p *Policy) Get(id string) (storage.Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.records[id]
	if !ok {
		return storage.Record{}, false
	}
	return t.rec, true
}

// Records lists the records of a project, or all when empty, oldest first
func (p *Policy) Records(projectPath string) []storage.Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]storage.Record, 0, len(p.records))
	for _, t := range p.records {
		if projectPath == "" || t.rec.ProjectPath == projectPath {
			out = append(out, t.rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// PendingTimers reports whether inactivity and background timers are armed
func (p *Policy) PendingTimers(id string) (inactivity, background bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.records[id]
	if !ok {
		return false, false
	}
	return t.inactivity != nil, t.background != nil
}

// Shutdown cancels every timer; records are left as persisted
func (p *Policy) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for _, t := range p.records {
		p.cancelTimersLocked(t)
	}
}

// pause moves an active record to paused. A non-zero gen ties the call to a
// specific timer firing.
func (p *Policy) pause(ctx context.Context, id string, reason Reason, gen uint64, fromBackground bool) bool {
	p.mu.Lock()
	t, ok := p.records[id]
	if !ok || p.closed || t.rec.Status != storage.StatusActive {
		p.mu.Unlock()
		return false
	}
	if gen != 0 {
		current := t.inactivityGen
		if fromBackground {
			current = t.backgroundGen
		}
		if gen != current {
			p.mu.Unlock()
			return false
		}
	}

	p.cancelTimersLocked(t)
	t.pausedByBackground = reason == ReasonBackground
	t.rec.Status = storage.StatusPaused
	t.rec.UpdatedAt = p.clock.Now()
	rec := t.rec
	p.mu.Unlock()

	p.persist(ctx, rec)
	p.notify(rec, reason)
	p.requestPause(ctx, id)

	p.logger.Info("Session record paused",
		zap.String("session_id", id),
		zap.String("reason", string(reason)))
	return true
}

func (p *Policy) armInactivityLocked(t *tracked) {
	if t.inactivity != nil {
		t.inactivity.Stop()
	}
	t.inactivityGen++
	gen, id := t.inactivityGen, t.rec.ID
	t.inactivity = p.clock.AfterFunc(p.cfg.InactivityTimeout, func() {
		p.fire(id, ReasonInactivity, gen, false)
	})
}

func (p *Policy) armBackgroundLocked(t *tracked) {
	p.stopBackgroundLocked(t)
	t.backgroundGen++
	gen, id := t.backgroundGen, t.rec.ID
	t.background = p.clock.AfterFunc(p.cfg.BackgroundTimeout, func() {
		p.fire(id, ReasonBackground, gen, true)
	})
}

func (p *Policy) stopBackgroundLocked(t *tracked) {
	if t.background != nil {
		t.background.Stop()
		t.background = nil
	}
	t.backgroundGen++
}

func (p *Policy) cancelTimersLocked(t *tracked) {
	if t.inactivity != nil {
		t.inactivity.Stop()
		t.inactivity = nil
	}
	t.inactivityGen++
	p.stopBackgroundLocked(t)
}

func (p *Policy) fire(id string, reason Reason, gen uint64, fromBackground bool) {
	ctx, cancel := context.WithTimeout(context.Background(), controllerTimeout)
	defer cancel()
	p.pause(ctx, id, reason, gen, fromBackground)
}

// liveCountLocked counts records holding a slot in a project
func (p *Policy) liveCountLocked(projectPath string) int {
	n := 0
	for _, t := range p.records {
		if t.rec.ProjectPath != projectPath {
			continue
		}
		switch t.rec.Status {
		case storage.StatusActive, storage.StatusPaused, storage.StatusReconnecting:
			n++
		}
	}
	return n
}

func (p *Policy) persist(ctx context.Context, rec storage.Record) {
	if err := p.store.put(ctx, rec); err != nil {
		p.logger.Debug("Record change not persisted",
			zap.String("session_id", rec.ID),
			zap.String("status", string(rec.Status)),
			zap.Error(err))
	}
}

func (p *Policy) notify(rec storage.Record, reason Reason) {
	if p.onChange == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Change listener panicked", zap.Any("panic", r))
		}
	}()
	p.onChange(Change{Record: rec, Reason: reason})
}

func (p *Policy) requestPause(ctx context.Context, id string) {
	if p.controller == nil {
		return
	}
	if err := p.controller.PauseSession(ctx, id); err != nil {
		p.logger.Warn("Failed to pause server session", zap.String("session_id", id), zap.Error(err))
	}
}

func (p *Policy) requestResume(ctx context.Context, id string) {
	if p.controller == nil {
		return
	}
	if err := p.controller.ResumeSession(ctx, id); err != nil {
		p.logger.Warn("Failed to resume server session", zap.String("session_id", id), zap.Error(err))
	}
}
