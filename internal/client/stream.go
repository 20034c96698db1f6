package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/protocol"
)

// CreateParams describes a session to create
type CreateParams struct {
	ProjectPath  string
	TerminalType string
	Model        string
	Provider     string
	Cols         int
	Rows         int
}

// waiter receives the first message for a session whose type it accepts
type waiter struct {
	types map[string]bool
	ch    chan protocol.Message
}

// Stream is a WebSocket connection to the server
type Stream struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan protocol.Message // by requestId
	waiters  map[string][]*waiter             // by sessionId
	onMsg    func(protocol.Message)
	closeErr error

	done chan struct{}
}

// Dial connects to a server's /stream endpoint
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Stream, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	s := &Stream{
		conn:    conn,
		logger:  logger,
		pending: make(map[string]chan protocol.Message),
		waiters: make(map[string][]*waiter),
		done:    make(chan struct{}),
	}
	go s.readLoop()

	logger.Debug("Connected", zap.String("url", url))
	return s, nil
}

// OnMessage sets the handler for session output and lifecycle events. It
// runs on the read goroutine and must not block.
func (s *Stream) OnMessage(fn func(protocol.Message)) {
	s.mu.Lock()
	s.onMsg = fn
	s.mu.Unlock()
}

// Done is closed when the connection drops
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns why the stream stopped, once Done is closed
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

// Close disconnects. Sessions keep running on the server.
func (s *Stream) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()

	err := s.conn.Close()
	<-s.done
	return err
}

// Create starts a session and waits for the server to confirm it
func (s *Stream) Create(ctx context.Context, p CreateParams) (protocol.SessionSummary, error) {
	requestID := uuid.NewString()
	reply := make(chan protocol.Message, 1)

	s.mu.Lock()
	s.pending[requestID] = reply
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, requestID)
		s.mu.Unlock()
	}()

	msg := protocol.Message{
		Type:         protocol.TypeCreate,
		RequestID:    requestID,
		ProjectPath:  p.ProjectPath,
		TerminalType: p.TerminalType,
		Cols:         p.Cols,
		Rows:         p.Rows,
	}
	if p.Model != "" {
		msg.ModelConfig = &protocol.ModelConfig{Model: p.Model, Provider: p.Provider}
	}
	if err := s.write(msg); err != nil {
		return protocol.SessionSummary{}, err
	}

	select {
	case m := <-reply:
		if m.Type == protocol.TypeError {
			return protocol.SessionSummary{}, &ServerError{Code: m.Code, Message: m.Message}
		}
		if m.Session == nil {
			return protocol.SessionSummary{}, fmt.Errorf("created reply without session")
		}
		return *m.Session, nil
	case <-ctx.Done():
		return protocol.SessionSummary{}, ctx.Err()
	case <-s.done:
		return protocol.SessionSummary{}, ErrClosed
	}
}

// Input sends keystrokes to a session
func (s *Stream) Input(sessionID, data string) error {
	return s.write(protocol.Message{Type: protocol.TypeInput, SessionID: sessionID, Data: data})
}

// Resize changes a session's terminal geometry
func (s *Stream) Resize(sessionID string, cols, rows int) error {
	return s.write(protocol.Message{Type: protocol.TypeResize, SessionID: sessionID, Cols: cols, Rows: rows})
}

// PauseSession pauses output and waits for the acknowledgement
func (s *Stream) PauseSession(ctx context.Context, sessionID string) error {
	_, err := s.request(ctx, protocol.Message{Type: protocol.TypePause, SessionID: sessionID}, protocol.TypePaused)
	return err
}

// ResumeSession resumes output and discards the held-back text
func (s *Stream) ResumeSession(ctx context.Context, sessionID string) error {
	_, err := s.Resume(ctx, sessionID)
	return err
}

// Resume resumes output and returns what accumulated while paused. The
// session is reattached to this stream.
func (s *Stream) Resume(ctx context.Context, sessionID string) (string, error) {
	m, err := s.request(ctx, protocol.Message{Type: protocol.TypeResume, SessionID: sessionID}, protocol.TypeResumed)
	if err != nil {
		return "", err
	}
	return deref(m.Buffer), nil
}

// Attach reattaches a session to this stream and returns its buffered output
func (s *Stream) Attach(ctx context.Context, sessionID string) (string, error) {
	m, err := s.request(ctx, protocol.Message{Type: protocol.TypeBufferRequest, SessionID: sessionID}, protocol.TypeBufferResponse)
	if err != nil {
		return "", err
	}
	return deref(m.Buffer), nil
}

// CloseSession terminates a session and waits for it to close
func (s *Stream) CloseSession(ctx context.Context, sessionID string) error {
	_, err := s.request(ctx, protocol.Message{Type: protocol.TypeClose, SessionID: sessionID}, protocol.TypeClosed)
	return err
}

// request sends msg and waits for a reply of type want, or an error, for the
// same session
func (s *Stream) request(ctx context.Context, msg protocol.Message, want string) (protocol.Message, error) {
	w := &waiter{
		types: map[string]bool{want: true, protocol.TypeError: true},
		ch:    make(chan protocol.Message, 1),
	}
	s.mu.Lock()
	s.waiters[msg.SessionID] = append(s.waiters[msg.SessionID], w)
	s.mu.Unlock()
	defer s.dropWaiter(msg.SessionID, w)

	if err := s.write(msg); err != nil {
		return protocol.Message{}, err
	}

	select {
	case m := <-w.ch:
		if m.Type == protocol.TypeError {
			return m, &ServerError{Code: m.Code, Message: m.Message}
		}
		return m, nil
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	case <-s.done:
		return protocol.Message{}, ErrClosed
	}
}

func (s *Stream) dropWaiter(sessionID string, w *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.waiters[sessionID]
	for i, x := range list {
		if x == w {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.waiters, sessionID)
	} else {
		s.waiters[sessionID] = list
	}
}

func (s *Stream) write(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	return nil
}

func (s *Stream) readLoop() {
	var err error
	defer func() {
		s.mu.Lock()
		s.closeErr = err
		s.mu.Unlock()
		close(s.done)
	}()

	for {
		var data []byte
		if _, data, err = s.conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = nil
			}
			return
		}

		msg, decodeErr := protocol.Decode(data)
		if decodeErr != nil {
			s.logger.Warn("Dropping undecodable frame", zap.Error(decodeErr))
			continue
		}
		s.dispatch(msg)
	}
}

func (s *Stream) dispatch(msg protocol.Message) {
	s.mu.Lock()
	if msg.RequestID != "" {
		if ch, ok := s.pending[msg.RequestID]; ok {
			delete(s.pending, msg.RequestID)
			s.mu.Unlock()
			ch <- msg
			s.deliver(msg)
			return
		}
	}

	var target *waiter
	for _, w := range s.waiters[msg.SessionID] {
		if w.types[msg.Type] {
			target = w
			break
		}
	}
	if target != nil {
		list := s.waiters[msg.SessionID]
		for i, w := range list {
			if w == target {
				s.waiters[msg.SessionID] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if target != nil {
		target.ch <- msg
	}
	if msg.Type != protocol.TypeError || target == nil {
		s.deliver(msg)
	}
}

func (s *Stream) deliver(msg protocol.Message) {
	s.mu.Lock()
	fn := s.onMsg
	s.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
