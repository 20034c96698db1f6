package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/terminal"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/tracing"
)

// REST is a client for the inspection endpoints
type REST struct {
	resty   *resty.Client
	breaker *resilience.Breaker
	logger  *zap.Logger
}

type listResponse struct {
	Sessions []terminal.Info `json:"sessions"`
	Stats    terminal.Stats  `json:"stats"`
}

type bufferResponse struct {
	SessionID string `json:"session_id"`
	Buffer    string `json:"buffer"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewREST creates a client for the server at baseURL
func NewREST(baseURL string, logger *zap.Logger) *REST {
	if logger == nil {
		logger = zap.NewNop()
	}

	restyClient := resty.New()
	restyClient.
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("User-Agent", "termctl/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	breaker := resilience.New("termhub-rest", resilience.Settings{
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		IsFailure: func(err error) bool {
			return !errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Server circuit changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &REST{resty: restyClient, breaker: breaker, logger: logger}
}

// SetRetry configures retry behavior
func (c *REST) SetRetry(maxRetries int, minWait, maxWait time.Duration) {
	c.resty.SetRetryCount(maxRetries).
		SetRetryWaitTime(minWait).
		SetRetryMaxWaitTime(maxWait)
}

// List returns the server's sessions, optionally for one project
func (c *REST) List(ctx context.Context, project string) ([]terminal.Info, terminal.Stats, error) {
	var out listResponse
	err := c.do(ctx, func(req *resty.Request) (*resty.Response, error) {
		if project != "" {
			req.SetQueryParam("project", project)
		}
		return req.SetResult(&out).Get("/sessions")
	})
	return out.Sessions, out.Stats, err
}

// Get returns one session
func (c *REST) Get(ctx context.Context, sessionID string) (*terminal.Info, error) {
	var out terminal.Info
	err := c.do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&out).SetPathParam("id", sessionID).Get("/sessions/{id}")
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Buffer returns a session's retained output
func (c *REST) Buffer(ctx context.Context, sessionID string) (string, error) {
	var out bufferResponse
	err := c.do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&out).SetPathParam("id", sessionID).Get("/sessions/{id}/buffer")
	})
	return out.Buffer, err
}

// Close terminates a session
func (c *REST) Close(ctx context.Context, sessionID string) error {
	return c.do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetPathParam("id", sessionID).Delete("/sessions/{id}")
	})
}

// BreakerState reports whether the server is considered reachable
func (c *REST) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *REST) do(ctx context.Context, call func(*resty.Request) (*resty.Response, error)) error {
	return c.breaker.Do(func() error {
		var apiErr errorResponse
		req := c.resty.R().SetContext(ctx).SetError(&apiErr)
		if traceID := tracing.TraceIDFrom(ctx); traceID != "" {
			req.SetHeader(tracing.TraceHeader, string(traceID))
		}
		resp, err := call(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		switch {
		case resp.StatusCode() == http.StatusNotFound:
			return ErrNotFound
		case resp.IsError():
			msg := apiErr.Error
			if msg == "" {
				msg = resp.Status()
			}
			return fmt.Errorf("server returned %d: %s", resp.StatusCode(), msg)
		}
		return nil
	})
}
