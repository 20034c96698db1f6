package client

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned once the stream has disconnected
	ErrClosed = errors.New("stream closed")
	// ErrNotFound is returned for unknown sessions
	ErrNotFound = errors.New("session not found")
)

// ServerError is an error reply from the server
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches ErrNotFound for SESSION_NOT_FOUND replies
func (e *ServerError) Is(target error) bool {
	return target == ErrNotFound && e.Code == "SESSION_NOT_FOUND"
}
