package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable marks a store that cannot currently serve requests
	ErrUnavailable = errors.New("session store unavailable")
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("session record not found")
)

// Status is the client-side view of a session
type Status string

const (
	StatusActive       Status = "active"
	StatusPaused       Status = "paused"
	StatusReconnecting Status = "reconnecting"
	StatusClosed       Status = "closed"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusReconnecting, StatusClosed:
		return true
	}
	return false
}

// Record is the persisted metadata of one session
type Record struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ModelID      string    `json:"modelId,omitempty"`
	ProviderID   string    `json:"providerId,omitempty"`
	ProjectPath  string    `json:"projectPath"`
	Status       Status    `json:"status"`
	TerminalType string    `json:"terminalType,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Store is a keyed collection of records
type Store interface {
	// Put inserts or replaces a record
	Put(ctx context.Context, rec Record) error
	// Get returns ErrNotFound for unknown ids
	Get(ctx context.Context, id string) (Record, error)
	// Delete is a no-op for unknown ids
	Delete(ctx context.Context, id string) error
	// ListByProject returns records oldest first; an empty project lists all
	ListByProject(ctx context.Context, projectPath string) ([]Record, error)
	Close() error
}
