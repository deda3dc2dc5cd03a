// Package storage defines the persistence contracts for chat sessions,
// profile snapshots, and captured leads.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/lumenworks/saleschat/internal/domain"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// SessionRecord is the durable form of a chat session.
type SessionRecord struct {
	ID           string
	State        domain.SessionState
	Turns        []domain.Turn
	Profile      domain.ClientProfile
	CreatedAt    time.Time
	LastActivity time.Time
}

// LeadRecord is a captured lead with its originating session.
type LeadRecord struct {
	ID        string
	SessionID string
	Payload   domain.LeadPayload
	CreatedAt time.Time
}

// SessionStore persists sessions, turns, profile snapshots, and leads.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	CreateSession(ctx context.Context, rec *SessionRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	AppendTurn(ctx context.Context, sessionID string, turn domain.Turn) error
	UpdateState(ctx context.Context, sessionID string, state domain.SessionState) error
	UpdateProfile(ctx context.Context, sessionID string, profile domain.ClientProfile) error

	// ListIdleSessions returns ids of non-closed sessions with no
	// activity since the cutoff, for the inactivity sweep.
	ListIdleSessions(ctx context.Context, cutoff time.Time) ([]string, error)

	SaveLead(ctx context.Context, lead *LeadRecord) error

	Close() error
}
