package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lumenworks/saleschat/internal/domain"
	"github.com/lumenworks/saleschat/internal/storage"
)

// Store is an in-memory implementation of SessionStore, used for tests and
// storage.type=memory deployments.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*storage.SessionRecord
	leads    []*storage.LeadRecord
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		sessions: make(map[string]*storage.SessionRecord),
	}
}

func (s *Store) CreateSession(ctx context.Context, rec *storage.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[rec.ID]; exists {
		return fmt.Errorf("session %s already exists", rec.ID)
	}

	now := time.Now()
	cp := *rec
	cp.CreatedAt = now
	cp.LastActivity = now
	if cp.State == "" {
		cp.State = domain.StateNew
	}

	s.sessions[rec.ID] = &cp
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*storage.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.sessions[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	cp := *rec
	cp.Turns = append([]domain.Turn(nil), rec.Turns...)
	if len(rec.Profile.PainPoints) > 0 {
		cp.Profile.PainPoints = append([]string(nil), rec.Profile.PainPoints...)
	}
	return &cp, nil
}

func (s *Store) AppendTurn(ctx context.Context, sessionID string, turn domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.sessions[sessionID]
	if !exists {
		return storage.ErrNotFound
	}

	rec.Turns = append(rec.Turns, turn)
	rec.LastActivity = time.Now()
	return nil
}

func (s *Store) UpdateState(ctx context.Context, sessionID string, state domain.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.sessions[sessionID]
	if !exists {
		return storage.ErrNotFound
	}

	rec.State = state
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, sessionID string, profile domain.ClientProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.sessions[sessionID]
	if !exists {
		return storage.ErrNotFound
	}

	rec.Profile = profile
	return nil
}

func (s *Store) ListIdleSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, rec := range s.sessions {
		if rec.State != domain.StateClosed && rec.LastActivity.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) SaveLead(ctx context.Context, lead *storage.LeadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *lead
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.leads = append(s.leads, &cp)
	return nil
}

// SetLastActivity rewrites a session's activity timestamp. Test helper.
func (s *Store) SetLastActivity(sessionID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.sessions[sessionID]; ok {
		rec.LastActivity = at
	}
}

// Leads returns stored leads, newest last. Test helper.
func (s *Store) Leads() []*storage.LeadRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*storage.LeadRecord(nil), s.leads...)
}

func (s *Store) Close() error {
	return nil
}
