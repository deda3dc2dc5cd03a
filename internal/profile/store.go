// Package profile maintains the per-session client profile: the evolving
// record of inferred facts about a visitor. All mutation goes through
// Merge; profiles are never replaced wholesale.
package profile

import (
	"sync"
	"time"

	"github.com/lumenworks/saleschat/internal/domain"
)

// Store is an in-memory keyed map from session id to client profile.
// Cross-session isolation is a hard requirement: Get returns a copy, so a
// caller can never mutate the stored profile of another session.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]*domain.ClientProfile
}

// NewStore creates an empty profile store.
func NewStore() *Store {
	return &Store{
		profiles: make(map[string]*domain.ClientProfile),
	}
}

// Get returns a copy of the profile for a session, creating an empty one
// if the session is new.
func (s *Store) Get(sessionID string) domain.ClientProfile {
	s.mu.RLock()
	p, ok := s.profiles[sessionID]
	s.mu.RUnlock()
	if !ok {
		return domain.ClientProfile{SessionID: sessionID}
	}
	return clone(p)
}

// Merge folds signals into the stored profile for a session and returns a
// copy of the result. The profile is created on first merge.
func (s *Store) Merge(sessionID string, signals domain.ProfileSignals) domain.ClientProfile {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[sessionID]
	if !ok {
		p = &domain.ClientProfile{SessionID: sessionID}
		s.profiles[sessionID] = p
	}
	p.Merge(signals)
	p.UpdatedAt = time.Now()

	return clone(p)
}

// Delete removes a session's profile.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, sessionID)
}

func clone(p *domain.ClientProfile) domain.ClientProfile {
	out := *p
	if len(p.PainPoints) > 0 {
		out.PainPoints = append([]string(nil), p.PainPoints...)
	}
	return out
}
