package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store keeps live sessions in memory and expires idle ones.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Controller
	ttl      time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewStore creates a store whose sessions expire after ttl without reads or
// events.
func NewStore(ttl time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Controller),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// Create starts a new session over patients.
func (s *Store) Create(ctx context.Context, patients PatientSource) (*Controller, error) {
	c, err := newController(ctx, uuid.NewString(), patients, s.logger, s.now)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sessions[c.id] = c
	s.mu.Unlock()
	return c, nil
}

// Get returns the session with the given id. A read counts as activity, so
// clients that only poll keep their session alive.
func (s *Store) Get(id string) (*Controller, error) {
	s.mu.RLock()
	c, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	c.touch(s.now())
	return c, nil
}

// Delete ends a session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions idle for longer than the ttl and returns how many
// were removed.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, c := range s.sessions {
		if c.idle(now) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug().Int("expired", n).Int("live", s.Len()).Msg("idle sessions expired")
			}
		}
	}
}
