package ride

import (
	"sync"

	"cabbot/internal/models"
)

// Session owns the booking snapshot for one tracked ride. The snapshot is
// authoritative server state: it is only ever swapped wholesale, never
// patched field by field, so a response that omits a field drops it.
type Session struct {
	role models.Role

	mu   sync.RWMutex
	ride *models.Ride
}

func NewSession(role models.Role) *Session {
	return &Session{role: role}
}

func (s *Session) Role() models.Role {
	return s.role
}

// Current returns the held snapshot, nil before the first successful fetch.
func (s *Session) Current() *models.Ride {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ride
}

// Replace swaps the snapshot for the server's latest and returns the
// previous one so callers can detect status transitions.
func (s *Session) Replace(ride *models.Ride) (prev *models.Ride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev = s.ride
	s.ride = ride
	return prev
}
