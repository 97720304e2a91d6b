package session

import (
	"context"

	"github.com/smallbiznis/billingportal/internal/cache"
	"github.com/smallbiznis/billingportal/internal/clock"
)

// MemoryStore keeps sessions in process. Sessions are lost on restart.
type MemoryStore struct {
	clock clock.Clock
	items *cache.TTLCache[string, Session]
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.System()
	}
	return &MemoryStore{clock: clk, items: cache.NewTTLCache[string, Session](clk)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s, ok := m.items.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	s.Flashes = append([]Flash(nil), s.Flashes...)
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	ttl := s.ExpiresAt.Sub(m.clock.Now())
	if ttl <= 0 {
		m.items.Delete(s.ID)
		return ErrExpired
	}
	stored := *s
	stored.Flashes = append([]Flash(nil), s.Flashes...)
	m.items.Set(s.ID, stored, ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.items.Delete(id)
	return nil
}

// Sweep drops expired sessions.
func (m *MemoryStore) Sweep() int {
	return m.items.Sweep()
}
