package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
)

type memorySession struct {
	data      []byte
	expiresAt time.Time
}

// MemorySessionStore keeps encoded sessions in process memory.
// Records are stored encoded so concurrent requests never share a record.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		now:      time.Now,
	}
}

// SetClock replaces the time source (for testing)
func (s *MemorySessionStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (*models.SessionRecord, error) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || !s.now().Before(entry.expiresAt) {
		return nil, models.ErrSessionNotFound
	}
	return decodeSession(entry.data)
}

func (s *MemorySessionStore) Save(_ context.Context, record *models.SessionRecord, ttl time.Duration) error {
	data, err := encodeSession(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sessions[record.ID] = memorySession{data: data, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// PruneExpired removes expired sessions and returns how many were removed
func (s *MemorySessionStore) PruneExpired(_ context.Context) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, entry := range s.sessions {
		if !now.Before(entry.expiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions, expired or not
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
