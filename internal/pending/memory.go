package pending

import (
	"context"
	"sync"
	"time"

	"classroll/internal/model"
)

// MemoryStore is an in-process Store for local runs and tests. It keeps
// the same whole-key TTL semantics as RedisStore.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	rooms map[string]*roomList
}

type roomList struct {
	entries   []model.PendingAttendance
	expiresAt time.Time
}

// NewMemoryStore builds a store; ttl <= 0 falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, rooms: make(map[string]*roomList)}
}

func (s *MemoryStore) Push(_ context.Context, roomID, studentID string) (model.PendingAttendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	list := s.live(roomID, now)
	if list == nil {
		list = &roomList{}
		s.rooms[roomID] = list
	}
	p := model.PendingAttendance{StudentID: studentID, RoomID: roomID, Timestamp: now.UTC()}
	list.entries = append(list.entries, p)
	list.expiresAt = now.Add(s.ttl)
	return p, nil
}

func (s *MemoryStore) ListByRoom(_ context.Context, roomID string) ([]model.PendingAttendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.live(roomID, s.now())
	if list == nil {
		return []model.PendingAttendance{}, nil
	}
	out := make([]model.PendingAttendance, len(list.entries))
	copy(out, list.entries)
	return out, nil
}

func (s *MemoryStore) ClearRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	return nil
}

// live returns the room's list, dropping it if expired. Caller holds mu.
func (s *MemoryStore) live(roomID string, now time.Time) *roomList {
	list, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	if !now.Before(list.expiresAt) {
		delete(s.rooms, roomID)
		return nil
	}
	return list
}
