package pending

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"classroll/internal/model"
)

// RedisStore keeps each room's list under a Redis key with a whole-key TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore builds a store; ttl <= 0 falls back to DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

type entry struct {
	StudentID string    `json:"student_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Push appends and refreshes the expiry in a single MULTI/EXEC so two
// concurrent detections in the same room cannot interleave.
func (s *RedisStore) Push(ctx context.Context, roomID, studentID string) (model.PendingAttendance, error) {
	e := entry{StudentID: studentID, Timestamp: s.now().UTC()}
	payload, err := json.Marshal(e)
	if err != nil {
		return model.PendingAttendance{}, err
	}
	key := roomKey(roomID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return model.PendingAttendance{}, fmt.Errorf("pending push %s: %w", key, err)
	}
	return model.PendingAttendance{StudentID: studentID, RoomID: roomID, Timestamp: e.Timestamp}, nil
}

// ListByRoom reads the full list. Undecodable items are skipped.
func (s *RedisStore) ListByRoom(ctx context.Context, roomID string) ([]model.PendingAttendance, error) {
	key := roomKey(roomID)
	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("pending list %s: %w", key, err)
	}
	out := make([]model.PendingAttendance, 0, len(raw))
	for _, item := range raw {
		var e entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		out = append(out, model.PendingAttendance{StudentID: e.StudentID, RoomID: roomID, Timestamp: e.Timestamp})
	}
	return out, nil
}

// ClearRoom deletes the room's key.
func (s *RedisStore) ClearRoom(ctx context.Context, roomID string) error {
	if err := s.client.Del(ctx, roomKey(roomID)).Err(); err != nil {
		return fmt.Errorf("pending clear %s: %w", roomKey(roomID), err)
	}
	return nil
}
