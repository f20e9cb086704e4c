// Package pending holds facial detections that arrived while no session
// was open in the room. Entries live in one list per room whose expiry is
// reset on every push: a fresh detection extends the lifetime of older,
// unconfirmed entries in the same room. There is no per-entry expiry.
package pending

import (
	"context"
	"time"

	"classroll/internal/model"
)

// DefaultTTL is how long a room's list survives after its last push.
const DefaultTTL = 2 * time.Hour

// Store is the transient per-room queue of pre-attendances.
type Store interface {
	// Push appends a detection and resets the room's expiry.
	Push(ctx context.Context, roomID, studentID string) (model.PendingAttendance, error)
	// ListByRoom returns the room's entries in insertion order.
	ListByRoom(ctx context.Context, roomID string) ([]model.PendingAttendance, error)
	// ClearRoom drops the room's whole list.
	ClearRoom(ctx context.Context, roomID string) error
}

func roomKey(roomID string) string {
	return "pre_attendance:room:" + roomID
}
