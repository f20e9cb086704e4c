// Package session governs the open/closed lifecycle of class sessions.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"classroll/internal/apperr"
	"classroll/internal/model"
)

var (
	ErrNotFound         = apperr.NotFound("session not found")
	ErrClosed           = apperr.Conflict("session is closed")
	ErrRoomBusy         = apperr.Conflict("room already has an open session")
	ErrUnknownReference = apperr.Validation("class, room or teacher does not exist")
)

// Store is the persistence the manager needs. *Repository implements it.
type Store interface {
	Get(ctx context.Context, id string) (*model.ClassSession, error)
	OpenForRoom(ctx context.Context, roomID string) (*model.ClassSession, error)
	Insert(ctx context.Context, s model.ClassSession) (model.ClassSession, error)
	CloseIfOpen(ctx context.Context, id string, at time.Time) (*model.ClassSession, bool, error)
	ListByClassSubject(ctx context.Context, classID, subjectCode string) ([]model.ClassSession, error)
}

// Manager coordinates session lookups and state transitions.
type Manager struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

// NewManager creates a manager backed by store.
func NewManager(store Store, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, log: log, now: time.Now}
}

// OpenInput describes a session to open.
type OpenInput struct {
	ClassID     string
	RoomID      string
	TeacherID   string
	SubjectCode string
	Name        string
	Date        time.Time
}

// Get returns the session or ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*model.ClassSession, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

// OpenForRoom returns the room's open session, or nil when there is none.
func (m *Manager) OpenForRoom(ctx context.Context, roomID string) (*model.ClassSession, error) {
	return m.store.OpenForRoom(ctx, roomID)
}

// Open starts a new session. A room holds at most one open session.
func (m *Manager) Open(ctx context.Context, in OpenInput) (*model.ClassSession, error) {
	in.SubjectCode = strings.ToUpper(strings.TrimSpace(in.SubjectCode))
	in.Name = strings.TrimSpace(in.Name)
	if err := validateOpen(in); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	date := in.Date
	if date.IsZero() {
		date = now
	}
	s, err := m.store.Insert(ctx, model.ClassSession{
		ID:          uuid.NewString(),
		ClassID:     in.ClassID,
		RoomID:      in.RoomID,
		TeacherID:   in.TeacherID,
		SubjectCode: in.SubjectCode,
		Name:        in.Name,
		Date:        date,
		OpenedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("session opened",
		zap.String("session_id", s.ID),
		zap.String("room_id", s.RoomID),
		zap.String("class_id", s.ClassID),
	)
	return &s, nil
}

func validateOpen(in OpenInput) error {
	switch {
	case in.ClassID == "":
		return apperr.Validation("class is required")
	case in.RoomID == "":
		return apperr.Validation("room is required")
	case in.TeacherID == "":
		return apperr.Validation("teacher is required")
	case len(in.SubjectCode) < 2 || len(in.SubjectCode) > 20:
		return apperr.Validation("subject code must have between 2 and 20 characters")
	case len([]rune(in.Name)) < 3 || len([]rune(in.Name)) > 80:
		return apperr.Validation("name must have between 3 and 80 characters")
	}
	return nil
}

// Close moves the session to closed. Closing a closed session is a no-op
// that returns the stored state; ClosedAt is never rewritten.
func (m *Manager) Close(ctx context.Context, id string) (*model.ClassSession, error) {
	s, closed, err := m.store.CloseIfOpen(ctx, id, m.now().UTC())
	if err != nil {
		return nil, err
	}
	if closed {
		m.log.Info("session closed", zap.String("session_id", id))
		return s, nil
	}
	return m.Get(ctx, id)
}

// ListByClassSubject returns the sessions of a class for one subject.
func (m *Manager) ListByClassSubject(ctx context.Context, classID, subjectCode string) ([]model.ClassSession, error) {
	return m.store.ListByClassSubject(ctx, classID, strings.ToUpper(strings.TrimSpace(subjectCode)))
}
