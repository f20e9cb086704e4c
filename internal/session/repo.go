package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"classroll/internal/model"
	"classroll/internal/store"
)

const openPerRoomIndex = "class_sessions_one_open_per_room"

const sessionColumns = `id, class_id, room_id, teacher_id, subject_code, name, session_date, status, opened_at, closed_at`

// Repository persists class sessions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (model.ClassSession, error) {
	var (
		s      model.ClassSession
		status string
	)
	err := row.Scan(&s.ID, &s.ClassID, &s.RoomID, &s.TeacherID, &s.SubjectCode, &s.Name, &s.Date, &status, &s.OpenedAt, &s.ClosedAt)
	s.Status = model.SessionStatus(status)
	return s, err
}

// Get returns the session or nil when it does not exist.
func (r *Repository) Get(ctx context.Context, id string) (*model.ClassSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM class_sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// OpenForRoom returns the open session of a room, most recently opened
// first should the partial unique index ever be absent.
func (r *Repository) OpenForRoom(ctx context.Context, roomID string) (*model.ClassSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM class_sessions
		WHERE room_id = $1 AND status = 'open'
		ORDER BY opened_at DESC
		LIMIT 1
	`, roomID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Insert writes a new open session.
func (r *Repository) Insert(ctx context.Context, s model.ClassSession) (model.ClassSession, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO class_sessions (id, class_id, room_id, teacher_id, subject_code, name, session_date, status, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'open', $8)
	`, s.ID, s.ClassID, s.RoomID, s.TeacherID, s.SubjectCode, s.Name, s.Date, s.OpenedAt)
	switch {
	case err == nil:
		s.Status = model.SessionOpen
		return s, nil
	case store.IsUniqueViolation(err, openPerRoomIndex):
		return model.ClassSession{}, ErrRoomBusy
	case store.IsForeignKeyViolation(err):
		return model.ClassSession{}, ErrUnknownReference
	default:
		return model.ClassSession{}, err
	}
}

// CloseIfOpen closes the session when it is still open. It returns the
// updated session and true, or nil and false when nothing was open.
func (r *Repository) CloseIfOpen(ctx context.Context, id string, at time.Time) (*model.ClassSession, bool, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `
		UPDATE class_sessions
		SET status = 'closed', closed_at = $2
		WHERE id = $1 AND status = 'open'
		RETURNING `+sessionColumns, id, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &s, true, nil
}

// ListByClassSubject returns every session of a class for one subject,
// oldest first.
func (r *Repository) ListByClassSubject(ctx context.Context, classID, subjectCode string) ([]model.ClassSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM class_sessions
		WHERE class_id = $1 AND subject_code = $2
		ORDER BY session_date, opened_at
	`, classID, subjectCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.ClassSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
