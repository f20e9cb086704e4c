package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"classroll/internal/model"
	"classroll/internal/session"
	"classroll/internal/store"
)

const attendanceColumns = `id, session_id, class_id, student_id, status, check_in_time, recorded_by, created_at`

// Repository persists attendance rows in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes one attendance row. The session row is share-locked and
// its status re-read inside the transaction, so an insert racing a close
// either commits before the close or sees the session closed. The
// (session, student) unique constraint turns a second insert into
// ErrAlreadyMarked instead of an overwrite.
func (r *Repository) Insert(ctx context.Context, a model.Attendance) (model.Attendance, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	err := store.RunInTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM class_sessions WHERE id = $1 FOR SHARE`, a.SessionID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return session.ErrNotFound
		}
		if err != nil {
			return err
		}
		if model.SessionStatus(status) != model.SessionOpen {
			return session.ErrClosed
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO attendances (id, session_id, class_id, student_id, status, check_in_time, recorded_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT ON CONSTRAINT attendances_session_student_key DO NOTHING
			RETURNING created_at
		`, a.ID, a.SessionID, a.ClassID, a.StudentID, string(a.Status), a.CheckInTime, a.RecordedBy).Scan(&a.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAlreadyMarked
		}
		if store.IsForeignKeyViolation(err) {
			return ErrUnknownReference
		}
		return err
	})
	if err != nil {
		return model.Attendance{}, err
	}
	return a, nil
}

// ByID returns the row or nil.
func (r *Repository) ByID(ctx context.Context, id string) (*model.Attendance, error) {
	a, err := scanAttendance(r.db.QueryRowContext(ctx, `SELECT `+attendanceColumns+` FROM attendances WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// lockOpenSessionOf share-locks the session owning the row and fails
// unless it is still open.
func lockOpenSessionOf(ctx context.Context, tx *sql.Tx, id string) error {
	var status string
	err := tx.QueryRowContext(ctx, `
		SELECT s.status
		FROM attendances a
		JOIN class_sessions s ON s.id = a.session_id
		WHERE a.id = $1
		FOR SHARE OF s
	`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAttendanceNotFound
	}
	if err != nil {
		return err
	}
	if model.SessionStatus(status) != model.SessionOpen {
		return session.ErrClosed
	}
	return nil
}

// UpdateStatus rewrites the status and check-in time of a row whose
// session is still open.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status model.AttendanceStatus, checkIn *time.Time) (model.Attendance, error) {
	var a model.Attendance
	err := store.RunInTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		if err := lockOpenSessionOf(ctx, tx, id); err != nil {
			return err
		}
		var err error
		a, err = scanAttendance(tx.QueryRowContext(ctx, `
			UPDATE attendances SET status = $2, check_in_time = $3
			WHERE id = $1
			RETURNING `+attendanceColumns, id, string(status), checkIn))
		return err
	})
	if err != nil {
		return model.Attendance{}, err
	}
	return a, nil
}

// Delete removes a row whose session is still open.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return store.RunInTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		if err := lockOpenSessionOf(ctx, tx, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM attendances WHERE id = $1`, id)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendance(rows rowScanner) (model.Attendance, error) {
	var (
		a      model.Attendance
		status string
	)
	err := rows.Scan(&a.ID, &a.SessionID, &a.ClassID, &a.StudentID, &status, &a.CheckInTime, &a.RecordedBy, &a.CreatedAt)
	a.Status = model.AttendanceStatus(status)
	return a, err
}

func (r *Repository) list(ctx context.Context, where string, args ...any) ([]model.Attendance, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+attendanceColumns+` FROM attendances WHERE `+where+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ListBySession returns the rows of one session in recording order.
func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]model.Attendance, error) {
	return r.list(ctx, `session_id = $1`, sessionID)
}

// ListByStudent returns every row of a student.
func (r *Repository) ListByStudent(ctx context.Context, studentID string) ([]model.Attendance, error) {
	return r.list(ctx, `student_id = $1`, studentID)
}

// ListByClass returns every row of a class.
func (r *Repository) ListByClass(ctx context.Context, classID string) ([]model.Attendance, error) {
	return r.list(ctx, `class_id = $1`, classID)
}

// ListForSessions returns the rows of several sessions at once.
func (r *Repository) ListForSessions(ctx context.Context, sessionIDs []string) ([]model.Attendance, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	return r.list(ctx, `session_id = ANY($1)`, sessionIDs)
}
