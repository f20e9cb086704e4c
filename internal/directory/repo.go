// Package directory reads the school's reference data: students, their
// classes and the teachers bound to each class.
package directory

import (
	"context"
	"database/sql"
	"errors"

	"classroll/internal/model"
)

// Repository reads students and class membership from Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const studentColumns = `id, name, registration, facial_id, is_active`

func (r *Repository) studentWhere(ctx context.Context, where string, arg any) (*model.Student, error) {
	var s model.Student
	err := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE `+where, arg).
		Scan(&s.ID, &s.Name, &s.Registration, &s.FacialID, &s.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT class_id FROM student_classes WHERE student_id = $1 ORDER BY class_id`, s.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		s.ClassIDs = append(s.ClassIDs, id)
	}
	return &s, rows.Err()
}

// StudentByFacialID returns the student enrolled with facialID, active or
// not, or nil when there is none.
func (r *Repository) StudentByFacialID(ctx context.Context, facialID string) (*model.Student, error) {
	return r.studentWhere(ctx, `facial_id = $1`, facialID)
}

// StudentByID returns the student or nil.
func (r *Repository) StudentByID(ctx context.Context, id string) (*model.Student, error) {
	return r.studentWhere(ctx, `id = $1`, id)
}

// RosterOfClass returns the active students of a class ordered by name.
func (r *Repository) RosterOfClass(ctx context.Context, classID string) ([]model.Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.registration, s.facial_id, s.is_active
		FROM students s
		JOIN student_classes sc ON sc.student_id = s.id
		WHERE sc.class_id = $1 AND s.is_active
		ORDER BY s.name, s.id
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.Student
	for rows.Next() {
		var s model.Student
		if err := rows.Scan(&s.ID, &s.Name, &s.Registration, &s.FacialID, &s.Active); err != nil {
			return nil, err
		}
		s.ClassIDs = []string{classID}
		res = append(res, s)
	}
	return res, rows.Err()
}

// TeachersOfClass returns the user ids of the class's teachers.
func (r *Repository) TeachersOfClass(ctx context.Context, classID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT teacher_id FROM class_teachers WHERE class_id = $1`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClassExists reports whether the class is known.
func (r *Repository) ClassExists(ctx context.Context, classID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM classes WHERE id = $1)`, classID).Scan(&ok)
	return ok, err
}
