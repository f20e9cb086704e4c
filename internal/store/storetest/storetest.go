// Package storetest connects repository tests to a real, migrated
// Postgres. Tests skip when CLASSROLL_TEST_DATABASE_URL is unset.
package storetest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"classroll/internal/store"
)

// EnvDSN names the variable holding the test database URL.
const EnvDSN = "CLASSROLL_TEST_DATABASE_URL"

// Open returns a migrated database or skips the test. Fixtures use fresh
// ids, so packages may share one database concurrently.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("%s not set", EnvDSN)
	}
	db, err := store.NewDB(context.Background(), dsn, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(db.Client, zap.NewNop()))
	return db.Client
}

// Seed inserts reference rows for a test.
type Seed struct {
	t  *testing.T
	db *sql.DB
}

func NewSeed(t *testing.T, db *sql.DB) *Seed {
	return &Seed{t: t, db: db}
}

func (s *Seed) exec(query string, args ...any) {
	s.t.Helper()
	_, err := s.db.ExecContext(context.Background(), query, args...)
	require.NoError(s.t, err)
}

func short() string { return uuid.NewString()[:8] }

func (s *Seed) Room() string {
	s.t.Helper()
	id := uuid.NewString()
	s.exec(`INSERT INTO rooms (id, code, name) VALUES ($1, $2, $3)`, id, "R-"+short(), "Room")
	return id
}

func (s *Seed) User(role string) string {
	s.t.Helper()
	id := uuid.NewString()
	s.exec(`INSERT INTO users (id, name, email, role) VALUES ($1, $2, $3, $4)`, id, "User", short()+"@school.test", role)
	return id
}

// Class creates a class taught by teacherIDs.
func (s *Seed) Class(teacherIDs ...string) string {
	s.t.Helper()
	id := uuid.NewString()
	s.exec(`INSERT INTO classes (id, code, course, shift, year) VALUES ($1, $2, 'Informática', 'morning', 2026)`, id, "C-"+short())
	for _, tid := range teacherIDs {
		s.exec(`INSERT INTO class_teachers (class_id, teacher_id) VALUES ($1, $2)`, id, tid)
	}
	return id
}

// Student creates a student enrolled in classIDs. An empty facialID is
// stored as NULL.
func (s *Seed) Student(name, facialID string, active bool, classIDs ...string) string {
	s.t.Helper()
	id := uuid.NewString()
	var fid any
	if facialID != "" {
		fid = facialID
	}
	s.exec(`INSERT INTO students (id, name, registration, facial_id, is_active) VALUES ($1, $2, $3, $4, $5)`,
		id, name, "REG-"+short(), fid, active)
	for _, cid := range classIDs {
		s.exec(`INSERT INTO student_classes (student_id, class_id) VALUES ($1, $2)`, id, cid)
	}
	return id
}

// FacialID returns a facial id no other test uses.
func FacialID() string { return "face-" + uuid.NewString() }
