package model

import (
	"strings"
	"time"
)

// AttendanceStatus is the recorded state of a student in a session.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusLate    AttendanceStatus = "late"
	StatusAbsent  AttendanceStatus = "absent"
)

// ParseStatus accepts the canonical values and the Portuguese labels used
// by the school's clients ("presente", "atrasado", "ausente").
func ParseStatus(s string) (AttendanceStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "present", "presente":
		return StatusPresent, true
	case "late", "atrasado":
		return StatusLate, true
	case "absent", "ausente":
		return StatusAbsent, true
	}
	return "", false
}

// Attends reports whether the status counts toward frequency.
func (s AttendanceStatus) Attends() bool {
	return s == StatusPresent || s == StatusLate
}

// SessionStatus is the lifecycle state of a class session.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// Role of an authenticated user.
type Role string

const (
	RoleCoordinator Role = "coordinator"
	RoleTeacher     Role = "teacher"
)

// ParseRole normalises role claims, including the Portuguese labels.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "coordinator", "coordenador":
		return RoleCoordinator
	case "teacher", "professor":
		return RoleTeacher
	}
	return Role(s)
}

// Principal is the authenticated caller of a manual operation.
type Principal struct {
	ID   string
	Role Role
}

func (p Principal) IsCoordinator() bool { return p.Role == RoleCoordinator }

// Student is enrolled reference data. FacialID is set once and unique.
type Student struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Registration string   `json:"registration"`
	FacialID     *string  `json:"-"`
	ClassIDs     []string `json:"class_ids,omitempty"`
	Active       bool     `json:"active"`
}

// Class is a cohort with its teacher roster.
type Class struct {
	ID         string   `json:"id"`
	Code       string   `json:"code"`
	Course     string   `json:"course"`
	Shift      string   `json:"shift"`
	Year       int      `json:"year"`
	TeacherIDs []string `json:"teacher_ids,omitempty"`
}

// ClassSession is one meeting of a class in a room.
type ClassSession struct {
	ID          string        `json:"id"`
	ClassID     string        `json:"class_id"`
	RoomID      string        `json:"room_id"`
	TeacherID   string        `json:"teacher_id"`
	SubjectCode string        `json:"subject_code"`
	Name        string        `json:"name"`
	Date        time.Time     `json:"date"`
	Status      SessionStatus `json:"status"`
	OpenedAt    time.Time     `json:"opened_at"`
	ClosedAt    *time.Time    `json:"closed_at,omitempty"`
}

func (s *ClassSession) IsOpen() bool { return s != nil && s.Status == SessionOpen }

// Attendance binds one student to one session. RecordedBy is nil for
// records created by a totem.
type Attendance struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"session_id"`
	ClassID     string           `json:"class_id"`
	StudentID   string           `json:"student_id"`
	Status      AttendanceStatus `json:"status"`
	CheckInTime *time.Time       `json:"check_in_time,omitempty"`
	RecordedBy  *string          `json:"recorded_by"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Facial reports whether the record came from a totem.
func (a Attendance) Facial() bool { return a.RecordedBy == nil }

// PendingAttendance is a facial detection waiting for a session to open.
type PendingAttendance struct {
	StudentID string    `json:"student_id"`
	RoomID    string    `json:"room_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Totem is a facial-recognition terminal installed in a room. The API key
// is only ever populated right after creation or regeneration.
type Totem struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Location   string     `json:"location"`
	RoomID     string     `json:"room_id"`
	APIKey     string     `json:"api_key,omitempty"`
	Active     bool       `json:"active"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
