package handler

import (
	"context"
	"sync"
	"time"

	"classroll/internal/attendance"
	"classroll/internal/faceclient"
	"classroll/internal/model"
	"classroll/internal/report"
	"classroll/internal/session"
	"classroll/internal/totem"
)

const (
	sessionID = "2b1f6a6e-6a43-4f57-9d0e-0d3c1f1a0001"
	classID   = "2b1f6a6e-6a43-4f57-9d0e-0d3c1f1a0002"
	roomID    = "2b1f6a6e-6a43-4f57-9d0e-0d3c1f1a0003"
	studentID = "2b1f6a6e-6a43-4f57-9d0e-0d3c1f1a0004"
	teacherID = "2b1f6a6e-6a43-4f57-9d0e-0d3c1f1a0005"
	otherID   = "2b1f6a6e-6a43-4f57-9d0e-0d3c1f1a0006"
	coordID   = "2b1f6a6e-6a43-4f57-9d0e-0d3c1f1a0007"
	totemID   = "2b1f6a6e-6a43-4f57-9d0e-0d3c1f1a0008"
	totemKey  = "totem-secret"
)

var fixedTime = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fakeMarker struct {
	mu           sync.Mutex
	openRoom     bool
	manualErr    error
	lastFacial   string
	lastManual   attendance.ManualInput
	lastPrinc    model.Principal
	lastConfirm  []string
	discarded    []string
	deleted      []string
	closedRecord bool
}

func (f *fakeMarker) MarkByFace(_ context.Context, facialID, room string) (attendance.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFacial = facialID
	if !f.openRoom {
		return attendance.Outcome{
			Kind:    attendance.KindPreAttendance,
			Pending: &model.PendingAttendance{StudentID: studentID, RoomID: room, Timestamp: fixedTime},
			Message: "no open session in this room, detection kept as pre-attendance",
		}, nil
	}
	at := fixedTime
	return attendance.Outcome{
		Kind: attendance.KindAttendance,
		Attendance: &model.Attendance{
			ID: "att-1", SessionID: sessionID, ClassID: classID, StudentID: studentID,
			Status: model.StatusPresent, CheckInTime: &at, CreatedAt: fixedTime,
		},
	}, nil
}

func (f *fakeMarker) MarkManual(_ context.Context, in attendance.ManualInput, p model.Principal) (model.Attendance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastManual, f.lastPrinc = in, p
	if f.manualErr != nil {
		return model.Attendance{}, f.manualErr
	}
	return model.Attendance{ID: "att-2", SessionID: in.SessionID, StudentID: in.StudentID, Status: in.Status, RecordedBy: &p.ID}, nil
}

func (f *fakeMarker) ConfirmPending(_ context.Context, sid string, _ model.Principal, ids []string) (attendance.ConfirmResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastConfirm = ids
	return attendance.ConfirmResult{SessionID: sid, Confirmed: []model.Attendance{}, Duplicates: []string{}, Failed: []attendance.ConfirmFailure{}}, nil
}

// roomAllowed mirrors the engine: coordinators anywhere, teacherID on roomID.
func roomAllowed(room string, p model.Principal) error {
	if p.IsCoordinator() || (p.ID == teacherID && room == roomID) {
		return nil
	}
	return attendance.ErrRoomForbidden
}

func (f *fakeMarker) ListPending(_ context.Context, room string, p model.Principal) ([]model.PendingAttendance, error) {
	if err := roomAllowed(room, p); err != nil {
		return nil, err
	}
	return []model.PendingAttendance{{StudentID: studentID, RoomID: room, Timestamp: fixedTime}}, nil
}

func (f *fakeMarker) DiscardPending(_ context.Context, room string, p model.Principal) error {
	if err := roomAllowed(room, p); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = append(f.discarded, room)
	return nil
}

// attendanceID names the one record the fake knows; it sits in a closed
// session when closedRecord is set.
const attendanceID = "2b1f6a6e-6a43-4f57-9d0e-0d3c1f1a0009"

func (f *fakeMarker) writable(id string, p model.Principal) error {
	switch {
	case id != attendanceID:
		return attendance.ErrAttendanceNotFound
	case !p.IsCoordinator() && p.ID != teacherID:
		return attendance.ErrNotClassTeacher
	case f.closedRecord:
		return session.ErrClosed
	}
	return nil
}

func (f *fakeMarker) UpdateStatus(_ context.Context, id string, status model.AttendanceStatus, p model.Principal) (model.Attendance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writable(id, p); err != nil {
		return model.Attendance{}, err
	}
	st, _ := model.ParseStatus(string(status))
	return model.Attendance{ID: id, SessionID: sessionID, StudentID: studentID, Status: st}, nil
}

func (f *fakeMarker) Delete(_ context.Context, id string, p model.Principal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writable(id, p); err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeMarker) ListBySession(_ context.Context, id string) ([]model.Attendance, error) {
	if id != sessionID {
		return nil, session.ErrNotFound
	}
	return []model.Attendance{{ID: "att-1", SessionID: id}}, nil
}

func (f *fakeMarker) ListByStudent(context.Context, string) ([]model.Attendance, error) {
	return []model.Attendance{}, nil
}

func (f *fakeMarker) ListByClass(context.Context, string) ([]model.Attendance, error) {
	return []model.Attendance{}, nil
}

type fakeSessions struct {
	mu     sync.Mutex
	opened []session.OpenInput
	closed int
}

func (f *fakeSessions) Get(_ context.Context, id string) (*model.ClassSession, error) {
	if id != sessionID {
		return nil, session.ErrNotFound
	}
	return &model.ClassSession{ID: id, ClassID: classID, RoomID: roomID, Status: model.SessionOpen}, nil
}

func (f *fakeSessions) Open(_ context.Context, in session.OpenInput) (*model.ClassSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, in)
	return &model.ClassSession{ID: sessionID, ClassID: in.ClassID, RoomID: in.RoomID, TeacherID: in.TeacherID, Status: model.SessionOpen}, nil
}

func (f *fakeSessions) Close(_ context.Context, id string) (*model.ClassSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	at := fixedTime
	return &model.ClassSession{ID: id, ClassID: classID, Status: model.SessionClosed, ClosedAt: &at}, nil
}

type fakeReports struct{}

func (fakeReports) SessionReport(_ context.Context, id string) (*report.SessionReport, error) {
	return &report.SessionReport{Session: &model.ClassSession{ID: id}, Present: []report.Entry{}, Late: []report.Entry{}, Absent: []report.Entry{}}, nil
}

func (fakeReports) StudentSubject(_ context.Context, sid, _, code string) (*report.Frequency, error) {
	return &report.Frequency{StudentID: sid, TotalSessions: 4, Presents: 3, Absences: 1, Frequency: 75}, nil
}

func (fakeReports) ClassTableBySubject(_ context.Context, cid, code string) (*report.ClassTable, error) {
	return &report.ClassTable{ClassID: cid, SubjectCode: code, TotalSessions: 1, Rows: []report.Frequency{
		{StudentID: studentID, Name: "Ana", TotalSessions: 1, Presents: 1, Frequency: 100},
	}}, nil
}

type fakeTotems struct{}

func (fakeTotems) Authenticate(_ context.Context, key string) (*model.Totem, error) {
	if key == "" {
		return nil, totem.ErrMissingKey
	}
	if key != totemKey {
		return nil, totem.ErrInvalidKey
	}
	return &model.Totem{ID: totemID, RoomID: roomID, Active: true}, nil
}

func (fakeTotems) Create(_ context.Context, in totem.CreateInput) (*model.Totem, error) {
	return &model.Totem{ID: totemID, Name: in.Name, Location: in.Location, RoomID: in.RoomID, APIKey: "fresh-key", Active: true}, nil
}

func (fakeTotems) Get(_ context.Context, id string) (*model.Totem, error) {
	if id != totemID {
		return nil, totem.ErrNotFound
	}
	return &model.Totem{ID: id, RoomID: roomID, Active: true}, nil
}

func (fakeTotems) List(context.Context) ([]model.Totem, error) {
	return []model.Totem{{ID: totemID}}, nil
}

func (fakeTotems) SetActive(_ context.Context, id string, active bool) (*model.Totem, error) {
	return &model.Totem{ID: id, Active: active}, nil
}

func (fakeTotems) RegenerateKey(_ context.Context, id string) (*model.Totem, error) {
	return &model.Totem{ID: id, APIKey: "rotated-key", Active: true}, nil
}

type fakeFaces struct{}

func (fakeFaces) Recognize(_ context.Context, _, imageURL string) (*faceclient.RecognizeResult, error) {
	if imageURL == "https://cdn.example/known.jpg" {
		return &faceclient.RecognizeResult{FacialID: "face-from-image", Recognized: true}, nil
	}
	return nil, faceclient.ErrDisabled
}

// fakeAuthz lets coordinators act everywhere and teacherID act on classID.
type fakeAuthz struct{}

func (a fakeAuthz) CanRecord(ctx context.Context, p model.Principal, s *model.ClassSession) (bool, error) {
	return a.CanRecordClass(ctx, p, s.ClassID)
}

func (fakeAuthz) CanRecordClass(_ context.Context, p model.Principal, cid string) (bool, error) {
	return p.IsCoordinator() || (p.ID == teacherID && cid == classID), nil
}

type fakeClasses struct{}

func (fakeClasses) ClassExists(_ context.Context, cid string) (bool, error) {
	return cid == classID, nil
}
