// Package attendance decides whether a detection or a manual entry becomes
// a durable attendance record, and stores those records.
package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"classroll/internal/apperr"
	"classroll/internal/model"
	"classroll/internal/pending"
	"classroll/internal/session"
)

var (
	ErrAlreadyMarked      = apperr.Conflict("attendance already marked for this student in this session")
	ErrUnknownFace        = apperr.NotFound("no active student for this facial id")
	ErrStudentNotFound    = apperr.NotFound("student not found")
	ErrNotClassTeacher    = apperr.Forbidden("only a coordinator or a teacher of the class can record attendance")
	ErrUnknownReference   = apperr.Validation("session, class or student does not exist")
	ErrAttendanceNotFound = apperr.NotFound("attendance not found")
	ErrRoomForbidden      = apperr.Forbidden("only a coordinator or a teacher of the room's open session can manage its pending attendance")
)

// Records is the attendance persistence. *Repository implements it.
type Records interface {
	Insert(ctx context.Context, a model.Attendance) (model.Attendance, error)
	ByID(ctx context.Context, id string) (*model.Attendance, error)
	UpdateStatus(ctx context.Context, id string, status model.AttendanceStatus, checkIn *time.Time) (model.Attendance, error)
	Delete(ctx context.Context, id string) error
	ListBySession(ctx context.Context, sessionID string) ([]model.Attendance, error)
	ListByStudent(ctx context.Context, studentID string) ([]model.Attendance, error)
	ListByClass(ctx context.Context, classID string) ([]model.Attendance, error)
}

// Sessions is the part of the session lifecycle the engine reads.
type Sessions interface {
	Get(ctx context.Context, id string) (*model.ClassSession, error)
	OpenForRoom(ctx context.Context, roomID string) (*model.ClassSession, error)
}

// Students looks up enrolled students. Both methods return nil, nil when
// nothing matches.
type Students interface {
	StudentByFacialID(ctx context.Context, facialID string) (*model.Student, error)
	StudentByID(ctx context.Context, id string) (*model.Student, error)
}

// Observer is notified of every marking outcome.
type Observer interface {
	MarkOutcome(origin, outcome string)
}

type nopObserver struct{}

func (nopObserver) MarkOutcome(string, string) {}

// Marking origins and outcomes reported to the Observer.
const (
	OriginFacial = "facial"
	OriginManual = "manual"

	OutcomeRecorded  = "recorded"
	OutcomePending   = "pending"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// Deps wires the service.
type Deps struct {
	Records  Records
	Sessions Sessions
	Students Students
	Teachers TeacherDirectory
	Pending  pending.Store
	Observer Observer
	Logger   *zap.Logger
	Now      func() time.Time
}

// Service is the attendance marking engine.
type Service struct {
	records  Records
	sessions Sessions
	students Students
	pending  pending.Store
	authz    *Authorizer
	observer Observer
	log      *zap.Logger
	now      func() time.Time
}

// NewService creates the engine.
func NewService(d Deps) *Service {
	s := &Service{
		records:  d.Records,
		sessions: d.Sessions,
		students: d.Students,
		pending:  d.Pending,
		authz:    NewAuthorizer(d.Teachers),
		observer: d.Observer,
		log:      d.Logger,
		now:      d.Now,
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// OutcomeKind tells a durable record apart from a pre-attendance.
type OutcomeKind string

const (
	KindAttendance    OutcomeKind = "attendance"
	KindPreAttendance OutcomeKind = "pre_attendance"
)

// Outcome of a facial detection. Exactly one of Attendance and Pending is set.
type Outcome struct {
	Kind       OutcomeKind
	Attendance *model.Attendance
	Pending    *model.PendingAttendance
	Message    string
}

// MarkByFace handles a totem detection. With an open session in the room
// it records the student present; otherwise the detection is parked in the
// room's pending list and a pre-attendance outcome is returned.
func (s *Service) MarkByFace(ctx context.Context, facialID, roomID string) (Outcome, error) {
	facialID = strings.TrimSpace(facialID)
	if facialID == "" || roomID == "" {
		s.observer.MarkOutcome(OriginFacial, OutcomeRejected)
		return Outcome{}, apperr.Validation("facial id and room are required")
	}

	student, err := s.students.StudentByFacialID(ctx, facialID)
	if err != nil {
		return Outcome{}, s.fail(OriginFacial, err)
	}
	if student == nil || !student.Active {
		s.observer.MarkOutcome(OriginFacial, OutcomeRejected)
		return Outcome{}, ErrUnknownFace
	}

	open, err := s.sessions.OpenForRoom(ctx, roomID)
	if err != nil {
		return Outcome{}, s.fail(OriginFacial, err)
	}

	if open == nil {
		p, err := s.pending.Push(ctx, roomID, student.ID)
		if err != nil {
			return Outcome{}, s.fail(OriginFacial, err)
		}
		s.observer.MarkOutcome(OriginFacial, OutcomePending)
		s.log.Info("pre-attendance recorded",
			zap.String("room_id", roomID),
			zap.String("student_id", student.ID),
		)
		return Outcome{
			Kind:    KindPreAttendance,
			Pending: &p,
			Message: "no open session in this room, detection kept as pre-attendance",
		}, nil
	}

	at := s.now().UTC()
	a, err := s.insert(ctx, OriginFacial, model.Attendance{
		SessionID:   open.ID,
		ClassID:     open.ClassID,
		StudentID:   student.ID,
		Status:      model.StatusPresent,
		CheckInTime: &at,
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: KindAttendance, Attendance: &a}, nil
}

// ManualInput is a teacher or coordinator entry.
type ManualInput struct {
	SessionID string
	StudentID string
	Status    model.AttendanceStatus
}

// MarkManual records a status for one student in an open session.
func (s *Service) MarkManual(ctx context.Context, in ManualInput, p model.Principal) (model.Attendance, error) {
	if in.SessionID == "" || in.StudentID == "" {
		s.observer.MarkOutcome(OriginManual, OutcomeRejected)
		return model.Attendance{}, apperr.Validation("session and student are required")
	}
	status, ok := model.ParseStatus(string(in.Status))
	if !ok {
		s.observer.MarkOutcome(OriginManual, OutcomeRejected)
		return model.Attendance{}, apperr.Validation("status must be present, late or absent")
	}

	sess, err := s.sessions.Get(ctx, in.SessionID)
	if err != nil {
		return model.Attendance{}, s.reject(OriginManual, err)
	}
	if err := s.checkWritable(ctx, p, sess); err != nil {
		return model.Attendance{}, s.reject(OriginManual, err)
	}
	return s.recordManual(ctx, sess, in.StudentID, status, p)
}

func (s *Service) checkWritable(ctx context.Context, p model.Principal, sess *model.ClassSession) error {
	allowed, err := s.authz.CanRecord(ctx, p, sess)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrNotClassTeacher
	}
	if !sess.IsOpen() {
		return session.ErrClosed
	}
	return nil
}

func (s *Service) recordManual(ctx context.Context, sess *model.ClassSession, studentID string, status model.AttendanceStatus, p model.Principal) (model.Attendance, error) {
	student, err := s.students.StudentByID(ctx, studentID)
	if err != nil {
		return model.Attendance{}, s.fail(OriginManual, err)
	}
	if student == nil {
		s.observer.MarkOutcome(OriginManual, OutcomeRejected)
		return model.Attendance{}, ErrStudentNotFound
	}

	a := model.Attendance{
		SessionID:  sess.ID,
		ClassID:    sess.ClassID,
		StudentID:  student.ID,
		Status:     status,
		RecordedBy: &p.ID,
	}
	if status == model.StatusPresent {
		at := s.now().UTC()
		a.CheckInTime = &at
	}
	return s.insert(ctx, OriginManual, a)
}

func (s *Service) insert(ctx context.Context, origin string, a model.Attendance) (model.Attendance, error) {
	saved, err := s.records.Insert(ctx, a)
	switch {
	case errors.Is(err, ErrAlreadyMarked):
		s.observer.MarkOutcome(origin, OutcomeDuplicate)
		return model.Attendance{}, err
	case err != nil:
		return model.Attendance{}, s.reject(origin, err)
	}
	s.observer.MarkOutcome(origin, OutcomeRecorded)
	s.log.Info("attendance recorded",
		zap.String("origin", origin),
		zap.String("session_id", saved.SessionID),
		zap.String("student_id", saved.StudentID),
		zap.String("status", string(saved.Status)),
	)
	return saved, nil
}

// reject counts domain errors as rejections and everything else as failures.
func (s *Service) reject(origin string, err error) error {
	if apperr.KindOf(err) == apperr.KindInternal {
		return s.fail(origin, err)
	}
	s.observer.MarkOutcome(origin, OutcomeRejected)
	return err
}

func (s *Service) fail(origin string, err error) error {
	s.observer.MarkOutcome(origin, OutcomeError)
	return err
}

// ConfirmFailure names a pending student that could not be confirmed.
type ConfirmFailure struct {
	StudentID string `json:"student_id"`
	Message   string `json:"message"`
}

// ConfirmResult summarises a pending sweep.
type ConfirmResult struct {
	SessionID  string             `json:"session_id"`
	Confirmed  []model.Attendance `json:"confirmed"`
	Duplicates []string           `json:"duplicates"`
	Failed     []ConfirmFailure   `json:"failed"`
}

// ConfirmPending turns the pre-attendances of the session's room into
// present records, then clears the room's pending list. When studentIDs is
// non-empty only those students are confirmed; the rest are discarded.
func (s *Service) ConfirmPending(ctx context.Context, sessionID string, p model.Principal, studentIDs []string) (ConfirmResult, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if err := s.checkWritable(ctx, p, sess); err != nil {
		return ConfirmResult{}, err
	}

	entries, err := s.pending.ListByRoom(ctx, sess.RoomID)
	if err != nil {
		return ConfirmResult{}, err
	}

	wanted := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		wanted[id] = true
	}
	seen := make(map[string]bool, len(entries))

	res := ConfirmResult{
		SessionID:  sess.ID,
		Confirmed:  []model.Attendance{},
		Duplicates: []string{},
		Failed:     []ConfirmFailure{},
	}
	for _, e := range entries {
		if seen[e.StudentID] || (len(wanted) > 0 && !wanted[e.StudentID]) {
			continue
		}
		seen[e.StudentID] = true

		a, err := s.recordManual(ctx, sess, e.StudentID, model.StatusPresent, p)
		switch {
		case err == nil:
			res.Confirmed = append(res.Confirmed, a)
		case errors.Is(err, ErrAlreadyMarked):
			res.Duplicates = append(res.Duplicates, e.StudentID)
		case apperr.KindOf(err) != apperr.KindInternal:
			res.Failed = append(res.Failed, ConfirmFailure{StudentID: e.StudentID, Message: err.Error()})
		default:
			return res, err
		}
	}

	if err := s.pending.ClearRoom(ctx, sess.RoomID); err != nil {
		return res, err
	}
	s.log.Info("pending attendance confirmed",
		zap.String("session_id", sess.ID),
		zap.String("room_id", sess.RoomID),
		zap.Int("confirmed", len(res.Confirmed)),
		zap.Int("duplicates", len(res.Duplicates)),
		zap.Int("failed", len(res.Failed)),
	)
	return res, nil
}

// ListPending returns the room's pre-attendances in detection order.
func (s *Service) ListPending(ctx context.Context, roomID string, p model.Principal) ([]model.PendingAttendance, error) {
	if err := s.checkRoom(ctx, roomID, p); err != nil {
		return nil, err
	}
	list, err := s.pending.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.PendingAttendance{}
	}
	return list, nil
}

// DiscardPending drops every pre-attendance of the room.
func (s *Service) DiscardPending(ctx context.Context, roomID string, p model.Principal) error {
	if err := s.checkRoom(ctx, roomID, p); err != nil {
		return err
	}
	if err := s.pending.ClearRoom(ctx, roomID); err != nil {
		return err
	}
	s.log.Info("pending attendance discarded",
		zap.String("room_id", roomID),
		zap.String("by", p.ID),
	)
	return nil
}

// checkRoom lets coordinators act on any room. A teacher needs an open
// session in the room that belongs to one of their classes.
func (s *Service) checkRoom(ctx context.Context, roomID string, p model.Principal) error {
	if p.IsCoordinator() {
		return nil
	}
	open, err := s.sessions.OpenForRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if open == nil {
		return ErrRoomForbidden
	}
	allowed, err := s.authz.CanRecord(ctx, p, open)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrRoomForbidden
	}
	return nil
}

// UpdateStatus corrects the status of a record while its session is open.
// A record turned present keeps its original check-in time when it has one.
func (s *Service) UpdateStatus(ctx context.Context, id string, status model.AttendanceStatus, p model.Principal) (model.Attendance, error) {
	st, ok := model.ParseStatus(string(status))
	if !ok {
		return model.Attendance{}, apperr.Validation("status must be present, late or absent")
	}
	rec, err := s.writableRecord(ctx, id, p)
	if err != nil {
		return model.Attendance{}, err
	}

	var checkIn *time.Time
	if st == model.StatusPresent {
		checkIn = rec.CheckInTime
		if checkIn == nil {
			at := s.now().UTC()
			checkIn = &at
		}
	}
	updated, err := s.records.UpdateStatus(ctx, rec.ID, st, checkIn)
	if err != nil {
		return model.Attendance{}, err
	}
	s.log.Info("attendance corrected",
		zap.String("attendance_id", rec.ID),
		zap.String("from", string(rec.Status)),
		zap.String("to", string(st)),
		zap.String("by", p.ID),
	)
	return updated, nil
}

// Delete removes a record while its session is open.
func (s *Service) Delete(ctx context.Context, id string, p model.Principal) error {
	rec, err := s.writableRecord(ctx, id, p)
	if err != nil {
		return err
	}
	if err := s.records.Delete(ctx, rec.ID); err != nil {
		return err
	}
	s.log.Info("attendance deleted",
		zap.String("attendance_id", rec.ID),
		zap.String("session_id", rec.SessionID),
		zap.String("student_id", rec.StudentID),
		zap.String("by", p.ID),
	)
	return nil
}

func (s *Service) writableRecord(ctx context.Context, id string, p model.Principal) (*model.Attendance, error) {
	rec, err := s.records.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrAttendanceNotFound
	}
	sess, err := s.sessions.Get(ctx, rec.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkWritable(ctx, p, sess); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListBySession returns the records of a session. NotFound when the
// session does not exist.
func (s *Service) ListBySession(ctx context.Context, sessionID string) ([]model.Attendance, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return nonNil(s.records.ListBySession(ctx, sessionID))
}

func (s *Service) ListByStudent(ctx context.Context, studentID string) ([]model.Attendance, error) {
	return nonNil(s.records.ListByStudent(ctx, studentID))
}

func (s *Service) ListByClass(ctx context.Context, classID string) ([]model.Attendance, error) {
	return nonNil(s.records.ListByClass(ctx, classID))
}

func nonNil(list []model.Attendance, err error) ([]model.Attendance, error) {
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Attendance{}
	}
	return list, nil
}
