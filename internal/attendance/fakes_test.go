package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"classroll/internal/model"
	"classroll/internal/session"
)

// world couples sessions and records under one lock, the way the Postgres
// insert transaction share-locks the session row.
type world struct {
	mu       sync.Mutex
	sessions map[string]*model.ClassSession
	records  map[[2]string]model.Attendance
	order    []model.Attendance
	students map[string]*model.Student
	teachers map[string][]string
}

func newWorld() *world {
	return &world{
		sessions: make(map[string]*model.ClassSession),
		records:  make(map[[2]string]model.Attendance),
		students: make(map[string]*model.Student),
		teachers: make(map[string][]string),
	}
}

func (w *world) addStudent(id, facialID string, active bool, classIDs ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fid := facialID
	w.students[id] = &model.Student{ID: id, Name: "Student " + id, FacialID: &fid, Active: active, ClassIDs: classIDs}
}

func (w *world) openSession(id, classID, roomID string, openedAt time.Time) *model.ClassSession {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := &model.ClassSession{
		ID:          id,
		ClassID:     classID,
		RoomID:      roomID,
		SubjectCode: "MAT101",
		Status:      model.SessionOpen,
		OpenedAt:    openedAt,
	}
	w.sessions[id] = s
	return s
}

func (w *world) closeSession(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	w.sessions[id].Status = model.SessionClosed
	w.sessions[id].ClosedAt = &now
}

func (w *world) recordCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records)
}

// Sessions

func (w *world) Get(_ context.Context, id string) (*model.ClassSession, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (w *world) OpenForRoom(_ context.Context, roomID string) (*model.ClassSession, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var best *model.ClassSession
	for _, s := range w.sessions {
		if s.RoomID == roomID && s.IsOpen() && (best == nil || s.OpenedAt.After(best.OpenedAt)) {
			best = s
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// Records

func (w *world) Insert(_ context.Context, a model.Attendance) (model.Attendance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sessions[a.SessionID]
	if !ok {
		return model.Attendance{}, session.ErrNotFound
	}
	if !s.IsOpen() {
		return model.Attendance{}, session.ErrClosed
	}
	key := [2]string{a.SessionID, a.StudentID}
	if _, dup := w.records[key]; dup {
		return model.Attendance{}, ErrAlreadyMarked
	}
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now().UTC()
	w.records[key] = a
	w.order = append(w.order, a)
	return a, nil
}

func (w *world) ByID(_ context.Context, id string) (*model.Attendance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, a := range w.records {
		if a.ID == id {
			cp := a
			return &cp, nil
		}
	}
	return nil, nil
}

// writable returns the key of the row when its session is open.
func (w *world) writable(id string) ([2]string, error) {
	for key, a := range w.records {
		if a.ID != id {
			continue
		}
		if !w.sessions[a.SessionID].IsOpen() {
			return key, session.ErrClosed
		}
		return key, nil
	}
	return [2]string{}, ErrAttendanceNotFound
}

func (w *world) UpdateStatus(_ context.Context, id string, status model.AttendanceStatus, checkIn *time.Time) (model.Attendance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key, err := w.writable(id)
	if err != nil {
		return model.Attendance{}, err
	}
	a := w.records[key]
	a.Status = status
	a.CheckInTime = checkIn
	w.records[key] = a
	for i := range w.order {
		if w.order[i].ID == id {
			w.order[i] = a
		}
	}
	return a, nil
}

func (w *world) Delete(_ context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	key, err := w.writable(id)
	if err != nil {
		return err
	}
	delete(w.records, key)
	kept := w.order[:0]
	for _, a := range w.order {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	w.order = kept
	return nil
}

func (w *world) filter(keep func(model.Attendance) bool) []model.Attendance {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []model.Attendance
	for _, a := range w.order {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

func (w *world) ListBySession(_ context.Context, id string) ([]model.Attendance, error) {
	return w.filter(func(a model.Attendance) bool { return a.SessionID == id }), nil
}

func (w *world) ListByStudent(_ context.Context, id string) ([]model.Attendance, error) {
	return w.filter(func(a model.Attendance) bool { return a.StudentID == id }), nil
}

func (w *world) ListByClass(_ context.Context, id string) ([]model.Attendance, error) {
	return w.filter(func(a model.Attendance) bool { return a.ClassID == id }), nil
}

// Students and teachers

func (w *world) StudentByFacialID(_ context.Context, facialID string) (*model.Student, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.students {
		if s.FacialID != nil && *s.FacialID == facialID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (w *world) StudentByID(_ context.Context, id string) (*model.Student, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.students[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (w *world) TeachersOfClass(_ context.Context, classID string) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.teachers[classID], nil
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) MarkOutcome(origin, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[string]int)
	}
	o.counts[origin+"/"+outcome]++
}

func (o *countingObserver) get(key string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[key]
}
