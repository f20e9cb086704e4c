package report

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"classroll/internal/apperr"
	"classroll/internal/model"
)

type fakeSource struct {
	sessions map[string]*model.ClassSession
	rows     []model.Attendance
	roster   map[string][]model.Student
	students map[string]model.Student
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		sessions: make(map[string]*model.ClassSession),
		roster:   make(map[string][]model.Student),
		students: make(map[string]model.Student),
	}
}

func (f *fakeSource) Get(_ context.Context, id string) (*model.ClassSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperr.NotFound("session not found")
	}
	return s, nil
}

func (f *fakeSource) ListByClassSubject(_ context.Context, classID, code string) ([]model.ClassSession, error) {
	var out []model.ClassSession
	for _, s := range f.sessions {
		if s.ClassID == classID && s.SubjectCode == code {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSource) ListBySession(_ context.Context, id string) ([]model.Attendance, error) {
	var out []model.Attendance
	for _, r := range f.rows {
		if r.SessionID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) ListForSessions(_ context.Context, ids []string) ([]model.Attendance, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Attendance
	for _, r := range f.rows {
		if want[r.SessionID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) RosterOfClass(_ context.Context, classID string) ([]model.Student, error) {
	return f.roster[classID], nil
}

func (f *fakeSource) StudentByID(_ context.Context, id string) (*model.Student, error) {
	if s, ok := f.students[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (f *fakeSource) enroll(classID string, ids ...string) {
	for _, id := range ids {
		s := model.Student{ID: id, Name: "Student " + id, Registration: "R-" + id, Active: true, ClassIDs: []string{classID}}
		f.students[id] = s
		f.roster[classID] = append(f.roster[classID], s)
	}
}

func (f *fakeSource) session(id, classID, code string) {
	f.sessions[id] = &model.ClassSession{ID: id, ClassID: classID, SubjectCode: code, Status: model.SessionOpen}
}

func (f *fakeSource) mark(sessionID, studentID string, status model.AttendanceStatus, recordedBy *string) {
	s := f.sessions[sessionID]
	f.rows = append(f.rows, model.Attendance{
		ID:         fmt.Sprintf("%s-%s", sessionID, studentID),
		SessionID:  sessionID,
		ClassID:    s.ClassID,
		StudentID:  studentID,
		Status:     status,
		RecordedBy: recordedBy,
		CreatedAt:  time.Now(),
	})
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.StudentID)
	}
	return out
}

func TestSessionReport_FacialManualAndMissing(t *testing.T) {
	src := newFakeSource()
	src.enroll("class-1", "A", "B", "C")
	src.session("sess-1", "class-1", "MAT101")
	teacher := "teacher-1"
	src.mark("sess-1", "A", model.StatusPresent, nil)
	src.mark("sess-1", "B", model.StatusLate, &teacher)

	rep, err := NewAggregator(src, src, src).SessionReport(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", rep.Session.ID)
	assert.Equal(t, []string{"A"}, ids(rep.Present))
	assert.Equal(t, []string{"B"}, ids(rep.Late))
	assert.Equal(t, []string{"C"}, ids(rep.Absent))
	assert.Nil(t, rep.Present[0].RecordedBy)
	assert.Equal(t, model.StatusAbsent, rep.Absent[0].Status)
}

func TestSessionReport_AbsentIsRosterMinusAttending(t *testing.T) {
	src := newFakeSource()
	var roster []string
	for i := 0; i < 12; i++ {
		roster = append(roster, fmt.Sprintf("S%02d", i))
	}
	src.enroll("class-1", roster...)
	src.session("sess-1", "class-1", "FIS200")

	// 5 attend, 2 carry an explicit absent row, 5 have nothing.
	for i, id := range roster[:7] {
		switch {
		case i < 3:
			src.mark("sess-1", id, model.StatusPresent, nil)
		case i < 5:
			src.mark("sess-1", id, model.StatusLate, nil)
		default:
			src.mark("sess-1", id, model.StatusAbsent, nil)
		}
	}

	rep, err := NewAggregator(src, src, src).SessionReport(context.Background(), "sess-1")
	require.NoError(t, err)

	attending := len(rep.Present) + len(rep.Late)
	assert.Equal(t, 5, attending)
	assert.Len(t, rep.Absent, len(roster)-attending)

	seen := make(map[string]int)
	for _, list := range [][]Entry{rep.Present, rep.Late, rep.Absent} {
		for _, e := range list {
			seen[e.StudentID]++
		}
	}
	assert.Len(t, seen, len(roster))
	for id, n := range seen {
		assert.Equal(t, 1, n, "student %s listed more than once", id)
	}
}

func TestSessionReport_FormerStudentKeepsRecordedStatus(t *testing.T) {
	src := newFakeSource()
	src.enroll("class-1", "A")
	src.session("sess-1", "class-1", "MAT101")
	src.students["Z"] = model.Student{ID: "Z", Name: "Former", Active: false}
	src.mark("sess-1", "Z", model.StatusPresent, nil)

	rep, err := NewAggregator(src, src, src).SessionReport(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, rep.Present, 1)
	assert.Equal(t, "Former", rep.Present[0].Name)
	assert.Equal(t, []string{"A"}, ids(rep.Absent))
}

func TestSessionReport_UnknownSession(t *testing.T) {
	src := newFakeSource()
	_, err := NewAggregator(src, src, src).SessionReport(context.Background(), "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestStudentSubject_Frequency(t *testing.T) {
	src := newFakeSource()
	src.enroll("class-1", "A")
	for i := 1; i <= 4; i++ {
		src.session(fmt.Sprintf("s%d", i), "class-1", "MAT101")
	}
	src.session("other", "class-1", "FIS200")
	src.mark("s1", "A", model.StatusPresent, nil)
	src.mark("s2", "A", model.StatusPresent, nil)
	src.mark("s3", "A", model.StatusLate, nil)
	src.mark("other", "A", model.StatusPresent, nil)

	f, err := NewAggregator(src, src, src).StudentSubject(context.Background(), "A", "class-1", " mat101 ")
	require.NoError(t, err)
	assert.Equal(t, 4, f.TotalSessions)
	assert.Equal(t, 2, f.Presents)
	assert.Equal(t, 1, f.Lates)
	assert.Equal(t, 1, f.Absences)
	assert.Equal(t, 75.0, f.Frequency)
}

func TestStudentSubject_ExplicitAbsentCountsAgainst(t *testing.T) {
	src := newFakeSource()
	src.enroll("class-1", "A")
	for i := 1; i <= 3; i++ {
		src.session(fmt.Sprintf("s%d", i), "class-1", "MAT101")
	}
	src.mark("s1", "A", model.StatusPresent, nil)
	src.mark("s2", "A", model.StatusAbsent, nil)

	f, err := NewAggregator(src, src, src).StudentSubject(context.Background(), "A", "class-1", "MAT101")
	require.NoError(t, err)
	assert.Equal(t, 2, f.Absences)
	assert.Equal(t, 33.33, f.Frequency)
}

func TestStudentSubject_NoSessionsIsFullFrequency(t *testing.T) {
	src := newFakeSource()
	src.enroll("class-1", "A")

	f, err := NewAggregator(src, src, src).StudentSubject(context.Background(), "A", "class-1", "MAT101")
	require.NoError(t, err)
	assert.Zero(t, f.TotalSessions)
	assert.Zero(t, f.Absences)
	assert.Equal(t, 100.0, f.Frequency)
}

func TestStudentSubject_UnknownStudent(t *testing.T) {
	src := newFakeSource()
	_, err := NewAggregator(src, src, src).StudentSubject(context.Background(), "nobody", "class-1", "MAT101")
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestClassTableBySubject(t *testing.T) {
	src := newFakeSource()
	src.enroll("class-1", "B", "A")
	src.session("s1", "class-1", "MAT101")
	src.session("s2", "class-1", "MAT101")
	src.mark("s1", "A", model.StatusPresent, nil)
	src.mark("s2", "A", model.StatusLate, nil)
	src.mark("s1", "B", model.StatusAbsent, nil)

	table, err := NewAggregator(src, src, src).ClassTableBySubject(context.Background(), "class-1", "mat101")
	require.NoError(t, err)
	assert.Equal(t, "MAT101", table.SubjectCode)
	assert.Equal(t, 2, table.TotalSessions)
	require.Len(t, table.Rows, 2)

	assert.Equal(t, "A", table.Rows[0].StudentID)
	assert.Equal(t, 100.0, table.Rows[0].Frequency)
	assert.Equal(t, "B", table.Rows[1].StudentID)
	assert.Equal(t, 2, table.Rows[1].Absences)
	assert.Equal(t, 0.0, table.Rows[1].Frequency)
}

func TestWriteClassTableXLSX(t *testing.T) {
	table := &ClassTable{
		ClassID:       "class-1",
		SubjectCode:   "MAT101",
		TotalSessions: 4,
		Rows: []Frequency{
			{StudentID: "A", Name: "Ana", Registration: "R-1", TotalSessions: 4, Presents: 3, Lates: 0, Absences: 1, Frequency: 75},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteClassTableXLSX(&buf, table))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{tableSheet}, f.GetSheetList())
	rows, err := f.GetRows(tableSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, tableHeader, rows[1])
	assert.Equal(t, "R-1", rows[2][0])
	assert.Equal(t, "Ana", rows[2][1])
	assert.Equal(t, "75", rows[2][6])
}
