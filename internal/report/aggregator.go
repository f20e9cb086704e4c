// Package report derives per-session and per-subject attendance views from
// the stored records and the class roster.
package report

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"classroll/internal/apperr"
	"classroll/internal/model"
)

var ErrStudentNotFound = apperr.NotFound("student not found")

// Sessions is the session lookup the aggregator needs.
type Sessions interface {
	Get(ctx context.Context, id string) (*model.ClassSession, error)
	ListByClassSubject(ctx context.Context, classID, subjectCode string) ([]model.ClassSession, error)
}

// Records reads attendance rows.
type Records interface {
	ListBySession(ctx context.Context, sessionID string) ([]model.Attendance, error)
	ListForSessions(ctx context.Context, sessionIDs []string) ([]model.Attendance, error)
}

// Roster resolves class membership. StudentByID returns nil, nil when the
// student does not exist.
type Roster interface {
	RosterOfClass(ctx context.Context, classID string) ([]model.Student, error)
	StudentByID(ctx context.Context, id string) (*model.Student, error)
}

// Aggregator builds attendance reports.
type Aggregator struct {
	sessions Sessions
	records  Records
	roster   Roster
}

func NewAggregator(sessions Sessions, records Records, roster Roster) *Aggregator {
	return &Aggregator{sessions: sessions, records: records, roster: roster}
}

// Entry is one student line of a session report.
type Entry struct {
	StudentID    string                 `json:"student_id"`
	Name         string                 `json:"name"`
	Registration string                 `json:"registration"`
	Status       model.AttendanceStatus `json:"status"`
	CheckInTime  *time.Time             `json:"check_in_time,omitempty"`
	RecordedBy   *string                `json:"recorded_by,omitempty"`
}

// SessionReport splits a session's class into disjoint present, late and
// absent lists.
type SessionReport struct {
	Session *model.ClassSession `json:"session"`
	Present []Entry             `json:"present"`
	Late    []Entry             `json:"late"`
	Absent  []Entry             `json:"absent"`
}

// SessionReport lists every roster student of the session's class under
// exactly one status. A student without a row is absent, as is one with an
// explicit absent row. Students with a row who have since left the roster
// are still reported under their recorded status.
func (a *Aggregator) SessionReport(ctx context.Context, sessionID string) (*SessionReport, error) {
	sess, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := a.records.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	roster, err := a.roster.RosterOfClass(ctx, sess.ClassID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.Student, len(roster))
	for _, s := range roster {
		byID[s.ID] = s
	}

	rep := &SessionReport{Session: sess, Present: []Entry{}, Late: []Entry{}, Absent: []Entry{}}
	recorded := make(map[string]bool, len(rows))
	for _, r := range rows {
		recorded[r.StudentID] = true
		st, ok := byID[r.StudentID]
		if !ok {
			found, err := a.roster.StudentByID(ctx, r.StudentID)
			if err != nil {
				return nil, err
			}
			st = model.Student{ID: r.StudentID}
			if found != nil {
				st = *found
			}
		}
		e := Entry{
			StudentID:    st.ID,
			Name:         st.Name,
			Registration: st.Registration,
			Status:       r.Status,
			CheckInTime:  r.CheckInTime,
			RecordedBy:   r.RecordedBy,
		}
		switch r.Status {
		case model.StatusPresent:
			rep.Present = append(rep.Present, e)
		case model.StatusLate:
			rep.Late = append(rep.Late, e)
		default:
			rep.Absent = append(rep.Absent, e)
		}
	}
	for _, s := range roster {
		if recorded[s.ID] {
			continue
		}
		rep.Absent = append(rep.Absent, Entry{
			StudentID:    s.ID,
			Name:         s.Name,
			Registration: s.Registration,
			Status:       model.StatusAbsent,
		})
	}

	for _, list := range [][]Entry{rep.Present, rep.Late, rep.Absent} {
		sortEntries(list)
	}
	return rep, nil
}

func sortEntries(list []Entry) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].StudentID < list[j].StudentID
	})
}

// Frequency is a student's attendance over the sessions of one subject.
type Frequency struct {
	StudentID     string  `json:"student_id"`
	Name          string  `json:"name"`
	Registration  string  `json:"registration"`
	TotalSessions int     `json:"total_sessions"`
	Presents      int     `json:"presents"`
	Lates         int     `json:"lates"`
	Absences      int     `json:"absences"`
	Frequency     float64 `json:"frequency"`
}

// ClassTable is the frequency of every roster student for one subject.
type ClassTable struct {
	ClassID       string      `json:"class_id"`
	SubjectCode   string      `json:"subject_code"`
	TotalSessions int         `json:"total_sessions"`
	Rows          []Frequency `json:"rows"`
}

// tally counts rows per student over a set of sessions.
type tally struct {
	presents, lates int
}

func (a *Aggregator) tallies(ctx context.Context, classID, subjectCode string) (int, map[string]tally, error) {
	sessions, err := a.sessions.ListByClassSubject(ctx, classID, subjectCode)
	if err != nil {
		return 0, nil, err
	}
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	rows, err := a.records.ListForSessions(ctx, ids)
	if err != nil {
		return 0, nil, err
	}

	counts := make(map[string]tally)
	for _, r := range rows {
		t := counts[r.StudentID]
		switch r.Status {
		case model.StatusPresent:
			t.presents++
		case model.StatusLate:
			t.lates++
		}
		counts[r.StudentID] = t
	}
	return len(sessions), counts, nil
}

func frequencyOf(s model.Student, total int, t tally) Frequency {
	f := Frequency{
		StudentID:     s.ID,
		Name:          s.Name,
		Registration:  s.Registration,
		TotalSessions: total,
		Presents:      t.presents,
		Lates:         t.lates,
		Absences:      total - t.presents - t.lates,
		Frequency:     100,
	}
	if total > 0 {
		pct := float64(t.presents+t.lates) / float64(total) * 100
		f.Frequency = math.Round(pct*100) / 100
	}
	return f
}

// StudentSubject returns one student's frequency for a class subject.
func (a *Aggregator) StudentSubject(ctx context.Context, studentID, classID, subjectCode string) (*Frequency, error) {
	st, err := a.roster.StudentByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrStudentNotFound
	}
	total, counts, err := a.tallies(ctx, classID, normalizeSubject(subjectCode))
	if err != nil {
		return nil, err
	}
	f := frequencyOf(*st, total, counts[studentID])
	return &f, nil
}

// ClassTableBySubject returns the frequency table of a class for a subject.
func (a *Aggregator) ClassTableBySubject(ctx context.Context, classID, subjectCode string) (*ClassTable, error) {
	code := normalizeSubject(subjectCode)
	total, counts, err := a.tallies(ctx, classID, code)
	if err != nil {
		return nil, err
	}
	roster, err := a.roster.RosterOfClass(ctx, classID)
	if err != nil {
		return nil, err
	}

	table := &ClassTable{ClassID: classID, SubjectCode: code, TotalSessions: total, Rows: make([]Frequency, 0, len(roster))}
	for _, s := range roster {
		table.Rows = append(table.Rows, frequencyOf(s, total, counts[s.ID]))
	}
	sort.SliceStable(table.Rows, func(i, j int) bool { return table.Rows[i].Name < table.Rows[j].Name })
	return table, nil
}

func normalizeSubject(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
