package attendance

import (
	"context"
	"slices"

	"classroll/internal/model"
)

// TeacherDirectory resolves the teachers bound to a class.
type TeacherDirectory interface {
	TeachersOfClass(ctx context.Context, classID string) ([]string, error)
}

// Authorizer decides whether a principal may write attendance for a
// session. It knows nothing about transports.
type Authorizer struct {
	teachers TeacherDirectory
}

func NewAuthorizer(teachers TeacherDirectory) *Authorizer {
	return &Authorizer{teachers: teachers}
}

// CanRecord allows coordinators everywhere and teachers on their own classes.
func (a *Authorizer) CanRecord(ctx context.Context, p model.Principal, s *model.ClassSession) (bool, error) {
	return a.CanRecordClass(ctx, p, s.ClassID)
}

// CanRecordClass is CanRecord for a class that has no session yet.
func (a *Authorizer) CanRecordClass(ctx context.Context, p model.Principal, classID string) (bool, error) {
	if p.IsCoordinator() {
		return true, nil
	}
	if p.Role != model.RoleTeacher || p.ID == "" {
		return false, nil
	}
	ids, err := a.teachers.TeachersOfClass(ctx, classID)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, p.ID), nil
}
