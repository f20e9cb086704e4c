// Package handler exposes the attendance, session, report and totem
// services over HTTP.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classroll/internal/attendance"
	"classroll/internal/auth"
	"classroll/internal/faceclient"
	"classroll/internal/model"
	"classroll/internal/report"
	"classroll/internal/session"
	"classroll/internal/totem"
)

// Marker is the attendance marking engine.
type Marker interface {
	MarkByFace(ctx context.Context, facialID, roomID string) (attendance.Outcome, error)
	MarkManual(ctx context.Context, in attendance.ManualInput, p model.Principal) (model.Attendance, error)
	ConfirmPending(ctx context.Context, sessionID string, p model.Principal, studentIDs []string) (attendance.ConfirmResult, error)
	ListPending(ctx context.Context, roomID string, p model.Principal) ([]model.PendingAttendance, error)
	DiscardPending(ctx context.Context, roomID string, p model.Principal) error
	UpdateStatus(ctx context.Context, id string, status model.AttendanceStatus, p model.Principal) (model.Attendance, error)
	Delete(ctx context.Context, id string, p model.Principal) error
	ListBySession(ctx context.Context, sessionID string) ([]model.Attendance, error)
	ListByStudent(ctx context.Context, studentID string) ([]model.Attendance, error)
	ListByClass(ctx context.Context, classID string) ([]model.Attendance, error)
}

// Sessions is the session lifecycle.
type Sessions interface {
	Get(ctx context.Context, id string) (*model.ClassSession, error)
	Open(ctx context.Context, in session.OpenInput) (*model.ClassSession, error)
	Close(ctx context.Context, id string) (*model.ClassSession, error)
}

// Reports is the reporting aggregator.
type Reports interface {
	SessionReport(ctx context.Context, sessionID string) (*report.SessionReport, error)
	StudentSubject(ctx context.Context, studentID, classID, subjectCode string) (*report.Frequency, error)
	ClassTableBySubject(ctx context.Context, classID, subjectCode string) (*report.ClassTable, error)
}

// Totems manages totem registrations.
type Totems interface {
	auth.TotemAuthenticator
	Create(ctx context.Context, in totem.CreateInput) (*model.Totem, error)
	Get(ctx context.Context, id string) (*model.Totem, error)
	List(ctx context.Context) ([]model.Totem, error)
	SetActive(ctx context.Context, id string, active bool) (*model.Totem, error)
	RegenerateKey(ctx context.Context, id string) (*model.Totem, error)
}

// Recognizer turns an image into a facial id.
type Recognizer interface {
	Recognize(ctx context.Context, roomID, imageURL string) (*faceclient.RecognizeResult, error)
}

// ClassAuthorizer decides who may act on a class.
type ClassAuthorizer interface {
	CanRecord(ctx context.Context, p model.Principal, s *model.ClassSession) (bool, error)
	CanRecordClass(ctx context.Context, p model.Principal, classID string) (bool, error)
}

// Classes answers whether a class exists.
type Classes interface {
	ClassExists(ctx context.Context, classID string) (bool, error)
}

// Deps wires the handler.
type Deps struct {
	Marker       Marker
	Sessions     Sessions
	Reports      Reports
	Totems       Totems
	Faces        Recognizer
	Authz        ClassAuthorizer
	Classes      Classes
	Logger       *zap.Logger
	StoreTimeout time.Duration
}

type Handler struct {
	marker   Marker
	sessions Sessions
	reports  Reports
	totems   Totems
	faces    Recognizer
	authz    ClassAuthorizer
	classes  Classes
	log      *zap.Logger
	timeout  time.Duration
}

func New(d Deps) *Handler {
	RegisterValidators()
	h := &Handler{
		marker:   d.Marker,
		sessions: d.Sessions,
		reports:  d.Reports,
		totems:   d.Totems,
		faces:    d.Faces,
		authz:    d.Authz,
		classes:  d.Classes,
		log:      d.Logger,
		timeout:  d.StoreTimeout,
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	if h.timeout <= 0 {
		h.timeout = 3 * time.Second
	}
	return h
}

// Register mounts the API routes. bearer authenticates users; totem
// requests are authenticated by their API key.
func (h *Handler) Register(r gin.IRouter, bearer gin.HandlerFunc) {
	v1 := r.Group("/v1")

	v1.POST("/attendance/facial", auth.TotemKey(h.totems), h.MarkFacial)

	users := v1.Group("", bearer)
	att := users.Group("/attendance")
	att.POST("/manual", h.MarkManual)
	att.PATCH("/:id", h.UpdateAttendance)
	att.DELETE("/:id", h.DeleteAttendance)
	att.GET("/session/:id", h.ListBySession)
	att.GET("/session/:id/full-report", h.SessionReport)
	att.GET("/student/:id", h.ListByStudent)
	att.GET("/student/:id/class/:class_id/subject/:code", h.StudentSubject)
	att.GET("/class/:id", h.ListByClass)
	att.GET("/class/:id/subject/:code/table", h.ClassTable)

	sessions := users.Group("/sessions")
	sessions.POST("", h.OpenSession)
	sessions.GET("/:id", h.GetSession)
	sessions.POST("/:id/close", h.CloseSession)
	sessions.POST("/:id/confirm-pending", h.ConfirmPending)

	rooms := users.Group("/rooms")
	rooms.GET("/:id/pending", h.ListPending)
	rooms.DELETE("/:id/pending", h.DiscardPending)

	totems := users.Group("/totems", auth.RequireRole(model.RoleCoordinator))
	totems.POST("", h.CreateTotem)
	totems.GET("", h.ListTotems)
	totems.GET("/:id", h.GetTotem)
	totems.POST("/:id/regenerate-key", h.RegenerateTotemKey)
	totems.PATCH("/:id/status", h.SetTotemStatus)
}

// requestCtx bounds store calls made on behalf of one request.
func (h *Handler) requestCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

type idURI struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// bindOptionalJSON binds the body when one was sent.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }
