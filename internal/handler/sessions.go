package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"classroll/internal/apperr"
	"classroll/internal/auth"
	"classroll/internal/model"
	"classroll/internal/response"
	"classroll/internal/session"
)

const dateLayout = "2006-01-02"

type openSessionRequest struct {
	ClassID     string `json:"class_id" binding:"required,uuid"`
	RoomID      string `json:"room_id" binding:"required,uuid"`
	TeacherID   string `json:"teacher_id" binding:"omitempty,uuid"`
	SubjectCode string `json:"subject_code" binding:"required,min=2,max=20"`
	Name        string `json:"name" binding:"required,min=3,max=80"`
	Date        string `json:"date" binding:"omitempty,datetime=2006-01-02"`
}

// OpenSession opens a session. Teachers open sessions for themselves on
// their own classes; coordinators name the teacher.
func (h *Handler) OpenSession(c *gin.Context) {
	var req openSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	p, _ := auth.PrincipalFrom(c)

	teacherID := req.TeacherID
	if !p.IsCoordinator() {
		if teacherID != "" && teacherID != p.ID {
			response.Fail(c, apperr.KindForbidden, "teachers can only open their own sessions")
			return
		}
		teacherID = p.ID
	}
	if teacherID == "" {
		response.Fail(c, apperr.KindValidation, "teacher_id is required")
		return
	}

	var date time.Time
	if req.Date != "" {
		date, _ = time.Parse(dateLayout, req.Date)
	}

	ctx, cancel := h.requestCtx(c)
	defer cancel()

	exists, err := h.classes.ClassExists(ctx, req.ClassID)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	if !exists {
		response.Fail(c, apperr.KindNotFound, "class not found")
		return
	}

	allowed, err := h.authz.CanRecordClass(ctx, p, req.ClassID)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	if !allowed {
		response.Fail(c, apperr.KindForbidden, "only a coordinator or a teacher of the class can open a session")
		return
	}

	s, err := h.sessions.Open(ctx, session.OpenInput{
		ClassID:     req.ClassID,
		RoomID:      req.RoomID,
		TeacherID:   teacherID,
		SubjectCode: req.SubjectCode,
		Name:        req.Name,
		Date:        date,
	})
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handler) GetSession(c *gin.Context) {
	var uri idURI
	if !bindURI(c, &uri) {
		return
	}
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	s, err := h.sessions.Get(ctx, uri.ID)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// CloseSession closes the session. Closing twice returns the same state.
func (h *Handler) CloseSession(c *gin.Context) {
	var uri idURI
	if !bindURI(c, &uri) {
		return
	}
	p, _ := auth.PrincipalFrom(c)
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	s, err := h.sessions.Get(ctx, uri.ID)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	if !h.allowed(c, p, s) {
		return
	}
	closed, err := h.sessions.Close(ctx, uri.ID)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, closed)
}

func (h *Handler) allowed(c *gin.Context, p model.Principal, s *model.ClassSession) bool {
	ok, err := h.authz.CanRecord(c.Request.Context(), p, s)
	if err != nil {
		response.Abort(c, h.log, err)
		return false
	}
	if !ok {
		response.Fail(c, apperr.KindForbidden, "only a coordinator or a teacher of the class can manage this session")
		return false
	}
	return true
}

type confirmPendingRequest struct {
	StudentIDs []string `json:"student_ids" binding:"omitempty,dive,uuid"`
}

// ConfirmPending confirms the pre-attendances of the session's room.
func (h *Handler) ConfirmPending(c *gin.Context) {
	var uri idURI
	if !bindURI(c, &uri) {
		return
	}
	var req confirmPendingRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		bindError(c, err)
		return
	}
	p, _ := auth.PrincipalFrom(c)
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	res, err := h.marker.ConfirmPending(ctx, uri.ID, p, req.StudentIDs)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListPending lists a room's pre-attendances. Teachers only see rooms
// whose open session belongs to their class.
func (h *Handler) ListPending(c *gin.Context) {
	var uri idURI
	if !bindURI(c, &uri) {
		return
	}
	p, _ := auth.PrincipalFrom(c)
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	items, err := h.marker.ListPending(ctx, uri.ID, p)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *Handler) DiscardPending(c *gin.Context) {
	var uri idURI
	if !bindURI(c, &uri) {
		return
	}
	p, _ := auth.PrincipalFrom(c)
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	if err := h.marker.DiscardPending(ctx, uri.ID, p); err != nil {
		response.Abort(c, h.log, err)
		return
	}
	noContent(c)
}
