package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"classroll/internal/apperr"
	"classroll/internal/attendance"
	"classroll/internal/auth"
	"classroll/internal/model"
	"classroll/internal/report"
	"classroll/internal/response"
)

type facialRequest struct {
	FacialID string `json:"facial_id" binding:"required_without=ImageURL,max=128"`
	ImageURL string `json:"image_url" binding:"omitempty,url"`
}

// MarkFacial handles a totem detection for the totem's room.
func (h *Handler) MarkFacial(c *gin.Context) {
	t, ok := auth.TotemFrom(c)
	if !ok {
		response.Fail(c, apperr.KindUnauthorized, "totem authentication required")
		return
	}
	var req facialRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	facialID := strings.TrimSpace(req.FacialID)
	if facialID == "" {
		res, err := h.faces.Recognize(c.Request.Context(), t.RoomID, req.ImageURL)
		if err != nil {
			response.Abort(c, h.log, err)
			return
		}
		facialID = res.FacialID
	}

	out, err := h.marker.MarkByFace(ctx, facialID, t.RoomID)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	if out.Kind == attendance.KindPreAttendance {
		c.JSON(http.StatusOK, gin.H{
			"type":    out.Kind,
			"message": out.Message,
			"data": gin.H{
				"studentId": out.Pending.StudentID,
				"roomId":    out.Pending.RoomID,
				"timestamp": out.Pending.Timestamp,
			},
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"type": out.Kind, "data": out.Attendance})
}

type manualRequest struct {
	SessionID string `json:"session_id" binding:"required,uuid"`
	StudentID string `json:"student_id" binding:"required,uuid"`
	Status    string `json:"status" binding:"required,attendance_status"`
}

func (h *Handler) MarkManual(c *gin.Context) {
	var req manualRequest
	if !bindJSON(c, &req) {
		return
	}
	p, _ := auth.PrincipalFrom(c)
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	a, err := h.marker.MarkManual(ctx, attendance.ManualInput{
		SessionID: req.SessionID,
		StudentID: req.StudentID,
		Status:    model.AttendanceStatus(req.Status),
	}, p)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required,attendance_status"`
}

// UpdateAttendance corrects the status of a record in an open session.
func (h *Handler) UpdateAttendance(c *gin.Context) {
	var uri idURI
	if !bindURI(c, &uri) {
		return
	}
	var req updateStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	p, _ := auth.PrincipalFrom(c)
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	a, err := h.marker.UpdateStatus(ctx, uri.ID, model.AttendanceStatus(req.Status), p)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// DeleteAttendance removes a record from an open session.
func (h *Handler) DeleteAttendance(c *gin.Context) {
	var uri idURI
	if !bindURI(c, &uri) {
		return
	}
	p, _ := auth.PrincipalFrom(c)
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	if err := h.marker.Delete(ctx, uri.ID, p); err != nil {
		response.Abort(c, h.log, err)
		return
	}
	noContent(c)
}

func (h *Handler) listBy(c *gin.Context, list func(context.Context, string) ([]model.Attendance, error)) {
	var uri idURI
	if !bindURI(c, &uri) {
		return
	}
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	items, err := list(ctx, uri.ID)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *Handler) ListBySession(c *gin.Context) { h.listBy(c, h.marker.ListBySession) }
func (h *Handler) ListByStudent(c *gin.Context) { h.listBy(c, h.marker.ListByStudent) }
func (h *Handler) ListByClass(c *gin.Context)   { h.listBy(c, h.marker.ListByClass) }

func (h *Handler) SessionReport(c *gin.Context) {
	var uri idURI
	if !bindURI(c, &uri) {
		return
	}
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	rep, err := h.reports.SessionReport(ctx, uri.ID)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

type studentSubjectURI struct {
	ID      string `uri:"id" binding:"required,uuid"`
	ClassID string `uri:"class_id" binding:"required,uuid"`
	Code    string `uri:"code" binding:"required,min=2,max=20"`
}

func (h *Handler) StudentSubject(c *gin.Context) {
	var uri studentSubjectURI
	if !bindURI(c, &uri) {
		return
	}
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	f, err := h.reports.StudentSubject(ctx, uri.ID, uri.ClassID, uri.Code)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

type classTableURI struct {
	ID   string `uri:"id" binding:"required,uuid"`
	Code string `uri:"code" binding:"required,min=2,max=20"`
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ClassTable answers JSON by default and an Excel workbook for ?format=xlsx.
func (h *Handler) ClassTable(c *gin.Context) {
	var uri classTableURI
	if !bindURI(c, &uri) {
		return
	}
	format := strings.ToLower(c.DefaultQuery("format", "json"))
	if format != "json" && format != "xlsx" {
		response.Fail(c, apperr.KindValidation, "format must be json or xlsx")
		return
	}
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	table, err := h.reports.ClassTableBySubject(ctx, uri.ID, uri.Code)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	if format == "json" {
		c.JSON(http.StatusOK, table)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteClassTableXLSX(&buf, table); err != nil {
		response.Abort(c, h.log, fmt.Errorf("render xlsx: %w", err))
		return
	}
	filename := fmt.Sprintf("frequency_%s_%s.xlsx", table.SubjectCode, table.ClassID)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
