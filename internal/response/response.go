// Package response writes the JSON error envelope shared by every handler.
package response

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classroll/internal/apperr"
)

// Body is the error envelope: {"error":{"kind":..., "message":...}}.
type Body struct {
	Error Detail `json:"error"`
}

type Detail struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

const internalMessage = "internal server error"

// From converts err to a status code and envelope. Errors that carry no
// kind are reported as a generic internal error.
func From(err error) (int, Body) {
	kind := apperr.KindOf(err)
	msg := internalMessage
	if kind != apperr.KindInternal {
		var e *apperr.Error
		if errors.As(err, &e) {
			msg = e.Message
		}
	}
	return apperr.HTTPStatus(kind), Body{Error: Detail{Kind: kind, Message: msg}}
}

// Abort writes the envelope for err and stops the handler chain. Internal
// errors are logged with the request path; log may be nil.
func Abort(c *gin.Context, log *zap.Logger, err error) {
	status, body := From(err)
	if body.Error.Kind == apperr.KindInternal && log != nil {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

// Fail is Abort for errors built on the spot.
func Fail(c *gin.Context, kind apperr.Kind, msg string) {
	Abort(c, nil, apperr.New(kind, msg))
}
