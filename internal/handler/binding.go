package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"classroll/internal/apperr"
	"classroll/internal/model"
	"classroll/internal/response"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding rules on gin's validator
// and reports field names the way clients send them.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "uri", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
		_ = v.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
			_, ok := model.ParseStatus(fl.Field().String())
			return ok
		})
	})
}

// bindError answers a failed bind with a validation envelope naming the
// first offending field.
func bindError(c *gin.Context, err error) {
	response.Abort(c, nil, apperr.Validation(describeBindError(err)))
}

func describeBindError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		switch fe.Tag() {
		case "required":
			return fmt.Sprintf("%s is required", fe.Field())
		case "uuid":
			return fmt.Sprintf("%s must be a valid uuid", fe.Field())
		case "attendance_status":
			return fmt.Sprintf("%s must be present, late or absent", fe.Field())
		case "min", "max":
			return fmt.Sprintf("%s must respect %s=%s", fe.Field(), fe.Tag(), fe.Param())
		default:
			return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
		}
	}
	var se *json.SyntaxError
	var te *json.UnmarshalTypeError
	switch {
	case errors.As(err, &se):
		return "malformed json body"
	case errors.As(err, &te):
		return fmt.Sprintf("%s has the wrong type", te.Field)
	}
	return "invalid request"
}

func bindURI(c *gin.Context, dst any) bool {
	if err := c.ShouldBindUri(dst); err != nil {
		bindError(c, err)
		return false
	}
	return true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		bindError(c, err)
		return false
	}
	return true
}
