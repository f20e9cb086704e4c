package auth

import (
	"context"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"classroll/internal/apperr"
	"classroll/internal/model"
	"classroll/internal/response"
)

const (
	principalKey = "principal"
	totemKey     = "totem"

	// TotemHeader carries a totem's API key.
	TotemHeader = "X-Totem-Api-Key"
)

// Bearer enforces HS256 bearer tokens and stores the caller's Principal.
func Bearer(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			response.Fail(c, apperr.KindUnauthorized, "missing bearer token")
			return
		}
		claims, err := Parse(strings.TrimSpace(authz[len("bearer "):]), signingKey, issuer)
		if err != nil {
			response.Fail(c, apperr.KindUnauthorized, "invalid token")
			return
		}
		c.Set(principalKey, claims.Principal())
		c.Next()
	}
}

// RequireRole lets through only principals holding one of roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			response.Fail(c, apperr.KindUnauthorized, "authentication required")
			return
		}
		if !slices.Contains(roles, p.Role) {
			response.Fail(c, apperr.KindForbidden, "insufficient role")
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the principal stored by Bearer.
func PrincipalFrom(c *gin.Context) (model.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return model.Principal{}, false
	}
	p, ok := v.(model.Principal)
	return p, ok
}

// TotemAuthenticator resolves a totem API key.
type TotemAuthenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*model.Totem, error)
}

// TotemKey authenticates the X-Totem-Api-Key header and stores the totem.
func TotemKey(a TotemAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := a.Authenticate(c.Request.Context(), c.GetHeader(TotemHeader))
		if err != nil {
			response.Abort(c, nil, err)
			return
		}
		c.Set(totemKey, t)
		c.Next()
	}
}

// TotemFrom returns the totem stored by TotemKey.
func TotemFrom(c *gin.Context) (*model.Totem, bool) {
	v, ok := c.Get(totemKey)
	if !ok {
		return nil, false
	}
	t, ok := v.(*model.Totem)
	return t, ok
}
