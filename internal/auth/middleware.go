package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
)

const identityContextKey = "identity"

// Middleware extracts and verifies the caller's credential.
type Middleware struct {
	verifier   *JWTVerifier
	cookieName string
}

func NewMiddleware(verifier *JWTVerifier, cookieName string) *Middleware {
	if cookieName == "" {
		cookieName = "token"
	}
	return &Middleware{verifier: verifier, cookieName: cookieName}
}

// Require authenticates the request and, when roles are given, requires one of them.
func (m *Middleware) Require(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := m.verifier.Verify(m.extractToken(c.Request))
		if err != nil {
			abort(c, apperrors.NewUnauthorized("authentication required"))
			return
		}
		if len(roles) > 0 && !id.HasRole(roles...) {
			abort(c, apperrors.NewForbidden("role not permitted"))
			return
		}

		c.Set(identityContextKey, id)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func (m *Middleware) extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie(m.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return strings.TrimSpace(r.Header.Get("x-access-token"))
}

// FromGin returns the identity stored by Require.
func FromGin(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(identityContextKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok
}

func abort(c *gin.Context, err *apperrors.Error) {
	body := gin.H{
		"kind":    err.Kind,
		"message": err.Message,
	}
	if requestID := c.GetString("request_id"); requestID != "" {
		body["request_id"] = requestID
	}
	c.AbortWithStatusJSON(apperrors.HTTPStatus(err.Kind), body)
}
