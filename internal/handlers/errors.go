package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/auth"
	apperrors "github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/middleware"
)

// handleError writes the structured error body for err. Errors outside the
// taxonomy are reported as INTERNAL_ERROR without their text.
func (h *Handlers) handleError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewInternal(err)
	}

	status := apperrors.HTTPStatus(appErr.Kind)
	requestID := middleware.RequestIDFromContext(c.Request.Context())
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", logging.Fields{
			"kind":       string(appErr.Kind),
			"path":       c.FullPath(),
			"request_id": requestID,
			"error":      err,
		})
	}

	body := gin.H{
		"kind":    appErr.Kind,
		"message": appErr.Message,
	}
	if appErr.Field != "" {
		body["field"] = appErr.Field
	}
	if len(appErr.Details) > 0 && appErr.Kind != apperrors.KindInternal {
		body["details"] = appErr.Details
	}
	if requestID != "" {
		body["request_id"] = requestID
	}
	c.AbortWithStatusJSON(status, body)
}

// identity returns the authenticated caller or writes a 401.
func (h *Handlers) identity(c *gin.Context) (*auth.Identity, bool) {
	id, ok := auth.FromGin(c)
	if !ok {
		h.handleError(c, apperrors.NewUnauthorized("authentication required"))
		return nil, false
	}
	return id, true
}

// bindOptionalJSON decodes the body into dest; an empty body leaves dest untouched.
func (h *Handlers) bindOptionalJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil && !errors.Is(err, io.EOF) {
		h.handleError(c, apperrors.NewValidationError("body", "request body must be valid JSON"))
		return false
	}
	return true
}
