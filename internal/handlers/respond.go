package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/4uJustDev/medical-calculator-haq/internal/models"
	"github.com/4uJustDev/medical-calculator-haq/internal/views"

	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
)

// Keys the router middleware stores in the gin context.
const (
	CSRFTokenKey = "csrf_token"
	CSPNonceKey  = "csp_nonce"
)

func isHTMX(c *gin.Context) bool {
	return c.GetHeader("HX-Request") == "true"
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), gin.MIMEJSON) ||
		strings.HasPrefix(c.ContentType(), gin.MIMEJSON)
}

// render writes an htmx fragment, or the full layout for direct navigation.
func render(c *gin.Context, status int, title, tab string, component templ.Component) {
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")

	var err error
	if isHTMX(c) {
		err = component.Render(c.Request.Context(), c.Writer)
	} else {
		layout := views.Layout(title, tab, c.GetString(CSRFTokenKey), c.GetString(CSPNonceKey))
		err = layout.Render(templ.WithChildren(c.Request.Context(), component), c.Writer)
	}
	if err != nil {
		_ = c.Error(err)
	}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrSubmissionNotFound):
		return http.StatusNotFound
	case models.IsValidationError(err):
		return http.StatusUnprocessableEntity
	case models.IsStorageError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is the notification text shown for an error.
func userMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrIncompleteQuiz):
		return "Please answer every question before submitting."
	case errors.Is(err, models.ErrPatientInfoRequired):
		return "Please enter the patient's details first."
	case errors.Is(err, models.ErrAlreadySubmitted):
		return "These answers have already been submitted."
	case errors.Is(err, models.ErrSubmissionNotFound):
		return "That submission no longer exists."
	case models.IsValidationError(err):
		return "Please check your input: " + err.Error()
	case models.IsStorageError(err):
		return "Local storage is unavailable. Please try again later."
	case models.IsExportError(err):
		return "Export failed. The report could not be created."
	default:
		return "Something went wrong. Please try again."
	}
}
