// Package errors carries structured, HTTP-aware errors through the admin
// API, matching the host's own error taxonomy (internal/core.LoadError)
// to a JSON response shape instead of a bare 500.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pluginhost/pluginhostd/internal/logger"
)

// HostError is a structured error with an HTTP status and machine-readable
// code, returned from the admin API instead of a plain error string.
type HostError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`
}

func (e *HostError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *HostError) Unwrap() error { return e.Cause }

// ToGinResponse writes the error as the standard admin API error envelope
// and logs it at error level.
func (e *HostError) ToGinResponse(c *gin.Context) {
	status := e.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body := gin.H{"error": e.Message, "code": e.Code}
	if len(e.Context) > 0 {
		body["details"] = e.Context
	}

	logger.Error("admin api error response",
		"status", status,
		"code", e.Code,
		"message", e.Message,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	)

	c.JSON(status, body)
}

func NewValidationError(message, field string) *HostError {
	return &HostError{
		Code:       "VALIDATION_ERROR",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Context:    map[string]interface{}{"field": field},
	}
}

func NewNotFoundError(resource, id string) *HostError {
	return &HostError{
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
		Context:    map[string]interface{}{"resource": resource, "id": id},
	}
}

func NewInternalError(message string, cause error) *HostError {
	return &HostError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewPluginError wraps a failure from the plugin lifecycle subsystem
// (typically a *core.LoadError) with the identity it happened for.
func NewPluginError(identity, operation string, cause error) *HostError {
	return &HostError{
		Code:       "PLUGIN_ERROR",
		Message:    "plugin operation failed",
		HTTPStatus: http.StatusInternalServerError,
		Context:    map[string]interface{}{"identity": identity, "operation": operation},
		Cause:      cause,
	}
}

func HandleValidationError(c *gin.Context, message, field string) {
	NewValidationError(message, field).ToGinResponse(c)
}

func HandleNotFound(c *gin.Context, resource, id string) {
	NewNotFoundError(resource, id).ToGinResponse(c)
}

func HandleInternalError(c *gin.Context, message string, err error) {
	NewInternalError(message, err).ToGinResponse(c)
}

func HandlePluginError(c *gin.Context, identity, operation string, err error) {
	NewPluginError(identity, operation, err).ToGinResponse(c)
}
