package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidationErrorToGinResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/plugins/reload", nil)

	NewValidationError("path is required", "path").ToGinResponse(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.Equal(t, "path is required", body["error"])
	assert.Equal(t, map[string]interface{}{"field": "path"}, body["details"])
}

func TestNewPluginErrorWrapsCause(t *testing.T) {
	cause := errors.New("load file_not_found")
	err := NewPluginError("hello", "reload", cause)

	assert.Equal(t, "PLUGIN_ERROR", err.Code)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), cause.Error())
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
}

func TestHandleNotFoundWritesCorrectStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/admin/plugins/missing", nil)

	HandleNotFound(c, "plugin", "missing")

	assert.Equal(t, http.StatusNotFound, w.Code)
}
