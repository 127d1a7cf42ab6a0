package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pluginhost/pluginhostd/internal/core"
)

func TestAdminListPluginsReportsInstalledEntries(t *testing.T) {
	gin.SetMode(gin.TestMode)
	module := newTestModule(t)
	require.True(t, module.Registry.Install("/fake/echo_v1.so", &testEndpointPlugin{name: "echo", method: "GET", path: "/echo"}))

	r := gin.New()
	r.GET("/admin/plugins", NewAdmin(module).ListPlugins)

	req := httptest.NewRequest(http.MethodGet, "/admin/plugins", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Plugins []map[string]interface{} `json:"plugins"`
		Count   int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "echo", body.Plugins[0]["name"])
	assert.Equal(t, "GET", body.Plugins[0]["method"])
}

func TestAdminListBackupsEmptyByDefault(t *testing.T) {
	gin.SetMode(gin.TestMode)
	module := newTestModule(t)

	r := gin.New()
	r.GET("/admin/backups", NewAdmin(module).ListBackups)

	req := httptest.NewRequest(http.MethodGet, "/admin/backups", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"backups":[],"count":0}`, w.Body.String())
}

func TestAdminHealthReportsStatusOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	module := newTestModule(t)

	r := gin.New()
	r.GET("/admin/health", NewAdmin(module).Health)

	req := httptest.NewRequest(http.MethodGet, "/admin/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestAdminTriggerReloadRejectsMissingPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	module := newTestModule(t)

	r := gin.New()
	r.POST("/admin/plugins/reload", NewAdmin(module).TriggerReload)

	req := httptest.NewRequest(http.MethodPost, "/admin/plugins/reload", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminTriggerReloadAcceptsKnownArtifact(t *testing.T) {
	gin.SetMode(gin.TestMode)
	module := newTestModule(t)

	r := gin.New()
	r.POST("/admin/plugins/reload", NewAdmin(module).TriggerReload)

	req := httptest.NewRequest(http.MethodPost, "/admin/plugins/reload", strings.NewReader(`{"path":"echo_v1.so"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

var _ = core.ArtifactPath("")
