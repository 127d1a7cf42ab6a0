package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pluginhost/pluginhostd/internal/core"
)

type testEndpointPlugin struct {
	name   string
	method string
	path   string
}

func (p *testEndpointPlugin) Name() string           { return p.name }
func (p *testEndpointPlugin) Category() core.Category { return core.CategoryEndpoint }
func (p *testEndpointPlugin) Method() string         { return p.method }
func (p *testEndpointPlugin) Path() string           { return p.path }
func (p *testEndpointPlugin) Initialize() error      { return nil }
func (p *testEndpointPlugin) Cleanup() error         { return nil }
func (p *testEndpointPlugin) Handler() core.Handler {
	return func(r core.Request) core.Response {
		return core.Response{Status: http.StatusOK, Body: "echo:" + r.Body}
	}
}

var _ core.EndpointPlugin = (*testEndpointPlugin)(nil)

func newTestModule(t *testing.T) *core.Module {
	t.Helper()
	return core.NewModule(t.TempDir(), true, hclog.NewNullLogger())
}

func TestDispatchForwardsToInstalledPlugin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	module := newTestModule(t)
	require.True(t, module.Registry.Install("/fake/echo_v1.so", &testEndpointPlugin{name: "echo", method: "POST", path: "/echo"}))

	r := gin.New()
	r.NoRoute(NewDispatch(module).Handle)

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("hi"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "echo:hi", w.Body.String())
}

func TestDispatchReturns404WhenNoPluginRegistered(t *testing.T) {
	gin.SetMode(gin.TestMode)
	module := newTestModule(t)

	r := gin.New()
	r.NoRoute(NewDispatch(module).Handle)

	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
