package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pluginhost/pluginhostd/internal/core"
)

// Dispatch forwards a request to whatever EndpointPlugin the Registry has
// installed for its (method, path) pair. It is registered as gin's NoRoute
// handler, since the set of served paths changes as plugins are hot-swapped
// and can't be declared as static gin routes.
type Dispatch struct {
	module *core.Module
}

func NewDispatch(module *core.Module) *Dispatch {
	return &Dispatch{module: module}
}

func (d *Dispatch) Handle(c *gin.Context) {
	handler, ok := d.module.GetHandler(c.Request.Method, c.Request.URL.Path)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no plugin registered for this route"})
		return
	}

	body, _ := io.ReadAll(c.Request.Body)

	req := core.Request{
		Method:  c.Request.Method,
		Path:    c.Request.URL.Path,
		Body:    string(body),
		Headers: c.Request.Header,
	}

	resp := handler(req)

	for k, vv := range resp.Headers {
		for _, v := range vv {
			c.Writer.Header().Add(k, v)
		}
	}
	c.String(resp.Status, resp.Body)
}
