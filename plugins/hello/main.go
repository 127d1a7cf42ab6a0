// Package main builds as a shared object via `go build -buildmode=plugin`.
// It is the reference implementation of the sdk contract: an EndpointPlugin
// that serves GET /hello.
package main

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/pluginhost/pluginhostd/sdk"
)

type helloPlugin struct {
	logger hclog.Logger
	served atomic.Int64
}

func (p *helloPlugin) Name() string           { return "hello" }
func (p *helloPlugin) Category() sdk.Category { return sdk.CategoryEndpoint }
func (p *helloPlugin) Method() string         { return "GET" }
func (p *helloPlugin) Path() string           { return "/hello" }

func (p *helloPlugin) Initialize() error {
	p.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "plugin.hello",
		Output: os.Stderr,
		Level:  hclog.Info,
	})
	p.logger.Info("initialized")
	return nil
}

func (p *helloPlugin) Cleanup() error {
	p.logger.Info("cleanup", "served", p.served.Load())
	return nil
}

func (p *helloPlugin) Handler() sdk.Handler {
	return func(r sdk.Request) sdk.Response {
		p.served.Add(1)
		return sdk.NewResponse(200, fmt.Sprintf("hello, %s %s", r.Method, r.Path))
	}
}

var _ sdk.EndpointPlugin = (*helloPlugin)(nil)

// createPlugin is the symbol the host resolves with plugin.Open(path).Lookup.
// Its signature must be exactly func() sdk.Plugin.
func createPlugin() sdk.Plugin {
	return &helloPlugin{}
}
