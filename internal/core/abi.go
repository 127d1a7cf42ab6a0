// Package core implements the plugin lifecycle subsystem: discovery, dynamic
// loading, hot-swap, and crash-resistant rollback of externally built
// request-handler plugins.
package core

import (
	"fmt"

	"github.com/pluginhost/pluginhostd/sdk"
)

// FactorySymbol is the exported symbol every plugin artifact must provide.
// It is resolved with plugin.Open(path).Lookup(FactorySymbol) and must be a
// func() sdk.Plugin. The ABI types below are aliases of the sdk package,
// not lookalike redeclarations: plugin.Lookup's result is only usable
// through a type assertion against the exact declared function type, so
// the host and every plugin artifact must resolve createPlugin through the
// same named type. The declarations live in sdk, the one package code
// outside this module can import, and core aliases them.
const FactorySymbol = "createPlugin"

// Category is the closed set of roles a loaded Plugin can play.
type Category = sdk.Category

const (
	CategoryController = sdk.CategoryController
	CategoryEndpoint   = sdk.CategoryEndpoint
	CategoryRouter     = sdk.CategoryRouter
)

// Request is the structural shape the HTTP layer and plugins agree on.
type Request = sdk.Request

// Response is the structural shape a plugin handler returns.
type Response = sdk.Response

// Handler is the memoised, callable form of an EndpointPlugin.
type Handler = sdk.Handler

// Plugin is the lifecycle contract every loaded artifact must satisfy.
// Initialize is called exactly once between creation and first use;
// Cleanup is called exactly once before the owning Handle is closed.
type Plugin = sdk.Plugin

// EndpointPlugin is a Plugin that additionally serves one (method, path)
// pair. Handler() must be safe to call repeatedly; the Registry memoises the
// result on first request after Initialize and drops the cache as the first
// step of the entry's destruction sequence, before Cleanup runs.
type EndpointPlugin = sdk.EndpointPlugin

// LoadError is the taxonomy of recoverable failures from Loader.Load. None
// of these are fatal: the Controller decides whether to retry, drop, or
// enter the restore loop.
type LoadError struct {
	Path string
	Kind LoadErrorKind
	Err  error
}

type LoadErrorKind string

const (
	FileNotFound        LoadErrorKind = "file_not_found"
	OpenFailed           LoadErrorKind = "open_failed"
	SymbolMissing        LoadErrorKind = "symbol_missing"
	FactoryReturnedNull  LoadErrorKind = "factory_returned_null"
	FactorySignatureBad  LoadErrorKind = "factory_signature_bad"
)

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Path, e.Kind)
}

func (e *LoadError) Unwrap() error { return e.Err }

func newLoadError(path string, kind LoadErrorKind, err error) *LoadError {
	return &LoadError{Path: path, Kind: kind, Err: err}
}
