// Package sdk is what a plugin author imports. The host's plugin runtime
// lives under internal/ and the Go toolchain refuses to import it from
// outside this module, so sdk is the only contract an out-of-tree plugin
// can build against.
//
// It is not a structural lookalike of the host's internal types; the host
// aliases its own ABI types onto this package. plugin.Lookup returns the
// symbol as an any that must be asserted against the exact function type
// the host declared, so a plugin's createPlugin has to return a value
// assignable to this package's Plugin - asserting against a distinct but
// identically-shaped interface in another package would fail even though
// the method sets match.
package sdk

// Category is the role a Plugin plays in the host, one of the constants
// below. The host does not check the value Category returns: it installs a
// plugin if it implements EndpointPlugin, whatever its Category.
type Category string

const (
	CategoryController Category = "controller"
	CategoryEndpoint   Category = "endpoint"
	CategoryRouter     Category = "router"
)

// Request is the shape the host hands to an EndpointPlugin's Handler. It
// mirrors the host's internal request type field-for-field.
type Request struct {
	Method  string
	Path    string
	Body    string
	Headers map[string][]string
}

// Response is the shape a Handler must return.
type Response struct {
	Status  int
	Body    string
	Headers map[string][]string
}

// Handler answers one HTTP request. It must be safe to call concurrently:
// the host does not serialize calls across requests.
type Handler func(Request) Response

// Plugin is the lifecycle every plugin artifact implements. Initialize is
// called exactly once, after createPlugin returns and before the plugin is
// registered for use. Cleanup is called exactly once, when the host unloads
// the artifact (a newer artifact superseded it, or it was deleted).
//
// Initialize and Cleanup should be quick. The host calls Initialize
// directly, with no timeout. Cleanup runs under a 5-second bound only when a
// newer artifact replaces the plugin; on delete and at shutdown it is called
// directly. A hang in an unbounded call blocks the host goroutine that made
// it.
type Plugin interface {
	Name() string
	Category() Category
	Initialize() error
	Cleanup() error
}

// EndpointPlugin is a Plugin that also serves one (method, path) pair.
// Handler may be called many times; it should return the same func value
// each time rather than allocating a new closure per call.
type EndpointPlugin interface {
	Plugin
	Method() string
	Path() string
	Handler() Handler
}

// NewResponse is a small convenience for the common case of returning a
// body with no extra headers.
func NewResponse(status int, body string) Response {
	return Response{Status: status, Body: body}
}
