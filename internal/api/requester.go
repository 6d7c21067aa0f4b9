package api

import "context"

// PathResolver builds full URLs for API endpoints without exposing the
// base URL or account ID details to services.
type PathResolver interface {
	// accountPath returns the full URL for account-scoped operator endpoints.
	// Example: accountPath("/tickets") -> ".../api/v1/accounts/42/tickets"
	accountPath(path string) string

	// clientPath returns the full URL for client portal endpoints.
	// Example: clientPath("/tickets/7/replies") -> ".../client/api/v1/tickets/7/replies"
	clientPath(path string) string
}

// HTTPExecutor executes HTTP requests, handling JSON serialization,
// retries, and error mapping. It can be mocked independently from path
// resolution in tests.
type HTTPExecutor interface {
	// do executes a request with JSON body and response parsing. The body
	// is marshaled if non-nil; the response is unmarshaled into result if
	// non-nil.
	do(ctx context.Context, method, url string, body any, result any) error

	// doRaw executes a request and returns the raw response bytes.
	doRaw(ctx context.Context, method, url string, body any) ([]byte, error)
}

// Requester combines PathResolver and HTTPExecutor. It is the surface
// the resource services depend on; services that need only a subset can
// depend on the smaller interfaces.
type Requester interface {
	PathResolver
	HTTPExecutor
}
