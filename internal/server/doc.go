// Package server contains the HTTP surface of the listening stats backend:
// routing, middleware, the authorization flow endpoints, and the proxied
// stats endpoints.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first),
// following the standard Go pattern. The [BasicRouter] implementation uses
// [http.ServeMux] internally with method filtering.
//
// # Handlers
//
// [AuthHandler] owns the browser-facing authorization flow:
//
//	GET  /auth/login    → redirect to the provider authorize URL
//	GET  /auth/callback → state validation, code exchange, session commit
//	POST /auth/logout   → destroy the session
//	GET  /auth/status   → JSON authentication status
//
// [StatsHandler] proxies the listening stats resources through the
// authenticated request gateway:
//
//	GET /api/me             → profile
//	GET /api/top/tracks     → top tracks (time_range, limit)
//	GET /api/top/artists    → top artists (time_range, limit)
//	GET /api/recent         → recently played (limit), archived as a side effect
//	GET /api/recent/archive → locally archived play history
//
// Flow failures redirect the browser to the configured error destination with
// a machine-readable reason code; API failures return a structured error body
// with a status mirroring the failure class (401 for auth failures, the
// upstream status for passthrough errors, 500 for unexpected faults).
package server
