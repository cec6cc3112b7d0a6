// Package ctxkey defines shared context key types used across multiple packages.
// This package should have no dependencies on other internal packages to avoid import cycles.
package ctxkey

// UserContextKey is the context key type for the authenticated UserContext.
// Set by the HTTP bearer middleware, read by handlers and the MCP backend
// header injector.
type UserContextKey struct{}

// RequestIDKey is the context key type for the per-request id attached to
// log lines and audit records.
type RequestIDKey struct{}
