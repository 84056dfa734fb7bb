// Package middleware provides the HTTP middleware chain for the status API:
// request logging and Prometheus instrumentation.
package middleware
