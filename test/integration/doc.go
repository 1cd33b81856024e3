// Package integration contains integration tests for the session sharing service.
//
// These tests use testcontainers to spin up real dependencies (Redis) and
// exercise the shared rate limit counters against a production-like server.
package integration
