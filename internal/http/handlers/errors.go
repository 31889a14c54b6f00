// Package handlers defines the HTTP-layer error codes used across all API
// endpoints.
//
// These symbolic constants give clients a stable, machine-readable taxonomy
// that supplements the human-readable message. Generic codes mirror common
// HTTP status semantics; domain-specific codes are reserved for business
// failures that the status alone cannot convey.
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeVerifyFailed     = "verify_failed"
	ErrCodeWebhookFailed    = "webhook_failed"
	ErrCodeHistoryFailed    = "history_failed"
	ErrCodeStatsFailed      = "stats_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
