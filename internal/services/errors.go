// Package services defines the business logic for citizen registration and
// knowledge-base question answering. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

var (
	// ErrEmptyMessage is returned when an inbound message carries no text
	// after trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when an inbound message exceeds the maximum
	// configured rune length.
	ErrTooLong = errors.New("message too long")

	// ErrCitizenNotFound indicates that the requested citizen does not exist.
	ErrCitizenNotFound = errors.New("citizen not found")

	// ErrStateConflict indicates that the active registration state changed
	// between read and commit. The message should be retried against the
	// fresh state.
	ErrStateConflict = errors.New("registration state changed concurrently")
)
