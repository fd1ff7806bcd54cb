// Package services defines the business logic for generation requests, the
// grounded chat flow, and the course catalog. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

// Generation-related errors.
var (
	// ErrInvalidRequest is returned when a generation request fails input
	// validation (empty prompt, out-of-range temperature or max tokens).
	// No record is persisted for such requests.
	ErrInvalidRequest = errors.New("invalid generation request")

	// ErrProviderRejected indicates the provider returned a permanent failure
	// (bad request, auth, safety block, unusable response). Retrying the same
	// request would fail identically.
	ErrProviderRejected = errors.New("provider rejected the request")

	// ErrProviderUnavailable indicates the provider kept failing transiently
	// until the attempt budget or overall deadline ran out.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrStorageUnavailable indicates the persistence layer failed while
	// creating or finalizing a generation record.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrGenerationNotFound indicates that the requested generation record
	// does not exist.
	ErrGenerationNotFound = errors.New("generation not found")
)

// Chat-related errors.
var (
	// ErrNoMessages is returned when a chat request carries an empty
	// conversation.
	ErrNoMessages = errors.New("conversation is empty")

	// ErrLastNotUser is returned when the final message of the conversation
	// is not a user turn.
	ErrLastNotUser = errors.New("last message must be from the user")
)

// Course-related errors.
var (
	// ErrCourseNotFound indicates that the requested course section does not
	// exist in the catalog.
	ErrCourseNotFound = errors.New("course not found")

	// ErrProfessorNotFound indicates that no catalog section matches the
	// requested professor name.
	ErrProfessorNotFound = errors.New("professor not found")
)
