package models

import "errors"

// ErrorKind classifies a failed orchestrator operation.
type ErrorKind string

const (
	// ErrAuthRequired means no session exists where one is needed.
	ErrAuthRequired ErrorKind = "auth_required"
	// ErrValidationFailed means a required field was missing or another
	// request was already in flight; caught before any network call.
	ErrValidationFailed ErrorKind = "validation_failed"
	// ErrRateLimited means the server signalled quota exhaustion (429).
	ErrRateLimited ErrorKind = "rate_limited"
	// ErrRequestFailed covers any other non-2xx, network or timeout failure.
	ErrRequestFailed ErrorKind = "request_failed"
	// ErrResponseShapeMismatch means an answer batch came back with a
	// different length than the question list that requested it.
	ErrResponseShapeMismatch ErrorKind = "response_shape_mismatch"
)

// UsageStats is the server's usage summary, attached to 429 rejections so
// the caller sees the authoritative counters alongside the refusal.
type UsageStats struct {
	GenerationCountToday int    `json:"generation_count_today"`
	RemainingToday       int    `json:"remaining_today"`
	Streak               int    `json:"streak"`
	LastGenerationDate   string `json:"last_generation_date,omitempty"`
}

// RequestError is the terminal error for one orchestrator cycle. Message is
// the server's wording where available; there is no automatic retry.
type RequestError struct {
	Kind    ErrorKind
	Message string
	Status  int
	Stats   *UsageStats
}

func (e *RequestError) Error() string {
	return e.Message
}

// KindOf extracts the error kind, defaulting to ErrRequestFailed for
// anything that is not a RequestError (network errors, timeouts).
func KindOf(err error) ErrorKind {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ErrRequestFailed
}
