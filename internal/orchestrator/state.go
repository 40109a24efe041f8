package orchestrator

import (
	"time"

	"github.com/prepdeck/prepdeck/internal/models"
)

// State is the generation machine's position:
// Idle → Validating → Requesting → {Succeeded, Failed, RateLimited} → Idle.
type State string

const (
	StateIdle        State = "idle"
	StateValidating  State = "validating"
	StateRequesting  State = "requesting"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
	StateRateLimited State = "rate_limited"
)

// StatusUpdate is one observed transition. Every failure yields exactly one
// update carrying a human-readable message; the UI's notification layer
// renders it as-is.
type StatusUpdate struct {
	UserID    string           `json:"user_id"`
	State     State            `json:"state"`
	ErrorKind models.ErrorKind `json:"error_kind,omitempty"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Status is the queryable snapshot exposed to the gateway.
type Status struct {
	State       State            `json:"state"`
	LastOutcome State            `json:"last_outcome,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	ErrorKind   models.ErrorKind `json:"error_kind,omitempty"`
}
