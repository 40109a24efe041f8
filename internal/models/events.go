package models

import "time"

const (
	EventKindGeneration  = "generation"
	EventKindAnswerBatch = "answer_batch"
)

const (
	OutcomeSucceeded   = "succeeded"
	OutcomeFailed      = "failed"
	OutcomeRateLimited = "rate_limited"
)

// UsageEvent is published to Kafka after every generation or answer-batch
// cycle, successful or not. It feeds the analytics pipeline downstream.
type UsageEvent struct {
	UserID        string         `json:"user_id"`
	Kind          string         `json:"kind"`
	Mode          GenerationMode `json:"mode,omitempty"`
	Outcome       string         `json:"outcome"`
	QuestionCount int            `json:"question_count,omitempty"`
	ErrorKind     ErrorKind      `json:"error_kind,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}
