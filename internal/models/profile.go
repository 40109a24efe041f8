package models

import (
	"time"

	"github.com/lib/pq"
)

// Profile is a user's persisted record. The quota pair
// (LastGenerationDate, GenerationCountToday) is only meaningful while the
// stored date matches the current UTC calendar day; a stale date reads as
// zero usage without ever being physically reset.
type Profile struct {
	UserID               string         `json:"user_id" db:"user_id"`
	StudyStreak          int            `json:"study_streak" db:"study_streak"`
	LastGenerationDate   time.Time      `json:"last_generation_date" db:"last_generation_date"`
	GenerationCountToday int            `json:"generation_count_today" db:"generation_count_today"`
	PreferredSubjects    pq.StringArray `json:"preferred_subjects" db:"preferred_subjects"`
	CreatedAt            time.Time      `json:"created_at" db:"created_at"`
}

// ProfileDelta is a partial profile mutation delivered over the push
// channel. The two quota fields are always written together as a pair;
// a delta carrying only one of them is dropped by the merge.
type ProfileDelta struct {
	UserID               string     `json:"user_id"`
	StudyStreak          *int       `json:"study_streak,omitempty"`
	LastGenerationDate   *time.Time `json:"last_generation_date,omitempty"`
	GenerationCountToday *int       `json:"generation_count_today,omitempty"`
	PreferredSubjects    []string   `json:"preferred_subjects,omitempty"`
}

// QuotaState is the derived daily usage view. It is recomputed from the
// profile on every read and never mutated directly.
type QuotaState struct {
	UsedToday      int  `json:"used_today"`
	RemainingToday int  `json:"remaining_today"`
	LimitReached   bool `json:"limit_reached"`
}
