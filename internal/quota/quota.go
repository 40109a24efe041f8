// Package quota derives the daily usage view from a profile and resolves
// conflicts between optimistic local patches and authoritative remote
// deltas. Everything here is pure; callers hold whatever lock guards the
// profile they pass in.
package quota

import (
	"time"

	"github.com/prepdeck/prepdeck/internal/models"
)

// SameUTCDay reports whether a and b fall on the same UTC calendar day.
func SameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Compute derives the quota state for the current UTC day. A stored date
// from a prior day reads as zero usage regardless of the stored counter;
// the counter is never physically reset here.
func Compute(p models.Profile, limit int, now time.Time) models.QuotaState {
	used := 0
	if SameUTCDay(p.LastGenerationDate, now) {
		used = p.GenerationCountToday
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return models.QuotaState{
		UsedToday:      used,
		RemainingToday: remaining,
		LimitReached:   remaining == 0,
	}
}

// Patch applies an optimistic local increment, writing the quota pair
// together. The counter is capped at limit: past the cap the derived state
// is already limit-reached, and a larger number only widens the gap a
// remote merge has to close.
func Patch(p models.Profile, increment, limit int, now time.Time) models.Profile {
	used := Compute(p, limit, now).UsedToday
	count := used + increment
	if count > limit {
		count = limit
	}
	p.LastGenerationDate = startOfUTCDay(now)
	p.GenerationCountToday = count
	return p
}

// Merge applies a remote delta on top of the local profile. Remote is
// authoritative: its fields shallow-overwrite local ones in receipt order.
// The quota pair is applied only when both fields are present; a half pair
// is dropped to preserve the reset invariant.
func Merge(local models.Profile, d models.ProfileDelta) models.Profile {
	if d.LastGenerationDate != nil && d.GenerationCountToday != nil {
		local.LastGenerationDate = *d.LastGenerationDate
		local.GenerationCountToday = *d.GenerationCountToday
	}
	if d.StudyStreak != nil {
		local.StudyStreak = *d.StudyStreak
	}
	if d.PreferredSubjects != nil {
		local.PreferredSubjects = d.PreferredSubjects
	}
	return local
}

func startOfUTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
