package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/prepdeck/prepdeck/internal/models"
)

var now = time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func TestCompute(t *testing.T) {
	yesterday := now.AddDate(0, 0, -1)

	tests := []struct {
		name     string
		profile  models.Profile
		limit    int
		expected models.QuotaState
	}{
		{
			name:     "fresh profile",
			profile:  models.Profile{},
			limit:    5,
			expected: models.QuotaState{UsedToday: 0, RemainingToday: 5, LimitReached: false},
		},
		{
			name: "stale day reads as zero",
			profile: models.Profile{
				LastGenerationDate:   yesterday,
				GenerationCountToday: 5,
			},
			limit:    5,
			expected: models.QuotaState{UsedToday: 0, RemainingToday: 5, LimitReached: false},
		},
		{
			name: "same day counts usage",
			profile: models.Profile{
				LastGenerationDate:   now.Add(-2 * time.Hour),
				GenerationCountToday: 3,
			},
			limit:    5,
			expected: models.QuotaState{UsedToday: 3, RemainingToday: 2, LimitReached: false},
		},
		{
			name: "at limit",
			profile: models.Profile{
				LastGenerationDate:   now,
				GenerationCountToday: 5,
			},
			limit:    5,
			expected: models.QuotaState{UsedToday: 5, RemainingToday: 0, LimitReached: true},
		},
		{
			name: "over limit clamps remaining at zero",
			profile: models.Profile{
				LastGenerationDate:   now,
				GenerationCountToday: 9,
			},
			limit:    5,
			expected: models.QuotaState{UsedToday: 9, RemainingToday: 0, LimitReached: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Compute(tt.profile, tt.limit, now))
		})
	}
}

func TestComputeIdempotent(t *testing.T) {
	p := models.Profile{LastGenerationDate: now, GenerationCountToday: 2}
	first := Compute(p, 5, now)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Compute(p, 5, now))
	}
}

func TestPatchMonotonic(t *testing.T) {
	p := models.Profile{}
	prev := Compute(p, 5, now).UsedToday
	for i := 0; i < 8; i++ {
		p = Patch(p, 1, 5, now)
		used := Compute(p, 5, now).UsedToday
		assert.GreaterOrEqual(t, used, prev)
		prev = used
	}
	// Capped at the limit, never beyond.
	assert.Equal(t, 5, p.GenerationCountToday)
	assert.True(t, Compute(p, 5, now).LimitReached)
}

func TestPatchResetsStaleDay(t *testing.T) {
	p := models.Profile{
		LastGenerationDate:   now.AddDate(0, 0, -1),
		GenerationCountToday: 5,
	}
	p = Patch(p, 1, 5, now)

	assert.Equal(t, 1, p.GenerationCountToday)
	assert.True(t, SameUTCDay(p.LastGenerationDate, now))
	assert.Equal(t, 1, Compute(p, 5, now).UsedToday)
}

func TestMergeRemoteWinsAsPair(t *testing.T) {
	p := models.Profile{UserID: "u1"}
	p = Patch(p, 1, 5, now)
	p = Patch(p, 1, 5, now)
	p = Patch(p, 1, 5, now)
	assert.Equal(t, 3, p.GenerationCountToday)

	today := startOfUTCDay(now)
	p = Merge(p, models.ProfileDelta{
		UserID:               "u1",
		LastGenerationDate:   timePtr(today),
		GenerationCountToday: intPtr(2),
	})
	assert.Equal(t, 2, p.GenerationCountToday)
	assert.Equal(t, today, p.LastGenerationDate)
}

func TestMergeDropsHalfPair(t *testing.T) {
	p := models.Profile{
		LastGenerationDate:   startOfUTCDay(now),
		GenerationCountToday: 3,
	}

	merged := Merge(p, models.ProfileDelta{GenerationCountToday: intPtr(1)})
	assert.Equal(t, p, merged)

	merged = Merge(p, models.ProfileDelta{LastGenerationDate: timePtr(now)})
	assert.Equal(t, p, merged)
}

func TestMergeNonQuotaFields(t *testing.T) {
	p := models.Profile{StudyStreak: 2}
	merged := Merge(p, models.ProfileDelta{
		StudyStreak:       intPtr(3),
		PreferredSubjects: []string{"GS1", "GS2"},
	})

	assert.Equal(t, 3, merged.StudyStreak)
	assert.Equal(t, []string{"GS1", "GS2"}, []string(merged.PreferredSubjects))
	// Quota pair untouched.
	assert.Equal(t, p.GenerationCountToday, merged.GenerationCountToday)
	assert.Equal(t, p.LastGenerationDate, merged.LastGenerationDate)
}

func TestSameUTCDayAcrossZones(t *testing.T) {
	// 23:30 UTC-5 is 04:30 UTC the next day.
	est := time.FixedZone("EST", -5*3600)
	a := time.Date(2025, 3, 14, 23, 30, 0, 0, est)
	b := time.Date(2025, 3, 15, 4, 30, 0, 0, time.UTC)
	assert.True(t, SameUTCDay(a, b))
	assert.False(t, SameUTCDay(a, now))
}
