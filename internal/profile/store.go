// Package profile owns the user profile record: its Postgres persistence,
// the in-memory cache the orchestrator reads, and the fan-out of row
// changes to the per-user push channel.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/prepdeck/prepdeck/internal/models"
)

// ChannelFor returns the Redis pub/sub channel carrying profile deltas for
// one user.
func ChannelFor(userID string) string {
	return "profile:updates:" + userID
}

// Store persists profiles in Postgres and publishes a delta on the user's
// channel after every write, so other devices reconcile.
type Store struct {
	db     *sqlx.DB
	redis  *redis.Client
	logger *slog.Logger
}

func NewStore(db *sqlx.DB, rdb *redis.Client, logger *slog.Logger) *Store {
	return &Store{db: db, redis: rdb, logger: logger}
}

// CreateProfilesTable sets up the profiles schema. The epoch default for
// last_generation_date keeps the column NOT NULL while still reading as a
// stale day.
func (s *Store) CreateProfilesTable() error {
	schema := `CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		study_streak INTEGER NOT NULL DEFAULT 0,
		last_generation_date DATE NOT NULL DEFAULT '1970-01-01',
		generation_count_today INTEGER NOT NULL DEFAULT 0,
		preferred_subjects TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create profiles table: %w", err)
	}

	slog.Info("✅ Profiles table is ready!")
	return nil
}

const profileColumns = "user_id, study_streak, last_generation_date, generation_count_today, preferred_subjects, created_at"

// Get fetches the full profile row.
func (s *Store) Get(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	query := fmt.Sprintf("SELECT %s FROM profiles WHERE user_id = $1", profileColumns)
	if err := s.db.GetContext(ctx, &p, query, userID); err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	return &p, nil
}

// Ensure creates the profile row with defaults if it does not exist yet.
// Called on sign-up and on first sign-in.
func (s *Store) Ensure(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO profiles (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING",
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure profile: %w", err)
	}
	return nil
}

// RecordGeneration is the authoritative counterpart of the cache's
// optimistic patch: it bumps the daily counter with the lazy day reset
// applied in SQL, advances the streak, and publishes the resulting delta.
// The quota pair and the streak are written in a single statement.
func (s *Store) RecordGeneration(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	query := fmt.Sprintf(`UPDATE profiles SET
		generation_count_today = CASE
			WHEN last_generation_date = CURRENT_DATE THEN generation_count_today + 1
			ELSE 1
		END,
		study_streak = CASE
			WHEN last_generation_date = CURRENT_DATE THEN study_streak
			WHEN last_generation_date = CURRENT_DATE - 1 THEN study_streak + 1
			ELSE 1
		END,
		last_generation_date = CURRENT_DATE
	WHERE user_id = $1
	RETURNING %s`, profileColumns)

	if err := s.db.GetContext(ctx, &p, query, userID); err != nil {
		return nil, fmt.Errorf("failed to record generation: %w", err)
	}

	s.publishDelta(ctx, &p)
	return &p, nil
}

// UpdatePreferences replaces the preferred subjects list.
func (s *Store) UpdatePreferences(ctx context.Context, userID string, subjects []string) (*models.Profile, error) {
	var p models.Profile
	query := fmt.Sprintf(
		"UPDATE profiles SET preferred_subjects = $2 WHERE user_id = $1 RETURNING %s",
		profileColumns,
	)
	if err := s.db.GetContext(ctx, &p, query, userID, pq.StringArray(subjects)); err != nil {
		return nil, fmt.Errorf("failed to update preferences: %w", err)
	}

	s.publishDelta(ctx, &p)
	return &p, nil
}

// publishDelta pushes the changed fields to the user's channel. Publish
// failures are logged, not surfaced: the row is already committed and the
// next full refresh will converge.
func (s *Store) publishDelta(ctx context.Context, p *models.Profile) {
	delta := models.ProfileDelta{
		UserID:               p.UserID,
		StudyStreak:          &p.StudyStreak,
		LastGenerationDate:   &p.LastGenerationDate,
		GenerationCountToday: &p.GenerationCountToday,
		PreferredSubjects:    p.PreferredSubjects,
	}

	payload, err := json.Marshal(delta)
	if err != nil {
		s.logger.Error("Failed to marshal profile delta", "error", err, "user_id", p.UserID)
		return
	}

	if err := s.redis.Publish(ctx, ChannelFor(p.UserID), payload).Err(); err != nil {
		s.logger.Error("Failed to publish profile delta", "error", err, "user_id", p.UserID)
	}
}
