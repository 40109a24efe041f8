package profile

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepdeck/prepdeck/internal/models"
)

func setupTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, *miniredis.Miniredis) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	miniRedis, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(miniRedis.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: miniRedis.Addr()})
	store := NewStore(sqlx.NewDb(mockDB, "sqlmock"), redisClient, slog.Default())
	return store, mock, miniRedis
}

func profileRows(p models.Profile) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"user_id", "study_streak", "last_generation_date",
		"generation_count_today", "preferred_subjects", "created_at",
	}).AddRow(
		p.UserID, p.StudyStreak, p.LastGenerationDate,
		p.GenerationCountToday, pq.StringArray(p.PreferredSubjects), p.CreatedAt,
	)
}

func TestStoreGet(t *testing.T) {
	store, mock, _ := setupTestStore(t)

	want := models.Profile{
		UserID:               "u1",
		StudyStreak:          3,
		LastGenerationDate:   time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		GenerationCountToday: 2,
		PreferredSubjects:    pq.StringArray{"GS1"},
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id, study_streak, last_generation_date, generation_count_today, preferred_subjects, created_at FROM profiles WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnRows(profileRows(want))

	p, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, want.UserID, p.UserID)
	assert.Equal(t, 2, p.GenerationCountToday)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetNotFound(t *testing.T) {
	store, mock, _ := setupTestStore(t)

	mock.ExpectQuery("SELECT .* FROM profiles").
		WithArgs("missing").
		WillReturnError(assert.AnError)

	_, err := store.Get(context.Background(), "missing")
	assert.Error(t, err)
}

func TestStoreEnsure(t *testing.T) {
	store, mock, _ := setupTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO profiles (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Ensure(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRecordGenerationPublishesDelta(t *testing.T) {
	store, mock, miniRedis := setupTestStore(t)

	sub := miniRedis.NewSubscriber()
	defer sub.Close()
	sub.Subscribe(ChannelFor("u1"))

	// The subscriber channel is unbuffered, so it must be drained
	// concurrently or the synchronous publish inside RecordGeneration
	// blocks miniredis until the client times out.
	msgCh := make(chan string, 1)
	go func() {
		m := <-sub.Messages()
		msgCh <- m.Message
	}()

	updated := models.Profile{
		UserID:               "u1",
		StudyStreak:          4,
		LastGenerationDate:   time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		GenerationCountToday: 3,
	}
	mock.ExpectQuery("UPDATE profiles SET").
		WithArgs("u1").
		WillReturnRows(profileRows(updated))

	p, err := store.RecordGeneration(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.GenerationCountToday)
	assert.Equal(t, 4, p.StudyStreak)

	// The write fans out as a delta on the user's channel, with the quota
	// pair present together.
	msg := <-msgCh
	var delta models.ProfileDelta
	require.NoError(t, json.Unmarshal([]byte(msg), &delta))
	assert.Equal(t, "u1", delta.UserID)
	require.NotNil(t, delta.GenerationCountToday)
	require.NotNil(t, delta.LastGenerationDate)
	assert.Equal(t, 3, *delta.GenerationCountToday)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpdatePreferences(t *testing.T) {
	store, mock, _ := setupTestStore(t)

	updated := models.Profile{
		UserID:            "u1",
		PreferredSubjects: pq.StringArray{"GS2", "GS4"},
	}
	mock.ExpectQuery("UPDATE profiles SET preferred_subjects").
		WithArgs("u1", pq.StringArray{"GS2", "GS4"}).
		WillReturnRows(profileRows(updated))

	p, err := store.UpdatePreferences(context.Background(), "u1", []string{"GS2", "GS4"})
	require.NoError(t, err)
	assert.Equal(t, pq.StringArray{"GS2", "GS4"}, p.PreferredSubjects)
	assert.NoError(t, mock.ExpectationsWereMet())
}
