package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepdeck/prepdeck/internal/models"
	"github.com/prepdeck/prepdeck/internal/profile"
)

func setupSubscriber(t *testing.T) (*Subscriber, *miniredis.Miniredis) {
	miniRedis, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(miniRedis.Close)

	rdb := redis.NewClient(&redis.Options{Addr: miniRedis.Addr()})
	return NewSubscriber(rdb, slog.Default()), miniRedis
}

func publishDelta(t *testing.T, m *miniredis.Miniredis, delta models.ProfileDelta) {
	payload, err := json.Marshal(delta)
	require.NoError(t, err)
	m.Publish(profile.ChannelFor(delta.UserID), string(payload))
}

func TestSubscribeDeliversDeltas(t *testing.T) {
	sub, miniRedis := setupSubscriber(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deltas := sub.Subscribe(ctx, "u1")

	// Give the pub/sub connection a moment to establish.
	time.Sleep(50 * time.Millisecond)

	count := 3
	publishDelta(t, miniRedis, models.ProfileDelta{
		UserID:               "u1",
		GenerationCountToday: &count,
	})

	select {
	case got := <-deltas:
		assert.Equal(t, "u1", got.UserID)
		require.NotNil(t, got.GenerationCountToday)
		assert.Equal(t, 3, *got.GenerationCountToday)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delta")
	}
}

func TestSubscribeSkipsMalformedPayloads(t *testing.T) {
	sub, miniRedis := setupSubscriber(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deltas := sub.Subscribe(ctx, "u1")
	time.Sleep(50 * time.Millisecond)

	miniRedis.Publish(profile.ChannelFor("u1"), "{not json")
	streak := 7
	publishDelta(t, miniRedis, models.ProfileDelta{UserID: "u1", StudyStreak: &streak})

	select {
	case got := <-deltas:
		// The bad payload was skipped, the good one still arrives.
		require.NotNil(t, got.StudyStreak)
		assert.Equal(t, 7, *got.StudyStreak)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delta")
	}
}

func TestSubscribeClosesOnCancel(t *testing.T) {
	sub, _ := setupSubscriber(t)
	ctx, cancel := context.WithCancel(context.Background())

	deltas := sub.Subscribe(ctx, "u1")
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case _, ok := <-deltas:
		assert.False(t, ok, "stream must close after cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after cancel")
	}
}
