// Package realtime delivers asynchronous profile deltas from the per-user
// Redis channel as a stream consumed by a dedicated goroutine, so ordering
// and teardown stay explicit.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prepdeck/prepdeck/internal/models"
	"github.com/prepdeck/prepdeck/internal/profile"
)

const resubscribeDelay = time.Second

// Subscriber turns a user's Redis pub/sub channel into a delta stream.
type Subscriber struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewSubscriber(rdb *redis.Client, logger *slog.Logger) *Subscriber {
	return &Subscriber{rdb: rdb, logger: logger}
}

// Subscribe opens the user's channel and returns a stream of deltas. The
// subscription resubscribes automatically if the connection drops and is
// released on every exit path: the stream closes when ctx is cancelled,
// which is how sign-out tears it down.
func (s *Subscriber) Subscribe(ctx context.Context, userID string) <-chan models.ProfileDelta {
	deltas := make(chan models.ProfileDelta)

	go func() {
		defer close(deltas)
		for {
			if err := s.pump(ctx, userID, deltas); err != nil {
				s.logger.Error("Profile subscription dropped", "error", err, "user_id", userID)
			}
			if ctx.Err() != nil {
				return
			}
			select {
			case <-time.After(resubscribeDelay):
			case <-ctx.Done():
				return
			}
		}
	}()

	return deltas
}

// pump forwards messages from one pub/sub connection until it drops or ctx
// is cancelled.
func (s *Subscriber) pump(ctx context.Context, userID string, deltas chan<- models.ProfileDelta) error {
	pubsub := s.rdb.Subscribe(ctx, profile.ChannelFor(userID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var delta models.ProfileDelta
			if err := json.Unmarshal([]byte(msg.Payload), &delta); err != nil {
				s.logger.Error("Failed to decode profile delta", "error", err, "user_id", userID)
				continue
			}
			select {
			case deltas <- delta:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
