package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prepdeck/prepdeck/internal/models"
)

// AnswerGenerator runs batch answer requests. It mirrors the generation
// machine's shape but is keyed to a set of questions and is only exclusive
// with itself: an answer batch for a previous result may run while no
// generation is in flight, and the contract does not serialize the two.
type AnswerGenerator struct {
	userID   string
	session  func() *models.Session
	backend  Backend
	profiles ProfileCache
	recorder Recorder
	events   EventSink
	logger   *slog.Logger

	mu          sync.RWMutex
	state       State
	lastOutcome State
	lastErr     *models.RequestError
}

func NewAnswerGenerator(userID string, session func() *models.Session, backend Backend, profiles ProfileCache, recorder Recorder, events EventSink, logger *slog.Logger) *AnswerGenerator {
	return &AnswerGenerator{
		userID:   userID,
		session:  session,
		backend:  backend,
		profiles: profiles,
		recorder: recorder,
		events:   events,
		logger:   logger,
		state:    StateIdle,
	}
}

// GenerateAll requests model answers for every question in the batch. The
// response must align positionally: answer[i] belongs to questions[i], and
// a length mismatch fails the whole batch rather than truncating or
// padding.
func (g *AnswerGenerator) GenerateAll(ctx context.Context, questions []string) (*models.AnswerSet, error) {
	sess := g.session()
	if !sess.IsAuthenticated() {
		return nil, &models.RequestError{
			Kind:    models.ErrAuthRequired,
			Message: "sign in to generate answers",
		}
	}
	if len(questions) == 0 {
		return nil, &models.RequestError{
			Kind:    models.ErrValidationFailed,
			Message: "no questions provided",
		}
	}

	g.mu.Lock()
	if g.state == StateRequesting {
		g.mu.Unlock()
		return nil, &models.RequestError{
			Kind:    models.ErrValidationFailed,
			Message: "an answer batch is already in flight",
			Status:  http.StatusConflict,
		}
	}
	g.state = StateRequesting
	g.mu.Unlock()

	answers, err := g.backend.GenerateAnswers(ctx, sess.Token, questions)
	if err == nil && len(answers) != len(questions) {
		err = &models.RequestError{
			Kind: models.ErrResponseShapeMismatch,
			Message: fmt.Sprintf("expected %d answers, got %d",
				len(questions), len(answers)),
		}
	}

	if err != nil {
		return nil, g.fail(err)
	}

	g.profiles.PatchLocal(g.userID, 1)

	g.mu.Lock()
	g.lastOutcome = StateSucceeded
	g.lastErr = nil
	g.state = StateIdle
	g.mu.Unlock()

	go g.reconcile()
	g.publish(models.UsageEvent{
		UserID:        g.userID,
		Kind:          models.EventKindAnswerBatch,
		Outcome:       models.OutcomeSucceeded,
		QuestionCount: len(questions),
		OccurredAt:    time.Now().UTC(),
	})

	return &models.AnswerSet{Answers: answers}, nil
}

func (g *AnswerGenerator) fail(err error) error {
	kind := models.KindOf(err)
	reqErr, ok := err.(*models.RequestError)
	if !ok {
		reqErr = &models.RequestError{Kind: kind, Message: err.Error()}
	}

	// Shape mismatches read as a plain request failure to the user but are
	// logged distinctly for diagnostics.
	if kind == models.ErrResponseShapeMismatch {
		g.logger.Error("Answer batch shape mismatch", "user_id", g.userID, "error", err)
	} else {
		g.logger.Error("Answer batch failed", "user_id", g.userID, "kind", kind, "error", err)
	}
	if kind == models.ErrRateLimited {
		g.profiles.MarkLimitReached(g.userID)
	}

	g.mu.Lock()
	g.lastErr = reqErr
	g.lastOutcome = StateFailed
	g.state = StateIdle
	g.mu.Unlock()

	g.publish(models.UsageEvent{
		UserID:     g.userID,
		Kind:       models.EventKindAnswerBatch,
		Outcome:    models.OutcomeFailed,
		ErrorKind:  kind,
		OccurredAt: time.Now().UTC(),
	})

	return reqErr
}

func (g *AnswerGenerator) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	if _, err := g.recorder.RecordGeneration(ctx, g.userID); err != nil {
		g.logger.Error("Failed to record answer batch", "error", err, "user_id", g.userID)
	}
	if _, err := g.profiles.Refresh(ctx, g.userID); err != nil {
		g.logger.Error("Failed to refresh profile", "error", err, "user_id", g.userID)
	}
}

func (g *AnswerGenerator) publish(ev models.UsageEvent) {
	if g.events == nil {
		return
	}
	if err := g.events.Publish(ev); err != nil {
		g.logger.Error("Failed to publish usage event", "error", err, "user_id", ev.UserID)
	}
}

// Status returns the batch machine's snapshot.
func (g *AnswerGenerator) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()

	st := Status{State: g.state, LastOutcome: g.lastOutcome}
	if g.lastErr != nil {
		st.LastError = g.lastErr.Message
		st.ErrorKind = g.lastErr.Kind
	}
	return st
}
