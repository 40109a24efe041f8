// Package orchestrator drives the request lifecycle for question and answer
// generation: quota gating, the single-in-flight rule, the refresh poll
// while a call is outstanding, and the optimistic-patch-then-reconcile
// dance against the profile cache.
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

// Backend is the AI service contract the orchestrator consumes.
type Backend interface {
	GenerateQuestions(ctx context.Context, token string, req models.GenerationRequest) (*models.GenerationResult, error)
	GenerateAnswers(ctx context.Context, token string, questions []string) ([]models.Answer, error)
}

// ProfileCache is the orchestrator's view of the shared profile state.
type ProfileCache interface {
	Refresh(ctx context.Context, userID string) (*models.Profile, error)
	PatchLocal(userID string, increment int)
	MarkLimitReached(userID string)
	Quota(userID string) models.QuotaState
}

// Recorder performs the authoritative server-side counter write.
type Recorder interface {
	RecordGeneration(ctx context.Context, userID string) (*models.Profile, error)
}

// EventSink receives usage events; failures are logged, never surfaced.
type EventSink interface {
	Publish(ev models.UsageEvent) error
}

const reconcileTimeout = 10 * time.Second

// Orchestrator runs at most one generation request at a time for one user.
type Orchestrator struct {
	userID       string
	session      func() *models.Session
	backend      Backend
	profiles     ProfileCache
	recorder     Recorder
	events       EventSink
	pollInterval time.Duration
	logger       *slog.Logger

	mu          sync.RWMutex
	state       State
	lastOutcome State
	lastErr     *models.RequestError
	result      *models.GenerationResult
	subscribers []chan<- StatusUpdate
}

func New(userID string, session func() *models.Session, backend Backend, profiles ProfileCache, recorder Recorder, events EventSink, pollInterval time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		userID:       userID,
		session:      session,
		backend:      backend,
		profiles:     profiles,
		recorder:     recorder,
		events:       events,
		pollInterval: pollInterval,
		logger:       logger,
		state:        StateIdle,
	}
}

// Generate runs one full cycle. Validation failures reject synchronously
// without a network call; a second call while one is Requesting is rejected
// the same way. There is no retry on failure: generation calls are
// expensive and non-idempotent, and a blind retry risks double quota
// consumption server-side.
func (o *Orchestrator) Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
	sess := o.session()
	if !sess.IsAuthenticated() {
		return nil, &models.RequestError{
			Kind:    models.ErrAuthRequired,
			Message: "sign in to generate questions",
		}
	}

	o.mu.Lock()
	if o.state == StateRequesting {
		o.mu.Unlock()
		return nil, &models.RequestError{
			Kind:    models.ErrValidationFailed,
			Message: "a generation request is already in flight",
			Status:  http.StatusConflict,
		}
	}
	o.setStateLocked(StateValidating, nil)

	if err := o.validate(req); err != nil {
		o.setStateLocked(StateIdle, nil)
		o.mu.Unlock()
		return nil, err
	}

	o.setStateLocked(StateRequesting, nil)
	stopPoll := make(chan struct{})
	o.mu.Unlock()

	go o.pollProfile(stopPoll)

	result, err := o.backend.GenerateQuestions(ctx, sess.Token, req)

	// The poll stops the instant the state leaves Requesting, whatever
	// the outcome.
	close(stopPoll)

	if err != nil {
		return nil, o.fail(req.Mode, err)
	}

	// The optimistic patch lands before any listener can observe
	// Succeeded, so "done" never coexists with a stale quota view.
	o.profiles.PatchLocal(o.userID, 1)

	o.mu.Lock()
	o.result = result
	o.setStateLocked(StateSucceeded, nil)
	o.lastOutcome = StateSucceeded
	o.lastErr = nil
	o.setStateLocked(StateIdle, nil)
	o.mu.Unlock()

	go o.reconcile()
	o.publish(models.UsageEvent{
		UserID:        o.userID,
		Kind:          models.EventKindGeneration,
		Mode:          req.Mode,
		Outcome:       models.OutcomeSucceeded,
		QuestionCount: result.QuestionCount,
		OccurredAt:    time.Now().UTC(),
	})

	return result, nil
}

// validate enforces the mode dispatch table before any network call.
func (o *Orchestrator) validate(req models.GenerationRequest) error {
	if o.profiles.Quota(o.userID).LimitReached {
		return &models.RequestError{
			Kind:    models.ErrRateLimited,
			Message: "daily generation limit reached",
		}
	}

	missing := func(field string) error {
		return &models.RequestError{
			Kind:    models.ErrValidationFailed,
			Message: fmt.Sprintf("%s is required for %s generation", field, req.Mode),
		}
	}

	switch req.Mode {
	case models.ModeTopic:
		if req.Subject == "" {
			return missing("subject")
		}
		if req.Topic == "" {
			return missing("topic")
		}
		if req.QuestionCount < 1 {
			return missing("question_count")
		}
	case models.ModePaper:
		if req.Subject == "" {
			return missing("subject")
		}
	case models.ModeKeyword:
		if req.Keyword == "" {
			return missing("keyword")
		}
	case models.ModeCurrentAffairs:
		if req.Subject == "" {
			return missing("subject")
		}
		if req.Topic == "" && req.Keyword == "" {
			return missing("topic or keyword")
		}
		if req.NewsSource == "" {
			return missing("news_source")
		}
	default:
		return &models.RequestError{
			Kind:    models.ErrValidationFailed,
			Message: fmt.Sprintf("unknown generation mode %q", req.Mode),
		}
	}
	return nil
}

// fail records the terminal outcome and returns to Idle so the user may
// retry manually.
func (o *Orchestrator) fail(mode models.GenerationMode, err error) error {
	kind := models.KindOf(err)
	reqErr, ok := err.(*models.RequestError)
	if !ok {
		reqErr = &models.RequestError{Kind: kind, Message: err.Error()}
	}

	outcome := models.OutcomeFailed
	terminal := StateFailed
	if kind == models.ErrRateLimited {
		terminal = StateRateLimited
		outcome = models.OutcomeRateLimited
		// The 429 is authoritative evidence the local quota view was
		// stale; flip it before the next refresh lands.
		o.profiles.MarkLimitReached(o.userID)
	}

	o.logger.Error("Generation request failed", "user_id", o.userID, "mode", mode, "kind", kind, "error", err)

	o.mu.Lock()
	o.lastErr = reqErr
	o.lastOutcome = terminal
	o.setStateLocked(terminal, reqErr)
	o.setStateLocked(StateIdle, nil)
	o.mu.Unlock()

	o.publish(models.UsageEvent{
		UserID:     o.userID,
		Kind:       models.EventKindGeneration,
		Mode:       mode,
		Outcome:    outcome,
		ErrorKind:  kind,
		OccurredAt: time.Now().UTC(),
	})

	return reqErr
}

// pollProfile keeps the quota view live while a long model call is
// outstanding, so cross-device changes show up mid-request.
func (o *Orchestrator) pollProfile(stop <-chan struct{}) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
			if _, err := o.profiles.Refresh(ctx, o.userID); err != nil {
				o.logger.Error("Profile poll refresh failed", "error", err, "user_id", o.userID)
			}
			cancel()
		}
	}
}

// reconcile runs the authoritative counter write and the follow-up refresh
// that supersedes the optimistic patch. Fire-and-forget: errors are logged
// and the next refresh converges.
func (o *Orchestrator) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	if _, err := o.recorder.RecordGeneration(ctx, o.userID); err != nil {
		o.logger.Error("Failed to record generation", "error", err, "user_id", o.userID)
	}
	if _, err := o.profiles.Refresh(ctx, o.userID); err != nil {
		o.logger.Error("Failed to refresh profile", "error", err, "user_id", o.userID)
	}
}

func (o *Orchestrator) publish(ev models.UsageEvent) {
	if o.events == nil {
		return
	}
	if err := o.events.Publish(ev); err != nil {
		o.logger.Error("Failed to publish usage event", "error", err, "user_id", ev.UserID)
	}
}

// Status returns the current snapshot for the gateway's status endpoint.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	st := Status{State: o.state, LastOutcome: o.lastOutcome}
	if o.lastErr != nil {
		st.LastError = o.lastErr.Message
		st.ErrorKind = o.lastErr.Kind
	}
	return st
}

// Result returns the questions from the last successful cycle. They are
// held in memory only and replaced by the next request.
func (o *Orchestrator) Result() *models.GenerationResult {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.result
}

// Subscribe registers a channel for state transitions. Delivery is
// non-blocking; a subscriber that cannot keep up misses updates.
func (o *Orchestrator) Subscribe(ch chan<- StatusUpdate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subscribers = append(o.subscribers, ch)
}

// setStateLocked transitions the machine and notifies subscribers. Callers
// hold o.mu.
func (o *Orchestrator) setStateLocked(state State, reqErr *models.RequestError) {
	o.state = state

	update := StatusUpdate{
		UserID:    o.userID,
		State:     state,
		Timestamp: time.Now().UTC(),
	}
	if reqErr != nil {
		update.ErrorKind = reqErr.Kind
		update.Message = reqErr.Message
	}

	for _, ch := range o.subscribers {
		select {
		case ch <- update:
		default:
		}
	}
}
