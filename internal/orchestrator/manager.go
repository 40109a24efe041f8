package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prepdeck/prepdeck/internal/models"
	"github.com/prepdeck/prepdeck/internal/session"
)

// Streamer opens the push reconciliation channel for one user.
type Streamer interface {
	Subscribe(ctx context.Context, userID string) <-chan models.ProfileDelta
}

// Cache extends the orchestrator's profile view with the lifecycle calls
// the manager needs.
type Cache interface {
	ProfileCache
	Fetch(ctx context.Context, userID string) (*models.Profile, error)
	MergeRemote(delta models.ProfileDelta)
	Clear(userID string)
}

// Ensurer creates the profile row on first sign-in.
type Ensurer interface {
	Recorder
	Ensure(ctx context.Context, userID string) error
}

// Runtime is everything that lives exactly as long as one user's session:
// the two request machines and the push subscription.
type Runtime struct {
	Generator *Orchestrator
	Answers   *AnswerGenerator
	cancel    context.CancelFunc
}

// Manager binds runtimes to session lifetime. It consumes the session
// store's change stream: sign-in acquires the runtime and the push
// subscription, sign-out releases both on every exit path.
type Manager struct {
	sessions     *session.Store
	profiles     Cache
	store        Ensurer
	backend      Backend
	events       EventSink
	realtime     Streamer
	pollInterval time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	runtimes map[string]*Runtime
}

func NewManager(sessions *session.Store, profiles Cache, store Ensurer, backend Backend, events EventSink, realtime Streamer, pollInterval time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		sessions:     sessions,
		profiles:     profiles,
		store:        store,
		backend:      backend,
		events:       events,
		realtime:     realtime,
		pollInterval: pollInterval,
		logger:       logger,
		runtimes:     make(map[string]*Runtime),
	}
}

// Run consumes session changes until ctx is cancelled. Duplicate changes
// are tolerated: attach and detach are both idempotent.
func (m *Manager) Run(ctx context.Context) {
	changes := make(chan session.Change, 16)
	m.sessions.OnChange(changes)

	for {
		select {
		case <-ctx.Done():
			m.detachAll()
			return
		case change := <-changes:
			switch change.Kind {
			case session.SignedIn:
				m.attach(ctx, change.Session.UserID)
			case session.SignedOut:
				m.detach(change.Session.UserID)
			}
		}
	}
}

// Runtime returns the user's runtime if a session is active.
func (m *Manager) Runtime(userID string) (*Runtime, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.runtimes[userID]
	return rt, ok
}

func (m *Manager) attach(parent context.Context, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runtimes[userID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(parent)

	if err := m.store.Ensure(ctx, userID); err != nil {
		m.logger.Error("Failed to ensure profile", "error", err, "user_id", userID)
	}
	if _, err := m.profiles.Fetch(ctx, userID); err != nil {
		m.logger.Error("Failed to fetch profile", "error", err, "user_id", userID)
	}

	// The merge loop drains the push channel for the session's lifetime;
	// cancelling ctx closes the stream and ends it.
	deltas := m.realtime.Subscribe(ctx, userID)
	go func() {
		for delta := range deltas {
			m.profiles.MergeRemote(delta)
		}
	}()

	current := func() *models.Session { return m.sessions.Current(userID) }
	m.runtimes[userID] = &Runtime{
		Generator: New(userID, current, m.backend, m.profiles, m.store, m.events, m.pollInterval, m.logger),
		Answers:   NewAnswerGenerator(userID, current, m.backend, m.profiles, m.store, m.events, m.logger),
		cancel:    cancel,
	}

	m.logger.Info("Session runtime attached", "user_id", userID)
}

func (m *Manager) detach(userID string) {
	m.mu.Lock()
	rt, ok := m.runtimes[userID]
	if ok {
		delete(m.runtimes, userID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	rt.cancel()
	m.profiles.Clear(userID)
	m.logger.Info("Session runtime detached", "user_id", userID)
}

func (m *Manager) detachAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.runtimes))
	for id := range m.runtimes {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.detach(id)
	}
}
