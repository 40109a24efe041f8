// Package session owns authenticated identities. Components downstream hold
// read references only; all mutation goes through the store.
package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/prepdeck/prepdeck/internal/models"
)

// ErrNotReady is returned while the initial provider lookup has not
// completed. The orchestrator is inert until then: no generation may be
// attempted while session state is unknown.
var ErrNotReady = errors.New("session store not ready")

type ChangeKind string

const (
	SignedIn  ChangeKind = "signed_in"
	SignedOut ChangeKind = "signed_out"
)

// Change is a session lifecycle event. Listeners must be idempotent to
// duplicate deliveries.
type Change struct {
	Kind    ChangeKind
	Session models.Session
}

// AuthAPI is the slice of the identity provider the store needs.
type AuthAPI interface {
	SignIn(email, password string) (*models.Session, error)
	SignUp(email, password string) (*models.Session, error)
	SignOut(token string) error
	HealthCheck() error
}

// Store tracks active sessions and fans out lifecycle changes.
type Store struct {
	auth   AuthAPI
	logger *slog.Logger

	mu        sync.RWMutex
	ready     bool
	sessions  map[string]models.Session
	listeners []chan<- Change
}

func NewStore(auth AuthAPI, logger *slog.Logger) *Store {
	return &Store{
		auth:     auth,
		logger:   logger,
		sessions: make(map[string]models.Session),
	}
}

// Bootstrap performs the one provider lookup the store needs before it is
// usable. Until it succeeds every call fails closed with ErrNotReady.
func (s *Store) Bootstrap() error {
	if err := s.auth.HealthCheck(); err != nil {
		return err
	}
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	return nil
}

func (s *Store) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// SignIn authenticates against the provider and registers the session.
func (s *Store) SignIn(email, password string) (*models.Session, error) {
	if !s.isReady() {
		return nil, ErrNotReady
	}

	sess, err := s.auth.SignIn(email, password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.UserID] = *sess
	s.mu.Unlock()

	s.notify(Change{Kind: SignedIn, Session: *sess})
	out := *sess
	return &out, nil
}

// SignUp registers a new account and signs it in.
func (s *Store) SignUp(email, password string) (*models.Session, error) {
	if !s.isReady() {
		return nil, ErrNotReady
	}

	sess, err := s.auth.SignUp(email, password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.UserID] = *sess
	s.mu.Unlock()

	s.notify(Change{Kind: SignedIn, Session: *sess})
	out := *sess
	return &out, nil
}

// SignOut clears local state synchronously, then revokes the token remotely
// best-effort. A slow or failing remote sign-out must never leave the
// caller looking authenticated, so the remote error is logged and
// swallowed.
func (s *Store) SignOut(userID string) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if ok {
		delete(s.sessions, userID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	s.notify(Change{Kind: SignedOut, Session: sess})

	go func() {
		if err := s.auth.SignOut(sess.Token); err != nil {
			s.logger.Error("Remote sign-out failed", "error", err, "user_id", sess.UserID)
		}
	}()
}

// Current returns a copy of the user's session, or nil.
func (s *Store) Current(userID string) *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[userID]; ok {
		out := sess
		return &out
	}
	return nil
}

// OnChange registers a listener channel for session lifecycle events.
// Delivery is non-blocking; a listener that cannot keep up misses events.
func (s *Store) OnChange(ch chan<- Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, ch)
}

func (s *Store) notify(change Change) {
	s.mu.RLock()
	listeners := make([]chan<- Change, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, ch := range listeners {
		select {
		case ch <- change:
		default:
		}
	}
}
