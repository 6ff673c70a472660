// Package session owns the bearer credential shared by every outgoing request.
// It is written only by sign-in and invalidation, and it tells observers when
// the authenticated state flips.
package session

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Credential is the bearer token issued by the backend plus the signed-in user.
type Credential struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// Store persists a credential between runs.
type Store interface {
	Load() (Credential, error)
	Save(cred Credential) error
	Clear() error
}

// ErrNoCredential is returned by a Store that holds nothing.
var ErrNoCredential = errors.New("no stored credential")

// Listener observes authentication transitions. Listeners run synchronously,
// one transition at a time, and must not call SignIn or Invalidate.
type Listener func(authenticated bool)

// Session is the single mutation point for the credential.
type Session struct {
	mu        sync.RWMutex
	cred      Credential
	listeners map[uint64]Listener
	order     []uint64
	nextID    uint64

	notifyMu sync.Mutex
	store    Store
	logger   *zap.Logger
}

// New builds an unauthenticated Session. store may be nil.
func New(store Store, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		listeners: make(map[uint64]Listener),
		store:     store,
		logger:    logger,
	}
}

// Restore loads a persisted credential without notifying listeners. It
// reports whether the session is now authenticated.
func (s *Session) Restore() bool {
	if s.store == nil {
		return s.Authenticated()
	}
	cred, err := s.store.Load()
	if err != nil {
		if !errors.Is(err, ErrNoCredential) {
			s.logger.Warn("failed to load stored credential", zap.Error(err))
		}
		return s.Authenticated()
	}
	if cred.Token == "" {
		return s.Authenticated()
	}
	s.mu.Lock()
	s.cred = cred
	s.mu.Unlock()
	s.logger.Debug("restored stored credential", zap.String("username", cred.Username))
	return true
}

// Token returns the bearer token and whether one is held.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.Token, s.cred.Token != ""
}

// Username returns the signed-in user, if any.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.Username
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool {
	_, ok := s.Token()
	return ok
}

// SignIn stores cred and notifies listeners if the session was
// unauthenticated. Persistence failures are returned after the in-memory
// credential has been applied.
func (s *Session) SignIn(cred Credential) error {
	if cred.Token == "" {
		return errors.New("sign in: empty token")
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	was := s.cred.Token != ""
	s.cred = cred
	s.mu.Unlock()

	var persistErr error
	if s.store != nil {
		persistErr = s.store.Save(cred)
		if persistErr != nil {
			s.logger.Warn("failed to persist credential", zap.Error(persistErr))
		}
	}
	if !was {
		s.logger.Info("session authenticated", zap.String("username", cred.Username))
		s.notify(true)
	}
	return persistErr
}

// Invalidate discards the credential and notifies listeners. It returns false
// when the session was already unauthenticated, so observers see exactly one
// transition per session.
func (s *Session) Invalidate() bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.cred.Token == "" {
		s.mu.Unlock()
		return false
	}
	s.cred = Credential{}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Clear(); err != nil {
			s.logger.Warn("failed to clear stored credential", zap.Error(err))
		}
	}
	s.logger.Info("session invalidated")
	s.notify(false)
	return true
}

// Subscribe registers fn and returns a function that removes it.
func (s *Session) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
		})
	}
}

func (s *Session) notify(authenticated bool) {
	s.mu.RLock()
	fns := make([]Listener, 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.listeners[id])
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(authenticated)
	}
}
