package auth

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Session is the process-wide view of who is signed in. It follows the
// AuthService's events so every consumer sees the same user.
type Session struct {
	svc    *AuthService
	logger hclog.Logger

	mu      sync.Mutex
	user    *User
	loading bool

	unsubscribe func()
}

// NewSession creates a session bound to svc. It starts in the loading
// state until Load runs.
func NewSession(svc *AuthService, logger hclog.Logger) *Session {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := &Session{svc: svc, logger: logger.Named("session"), loading: true}
	s.unsubscribe = svc.Subscribe(s.onEvent)
	return s
}

func (s *Session) onEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Type {
	case UserLoaded:
		s.user = ev.User
	case UserUnloaded:
		s.user = nil
	case SilentRenewError:
		// Assume signed out when renew fails.
		s.user = nil
	}
	s.loading = false
}

// Load reads the stored user. Errors leave the session signed out.
func (s *Session) Load() *User {
	s.setLoading(true)
	user, err := s.svc.GetUser()
	if err != nil {
		s.logger.Error("error loading user", "error", err)
		user = nil
	}
	s.mu.Lock()
	s.user = user
	s.loading = false
	s.mu.Unlock()
	return user
}

// IsAuthenticated reports whether a user is present and not expired.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil && !s.user.Expired()
}

// User returns the current user, nil when signed out.
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// DisplayName is the signed-in user's name, "" when signed out.
func (s *Session) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return ""
	}
	return s.user.Profile.DisplayName()
}

// AccessToken returns the access token when authenticated, otherwise "".
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil || s.user.Expired() {
		return ""
	}
	return s.user.AccessToken
}

// IsLoading reports whether an auth operation is in flight.
func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Login returns the authorization URL. The session stays loading until
// the callback completes.
func (s *Session) Login(ctx context.Context) (string, error) {
	s.setLoading(true)
	authURL, err := s.svc.Login(ctx)
	if err != nil {
		s.setLoading(false)
		return "", err
	}
	return authURL, nil
}

// Logout signs out and returns the provider's end-session URL, if any.
func (s *Session) Logout() (string, error) {
	s.setLoading(true)
	endSession, err := s.svc.Logout()
	if err != nil {
		s.setLoading(false)
		return "", err
	}
	return endSession, nil
}

// RenewToken refreshes silently. On failure the session is signed out and
// nil is returned.
func (s *Session) RenewToken(ctx context.Context) *User {
	s.setLoading(true)
	user, err := s.svc.RenewToken(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Error("error renewing token", "error", err)
		s.user = nil
	} else {
		s.user = user
	}
	s.loading = false
	return s.user
}

// Close detaches the session from the service's events.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Session) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}
