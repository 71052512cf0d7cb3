package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidState     = errors.New("invalid state parameter")
	ErrMissingCode      = errors.New("missing authorization code")
	ErrMissingIDToken   = errors.New("no id_token in token response")
	ErrNonceMismatch    = errors.New("id token nonce mismatch")
	ErrSubjectChanged   = errors.New("refreshed id token belongs to another subject")
	ErrNoRefreshToken   = errors.New("no refresh token available for silent renew")
)

// AuthorizationError is an error response the provider sent to the
// redirect URI.
type AuthorizationError struct {
	Code        string
	Description string
}

func (e *AuthorizationError) Error() string {
	if e.Description == "" {
		return "authorization failed: " + e.Code
	}
	return fmt.Sprintf("authorization failed: %s: %s", e.Code, e.Description)
}

// EventType identifies an AuthService event.
type EventType int

const (
	UserLoaded EventType = iota
	UserUnloaded
	SilentRenewError
)

func (t EventType) String() string {
	switch t {
	case UserLoaded:
		return "user_loaded"
	case UserUnloaded:
		return "user_unloaded"
	case SilentRenewError:
		return "silent_renew_error"
	}
	return "unknown"
}

// Event is delivered to subscribers. User is set for UserLoaded, Err for
// SilentRenewError.
type Event struct {
	Type EventType
	User *User
	Err  error
}

// DefaultRenewBefore is how long before expiry AutoRenew refreshes.
const DefaultRenewBefore = 60 * time.Second

// AuthService runs the OIDC authorization code flow with PKCE and keeps the
// resulting user in a UserStore.
type AuthService struct {
	client *OIDCClient
	users  *UserStore
	states *StateStore
	logger hclog.Logger

	mu      sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// NewAuthService creates the service. A nil logger discards output.
func NewAuthService(client *OIDCClient, users *UserStore, logger hclog.Logger) *AuthService {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &AuthService{
		client: client,
		users:  users,
		states: NewStateStore(),
		logger: logger.Named("auth"),
		subs:   make(map[int]func(Event)),
	}
}

// Subscribe registers fn for every event and returns a function that
// removes it.
func (s *AuthService) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *AuthService) emit(ev Event) {
	s.mu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.logger.Debug("auth event", "type", ev.Type.String())
	for _, fn := range subs {
		fn(ev)
	}
}

// Login starts a sign-in and returns the URL the browser must visit.
func (s *AuthService) Login(ctx context.Context) (string, error) {
	const op = "auth.(AuthService).Login"
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	state := uuid.New().String()
	nonce := uuid.New().String()
	s.states.Save(state, DefaultStateTTL, verifier, nonce)

	s.logger.Debug("login started", "state", state)
	return s.client.GetAuthURLWithPKCE(state, nonce, GenerateCodeChallenge(verifier)), nil
}

// HandleCallback completes a sign-in from the redirect's state and code.
func (s *AuthService) HandleCallback(ctx context.Context, state, code string) (*User, error) {
	const op = "auth.(AuthService).HandleCallback"

	// Verify state and get code verifier + nonce (CSRF protection + PKCE)
	data, ok := s.states.Consume(state)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidState)
	}
	if code == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingCode)
	}

	tok, err := s.client.ExchangeCodeWithPKCE(ctx, code, data.CodeVerifier)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to exchange code: %w", op, err)
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingIDToken)
	}
	idToken, err := s.client.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to verify ID token: %w", op, err)
	}
	if idToken.Nonce != data.Nonce {
		return nil, fmt.Errorf("%s: %w", op, ErrNonceMismatch)
	}

	user := &User{}
	user.applyToken(tok)
	if err := idToken.Claims(&user.Profile); err != nil {
		return nil, fmt.Errorf("%s: failed to parse claims: %w", op, err)
	}
	s.loadUserInfo(ctx, user)

	if err := s.users.Save(user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Info("user signed in", "sub", user.Profile.Sub)
	s.emit(Event{Type: UserLoaded, User: user})
	return user, nil
}

// loadUserInfo fills profile gaps from the userinfo endpoint. Failures only
// cost the extra claims.
func (s *AuthService) loadUserInfo(ctx context.Context, user *User) {
	if !s.client.SupportsUserInfo() {
		return
	}
	info, err := s.client.UserInfo(ctx, tokenOf(user))
	if err != nil {
		s.logger.Warn("userinfo request failed", "error", err)
		return
	}
	if info.Subject != user.Profile.Sub {
		s.logger.Warn("userinfo subject mismatch, ignoring", "sub", info.Subject)
		return
	}
	var claims UserInfo
	if err := info.Claims(&claims); err != nil {
		s.logger.Warn("userinfo claims unreadable", "error", err)
		return
	}
	user.Profile.merge(claims)
}

// GetUser returns the stored user, or nil when nobody is signed in.
func (s *AuthService) GetUser() (*User, error) {
	user, err := s.users.Load()
	if errors.Is(err, ErrCorruptUser) {
		s.logger.Warn("discarded corrupt user entry", "key", s.users.Key(), "error", err)
		return nil, nil
	}
	return user, err
}

// RenewToken refreshes the stored user's tokens without user interaction.
func (s *AuthService) RenewToken(ctx context.Context) (*User, error) {
	const op = "auth.(AuthService).RenewToken"
	user, err := s.renew(ctx)
	if err != nil {
		err = fmt.Errorf("%s: %w", op, err)
		s.logger.Error("silent renew failed", "error", err)
		s.emit(Event{Type: SilentRenewError, Err: err})
		return nil, err
	}
	s.logger.Debug("token renewed", "expires_at", user.ExpiresAt)
	s.emit(Event{Type: UserLoaded, User: user})
	return user, nil
}

func (s *AuthService) renew(ctx context.Context) (*User, error) {
	user, err := s.GetUser()
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	if user.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	previousIDToken := user.IDToken
	tok, err := s.client.RefreshToken(ctx, user.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	user.applyToken(tok)

	if user.IDToken != previousIDToken {
		idToken, err := s.client.VerifyIDToken(ctx, user.IDToken)
		if err != nil {
			return nil, fmt.Errorf("failed to verify refreshed ID token: %w", err)
		}
		if idToken.Subject != user.Profile.Sub {
			return nil, ErrSubjectChanged
		}
		var claims UserInfo
		if err := idToken.Claims(&claims); err == nil {
			claims.merge(user.Profile)
			user.Profile = claims
		}
	}

	if err := s.users.Save(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Logout removes the local user and returns the provider's end-session URL,
// or "" when the provider doesn't support RP-initiated logout.
func (s *AuthService) Logout() (string, error) {
	const op = "auth.(AuthService).Logout"
	user, err := s.GetUser()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	hint := ""
	if user != nil {
		hint = user.IDToken
	}
	endSession := s.client.EndSessionURL(hint)
	if err := s.RemoveUser(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return endSession, nil
}

// RemoveUser signs out locally.
func (s *AuthService) RemoveUser() error {
	if err := s.users.Remove(); err != nil {
		return err
	}
	s.logger.Info("user removed")
	s.emit(Event{Type: UserUnloaded})
	return nil
}

// AutoRenew refreshes the token `before` its expiry until ctx is done. A
// failed renew is reported through a SilentRenewError event and ends the
// loop, as does signing out.
func (s *AuthService) AutoRenew(ctx context.Context, before time.Duration) error {
	for {
		user, err := s.GetUser()
		if err != nil {
			return err
		}
		if user == nil || user.RefreshToken == "" || user.ExpiresAt.IsZero() {
			return ErrNoRefreshToken
		}

		timer := time.NewTimer(time.Until(user.ExpiresAt.Add(-before)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if _, err := s.RenewToken(ctx); err != nil {
			return err
		}
	}
}
