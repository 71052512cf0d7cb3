package auth

import (
	"sync"
	"time"
)

// DefaultStateTTL bounds how long a login attempt may take.
const DefaultStateTTL = 10 * time.Minute

// StateData stores state-related data
type StateData struct {
	Expiry       time.Time
	CodeVerifier string // For PKCE
	Nonce        string // Bound into the ID token
}

// StateStore manages CSRF state parameters and PKCE verifiers (in-memory)
type StateStore struct {
	states sync.Map // map[state]StateData
	now    func() time.Time
}

// NewStateStore creates a new state store
func NewStateStore() *StateStore {
	return &StateStore{now: time.Now}
}

// Save stores a state with expiry, code verifier and nonce. Expired entries
// are pruned on the way.
func (s *StateStore) Save(state string, ttl time.Duration, codeVerifier, nonce string) {
	now := s.now()
	s.states.Range(func(key, value interface{}) bool {
		if now.After(value.(StateData).Expiry) {
			s.states.Delete(key)
		}
		return true
	})
	s.states.Store(state, StateData{
		Expiry:       now.Add(ttl),
		CodeVerifier: codeVerifier,
		Nonce:        nonce,
	})
}

// Consume checks and removes a state (one-time use)
func (s *StateStore) Consume(state string) (StateData, bool) {
	if state == "" {
		return StateData{}, false
	}
	val, ok := s.states.LoadAndDelete(state)
	if !ok {
		return StateData{}, false
	}
	data := val.(StateData)
	if s.now().After(data.Expiry) {
		return StateData{}, false
	}
	return data, true
}
