// Package store holds process-wide observable UI state.
package store

import (
	"sync"
	"time"
)

// DefaultDismissAfter is how long the banner keeps a message on screen.
const DefaultDismissAfter = 5 * time.Second

// ErrorStore holds at most one current error message and notifies
// subscribers whenever it changes.
type ErrorStore struct {
	mu      sync.Mutex
	message string
	set     bool
	version uint64
	subs    map[int]func(message string, ok bool)
	nextSub int
	timer   *time.Timer
	dismiss time.Duration
}

// NewErrorStore creates an empty store.
func NewErrorStore() *ErrorStore {
	return &ErrorStore{subs: make(map[int]func(string, bool))}
}

// SetError replaces the current message.
func (s *ErrorStore) SetError(message string) {
	s.mu.Lock()
	s.message = message
	s.set = true
	s.version++
	s.armLocked()
	subs := s.subsLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(message, true)
	}
}

// ClearError removes the current message. Clearing an empty store still
// notifies subscribers.
func (s *ErrorStore) ClearError() {
	s.mu.Lock()
	subs := s.clearLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn("", false)
	}
}

func (s *ErrorStore) clearLocked() []func(string, bool) {
	s.message = ""
	s.set = false
	s.version++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return s.subsLocked()
}

// Message returns the current message and whether one is set.
func (s *ErrorStore) Message() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message, s.set
}

// Subscribe registers fn for every change and returns a function that
// removes it.
func (s *ErrorStore) Subscribe(fn func(message string, ok bool)) (unsubscribe func()) {
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

// AutoDismiss makes every new message clear itself after d unless another
// SetError or ClearError happened first. Zero disables it.
func (s *ErrorStore) AutoDismiss(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dismiss = d
	if d == 0 && s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *ErrorStore) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.dismiss <= 0 {
		return
	}
	version := s.version
	s.timer = time.AfterFunc(s.dismiss, func() {
		s.mu.Lock()
		if s.version != version {
			s.mu.Unlock()
			return
		}
		subs := s.clearLocked()
		s.mu.Unlock()
		for _, fn := range subs {
			fn("", false)
		}
	})
}

func (s *ErrorStore) subsLocked() []func(string, bool) {
	subs := make([]func(string, bool), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}
