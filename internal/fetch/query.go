/*
 * Copyright 2024 OIDC Auth Demo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package fetch

import (
	"context"
	"sync"
)

// Query owns the state of one logical request target and restarts the
// request whenever the target's identity changes. Starting a new attempt
// cancels the previous one first, so a late response of an old target can
// never overwrite the current state.
type Query[T any] struct {
	f *Fetcher

	// effectsMu orders cache and sink effects across attempts.
	// Lock order: effectsMu, then mu.
	effectsMu sync.Mutex

	mu       sync.Mutex
	identity string
	url      string
	opts     []Option
	active   bool
	cancel   context.CancelFunc
	done     chan struct{}
	state    State[T]
	version  uint64 // incremented on every state change
	subs     map[int]func(State[T])
	nextSub  int
	notifyMu sync.Mutex
	notified uint64
}

// NewQuery creates an idle Query bound to f.
func NewQuery[T any](f *Fetcher) *Query[T] {
	done := make(chan struct{})
	close(done)
	return &Query[T]{
		f:    f,
		done: done,
		subs: make(map[int]func(State[T])),
	}
}

// Run starts a request for (url, opts) unless the same target is already
// running or finished. A different target cancels the in-flight attempt
// before the new one starts.
func (q *Query[T]) Run(ctx context.Context, url string, opts ...Option) {
	o := getOptions(opts)
	id := o.identity(url)

	q.mu.Lock()
	if q.active && q.identity == id {
		q.mu.Unlock()
		return
	}
	st, version := q.startLocked(ctx, id, url, opts, o)
	q.mu.Unlock()
	q.notify(version, st)
}

// Refetch restarts the current target even though its identity is unchanged.
// It is a no-op before the first Run.
func (q *Query[T]) Refetch(ctx context.Context) {
	q.mu.Lock()
	if q.identity == "" {
		q.mu.Unlock()
		return
	}
	o := getOptions(q.opts)
	st, version := q.startLocked(ctx, q.identity, q.url, q.opts, o)
	q.mu.Unlock()
	q.notify(version, st)
}

func (q *Query[T]) startLocked(ctx context.Context, id, url string, opts []Option, o *requestOptions) (State[T], uint64) {
	q.stopLocked()
	q.identity = id
	q.url = url
	q.opts = opts
	q.active = true

	done := make(chan struct{})
	q.done = done

	if o.skip {
		close(done)
		return q.setLocked(idle[T]())
	}

	// The seed keeps cached data visible while the request revalidates it.
	seed := initial[T](q.f, o)
	seed.Loading = true

	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	go func() {
		defer close(done)
		do[T](runCtx, q.f, url, o, &queryAttempt[T]{q: q, ctx: runCtx})
	}()
	return q.setLocked(seed)
}

// queryAttempt checks for cancellation under mu, so nothing commits after
// Run or Close cancelled the attempt. Effects run with mu released; sink
// subscribers may read the query.
type queryAttempt[T any] struct {
	q   *Query[T]
	ctx context.Context
}

func (a *queryAttempt[T]) live() bool {
	a.q.mu.Lock()
	defer a.q.mu.Unlock()
	return a.ctx.Err() == nil
}

func (a *queryAttempt[T]) effect(fn func()) bool {
	a.q.effectsMu.Lock()
	defer a.q.effectsMu.Unlock()
	if !a.live() {
		return false
	}
	fn()
	return true
}

func (a *queryAttempt[T]) commit(st State[T], effects func()) bool {
	q := a.q
	q.effectsMu.Lock()
	q.mu.Lock()
	if a.ctx.Err() != nil {
		q.mu.Unlock()
		q.effectsMu.Unlock()
		return false
	}
	st, version := q.setLocked(st)
	q.mu.Unlock()

	effects()
	q.effectsMu.Unlock()
	q.notify(version, st)
	return true
}

func (q *Query[T]) stopLocked() {
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	q.active = false
}

func (q *Query[T]) setLocked(st State[T]) (State[T], uint64) {
	q.state = st
	q.version++
	return st, q.version
}

// notify delivers st to subscribers unless a newer state was already
// delivered.
func (q *Query[T]) notify(version uint64, st State[T]) {
	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()
	if version <= q.notified {
		return
	}
	q.notified = version

	q.mu.Lock()
	subs := make([]func(State[T]), 0, len(q.subs))
	for _, fn := range q.subs {
		subs = append(subs, fn)
	}
	q.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

// State returns the current state. Never blocks.
func (q *Query[T]) State() State[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Wait blocks until the current attempt finished or was cancelled, then
// returns the current state.
func (q *Query[T]) Wait(ctx context.Context) (State[T], error) {
	q.mu.Lock()
	done := q.done
	q.mu.Unlock()

	select {
	case <-done:
		return q.State(), nil
	case <-ctx.Done():
		return q.State(), ctx.Err()
	}
}

// Subscribe registers fn for every state change and returns a function that
// removes it. fn must not call back into Run or Close synchronously.
func (q *Query[T]) Subscribe(fn func(State[T])) (unsubscribe func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = fn
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.subs, id)
	}
}

// Close cancels the in-flight attempt. The last committed state stays
// readable; a later Run starts again even for the same target.
func (q *Query[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopLocked()
}
