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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// attempt guards the side effects of one request attempt. Both methods
// return false, without running anything, once the attempt was cancelled.
type attempt[T any] interface {
	// effect runs cache or sink updates that come with no state change.
	effect(fn func()) bool
	// commit applies the terminal state, then its effects.
	commit(st State[T], effects func()) bool
}

// ctxAttempt is the guard of a bare Do call.
type ctxAttempt[T any] struct{ ctx context.Context }

func (a ctxAttempt[T]) effect(fn func()) bool {
	if a.ctx.Err() != nil {
		return false
	}
	fn()
	return true
}

func (a ctxAttempt[T]) commit(_ State[T], effects func()) bool { return a.effect(effects) }

// Initial returns the state a consumer sees before the request starts:
// idle when skipped, otherwise loading unless the cache already holds a
// usable value for the request's cache key.
func Initial[T any](f *Fetcher, opts ...Option) State[T] {
	return initial[T](f, getOptions(opts))
}

func initial[T any](f *Fetcher, o *requestOptions) State[T] {
	if o.skip {
		return idle[T]()
	}
	if data, ok := readCache[T](f, o.cacheKey, "initial read"); ok {
		return State[T]{Data: data, HasData: true}
	}
	return State[T]{Loading: true}
}

// Do runs one request attempt and returns its terminal state.
//
// ok is false when ctx was cancelled before the attempt finished. In that case
// the returned state must be discarded: no cache write and no error sink
// update took place.
func Do[T any](ctx context.Context, f *Fetcher, url string, opts ...Option) (st State[T], ok bool) {
	o := getOptions(opts)
	if o.skip {
		return idle[T](), true
	}
	return do[T](ctx, f, url, o, ctxAttempt[T]{ctx: ctx})
}

func do[T any](ctx context.Context, f *Fetcher, url string, o *requestOptions, a attempt[T]) (State[T], bool) {
	if ctx.Err() != nil {
		return State[T]{}, false
	}
	if o.updateErrorStore && f.sink != nil {
		if !a.effect(f.sink.ClearError) {
			return State[T]{}, false
		}
	}

	var body io.Reader
	if o.body != nil {
		body = bytes.NewReader(o.body)
	}
	req, err := http.NewRequestWithContext(ctx, o.method, url, body)
	if err != nil {
		f.logger.Error("failed to build request", "url", url, "error", err)
		return fail(ctx, f, o, connectivityError(), a)
	}
	req.Header = o.header.Clone()

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return State[T]{}, false
		}
		f.logger.Error("fetch error", "url", url, "error", err)
		return fail(ctx, f, o, connectivityError(), a)
	}
	defer resp.Body.Close()

	statusOK := resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices
	payload, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err == nil && int64(len(payload)) > f.maxBodyBytes {
		err = errBodyTooLarge
	}
	if err != nil {
		if ctx.Err() != nil {
			return State[T]{}, false
		}
		f.logger.Error("failed to read response body", "url", url, "status", resp.StatusCode, "error", err)
		// The status already arrived, so a broken body is the server's fault.
		if !statusOK {
			return fail(ctx, f, o, responseError(resp.StatusCode, resp.Status, nil), a)
		}
		return fail(ctx, f, o, malformedError(resp.StatusCode), a)
	}

	if !statusOK {
		return fail(ctx, f, o, responseError(resp.StatusCode, resp.Status, payload), a)
	}

	if !json.Valid(payload) {
		f.logger.Error("failed to parse JSON response", "url", url, "status", resp.StatusCode)
		return fail(ctx, f, o, malformedError(resp.StatusCode), a)
	}
	// A literal null is a successful empty answer: no data and nothing to cache.
	if bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		st := State[T]{}
		return st, a.commit(st, func() {})
	}
	var data T
	if err := json.Unmarshal(payload, &data); err != nil {
		f.logger.Error("failed to decode JSON response", "url", url, "error", err)
		return fail(ctx, f, o, malformedError(resp.StatusCode), a)
	}

	st := success(data)
	ok := a.commit(st, func() {
		if o.cacheKey != "" && f.cache != nil {
			writeCache(f, o.cacheKey, data)
		}
	})
	return st, ok
}

// fail serves the cached value for the request's key as stale data when there
// is one, and otherwise publishes the error.
func fail[T any](ctx context.Context, f *Fetcher, o *requestOptions, e *Error, a attempt[T]) (State[T], bool) {
	if ctx.Err() != nil {
		return State[T]{}, false
	}
	f.logger.Warn("request failed", "kind", e.Kind.String(), "status", e.Status, "message", e.Message)

	if cached, ok := readCache[T](f, o.cacheKey, "error fallback"); ok {
		st := stale(cached)
		ok := a.commit(st, func() {
			if o.updateErrorStore && f.sink != nil {
				f.sink.ClearError()
			}
		})
		return st, ok
	}

	st := failed[T](e)
	ok := a.commit(st, func() {
		if o.updateErrorStore && f.sink != nil {
			f.sink.SetError(e.Message)
		}
	})
	return st, ok
}

var errBodyTooLarge = errors.New("response body exceeds size limit")

// readCache returns the decoded value stored under key. Storage errors and
// corrupt entries count as a miss; a corrupt entry is removed.
func readCache[T any](f *Fetcher, key, phase string) (T, bool) {
	var zero T
	if key == "" || f.cache == nil {
		return zero, false
	}

	raw, ok, err := f.cache.Get(key)
	if err != nil {
		f.logger.Error("error reading cache key", "key", key, "phase", phase, "error", err)
		removeCorrupt(f, key)
		return zero, false
	}
	if !ok || raw == "" || strings.TrimSpace(raw) == "null" {
		return zero, false
	}

	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		f.logger.Error("error parsing cache key", "key", key, "phase", phase, "error", err)
		removeCorrupt(f, key)
		return zero, false
	}
	return v, true
}

func writeCache[T any](f *Fetcher, key string, data T) {
	raw, err := json.Marshal(data)
	if err != nil {
		f.logger.Error("error encoding cache key", "key", key, "error", err)
		return
	}
	if err := f.cache.Set(key, string(raw)); err != nil {
		f.logger.Error("error writing cache key", "key", key, "error", err)
	}
}

func removeCorrupt(f *Fetcher, key string) {
	if err := f.cache.Remove(key); err != nil {
		f.logger.Warn("failed to remove corrupt cache key", "key", key, "error", err)
	}
}
