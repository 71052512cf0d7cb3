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
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// Option configures a single request.
type Option func(*requestOptions)

// requestOptions 请求选项
type requestOptions struct {
	method           string
	header           http.Header
	body             []byte
	skip             bool
	updateErrorStore bool
	cacheKey         string
}

// WithMethod sets the HTTP method. Default: GET
func WithMethod(method string) Option {
	return func(o *requestOptions) {
		o.method = method
	}
}

// WithHeader adds a request header.
func WithHeader(key, value string) Option {
	return func(o *requestOptions) {
		o.header.Add(key, value)
	}
}

// WithBody sets the request body.
func WithBody(body []byte) Option {
	return func(o *requestOptions) {
		o.body = body
	}
}

// WithSkip suppresses the request entirely when skip is true.
func WithSkip(skip bool) Option {
	return func(o *requestOptions) {
		o.skip = skip
	}
}

// WithoutErrorStore keeps failures of this request out of the error sink.
func WithoutErrorStore() Option {
	return func(o *requestOptions) {
		o.updateErrorStore = false
	}
}

// WithCacheKey caches successful payloads under key and serves them as
// stale data when a later request fails.
func WithCacheKey(key string) Option {
	return func(o *requestOptions) {
		o.cacheKey = key
	}
}

func getOptions(opts []Option) *requestOptions {
	o := &requestOptions{
		method:           http.MethodGet,
		header:           http.Header{},
		updateErrorStore: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Identity returns a stable key for (url, options, cache key). Two calls
// with equal identities describe the same request target.
func Identity(url string, opts ...Option) string {
	return getOptions(opts).identity(url)
}

func (o *requestOptions) identity(url string) string {
	h := sha256.New()
	write := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(strconv.Itoa(len(p))))
			h.Write([]byte{':'})
			h.Write([]byte(p))
		}
	}
	write(url, strings.ToUpper(o.method), o.cacheKey,
		strconv.FormatBool(o.skip), strconv.FormatBool(o.updateErrorStore))

	keys := make([]string, 0, len(o.header))
	for k := range o.header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		write(k)
		write(o.header[k]...)
	}
	write(string(o.body))
	return hex.EncodeToString(h.Sum(nil))
}
