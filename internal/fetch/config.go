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
	"net/http"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
)

// Doer performs the actual HTTP request. Cancellation travels on the
// request's context.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// KeyedCache is a session-scoped key → JSON string store.
// Get reports ok == false on a miss.
type KeyedCache interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// DefaultMaxBodyBytes is the response body cap when Config leaves it unset.
const DefaultMaxBodyBytes = 4 << 20

// ErrorSink holds at most one current error message.
type ErrorSink interface {
	SetError(message string)
	ClearError()
}

// Config 客户端配置
type Config struct {
	// HTTPClient performs requests.
	// Optional. Default: cleanhttp.DefaultPooledClient()
	HTTPClient Doer

	// Cache backs the stale fallback for requests that carry a cache key.
	// Optional. Without it, cache keys are ignored.
	Cache KeyedCache

	// ErrorSink receives failures of requests that update the error store.
	// Optional.
	ErrorSink ErrorSink

	// Logger receives cache and transport diagnostics.
	// Optional. Default: hclog.NewNullLogger()
	Logger hclog.Logger

	// MaxBodyBytes caps how much of a response body is read. A larger body
	// is treated as unreadable.
	// Optional. Default: DefaultMaxBodyBytes
	MaxBodyBytes int64
}

// Fetcher issues requests and keeps the shared cache and error sink in sync.
type Fetcher struct {
	client Doer
	cache  KeyedCache
	sink   ErrorSink
	logger hclog.Logger

	maxBodyBytes int64
}

// New creates a Fetcher. A nil config is the same as an empty one.
func New(cfg *Config) *Fetcher {
	if cfg == nil {
		cfg = &Config{}
	}
	f := &Fetcher{
		client: cfg.HTTPClient,
		cache:  cfg.Cache,
		sink:   cfg.ErrorSink,
		logger: cfg.Logger,

		maxBodyBytes: cfg.MaxBodyBytes,
	}
	if f.maxBodyBytes <= 0 {
		f.maxBodyBytes = DefaultMaxBodyBytes
	}
	if f.client == nil {
		f.client = cleanhttp.DefaultPooledClient()
	}
	if f.logger == nil {
		f.logger = hclog.NewNullLogger()
	}
	f.logger = f.logger.Named("fetch")
	return f
}
