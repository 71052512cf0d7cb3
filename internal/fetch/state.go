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

// State is the externally visible result of a request.
//
// Err != nil implies !HasData && !IsStale. IsStale implies HasData && Err == nil.
type State[T any] struct {
	// Loading is true while a request is in flight.
	Loading bool

	// Data is the last known good payload, fresh or stale. Only meaningful
	// when HasData is true.
	Data    T
	HasData bool

	// Err is set only when no usable cached data exists.
	Err *Error

	// IsStale is true when Data was served from cache after a failed refresh.
	IsStale bool
}

// ErrorMessage returns the human-readable error, or "" when there is none.
func (s State[T]) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Message
}

// Kind classifies a request failure.
type Kind int

const (
	// KindConnectivity means the transport could not reach the server.
	KindConnectivity Kind = iota + 1
	// KindServer is any 5xx response.
	KindServer
	// KindClient is a non-2xx, non-5xx response.
	KindClient
	// KindMalformed is a 2xx response whose body is not valid JSON.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error is a request failure already translated into a display-ready message.
type Error struct {
	Kind    Kind
	Status  int // 0 for transport failures
	Message string
}

func (e *Error) Error() string { return e.Message }

func idle[T any]() State[T] {
	return State[T]{}
}

func success[T any](data T) State[T] {
	return State[T]{Data: data, HasData: true}
}

func stale[T any](data T) State[T] {
	return State[T]{Data: data, HasData: true, IsStale: true}
}

func failed[T any](err *Error) State[T] {
	return State[T]{Err: err}
}
