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
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// User-facing messages.
const (
	MsgConnectivity = "Cannot connect to server—please check your connection"
	MsgUnavailable  = "Service unavailable—please retry"
	MsgMalformed    = "Received invalid data format from server"
)

func connectivityError() *Error {
	return &Error{Kind: KindConnectivity, Message: MsgConnectivity}
}

func malformedError(status int) *Error {
	return &Error{Kind: KindMalformed, Status: status, Message: MsgMalformed}
}

// responseError builds the message for a non-2xx response from its status
// and problem payload (RFC 7807 shape: type, title, status, detail, timestamp).
func responseError(status int, statusLine string, body []byte) *Error {
	if status >= http.StatusInternalServerError {
		return &Error{Kind: KindServer, Status: status, Message: MsgUnavailable}
	}

	e := &Error{Kind: KindClient, Status: status}
	if gjson.ValidBytes(body) {
		problem := gjson.ParseBytes(body)
		if problem.IsObject() {
			if detail := problem.Get("detail"); detail.Type == gjson.String && detail.Str != "" {
				e.Message = detail.Str
				return e
			}
			if title := problem.Get("title"); title.Type == gjson.String && title.Str != "" {
				e.Message = title.Str
				return e
			}
		}
	}
	e.Message = fmt.Sprintf("Error: %d %s", status, statusText(status, statusLine))
	return e
}

// statusText extracts the reason phrase from a status line such as
// "404 Not Found", falling back to the canonical text for the code.
func statusText(status int, statusLine string) string {
	text := strings.TrimSpace(strings.TrimPrefix(statusLine, strconv.Itoa(status)))
	if text == "" {
		text = http.StatusText(status)
	}
	return text
}
