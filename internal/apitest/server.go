// Package apitest runs an in-process stand-in for the resource server the
// demo talks to: a public health endpoint, a bearer-protected info endpoint
// and problem+json errors.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"oidc-auth-demo/internal/api"
	"oidc-auth-demo/internal/auth"

	"github.com/gorilla/mux"
)

const problemBase = "https://api.bluefields.ai/errors/"

// Server is a fake backend. The zero configuration answers health with
// "Service up" and rejects every private request until a token is added.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	tokens        map[string]auth.UserInfo
	healthMessage string
	healthFailure *failure
	privateCalls  int
	healthCalls   int
	lastAuthz     string
}

type failure struct {
	status      int
	contentType string
	body        string
}

// NewServer starts a fake backend. Close it when done.
func NewServer() *Server {
	s := &Server{
		tokens:        make(map[string]auth.UserInfo),
		healthMessage: "Service up",
	}
	s.Server = httptest.NewServer(s.Router())
	return s
}

// Router 创建路由并注册所有 handler
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	// Public endpoints (no auth)
	r.HandleFunc(api.HealthPath, s.health).Methods(http.MethodGet)

	// Protected endpoints
	private := r.PathPrefix("/api/v1/private").Subrouter()
	private.Use(s.authMiddleware)
	private.HandleFunc("/info", s.privateInfo).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "not-found", "Not Found",
			"The requested resource could not be found: "+r.URL.String())
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusMethodNotAllowed, "method-not-allowed", "Method Not Allowed",
			"The HTTP method "+r.Method+" is not supported for this resource")
	})
	return r
}

// AddToken makes token valid for user.
func (s *Server) AddToken(token string, user auth.UserInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = user
}

// SetHealthMessage changes the health payload.
func (s *Server) SetHealthMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthMessage = msg
}

// FailHealth makes the health endpoint answer with status and a raw body.
// An empty contentType defaults to application/problem+json.
func (s *Server) FailHealth(status int, contentType, body string) {
	if contentType == "" {
		contentType = "application/problem+json"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthFailure = &failure{status: status, contentType: contentType, body: body}
}

// FailHealthWithProblem is FailHealth with a problem payload.
func (s *Server) FailHealthWithProblem(status int, title, detail string) {
	raw, _ := json.Marshal(api.Problem{
		Type:      problemBase + "test",
		Title:     title,
		Status:    status,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
	s.FailHealth(status, "", string(raw))
}

// Heal undoes FailHealth.
func (s *Server) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthFailure = nil
}

// HealthCalls counts requests that reached the health handler.
func (s *Server) HealthCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthCalls
}

// PrivateCalls counts requests that passed authentication.
func (s *Server) PrivateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.privateCalls
}

// LastAuthorization returns the last Authorization header seen on a private
// request.
func (s *Server) LastAuthorization() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuthz
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.healthCalls++
	msg, fail := s.healthMessage, s.healthFailure
	s.mu.Unlock()

	if fail != nil {
		w.Header().Set("Content-Type", fail.contentType)
		w.WriteHeader(fail.status)
		_, _ = w.Write([]byte(fail.body))
		return
	}
	writeJSON(w, http.StatusOK, api.HealthResponse{Message: msg})
}

func (s *Server) privateInfo(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, "")
		return
	}
	s.mu.Lock()
	s.privateCalls++
	s.mu.Unlock()

	email := user.Email
	if email == "" {
		email = "Email not found"
	}
	writeJSON(w, http.StatusOK, api.PrivateInfoResponse{
		Message: "Hello AUTH (from UserInfo)",
		Email:   email,
	})
}

// authMiddleware validates the bearer token for protected routes
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		s.mu.Lock()
		s.lastAuthz = header
		s.mu.Unlock()

		token, ok := auth.ParseBearer(header)
		if !ok {
			writeUnauthorized(w, "")
			return
		}
		s.mu.Lock()
		user, known := s.tokens[token]
		s.mu.Unlock()
		if !known {
			writeUnauthorized(w, "invalid_token")
			return
		}

		ctx := auth.NewContext(r.Context(), &user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeUnauthorized answers like a bearer resource server: no body, the
// reason goes into WWW-Authenticate.
func writeUnauthorized(w http.ResponseWriter, errCode string) {
	challenge := "Bearer"
	if errCode != "" {
		challenge += ` error="` + errCode + `"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	w.WriteHeader(http.StatusUnauthorized)
}

func writeProblem(w http.ResponseWriter, status int, kind, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.Problem{
		Type:      problemBase + kind,
		Title:     title,
		Status:    status,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
