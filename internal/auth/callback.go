package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultCallbackTimeout bounds how long Wait blocks for the browser.
const DefaultCallbackTimeout = 5 * time.Minute

type callbackResult struct {
	user *User
	err  error
}

// CallbackServer listens on the redirect URI's loopback address and
// completes the sign-in when the provider redirects back.
type CallbackServer struct {
	svc    *AuthService
	addr   string
	path   string
	logger hclog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	results  chan callbackResult
	once     sync.Once
}

// NewCallbackServer serves the path of redirectURL on its host:port.
func NewCallbackServer(svc *AuthService, redirectURL string, logger hclog.Logger) (*CallbackServer, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("redirect url %q has no host", redirectURL)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return &CallbackServer{
		svc:     svc,
		addr:    u.Host,
		path:    path,
		logger:  logger.Named("callback"),
		results: make(chan callbackResult, 1),
	}, nil
}

// Listen starts serving and returns the bound address.
func (s *CallbackServer) Listen(ctx context.Context) (net.Addr, error) {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handle)
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.server = server
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("callback server stopped", "error", err)
		}
	}()
	s.logger.Debug("listening for callback", "addr", listener.Addr().String(), "path", s.path)
	return listener.Addr(), nil
}

func (s *CallbackServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()

	var res callbackResult
	if code := q.Get("error"); code != "" {
		res.err = &AuthorizationError{Code: code, Description: q.Get("error_description")}
	} else {
		res.user, res.err = s.svc.HandleCallback(r.Context(), q.Get("state"), q.Get("code"))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if res.err != nil {
		s.logger.Error("error processing callback", "error", res.err)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "<html><body><h1>Authentication failed</h1><p>%s</p></body></html>", html.EscapeString(res.err.Error()))
	} else {
		fmt.Fprint(w, "<html><body><h1>Authentication successful!</h1><p>You can close this window.</p></body></html>")
	}

	// Only the first callback counts.
	s.once.Do(func() { s.results <- res })
}

// Wait blocks until the callback completes or ctx is done.
func (s *CallbackServer) Wait(ctx context.Context) (*User, error) {
	select {
	case res := <-s.results:
		return res.user, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the listener.
func (s *CallbackServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// OpenBrowser opens url in the default browser.
func OpenBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler", url}
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return exec.Command(cmd, args...).Start()
}
