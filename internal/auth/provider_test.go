package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

const testClientID = "demo-client"

type pendingCode struct {
	nonce       string
	challenge   string
	redirectURI string
}

// fakeProvider is a minimal OIDC provider: discovery, authorize (auto
// approves), token (authorization_code with PKCE, refresh_token), userinfo,
// jwks and end_session.
type fakeProvider struct {
	t      *testing.T
	srv    *httptest.Server
	key    *rsa.PrivateKey
	signer jose.Signer

	mu            sync.Mutex
	codes         map[string]pendingCode
	accessTokens  map[string]bool
	refreshTokens map[string]bool
	issued        int

	sub          string
	email        string
	name         string
	expiresIn    int
	noUserInfo   bool
	noEndSession bool
	badNonce     bool
	failRefresh  bool
	omitRefresh  bool
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jose.JSONWebKey{Key: key, KeyID: "test-key"}},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	fp := &fakeProvider{
		t:             t,
		key:           key,
		signer:        signer,
		codes:         make(map[string]pendingCode),
		accessTokens:  make(map[string]bool),
		refreshTokens: make(map[string]bool),
		sub:           "user-123",
		email:         "alice@example.com",
		expiresIn:     3600,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", fp.discovery)
	mux.HandleFunc("/authorize", fp.authorize)
	mux.HandleFunc("/token", fp.token)
	mux.HandleFunc("/userinfo", fp.userinfo)
	mux.HandleFunc("/jwks", fp.jwks)
	fp.srv = httptest.NewServer(mux)
	t.Cleanup(fp.srv.Close)
	return fp
}

func (fp *fakeProvider) URL() string { return fp.srv.URL }

func (fp *fakeProvider) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (fp *fakeProvider) discovery(w http.ResponseWriter, _ *http.Request) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	doc := map[string]interface{}{
		"issuer":                                fp.srv.URL,
		"authorization_endpoint":                fp.srv.URL + "/authorize",
		"token_endpoint":                        fp.srv.URL + "/token",
		"jwks_uri":                              fp.srv.URL + "/jwks",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	}
	if !fp.noUserInfo {
		doc["userinfo_endpoint"] = fp.srv.URL + "/userinfo"
	}
	if !fp.noEndSession {
		doc["end_session_endpoint"] = fp.srv.URL + "/end_session"
	}
	fp.writeJSON(w, http.StatusOK, doc)
}

// authorize auto-approves and redirects back with a fresh code.
func (fp *fakeProvider) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("client_id") != testClientID || q.Get("code_challenge_method") != "S256" {
		http.Error(w, "bad authorize request", http.StatusBadRequest)
		return
	}

	fp.mu.Lock()
	fp.issued++
	code := fmt.Sprintf("code-%d", fp.issued)
	fp.codes[code] = pendingCode{
		nonce:       q.Get("nonce"),
		challenge:   q.Get("code_challenge"),
		redirectURI: q.Get("redirect_uri"),
	}
	fp.mu.Unlock()

	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil {
		http.Error(w, "bad redirect_uri", http.StatusBadRequest)
		return
	}
	rq := redirect.Query()
	rq.Set("code", code)
	rq.Set("state", q.Get("state"))
	redirect.RawQuery = rq.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (fp *fakeProvider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		fp.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	clientID, _, ok := r.BasicAuth()
	if !ok {
		clientID = r.PostForm.Get("client_id")
	}
	if clientID != testClientID {
		fp.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		pending, ok := fp.codes[r.PostForm.Get("code")]
		delete(fp.codes, r.PostForm.Get("code"))
		if !ok {
			fp.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		if GenerateCodeChallenge(r.PostForm.Get("code_verifier")) != pending.challenge {
			fp.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "pkce"})
			return
		}
		if r.PostForm.Get("redirect_uri") != pending.redirectURI {
			fp.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "redirect_uri"})
			return
		}
		nonce := pending.nonce
		if fp.badNonce {
			nonce = "not-the-nonce"
		}
		fp.writeJSON(w, http.StatusOK, fp.tokenResponseLocked(nonce))

	case "refresh_token":
		rt := r.PostForm.Get("refresh_token")
		if fp.failRefresh || !fp.refreshTokens[rt] {
			fp.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		delete(fp.refreshTokens, rt)
		fp.writeJSON(w, http.StatusOK, fp.tokenResponseLocked(""))

	default:
		fp.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (fp *fakeProvider) tokenResponseLocked(nonce string) map[string]interface{} {
	fp.issued++
	access := fmt.Sprintf("access-%d", fp.issued)
	fp.accessTokens[access] = true

	resp := map[string]interface{}{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   fp.expiresIn,
		"scope":        "openid profile email",
		"id_token":     fp.idTokenLocked(nonce),
	}
	if !fp.omitRefresh {
		refresh := fmt.Sprintf("refresh-%d", fp.issued)
		fp.refreshTokens[refresh] = true
		resp["refresh_token"] = refresh
	}
	return resp
}

func (fp *fakeProvider) idTokenLocked(nonce string) string {
	now := time.Now()
	claims := jwt.Claims{
		Issuer:   fp.srv.URL,
		Subject:  fp.sub,
		Audience: jwt.Audience{testClientID},
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(time.Hour)),
	}
	extra := map[string]interface{}{"name": fp.name}
	if nonce != "" {
		extra["nonce"] = nonce
	}
	raw, err := jwt.Signed(fp.signer).Claims(claims).Claims(extra).Serialize()
	require.NoError(fp.t, err)
	return raw
}

func (fp *fakeProvider) userinfo(w http.ResponseWriter, r *http.Request) {
	token, ok := ParseBearer(r.Header.Get("Authorization"))
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if !ok || !fp.accessTokens[token] {
		fp.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}
	fp.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sub":                fp.sub,
		"email":              fp.email,
		"email_verified":     true,
		"preferred_username": "alice",
	})
}

func (fp *fakeProvider) jwks(w http.ResponseWriter, _ *http.Request) {
	fp.writeJSON(w, http.StatusOK, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       fp.key.Public(),
		KeyID:     "test-key",
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}})
}

func (fp *fakeProvider) set(fn func(fp *fakeProvider)) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fn(fp)
}

// approve plays the browser: visit authURL and return the redirect target.
func (fp *fakeProvider) approve(t *testing.T, authURL string) *url.URL {
	t.Helper()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(authURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	return loc
}

func freeLoopbackPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}
