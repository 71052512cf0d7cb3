package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"oidc-auth-demo/internal/conf"
	"oidc-auth-demo/internal/data"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

type testEnv struct {
	fp      *fakeProvider
	client  *OIDCClient
	storage *data.SessionStorage
	users   *UserStore
	svc     *AuthService

	mu     sync.Mutex
	events []Event
}

func (e *testEnv) eventTypes() []EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	types := make([]EventType, 0, len(e.events))
	for _, ev := range e.events {
		types = append(types, ev.Type)
	}
	return types
}

func newTestEnv(t *testing.T, fp *fakeProvider, redirectURL string, vault Vault) *testEnv {
	t.Helper()
	if redirectURL == "" {
		redirectURL = "http://127.0.0.1:5173/auth/callback"
	}
	cfg := &conf.OIDC{
		IssuerURI:   fp.URL(),
		ClientID:    testClientID,
		RedirectURL: redirectURL,
		Scopes:      []string{oidc.ScopeOpenID, "profile", "email"},
	}
	client, err := NewOIDCClient(context.Background(), cfg, fp.srv.Client())
	require.NoError(t, err)

	env := &testEnv{fp: fp, client: client, storage: data.NewSessionStorage()}
	env.users = NewUserStore(env.storage, client.Issuer(), client.ClientID(), vault)
	env.svc = NewAuthService(client, env.users, nil)
	env.svc.Subscribe(func(ev Event) {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.events = append(env.events, ev)
	})
	return env
}

// signIn runs the whole redirect flow and returns the signed-in user.
func (e *testEnv) signIn(t *testing.T) *User {
	t.Helper()
	authURL, err := e.svc.Login(context.Background())
	require.NoError(t, err)
	cb := e.fp.approve(t, authURL)
	user, err := e.svc.HandleCallback(context.Background(), cb.Query().Get("state"), cb.Query().Get("code"))
	require.NoError(t, err)
	return user
}

func TestPKCE(t *testing.T) {
	// RFC 7636 appendix B
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		GenerateCodeChallenge("dBjftJeZ4CVP-mJ92K9pb62D8V1ZH5R5YVsX4xR8iyc"))

	v1, err := GenerateCodeVerifier()
	require.NoError(t, err)
	v2, err := GenerateCodeVerifier()
	require.NoError(t, err)
	assert.Len(t, v1, 43)
	assert.NotEqual(t, v1, v2)
}

func TestNewOIDCClientDiscoveryFailure(t *testing.T) {
	fp := newFakeProvider(t)
	cfg := &conf.OIDC{IssuerURI: fp.URL() + "/nowhere", ClientID: testClientID}
	_, err := NewOIDCClient(context.Background(), cfg, fp.srv.Client())
	assert.Error(t, err)
}

func TestLoginURL(t *testing.T) {
	env := newTestEnv(t, newFakeProvider(t), "", nil)

	authURL, err := env.svc.Login(context.Background())
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, env.fp.URL()+"/authorize", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, "http://127.0.0.1:5173/auth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid profile email", q.Get("scope"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.NotEmpty(t, q.Get("state"))
	assert.NotEmpty(t, q.Get("nonce"))

	second, err := env.svc.Login(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, authURL, second)
}

func TestLoginCancelled(t *testing.T) {
	env := newTestEnv(t, newFakeProvider(t), "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.svc.Login(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandleCallbackSignsIn(t *testing.T) {
	fp := newFakeProvider(t)
	fp.name = "Alice"
	env := newTestEnv(t, fp, "", nil)

	user := env.signIn(t)
	assert.Equal(t, "user-123", user.Profile.Sub)
	assert.Equal(t, "Alice", user.Profile.Name)
	// email and username only come from the userinfo endpoint
	assert.Equal(t, "alice@example.com", user.Profile.Email)
	assert.Equal(t, "alice", user.Profile.PreferredUsername)
	assert.Equal(t, "Bearer", user.TokenType)
	assert.NotEmpty(t, user.AccessToken)
	assert.NotEmpty(t, user.RefreshToken)
	assert.NotEmpty(t, user.IDToken)
	assert.False(t, user.Expired())
	assert.InDelta(t, time.Hour.Seconds(), user.ExpiresIn().Seconds(), 60)

	stored, err := env.svc.GetUser()
	require.NoError(t, err)
	assert.Equal(t, user.AccessToken, stored.AccessToken)
	assert.Equal(t, user.Profile, stored.Profile)
	assert.True(t, user.ExpiresAt.Equal(stored.ExpiresAt))

	raw, ok, err := env.storage.Get(UserKey(fp.URL(), testClientID))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"access_token"`)
	assert.Equal(t, []EventType{UserLoaded}, env.eventTypes())
}

func TestHandleCallbackWithoutUserInfo(t *testing.T) {
	fp := newFakeProvider(t)
	fp.noUserInfo = true
	env := newTestEnv(t, fp, "", nil)

	user := env.signIn(t)
	assert.Equal(t, "user-123", user.Profile.Sub)
	assert.Empty(t, user.Profile.Email)
}

func TestHandleCallbackRejects(t *testing.T) {
	t.Run("unknown state", func(t *testing.T) {
		env := newTestEnv(t, newFakeProvider(t), "", nil)
		_, err := env.svc.HandleCallback(context.Background(), "forged", "code")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("state is one-shot", func(t *testing.T) {
		env := newTestEnv(t, newFakeProvider(t), "", nil)
		authURL, err := env.svc.Login(context.Background())
		require.NoError(t, err)
		cb := env.fp.approve(t, authURL)
		state, code := cb.Query().Get("state"), cb.Query().Get("code")

		_, err = env.svc.HandleCallback(context.Background(), state, code)
		require.NoError(t, err)
		_, err = env.svc.HandleCallback(context.Background(), state, code)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("missing code", func(t *testing.T) {
		env := newTestEnv(t, newFakeProvider(t), "", nil)
		authURL, err := env.svc.Login(context.Background())
		require.NoError(t, err)
		state := env.fp.approve(t, authURL).Query().Get("state")
		_, err = env.svc.HandleCallback(context.Background(), state, "")
		assert.ErrorIs(t, err, ErrMissingCode)
	})

	t.Run("nonce mismatch", func(t *testing.T) {
		fp := newFakeProvider(t)
		fp.badNonce = true
		env := newTestEnv(t, fp, "", nil)
		authURL, err := env.svc.Login(context.Background())
		require.NoError(t, err)
		cb := fp.approve(t, authURL)
		_, err = env.svc.HandleCallback(context.Background(), cb.Query().Get("state"), cb.Query().Get("code"))
		assert.ErrorIs(t, err, ErrNonceMismatch)

		user, err := env.svc.GetUser()
		require.NoError(t, err)
		assert.Nil(t, user)
		assert.Empty(t, env.eventTypes())
	})

	t.Run("bad code", func(t *testing.T) {
		env := newTestEnv(t, newFakeProvider(t), "", nil)
		authURL, err := env.svc.Login(context.Background())
		require.NoError(t, err)
		state := env.fp.approve(t, authURL).Query().Get("state")
		_, err = env.svc.HandleCallback(context.Background(), state, "code-999")
		assert.Error(t, err)
	})
}

func TestRenewToken(t *testing.T) {
	env := newTestEnv(t, newFakeProvider(t), "", nil)
	first := env.signIn(t)

	renewed, err := env.svc.RenewToken(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, renewed.AccessToken)
	assert.NotEqual(t, first.RefreshToken, renewed.RefreshToken)
	assert.Equal(t, first.Profile.Sub, renewed.Profile.Sub)
	assert.Equal(t, "alice@example.com", renewed.Profile.Email)

	stored, err := env.svc.GetUser()
	require.NoError(t, err)
	assert.Equal(t, renewed.AccessToken, stored.AccessToken)
	assert.Equal(t, []EventType{UserLoaded, UserLoaded}, env.eventTypes())
}

func TestRenewTokenKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	fp := newFakeProvider(t)
	env := newTestEnv(t, fp, "", nil)
	first := env.signIn(t)

	// The provider no longer rotates, but still honours the old token.
	fp.set(func(fp *fakeProvider) { fp.omitRefresh = true })
	renewed, err := env.svc.RenewToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.RefreshToken, renewed.RefreshToken)
}

func TestRenewTokenFailures(t *testing.T) {
	t.Run("signed out", func(t *testing.T) {
		env := newTestEnv(t, newFakeProvider(t), "", nil)
		_, err := env.svc.RenewToken(context.Background())
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		assert.Equal(t, []EventType{SilentRenewError}, env.eventTypes())
	})

	t.Run("no refresh token", func(t *testing.T) {
		fp := newFakeProvider(t)
		fp.omitRefresh = true
		env := newTestEnv(t, fp, "", nil)
		env.signIn(t)
		_, err := env.svc.RenewToken(context.Background())
		assert.ErrorIs(t, err, ErrNoRefreshToken)
	})

	t.Run("provider rejects", func(t *testing.T) {
		fp := newFakeProvider(t)
		env := newTestEnv(t, fp, "", nil)
		first := env.signIn(t)
		fp.set(func(fp *fakeProvider) { fp.failRefresh = true })

		_, err := env.svc.RenewToken(context.Background())
		require.Error(t, err)
		assert.Equal(t, []EventType{UserLoaded, SilentRenewError}, env.eventTypes())

		// The stored user is untouched.
		stored, err := env.svc.GetUser()
		require.NoError(t, err)
		assert.Equal(t, first.AccessToken, stored.AccessToken)
	})
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, newFakeProvider(t), "", nil)
	user := env.signIn(t)

	endSession, err := env.svc.Logout()
	require.NoError(t, err)
	u, err := url.Parse(endSession)
	require.NoError(t, err)
	assert.Equal(t, "/end_session", u.Path)
	assert.Equal(t, user.IDToken, u.Query().Get("id_token_hint"))
	assert.Equal(t, testClientID, u.Query().Get("client_id"))
	assert.Equal(t, "http://127.0.0.1:5173", u.Query().Get("post_logout_redirect_uri"))

	stored, err := env.svc.GetUser()
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Equal(t, []EventType{UserLoaded, UserUnloaded}, env.eventTypes())
}

func TestLogoutWithoutEndSession(t *testing.T) {
	fp := newFakeProvider(t)
	fp.noEndSession = true
	env := newTestEnv(t, fp, "", nil)
	env.signIn(t)

	endSession, err := env.svc.Logout()
	require.NoError(t, err)
	assert.Empty(t, endSession)
}

func TestUserStoreVaultsRefreshToken(t *testing.T) {
	keyring.MockInit()
	vault := NewKeyringVault("")
	require.True(t, vault.Available())
	env := newTestEnv(t, newFakeProvider(t), "", vault)

	user := env.signIn(t)
	raw, ok, err := env.storage.Get(env.users.Key())
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, raw, user.RefreshToken)

	secret, err := vault.Get(env.users.Key())
	require.NoError(t, err)
	assert.Equal(t, user.RefreshToken, secret)

	stored, err := env.svc.GetUser()
	require.NoError(t, err)
	assert.Equal(t, user.RefreshToken, stored.RefreshToken)

	_, err = env.svc.RenewToken(context.Background())
	require.NoError(t, err)

	require.NoError(t, env.svc.RemoveUser())
	secret, err = vault.Get(env.users.Key())
	require.NoError(t, err)
	assert.Empty(t, secret)
}

func TestUserStoreCorruptEntry(t *testing.T) {
	storage := data.NewSessionStorage()
	users := NewUserStore(storage, "https://issuer", "client", nil)
	require.NoError(t, storage.Set(users.Key(), "{not json"))

	_, err := users.Load()
	assert.ErrorIs(t, err, ErrCorruptUser)
	_, ok, _ := storage.Get(users.Key())
	assert.False(t, ok, "corrupt entry should be removed")
}

func TestGetUserDiscardsCorruptEntry(t *testing.T) {
	env := newTestEnv(t, newFakeProvider(t), "", nil)
	require.NoError(t, env.storage.Set(env.users.Key(), "[]"))
	user, err := env.svc.GetUser()
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestUserKey(t *testing.T) {
	assert.Equal(t, "oidc.user:https://issuer.example.com:abc", UserKey("https://issuer.example.com", "abc"))
}

func TestUserStoreRoundTrip(t *testing.T) {
	users := NewUserStore(data.NewSessionStorage(), "https://issuer", "client", nil)
	none, err := users.Load()
	require.NoError(t, err)
	assert.Nil(t, none)

	in := &User{
		AccessToken: "at",
		IDToken:     "idt",
		ExpiresAt:   time.Now().Add(time.Minute).Truncate(time.Second),
		Profile:     UserInfo{Sub: "s", Email: "e@example.com"},
	}
	require.NoError(t, users.Save(in))
	out, err := users.Load()
	require.NoError(t, err)
	assert.True(t, in.ExpiresAt.Equal(out.ExpiresAt))
	assert.Equal(t, in.Profile, out.Profile)

	encoded, err := json.Marshal(out.Profile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(encoded), `{"sub":"s"`))
}

func TestAutoRenew(t *testing.T) {
	fp := newFakeProvider(t)
	fp.expiresIn = 2
	env := newTestEnv(t, fp, "", nil)
	env.signIn(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- env.svc.AutoRenew(ctx, 1900*time.Millisecond) }()

	assert.Eventually(t, func() bool {
		return len(env.eventTypes()) >= 3
	}, 4*time.Second, 20*time.Millisecond, fmt.Sprint(env.eventTypes()))
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestAutoRenewStopsOnFailure(t *testing.T) {
	fp := newFakeProvider(t)
	fp.expiresIn = 1
	env := newTestEnv(t, fp, "", nil)
	env.signIn(t)
	fp.set(func(fp *fakeProvider) { fp.failRefresh = true })

	err := env.svc.AutoRenew(context.Background(), time.Second)
	require.Error(t, err)
	assert.Contains(t, env.eventTypes(), SilentRenewError)
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "user_loaded", UserLoaded.String())
	assert.Equal(t, "user_unloaded", UserUnloaded.String())
	assert.Equal(t, "silent_renew_error", SilentRenewError.String())
	assert.Equal(t, "unknown", EventType(42).String())
}
