package api_test

import (
	"context"
	"net/http"
	"testing"

	"oidc-auth-demo/internal/api"
	"oidc-auth-demo/internal/apitest"
	"oidc-auth-demo/internal/auth"
	"oidc-auth-demo/internal/data"
	"oidc-auth-demo/internal/fetch"
	"oidc-auth-demo/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, baseURL string) (*api.Client, *data.SessionStorage, *store.ErrorStore) {
	t.Helper()
	cache := data.NewSessionStorage()
	errs := store.NewErrorStore()
	f := fetch.New(&fetch.Config{Cache: cache, ErrorSink: errs})
	return api.NewClient(baseURL+"/", f), cache, errs
}

func TestHealthCachesPayload(t *testing.T) {
	backend := apitest.NewServer()
	defer backend.Close()
	client, cache, errs := newClient(t, backend.URL)

	assert.Equal(t, backend.URL+api.HealthPath, client.HealthURL())

	st, ok := client.Health(context.Background())
	require.True(t, ok)
	assert.True(t, st.HasData)
	assert.False(t, st.IsStale)
	assert.Equal(t, "Service up", st.Data.Message)

	raw, found, err := cache.Get(api.HealthCacheKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"message":"Service up"}`, raw)
	_, set := errs.Message()
	assert.False(t, set)
}

func TestHealthServesStaleOnServerError(t *testing.T) {
	backend := apitest.NewServer()
	defer backend.Close()
	client, _, errs := newClient(t, backend.URL)

	_, ok := client.Health(context.Background())
	require.True(t, ok)

	backend.FailHealthWithProblem(http.StatusServiceUnavailable, "Service Unavailable", "down for maintenance")
	st, _ := client.Health(context.Background())
	assert.True(t, st.IsStale)
	assert.Equal(t, "Service up", st.Data.Message)
	assert.Nil(t, st.Err)

	// A stale fallback never reaches the banner.
	_, set := errs.Message()
	assert.False(t, set)
}

func TestHealthProblemDetailWithoutCache(t *testing.T) {
	backend := apitest.NewServer()
	defer backend.Close()
	client, _, errs := newClient(t, backend.URL)

	backend.FailHealthWithProblem(http.StatusNotFound, "Not Found", "health moved")
	st, _ := client.Health(context.Background())
	require.NotNil(t, st.Err)
	assert.Equal(t, fetch.KindClient, st.Err.Kind)
	assert.Equal(t, "health moved", st.ErrorMessage())
	msg, _ := errs.Message()
	assert.Equal(t, "health moved", msg)
}

func TestHealthConnectivity(t *testing.T) {
	backend := apitest.NewServer()
	client, _, _ := newClient(t, backend.URL)
	backend.Close()

	st, _ := client.Health(context.Background())
	require.NotNil(t, st.Err)
	assert.Equal(t, fetch.KindConnectivity, st.Err.Kind)
	assert.Equal(t, fetch.MsgConnectivity, st.ErrorMessage())
}

func TestPrivateInfo(t *testing.T) {
	backend := apitest.NewServer()
	defer backend.Close()
	backend.AddToken("token-1", auth.UserInfo{Sub: "u", Email: "alice@example.com"})
	client, cache, _ := newClient(t, backend.URL)

	st, ok := client.PrivateInfo(context.Background(), "token-1")
	require.True(t, ok)
	require.Nil(t, st.Err)
	assert.Equal(t, "alice@example.com", st.Data.Email)
	assert.Equal(t, "Bearer token-1", backend.LastAuthorization())

	_, found, _ := cache.Get(api.PrivateInfoCacheKey)
	assert.True(t, found)
}

func TestPrivateInfoWithoutToken(t *testing.T) {
	backend := apitest.NewServer()
	defer backend.Close()
	client, _, errs := newClient(t, backend.URL)

	st, _ := client.PrivateInfo(context.Background(), "")
	require.NotNil(t, st.Err)
	assert.Equal(t, "Error: 401 Unauthorized", st.ErrorMessage())
	assert.Empty(t, backend.LastAuthorization())
	msg, _ := errs.Message()
	assert.Equal(t, "Error: 401 Unauthorized", msg)
}

func TestPrivateInfoOptionsIdentity(t *testing.T) {
	url := "http://localhost:8080" + api.PrivateInfoPath
	a := fetch.Identity(url, api.PrivateInfoOptions("one", false)...)
	b := fetch.Identity(url, api.PrivateInfoOptions("two", false)...)
	none := fetch.Identity(url, api.PrivateInfoOptions("", true)...)
	assert.NotEqual(t, a, b, "a new token is a new request")
	assert.NotEqual(t, a, none)
}

func TestPrivateInfoSkipped(t *testing.T) {
	backend := apitest.NewServer()
	defer backend.Close()
	client, _, _ := newClient(t, backend.URL)

	st, _ := fetch.Do[api.PrivateInfoResponse](context.Background(), client.Fetcher(), client.PrivateInfoURL(),
		api.PrivateInfoOptions("", true)...)
	assert.False(t, st.Loading)
	assert.False(t, st.HasData)
	assert.Nil(t, st.Err)
	assert.Empty(t, backend.LastAuthorization())
}
