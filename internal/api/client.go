package api

import (
	"context"
	"strings"

	"oidc-auth-demo/internal/auth"
	"oidc-auth-demo/internal/fetch"
)

// Backend paths.
const (
	HealthPath      = "/api/v1/public/health"
	PrivateInfoPath = "/api/v1/private/info"
)

// Cache keys for the two tiles.
const (
	HealthCacheKey      = "health-cache"
	PrivateInfoCacheKey = "private-info-cache"
)

// Client knows where the backend lives and how each endpoint is fetched.
type Client struct {
	baseURL string
	fetcher *fetch.Fetcher
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, fetcher *fetch.Fetcher) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), fetcher: fetcher}
}

// Fetcher returns the fetcher requests go through.
func (c *Client) Fetcher() *fetch.Fetcher { return c.fetcher }

// HealthURL is the absolute public health URL.
func (c *Client) HealthURL() string { return c.baseURL + HealthPath }

// PrivateInfoURL is the absolute private info URL.
func (c *Client) PrivateInfoURL() string { return c.baseURL + PrivateInfoPath }

// HealthOptions are the request options of the public tile.
func HealthOptions() []fetch.Option {
	return []fetch.Option{fetch.WithCacheKey(HealthCacheKey)}
}

// PrivateInfoOptions are the request options of the private tile. The
// bearer header is only added when a token is present.
func PrivateInfoOptions(accessToken string, skip bool) []fetch.Option {
	opts := []fetch.Option{
		fetch.WithCacheKey(PrivateInfoCacheKey),
		fetch.WithSkip(skip),
	}
	if v := auth.BearerValue(accessToken); v != "" {
		opts = append(opts, fetch.WithHeader("Authorization", v))
	}
	return opts
}

// Health fetches the public health status.
func (c *Client) Health(ctx context.Context) (fetch.State[HealthResponse], bool) {
	return fetch.Do[HealthResponse](ctx, c.fetcher, c.HealthURL(), HealthOptions()...)
}

// PrivateInfo fetches the protected info with the given access token.
func (c *Client) PrivateInfo(ctx context.Context, accessToken string) (fetch.State[PrivateInfoResponse], bool) {
	return fetch.Do[PrivateInfoResponse](ctx, c.fetcher, c.PrivateInfoURL(), PrivateInfoOptions(accessToken, false)...)
}
