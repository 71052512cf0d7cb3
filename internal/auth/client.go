package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"

	"oidc-auth-demo/internal/conf"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/oauth2"
)

// OIDCClient wraps OIDC provider and OAuth2 configuration
type OIDCClient struct {
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config oauth2.Config
	httpClient   *http.Client

	issuer                string
	userInfoEndpoint      string
	endSessionEndpoint    string
	postLogoutRedirectURL string
}

// providerMetadata holds discovery fields go-oidc doesn't expose directly.
type providerMetadata struct {
	UserInfoEndpoint   string `json:"userinfo_endpoint"`
	EndSessionEndpoint string `json:"end_session_endpoint"`
}

// NewOIDCClient creates a new OIDC client. A nil httpClient uses a pooled
// cleanhttp client.
func NewOIDCClient(ctx context.Context, cfg *conf.OIDC, httpClient *http.Client) (*OIDCClient, error) {
	const op = "auth.NewOIDCClient"
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
	}
	c := &OIDCClient{httpClient: httpClient}

	// Initialize OIDC provider (discovers .well-known/openid-configuration)
	provider, err := oidc.NewProvider(c.clientContext(ctx), cfg.IssuerURI)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create OIDC provider: %w", op, err)
	}

	var meta providerMetadata
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("%s: failed to read provider metadata: %w", op, err)
	}

	c.provider = provider
	c.issuer = cfg.IssuerURI
	c.userInfoEndpoint = meta.UserInfoEndpoint
	c.endSessionEndpoint = meta.EndSessionEndpoint
	c.postLogoutRedirectURL = cfg.GetPostLogoutRedirectURL()
	c.oauth2Config = oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       cfg.Scopes,
	}
	c.verifier = provider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})
	return c, nil
}

// ClientID returns the configured OAuth2 client id.
func (c *OIDCClient) ClientID() string { return c.oauth2Config.ClientID }

// Issuer returns the issuer the client was discovered from.
func (c *OIDCClient) Issuer() string { return c.issuer }

// clientContext makes both go-oidc and oauth2 use c.httpClient.
func (c *OIDCClient) clientContext(ctx context.Context) context.Context {
	ctx = oidc.ClientContext(ctx, c.httpClient)
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// GetAuthURLWithPKCE returns the OIDC authorization URL with state, nonce
// and PKCE parameters
func (c *OIDCClient) GetAuthURLWithPKCE(state, nonce, codeChallenge string) string {
	return c.oauth2Config.AuthCodeURL(state,
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCodeWithPKCE exchanges authorization code for tokens using PKCE
func (c *OIDCClient) ExchangeCodeWithPKCE(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	return c.oauth2Config.Exchange(c.clientContext(ctx), code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
}

// VerifyIDToken verifies and parses the ID token
func (c *OIDCClient) VerifyIDToken(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	return c.verifier.Verify(c.clientContext(ctx), rawIDToken)
}

// RefreshToken trades a refresh token for a fresh token set
func (c *OIDCClient) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	tokenSource := c.oauth2Config.TokenSource(c.clientContext(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
	})
	return tokenSource.Token()
}

// SupportsUserInfo reports whether discovery advertised a userinfo endpoint.
func (c *OIDCClient) SupportsUserInfo() bool { return c.userInfoEndpoint != "" }

// UserInfo loads the profile from the userinfo endpoint.
func (c *OIDCClient) UserInfo(ctx context.Context, token *oauth2.Token) (*oidc.UserInfo, error) {
	return c.provider.UserInfo(c.clientContext(ctx), oauth2.StaticTokenSource(token))
}

// EndSessionURL builds the RP-initiated logout URL. It returns "" when the
// provider has no end_session_endpoint.
func (c *OIDCClient) EndSessionURL(idTokenHint string) string {
	if c.endSessionEndpoint == "" {
		return ""
	}
	u, err := url.Parse(c.endSessionEndpoint)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("client_id", c.oauth2Config.ClientID)
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	if c.postLogoutRedirectURL != "" {
		q.Set("post_logout_redirect_uri", c.postLogoutRedirectURL)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// === PKCE Support ===

// GenerateCodeVerifier generates a random code verifier for PKCE
// Returns a base64-url-encoded random string (43 characters)
func GenerateCodeVerifier() (string, error) {
	data := make([]byte, 32)
	if _, err := rand.Read(data); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// GenerateCodeChallenge derives the S256 code challenge (RFC 7636)
func GenerateCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
