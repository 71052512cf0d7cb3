package conf

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIBaseURL  = "http://localhost:8080"
	DefaultRedirectURL = "http://localhost:5173/auth/callback"
	DefaultScopes      = "openid profile email"
	DefaultStorage     = StorageMemory
	DefaultSQLitePath  = "data/session.db"
	DefaultLogLevel    = "info"
)

// Storage backends for the session cache.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// Config is the config structure.
type Config struct {
	API     API     `yaml:"api"`
	OIDC    OIDC    `yaml:"oidc"`
	Storage Storage `yaml:"storage"`
	Log     Log     `yaml:"log"`
}

// API is the backend API config.
type API struct {
	BaseURL string `yaml:"base_url"`
}

// OIDC is the identity provider config.
type OIDC struct {
	IssuerURI             string   `yaml:"issuer_uri"`
	ClientID              string   `yaml:"client_id"`
	ClientSecret          string   `yaml:"client_secret"` // Optional: public clients rely on PKCE only
	RedirectURL           string   `yaml:"redirect_url"`
	PostLogoutRedirectURL string   `yaml:"post_logout_redirect_url"` // Optional: defaults to the redirect URL's origin
	Scopes                []string `yaml:"scopes"`
	UseKeyring            bool     `yaml:"use_keyring"`
}

// GetPostLogoutRedirectURL returns the URL the provider sends the browser
// back to after logout.
func (o *OIDC) GetPostLogoutRedirectURL() string {
	if o.PostLogoutRedirectURL != "" {
		return o.PostLogoutRedirectURL
	}
	u, err := url.Parse(o.RedirectURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Storage selects where fetched payloads and the signed-in user live.
type Storage struct {
	Type       string `yaml:"type"` // memory | sqlite
	SQLitePath string `yaml:"sqlite_path"`
	// SessionID scopes sqlite rows. Empty starts a fresh session each run.
	SessionID string `yaml:"session_id"`
}

// Log is the logging config.
type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load loads config from file. An empty path yields defaults plus env
// overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if baseURL := os.Getenv("AUTHDEMO_API_BASE_URL"); baseURL != "" {
		cfg.API.BaseURL = baseURL
	}
	if issuer := os.Getenv("OIDC_ISSUER_URI"); issuer != "" {
		cfg.OIDC.IssuerURI = issuer
	}
	if clientID := os.Getenv("OIDC_CLIENT_ID"); clientID != "" {
		cfg.OIDC.ClientID = clientID
	}
	if secret := os.Getenv("OIDC_CLIENT_SECRET"); secret != "" {
		cfg.OIDC.ClientSecret = secret
	}
	if scopes := os.Getenv("OIDC_SCOPES"); scopes != "" {
		cfg.OIDC.Scopes = strings.Fields(scopes)
	}
	if redirectURL := os.Getenv("OIDC_REDIRECT_URL"); redirectURL != "" {
		cfg.OIDC.RedirectURL = redirectURL
	}
	if sessionID := os.Getenv("AUTHDEMO_SESSION_ID"); sessionID != "" {
		cfg.Storage.SessionID = sessionID
	}
}

func applyDefaults(cfg *Config) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultAPIBaseURL
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	if cfg.OIDC.RedirectURL == "" {
		cfg.OIDC.RedirectURL = DefaultRedirectURL
	}
	if len(cfg.OIDC.Scopes) == 0 {
		cfg.OIDC.Scopes = strings.Fields(DefaultScopes)
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = DefaultStorage
	}
	if cfg.Storage.Type == StorageSQLite && cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = DefaultSQLitePath
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

// Validate reports every problem in the config at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if err := validateURL("api.base_url", c.API.BaseURL); err != nil {
		result = multierror.Append(result, err)
	}
	if c.OIDC.IssuerURI == "" {
		result = multierror.Append(result, errors.New("oidc.issuer_uri is required (or set OIDC_ISSUER_URI)"))
	} else if err := validateURL("oidc.issuer_uri", c.OIDC.IssuerURI); err != nil {
		result = multierror.Append(result, err)
	}
	if c.OIDC.ClientID == "" {
		result = multierror.Append(result, errors.New("oidc.client_id is required (or set OIDC_CLIENT_ID)"))
	}
	if err := validateURL("oidc.redirect_url", c.OIDC.RedirectURL); err != nil {
		result = multierror.Append(result, err)
	}
	if !hasScope(c.OIDC.Scopes, "openid") {
		result = multierror.Append(result, errors.New(`oidc.scopes must include "openid"`))
	}
	switch c.Storage.Type {
	case StorageMemory, StorageSQLite:
	default:
		result = multierror.Append(result, fmt.Errorf("storage.type %q is not one of %s, %s", c.Storage.Type, StorageMemory, StorageSQLite))
	}
	if hclog.LevelFromString(c.Log.Level) == hclog.NoLevel {
		result = multierror.Append(result, fmt.Errorf("log.level %q is not a valid level", c.Log.Level))
	}

	return result.ErrorOrNil()
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s %q must be an http(s) URL", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s %q has no host", field, raw)
	}
	return nil
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
