package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ErrCorruptUser is returned when the stored user entry can't be decoded.
// The entry is removed before the error is returned.
var ErrCorruptUser = errors.New("stored user is corrupt")

// Storage is the key/value surface the user store persists through. Both
// data.SessionStorage and data.SQLiteStorage satisfy it.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// UserStore persists the signed-in user under one well-known key. When a
// Vault is set the refresh token lives there instead of in Storage.
type UserStore struct {
	storage Storage
	vault   Vault
	key     string
}

// UserKey is the storage key for a given issuer and client.
func UserKey(issuer, clientID string) string {
	return fmt.Sprintf("oidc.user:%s:%s", issuer, clientID)
}

// NewUserStore creates a store. vault may be nil.
func NewUserStore(storage Storage, issuer, clientID string, vault Vault) *UserStore {
	return &UserStore{storage: storage, vault: vault, key: UserKey(issuer, clientID)}
}

// Key returns the storage key.
func (s *UserStore) Key() string { return s.key }

// Load returns the stored user, or nil when nobody is signed in.
func (s *UserStore) Load() (*User, error) {
	raw, ok, err := s.storage.Get(s.key)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		_ = s.storage.Remove(s.key)
		return nil, fmt.Errorf("%w: %v", ErrCorruptUser, err)
	}

	if s.vault != nil && user.RefreshToken == "" {
		refresh, err := s.vault.Get(s.key)
		if err != nil {
			return nil, fmt.Errorf("load refresh token: %w", err)
		}
		user.RefreshToken = refresh
	}
	return &user, nil
}

// Save stores user, replacing any previous entry.
func (s *UserStore) Save(user *User) error {
	entry := *user
	if s.vault != nil && entry.RefreshToken != "" {
		if err := s.vault.Set(s.key, entry.RefreshToken); err != nil {
			return fmt.Errorf("save refresh token: %w", err)
		}
		entry.RefreshToken = ""
	}

	raw, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.storage.Set(s.key, string(raw)); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// Remove deletes the stored user and any vaulted refresh token.
func (s *UserStore) Remove() error {
	var result *multierror.Error
	if err := s.storage.Remove(s.key); err != nil {
		result = multierror.Append(result, fmt.Errorf("remove user: %w", err))
	}
	if s.vault != nil {
		if err := s.vault.Delete(s.key); err != nil {
			result = multierror.Append(result, fmt.Errorf("remove refresh token: %w", err))
		}
	}
	return result.ErrorOrNil()
}
