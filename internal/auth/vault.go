package auth

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService namespaces this app's keyring entries.
const DefaultKeyringService = "oidc-auth-demo"

// Vault keeps secrets out of the session cache.
type Vault interface {
	// Get returns "" with a nil error when nothing is stored.
	Get(key string) (string, error)
	Set(key, secret string) error
	Delete(key string) error
}

// KeyringVault stores secrets in the system keychain.
type KeyringVault struct {
	service string
}

// NewKeyringVault creates a vault under service. Empty uses
// DefaultKeyringService.
func NewKeyringVault(service string) *KeyringVault {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringVault{service: service}
}

// Available checks the keyring by writing and removing a throwaway entry.
func (v *KeyringVault) Available() bool {
	check := v.service + "::check"
	if err := keyring.Set(v.service, check, "check"); err != nil {
		return false
	}
	_ = keyring.Delete(v.service, check)
	return true
}

func (v *KeyringVault) Get(key string) (string, error) {
	secret, err := keyring.Get(v.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("keyring get %s: %w", key, err)
	}
	return secret, nil
}

func (v *KeyringVault) Set(key, secret string) error {
	if err := keyring.Set(v.service, key, secret); err != nil {
		return fmt.Errorf("keyring set %s: %w", key, err)
	}
	return nil
}

func (v *KeyringVault) Delete(key string) error {
	err := keyring.Delete(v.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %s: %w", key, err)
	}
	return nil
}
