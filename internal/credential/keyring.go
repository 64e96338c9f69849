package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/brandon/mailcore/pkg/types"
)

const serviceName = "mailcore"

// OpenKeyring returns a configured keyring instance.
func OpenKeyring(fileDir string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt("mailcore-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// KeyringResolver reads secrets from the system keyring, keyed by the
// account's email address. Account records then carry no secret.
type KeyringResolver struct {
	ring keyring.Keyring
}

// NewKeyringResolver wraps ring.
func NewKeyringResolver(ring keyring.Keyring) *KeyringResolver {
	return &KeyringResolver{ring: ring}
}

func passwordKey(email string) string { return "imap-password:" + email }
func tokenKey(email string) string    { return "imap-oauth-token:" + email }

func (r *KeyringResolver) Resolve(_ context.Context, acc *types.Account) (Secret, error) {
	var secret Secret

	item, err := r.ring.Get(passwordKey(acc.Email))
	switch {
	case err == nil:
		secret.Password = string(item.Data)
	case !errors.Is(err, keyring.ErrKeyNotFound):
		return Secret{}, fmt.Errorf("getting credential for %q: %w", acc.Email, err)
	}

	item, err = r.ring.Get(tokenKey(acc.Email))
	switch {
	case err == nil:
		secret.OAuthToken = string(item.Data)
	case !errors.Is(err, keyring.ErrKeyNotFound):
		return Secret{}, fmt.Errorf("getting token for %q: %w", acc.Email, err)
	}

	if secret.Password == "" && secret.OAuthToken == "" {
		return Secret{}, fmt.Errorf("no credentials in keyring for %s", acc.Email)
	}
	return secret, nil
}

// SetPassword stores a password for email.
func (r *KeyringResolver) SetPassword(email, password string) error {
	err := r.ring.Set(keyring.Item{
		Key:   passwordKey(email),
		Data:  []byte(password),
		Label: "mailcore IMAP password for " + email,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", email, err)
	}
	return nil
}

// SetOAuthToken stores an OAuth bearer token for email.
func (r *KeyringResolver) SetOAuthToken(email, token string) error {
	err := r.ring.Set(keyring.Item{
		Key:   tokenKey(email),
		Data:  []byte(token),
		Label: "mailcore OAuth token for " + email,
	})
	if err != nil {
		return fmt.Errorf("setting token %q: %w", email, err)
	}
	return nil
}

// Delete removes every secret stored for email.
func (r *KeyringResolver) Delete(email string) error {
	for _, key := range []string{passwordKey(email), tokenKey(email)} {
		if err := r.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("deleting credential %q: %w", key, err)
		}
	}
	return nil
}
