package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailcore/internal/credential"
	"github.com/brandon/mailcore/pkg/types"
)

func useArrayKeyring(t *testing.T) *credential.KeyringResolver {
	t.Helper()
	r := credential.NewKeyringResolver(keyring.NewArrayKeyring(nil))
	prev := newSecretWriter
	newSecretWriter = func() (secretWriter, error) { return r, nil }
	t.Cleanup(func() {
		newSecretWriter = prev
		credentialsOAuth = false
	})
	return r
}

func runRoot(t *testing.T, stdin string, args ...string) error {
	t.Helper()
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	return rootCmd.ExecuteContext(context.Background())
}

func TestCredentialsSet(t *testing.T) {
	r := useArrayKeyring(t)
	ctx := context.Background()
	acc := &types.Account{Email: "user@example.com"}

	require.NoError(t, runRoot(t, "hunter2\n", "credentials", "set", " user@example.com "))
	secret, err := r.Resolve(ctx, acc)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", secret.Password)
	assert.Empty(t, secret.OAuthToken)

	require.NoError(t, runRoot(t, "ya29.token", "credentials", "set", "--oauth", "user@example.com"))
	secret, err = r.Resolve(ctx, acc)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", secret.Password)
	assert.Equal(t, "ya29.token", secret.OAuthToken)
}

func TestCredentialsDelete(t *testing.T) {
	r := useArrayKeyring(t)
	ctx := context.Background()
	acc := &types.Account{Email: "user@example.com"}

	require.NoError(t, r.SetPassword(acc.Email, "hunter2"))
	require.NoError(t, r.SetOAuthToken(acc.Email, "ya29.token"))

	require.NoError(t, runRoot(t, "", "credentials", "delete", "user@example.com"))
	_, err := r.Resolve(ctx, acc)
	assert.Error(t, err)

	// Deleting an account with nothing stored succeeds.
	require.NoError(t, runRoot(t, "", "credentials", "delete", "user@example.com"))
}

func TestCredentialsSetRejectsEmptyInput(t *testing.T) {
	r := useArrayKeyring(t)

	assert.Error(t, runRoot(t, "\n", "credentials", "set", "user@example.com"))
	assert.Error(t, runRoot(t, "pw\n", "credentials", "set", "  "))

	_, err := r.Resolve(context.Background(), &types.Account{Email: "user@example.com"})
	assert.Error(t, err)
}

func TestStoreSecret_CRLF(t *testing.T) {
	r := credential.NewKeyringResolver(keyring.NewArrayKeyring(nil))

	require.NoError(t, storeSecret(r, "user@example.com", strings.NewReader("pw\r\nignored\n"), false))
	secret, err := r.Resolve(context.Background(), &types.Account{Email: "user@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "pw", secret.Password)
}
