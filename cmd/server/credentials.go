package main

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/brandon/mailcore/internal/config"
	"github.com/brandon/mailcore/internal/credential"
)

var (
	credentialsOAuth bool

	// newSecretWriter is replaced in tests.
	newSecretWriter = openSecretWriter
)

// secretWriter is the write side of the keyring credential backend.
type secretWriter interface {
	SetPassword(email, password string) error
	SetOAuthToken(email, token string) error
	Delete(email string) error
}

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage account secrets held in the system keyring",
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set <email>",
	Short: "Store an account password, or an OAuth token with --oauth, read from stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newSecretWriter()
		if err != nil {
			return err
		}
		if err := storeSecret(w, args[0], cmd.InOrStdin(), credentialsOAuth); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Stored credentials for %s\n", strings.TrimSpace(args[0]))
		return nil
	},
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete <email>",
	Short: "Remove every secret stored for an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newSecretWriter()
		if err != nil {
			return err
		}
		if err := deleteSecrets(w, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Deleted credentials for %s\n", strings.TrimSpace(args[0]))
		return nil
	},
}

func init() {
	credentialsSetCmd.Flags().BoolVar(&credentialsOAuth, "oauth", false, "Store the input as an OAuth bearer token")
	credentialsCmd.AddCommand(credentialsSetCmd, credentialsDeleteCmd)
}

// openSecretWriter opens the keyring the server reads from. It needs only
// the configuration, not a store or session pool.
func openSecretWriter() (secretWriter, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, errors.Wrap(err, "load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if cfg.CredentialBackend != config.CredentialsKeyring {
		return nil, errors.Errorf("credential backend is %q, not %q", cfg.CredentialBackend, config.CredentialsKeyring)
	}
	ring, err := credential.OpenKeyring(filepath.Join(filepath.Dir(cfg.StorePath), "keyring"))
	if err != nil {
		return nil, errors.Wrap(err, "open keyring")
	}
	return credential.NewKeyringResolver(ring), nil
}

// storeSecret reads one line from in and stores it for email.
func storeSecret(w secretWriter, email string, in io.Reader, oauth bool) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email is required")
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return errors.Wrap(err, "read secret")
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return errors.New("secret is empty")
	}

	if oauth {
		return w.SetOAuthToken(email, secret)
	}
	return w.SetPassword(email, secret)
}

func deleteSecrets(w secretWriter, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email is required")
	}
	return w.Delete(email)
}
