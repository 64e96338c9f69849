package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailcore/pkg/types"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 60*time.Second, cfg.IOTimeout)
	assert.Equal(t, 64, cfg.SessionPoolSize)
	assert.True(t, cfg.UseSort)
	assert.True(t, cfg.UseThreads)
	assert.False(t, cfg.UseBodyStructuresForHasAttachments)
	assert.Empty(t, cfg.Accounts)
	assert.NoError(t, cfg.Validate())
}

func TestLoadSingleAccount(t *testing.T) {
	t.Setenv("IMAP_HOST", "imap.example.com")
	t.Setenv("IMAP_USERNAME", "alice@example.com")
	t.Setenv("IMAP_PASSWORD", "secret")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "465")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Accounts, 1)

	acc := cfg.Accounts[0]
	assert.Equal(t, "default", acc.Name)
	assert.Equal(t, 993, acc.IMAPPort)
	assert.Equal(t, "ssl", acc.IMAPSecurity)
	assert.Equal(t, "ssl", acc.SMTPSecurity)
	assert.Equal(t, "alice@example.com", acc.SMTPUsername)
	assert.Equal(t, "secret", acc.SMTPPassword)
	require.NoError(t, cfg.Validate())

	srv := acc.Server()
	assert.Equal(t, types.SecuritySSL, srv.Incoming.Security)
	assert.Equal(t, "smtp.example.com", srv.Outgoing.Host)

	account := acc.Account()
	assert.Equal(t, "alice@example.com", account.Email)
	assert.Equal(t, "alice@example.com", account.IncomingLogin())
}

func TestLoadMultipleAccounts(t *testing.T) {
	t.Setenv("ACCOUNT_1_NAME", "work")
	t.Setenv("ACCOUNT_1_IMAP_HOST", "imap.work.test")
	t.Setenv("ACCOUNT_1_IMAP_USERNAME", "me@work.test")
	t.Setenv("ACCOUNT_1_SMTP_HOST", "smtp.work.test")
	t.Setenv("ACCOUNT_2_NAME", "home")
	t.Setenv("ACCOUNT_2_IMAP_HOST", "imap.home.test")
	t.Setenv("ACCOUNT_2_IMAP_PORT", "143")
	t.Setenv("ACCOUNT_2_IMAP_USERNAME", "me@home.test")
	t.Setenv("ACCOUNT_2_SMTP_HOST", "smtp.home.test")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"work", "home"}, cfg.AccountNames())

	home, err := cfg.GetAccountByName("home")
	require.NoError(t, err)
	assert.Equal(t, 143, home.IMAPPort)
	assert.Equal(t, "starttls", home.IMAPSecurity)

	_, err = cfg.GetAccountByName("missing")
	assert.Error(t, err)
}

func TestLoadAccountMissingHost(t *testing.T) {
	t.Setenv("ACCOUNT_1_NAME", "broken")
	t.Setenv("ACCOUNT_1_IMAP_USERNAME", "me@example.com")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.StoreDriver = "postgres" }},
		{"empty sqlite path", func(c *Config) { c.StorePath = "" }},
		{"unknown credential backend", func(c *Config) { c.CredentialBackend = "vault" }},
		{"zero pool", func(c *Config) { c.SessionPoolSize = 0 }},
		{"negative timeout", func(c *Config) { c.IOTimeout = -time.Second }},
		{"bad security", func(c *Config) {
			c.Accounts = []AccountConfig{{Name: "x", IMAPPort: 993, SMTPPort: 25, IMAPSecurity: "tls", SMTPSecurity: "none"}}
		}},
		{"bad port", func(c *Config) {
			c.Accounts = []AccountConfig{{Name: "x", IMAPPort: 0, SMTPPort: 25, IMAPSecurity: "ssl", SMTPSecurity: "none"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			require.NoError(t, err)
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
