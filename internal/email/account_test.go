package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailcore/internal/config"
	"github.com/brandon/mailcore/internal/storage"
	"github.com/brandon/mailcore/pkg/types"
)

func TestSeedAccounts(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	accounts := []config.AccountConfig{{
		Name:         "work",
		IMAPHost:     "imap.example.com",
		IMAPPort:     993,
		IMAPSecurity: "ssl",
		IMAPUsername: "me@example.com",
		IMAPPassword: "pw1",
		SMTPHost:     "smtp.example.com",
		SMTPPort:     587,
		SMTPSecurity: "starttls",
	}}

	seeded, err := SeedAccounts(ctx, store, accounts, quietLogger())
	require.NoError(t, err)
	require.Len(t, seeded, 1)

	acc, err := store.GetAccountByEmail(ctx, "me@example.com")
	require.NoError(t, err)
	srv, err := store.GetServer(ctx, acc.ServerID)
	require.NoError(t, err)
	assert.Equal(t, "imap.example.com", srv.Incoming.Host)
	assert.Equal(t, types.SecurityStartTLS, srv.Outgoing.Security)

	// Preferences survive a restart with new credentials.
	acc.UseThreading = false
	require.NoError(t, store.UpsertAccount(ctx, acc))
	require.NoError(t, store.SetFoldersOrder(ctx, acc.ID, []string{"INBOX", "Work"}))

	accounts[0].IMAPPassword = "pw2"
	_, err = SeedAccounts(ctx, store, accounts, quietLogger())
	require.NoError(t, err)

	again, err := store.GetAccountByEmail(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, again.ID)
	assert.Equal(t, "pw2", again.Password)
	assert.False(t, again.UseThreading)
	assert.Equal(t, []string{"INBOX", "Work"}, again.FoldersOrder)
}
