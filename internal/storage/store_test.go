package storage

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailcore/pkg/types"
)

func backends(t *testing.T) map[string]Store {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	sqlStore, err := NewSQLStore(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })

	return map[string]Store{
		"sqlite": sqlStore,
		"memory": NewMemoryStore(),
	}
}

func TestAccountRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			acc := &types.Account{
				Email:        "alice@example.com",
				Password:     "secret",
				ServerID:     7,
				FoldersOrder: []string{"INBOX", "Sent"},
				UseThreading: true,
				Properties:   types.Properties{},
			}
			require.NoError(t, acc.Properties.Set(types.PropCustomMailTags, []string{"work"}))
			require.NoError(t, store.UpsertAccount(ctx, acc))
			require.NotZero(t, acc.ID)

			got, err := store.GetAccountByEmail(ctx, "ALICE@example.com")
			require.NoError(t, err)
			assert.Equal(t, acc.ID, got.ID)
			assert.Equal(t, []string{"INBOX", "Sent"}, got.FoldersOrder)
			assert.True(t, got.UseThreading)
			assert.Equal(t, []string{"work"}, got.Properties.StringList(types.PropCustomMailTags))

			// Upsert by email keeps the ID.
			firstID := acc.ID
			acc.Password = "changed"
			require.NoError(t, store.UpsertAccount(ctx, acc))
			assert.Equal(t, firstID, acc.ID)

			got, err = store.GetAccount(ctx, acc.ID)
			require.NoError(t, err)
			assert.Equal(t, "changed", got.Password)

			require.NoError(t, store.DeleteAccount(ctx, acc.ID))
			_, err = store.GetAccount(ctx, acc.ID)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, store.DeleteAccount(ctx, acc.ID), ErrNotFound)
		})
	}
}

func TestFoldersOrder(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			acc := &types.Account{Email: "bob@example.com"}
			require.NoError(t, store.UpsertAccount(ctx, acc))

			order, err := store.GetFoldersOrder(ctx, acc.ID)
			require.NoError(t, err)
			assert.Empty(t, order)

			require.NoError(t, store.SetFoldersOrder(ctx, acc.ID, []string{"INBOX", "Archive", "Trash"}))
			order, err = store.GetFoldersOrder(ctx, acc.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{"INBOX", "Archive", "Trash"}, order)

			assert.ErrorIs(t, store.SetFoldersOrder(ctx, 9999, nil), ErrNotFound)
		})
	}
}

func TestSystemFoldersReplaceOrInsert(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			acc := &types.Account{Email: "carol@example.com"}
			require.NoError(t, store.UpsertAccount(ctx, acc))

			require.NoError(t, store.SetSystemFolders(ctx, acc.ID, map[types.FolderType]string{
				types.FolderTypeInbox:  "INBOX",
				types.FolderTypeSent:   "Sent",
				types.FolderTypeCustom: "ignored",
			}))
			require.NoError(t, store.SetSystemFolders(ctx, acc.ID, map[types.FolderType]string{
				types.FolderTypeSent:  "Sent Items",
				types.FolderTypeTrash: "Trash",
			}))

			got, err := store.GetSystemFolders(ctx, acc.ID)
			require.NoError(t, err)
			assert.Equal(t, map[types.FolderType]string{
				types.FolderTypeInbox: "INBOX",
				types.FolderTypeSent:  "Sent Items",
				types.FolderTypeTrash: "Trash",
			}, got)

			empty, err := store.GetSystemFolders(ctx, acc.ID+100)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestFindServerByDomain(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			wildcard := &types.Server{Name: "catch-all", OwnerType: types.OwnerSuperAdmin, Domains: []string{"*"},
				Incoming: types.Endpoint{Host: "imap.any", Port: 993, Security: types.SecuritySSL}}
			exact := &types.Server{Name: "example", OwnerType: types.OwnerSuperAdmin, Domains: []string{"Example.com", "example.org"},
				Incoming: types.Endpoint{Host: "imap.example.com", Port: 993, Security: types.SecuritySSL}}
			tenant := &types.Server{Name: "tenant", OwnerType: types.OwnerTenant, TenantID: 5, Domains: []string{"tenant.test"}}
			private := &types.Server{Name: "private", OwnerType: types.OwnerAccount, Domains: []string{"private.test"}}
			for _, srv := range []*types.Server{wildcard, exact, tenant, private} {
				require.NoError(t, store.UpsertServer(ctx, srv))
			}

			got, err := store.FindServerByDomain(ctx, "example.com", 0)
			require.NoError(t, err)
			assert.Equal(t, exact.ID, got.ID)
			assert.Equal(t, "imap.example.com", got.Incoming.Host)

			got, err = store.FindServerByDomain(ctx, "unknown.net", 0)
			require.NoError(t, err)
			assert.Equal(t, wildcard.ID, got.ID)

			got, err = store.FindServerByDomain(ctx, "tenant.test", 5)
			require.NoError(t, err)
			assert.Equal(t, tenant.ID, got.ID)

			// Another tenant's server is invisible; the wildcard wins.
			got, err = store.FindServerByDomain(ctx, "tenant.test", 6)
			require.NoError(t, err)
			assert.Equal(t, wildcard.ID, got.ID)

			// Account-owned servers never match by domain.
			got, err = store.FindServerByDomain(ctx, "private.test", 0)
			require.NoError(t, err)
			assert.Equal(t, wildcard.ID, got.ID)

			byID, err := store.GetServer(ctx, exact.ID)
			require.NoError(t, err)
			assert.Equal(t, "example", byID.Name)
		})
	}
}

func TestFindServerByDomainNoMatch(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.UpsertServer(ctx, &types.Server{
				Name: "only", OwnerType: types.OwnerSuperAdmin, Domains: []string{"only.test"},
			}))
			_, err := store.FindServerByDomain(ctx, "other.test", 0)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}
