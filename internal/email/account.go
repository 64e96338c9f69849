package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcore/internal/config"
	"github.com/brandon/mailcore/internal/storage"
	"github.com/brandon/mailcore/pkg/types"
)

// SeedAccounts registers the configured accounts and their servers in the
// store. Folder order, preferences and properties of accounts that already
// exist are kept.
func SeedAccounts(ctx context.Context, store storage.Store, accounts []config.AccountConfig, logger *logrus.Logger) ([]*types.Account, error) {
	seeded := make([]*types.Account, 0, len(accounts))
	for i := range accounts {
		accCfg := &accounts[i]

		srv := accCfg.Server()
		if err := store.UpsertServer(ctx, srv); err != nil {
			return nil, fmt.Errorf("failed to save server for %s: %w", accCfg.Name, err)
		}

		acc := accCfg.Account()
		acc.ServerID = srv.ID
		existing, err := store.GetAccountByEmail(ctx, acc.Email)
		switch {
		case err == nil:
			acc.FoldersOrder = existing.FoldersOrder
			acc.UseThreading = existing.UseThreading
			acc.UseSearch = existing.UseSearch
			acc.TenantID = existing.TenantID
			acc.Properties = existing.Properties
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("failed to load account %s: %w", acc.Email, err)
		}

		if err := store.UpsertAccount(ctx, acc); err != nil {
			return nil, fmt.Errorf("failed to save account %s: %w", acc.Email, err)
		}
		logger.WithFields(logrus.Fields{
			"account": acc.Email,
			"server":  srv.Name,
		}).Info("Account registered")
		seeded = append(seeded, acc)
	}
	return seeded, nil
}
