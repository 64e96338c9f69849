// Package storage persists the records the mail core reads and writes:
// accounts, servers, system folder mappings and folder display order.
package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/brandon/mailcore/pkg/types"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence contract shared by the SQL and in-memory
// backends.
type Store interface {
	GetAccount(ctx context.Context, id int64) (*types.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*types.Account, error)
	// UpsertAccount inserts or updates by email and sets acc.ID.
	UpsertAccount(ctx context.Context, acc *types.Account) error
	DeleteAccount(ctx context.Context, id int64) error

	GetServer(ctx context.Context, id int64) (*types.Server, error)
	// FindServerByDomain returns the server serving domain for the tenant,
	// preferring an exact domain match over a "*" wildcard.
	FindServerByDomain(ctx context.Context, domain string, tenantID int64) (*types.Server, error)
	UpsertServer(ctx context.Context, srv *types.Server) error

	GetSystemFolders(ctx context.Context, accountID int64) (map[types.FolderType]string, error)
	// SetSystemFolders replaces or inserts one row per type.
	SetSystemFolders(ctx context.Context, accountID int64, folders map[types.FolderType]string) error

	GetFoldersOrder(ctx context.Context, accountID int64) ([]string, error)
	SetFoldersOrder(ctx context.Context, accountID int64, order []string) error

	Close() error
}

// pickServer applies the domain preference to a candidate list.
func pickServer(candidates []*types.Server, domain string) *types.Server {
	domain = strings.ToLower(strings.TrimSpace(domain))
	var wildcard *types.Server
	for _, srv := range candidates {
		for _, d := range srv.Domains {
			d = strings.ToLower(strings.TrimSpace(d))
			switch {
			case d == domain:
				return srv
			case d == "*" && wildcard == nil:
				wildcard = srv
			}
		}
	}
	return wildcard
}

// tenantVisible reports whether srv may serve accounts of tenantID.
func tenantVisible(srv *types.Server, tenantID int64) bool {
	switch srv.OwnerType {
	case types.OwnerSuperAdmin:
		return true
	case types.OwnerTenant:
		return srv.TenantID == tenantID
	}
	return false
}
