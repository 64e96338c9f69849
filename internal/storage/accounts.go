package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brandon/mailcore/pkg/types"
)

type accountRow struct {
	ID           int64  `db:"id"`
	Email        string `db:"email"`
	Login        string `db:"login"`
	Password     string `db:"password"`
	OAuthToken   string `db:"oauth_token"`
	ServerID     int64  `db:"server_id"`
	TenantID     int64  `db:"tenant_id"`
	FoldersOrder string `db:"folders_order"`
	UseThreading bool   `db:"use_threading"`
	UseSearch    bool   `db:"use_search"`
	Properties   string `db:"properties"`
	CreatedAt    string `db:"created_at"`
}

const accountColumns = `id, email, login, password, oauth_token, server_id,
	tenant_id, folders_order, use_threading, use_search, properties, created_at`

func (r *accountRow) toAccount() (*types.Account, error) {
	acc := &types.Account{
		ID:           r.ID,
		Email:        r.Email,
		Login:        r.Login,
		Password:     r.Password,
		OAuthToken:   r.OAuthToken,
		ServerID:     r.ServerID,
		TenantID:     r.TenantID,
		UseThreading: r.UseThreading,
		UseSearch:    r.UseSearch,
	}
	if err := json.Unmarshal([]byte(r.FoldersOrder), &acc.FoldersOrder); err != nil {
		return nil, fmt.Errorf("failed to unmarshal folders order: %w", err)
	}
	props, err := types.UnmarshalProperties([]byte(r.Properties))
	if err != nil {
		return nil, err
	}
	acc.Properties = props

	// Parse date
	acc.CreatedAt, err = time.Parse("2006-01-02 15:04:05", r.CreatedAt)
	if err != nil {
		acc.CreatedAt, _ = time.Parse(time.RFC3339, r.CreatedAt)
	}
	return acc, nil
}

// GetAccount retrieves an account by ID
func (s *SQLStore) GetAccount(ctx context.Context, id int64) (*types.Account, error) {
	return s.getAccount(ctx, "id = ?", id)
}

// GetAccountByEmail retrieves an account by its email address
func (s *SQLStore) GetAccountByEmail(ctx context.Context, email string) (*types.Account, error) {
	return s.getAccount(ctx, "email = ? COLLATE NOCASE", strings.TrimSpace(email))
}

func (s *SQLStore) getAccount(ctx context.Context, where string, arg any) (*types.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, "SELECT "+accountColumns+" FROM accounts WHERE "+where, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %v: %w", arg, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return row.toAccount()
}

// UpsertAccount upserts an account keyed by email
func (s *SQLStore) UpsertAccount(ctx context.Context, acc *types.Account) error {
	order, err := json.Marshal(nonNil(acc.FoldersOrder))
	if err != nil {
		return fmt.Errorf("failed to marshal folders order: %w", err)
	}
	props := acc.Properties
	if props == nil {
		props = types.Properties{}
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}

	query := `
		INSERT INTO accounts (email, login, password, oauth_token, server_id, tenant_id, folders_order, use_threading, use_search, properties, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(email) DO UPDATE SET
			login = excluded.login,
			password = excluded.password,
			oauth_token = excluded.oauth_token,
			server_id = excluded.server_id,
			tenant_id = excluded.tenant_id,
			folders_order = excluded.folders_order,
			use_threading = excluded.use_threading,
			use_search = excluded.use_search,
			properties = excluded.properties,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`
	err = s.db.QueryRowxContext(ctx, query,
		acc.Email, acc.Login, acc.Password, acc.OAuthToken, acc.ServerID, acc.TenantID,
		string(order), acc.UseThreading, acc.UseSearch, string(propsJSON),
	).Scan(&acc.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// DeleteAccount removes an account and its system folder rows
func (s *SQLStore) DeleteAccount(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return requireAffected(res, "account", id)
}

type systemFolderRow struct {
	FullName string `db:"folder_full_name"`
	Type     string `db:"type"`
}

// GetSystemFolders returns the persisted type to raw name mapping
func (s *SQLStore) GetSystemFolders(ctx context.Context, accountID int64) (map[types.FolderType]string, error) {
	var rows []systemFolderRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT folder_full_name, type FROM system_folders WHERE account_id = ? ORDER BY id", accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query system folders: %w", err)
	}

	folders := make(map[types.FolderType]string, len(rows))
	for _, row := range rows {
		t, err := types.ParseFolderType(row.Type)
		if err != nil || !t.IsSystem() {
			s.logger.WithField("type", row.Type).Warn("Skipping unknown system folder type")
			continue
		}
		folders[t] = row.FullName
	}
	return folders, nil
}

// SetSystemFolders replaces or inserts one row per type
func (s *SQLStore) SetSystemFolders(ctx context.Context, accountID int64, folders map[types.FolderType]string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO system_folders (account_id, folder_full_name, type)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id, type) DO UPDATE SET
			folder_full_name = excluded.folder_full_name
	`
	for t, name := range folders {
		if !t.IsSystem() || name == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, query, accountID, name, t.String()); err != nil {
			return fmt.Errorf("failed to upsert system folder %s: %w", t, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit system folders: %w", err)
	}
	return nil
}

// GetFoldersOrder returns the persisted display order
func (s *SQLStore) GetFoldersOrder(ctx context.Context, accountID int64) ([]string, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, "SELECT folders_order FROM accounts WHERE id = ?", accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %d: %w", accountID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get folders order: %w", err)
	}

	var order []string
	if err := json.Unmarshal([]byte(raw), &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal folders order: %w", err)
	}
	return order, nil
}

// SetFoldersOrder persists the display order
func (s *SQLStore) SetFoldersOrder(ctx context.Context, accountID int64, order []string) error {
	data, err := json.Marshal(nonNil(order))
	if err != nil {
		return fmt.Errorf("failed to marshal folders order: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET folders_order = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		string(data), accountID)
	if err != nil {
		return fmt.Errorf("failed to update folders order: %w", err)
	}
	return requireAffected(res, "account", accountID)
}

func requireAffected(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
