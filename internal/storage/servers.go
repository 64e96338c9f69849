package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/brandon/mailcore/pkg/types"
)

type serverRow struct {
	ID               int64  `db:"id"`
	Name             string `db:"name"`
	IncomingHost     string `db:"incoming_host"`
	IncomingPort     int    `db:"incoming_port"`
	IncomingSecurity string `db:"incoming_security"`
	OutgoingHost     string `db:"outgoing_host"`
	OutgoingPort     int    `db:"outgoing_port"`
	OutgoingSecurity string `db:"outgoing_security"`
	SMTPAuth         string `db:"smtp_auth"`
	AuthMode         string `db:"auth_mode"`
	OwnerType        string `db:"owner_type"`
	TenantID         int64  `db:"tenant_id"`
	Domains          string `db:"domains"`
	UseThreading     bool   `db:"use_threading"`
}

const serverColumns = `id, name, incoming_host, incoming_port, incoming_security,
	outgoing_host, outgoing_port, outgoing_security, smtp_auth, auth_mode,
	owner_type, tenant_id, domains, use_threading`

func (r *serverRow) toServer() (*types.Server, error) {
	srv := &types.Server{
		ID:   r.ID,
		Name: r.Name,
		Incoming: types.Endpoint{
			Host:     r.IncomingHost,
			Port:     r.IncomingPort,
			Security: types.Security(r.IncomingSecurity),
		},
		Outgoing: types.Endpoint{
			Host:     r.OutgoingHost,
			Port:     r.OutgoingPort,
			Security: types.Security(r.OutgoingSecurity),
		},
		SMTPAuth:     types.SMTPAuth(r.SMTPAuth),
		AuthMode:     types.AuthMode(r.AuthMode),
		OwnerType:    types.OwnerType(r.OwnerType),
		TenantID:     r.TenantID,
		UseThreading: r.UseThreading,
	}
	if err := json.Unmarshal([]byte(r.Domains), &srv.Domains); err != nil {
		return nil, fmt.Errorf("failed to unmarshal domains: %w", err)
	}
	return srv, nil
}

// GetServer retrieves a server by ID
func (s *SQLStore) GetServer(ctx context.Context, id int64) (*types.Server, error) {
	var row serverRow
	err := s.db.GetContext(ctx, &row, "SELECT "+serverColumns+" FROM servers WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("server %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get server: %w", err)
	}
	return row.toServer()
}

// UpsertServer upserts a server keyed by name
func (s *SQLStore) UpsertServer(ctx context.Context, srv *types.Server) error {
	domains := make([]string, 0, len(srv.Domains))
	for _, d := range srv.Domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}
	domainsJSON, err := json.Marshal(domains)
	if err != nil {
		return fmt.Errorf("failed to marshal domains: %w", err)
	}

	query := `
		INSERT INTO servers (name, incoming_host, incoming_port, incoming_security,
			outgoing_host, outgoing_port, outgoing_security, smtp_auth, auth_mode,
			owner_type, tenant_id, domains, use_threading, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			incoming_host = excluded.incoming_host,
			incoming_port = excluded.incoming_port,
			incoming_security = excluded.incoming_security,
			outgoing_host = excluded.outgoing_host,
			outgoing_port = excluded.outgoing_port,
			outgoing_security = excluded.outgoing_security,
			smtp_auth = excluded.smtp_auth,
			auth_mode = excluded.auth_mode,
			owner_type = excluded.owner_type,
			tenant_id = excluded.tenant_id,
			domains = excluded.domains,
			use_threading = excluded.use_threading,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`
	err = s.db.QueryRowxContext(ctx, query,
		srv.Name,
		srv.Incoming.Host, srv.Incoming.Port, string(srv.Incoming.Security),
		srv.Outgoing.Host, srv.Outgoing.Port, string(srv.Outgoing.Security),
		string(srv.SMTPAuth), string(srv.AuthMode),
		string(srv.OwnerType), srv.TenantID, string(domainsJSON), srv.UseThreading,
	).Scan(&srv.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert server: %w", err)
	}
	srv.Domains = domains
	return nil
}

// FindServerByDomain narrows candidates in SQL and applies the exact over
// wildcard preference in pickServer.
func (s *SQLStore) FindServerByDomain(ctx context.Context, domain string, tenantID int64) (*types.Server, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, fmt.Errorf("empty domain: %w", ErrNotFound)
	}

	var conditions []string
	var args []interface{}

	// Ownership scope
	conditions = append(conditions, "(owner_type = ? OR (owner_type = ? AND tenant_id = ?))")
	args = append(args, string(types.OwnerSuperAdmin), string(types.OwnerTenant), tenantID)

	// Domains are stored as a JSON array of lowercase names
	conditions = append(conditions, `(domains LIKE ? ESCAPE '\' OR domains LIKE ?)`)
	args = append(args, `%"`+escapeLike(domain)+`"%`, `%"*"%`)

	query := fmt.Sprintf("SELECT %s FROM servers WHERE %s ORDER BY id",
		serverColumns, strings.Join(conditions, " AND "))

	var rows []serverRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search servers: %w", err)
	}

	candidates := make([]*types.Server, 0, len(rows))
	for i := range rows {
		srv, err := rows[i].toServer()
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, srv)
	}

	if srv := pickServer(candidates, domain); srv != nil {
		return srv, nil
	}
	return nil, fmt.Errorf("server for %s: %w", domain, ErrNotFound)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
