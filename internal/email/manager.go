package email

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcore/internal/credential"
	"github.com/brandon/mailcore/internal/mailerr"
	"github.com/brandon/mailcore/internal/storage"
	"github.com/brandon/mailcore/pkg/types"
)

// Options are the installation-wide switches of the Manager.
type Options struct {
	Timeouts Timeouts
	// UseSort allows SORT for listing and searching.
	UseSort bool
	// UseThreads allows THREAD for listing.
	UseThreads bool
	// UseBodyStructures answers has:attachment with a structure scan.
	UseBodyStructures bool
	// Location interprets date: search values.
	Location *time.Location
}

// Manager manages email operations
type Manager struct {
	pool    *Pool
	store   storage.Store
	creds   credential.Resolver
	sender  Sender
	folders *folderResolver
	opts    Options
	logger  *logrus.Logger
}

// NewManager creates a new email manager
func NewManager(pool *Pool, store storage.Store, creds credential.Resolver, sender Sender, opts Options, logger *logrus.Logger) *Manager {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Manager{
		pool:    pool,
		store:   store,
		creds:   creds,
		sender:  sender,
		folders: &folderResolver{store: store, logger: logger},
		opts:    opts,
		logger:  logger,
	}
}

// Account loads an account by email address
func (m *Manager) Account(ctx context.Context, email string) (*types.Account, error) {
	acc, err := m.store.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, mailerr.Wrap(mailerr.KindConfiguration, "load account", err)
	}
	return acc, nil
}

// Close releases every session
func (m *Manager) Close() {
	m.pool.Close()
}

// withSession runs fn on the account's session. Errors that leave the
// connection unusable discard the session so the next call reconnects.
func (m *Manager) withSession(ctx context.Context, acc *types.Account, op string, fn func(c Client) error) error {
	lease, err := m.pool.Acquire(ctx, acc, m.opts.Timeouts)
	if err != nil {
		return err
	}
	c := lease.Client()

	err = fn(c)
	if err == nil {
		lease.Release()
		return nil
	}
	if !c.IsConnected() || isTimeout(err) || ctx.Err() != nil {
		lease.Discard()
		m.logger.WithError(err).WithField("account", acc.Email).Warn("Discarded IMAP session")
		return mailerr.Wrap(mailerr.KindConnection, op, err)
	}
	lease.Release()
	return mailerr.Wrap(mailerr.KindProtocol, op, err)
}
