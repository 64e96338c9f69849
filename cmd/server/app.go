package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcore/internal/config"
	"github.com/brandon/mailcore/internal/credential"
	"github.com/brandon/mailcore/internal/email"
	"github.com/brandon/mailcore/internal/storage"
)

// app is the wired core shared by every command.
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	store   storage.Store
	manager *email.Manager
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, errors.Wrap(err, "load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	// Logs go to stderr; stdout carries the protocol.
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	creds, err := openCredentials(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	if _, err := email.SeedAccounts(ctx, store, cfg.Accounts, logger); err != nil {
		store.Close()
		return nil, errors.Wrap(err, "seed accounts")
	}

	timeouts := email.Timeouts{Connect: cfg.ConnectTimeout, IO: cfg.IOTimeout}
	pool, err := email.NewPool(cfg.SessionPoolSize, func() email.Client {
		return email.NewIMAPClient(logger)
	}, store, creds, timeouts, logger)
	if err != nil {
		store.Close()
		return nil, errors.Wrap(err, "create session pool")
	}

	manager := email.NewManager(pool, store, creds, email.NewSMTPClient(cfg.IOTimeout, logger), email.Options{
		Timeouts:          timeouts,
		UseSort:           cfg.UseSort,
		UseThreads:        cfg.UseThreads,
		UseBodyStructures: cfg.UseBodyStructuresForHasAttachments,
		Location:          time.FixedZone("", cfg.TimezoneOffsetMinutes*60),
	}, logger)

	logger.WithFields(logrus.Fields{
		"store":    cfg.StoreDriver,
		"accounts": cfg.AccountNames(),
	}).Info("Mail core ready")

	return &app{cfg: cfg, logger: logger, store: store, manager: manager}, nil
}

// Close drops every IMAP session, then the store.
func (a *app) Close() {
	a.manager.Close()
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close store")
	}
}

func openStore(cfg *config.Config, logger *logrus.Logger) (storage.Store, error) {
	if cfg.StoreDriver == config.DriverMemory {
		return storage.NewMemoryStore(), nil
	}
	store, err := storage.NewSQLStore(cfg.StorePath, logger)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	return store, nil
}

func openCredentials(cfg *config.Config) (credential.Resolver, error) {
	if cfg.CredentialBackend != config.CredentialsKeyring {
		return credential.StoreResolver{}, nil
	}
	ring, err := credential.OpenKeyring(filepath.Join(filepath.Dir(cfg.StorePath), "keyring"))
	if err != nil {
		return nil, errors.Wrap(err, "open keyring")
	}
	return credential.NewKeyringResolver(ring), nil
}
