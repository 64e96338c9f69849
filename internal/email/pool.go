package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcore/internal/credential"
	"github.com/brandon/mailcore/internal/mailerr"
	"github.com/brandon/mailcore/internal/storage"
	"github.com/brandon/mailcore/pkg/types"
)

// ClientFactory creates an unconnected protocol client.
type ClientFactory func() Client

// session is the cached protocol connection of one account. lock is a
// one-slot semaphore so waiting for it can honor a context.
type session struct {
	key      string
	client   Client
	timeouts Timeouts
	lock     chan struct{}
}

// Pool caches at most one session per account.
type Pool struct {
	mu        sync.Mutex
	sessions  *lru.Cache[string, *session]
	newClient ClientFactory
	store     storage.Store
	creds     credential.Resolver
	defaults  Timeouts
	logger    *logrus.Logger
	closing   sync.WaitGroup
}

// NewPool creates a session pool holding up to size sessions
func NewPool(size int, newClient ClientFactory, store storage.Store, creds credential.Resolver, defaults Timeouts, logger *logrus.Logger) (*Pool, error) {
	p := &Pool{
		newClient: newClient,
		store:     store,
		creds:     creds,
		defaults:  defaults,
		logger:    logger,
	}
	cache, err := lru.NewWithEvict(size, func(key string, s *session) {
		p.closing.Add(1)
		go p.closeSession(s)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	p.sessions = cache
	return p, nil
}

// Lease is exclusive use of one account's session until Release or Discard.
type Lease struct {
	pool    *Pool
	session *session
	once    sync.Once
}

// Client returns the leased session's client.
func (l *Lease) Client() Client {
	return l.session.client
}

// Release returns the session to the pool.
func (l *Lease) Release() {
	l.once.Do(func() {
		<-l.session.lock
	})
}

// Discard closes the session and evicts it, forcing a reconnect on next use.
func (l *Lease) Discard() {
	l.once.Do(func() {
		if err := l.session.client.Close(); err != nil {
			l.pool.logger.WithError(err).WithField("account", l.session.key).Debug("Failed to close discarded session")
		}
		l.pool.remove(l.session)
		<-l.session.lock
	})
}

func sessionKey(acc *types.Account) string {
	return strings.ToLower(strings.TrimSpace(acc.Email))
}

// Acquire returns the account's session, connected and logged in. A zero
// timeouts value uses the pool defaults; timeouts only apply when the
// session is created.
func (p *Pool) Acquire(ctx context.Context, acc *types.Account, timeouts Timeouts) (*Lease, error) {
	const op = "acquire session"
	if acc == nil || acc.Email == "" {
		return nil, mailerr.New(mailerr.KindInvalidArgument, op, "account email is required")
	}

	key := sessionKey(acc)
	var s *session
	for {
		s = p.get(key, timeouts.orDefault(p.defaults))
		select {
		case s.lock <- struct{}{}:
		case <-ctx.Done():
			return nil, mailerr.Wrap(mailerr.KindConnection, op, ctx.Err())
		}
		// The session may have been evicted while we waited for it.
		if p.cached(s) {
			break
		}
		<-s.lock
	}
	lease := &Lease{pool: p, session: s}

	if err := p.ensureReady(ctx, acc, s); err != nil {
		lease.Discard()
		return nil, err
	}
	return lease, nil
}

func (p *Pool) get(key string, timeouts Timeouts) *session {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions.Get(key); ok {
		return s
	}
	s := &session{
		key:      key,
		client:   p.newClient(),
		timeouts: timeouts,
		lock:     make(chan struct{}, 1),
	}
	p.sessions.Add(key, s)
	return s
}

func (p *Pool) cached(s *session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok := p.sessions.Peek(s.key)
	return ok && cur == s
}

func (p *Pool) remove(s *session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.sessions.Peek(s.key); ok && cur == s {
		p.sessions.Remove(s.key)
	}
}

// ensureReady reconnects and re-authenticates as needed
func (p *Pool) ensureReady(ctx context.Context, acc *types.Account, s *session) error {
	if !s.client.IsConnected() {
		srv, err := p.ResolveServer(ctx, acc)
		if err != nil {
			return err
		}
		if err := s.client.Connect(srv.Incoming, s.timeouts); err != nil {
			return mailerr.Wrap(mailerr.KindConnection, "connect", err)
		}
		if !s.client.IsLoggedIn() {
			if err := p.login(ctx, acc, srv, s); err != nil {
				return err
			}
		}
		p.logger.WithField("account", s.key).Info("IMAP session ready")
		return nil
	}

	if !s.client.IsLoggedIn() {
		srv, err := p.ResolveServer(ctx, acc)
		if err != nil {
			return err
		}
		return p.login(ctx, acc, srv, s)
	}
	return nil
}

func (p *Pool) login(ctx context.Context, acc *types.Account, srv *types.Server, s *session) error {
	secret, err := p.creds.Resolve(ctx, acc)
	if err != nil {
		return mailerr.Wrap(mailerr.KindAuthentication, "resolve credentials", err)
	}
	if err := s.client.Login(acc.IncomingLogin(), secret, srv.AuthMode); err != nil {
		if !s.client.IsConnected() || isTimeout(err) {
			return mailerr.Wrap(mailerr.KindConnection, "login", err)
		}
		return mailerr.Wrap(mailerr.KindAuthentication, "login", err)
	}
	return nil
}

// ResolveServer finds the account's server: its own record first, then a
// domain match visible to the account's tenant.
func (p *Pool) ResolveServer(ctx context.Context, acc *types.Account) (*types.Server, error) {
	const op = "resolve server"
	if acc.ServerID != 0 {
		srv, err := p.store.GetServer(ctx, acc.ServerID)
		if err == nil {
			return srv, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, mailerr.Wrap(mailerr.KindConfiguration, op, err)
		}
		p.logger.WithFields(logrus.Fields{
			"account":   acc.Email,
			"server_id": acc.ServerID,
		}).Warn("Account server missing, falling back to domain match")
	}

	srv, err := p.store.FindServerByDomain(ctx, acc.Domain(), acc.TenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, mailerr.New(mailerr.KindConfiguration, op, "no server for domain %q", acc.Domain())
		}
		return nil, mailerr.Wrap(mailerr.KindConfiguration, op, err)
	}
	return srv, nil
}

// Evict forgets the session of email. It is closed once any current lease
// ends.
func (p *Pool) Evict(email string) {
	key := strings.ToLower(strings.TrimSpace(email))
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions.Remove(key)
}

// Len returns the number of cached sessions.
func (p *Pool) Len() int {
	return p.sessions.Len()
}

// Close evicts every session and waits until all are logged out.
func (p *Pool) Close() {
	p.mu.Lock()
	p.sessions.Purge()
	p.mu.Unlock()
	p.closing.Wait()
}

// closeSession runs for every session leaving the cache. Discarded sessions
// are already closed and Close is idempotent.
func (p *Pool) closeSession(s *session) {
	defer p.closing.Done()
	s.lock <- struct{}{}
	defer func() { <-s.lock }()

	if err := s.client.Close(); err != nil {
		p.logger.WithError(err).WithField("account", s.key).Debug("Failed to close session")
	}
	p.logger.WithField("account", s.key).Debug("Closed IMAP session")
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
