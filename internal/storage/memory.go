package storage

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/brandon/mailcore/pkg/types"
)

// MemoryStore keeps records in process memory. It backs installations that
// run without a database and the orchestration tests.
type MemoryStore struct {
	mu            sync.RWMutex
	nextID        int64
	accounts      map[int64]*types.Account
	servers       map[int64]*types.Server
	systemFolders map[int64]map[types.FolderType]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:      make(map[int64]*types.Account),
		servers:       make(map[int64]*types.Server),
		systemFolders: make(map[int64]map[types.FolderType]string),
	}
}

func (m *MemoryStore) GetAccount(_ context.Context, id int64) (*types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return cloneAccount(acc), nil
}

func (m *MemoryStore) GetAccountByEmail(_ context.Context, email string) (*types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if acc := m.findByEmail(email); acc != nil {
		return cloneAccount(acc), nil
	}
	return nil, fmt.Errorf("account %s: %w", email, ErrNotFound)
}

func (m *MemoryStore) findByEmail(email string) *types.Account {
	email = strings.TrimSpace(email)
	for _, acc := range m.accounts {
		if strings.EqualFold(acc.Email, email) {
			return acc
		}
	}
	return nil
}

func (m *MemoryStore) UpsertAccount(_ context.Context, acc *types.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := cloneAccount(acc)
	if existing := m.findByEmail(acc.Email); existing != nil {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		m.nextID++
		stored.ID = m.nextID
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.Properties == nil {
		stored.Properties = types.Properties{}
	}
	m.accounts[stored.ID] = stored
	acc.ID = stored.ID
	return nil
}

func (m *MemoryStore) DeleteAccount(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	delete(m.accounts, id)
	delete(m.systemFolders, id)
	return nil
}

func (m *MemoryStore) GetServer(_ context.Context, id int64) (*types.Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	srv, ok := m.servers[id]
	if !ok {
		return nil, fmt.Errorf("server %d: %w", id, ErrNotFound)
	}
	return cloneServer(srv), nil
}

func (m *MemoryStore) FindServerByDomain(_ context.Context, domain string, tenantID int64) (*types.Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(m.servers))
	var candidates []*types.Server
	for _, id := range ids {
		if srv := m.servers[id]; tenantVisible(srv, tenantID) {
			candidates = append(candidates, srv)
		}
	}
	if srv := pickServer(candidates, domain); srv != nil {
		return cloneServer(srv), nil
	}
	return nil, fmt.Errorf("server for %s: %w", domain, ErrNotFound)
}

func (m *MemoryStore) UpsertServer(_ context.Context, srv *types.Server) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := cloneServer(srv)
	stored.ID = 0
	for id, existing := range m.servers {
		if existing.Name == srv.Name {
			stored.ID = id
		}
	}
	if stored.ID == 0 {
		m.nextID++
		stored.ID = m.nextID
	}
	m.servers[stored.ID] = stored
	srv.ID = stored.ID
	return nil
}

func (m *MemoryStore) GetSystemFolders(_ context.Context, accountID int64) (map[types.FolderType]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[types.FolderType]string, len(m.systemFolders[accountID]))
	maps.Copy(out, m.systemFolders[accountID])
	return out, nil
}

func (m *MemoryStore) SetSystemFolders(_ context.Context, accountID int64, folders map[types.FolderType]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.systemFolders[accountID]
	if !ok {
		current = make(map[types.FolderType]string)
		m.systemFolders[accountID] = current
	}
	for t, name := range folders {
		if t.IsSystem() && name != "" {
			current[t] = name
		}
	}
	return nil
}

func (m *MemoryStore) GetFoldersOrder(_ context.Context, accountID int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}
	return slices.Clone(acc.FoldersOrder), nil
}

func (m *MemoryStore) SetFoldersOrder(_ context.Context, accountID int64, order []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}
	acc.FoldersOrder = slices.Clone(order)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func cloneAccount(acc *types.Account) *types.Account {
	c := *acc
	c.FoldersOrder = slices.Clone(acc.FoldersOrder)
	if acc.Properties != nil {
		c.Properties = maps.Clone(acc.Properties)
	}
	return &c
}

func cloneServer(srv *types.Server) *types.Server {
	c := *srv
	c.Domains = slices.Clone(srv.Domains)
	return &c
}
