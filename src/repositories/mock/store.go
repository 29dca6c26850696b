package mock

import (
	"context"
	"sync"

	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
)

// Store is a mock implementation of repositories.Store. Unset stubs fall
// through to Delegate when one is configured, which lets tests inject
// failures in front of a working store.
type Store struct {
	WithKeyTxFunc     func(ctx context.Context, keyID string, fn func(tx repositories.KeyTx) error) error
	CreateKeyFunc     func(ctx context.Context, key *models.Key) error
	ListKeysFunc      func(ctx context.Context) ([]models.KeyListing, error)
	ListBlacklistFunc func(ctx context.Context) ([]models.BlacklistEntry, error)
	PingFunc          func(ctx context.Context) error

	Delegate  repositories.Store
	AdminRepo *AdminRepository

	mu    sync.Mutex
	Calls map[string][]interface{}
}

// NewStore creates a new mock store in front of delegate, which may be nil.
// Without a delegate, admin calls go to a fresh AdminRepository mock.
func NewStore(delegate repositories.Store) *Store {
	m := &Store{
		Delegate: delegate,
		Calls:    make(map[string][]interface{}),
	}
	if delegate == nil {
		m.AdminRepo = NewAdminRepository()
	}
	return m
}

func (m *Store) record(name string, arg interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name] = append(m.Calls[name], arg)
}

// CallCount returns how many times the named method was invoked
func (m *Store) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls[name])
}

// WithKeyTx returns ErrKeyNotFound when neither a stub nor a delegate is set
func (m *Store) WithKeyTx(ctx context.Context, keyID string, fn func(tx repositories.KeyTx) error) error {
	m.record("WithKeyTx", keyID)
	if m.WithKeyTxFunc != nil {
		return m.WithKeyTxFunc(ctx, keyID, fn)
	}
	if m.Delegate != nil {
		return m.Delegate.WithKeyTx(ctx, keyID, fn)
	}
	return repositories.ErrKeyNotFound
}

func (m *Store) CreateKey(ctx context.Context, key *models.Key) error {
	m.record("CreateKey", key)
	if m.CreateKeyFunc != nil {
		return m.CreateKeyFunc(ctx, key)
	}
	if m.Delegate != nil {
		return m.Delegate.CreateKey(ctx, key)
	}
	return nil
}

func (m *Store) ListKeys(ctx context.Context) ([]models.KeyListing, error) {
	m.record("ListKeys", nil)
	if m.ListKeysFunc != nil {
		return m.ListKeysFunc(ctx)
	}
	if m.Delegate != nil {
		return m.Delegate.ListKeys(ctx)
	}
	return []models.KeyListing{}, nil
}

func (m *Store) ListBlacklist(ctx context.Context) ([]models.BlacklistEntry, error) {
	m.record("ListBlacklist", nil)
	if m.ListBlacklistFunc != nil {
		return m.ListBlacklistFunc(ctx)
	}
	if m.Delegate != nil {
		return m.Delegate.ListBlacklist(ctx)
	}
	return []models.BlacklistEntry{}, nil
}

func (m *Store) Admins() repositories.AdminRepository {
	if m.AdminRepo == nil && m.Delegate != nil {
		return m.Delegate.Admins()
	}
	return m.AdminRepo
}

func (m *Store) Ping(ctx context.Context) error {
	m.record("Ping", nil)
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	if m.Delegate != nil {
		return m.Delegate.Ping(ctx)
	}
	return nil
}

func (m *Store) Close() error {
	if m.Delegate != nil {
		return m.Delegate.Close()
	}
	return nil
}

// Ensure Store implements the interface
var _ repositories.Store = (*Store)(nil)
