package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
	"golang.org/x/sync/semaphore"
)

// DefaultLockTimeout bounds how long WithKeyTx waits for a busy key
const DefaultLockTimeout = 5 * time.Second

// Store is an in-process implementation of repositories.Store.
// Each key id has its own weighted semaphore, so transactions on different
// keys never contend; writes are staged on the transaction and applied
// atomically on commit.
type Store struct {
	mu            sync.RWMutex
	keys          map[string]*models.Key
	attempts      map[string][]models.UsageAttempt
	blacklist     map[string]models.BlacklistEntry
	admins        map[string]*models.AdminUser
	nextAttemptID int64

	locksMu     sync.Mutex
	locks       map[string]*keyLock
	lockTimeout time.Duration
}

// keyLock is a per-key semaphore shared by the transactions waiting on
// or holding it; it is dropped when the last of them releases
type keyLock struct {
	sem  *semaphore.Weighted
	refs int
}

// New creates an empty memory store
func New(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Store{
		keys:        make(map[string]*models.Key),
		attempts:    make(map[string][]models.UsageAttempt),
		blacklist:   make(map[string]models.BlacklistEntry),
		admins:      make(map[string]*models.AdminUser),
		locks:       make(map[string]*keyLock),
		lockTimeout: lockTimeout,
	}
}

// lockFor returns the lock guarding keyID with a reference taken; every
// call must be paired with unlockFor
func (s *Store) lockFor(keyID string) *semaphore.Weighted {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[keyID]
	if !ok {
		l = &keyLock{sem: semaphore.NewWeighted(1)}
		s.locks[keyID] = l
	}
	l.refs++
	return l.sem
}

// unlockFor drops the reference taken by lockFor
func (s *Store) unlockFor(keyID string) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[keyID]
	if !ok {
		return
	}
	l.refs--
	if l.refs <= 0 {
		delete(s.locks, keyID)
	}
}

// WithKeyTx implements repositories.Store
func (s *Store) WithKeyTx(ctx context.Context, keyID string, fn func(tx repositories.KeyTx) error) error {
	sem := s.lockFor(keyID)
	defer s.unlockFor(keyID)

	acquireCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	err := sem.Acquire(acquireCtx, 1)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return repositories.ErrLockTimeout
	}
	defer sem.Release(1)

	s.mu.RLock()
	key, ok := s.keys[keyID]
	if ok {
		key = key.Clone()
	}
	s.mu.RUnlock()

	if !ok {
		return repositories.ErrKeyNotFound
	}

	tx := &keyTx{store: s, key: key}
	if err := fn(tx); err != nil {
		return err
	}

	s.commit(tx)
	return nil
}

// commit applies the staged writes of tx
func (s *Store) commit(tx *keyTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := tx.key.Key
	if tx.deleted {
		delete(s.keys, id)
		delete(s.attempts, id)
		delete(s.blacklist, id)
		return
	}

	s.keys[id] = tx.key.Clone()

	if tx.attemptsCleared {
		delete(s.attempts, id)
	}
	for _, a := range tx.newAttempts {
		s.nextAttemptID++
		a.ID = s.nextAttemptID
		s.attempts[id] = append(s.attempts[id], a)
	}

	if tx.blacklistRemoved {
		delete(s.blacklist, id)
	}
	if tx.blacklistAdded != nil {
		s.blacklist[id] = *tx.blacklistAdded
	}
}

// CreateKey implements repositories.Store
func (s *Store) CreateKey(ctx context.Context, key *models.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[key.Key]; exists {
		return repositories.ErrDuplicateKey
	}
	s.keys[key.Key] = key.Clone()
	return nil
}

// ListKeys implements repositories.Store
func (s *Store) ListKeys(ctx context.Context) ([]models.KeyListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listings := make([]models.KeyListing, 0, len(s.keys))
	for id, k := range s.keys {
		status := models.KeyStatusActive
		if _, ok := s.blacklist[id]; ok {
			status = models.KeyStatusBlacklisted
		}
		listings = append(listings, models.KeyListing{Key: *k.Clone(), Status: status})
	}

	sort.Slice(listings, func(i, j int) bool {
		if listings[i].CreatedAt.Equal(listings[j].CreatedAt) {
			return listings[i].Key.Key < listings[j].Key.Key
		}
		return listings[i].CreatedAt.After(listings[j].CreatedAt)
	})
	return listings, nil
}

// ListBlacklist implements repositories.Store
func (s *Store) ListBlacklist(ctx context.Context) ([]models.BlacklistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]models.BlacklistEntry, 0, len(s.blacklist))
	for _, e := range s.blacklist {
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].BlacklistedAt.Equal(entries[j].BlacklistedAt) {
			return entries[i].Key < entries[j].Key
		}
		return entries[i].BlacklistedAt.Before(entries[j].BlacklistedAt)
	})
	return entries, nil
}

// Admins implements repositories.Store
func (s *Store) Admins() repositories.AdminRepository {
	return &adminRepository{store: s}
}

// Ping implements repositories.Store
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close implements repositories.Store
func (s *Store) Close() error {
	return nil
}

var _ repositories.Store = (*Store)(nil)
