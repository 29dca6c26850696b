// Package storetest holds the behavioral suite every repositories.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one subtest
type Factory func(t *testing.T) repositories.Store

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Run executes the whole suite against stores produced by newStore
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateKey", func(t *testing.T) { testCreateKey(t, newStore(t)) })
	t.Run("WithKeyTxNotFound", func(t *testing.T) { testWithKeyTxNotFound(t, newStore(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollbackOnError(t, newStore(t)) })
	t.Run("Attempts", func(t *testing.T) { testAttempts(t, newStore(t)) })
	t.Run("IncrementUse", func(t *testing.T) { testIncrementUse(t, newStore(t)) })
	t.Run("Blacklist", func(t *testing.T) { testBlacklist(t, newStore(t)) })
	t.Run("ClearAttemptsAndBinding", func(t *testing.T) { testClearAttemptsAndBinding(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ListKeys", func(t *testing.T) { testListKeys(t, newStore(t)) })
	t.Run("ConcurrentIncrementRespectsCap", func(t *testing.T) { testConcurrentIncrement(t, newStore(t)) })
	t.Run("Admins", func(t *testing.T) { testAdmins(t, newStore(t)) })
}

// NewKey builds an unbound key created at baseTime plus offset
func NewKey(id string, offset time.Duration, maxUses *int, expiresAt *time.Time) *models.Key {
	return &models.Key{
		Key:       id,
		CreatedAt: baseTime.Add(offset),
		ExpiresAt: expiresAt,
		MaxUses:   maxUses,
	}
}

// IntPtr returns a pointer to n
func IntPtr(n int) *int {
	return &n
}

func mustCreate(t *testing.T, s repositories.Store, k *models.Key) {
	t.Helper()
	require.NoError(t, s.CreateKey(context.Background(), k))
}

func loadKey(t *testing.T, s repositories.Store, id string) *models.Key {
	t.Helper()
	var key *models.Key
	err := s.WithKeyTx(context.Background(), id, func(tx repositories.KeyTx) error {
		key = tx.Key().Clone()
		return nil
	})
	require.NoError(t, err)
	return key
}

func loadAttempts(t *testing.T, s repositories.Store, id string) []models.UsageAttempt {
	t.Helper()
	var attempts []models.UsageAttempt
	err := s.WithKeyTx(context.Background(), id, func(tx repositories.KeyTx) error {
		var err error
		attempts, err = tx.Attempts(context.Background())
		return err
	})
	require.NoError(t, err)
	return attempts
}

func testCreateKey(t *testing.T, s repositories.Store) {
	ctx := context.Background()
	expires := baseTime.Add(24 * time.Hour)
	mustCreate(t, s, NewKey("lk_create", 0, IntPtr(3), &expires))

	err := s.CreateKey(ctx, NewKey("lk_create", time.Second, nil, nil))
	assert.ErrorIs(t, err, repositories.ErrDuplicateKey)

	key := loadKey(t, s, "lk_create")
	assert.Equal(t, "lk_create", key.Key)
	assert.WithinDuration(t, baseTime, key.CreatedAt, time.Millisecond)
	require.NotNil(t, key.ExpiresAt)
	assert.WithinDuration(t, expires, *key.ExpiresAt, time.Millisecond)
	require.NotNil(t, key.MaxUses)
	assert.Equal(t, 3, *key.MaxUses)
	assert.Equal(t, 0, key.CurrentUses)
	assert.False(t, key.IsBound())
	assert.Nil(t, key.LastUsed)
}

func testWithKeyTxNotFound(t *testing.T, s repositories.Store) {
	called := false
	err := s.WithKeyTx(context.Background(), "lk_missing", func(tx repositories.KeyTx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, repositories.ErrKeyNotFound)
	assert.False(t, called)
}

func testRollbackOnError(t *testing.T, s repositories.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewKey("lk_rollback", 0, nil, nil))

	boom := errors.New("boom")
	err := s.WithKeyTx(ctx, "lk_rollback", func(tx repositories.KeyTx) error {
		require.NoError(t, tx.RecordAttempt(ctx, "hw", "10.0.0.1", true, baseTime))
		require.NoError(t, tx.IncrementUse(ctx, "hw", baseTime))
		_, err := tx.AddToBlacklist(ctx, "test", baseTime)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	key := loadKey(t, s, "lk_rollback")
	assert.Equal(t, 0, key.CurrentUses)
	assert.False(t, key.IsBound())
	assert.Empty(t, loadAttempts(t, s, "lk_rollback"))

	entries, err := s.ListBlacklist(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func testAttempts(t *testing.T, s repositories.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewKey("lk_attempts", 0, nil, nil))

	err := s.WithKeyTx(ctx, "lk_attempts", func(tx repositories.KeyTx) error {
		for i := 0; i < 3; i++ {
			ip := fmt.Sprintf("10.0.0.%d", i)
			if err := tx.RecordAttempt(ctx, "hw", ip, i%2 == 0, baseTime.Add(time.Duration(i)*time.Second)); err != nil {
				return err
			}
		}
		// own writes are visible inside the transaction
		attempts, err := tx.Attempts(ctx)
		require.NoError(t, err)
		assert.Len(t, attempts, 3)
		return nil
	})
	require.NoError(t, err)

	attempts := loadAttempts(t, s, "lk_attempts")
	require.Len(t, attempts, 3)
	for i, a := range attempts {
		assert.Equal(t, "lk_attempts", a.Key)
		assert.Equal(t, "hw", a.HWID)
		assert.Equal(t, fmt.Sprintf("10.0.0.%d", i), a.IP)
		assert.Equal(t, i%2 == 0, a.Success)
		assert.WithinDuration(t, baseTime.Add(time.Duration(i)*time.Second), a.AttemptedAt, time.Millisecond)
	}
	assert.Less(t, attempts[0].ID, attempts[1].ID)
	assert.Less(t, attempts[1].ID, attempts[2].ID)
}

func testIncrementUse(t *testing.T, s repositories.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewKey("lk_inc", 0, IntPtr(2), nil))

	for i := 0; i < 2; i++ {
		hwid := fmt.Sprintf("hw-%d", i)
		err := s.WithKeyTx(ctx, "lk_inc", func(tx repositories.KeyTx) error {
			return tx.IncrementUse(ctx, hwid, baseTime.Add(time.Minute))
		})
		require.NoError(t, err)
	}

	key := loadKey(t, s, "lk_inc")
	assert.Equal(t, 2, key.CurrentUses)
	assert.True(t, key.BoundTo("hw-0"), "first increment binds, later ones keep the binding")
	require.NotNil(t, key.LastUsed)
	assert.WithinDuration(t, baseTime.Add(time.Minute), *key.LastUsed, time.Millisecond)

	err := s.WithKeyTx(ctx, "lk_inc", func(tx repositories.KeyTx) error {
		err := tx.IncrementUse(ctx, "hw-0", baseTime)
		assert.ErrorIs(t, err, repositories.ErrCapReached)
		assert.Equal(t, 2, tx.Key().CurrentUses)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, loadKey(t, s, "lk_inc").CurrentUses)
}

func testBlacklist(t *testing.T, s repositories.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewKey("lk_bl", 0, nil, nil))

	err := s.WithKeyTx(ctx, "lk_bl", func(tx repositories.KeyTx) error {
		entry, err := tx.BlacklistEntry(ctx)
		require.NoError(t, err)
		assert.Nil(t, entry)

		assert.ErrorIs(t, tx.RemoveFromBlacklist(ctx), repositories.ErrBlacklistEntryNotFound)

		created, err := tx.AddToBlacklist(ctx, "first", baseTime)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = tx.AddToBlacklist(ctx, "second", baseTime.Add(time.Second))
		require.NoError(t, err)
		assert.False(t, created)
		return nil
	})
	require.NoError(t, err)

	entries, err := s.ListBlacklist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "lk_bl", entries[0].Key)
	assert.Equal(t, "first", entries[0].Reason)
	assert.WithinDuration(t, baseTime, entries[0].BlacklistedAt, time.Millisecond)

	err = s.WithKeyTx(ctx, "lk_bl", func(tx repositories.KeyTx) error {
		return tx.RemoveFromBlacklist(ctx)
	})
	require.NoError(t, err)

	entries, err = s.ListBlacklist(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func testClearAttemptsAndBinding(t *testing.T, s repositories.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewKey("lk_reset", 0, nil, nil))

	err := s.WithKeyTx(ctx, "lk_reset", func(tx repositories.KeyTx) error {
		require.NoError(t, tx.IncrementUse(ctx, "hw", baseTime))
		require.NoError(t, tx.RecordAttempt(ctx, "hw", "1.1.1.1", true, baseTime))
		return tx.RecordAttempt(ctx, "other", "1.1.1.1", false, baseTime)
	})
	require.NoError(t, err)

	var cleared int64
	err = s.WithKeyTx(ctx, "lk_reset", func(tx repositories.KeyTx) error {
		var err error
		cleared, err = tx.ClearAttempts(ctx)
		if err != nil {
			return err
		}
		return tx.ClearBinding(ctx)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), cleared)

	key := loadKey(t, s, "lk_reset")
	assert.False(t, key.IsBound())
	assert.Equal(t, 1, key.CurrentUses)
	assert.Empty(t, loadAttempts(t, s, "lk_reset"))
}

func testDelete(t *testing.T, s repositories.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewKey("lk_delete", 0, nil, nil))

	err := s.WithKeyTx(ctx, "lk_delete", func(tx repositories.KeyTx) error {
		require.NoError(t, tx.RecordAttempt(ctx, "hw", "1.1.1.1", true, baseTime))
		_, err := tx.AddToBlacklist(ctx, "gone", baseTime)
		return err
	})
	require.NoError(t, err)

	err = s.WithKeyTx(ctx, "lk_delete", func(tx repositories.KeyTx) error {
		return tx.Delete(ctx)
	})
	require.NoError(t, err)

	err = s.WithKeyTx(ctx, "lk_delete", func(tx repositories.KeyTx) error { return nil })
	assert.ErrorIs(t, err, repositories.ErrKeyNotFound)

	entries, err := s.ListBlacklist(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// the identifier can be reused without inheriting history
	mustCreate(t, s, NewKey("lk_delete", time.Hour, nil, nil))
	assert.Empty(t, loadAttempts(t, s, "lk_delete"))
}

func testListKeys(t *testing.T, s repositories.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewKey("lk_old", 0, nil, nil))
	mustCreate(t, s, NewKey("lk_new", time.Hour, nil, nil))

	err := s.WithKeyTx(ctx, "lk_old", func(tx repositories.KeyTx) error {
		_, err := tx.AddToBlacklist(ctx, "x", baseTime)
		return err
	})
	require.NoError(t, err)

	listings, err := s.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "lk_new", listings[0].Key.Key)
	assert.Equal(t, models.KeyStatusActive, listings[0].Status)
	assert.Equal(t, "lk_old", listings[1].Key.Key)
	assert.Equal(t, models.KeyStatusBlacklisted, listings[1].Status)
}

func testConcurrentIncrement(t *testing.T, s repositories.Store) {
	ctx := context.Background()
	const maxUses = 5
	const workers = 20
	mustCreate(t, s, NewKey("lk_race", 0, IntPtr(maxUses), nil))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		capped    int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithKeyTx(ctx, "lk_race", func(tx repositories.KeyTx) error {
				return tx.IncrementUse(ctx, "hw", baseTime)
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, repositories.ErrCapReached):
				capped++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, maxUses, succeeded)
	assert.Equal(t, workers-maxUses, capped)
	assert.Equal(t, maxUses, loadKey(t, s, "lk_race").CurrentUses)
}

func testAdmins(t *testing.T, s repositories.Store) {
	ctx := context.Background()
	repo := s.Admins()

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = repo.GetByUsername(ctx, "root")
	assert.ErrorIs(t, err, repositories.ErrAdminNotFound)

	admin := &models.AdminUser{
		ID:           uuid.New(),
		Username:     "root",
		PasswordHash: "$2a$10$hash",
		Role:         models.RoleAdmin,
		CreatedAt:    baseTime,
		IsActive:     true,
	}
	require.NoError(t, repo.Create(ctx, admin))

	dup := *admin
	dup.ID = uuid.New()
	assert.ErrorIs(t, repo.Create(ctx, &dup), repositories.ErrDuplicateAdmin)

	got, err := repo.GetByUsername(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, got.ID)
	assert.Equal(t, "$2a$10$hash", got.PasswordHash)
	assert.Equal(t, models.RoleAdmin, got.Role)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.LastLogin)

	require.NoError(t, repo.UpdateLastLogin(ctx, admin.ID, baseTime.Add(time.Hour)))
	got, err = repo.GetByUsername(ctx, "root")
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
	assert.WithinDuration(t, baseTime.Add(time.Hour), *got.LastLogin, time.Millisecond)

	assert.ErrorIs(t, repo.UpdateLastLogin(ctx, uuid.New(), baseTime), repositories.ErrAdminNotFound)

	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
