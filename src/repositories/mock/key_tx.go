package mock

import (
	"context"
	"time"

	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
)

// KeyTx wraps a real transaction and lets tests fail individual statements
type KeyTx struct {
	repositories.KeyTx

	RecordAttemptFunc  func(ctx context.Context, hwid, ip string, success bool, at time.Time) error
	AddToBlacklistFunc func(ctx context.Context, reason string, at time.Time) (bool, error)
	IncrementUseFunc   func(ctx context.Context, hwid string, at time.Time) error
}

func (m *KeyTx) Key() *models.Key {
	return m.KeyTx.Key()
}

func (m *KeyTx) RecordAttempt(ctx context.Context, hwid, ip string, success bool, at time.Time) error {
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, hwid, ip, success, at)
	}
	return m.KeyTx.RecordAttempt(ctx, hwid, ip, success, at)
}

func (m *KeyTx) AddToBlacklist(ctx context.Context, reason string, at time.Time) (bool, error) {
	if m.AddToBlacklistFunc != nil {
		return m.AddToBlacklistFunc(ctx, reason, at)
	}
	return m.KeyTx.AddToBlacklist(ctx, reason, at)
}

func (m *KeyTx) IncrementUse(ctx context.Context, hwid string, at time.Time) error {
	if m.IncrementUseFunc != nil {
		return m.IncrementUseFunc(ctx, hwid, at)
	}
	return m.KeyTx.IncrementUse(ctx, hwid, at)
}

// Ensure KeyTx implements the interface
var _ repositories.KeyTx = (*KeyTx)(nil)
