package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/khabaroff/hwid-license-server/src/logging"
	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
	"github.com/rs/zerolog"
)

// Field limits enforced before a request reaches the store
const (
	MaxKeyLength  = 128
	MaxHWIDLength = 512
)

// ValidationRequest is a single license check
type ValidationRequest struct {
	Key  string
	HWID string
	IP   string
}

// Validate checks the request at the boundary
func (r ValidationRequest) Validate() error {
	switch {
	case r.Key == "" || len(r.Key) > MaxKeyLength:
		return fmt.Errorf("%w: key must be between 1 and %d characters", ErrInvalidInput, MaxKeyLength)
	case r.HWID == "" || len(r.HWID) > MaxHWIDLength:
		return fmt.Errorf("%w: hwid must be between 1 and %d characters", ErrInvalidInput, MaxHWIDLength)
	case net.ParseIP(r.IP) == nil:
		return fmt.Errorf("%w: invalid client ip %q", ErrInvalidInput, r.IP)
	}
	return nil
}

// ValidationRecorder receives validation telemetry
type ValidationRecorder interface {
	ObserveValidation(outcome string, elapsed time.Duration)
	ObserveAutoBlacklist(reason string)
	ObserveError(kind string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveValidation(string, time.Duration) {}
func (noopRecorder) ObserveAutoBlacklist(string)             {}
func (noopRecorder) ObserveError(string)                     {}

// ValidationService decides whether a key may be used by a device and
// escalates abusive keys to the blacklist. Each call runs as one
// transaction on the key, so concurrent validations of the same key are
// serialized while different keys proceed independently.
type ValidationService struct {
	store    repositories.Store
	policy   FraudPolicy
	recorder ValidationRecorder
	now      func() time.Time
	logger   zerolog.Logger
}

// NewValidationService creates a new validation service. recorder may be nil.
func NewValidationService(store repositories.Store, policy FraudPolicy, recorder ValidationRecorder) *ValidationService {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &ValidationService{
		store:    store,
		policy:   policy,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logging.NewLogger("validation"),
	}
}

// WithClock replaces the time source (for testing)
func (s *ValidationService) WithClock(now func() time.Time) *ValidationService {
	s.now = now
	return s
}

// Policy returns the thresholds in use
func (s *ValidationService) Policy() FraudPolicy {
	return s.policy
}

// Validate runs the validation for req. The returned error is non-nil only
// for invalid input or infrastructure failures; see IsRetryable.
func (s *ValidationService) Validate(ctx context.Context, req ValidationRequest) (Outcome, error) {
	if err := req.Validate(); err != nil {
		s.recorder.ObserveError(errorKind(err))
		return Outcome{}, err
	}

	start := time.Now()

	var outcome Outcome
	var err error
	for attempt := 0; ; attempt++ {
		outcome, err = s.validateOnce(ctx, req)
		if !errors.Is(err, ErrConflict) || attempt >= s.policy.ConflictRetries {
			break
		}
		s.logger.Debug().
			Str("key", logging.MaskKey(req.Key)).
			Int("attempt", attempt+1).
			Msg("Validation conflicted, retrying")
	}

	if errors.Is(err, ErrKeyNotFound) {
		outcome, err = Outcome{Kind: OutcomeNotFound}, nil
	}

	if err != nil {
		kind := errorKind(err)
		s.recorder.ObserveError(kind)
		s.logger.Error().Err(err).
			Str("key", logging.MaskKey(req.Key)).
			Str("kind", kind).
			Msg("Validation failed")
		return Outcome{}, fmt.Errorf("validate key: %w", err)
	}

	s.recorder.ObserveValidation(string(outcome.Kind), time.Since(start))
	s.logOutcome(req, outcome)
	return outcome, nil
}

// validateOnce runs the decision and its writes in one key transaction
func (s *ValidationService) validateOnce(ctx context.Context, req ValidationRequest) (Outcome, error) {
	now := s.now()

	var outcome Outcome
	err := s.store.WithKeyTx(ctx, req.Key, func(tx repositories.KeyTx) error {
		entry, err := tx.BlacklistEntry(ctx)
		if err != nil {
			return err
		}
		if entry != nil {
			outcome = Outcome{Kind: OutcomeBlacklisted, Reason: entry.Reason}
			return nil
		}

		attempts, err := tx.Attempts(ctx)
		if err != nil {
			return err
		}
		signals := deriveSignals(attempts)
		key := tx.Key()

		if reason := s.policy.blacklistReason(key, signals, req.IP, now); reason != "" {
			outcome, err = s.autoBlacklist(ctx, tx, reason, now)
			return err
		}

		if key.IsBound() && !key.BoundTo(req.HWID) {
			if err := tx.RecordAttempt(ctx, req.HWID, req.IP, false, now); err != nil {
				return err
			}
			outcome = Outcome{
				Kind:        OutcomeHWIDMismatch,
				Attempt:     signals.failed + 1,
				MaxAttempts: s.policy.MaxFailedHWIDAttempts,
			}
			return nil
		}

		if err := tx.IncrementUse(ctx, req.HWID, now); err != nil {
			if errors.Is(err, repositories.ErrCapReached) {
				outcome, err = s.autoBlacklist(ctx, tx, models.ReasonMaxUsesExceeded, now)
				return err
			}
			return err
		}
		if err := tx.RecordAttempt(ctx, req.HWID, req.IP, true, now); err != nil {
			return err
		}

		outcome = Outcome{Kind: OutcomeAccepted, Key: tx.Key().Clone()}
		return nil
	})
	return outcome, err
}

func (s *ValidationService) autoBlacklist(ctx context.Context, tx repositories.KeyTx, reason string, now time.Time) (Outcome, error) {
	if _, err := tx.AddToBlacklist(ctx, reason, now); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeAutoBlacklisted, Reason: reason}, nil
}

func (s *ValidationService) logOutcome(req ValidationRequest, outcome Outcome) {
	switch outcome.Kind {
	case OutcomeAutoBlacklisted:
		s.recorder.ObserveAutoBlacklist(outcome.Reason)
		s.logger.Warn().
			Str("key", logging.MaskKey(req.Key)).
			Str("reason", outcome.Reason).
			Str("ip", req.IP).
			Str("hwid", req.HWID).
			Msg("Key auto-blacklisted")
	case OutcomeHWIDMismatch:
		s.logger.Info().
			Str("key", logging.MaskKey(req.Key)).
			Str("ip", req.IP).
			Int("attempt", outcome.Attempt).
			Msg("HWID mismatch")
	default:
		s.logger.Debug().
			Str("key", logging.MaskKey(req.Key)).
			Str("outcome", string(outcome.Kind)).
			Msg("Key validated")
	}
}
