package services

import (
	"fmt"
	"time"

	"github.com/khabaroff/hwid-license-server/src/models"
)

// FraudPolicy holds the thresholds of the anti-sharing heuristic
type FraudPolicy struct {
	// MaxFailedHWIDAttempts is the number of fingerprint mismatches a key
	// survives; the next validation auto-blacklists it.
	MaxFailedHWIDAttempts int

	// IPTolerance is the number of distinct client IPs a key may be seen
	// from. A validation from a new IP once that many are known
	// auto-blacklists the key.
	IPTolerance int

	// ConflictRetries is how often a validation is re-run after a
	// serialization conflict before ErrConflict is returned.
	ConflictRetries int
}

// DefaultFraudPolicy returns the stock thresholds
func DefaultFraudPolicy() FraudPolicy {
	return FraudPolicy{
		MaxFailedHWIDAttempts: 3,
		IPTolerance:           1,
		ConflictRetries:       3,
	}
}

// Validate checks the thresholds are usable
func (p FraudPolicy) Validate() error {
	if p.MaxFailedHWIDAttempts < 1 {
		return fmt.Errorf("max failed HWID attempts must be at least 1, got %d", p.MaxFailedHWIDAttempts)
	}
	if p.IPTolerance < 1 {
		return fmt.Errorf("IP tolerance must be at least 1, got %d", p.IPTolerance)
	}
	if p.ConflictRetries < 0 {
		return fmt.Errorf("conflict retries must not be negative, got %d", p.ConflictRetries)
	}
	return nil
}

// usageSignals summarizes a key's attempt history
type usageSignals struct {
	hwids  map[string]struct{}
	ips    map[string]struct{}
	failed int
}

func deriveSignals(attempts []models.UsageAttempt) usageSignals {
	s := usageSignals{
		hwids: make(map[string]struct{}),
		ips:   make(map[string]struct{}),
	}
	for _, a := range attempts {
		s.hwids[a.HWID] = struct{}{}
		s.ips[a.IP] = struct{}{}
		if !a.Success {
			s.failed++
		}
	}
	return s
}

func (s usageSignals) seenIP(ip string) bool {
	_, ok := s.ips[ip]
	return ok
}

// blacklistReason applies the auto-blacklist rules in priority order and
// returns the reason of the first one that fires, or "" if none does.
func (p FraudPolicy) blacklistReason(key *models.Key, signals usageSignals, ip string, now time.Time) string {
	switch {
	case key.IsExpired(now):
		return models.ReasonKeyExpired
	case key.IsExhausted():
		return models.ReasonMaxUsesExceeded
	case len(signals.ips) >= p.IPTolerance && !signals.seenIP(ip):
		return models.ReasonIPChange
	case len(signals.hwids) > 1 && len(signals.ips) > 1:
		return models.ReasonKeySharing
	case signals.failed >= p.MaxFailedHWIDAttempts:
		return models.ReasonTooManyHWIDFails
	}
	return ""
}
