package services

import (
	"sync"
	"testing"
	"time"

	"github.com/khabaroff/hwid-license-server/src/repositories"
	"github.com/khabaroff/hwid-license-server/src/repositories/memory"
	"github.com/khabaroff/hwid-license-server/src/repositories/sqlstore"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

// testBackends returns a factory per store the engine is verified against
func testBackends() map[string]func(t *testing.T) repositories.Store {
	return map[string]func(t *testing.T) repositories.Store{
		"memory": func(t *testing.T) repositories.Store {
			return memory.New(2 * time.Second)
		},
		"sqlite": func(t *testing.T) repositories.Store {
			s, err := sqlstore.OpenSQLite(":memory:", 5*time.Second)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

// forEachBackend runs fn once per store backend
func forEachBackend(t *testing.T, fn func(t *testing.T, store repositories.Store)) {
	for name, newStore := range testBackends() {
		t.Run(name, func(t *testing.T) {
			fn(t, newStore(t))
		})
	}
}

func newTestEngine(store repositories.Store, policy FraudPolicy) *ValidationService {
	return NewValidationService(store, policy, nil).WithClock(func() time.Time { return testNow })
}

func intPtr(n int) *int {
	return &n
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// recordingRecorder captures validation telemetry
type recordingRecorder struct {
	mu             sync.Mutex
	outcomes       map[string]int
	autoBlacklists map[string]int
	errors         map[string]int
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{
		outcomes:       make(map[string]int),
		autoBlacklists: make(map[string]int),
		errors:         make(map[string]int),
	}
}

func (r *recordingRecorder) ObserveValidation(outcome string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome]++
}

func (r *recordingRecorder) ObserveAutoBlacklist(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autoBlacklists[reason]++
}

func (r *recordingRecorder) ObserveError(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[kind]++
}
