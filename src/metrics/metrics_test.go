package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveValidation("accepted", 10*time.Millisecond)
	c.ObserveValidation("accepted", 20*time.Millisecond)
	c.ObserveValidation("auto_blacklisted", time.Millisecond)
	c.ObserveAutoBlacklist("IP change detected")
	c.ObserveError("lock_timeout")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.validations.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.validations.WithLabelValues("auto_blacklisted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.autoBlacklists.WithLabelValues("IP change detected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errors.WithLabelValues("lock_timeout")))

	families, err := reg.Gather()
	require.NoError(t, err)

	var histogram *dto.Histogram
	for _, f := range families {
		if f.GetName() == "license_validation_duration_seconds" {
			histogram = f.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, histogram)
	assert.Equal(t, uint64(3), histogram.GetSampleCount())
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	c := New(reg)
	c.ObserveValidation("not_found", time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `license_validations_total{outcome="not_found"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
