package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAPIRequest("bills", 200, time.Second)
		m.ItemProcessed("bills", true)
		m.RecordWritten("bill")
		m.ReferenceLookup("committee", "missing")
		m.SetCircuitState("bills", 1)
	})
}

func TestRecordingAndScrape(t *testing.T) {
	m := New()
	m.ItemProcessed("bills", true)
	m.ItemProcessed("bills", false)
	m.ItemProcessed("bills", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ItemsProcessedTotal.WithLabelValues("bills", "failure")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "import_items_processed_total"))
}

func TestNewTwiceDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
