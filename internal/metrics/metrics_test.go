package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ProcessedBlocks.Inc()
	m.DroppedLogs.Add(2)
	m.BlockProcessingDur.Observe(0.25)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProcessedBlocks))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DroppedLogs))

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP swaptracker_dropped_logs_total Logs dropped because the pending buffer was full.
# TYPE swaptracker_dropped_logs_total counter
swaptracker_dropped_logs_total 2
`), "swaptracker_dropped_logs_total")
	assert.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "swaptracker_block_processing_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.DuplicateLogs.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DuplicateLogs))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).PersistedSwaps.Add(3)

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "swaptracker_persisted_swaps_total 3")
}
