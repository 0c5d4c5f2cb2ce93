package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposure(t *testing.T) {
	ObserveFetch("ok", time.Now().Add(-1500*time.Millisecond))
	IncCooldown("budget")
	IncExtraction("shared_data")
	IncEvent("bio_change")
	IncCycle(true)
	IncCycle(false)
	IncProbe("live", "none")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, m := range []string{
		"igmonitor_fetches_total",
		"igmonitor_fetch_duration_seconds",
		"igmonitor_cooldowns_total",
		"igmonitor_extractions_total",
		"igmonitor_events_total",
		"igmonitor_cycles_total",
		"igmonitor_probes_total",
	} {
		assert.Contains(t, body, m)
	}
}
