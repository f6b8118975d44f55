package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// TestMetrics_Counters checks counters increase per label.
func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := New()

	m.ObserveEvent("Tank1")
	m.ObserveEvent("Tank1")
	m.ObserveTransition("Tank1")
	m.ObserveSent("Tank1")
	m.ObserveSkipped("Tank1", ReasonSenderUnresolved)

	require.InDelta(t, 2, testutil.ToFloat64(m.EventsTotal.WithLabelValues("Tank1")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("Tank1")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.NotificationsSentTotal.WithLabelValues("Tank1")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(
		m.NotificationsSkippedTotal.WithLabelValues("Tank1", ReasonSenderUnresolved)), 0)
}

// TestMetrics_NilIsNoop ensures a nil *Metrics can be used safely.
func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics

	require.NotPanics(t, func() {
		m.ObserveEvent("Tank1")
		m.ObserveTransition("Tank1")
		m.ObserveSent("Tank1")
		m.ObserveSkipped("Tank1", ReasonDispatchFailed)
	})
}

// TestMetrics_Handler serves the registered counters.
func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveTransition("Tank1")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `alarm_notifier_transitions_total{alarm="Tank1"} 1`))
}
