package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/alarm-notifier/internal/logger"
)

// Reasons a triggered notification was not dispatched.
const (
	ReasonRecipientUnresolved = "recipient_unresolved"
	ReasonSenderUnresolved    = "sender_unresolved"
	ReasonDispatchFailed      = "dispatch_failed"
)

// readHeaderTimeout bounds the time to read request headers on the metrics endpoint.
const readHeaderTimeout = 5 * time.Second

// Metrics groups the notifier counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// registry holds every collector below.
	registry *prometheus.Registry

	// EventsTotal counts events received per alarm.
	EventsTotal *prometheus.CounterVec
	// TransitionsTotal counts inactive to active transitions per alarm.
	TransitionsTotal *prometheus.CounterVec
	// NotificationsSentTotal counts notifications handed to a sender per alarm.
	NotificationsSentTotal *prometheus.CounterVec
	// NotificationsSkippedTotal counts triggered notifications that were not sent.
	NotificationsSkippedTotal *prometheus.CounterVec
}

// New creates the counters on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alarm_notifier_events_total",
				Help: "Total number of alarm state-change events received",
			},
			[]string{"alarm"},
		),
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alarm_notifier_transitions_total",
				Help: "Total number of inactive to active alarm transitions",
			},
			[]string{"alarm"},
		),
		NotificationsSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alarm_notifier_notifications_sent_total",
				Help: "Total number of notifications handed to a sender",
			},
			[]string{"alarm"},
		),
		NotificationsSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alarm_notifier_notifications_skipped_total",
				Help: "Total number of triggered notifications that were not sent",
			},
			[]string{"alarm", "reason"},
		),
	}
}

// ObserveEvent records a received event.
func (m *Metrics) ObserveEvent(alarm string) {
	if m == nil {
		return
	}

	m.EventsTotal.WithLabelValues(alarm).Inc()
}

// ObserveTransition records an inactive to active transition.
func (m *Metrics) ObserveTransition(alarm string) {
	if m == nil {
		return
	}

	m.TransitionsTotal.WithLabelValues(alarm).Inc()
}

// ObserveSent records a dispatched notification.
func (m *Metrics) ObserveSent(alarm string) {
	if m == nil {
		return
	}

	m.NotificationsSentTotal.WithLabelValues(alarm).Inc()
}

// ObserveSkipped records a notification that was not dispatched.
func (m *Metrics) ObserveSkipped(alarm, reason string) {
	if m == nil {
		return
	}

	m.NotificationsSkippedTotal.WithLabelValues(alarm, reason).Inc()
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on address until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readHeaderTimeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	logger.InfoKV(ctx, "Metrics endpoint listening", "metrics_address", lis.Addr().String())

	if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}

	return nil
}
