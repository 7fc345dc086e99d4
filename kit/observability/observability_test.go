package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	var tests = []struct {
		name        string
		opts        LoggerOptions
		expectedErr bool
	}{
		{name: "production defaults", opts: LoggerOptions{}},
		{name: "development debug", opts: LoggerOptions{Service: "svc", Development: true, Level: "debug"}},
		{name: "bad level", opts: LoggerOptions{Level: "loud"}, expectedErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			lg, err := New(tt.opts)
			if tt.expectedErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, lg)
		})
	}
}

func TestLogger_NilSafe(t *testing.T) {
	t.Parallel()

	var lg *Logger
	require.Nil(t, lg.With("k", "v"))
	lg.Debug("x")
	lg.Info("x")
	lg.Warn("x")
	lg.Error("x")
	require.NoError(t, lg.Sync())
}

func TestLogger_With(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	lg := FromZap(zap.New(core)).With("layer", "service")
	lg.Debug("hidden")
	lg.Info("shown", "external_reference", "COURSE_1")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	require.Equal(t, "service", fields["layer"])
	require.Equal(t, "COURSE_1", fields["external_reference"])
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.WebhookReceived("success")
	m.PaymentProcessed("webhook", "processed")
	m.PaymentProcessed("webhook", "processed")
	m.DuplicateSuppressed("watcher")
	m.DownstreamSync("ok")
	m.Notification("failed")
	m.WatcherChange("modified")
	m.SweepCompleted()
	m.EventPublished("payment.processed")

	require.Equal(t, 2.0, testutil.ToFloat64(m.PaymentsProcessed.WithLabelValues("webhook", "processed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ReconcileSweeps))
	require.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("payment.processed")))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "payment_reconciler_webhooks_received_total")

	var nilMetrics *Metrics
	nilMetrics.PaymentProcessed("webhook", "processed")
	nilMetrics.EventPublished("x")
}
