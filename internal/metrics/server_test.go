package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestServer_MetricsEndpoint(t *testing.T) {
	NewSchedulerMetrics().RecordTriggerChange("created")
	NewWorkerMetrics().RecordDispatch("executed", 0.5)

	srv := NewServer(Config{Port: 0}, []string{ServiceScheduler, ServiceWorker}, logrus.New())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `sip_scheduler_trigger_changes_total{operation="created"}`))
	require.True(t, strings.Contains(body, `sip_worker_dispatch_total{outcome="executed"}`))
}

func TestServer_BearerToken(t *testing.T) {
	srv := NewServer(Config{Token: "secret"}, []string{ServiceExecution}, logrus.New())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestConfig_Addr(t *testing.T) {
	require.Equal(t, "0.0.0.0:8088", DefaultConfig().Addr())
	require.Equal(t, ":9100", Config{Port: 9100}.Addr())
	require.Equal(t, "localhost:8088", Config{Host: "localhost"}.Addr())
}
