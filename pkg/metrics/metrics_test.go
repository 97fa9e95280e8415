package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/studykit/pkg/metrics"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestHandlerExposesCollectors(t *testing.T) {
	metrics.QuotaDecisions.WithLabelValues("documents", metrics.OutcomeDenied).Inc()
	metrics.AIRequests.WithLabelValues("summary", "ok").Inc()
	metrics.WebhookDuration.WithLabelValues("stripe").Observe(0.01)

	body := scrape(t)
	assert.Contains(t, body, `studykit_quota_decisions_total{outcome="denied",resource="documents"}`)
	assert.Contains(t, body, "studykit_ai_requests_total")
	assert.Contains(t, body, "studykit_billing_webhook_duration_seconds_bucket")
}
