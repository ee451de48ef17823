package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordParseFailure(t *testing.T) {
	before := testutil.ToFloat64(parseFailures.WithLabelValues("metrics_test"))
	RecordParseFailure("metrics_test")
	RecordParseFailure("metrics_test")
	assert.Equal(t, before+2, testutil.ToFloat64(parseFailures.WithLabelValues("metrics_test")))
}

func TestRecordLLMRequestOutcome(t *testing.T) {
	before := testutil.ToFloat64(llmRequests.WithLabelValues("metrics_test", "error"))
	RecordLLMRequest("metrics_test", assert.AnError, 0)
	assert.Equal(t, before+1, testutil.ToFloat64(llmRequests.WithLabelValues("metrics_test", "error")))
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	RecordFrontierExpansion()
	RecordAgentRun("treesearch", "succeeded")

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "webagents_frontier_expansions_total")
	assert.Contains(t, body, `webagents_agent_runs_total{agent="treesearch",outcome="succeeded"}`)
}
