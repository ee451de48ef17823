// File: internal/observability/metrics.go
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const metricsNamespace = "webagents"

// Registry holds every collector the agents export. It is separate from the
// default registry so tests can read values without global side effects.
var Registry = prometheus.NewRegistry()

var (
	factory = promauto.With(Registry)

	parseFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "parse_failures_total",
		Help:      "LLM outputs that could not be parsed and fell back to a default.",
	}, []string{"component"})

	llmRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "llm_requests_total",
		Help:      "LLM generation requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	llmDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "llm_request_duration_seconds",
		Help:      "LLM generation latency.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"provider"})

	frontierExpansions = factory.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "frontier_expansions_total",
		Help:      "Nodes popped and expanded by the tree search.",
	})

	agentRuns = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "agent_runs_total",
		Help:      "Completed agent runs by agent and outcome.",
	}, []string{"agent", "outcome"})
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// RecordParseFailure counts one degraded parse in the named component.
func RecordParseFailure(component string) {
	parseFailures.WithLabelValues(component).Inc()
}

// RecordLLMRequest counts a generation call and observes its latency.
func RecordLLMRequest(provider string, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	llmRequests.WithLabelValues(provider, outcome).Inc()
	llmDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordFrontierExpansion counts one popped frontier node.
func RecordFrontierExpansion() {
	frontierExpansions.Inc()
}

// RecordAgentRun counts a finished run.
func RecordAgentRun(agent, outcome string) {
	agentRuns.WithLabelValues(agent, outcome).Inc()
}

// MetricsHandler exposes Registry in the Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ServeMetrics serves /metrics on addr until ctx is canceled.
func ServeMetrics(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()
}
