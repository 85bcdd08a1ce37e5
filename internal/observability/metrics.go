package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the counters of one run. A nil *Metrics discards every observation.
type Metrics struct {
	registry *prometheus.Registry

	sourceMessages    *prometheus.CounterVec
	transformAttempts *prometheus.CounterVec
	credentialBlocks  prometheus.Counter
	publishResults    *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
}

// NewMetrics registers the run collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sourceMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channelrelay_source_messages_total",
				Help: "Messages fetched from source channels.",
			},
			[]string{"channel", "outcome"},
		),
		transformAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channelrelay_transform_attempts_total",
				Help: "Calls to the text service by task and outcome.",
			},
			[]string{"task", "outcome"},
		),
		credentialBlocks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "channelrelay_credential_blocks_total",
				Help: "Credentials blocked after rate-limit or auth responses.",
			},
		),
		publishResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channelrelay_publish_results_total",
				Help: "Publish outcomes per target.",
			},
			[]string{"target", "outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "channelrelay_stage_duration_seconds",
				Help:    "Duration of pipeline stages.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
	}
	m.registry.MustRegister(m.sourceMessages, m.transformAttempts, m.credentialBlocks, m.publishResults, m.stageDuration)
	return m
}

// SourceMessages counts fetched messages; outcome is "ok" or "error".
func (m *Metrics) SourceMessages(channel, outcome string, n int) {
	if m == nil {
		return
	}
	m.sourceMessages.WithLabelValues(channel, outcome).Add(float64(n))
}

// TransformAttempt counts one call to the text service.
func (m *Metrics) TransformAttempt(task, outcome string) {
	if m == nil {
		return
	}
	m.transformAttempts.WithLabelValues(task, outcome).Inc()
}

// CredentialBlocked counts one blocked credential.
func (m *Metrics) CredentialBlocked() {
	if m == nil {
		return
	}
	m.credentialBlocks.Inc()
}

// PublishResult counts the final outcome for a target.
func (m *Metrics) PublishResult(target string, ok bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.publishResults.WithLabelValues(target, outcome).Inc()
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Push sends the collected metrics to a Pushgateway. An empty url is a no-op.
func (m *Metrics) Push(ctx context.Context, url, job, runID string) error {
	if m == nil || url == "" {
		return nil
	}
	err := push.New(url, job).
		Gatherer(m.registry).
		Grouping("run_id", runID).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
