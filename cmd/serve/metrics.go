package main

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spetersoncode/longform/client"
	"github.com/spetersoncode/longform/model"
)

// providerMetrics counts provider calls reported on the client event channel.
type providerMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	tokens   *prometheus.CounterVec
	retries  *prometheus.CounterVec
	cost     *prometheus.CounterVec
}

func newProviderMetrics(reg prometheus.Registerer) *providerMetrics {
	m := &providerMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "longform",
			Name:      "provider_requests_total",
			Help:      "Provider requests by operation and outcome.",
		}, []string{"provider", "operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "longform",
			Name:      "provider_request_duration_seconds",
			Help:      "Provider request latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider", "operation"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "longform",
			Name:      "provider_tokens_total",
			Help:      "Tokens reported by the provider.",
		}, []string{"provider", "direction"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "longform",
			Name:      "provider_retries_total",
			Help:      "Backoff retries inside provider calls.",
		}, []string{"provider"}),
		cost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "longform",
			Name:      "provider_cost_usd_total",
			Help:      "Estimated spend at list prices.",
		}, []string{"provider", "model"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.tokens, m.retries, m.cost)
	}
	return m
}

// observe consumes client events until the channel is closed.
func (m *providerMetrics) observe(events <-chan client.Event, provider string, logger *slog.Logger) {
	for e := range events {
		p := string(e.Provider)
		switch e.Type {
		case client.EventRequestComplete:
			m.requests.WithLabelValues(p, e.Operation, "ok").Inc()
			m.duration.WithLabelValues(p, e.Operation).Observe(e.Duration.Seconds())
			m.addCost(e)
			if e.Usage != nil {
				m.tokens.WithLabelValues(p, "input").Add(float64(e.Usage.InputTokens))
				m.tokens.WithLabelValues(p, "output").Add(float64(e.Usage.OutputTokens))
			}
			logger.Debug("provider request completed", "provider", p, "operation", e.Operation, "duration_ms", e.Duration.Milliseconds())
		case client.EventRequestError:
			m.requests.WithLabelValues(p, e.Operation, "error").Inc()
			m.duration.WithLabelValues(p, e.Operation).Observe(e.Duration.Seconds())
			logger.Warn("provider request failed", "provider", p, "operation", e.Operation, "error", e.Error)
		case client.EventRetry:
			// Retry events come from inside a provider and carry no provider name.
			m.retries.WithLabelValues(provider).Inc()
			logger.Info("retrying provider call", "attempt", e.Attempt, "delay", e.Delay, "error", e.Error)
		}
	}
}

func (m *providerMetrics) addCost(e client.Event) {
	if e.Operation == "image" {
		if p, ok := model.LookupImage(e.Model); ok {
			m.cost.WithLabelValues(string(e.Provider), e.Model).Add(p.PerImage)
		}
		return
	}
	if e.Usage == nil {
		return
	}
	if cost, ok := model.ChatCost(e.Model, *e.Usage); ok {
		m.cost.WithLabelValues(string(e.Provider), e.Model).Add(cost)
	}
}
