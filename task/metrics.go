package task

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the Prometheus collectors updated by a Manager. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	created  prometheus.Counter
	finished *prometheus.CounterVec
	events   *prometheus.CounterVec
	active   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "longform",
			Name:      "tasks_created_total",
			Help:      "Tasks created.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "longform",
			Name:      "tasks_finished_total",
			Help:      "Tasks that reached a terminal status, by status.",
		}, []string{"status"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "longform",
			Name:      "task_events_total",
			Help:      "Events enqueued for listeners, by event name.",
		}, []string{"event"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "longform",
			Name:      "tasks_active",
			Help:      "Tasks created and not yet terminal.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.created, m.finished, m.events, m.active)
	}
	return m
}

func (m *Metrics) taskCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
	m.active.Inc()
}

func (m *Metrics) taskFinished(s Status) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(string(s)).Inc()
	m.active.Dec()
}

func (m *Metrics) eventQueued(name EventName) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(name)).Inc()
}
