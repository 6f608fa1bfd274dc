package driver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/view"
)

// MetricsConfig configures the Prometheus metrics of a Driver.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "viewcore").
	Namespace string

	// Subsystem is the metrics subsystem (default: "driver").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for cycle duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "viewcore",
		Subsystem: "driver",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors updated by a Driver. One Metrics
// may be shared by many drivers.
type Metrics struct {
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	messages      *prometheus.CounterVec
	queueFull     prometheus.Counter
	ops           *prometheus.CounterVec
	nodeFailures  prometheus.Counter
	applyErrors   prometheus.Counter
	liveNodes     prometheus.Gauge
}

// NewMetrics registers the driver collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "cycles_total",
			Help:        "Total number of driver cycles",
			ConstLabels: config.ConstLabels,
		}),

		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "cycle_duration_seconds",
			Help:        "Duration of a driver cycle in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_total",
			Help:        "Total number of routed messages by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		queueFull: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "queue_full_total",
			Help:        "Total number of messages dropped because the queue was full",
			ConstLabels: config.ConstLabels,
		}),

		ops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "ops_total",
			Help:        "Total number of element ops applied by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		nodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "node_failures_total",
			Help:        "Total number of view nodes left as placeholders or rejected",
			ConstLabels: config.ConstLabels,
		}),

		applyErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "apply_errors_total",
			Help:        "Total number of scripts the element tree rejected",
			ConstLabels: config.ConstLabels,
		}),

		liveNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "live_nodes",
			Help:        "Number of nodes in the associated-state tree after the last cycle",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (m *Metrics) recordMessage(kind view.ResultKind, err error) {
	if m == nil {
		return
	}
	label := kind.String()
	if err != nil && kind != view.ResultStale {
		label = "error"
	}
	m.messages.WithLabelValues(label).Inc()
}

func (m *Metrics) recordQueueFull() {
	if m == nil {
		return
	}
	m.queueFull.Inc()
}

func (m *Metrics) recordCycle(seconds float64, stats view.Stats, live int) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(seconds)
	m.nodeFailures.Add(float64(stats.Failed))
	m.liveNodes.Set(float64(live))
}

func (m *Metrics) recordOps(ops []element.Op) {
	if m == nil {
		return
	}
	for kind, n := range element.Count(ops) {
		m.ops.WithLabelValues(kind.String()).Add(float64(n))
	}
}

func (m *Metrics) recordApplyError() {
	if m == nil {
		return
	}
	m.applyErrors.Inc()
}
