package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks vision commands, emitted events, validation failures,
// outbound deliveries and the latest computed vision health.
type Metrics struct {
	registry *prometheus.Registry

	Commands           *prometheus.CounterVec
	CommandDuration    *prometheus.HistogramVec
	EventsRecorded     *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	EventsPublished    *prometheus.CounterVec
	VisionHealth       *prometheus.GaugeVec
}

// New registers all metrics on a private registry so several engines can
// coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "visionline_commands_total",
			Help: "Vision commands by operation and outcome",
		}, []string{"op", "outcome"}),
		CommandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "visionline_command_duration_seconds",
			Help:    "Duration of vision commands including persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"op"}),
		EventsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "visionline_events_recorded_total",
			Help: "Domain events appended to the event log",
		}, []string{"type"}),
		ValidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "visionline_validation_failures_total",
			Help: "Rejected vision admissions by entity kind",
		}, []string{"entity_kind"}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "visionline_events_published_total",
			Help: "Outbound event deliveries by publisher and outcome",
		}, []string{"publisher", "outcome"}),
		VisionHealth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "visionline_vision_health",
			Help: "Last computed vision health per project and component",
		}, []string{"project_id", "component"}),
	}
}

// ObserveCommand records one command. Call with time.Now() taken before it ran.
func (m *Metrics) ObserveCommand(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Commands.WithLabelValues(op, outcome).Inc()
	m.CommandDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncEvent(evtType string) {
	if m == nil {
		return
	}
	m.EventsRecorded.WithLabelValues(evtType).Inc()
}

func (m *Metrics) IncValidationFailure(entityKind string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(entityKind).Inc()
}

func (m *Metrics) IncPublished(publisher string, err error) {
	if m == nil {
		return
	}
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	m.EventsPublished.WithLabelValues(publisher, outcome).Inc()
}

// SetHealth publishes every component of a health map.
func (m *Metrics) SetHealth(projectID string, health map[string]float64) {
	if m == nil {
		return
	}
	for component, v := range health {
		m.VisionHealth.WithLabelValues(projectID, component).Set(v)
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
