package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker graph metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskgrid_tasks_total",
			Help: "Total number of tasks in the worker graph by status",
		},
		[]string{"status"},
	)

	DataObjectsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskgrid_dataobjects_total",
			Help: "Total number of data objects in the worker graph by state",
		},
		[]string{"state"},
	)

	SubworkersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskgrid_subworkers_total",
			Help: "Total number of subworkers registered with this worker",
		},
	)

	// Server-side registration metrics
	WorkersRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskgrid_server_workers_registered",
			Help: "Total number of workers currently registered with the server",
		},
	)

	ClientsRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskgrid_server_clients_registered",
			Help: "Total number of clients currently registered with the server",
		},
	)

	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskgrid_bootstrap_registrations_total",
			Help: "Total number of bootstrap registration attempts by role and outcome",
		},
		[]string{"role", "outcome"},
	)

	// RPC metrics
	RPCCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskgrid_rpc_calls_total",
			Help: "Total number of outbound capability RPC calls by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	RPCCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskgrid_rpc_call_duration_seconds",
			Help:    "Capability RPC call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Scheduling / readiness metrics
	TasksAdmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskgrid_tasks_admitted_total",
			Help: "Total number of tasks admitted into the worker graph",
		},
	)

	TasksReadyTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskgrid_tasks_ready_total",
			Help: "Total number of tasks that transitioned into the ready set",
		},
	)

	PlanSchedulingInvocations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskgrid_plan_scheduling_invocations_total",
			Help: "Total number of times plan_scheduling was invoked by the worker state machine",
		},
	)
)

func init() {
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(DataObjectsTotal)
	prometheus.MustRegister(SubworkersTotal)
	prometheus.MustRegister(WorkersRegistered)
	prometheus.MustRegister(ClientsRegistered)
	prometheus.MustRegister(RegistrationsTotal)
	prometheus.MustRegister(RPCCallsTotal)
	prometheus.MustRegister(RPCCallDuration)
	prometheus.MustRegister(TasksAdmittedTotal)
	prometheus.MustRegister(TasksReadyTotal)
	prometheus.MustRegister(PlanSchedulingInvocations)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
