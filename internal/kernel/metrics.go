package kernel

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the kernel's Prometheus collectors. A nil *Metrics is a
// valid, silent sink.
type Metrics struct {
	// Counters
	kernelCalls *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	switches    prometheus.Counter
	ticks       prometheus.Counter
	wakeups     prometheus.Counter

	// Gauges
	readyQueue prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		kernelCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtos_kernel_calls_total",
				Help: "Kernel calls dispatched, by call kind",
			},
			[]string{"call"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtos_requests_rejected_total",
				Help: "Task requests refused with a status code",
			},
			[]string{"reason"},
		),
		switches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rtos_context_switches_total",
				Help: "Context switches to a different task",
			},
		),
		ticks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rtos_ticks_total",
				Help: "Timer ticks handled",
			},
		),
		wakeups: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rtos_wait_expirations_total",
				Help: "Wait timers that expired and woke their task",
			},
		),
		readyQueue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rtos_ready_queue_depth",
				Help: "Tasks currently in the ready queue",
			},
		),
	}

	reg.MustRegister(
		m.kernelCalls,
		m.rejected,
		m.switches,
		m.ticks,
		m.wakeups,
		m.readyQueue,
	)
	return m
}

func (m *Metrics) call(c Call) {
	if m != nil {
		m.kernelCalls.WithLabelValues(c.String()).Inc()
	}
}

func (m *Metrics) reject(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) switched() {
	if m != nil {
		m.switches.Inc()
	}
}

func (m *Metrics) tick() {
	if m != nil {
		m.ticks.Inc()
	}
}

func (m *Metrics) woke() {
	if m != nil {
		m.wakeups.Inc()
	}
}

func (m *Metrics) readyDepth(n int) {
	if m != nil {
		m.readyQueue.Set(float64(n))
	}
}
