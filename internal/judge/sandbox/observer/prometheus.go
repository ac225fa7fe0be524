package observer

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus records sandbox and worker pool metrics into a registry.
type Prometheus struct {
	compileTotal *prometheus.CounterVec
	compileTime  *prometheus.HistogramVec
	runTotal     *prometheus.CounterVec
	runTime      *prometheus.HistogramVec
	runMemory    *prometheus.HistogramVec
	slotWait     *prometheus.HistogramVec
	slotRejected *prometheus.CounterVec
	slotsInUse   prometheus.Gauge
}

// NewPrometheus creates the collectors and registers them on reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	timeBuckets := []float64{10, 50, 100, 250, 500, 1000, 2000, 5000, 10000}
	p := &Prometheus{
		compileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "judge", Subsystem: "sandbox", Name: "compile_total",
			Help: "Compile and syntax-check steps by language and outcome.",
		}, []string{"language", "ok"}),
		compileTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "judge", Subsystem: "sandbox", Name: "compile_time_ms",
			Help: "CPU time of compile steps in milliseconds.", Buckets: timeBuckets,
		}, []string{"language"}),
		runTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "judge", Subsystem: "sandbox", Name: "run_total",
			Help: "Test case executions by language and sandbox verdict.",
		}, []string{"language", "verdict"}),
		runTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "judge", Subsystem: "sandbox", Name: "run_time_ms",
			Help: "Wall time of test case executions in milliseconds.", Buckets: timeBuckets,
		}, []string{"language"}),
		runMemory: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "judge", Subsystem: "sandbox", Name: "run_memory_kb",
			Help:    "Peak memory of test case executions in KiB.",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 10),
		}, []string{"language"}),
		slotWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "judge", Subsystem: "pool", Name: "slot_wait_seconds",
			Help: "Time spent waiting for an execution slot.", Buckets: prometheus.DefBuckets,
		}, []string{"class"}),
		slotRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "judge", Subsystem: "pool", Name: "slot_rejected_total",
			Help: "Slot requests that timed out or were cancelled.",
		}, []string{"class"}),
		slotsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "judge", Subsystem: "pool", Name: "slots_in_use",
			Help: "Execution slots currently held.",
		}),
	}
	collectors := []prometheus.Collector{
		p.compileTotal, p.compileTime, p.runTotal, p.runTime, p.runMemory,
		p.slotWait, p.slotRejected, p.slotsInUse,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) ObserveCompile(ctx context.Context, languageID string, ok bool, timeMs int64, memoryKB int64) {
	p.compileTotal.WithLabelValues(languageID, strconv.FormatBool(ok)).Inc()
	p.compileTime.WithLabelValues(languageID).Observe(float64(timeMs))
}

func (p *Prometheus) ObserveRun(ctx context.Context, languageID string, verdict string, timeMs int64, memoryKB int64, outputKB int64) {
	p.runTotal.WithLabelValues(languageID, verdict).Inc()
	p.runTime.WithLabelValues(languageID).Observe(float64(timeMs))
	p.runMemory.WithLabelValues(languageID).Observe(float64(memoryKB))
}

func (p *Prometheus) ObserveSlotWait(class string, wait time.Duration, acquired bool) {
	p.slotWait.WithLabelValues(class).Observe(wait.Seconds())
	if !acquired {
		p.slotRejected.WithLabelValues(class).Inc()
	}
}

func (p *Prometheus) SetSlotsInUse(n int) {
	p.slotsInUse.Set(float64(n))
}
