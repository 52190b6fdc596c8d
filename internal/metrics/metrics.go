package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
)

const namespace = "opd"

// Allocation exports allocation engine activity to Prometheus.
type Allocation struct {
	requests      *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	bumps         prometheus.Counter
	cancellations prometheus.Counter
	cascadeSteps  prometheus.Histogram
	lockWait      prometheus.Histogram
}

// NewAllocation creates the collectors and registers them with reg.
func NewAllocation(reg prometheus.Registerer) (*Allocation, error) {
	m := &Allocation{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_requests_total",
			Help:      "Token requests accepted for allocation, by source.",
		}, []string{"source"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_outcomes_total",
			Help:      "Final state of requested tokens.",
		}, []string{"outcome"}),
		bumps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_bumps_total",
			Help:      "Occupants evicted by a more urgent token.",
		}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_cancellations_total",
			Help:      "Tokens cancelled.",
		}),
		cascadeSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cascade_steps",
			Help:      "Admission attempts made by one token request.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16, 24},
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_lock_wait_seconds",
			Help:      "Time spent waiting for a provider lock.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}

	collectors := []prometheus.Collector{
		m.requests, m.outcomes, m.bumps, m.cancellations, m.cascadeSteps, m.lockWait,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Allocation) TokenRequested(source allocation.Source) {
	m.requests.WithLabelValues(string(source)).Inc()
}

func (m *Allocation) CascadeFinished(steps []allocation.Step, final *allocation.Token) {
	attempts := 0
	for _, st := range steps {
		switch st.Kind {
		case allocation.StepBumped:
			m.bumps.Inc()
			attempts++
		case allocation.StepAdmitted, allocation.StepPushed:
			attempts++
		}
	}
	m.cascadeSteps.Observe(float64(attempts))

	if final != nil {
		m.outcomes.WithLabelValues(outcomeLabel(final.Status)).Inc()
	}
}

func (m *Allocation) TokenCancelled() {
	m.cancellations.Inc()
}

func (m *Allocation) LockWaited(d time.Duration) {
	m.lockWait.Observe(d.Seconds())
}

func outcomeLabel(status allocation.TokenStatus) string {
	switch status {
	case allocation.StatusAllocated:
		return "allocated"
	case allocation.StatusWaitlisted:
		return "waitlisted"
	default:
		return "other"
	}
}
