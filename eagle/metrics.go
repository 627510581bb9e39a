package eagle

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/gonum/stat"
)

// Metrics aggregates worker performance statistics for both live
// Prometheus export and a final human-readable summary: acceptance
// length distribution and allocator occupancy.
type Metrics struct {
	ForwardSteps      int
	TotalAccepted     int64
	TotalDraftedNodes int64
	AcceptLengths     []float64 // one sample per request per recorded step
	PeakSlotsUsed     int64

	acceptedCounter prometheus.Counter
	draftedCounter  prometheus.Counter
	stepHistogram   prometheus.Histogram
}

// NewMetrics registers the worker's Prometheus collectors against reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		acceptedCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eagleworker",
			Name:      "accepted_tokens_total",
			Help:      "Total number of draft tokens accepted by the verifier.",
		}),
		draftedCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eagleworker",
			Name:      "drafted_tokens_total",
			Help:      "Total number of candidate tokens produced by the draft loop.",
		}),
		stepHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eagleworker",
			Name:      "accept_length_per_request",
			Help:      "Distribution of per-request accept length per verify step.",
			Buckets:   prometheus.LinearBuckets(0, 1, 16),
		}),
	}
	for _, c := range []prometheus.Collector{m.acceptedCounter, m.draftedCounter, m.stepHistogram} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metric: %w", err)
		}
	}
	return m, nil
}

// RecordStep folds one Worker.Forward call's outcome into the running
// totals and, if this is a live metrics instance, into its Prometheus
// collectors.
func (m *Metrics) RecordStep(accepted []int64, draftedNodes int64, slotsUsed int64) {
	m.ForwardSteps++
	m.TotalDraftedNodes += draftedNodes
	if m.draftedCounter != nil {
		m.draftedCounter.Add(float64(draftedNodes))
	}
	for _, a := range accepted {
		m.TotalAccepted += a
		m.AcceptLengths = append(m.AcceptLengths, float64(a))
		if m.acceptedCounter != nil {
			m.acceptedCounter.Add(float64(a))
		}
		if m.stepHistogram != nil {
			m.stepHistogram.Observe(float64(a))
		}
	}
	if slotsUsed > m.PeakSlotsUsed {
		m.PeakSlotsUsed = slotsUsed
	}
}

// AcceptanceRate returns the fraction of drafted candidate tokens the
// verifier accepted, across every recorded step.
func (m *Metrics) AcceptanceRate() float64 {
	if m.TotalDraftedNodes == 0 {
		return 0
	}
	return float64(m.TotalAccepted) / float64(m.TotalDraftedNodes)
}

// Print displays aggregated metrics at the end of a run with
// fixed-width labels, one stat per line.
func (m *Metrics) Print() {
	fmt.Println("=== EAGLE Worker Metrics ===")
	fmt.Printf("Forward Steps         : %d\n", m.ForwardSteps)
	fmt.Printf("Total Accepted Tokens : %d\n", m.TotalAccepted)
	fmt.Printf("Total Drafted Nodes   : %d\n", m.TotalDraftedNodes)
	fmt.Printf("Acceptance Rate       : %.4f\n", m.AcceptanceRate())
	fmt.Printf("Peak Slots Used       : %d\n", m.PeakSlotsUsed)
	if len(m.AcceptLengths) == 0 {
		return
	}
	sorted := append([]float64(nil), m.AcceptLengths...)
	sort.Float64s(sorted)
	mean := stat.Mean(sorted, nil)
	p50 := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	p99 := stat.Quantile(0.99, stat.Empirical, sorted, nil)
	fmt.Printf("Accept Length Mean    : %.3f\n", mean)
	fmt.Printf("Accept Length P50     : %.3f\n", p50)
	fmt.Printf("Accept Length P99     : %.3f\n", p99)
}
