// Package metrics exposes Prometheus instrumentation for the sampling
// kernels: how long each policy takes, how many pivot-search iterations it
// needed, how often rows fall back to the degenerate path, and the
// observed acceptance rate of speculative decoding.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// KernelDuration tracks wall-clock time of a full batched kernel call,
	// labeled by policy name (multinomial, top_k, top_p, min_p, top_k_top_p,
	// top_p_renorm, top_k_renorm, top_k_mask, speculative).
	KernelDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sampling_kernel_duration_seconds",
		Help:    "Duration of a batched sampling kernel call",
		Buckets: prometheus.DefBuckets,
	}, []string{"policy"})

	// PivotSearchIterations tracks how many outer pivot-search iterations a
	// single row needed before the bracket collapsed.
	PivotSearchIterations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sampling_pivot_search_iterations",
		Help:    "Number of pivot-search iterations consumed by one row",
		Buckets: []float64{0, 1, 2, 3, 4, 5, 8, 12, 20, 32},
	}, []string{"policy"})

	// RejectionResamples counts how many times the top-k/top-p/combined
	// outer loop redrew u and retried after a tightened bracket.
	RejectionResamples = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sampling_rejection_resamples_total",
		Help: "Total number of rejection-resample retries across all rows",
	}, []string{"policy"})

	// DegenerateRows counts rows that fell back to the d-1 sentinel because
	// no element satisfied the active predicate (all-zero or underflowed
	// distributions).
	DegenerateRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sampling_degenerate_rows_total",
		Help: "Total number of rows that hit the d-1 fallback",
	}, []string{"policy"})

	// RowsProcessed counts rows sampled through the pivot-search policies
	// (top_k, top_p, top_k_top_p); the other policies do not record it.
	RowsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sampling_rows_processed_total",
		Help: "Total number of rows processed by a policy",
	}, []string{"policy"})

	// SpeculativeAcceptanceRate observes accepted/k (accepted drafts over
	// drafts offered) for each row of a ChainSpeculativeSampling call.
	SpeculativeAcceptanceRate = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "speculative_acceptance_rate",
		Help:    "Fraction of draft tokens accepted per row, per call",
		Buckets: []float64{0, 0.1, 0.25, 0.4, 0.5, 0.6, 0.75, 0.9, 1.0},
	})

	// SpeculativeBonusTokens counts rows where every draft token was
	// accepted and a bonus token was sampled from the target distribution.
	SpeculativeBonusTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speculative_bonus_tokens_total",
		Help: "Total number of bonus tokens emitted by speculative sampling",
	})

	// NumericalInstability counts NaN/Inf detections in an input row; the
	// spec declares non-finite inputs undefined behavior, but the engine
	// still counts them so operators can see when upstream logits drifted.
	NumericalInstability = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sampling_numerical_instability_total",
		Help: "Count of NaN/Inf values observed in an input row",
	}, []string{"kind"})

	// BatchSize observes the batch dimension of each kernel call.
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sampling_batch_size",
		Help:    "Batch size of a kernel call",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512},
	})

	// VocabSize observes the row length (vocabulary size) of each kernel call.
	VocabSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sampling_vocab_size",
		Help:    "Row length (vocabulary size) of a kernel call",
		Buckets: []float64{1000, 8000, 32000, 50000, 100000, 128000, 256000},
	})
)

// RecordKernel observes a completed kernel call's duration and batch shape
// (batch and d) in one place so callers don't need to touch the
// individual promauto collectors directly.
func RecordKernel(policy string, batch, d int, duration time.Duration) {
	KernelDuration.WithLabelValues(policy).Observe(duration.Seconds())
	BatchSize.Observe(float64(batch))
	VocabSize.Observe(float64(d))
}

// RecordPivotIterations records how many outer pivot-search loops one row
// of a policy needed.
func RecordPivotIterations(policy string, iterations int) {
	PivotSearchIterations.WithLabelValues(policy).Observe(float64(iterations))
}

// RecordRejectionResample records one rejection-resample retry for policy.
func RecordRejectionResample(policy string) {
	RejectionResamples.WithLabelValues(policy).Inc()
}

// RecordDegenerateRow records a row that fell back to the d-1 sentinel.
func RecordDegenerateRow(policy string) {
	DegenerateRows.WithLabelValues(policy).Inc()
}

// RecordRowProcessed records one successfully sampled row for policy.
func RecordRowProcessed(policy string) {
	RowsProcessed.WithLabelValues(policy).Inc()
}

// RecordSpeculative records the outcome of one ChainSpeculativeSampling
// call for a single row: accepted/k is the acceptance rate, bonus reports
// whether a bonus token was emitted.
func RecordSpeculative(accepted, k int, bonus bool) {
	if k > 0 {
		SpeculativeAcceptanceRate.Observe(float64(accepted) / float64(k))
	}
	if bonus {
		SpeculativeBonusTokens.Inc()
	}
}

// RecordNumericalInstability records a NaN or Inf encountered in an input
// row. kind is "nan" or "inf".
func RecordNumericalInstability(kind string, count int) {
	if count <= 0 {
		return
	}
	NumericalInstability.WithLabelValues(kind).Add(float64(count))
}
