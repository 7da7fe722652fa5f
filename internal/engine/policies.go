// Package engine implements the sampling and renorm/mask policy kernels
// (C4-C8): the scan-and-select sampler, the pivot-search engine, and the
// policy/renorm/speculative kernels built on top of them. Every exported
// function here operates on one row at a time; internal/rowpool is what
// fans a batch out across goroutines, and pkg/sampling is the public
// surface that wires rowpool, internal/config, and these row kernels
// together.
package engine

import (
	"github.com/quarrel-sampling/sampler/internal/logger"
	"github.com/quarrel-sampling/sampler/internal/metrics"
	"github.com/quarrel-sampling/sampler/internal/rng"
)

// Multinomial implements the unconstrained policy: one sampling pass over
// the whole row with predicate p > 0, no pivot search.
func Multinomial(stream *rng.Stream, row []float32, deterministic bool) int {
	_, total := countSumAbove(row, 0)
	u := stream.UniformRange(float64(total))
	id := sampleOnePass(row, func(p float32) bool { return p > 0 }, u, deterministic)
	if id == len(row)-1 && !(len(row) > 0 && row[id] > 0) {
		metrics.RecordDegenerateRow("multinomial")
	}
	return id
}

// TopK implements the top-k policy: rejection-resample against a pivot
// search with goal count < k. k <= 0 degenerates to Multinomial; k >= d
// does too, since no element can be excluded.
func TopK(stream *rng.Stream, row []float32, k int, deterministic bool) int {
	if k <= 0 || k >= len(row) {
		return Multinomial(stream, row, deterministic)
	}
	result := pivotSearchSample(stream, row, pivotGoal{wantCount: true, count: k}, deterministic)
	recordPivot("top_k", result)
	return result.sampledID
}

// TopP implements nucleus sampling: rejection-resample against a pivot
// search with goal sum < top_p. top_p >= the row's total mass degenerates
// to Multinomial, since the full distribution already satisfies the goal.
func TopP(stream *rng.Stream, row []float32, topP float32, deterministic bool) int {
	if _, total := countSumAbove(row, 0); topP >= 1 || topP >= total {
		return Multinomial(stream, row, deterministic)
	}
	result := pivotSearchSample(stream, row, pivotGoal{wantSum: true, sum: topP}, deterministic)
	recordPivot("top_p", result)
	return result.sampledID
}

// TopKTopP implements the combined top-k ∩ top-p policy: a single pivot
// search whose acceptance requires both the count and sum goals at once.
func TopKTopP(stream *rng.Stream, row []float32, k int, topP float32, deterministic bool) int {
	if (k <= 0 || k >= len(row)) && topP >= 1 {
		return Multinomial(stream, row, deterministic)
	}
	goal := pivotGoal{}
	if k > 0 && k < len(row) {
		goal.wantCount = true
		goal.count = k
	}
	if topP < 1 {
		goal.wantSum = true
		goal.sum = topP
	}
	result := pivotSearchSample(stream, row, goal, deterministic)
	recordPivot("top_k_top_p", result)
	return result.sampledID
}

// MinP implements min-p sampling: a one-shot pivot at max(row)*minP, no
// bisection loop, predicate p >= pivot per spec.md §4.6 (note the
// non-strict inequality, unlike every other policy's p > low).
func MinP(stream *rng.Stream, row []float32, minP float32, deterministic bool) int {
	if minP <= 0 {
		return Multinomial(stream, row, deterministic)
	}
	pivot := rowMax(row) * minP
	_, q := countSumAbove(row, nextBelow(pivot))
	if q <= 0 {
		logger.Log.KernelEvent("min_p", -1, "degenerate row: no mass at or above pivot", "pivot", pivot)
		metrics.RecordDegenerateRow("min_p")
		return len(row) - 1
	}
	u := stream.UniformRange(float64(q))
	return sampleOnePass(row, func(p float32) bool { return p >= pivot }, u, deterministic)
}

// nextBelow nudges a threshold down by one ULP-scale epsilon so that
// countSumAbove's strict ">" comparison behaves like MinP's required
// ">=" against pivot without a second comparison kernel.
func nextBelow(v float32) float32 {
	if v == 0 {
		return -1e-20
	}
	return v - absf32(v)*1e-7
}

func recordPivot(policy string, result pivotSearchResult) {
	metrics.RecordPivotIterations(policy, result.iterations)
	for i := 0; i < result.resamples; i++ {
		metrics.RecordRejectionResample(policy)
	}
	if result.degenerate {
		metrics.RecordDegenerateRow(policy)
	}
	metrics.RecordRowProcessed(policy)
}
