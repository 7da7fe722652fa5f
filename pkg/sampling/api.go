package sampling

import (
	"context"
	"fmt"
	"time"

	"github.com/quarrel-sampling/sampler/internal/device"
	"github.com/quarrel-sampling/sampler/internal/engine"
	"github.com/quarrel-sampling/sampler/internal/logger"
	"github.com/quarrel-sampling/sampler/internal/metrics"
	"github.com/quarrel-sampling/sampler/internal/rng"
	"github.com/quarrel-sampling/sampler/internal/rowpool"
)

// rowSampler is what every policy entry point reduces to: given the
// logical batch row, its data, and its dedicated PRNG stream, produce
// one token index. b is the logical index (not the physical row
// cfg.RowIndices resolved to) — it is what per-row override arrays
// (TopKArr/TopPArr/MinPArr) and the PRNG stream are keyed on, so that
// permuting physical storage while remapping row_indices still draws an
// identical sample for the same logical slot, per spec.md §8 property 9.
type rowSampler func(b int, row []float32, stream *rng.Stream) int

// runSampling wires a policy's per-row kernel to rowpool, validating
// shapes and recording per-call metrics the way every policy entry point
// needs to.
func runSampling(ctx context.Context, policy string, probs []float32, batch, d int, cfg Config, sample rowSampler) ([]int32, error) {
	if err := cfg.Validate(batch); err != nil {
		return nil, fmt.Errorf("sampling: %w", err)
	}
	tensor, err := device.NewBatchTensor(probs, batch, d)
	if err != nil {
		return nil, fmt.Errorf("sampling: %w", err)
	}

	out := make([]int32, batch)
	start := time.Now()
	err = rowpool.Run(ctx, batch, func(b int) {
		row := tensor.RowIndirect(b, cfg.RowIndices)
		stats := device.ComputeRowStats(row)
		metrics.RecordNumericalInstability("nan", stats.NaNs)
		metrics.RecordNumericalInstability("inf", stats.Infs)

		stream := rng.NewStream(cfg.PhiloxSeed, b, cfg.PhiloxOffset)
		id := sample(b, row, stream)
		out[b] = int32(id)
		logger.Log.KernelEvent(policy, b, "sampled", "index", id)
	})
	if cfg.MetricsEnabled {
		metrics.RecordKernel(policy, batch, d, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SamplingFromProb draws one unconstrained multinomial sample per row.
func SamplingFromProb(ctx context.Context, probs []float32, batch, d int, cfg Config) (out []int32, err error) {
	return runSampling(ctx, "multinomial", probs, batch, d, cfg, func(b int, row []float32, stream *rng.Stream) int {
		return engine.Multinomial(stream, row, cfg.Deterministic)
	})
}

// ParallelSamplingFromProb is SamplingFromProb with the batch gathered
// through cfg.RowIndices. In this port the gather is already part of
// Config, so this is a thin alias kept for parity with spec.md §6's two
// distinct C entry points (the spec's "Parallel" variant differs from
// the plain one only in accepting row_indices, which Config carries
// either way).
func ParallelSamplingFromProb(ctx context.Context, probs []float32, batch, d int, cfg Config) (out []int32, err error) {
	return SamplingFromProb(ctx, probs, batch, d, cfg)
}

// TopKSamplingFromProb draws one top-k truncated sample per row. topKArr,
// if non-nil, overrides topKVal per logical batch row.
func TopKSamplingFromProb(ctx context.Context, probs []float32, topKArr []int32, batch, topKVal, d int, cfg Config) (out []int32, err error) {
	local := cfg
	local.TopKVal = topKVal
	if topKArr != nil {
		local.TopKArr = topKArr
	}
	return runSampling(ctx, "top_k", probs, batch, d, local, func(b int, row []float32, stream *rng.Stream) int {
		return engine.TopK(stream, row, local.TopK(b), local.Deterministic)
	})
}

// TopPSamplingFromProb draws one nucleus-sampled token per row. topPArr,
// if non-nil, overrides topPVal per logical batch row.
func TopPSamplingFromProb(ctx context.Context, probs []float32, topPArr []float32, batch, d int, topPVal float32, cfg Config) (out []int32, err error) {
	local := cfg
	local.TopPVal = topPVal
	if topPArr != nil {
		local.TopPArr = topPArr
	}
	return runSampling(ctx, "top_p", probs, batch, d, local, func(b int, row []float32, stream *rng.Stream) int {
		return engine.TopP(stream, row, local.TopP(b), local.Deterministic)
	})
}

// MinPSamplingFromProb draws one min-p truncated sample per row. minPArr,
// if non-nil, overrides minPVal per logical batch row.
func MinPSamplingFromProb(ctx context.Context, probs []float32, minPArr []float32, batch, d int, minPVal float32, cfg Config) (out []int32, err error) {
	local := cfg
	local.MinPVal = minPVal
	if minPArr != nil {
		local.MinPArr = minPArr
	}
	return runSampling(ctx, "min_p", probs, batch, d, local, func(b int, row []float32, stream *rng.Stream) int {
		return engine.MinP(stream, row, local.MinP(b), local.Deterministic)
	})
}

// TopKTopPSamplingFromProb draws one sample per row from the intersection
// of the top-k and top-p truncated supports.
func TopKTopPSamplingFromProb(ctx context.Context, probs []float32, topKArr []int32, topPArr []float32, batch, d int, topKVal int, topPVal float32, cfg Config) (out []int32, err error) {
	local := cfg
	local.TopKVal, local.TopPVal = topKVal, topPVal
	if topKArr != nil {
		local.TopKArr = topKArr
	}
	if topPArr != nil {
		local.TopPArr = topPArr
	}
	return runSampling(ctx, "top_k_top_p", probs, batch, d, local, func(b int, row []float32, stream *rng.Stream) int {
		return engine.TopKTopP(stream, row, local.TopK(b), local.TopP(b), local.Deterministic)
	})
}
