package sampling

import (
	"context"
	"fmt"
	"time"

	"github.com/quarrel-sampling/sampler/internal/engine"
	"github.com/quarrel-sampling/sampler/internal/metrics"
	"github.com/quarrel-sampling/sampler/internal/rng"
	"github.com/quarrel-sampling/sampler/internal/rowpool"
)

// ChainSpeculativeSampling runs chain speculative decoding for every row:
// accept/reject K draft tokens against the target distribution, stop at
// the first rejection (or accept all K for a bonus token), and resample
// the residual distribution at the stopping position. draftProbs is
// row-major [batch, K, d]; targetProbs is [batch, K+1, d] — the extra
// row per batch entry is the additional target-model forward step that
// produces the bonus-token distribution when every draft is accepted.
// draftIDs is [batch, K].
func ChainSpeculativeSampling(ctx context.Context, draftProbs, targetProbs []float32, draftIDs []int32, batch, k, d int, cfg Config) (result SpeculativeResult, err error) {
	if len(draftIDs) != batch*k {
		return SpeculativeResult{}, fmt.Errorf("sampling: draftIDs length %d != batch(%d)*k(%d)", len(draftIDs), batch, k)
	}
	if len(draftProbs) != batch*k*d {
		return SpeculativeResult{}, fmt.Errorf("sampling: draftProbs length != batch*k*d")
	}
	if len(targetProbs) != batch*(k+1)*d {
		return SpeculativeResult{}, fmt.Errorf("sampling: targetProbs length != batch*(k+1)*d")
	}

	result = SpeculativeResult{
		OutIDs:   make([]int32, batch*(k+1)),
		Accepted: make([]int32, batch),
		Emitted:  make([]int32, batch),
	}

	start := time.Now()
	err = rowpool.Run(ctx, batch, func(b int) {
		draftRow := draftProbs[b*k*d : (b+1)*k*d]
		targetRow := targetProbs[b*(k+1)*d : (b+1)*(k+1)*d]
		ids := draftIDs[b*k : (b+1)*k]

		stream := rng.NewStream(cfg.PhiloxSeed, b, cfg.PhiloxOffset)
		row := engine.ChainSpeculativeSamplingRow(stream, draftRow, targetRow, ids, d, cfg.Deterministic)

		copy(result.OutIDs[b*(k+1):(b+1)*(k+1)], row.OutIDs)
		result.Accepted[b] = int32(row.Accepted)
		result.Emitted[b] = int32(row.Emitted)
		metrics.RecordSpeculative(row.Accepted, k, row.Bonus)
	})
	if cfg.MetricsEnabled {
		metrics.RecordKernel("speculative", batch, d, time.Since(start))
	}
	if err != nil {
		return SpeculativeResult{}, err
	}
	return result, nil
}
