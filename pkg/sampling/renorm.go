package sampling

import (
	"context"
	"fmt"
	"time"

	"github.com/quarrel-sampling/sampler/internal/device"
	"github.com/quarrel-sampling/sampler/internal/engine"
	"github.com/quarrel-sampling/sampler/internal/metrics"
	"github.com/quarrel-sampling/sampler/internal/rowpool"
)

// TopPRenormProb renormalizes each row's nucleus to sum to 1, zeroing
// everything outside it. topPArr, if non-nil, overrides topPVal per row.
func TopPRenormProb(ctx context.Context, probs []float32, topPArr []float32, batch, d int, topPVal float32) (renormed []float32, err error) {
	local := Config{TopPVal: topPVal, TopPArr: topPArr}
	if err := local.Validate(batch); err != nil {
		return nil, fmt.Errorf("sampling: %w", err)
	}
	tensor, err := device.NewBatchTensor(probs, batch, d)
	if err != nil {
		return nil, fmt.Errorf("sampling: %w", err)
	}

	out := make([]float32, batch*d)
	start := time.Now()
	err = rowpool.Run(ctx, batch, func(b int) {
		dst := out[b*d : (b+1)*d]
		engine.TopPRenorm(tensor.Row(b), dst, local.TopP(b))
	})
	metrics.RecordKernel("top_p_renorm", batch, d, time.Since(start))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TopKRenormProb renormalizes each row's top-k values to sum to 1,
// zeroing everything else. topKArr, if non-nil, overrides topKVal.
func TopKRenormProb(ctx context.Context, probs []float32, topKArr []int32, batch, d int, topKVal int) (renormed []float32, err error) {
	local := Config{TopKVal: topKVal, TopKArr: topKArr}
	if err := local.Validate(batch); err != nil {
		return nil, fmt.Errorf("sampling: %w", err)
	}
	tensor, err := device.NewBatchTensor(probs, batch, d)
	if err != nil {
		return nil, fmt.Errorf("sampling: %w", err)
	}

	out := make([]float32, batch*d)
	start := time.Now()
	err = rowpool.Run(ctx, batch, func(b int) {
		dst := out[b*d : (b+1)*d]
		engine.TopKRenorm(tensor.Row(b), dst, local.TopK(b))
	})
	metrics.RecordKernel("top_k_renorm", batch, d, time.Since(start))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TopKMaskLogits rewrites each row keeping only the top-k logits by
// value, setting the rest to -Inf. topKArr, if non-nil, overrides
// topKVal per row.
func TopKMaskLogits(ctx context.Context, logits []float32, topKArr []int32, batch, d int, topKVal int) (masked []float32, err error) {
	local := Config{TopKVal: topKVal, TopKArr: topKArr}
	if err := local.Validate(batch); err != nil {
		return nil, fmt.Errorf("sampling: %w", err)
	}
	tensor, err := device.NewBatchTensor(logits, batch, d)
	if err != nil {
		return nil, fmt.Errorf("sampling: %w", err)
	}

	out := make([]float32, batch*d)
	start := time.Now()
	err = rowpool.Run(ctx, batch, func(b int) {
		dst := out[b*d : (b+1)*d]
		engine.TopKMask(tensor.Row(b), dst, local.TopK(b))
	})
	metrics.RecordKernel("top_k_mask", batch, d, time.Since(start))
	if err != nil {
		return nil, err
	}
	return out, nil
}
