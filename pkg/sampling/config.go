// Package sampling is the public entry point for the batched
// probabilistic token-sampling engine: one function per policy, each
// fanning a [batch, d] row-major buffer out across internal/rowpool and
// running internal/engine's per-row kernels.
package sampling

import "github.com/quarrel-sampling/sampler/internal/config"

// Config configures one batched call. It is internal/config.Config
// re-exported at the package boundary so callers never need to import an
// internal package to build one.
type Config = config.Config

// DefaultConfig returns the multinomial-equivalent configuration.
func DefaultConfig() Config {
	return config.Default()
}

// SpeculativeResult is the batched output of ChainSpeculativeSampling:
// row-major [batch, K+1] output ids plus the per-row accumulators.
type SpeculativeResult struct {
	// OutIDs is [batch, K+1] row-major: accepted draft ids, one
	// resample/bonus slot, then -1 sentinels.
	OutIDs []int32
	// Accepted and Emitted are length-batch per-row accumulators, meant
	// to be added (+=) into a caller's running totals across calls.
	Accepted []int32
	Emitted  []int32
}
