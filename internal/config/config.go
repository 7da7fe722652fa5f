// Package config holds the sampling engine's configuration surface: the
// policy knobs a caller can set (deterministic reductions, top-k/top-p/
// min-p limits, the Philox counter pair) plus validation that mirrors the
// "trust the caller, propagate the device" contract — invalid policy
// parameters are never rejected here, only the shape/size invariants a Go
// caller can cheaply check before a kernel ever touches a row.
package config

import "fmt"

// Config configures one batched sampling or renorm/mask kernel call.
type Config struct {
	// Deterministic selects the fixed-tree Blelloch prefix-sum variant in
	// every sampling pass so repeated calls with the same (Seed, Offset,
	// inputs) are bit-identical. The sum/max/min reductions have a single
	// form and are unaffected.
	Deterministic bool

	// TopKVal is the scalar top-k limit used when TopKArr is nil.
	TopKVal int
	// TopKArr is an optional per-row override of TopKVal, length == batch.
	TopKArr []int32

	// TopPVal is the scalar top-p mass target used when TopPArr is nil.
	TopPVal float32
	// TopPArr is an optional per-row override of TopPVal, length == batch.
	TopPArr []float32

	// MinPVal is the scalar min-p ratio used when MinPArr is nil.
	MinPVal float32
	// MinPArr is an optional per-row override of MinPVal, length == batch.
	MinPArr []float32

	// RowIndices optionally gathers logical batch row b from physical row
	// RowIndices[b]. Nil means the identity mapping.
	RowIndices []int32

	// PhiloxSeed and PhiloxOffset select the counter-based PRNG stream.
	// The caller owns these counters and advances Offset between calls.
	PhiloxSeed   uint64
	PhiloxOffset uint64

	// MetricsEnabled makes the sampling and speculative entry points record
	// each call's duration and batch shape via internal/metrics. Off by
	// default. Per-row counters (pivot-search iterations, resamples,
	// degenerate rows, NaN/Inf counts, speculative acceptance) are recorded
	// whether or not it is set, and the renorm/mask entry points, which take
	// no Config, always record their duration.
	MetricsEnabled bool
}

// Default returns the multinomial-equivalent configuration: no truncation,
// non-deterministic (fast) reductions, zeroed Philox counters.
func Default() Config {
	return Config{
		Deterministic: false,
		TopKVal:       0,
		TopPVal:       1.0,
		MinPVal:       0,
	}
}

// Validate checks the shape invariants a Go caller can and should check
// before launching a kernel: per-row override arrays must match the batch
// size when present. It deliberately does NOT validate policy semantics
// such as k > d or top_p outside (0, 1] — per spec, those degrade
// gracefully inside the kernel rather than being rejected up front.
func (c Config) Validate(batch int) error {
	if c.TopKArr != nil && len(c.TopKArr) != batch {
		return fmt.Errorf("config: top_k_arr length %d != batch %d", len(c.TopKArr), batch)
	}
	if c.TopPArr != nil && len(c.TopPArr) != batch {
		return fmt.Errorf("config: top_p_arr length %d != batch %d", len(c.TopPArr), batch)
	}
	if c.MinPArr != nil && len(c.MinPArr) != batch {
		return fmt.Errorf("config: min_p_arr length %d != batch %d", len(c.MinPArr), batch)
	}
	if c.RowIndices != nil && len(c.RowIndices) != batch {
		return fmt.Errorf("config: row_indices length %d != batch %d", len(c.RowIndices), batch)
	}
	return nil
}

// TopK resolves the effective top-k limit for logical batch row b.
func (c Config) TopK(b int) int {
	if c.TopKArr != nil {
		return int(c.TopKArr[b])
	}
	return c.TopKVal
}

// TopP resolves the effective top-p mass target for logical batch row b.
func (c Config) TopP(b int) float32 {
	if c.TopPArr != nil {
		return c.TopPArr[b]
	}
	return c.TopPVal
}

// MinP resolves the effective min-p ratio for logical batch row b.
func (c Config) MinP(b int) float32 {
	if c.MinPArr != nil {
		return c.MinPArr[b]
	}
	return c.MinPVal
}

// PhysicalRow resolves the physical row index backing logical batch row b.
func (c Config) PhysicalRow(b int) int {
	if c.RowIndices != nil {
		return int(c.RowIndices[b])
	}
	return b
}
