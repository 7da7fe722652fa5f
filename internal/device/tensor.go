// Package device provides the row-major batch view the sampling kernels
// operate on, ported from the teacher's CPU tensor abstraction
// (internal/device's Context/Tensor in the teacher repo) and narrowed to
// exactly what a [batch, d] probability/logit buffer needs: a strided
// per-row slice, an optional row_indices gather, and activation-style
// diagnostics for spotting degenerate rows.
package device

import "fmt"

// BatchTensor is a read/write view over a row-major [batch, d] buffer.
// It never copies Data; Row and RowIndirect return sub-slices that alias it.
type BatchTensor struct {
	Data  []float32
	Batch int
	D     int
}

// NewBatchTensor validates that data's length matches batch*d and wraps
// it. This is the one shape check spec.md §7 says a host-side caller is
// free to make cheaply, unlike the policy-parameter checks kernels skip.
func NewBatchTensor(data []float32, batch, d int) (BatchTensor, error) {
	if batch < 0 || d < 0 {
		return BatchTensor{}, fmt.Errorf("device: negative shape (batch=%d, d=%d)", batch, d)
	}
	if len(data) != batch*d {
		return BatchTensor{}, fmt.Errorf("device: data length %d != batch(%d)*d(%d)", len(data), batch, d)
	}
	return BatchTensor{Data: data, Batch: batch, D: d}, nil
}

// Row returns the d-element slice for physical row index r.
func (t BatchTensor) Row(r int) []float32 {
	return t.Data[r*t.D : (r+1)*t.D]
}

// RowIndirect returns the row for logical batch index b, resolving through
// rowIndices when non-nil (the spec's optional gather indirection).
func (t BatchTensor) RowIndirect(b int, rowIndices []int32) []float32 {
	r := b
	if rowIndices != nil {
		r = int(rowIndices[b])
	}
	return t.Row(r)
}

// RowStats summarizes one row for degenerate-distribution diagnostics:
// sum and max (with its index) of the finite entries, and how many entries
// are NaN or Inf.
// This mirrors the teacher's ActivationStats but only keeps the fields
// the sampling kernels actually branch on.
type RowStats struct {
	Sum    float32
	Max    float32
	MaxIdx int
	NaNs   int
	Infs   int
}

// ComputeRowStats scans row once, tracking its sum, argmax, and non-finite
// counts. Per spec.md §7, non-finite inputs are undefined behavior and
// are not corrected here — they are only counted for the
// NumericalInstability metric (internal/metrics) so operators can see
// upstream drift.
func ComputeRowStats(row []float32) RowStats {
	stats := RowStats{MaxIdx: -1}
	for i, v := range row {
		if isNaN(v) {
			stats.NaNs++
			continue
		}
		if isInf(v) {
			stats.Infs++
			continue
		}
		stats.Sum += v
		if stats.MaxIdx == -1 || v > stats.Max {
			stats.Max = v
			stats.MaxIdx = i
		}
	}
	return stats
}

func isNaN(v float32) bool { return v != v }
func isInf(v float32) bool { return v > maxFinite32 || v < -maxFinite32 }

const maxFinite32 = 3.4028235e+38
