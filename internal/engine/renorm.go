package engine

import "math"

// epsFloor is the reciprocal floor spec.md §4.7 requires so renorm never
// divides by an exactly-zero mass on a degenerate row.
const epsFloor = 1e-8

// TopPRenorm implements the top-p renorm kernel: find τ such that
// sum(p > τ) >= topP, then overwrite dst with p/Σ for kept lanes and 0
// elsewhere. dst may alias row. Returns the number of kept lanes.
func TopPRenorm(row, dst []float32, topP float32) int {
	if topP >= 1 {
		copy(dst, row)
		return len(row)
	}
	goal := pivotGoal{wantSum: true, sum: topP}
	tau, _ := pivotThreshold(row, goal)

	// resolveBoundaryTies fills the target mass from the boundary-valued
	// entries in ascending index order — pivotThreshold's bisection can
	// converge with the strictly-above mass short of topP, or past it, by a
	// tied group straddling τ (spec.md §8 invariant 6, scenario S2), so a
	// plain p > τ split would under- or over-keep.
	kept, count, sumLow := resolveBoundaryTies(row, tau, goal)

	recip := float32(1)
	if sumLow > epsFloor {
		recip = 1 / sumLow
	} else {
		recip = 1 / epsFloor
	}

	for i, p := range row {
		if kept[i] {
			dst[i] = p * recip
		} else {
			dst[i] = 0
		}
	}
	return count
}

// TopKRenorm implements the top-k renorm kernel: keep the top-k values by
// count, renormalize their mass to 1. k >= d skips the search and copies
// the row unchanged, per spec.md §4.7.
func TopKRenorm(row, dst []float32, k int) int {
	if k <= 0 || k >= len(row) {
		copy(dst, row)
		return len(row)
	}
	goal := pivotGoal{wantCount: true, count: k}
	tau, _ := pivotThreshold(row, goal)
	kept, count, sumLow := resolveBoundaryTies(row, tau, goal)

	recip := float32(1)
	if sumLow > epsFloor {
		recip = 1 / sumLow
	} else {
		recip = 1 / epsFloor
	}

	for i, p := range row {
		if kept[i] {
			dst[i] = p * recip
		} else {
			dst[i] = 0
		}
	}
	return count
}

// TopKMask implements the top-k logit mask kernel: keep the top-k logits
// by value, set the rest to -Inf. Bracket is initialised from the row's
// observed (min, max) per spec.md §4.7 — pivotThreshold already does
// exactly this.
func TopKMask(logits, dst []float32, k int) int {
	if k <= 0 || k >= len(logits) {
		copy(dst, logits)
		return len(logits)
	}
	goal := pivotGoal{wantCount: true, count: k}
	tau, _ := pivotThreshold(logits, goal)
	kept, count, _ := resolveBoundaryTies(logits, tau, goal)

	negInf := float32(math.Inf(-1))
	for i, v := range logits {
		if kept[i] {
			dst[i] = v
		} else {
			dst[i] = negInf
		}
	}
	return count
}
