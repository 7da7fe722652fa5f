package engine

import (
	"github.com/quarrel-sampling/sampler/internal/kernels"
)

// predicate selects which lanes of a row participate in a sampling pass.
type predicate func(p float32) bool

// sampleOnePass implements C4: inverse-CDF sampling inside a
// predicate-masked row in a single streaming pass over tiles. u must lie
// in [0, q) where q is the predicate-masked mass of row; if it does not,
// the scan simply never crosses u and the d-1 fallback is returned, same
// as a row with no predicate-satisfying lanes.
//
// deterministic selects InclusiveScanDeterministic over InclusiveScanFast
// for the running-CDF pass — the only place in the whole sampling path
// where the scan's result feeds an observable output, per the
// determinism contract in spec.md §9.
func sampleOnePass(row []float32, pred predicate, u float64, deterministic bool) int {
	scratch := newRowScratch(len(row) - 1)
	if len(row) == 0 {
		return -1
	}

	var aggregate float64
	buf := make([]float32, kernels.DefaultTileWidth)
	cdf := make([]float32, kernels.DefaultTileWidth)

	kernels.ForEachTile(len(row), kernels.DefaultTileWidth, func(lo, hi int) {
		if aggregate > u {
			return
		}
		n := hi - lo
		phat := buf[:n]
		for j := 0; j < n; j++ {
			v := row[lo+j]
			if pred(v) {
				phat[j] = v
			} else {
				phat[j] = 0
			}
		}
		tileSum := kernels.BlockSum(phat)

		if aggregate+float64(tileSum) > u {
			running := cdf[:n]
			if deterministic {
				kernels.InclusiveScanDeterministic(running, phat)
			} else {
				kernels.InclusiveScanFast(running, phat)
			}
			flags := make([]bool, n)
			for j := 0; j < n; j++ {
				flags[j] = float64(running[j])+aggregate > u && pred(row[lo+j])
			}
			transitions := kernels.FlagTransitions(flags)
			for j, fired := range transitions {
				if fired && flags[j] {
					scratch.observe(lo + j)
					break
				}
			}
		}
		aggregate += float64(tileSum)
	})

	return scratch.sampledID
}

// countSumAbove computes, in one fused streaming sweep, both the count and
// the sum of row entries strictly greater than threshold — the "fused
// sweep" spec.md §4.5 step 3 calls for when evaluating g(pivot_0) and
// g(pivot_1) together.
func countSumAbove(row []float32, threshold float32) (count int, sum float32) {
	kernels.ForEachTile(len(row), kernels.DefaultTileWidth, func(lo, hi int) {
		tile := row[lo:hi]
		count += kernels.BlockCountGreater(tile, threshold)
		sum += kernels.BlockSumGreater(tile, threshold)
	})
	return count, sum
}

// rowMax returns the maximum value in row, swept tile by tile through the
// same loader every other pass uses.
func rowMax(row []float32) float32 {
	var m float32
	first := true
	kernels.ForEachTile(len(row), kernels.DefaultTileWidth, func(lo, hi int) {
		tm := kernels.BlockMax(row[lo:hi])
		if first || tm > m {
			m = tm
			first = false
		}
	})
	return m
}

// rowMin returns the minimum value in row.
func rowMin(row []float32) float32 {
	var m float32
	first := true
	kernels.ForEachTile(len(row), kernels.DefaultTileWidth, func(lo, hi int) {
		tm := kernels.BlockMin(row[lo:hi])
		if first || tm < m {
			m = tm
			first = false
		}
	})
	return m
}
