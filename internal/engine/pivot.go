package engine

import (
	"github.com/quarrel-sampling/sampler/internal/rng"
)

// pivotGoal names what the pivot-search engine is bisecting for: a count
// target (top-k), a sum target (top-p), or both at once (top-k ∩ top-p).
type pivotGoal struct {
	wantCount bool
	wantSum   bool
	count     int
	sum       float32
}

// meets reports whether g(x), expressed as the (count, sum) pair measured
// at a candidate pivot, already satisfies every active target — spec.md
// §4.5's decision table condition "g(pivot) < target".
func (g pivotGoal) meets(count int, sum float32) bool {
	if g.wantCount && count >= g.count {
		return false
	}
	if g.wantSum && float64(sum) >= float64(g.sum) {
		return false
	}
	return true
}

// pivotSearchResult carries the accepted sample plus the diagnostics the
// rejection-resampling loop and internal/metrics want to report.
type pivotSearchResult struct {
	sampledID  int
	iterations int
	resamples  int
	degenerate bool
}

// pivotSearchSample runs the fused sample-and-bisect loop of spec.md §4.5
// + §4.6: each iteration draws one candidate via sampleOnePass, uses its
// value as pivot_0, and either accepts it as the final output or tightens
// the [low, high] bracket and redraws. This is the engine behind top-k,
// top-p, and the combined top-k∩top-p policies — goal just changes which
// of count/sum (or both) gates acceptance.
//
// stream is the row's Philox stream; it is the *same* stream the caller
// draws every u from, so the whole rejection loop depends only on
// (seed, offset, row_idx) per spec.md §4.3.
func pivotSearchSample(stream *rng.Stream, row []float32, goal pivotGoal, deterministic bool) pivotSearchResult {
	const maxIterations = 64

	low := float32(0)
	high := rowMax(row)
	if high <= low {
		// Degenerate row: nothing strictly exceeds zero. One multinomial-
		// style pass over p > 0 is the best we can do; it returns the
		// d-1 fallback if even that is empty.
		id := sampleOnePass(row, func(p float32) bool { return p > 0 }, stream.UniformRange(1), deterministic)
		return pivotSearchResult{sampledID: id, iterations: 1, degenerate: id == len(row)-1}
	}

	q := 1.0
	u := stream.UniformRange(q)
	result := pivotSearchResult{sampledID: len(row) - 1, degenerate: true}

	for iter := 0; iter < maxIterations; iter++ {
		lowSnapshot := low
		pred := func(p float32) bool { return p > lowSnapshot }

		sampledID := sampleOnePass(row, pred, u, deterministic)
		result.sampledID = sampledID
		result.iterations = iter + 1
		result.degenerate = sampledID == len(row)-1 && !pred(row[sampledID])

		pivot0 := row[sampledID]
		pivot1 := (pivot0 + high) / 2

		count0, sum0 := countSumAbove(row, pivot0)
		count1, sum1 := countSumAbove(row, pivot1)

		switch {
		case goal.meets(count0, sum0):
			result.sampledID = resolveAcceptedPivot(stream, row, lowSnapshot, pivot0, goal, count0, sum0)
			return result
		case goal.meets(count1, sum1):
			low, high = pivot0, pivot1
		default:
			low = pivot1
		}

		if low >= high {
			return result
		}

		_, newSum := countSumAbove(row, low)
		q = float64(newSum)
		if q <= 0 {
			q = 1e-8
		}
		u = stream.UniformRange(q)
		result.resamples++
	}

	return result
}

// resolveAcceptedPivot breaks ties toward the smallest index when the
// accept branch fires on a pivot_0 that shares its value with other
// row entries still satisfying the current predicate (p > low). Because
// sampleOnePass draws proportionally over the *entire* predicate-masked
// row, an exact tie at the row's current max gives every tied index equal
// odds of producing pivot_0 — which on its own would let the accepted
// sample land on any of them, violating the smallest-index tie-break
// spec.md §8 invariant 2 and scenario S2 require. This resolves it by
// working out, in ascending index order, exactly how many of the tied
// entries the goal can still admit, then drawing only among that
// restricted set (plus anything strictly above pivot_0).
func resolveAcceptedPivot(stream *rng.Stream, row []float32, low, pivot0 float32, goal pivotGoal, aboveCount int, aboveSum float32) int {
	var tied []int
	for j, p := range row {
		if p == pivot0 && p > low {
			tied = append(tied, j)
		}
	}
	if len(tied) <= 1 {
		if len(tied) == 1 {
			return tied[0]
		}
		return len(row) - 1
	}

	includeN := len(tied)
	if goal.wantCount {
		if need := goal.count - aboveCount; need < includeN {
			includeN = need
		}
	}
	if goal.wantSum {
		need := float64(goal.sum) - float64(aboveSum)
		var running float64
		n := 0
		for _, j := range tied {
			running += float64(row[j])
			n++
			if running >= need {
				break
			}
		}
		if n < includeN {
			includeN = n
		}
	}
	if includeN < 1 {
		includeN = 1
	}
	if includeN > len(tied) {
		includeN = len(tied)
	}
	allowed := tied[:includeN]

	allowedSet := make(map[int]struct{}, len(allowed))
	for _, j := range allowed {
		allowedSet[j] = struct{}{}
	}

	total := float64(aboveSum) + float64(pivot0)*float64(includeN)
	if total <= 0 {
		return allowed[0]
	}
	u := stream.UniformRange(total)

	var running float64
	for j, p := range row {
		switch {
		case p > pivot0:
		case p == pivot0:
			if _, ok := allowedSet[j]; !ok {
				continue
			}
		default:
			continue
		}
		running += float64(p)
		if running > u {
			return j
		}
	}
	return allowed[len(allowed)-1]
}

// resolveBoundaryTies is pivotThreshold's counterpart to
// resolveAcceptedPivot: the mask/renorm path has no per-token sample to
// draw, only a kept/dropped decision per lane, so ties at the converged
// boundary are broken by ascending index rather than by a weighted draw.
//
// pivotThreshold returns the low end of its bracket, and low only moves to
// candidates whose strictly-above count/sum still reaches the target. On a
// row with an exact tie at the cutoff this leaves one of two shapes: when
// the tied group is the row minimum, low never moves and count/sum
// strictly above tau falls short of the target by up to the whole group;
// when the tied group sits inside the row, tau converges just below it and
// the strictly-above set goes past the target by taking the whole group.
// The second shape is first moved onto the tied value itself; then the
// remainder is filled from the tau-valued entries in ascending index
// order, the same rule resolveAcceptedPivot applies on the sampling path.
func resolveBoundaryTies(row []float32, tau float32, goal pivotGoal) (kept []bool, count int, sum float32) {
	kept = make([]bool, len(row))
	if c, s := countSumAbove(row, tau); !goal.meets(c, s) {
		next, found := tau, false
		for _, p := range row {
			if p > tau && (!found || p < next) {
				next, found = p, true
			}
		}
		if found {
			if c, s := countSumAbove(row, next); goal.meets(c, s) {
				tau = next
			}
		}
	}
	aboveCount, aboveSum := countSumAbove(row, tau)

	var tied []int
	for j, p := range row {
		if p > tau {
			kept[j] = true
		} else if p == tau {
			tied = append(tied, j)
		}
	}

	includeN := len(tied)
	if goal.wantCount {
		if need := goal.count - aboveCount; need < includeN {
			includeN = need
		}
	}
	if goal.wantSum {
		need := float64(goal.sum) - float64(aboveSum)
		var running float64
		n := 0
		reached := need <= 0
		for _, j := range tied {
			running += float64(row[j])
			n++
			if running >= need {
				reached = true
				break
			}
		}
		// A tied group with no positive mass (tau <= 0, a degenerate row)
		// can never close a positive gap no matter how many entries are
		// admitted — don't force-include the whole group in that case.
		if !reached {
			n = 0
		}
		if n < includeN {
			includeN = n
		}
	}
	if includeN < 0 {
		includeN = 0
	}
	if includeN > len(tied) {
		includeN = len(tied)
	}

	count = aboveCount + includeN
	sum = aboveSum
	for i := 0; i < includeN; i++ {
		j := tied[i]
		kept[j] = true
		sum += row[j]
	}
	return kept, count, sum
}

// pivotThreshold runs a pure continuous bisection (no PRNG involvement) to
// find, within the bisection tolerance, the largest τ at which g(τ) still
// reaches the target (goal.meets is false at τ) — the form spec.md
// §4.7's renorm and mask kernels need, since they have no per-token
// sample to produce, only a cutoff value to rewrite the row against.
// Unlike pivotSearchSample this never touches the row-value candidates
// from a sampling pass; it bisects the continuous bracket directly, which
// sidesteps the tie/initialisation edge cases spec.md §9 calls out for
// the sampling-mode engine (those are preserved verbatim in
// pivotSearchSample; the renorm path does not inherit them because it
// never draws a candidate via C4 in the first place).
func pivotThreshold(row []float32, goal pivotGoal) (tau float32, iterations int) {
	const maxIterations = 48
	low := rowMin(row)
	high := rowMax(row)
	if high <= low {
		return low, 0
	}

	for iterations = 0; iterations < maxIterations; iterations++ {
		mid := low + (high-low)/2
		count, sum := countSumAbove(row, mid)
		if goal.meets(count, sum) {
			high = mid
		} else {
			low = mid
		}
		if high-low < 1e-7*(1+absf32(high)) {
			break
		}
	}
	return low, iterations + 1
}

func absf32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
