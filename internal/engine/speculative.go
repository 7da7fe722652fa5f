package engine

import "github.com/quarrel-sampling/sampler/internal/rng"

// SpeculativeRowResult is the per-row output of ChainSpeculativeSampling:
// the K+1 output slots (accepted drafts, one resample/bonus slot, then
// -1 sentinels), plus the accumulators spec.md §4.8 says callers add
// into their running per-row totals across calls.
type SpeculativeRowResult struct {
	OutIDs   []int32 // length K+1
	Accepted int
	Emitted  int
	Bonus    bool
}

// ChainSpeculativeSamplingRow implements C8 for one row: accept/reject
// draft tokens one at a time against the target distribution, stop at the
// first rejection, and resample the residual distribution relu(target -
// draft) at the stopping position (or the full target distribution, for
// the "all K accepted" bonus case).
//
// draftProbs is a K x D row-major slice for this row (draftProbs[i*d+t] is
// the probability the draft model assigned token t at position i).
// targetProbs is (K+1) x D: rows 0..K-1 verify the K drafts, and row K is
// the extra target-model forward step used for the bonus token when every
// draft is accepted. draftIDs holds the K drafted token ids.
func ChainSpeculativeSamplingRow(stream *rng.Stream, draftProbs, targetProbs []float32, draftIDs []int32, d int, deterministic bool) SpeculativeRowResult {
	k := len(draftIDs)
	res := SpeculativeRowResult{OutIDs: make([]int32, k+1)}
	for i := range res.OutIDs {
		res.OutIDs[i] = -1
	}

	pos := k
	for i := 0; i < k; i++ {
		tok := int(draftIDs[i])
		p := draftProbs[i*d+tok]
		q := targetProbs[i*d+tok]
		u := stream.Uniform()
		if u*float64(p) < float64(q) {
			res.OutIDs[i] = draftIDs[i]
			res.Accepted++
			continue
		}
		pos = i
		break
	}
	res.Emitted = pos

	// Continue drawing-and-counting past the rejection point purely for
	// the acceptance-rate statistic; these draws never touch res.OutIDs.
	for i := pos + 1; i < k; i++ {
		tok := int(draftIDs[i])
		p := draftProbs[i*d+tok]
		q := targetProbs[i*d+tok]
		u := stream.Uniform()
		if u*float64(p) < float64(q) {
			res.Accepted++
		}
	}

	residual := make([]float32, d)
	var total float32
	if pos == k {
		res.Bonus = true
		copy(residual, targetProbs[pos*d:pos*d+d])
		for _, v := range residual {
			total += v
		}
	} else {
		draftRow := draftProbs[pos*d : pos*d+d]
		targetRow := targetProbs[pos*d : pos*d+d]
		for j := 0; j < d; j++ {
			r := targetRow[j] - draftRow[j]
			if r < 0 {
				r = 0
			}
			residual[j] = r
			total += r
		}
	}

	if total <= 0 {
		res.OutIDs[pos] = int32(d - 1)
	} else {
		u := stream.UniformRange(float64(total))
		res.OutIDs[pos] = int32(sampleOnePass(residual, func(x float32) bool { return x > 0 }, u, deterministic))
	}

	return res
}
