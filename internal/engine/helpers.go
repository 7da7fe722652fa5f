package engine

import "math"

// ApplyRepetitionPenalty divides (for positive logits) or multiplies (for
// non-positive logits) every previously-seen token's logit by penalty,
// considering only the most recent window entries of history. This is
// outside the core policy kernels — it is an opt-in pre-processing step a
// caller may run on logits before softmax-converting them into the probs
// the policy kernels consume, carried forward from the teacher's sampler
// because the distilled policy spec never mentions repetition control but
// a serving stack built on these kernels needs it.
func ApplyRepetitionPenalty(logits []float32, history []int32, window int, penalty float64) {
	if len(history) == 0 || penalty <= 1.0 {
		return
	}
	start := 0
	if window > 0 && len(history) > window {
		start = len(history) - window
	}

	seen := make(map[int32]struct{})
	for _, id := range history[start:] {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if int(id) < 0 || int(id) >= len(logits) {
			continue
		}
		v := logits[id]
		if v > 0 {
			logits[id] = v / float32(penalty)
		} else {
			logits[id] = v * float32(penalty)
		}
	}
}

// AdaptiveTemperature scales a base temperature by the row's Shannon
// entropy: high-entropy (flat) rows are warmed toward more exploration,
// low-entropy (peaked) rows are sharpened further. Ported from the
// teacher's calculateAdaptiveTemperature; kept as an optional helper a
// caller can run before building probs, not something the policy kernels
// invoke implicitly.
func AdaptiveTemperature(logits []float32, baseTemp float64) float64 {
	if len(logits) == 0 {
		return baseTemp
	}

	maxLogit := logits[0]
	sum := 0.0
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	for _, v := range logits {
		sum += math.Exp(float64(v - maxLogit))
	}

	entropy := 0.0
	for _, v := range logits {
		p := math.Exp(float64(v-maxLogit)) / sum
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}

	switch {
	case entropy > 2.0:
		return baseTemp * 1.5
	case entropy < 0.5:
		return math.Max(baseTemp*0.5, 0.1)
	default:
		return baseTemp
	}
}

// ArgMaxFallback returns the index of the largest finite logit, treating
// NaN as smaller than any finite value. If every entry is NaN it returns
// 0. This is the degenerate-input escape hatch the policy kernels don't
// need (they already have the d-1 sentinel contract) but a caller
// assembling a full decode loop around them does, when it wants a
// guaranteed-sane token for a row that failed validation upstream.
func ArgMaxFallback(logits []float32) int {
	if len(logits) == 0 {
		return 0
	}
	maxIdx := 0
	maxVal := logits[0]
	sawFinite := false
	for i, v := range logits {
		if v != v { // NaN
			continue
		}
		sawFinite = true
		if !(maxVal == maxVal) || v > maxVal {
			maxVal = v
			maxIdx = i
		}
	}
	if !sawFinite {
		return 0
	}
	return maxIdx
}
