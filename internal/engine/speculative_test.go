package engine

import (
	"testing"

	"github.com/quarrel-sampling/sampler/internal/rng"
)

// flatDistribution returns a length-d row with uniform mass 1/d, used to
// build draft/target probability rows for the speculative decoding tests
// below without needing a full softmax pipeline.
func flatDistribution(d int) []float32 {
	row := make([]float32, d)
	for i := range row {
		row[i] = 1.0 / float32(d)
	}
	return row
}

func TestSpeculativeAcceptsWhenTargetDominatesDraft(t *testing.T) {
	const d = 8
	draftIDs := []int32{1, 2, 3}
	draftProbs := make([]float32, 3*d)
	targetProbs := make([]float32, 4*d) // K+1 rows: the extra row is the bonus draw.
	for i := 0; i < 3; i++ {
		copy(draftProbs[i*d:i*d+d], flatDistribution(d))
		// Target assigns near-certainty to the drafted token, so u*p < q
		// holds for essentially every u in [0,1).
		for j := 0; j < d; j++ {
			targetProbs[i*d+j] = 0.01 / float32(d-1)
		}
		targetProbs[i*d+int(draftIDs[i])] = 0.99
	}
	copy(targetProbs[3*d:4*d], flatDistribution(d))

	stream := rng.NewStream(1, 0, 0)
	res := ChainSpeculativeSamplingRow(stream, draftProbs, targetProbs, draftIDs, d, false)

	if res.Emitted != 3 {
		t.Fatalf("Emitted = %d, want 3 (all drafts dominated by target)", res.Emitted)
	}
	if !res.Bonus {
		t.Fatal("expected a bonus token when every draft is accepted")
	}
	for i := 0; i < 3; i++ {
		if res.OutIDs[i] != draftIDs[i] {
			t.Fatalf("OutIDs[%d] = %d, want draft id %d", i, res.OutIDs[i], draftIDs[i])
		}
	}
	if res.OutIDs[3] < 0 || int(res.OutIDs[3]) >= d {
		t.Fatalf("bonus slot OutIDs[3] = %d, want a valid token id", res.OutIDs[3])
	}
	if res.Accepted < res.Emitted {
		t.Fatalf("Accepted (%d) < Emitted (%d)", res.Accepted, res.Emitted)
	}
}

func TestSpeculativeRejectsWhenDraftDominatesTarget(t *testing.T) {
	const d = 8
	draftIDs := []int32{1, 2, 3}
	draftProbs := make([]float32, 3*d)
	targetProbs := make([]float32, 4*d) // K+1 rows; the extra row is unused on this rejection path.
	for i := 0; i < 3; i++ {
		for j := 0; j < d; j++ {
			draftProbs[i*d+j] = 0.01 / float32(d-1)
			targetProbs[i*d+j] = 1.0 / float32(d)
		}
		draftProbs[i*d+int(draftIDs[i])] = 0.99
	}
	copy(targetProbs[3*d:4*d], flatDistribution(d))

	stream := rng.NewStream(1, 0, 0)
	res := ChainSpeculativeSamplingRow(stream, draftProbs, targetProbs, draftIDs, d, false)

	if res.Bonus {
		t.Fatal("draft dominating target should not reach the bonus case")
	}
	if res.Emitted >= 3 {
		t.Fatalf("Emitted = %d, expected an early rejection", res.Emitted)
	}
	for i := res.Emitted + 1; i <= 3; i++ {
		if res.OutIDs[i] != -1 {
			t.Fatalf("OutIDs[%d] = %d, want -1 sentinel", i, res.OutIDs[i])
		}
	}
	if res.OutIDs[res.Emitted] == -1 {
		t.Fatalf("resample slot OutIDs[%d] left as sentinel", res.Emitted)
	}
}

func TestSpeculativeAcceptedNeverLessThanEmitted(t *testing.T) {
	const d = 16
	draftIDs := []int32{0, 1, 2, 3, 4}
	draftProbs := make([]float32, 5*d)
	targetProbs := make([]float32, 6*d) // K+1 rows.
	for i := 0; i < 5; i++ {
		copy(draftProbs[i*d:i*d+d], flatDistribution(d))
		copy(targetProbs[i*d:i*d+d], flatDistribution(d))
	}
	copy(targetProbs[5*d:6*d], flatDistribution(d))

	for seed := uint64(0); seed < 30; seed++ {
		stream := rng.NewStream(seed, 0, 0)
		res := ChainSpeculativeSamplingRow(stream, draftProbs, targetProbs, draftIDs, d, false)
		if res.Accepted < res.Emitted {
			t.Fatalf("seed %d: Accepted (%d) < Emitted (%d)", seed, res.Accepted, res.Emitted)
		}
	}
}
