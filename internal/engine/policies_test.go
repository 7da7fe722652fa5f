package engine

import (
	"math"
	"testing"

	"github.com/quarrel-sampling/sampler/internal/rng"
)

func TestTopKEqualsArgmaxWhenKIsOne(t *testing.T) {
	row := []float32{0.1, 0.2, 0.4, 0.2, 0.1}
	for seed := uint64(0); seed < 20; seed++ {
		stream := rng.NewStream(seed, 0, 0)
		got := TopK(stream, row, 1, false)
		if got != 2 {
			t.Fatalf("seed %d: TopK(k=1) = %d, want 2 (argmax)", seed, got)
		}
	}
}

func TestTopPFullMassEqualsMultinomialSupport(t *testing.T) {
	row := []float32{0.1, 0.2, 0.4, 0.2, 0.1}
	stream := rng.NewStream(1, 0, 0)
	for i := 0; i < 50; i++ {
		got := TopP(stream, row, 1.0, false)
		if row[got] <= 0 {
			t.Fatalf("TopP(top_p=1) returned zero-mass index %d", got)
		}
	}
}

func TestTopPExcludesTailMass(t *testing.T) {
	// Four-way uniform split; top_p=0.5 should only ever surface the two
	// smallest-index entries (0.25 each), since both orderings of a tie
	// bias toward the lowest index under the sampler's tie-break.
	row := []float32{0.25, 0.25, 0.25, 0.25}
	stream := rng.NewStream(7, 0, 0)
	for i := 0; i < 200; i++ {
		got := TopP(stream, row, 0.5, false)
		if got != 0 && got != 1 {
			t.Fatalf("TopP(top_p=0.5) on uniform-4 returned index %d, want 0 or 1", got)
		}
	}
}

func TestMinPPivotAndSelection(t *testing.T) {
	row := []float32{0.9, 0.05, 0.05}
	stream := rng.NewStream(3, 0, 0)
	for i := 0; i < 50; i++ {
		got := MinP(stream, row, 0.5, false)
		if got != 0 {
			t.Fatalf("MinP(min_p=0.5) on [0.9,0.05,0.05] = %d, want 0", got)
		}
	}
}

func TestMultinomialOnPointMassRow(t *testing.T) {
	row := []float32{0, 0, 1, 0, 0, 0}
	stream := rng.NewStream(9, 0, 0)
	for _, policy := range []func() int{
		func() int { return Multinomial(stream, row, false) },
		func() int { return TopK(stream, row, 2, false) },
		func() int { return TopP(stream, row, 0.9, false) },
	} {
		if got := policy(); got != 2 {
			t.Fatalf("policy on point-mass row = %d, want 2", got)
		}
	}
}

func TestTopKTopPCombinedRespectsBothGoals(t *testing.T) {
	row := []float32{0.5, 0.2, 0.15, 0.1, 0.05}
	stream := rng.NewStream(42, 0, 0)
	for i := 0; i < 100; i++ {
		got := TopKTopP(stream, row, 2, 0.3, false)
		if got != 0 && got != 1 {
			t.Fatalf("TopKTopP(k=2,top_p=0.3) = %d, want 0 or 1", got)
		}
	}
}

func TestDeterministicSamplingIsBitIdentical(t *testing.T) {
	row := make([]float32, 4000)
	for i := range row {
		row[i] = float32(1.0 / float64(len(row)))
	}
	run := func() int {
		stream := rng.NewStream(123, 5, 77)
		return TopP(stream, row, 0.3, true)
	}
	first := run()
	for i := 0; i < 10; i++ {
		if got := run(); got != first {
			t.Fatalf("deterministic TopP run %d = %d, want %d", i, got, first)
		}
	}
}

func TestPermutationInvarianceOfRowIndices(t *testing.T) {
	rowA := []float32{0.1, 0.6, 0.3}
	rowB := []float32{0.3, 0.1, 0.6}
	seed, offset := uint64(55), uint64(9)

	// The same logical row (2) is drawn over two layouts holding the same
	// values in a different lane order. The PRNG stream is keyed by the
	// logical row index in both calls, and with top-k=1 both must land on
	// the same value (the 0.6 entry) wherever it is stored.
	streamA := rng.NewStream(seed, 2, offset)
	gotA := TopK(streamA, rowA, 1, false)

	streamB := rng.NewStream(seed, 2, offset)
	gotB := TopK(streamB, rowB, 1, false)

	if rowA[gotA] != rowB[gotB] {
		t.Fatalf("permutation invariance broke: rowA[%d]=%v rowB[%d]=%v", gotA, rowA[gotA], gotB, rowB[gotB])
	}
}

func TestArgMaxFallbackAllNaN(t *testing.T) {
	row := []float32{float32(math.NaN()), float32(math.NaN())}
	if got := ArgMaxFallback(row); got != 0 {
		t.Fatalf("ArgMaxFallback(all NaN) = %d, want 0", got)
	}
}

func TestArgMaxFallbackSkipsNaN(t *testing.T) {
	row := []float32{float32(math.NaN()), 3, float32(math.NaN()), 9, 1}
	if got := ArgMaxFallback(row); got != 3 {
		t.Fatalf("ArgMaxFallback = %d, want 3", got)
	}
}
