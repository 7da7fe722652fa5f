package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/quarrel-sampling/sampler/internal/logger"
	"github.com/quarrel-sampling/sampler/pkg/sampling"
)

var (
	batch  = flag.Int("batch", 32, "batch size")
	vocab  = flag.Int("vocab", 32000, "vocabulary size (row length d)")
	topK   = flag.Int("topk", 40, "top-k limit for the throughput benchmark")
	trials = flag.Int("trials", 1_000_000, "number of trials for the statistical-correctness check")
	mode   = flag.String("mode", "throughput", "throughput|correctness")
	logLvl = flag.String("log-level", "warn", "debug|info|warn|error")
)

func main() {
	flag.Parse()
	logger.Setup(*logLvl, "console")

	switch *mode {
	case "throughput":
		runThroughput()
	case "correctness":
		runCorrectness()
	default:
		fmt.Fprintf(os.Stderr, "sample-bench: unknown mode %q\n", *mode)
		os.Exit(1)
	}
}

// runThroughput measures batched top-k sampling throughput over a
// synthetic uniform batch, the CPU analogue of the teacher's
// quarrel_bench token-per-second measurement.
func runThroughput() {
	probs := make([]float32, *batch**vocab)
	for i := range probs {
		probs[i] = 1.0 / float32(*vocab)
	}

	cfg := sampling.DefaultConfig()
	cfg.PhiloxSeed = 1

	start := time.Now()
	const iterations = 50
	for i := 0; i < iterations; i++ {
		cfg.PhiloxOffset = uint64(i)
		if _, err := sampling.TopKSamplingFromProb(context.Background(), probs, nil, *batch, *topK, *vocab, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "sample-bench: %v\n", err)
			os.Exit(1)
		}
	}
	elapsed := time.Since(start)
	rowsPerSec := float64(*batch*iterations) / elapsed.Seconds()

	fmt.Printf("batch=%d vocab=%d topk=%d\n", *batch, *vocab, *topK)
	fmt.Printf("%d iterations in %v (%.1f rows/sec)\n", iterations, elapsed, rowsPerSec)
}

// runCorrectness implements spec.md §8 property 11: over N trials with a
// fixed distribution, the observed frequency of each retained token
// should match the theoretical truncated-renormalized probability within
// 3 standard deviations.
func runCorrectness() {
	probs := []float32{0.4, 0.3, 0.2, 0.07, 0.03}
	const k = 3
	want := renormalizeTopK(probs, k)

	counts := make([]int, len(probs))
	cfg := sampling.DefaultConfig()
	cfg.PhiloxSeed = 42

	batchSize := 1000
	for done := 0; done < *trials; done += batchSize {
		n := batchSize
		if done+n > *trials {
			n = *trials - done
		}
		flat := make([]float32, n*len(probs))
		for i := 0; i < n; i++ {
			copy(flat[i*len(probs):(i+1)*len(probs)], probs)
		}
		cfg.PhiloxOffset = uint64(done)
		out, err := sampling.TopKSamplingFromProb(context.Background(), flat, nil, n, k, len(probs), cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sample-bench: %v\n", err)
			os.Exit(1)
		}
		for _, id := range out {
			counts[id]++
		}
	}

	fmt.Printf("trials=%d top_k=%d\n", *trials, k)
	for i, p := range want {
		observed := float64(counts[i]) / float64(*trials)
		sigma := math.Sqrt(p*(1-p)/float64(*trials))
		withinBound := math.Abs(observed-p) <= 3*sigma
		fmt.Printf("token %d: want=%.4f observed=%.4f sigma=%.5f within_3sigma=%v\n", i, p, observed, sigma, withinBound)
	}
}

func renormalizeTopK(probs []float32, k int) []float64 {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < len(idx); i++ {
		for j := i + 1; j < len(idx); j++ {
			if probs[idx[j]] > probs[idx[i]] {
				idx[i], idx[j] = idx[j], idx[i]
			}
		}
	}
	var sum float64
	for i := 0; i < k && i < len(idx); i++ {
		sum += float64(probs[idx[i]])
	}
	want := make([]float64, len(probs))
	for i := 0; i < k && i < len(idx); i++ {
		want[idx[i]] = float64(probs[idx[i]]) / sum
	}
	return want
}
