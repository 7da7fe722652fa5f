package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/quarrel-sampling/sampler/internal/logger"
	"github.com/quarrel-sampling/sampler/pkg/sampling"
)

func main() {
	probsFlag := flag.String("probs", "0.1,0.2,0.4,0.2,0.1", "comma-separated row probabilities")
	policy := flag.String("policy", "top_k", "multinomial|top_k|top_p|min_p|top_k_top_p")
	topK := flag.Int("topk", 2, "top-k limit")
	topP := flag.Float64("topp", 0.9, "top-p mass target")
	minP := flag.Float64("minp", 0.1, "min-p ratio")
	seed := flag.Uint64("seed", 1, "philox seed")
	offset := flag.Uint64("offset", 0, "philox offset")
	deterministic := flag.Bool("deterministic", false, "use the fixed-tree deterministic scan")
	logLevel := flag.String("log-level", "info", "debug|info|warn|error")
	flag.Parse()

	logger.Setup(*logLevel, "console")

	probs, err := parseProbs(*probsFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sample-demo: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== quarrel-sampling demo ===\n")
	fmt.Printf("Go Version: %s, NumCPU: %d\n", runtime.Version(), runtime.NumCPU())
	fmt.Printf("d=%d, policy=%s, seed=%d, offset=%d, deterministic=%v\n\n", len(probs), *policy, *seed, *offset, *deterministic)

	cfg := sampling.DefaultConfig()
	cfg.Deterministic = *deterministic
	cfg.PhiloxSeed = *seed
	cfg.PhiloxOffset = *offset

	ctx := context.Background()
	var out []int32

	switch *policy {
	case "multinomial":
		out, err = sampling.SamplingFromProb(ctx, probs, 1, len(probs), cfg)
	case "top_k":
		out, err = sampling.TopKSamplingFromProb(ctx, probs, nil, 1, *topK, len(probs), cfg)
	case "top_p":
		out, err = sampling.TopPSamplingFromProb(ctx, probs, nil, 1, len(probs), float32(*topP), cfg)
	case "min_p":
		out, err = sampling.MinPSamplingFromProb(ctx, probs, nil, 1, len(probs), float32(*minP), cfg)
	case "top_k_top_p":
		out, err = sampling.TopKTopPSamplingFromProb(ctx, probs, nil, nil, 1, len(probs), *topK, float32(*topP), cfg)
	default:
		fmt.Fprintf(os.Stderr, "sample-demo: unknown policy %q\n", *policy)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sample-demo: sampling failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("sampled index: %d (p=%v)\n", out[0], probs[out[0]])
}

func parseProbs(s string) ([]float32, error) {
	fields := strings.Split(s, ",")
	probs := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid probability %q: %w", f, err)
		}
		probs[i] = float32(v)
	}
	return probs, nil
}
