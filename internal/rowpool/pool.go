// Package rowpool dispatches one batched kernel call across a fixed
// number of goroutines, each owning a contiguous range of batch rows —
// the CPU analogue of "one worker group per batch row" from spec.md §2.
// The chunking strategy is ported directly from the teacher's
// internal/cpu.Context.LinearF32/RMSNorm/MatMul: split the outer
// dimension into runtime.GOMAXPROCS(0) contiguous ranges and run each
// range in its own goroutine, joined with a sync.WaitGroup.
package rowpool

import (
	"context"
	"runtime"
	"sync"
)

// RowFunc processes one physical batch row. It must not touch any other
// row's output slot — per spec.md §5, rows are independent and there is
// no cross-row ordering.
type RowFunc func(row int)

// Run splits [0, batch) into contiguous chunks and calls fn once per row,
// concurrently across chunks. It returns ctx.Err() without calling fn if
// the context is already cancelled. Otherwise every chunk's goroutine is
// started and checks ctx before each row: once cancellation is observed it
// skips its remaining rows, while a row whose fn has already begun runs to
// completion, matching "partially executed groups are not roll-backable"
// from spec.md §5. Run then returns ctx.Err().
func Run(ctx context.Context, batch int, fn RowFunc) error {
	if batch <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > batch {
		workers = batch
	}
	if workers < 1 {
		workers = 1
	}

	chunk := (batch + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < batch; start += chunk {
		end := start + chunk
		if end > batch {
			end = batch
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for r := lo; r < hi; r++ {
				if ctx.Err() != nil {
					return
				}
				fn(r)
			}
		}(start, end)
	}
	wg.Wait()
	return ctx.Err()
}
