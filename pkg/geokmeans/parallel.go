package geokmeans

import "golang.org/x/sync/errgroup"

// minChunk keeps goroutine overhead from dominating small inputs.
const minChunk = 256

// parallelFor runs fn over [0, n) split into contiguous ranges. Ranges are
// disjoint, so fn may write per-index state without locking.
func parallelFor(workers, n int, fn func(from, to int)) {
	if workers <= 1 || n <= minChunk {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for from := 0; from < n; from += chunk {
		to := min(from+chunk, n)
		g.Go(func() error {
			fn(from, to)
			return nil
		})
	}
	_ = g.Wait()
}
