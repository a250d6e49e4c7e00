package geokmeans

import (
	"context"
	"math"
	"slices"
	"sort"

	"github.com/rotisserie/eris"
)

// workspace holds the scratch state of one restart. It is created by
// newWorkspace, mutated in place by each step and dropped when the restart
// returns; nothing in it is shared between restarts.
type workspace struct {
	m       Metric
	x       []Point // projected samples, read-only
	w       []float64
	k       int
	workers int

	centers    []Point
	newCenters []Point
	labels     []int
	prevLabels []int

	upper   []float64 // n: distance to the assigned center
	lower   []float64 // n*k: lower bound on distance to each center
	half    []float64 // k*k: half distance between centers
	nearest []float64 // k: half distance to the closest other center
	shift   []float64 // k: how far each center moved in the last update

	sums    []Point
	weights []float64
}

func newWorkspace(m Metric, x []Point, w []float64, centers []Point, workers int) *workspace {
	n, k := len(x), len(centers)
	ws := &workspace{
		m:          m,
		x:          x,
		w:          w,
		k:          k,
		workers:    workers,
		centers:    slices.Clone(centers),
		newCenters: make([]Point, k),
		labels:     make([]int, n),
		prevLabels: make([]int, n),
		upper:      make([]float64, n),
		lower:      make([]float64, n*k),
		half:       make([]float64, k*k),
		nearest:    make([]float64, k),
		shift:      make([]float64, k),
		sums:       make([]Point, k),
		weights:    make([]float64, k),
	}
	return ws
}

// initBounds assigns every sample to its nearest center, skipping centers the
// half-distance table proves cannot be closer.
func (ws *workspace) initBounds() {
	centerHalfDistances(ws.m, ws.centers, ws.half, ws.nearest)
	k := ws.k
	parallelFor(ws.workers, len(ws.x), func(from, to int) {
		for i := from; i < to; i++ {
			p := ws.x[i]
			lower := ws.lower[i*k : (i+1)*k]
			clear(lower)

			label := 0
			ub := ws.m.Distance(p, ws.centers[0])
			lower[0] = ub
			for j := 1; j < k; j++ {
				if ub > ws.half[label*k+j] {
					d := ws.m.Distance(p, ws.centers[j])
					lower[j] = d
					if d < ub {
						label, ub = j, d
					}
				}
			}
			ws.labels[i] = label
			ws.upper[i] = ub
		}
	})
}

// assign is the Elkan assignment step against ws.centers. A sample is only
// compared to a center when its bounds cannot rule that center out.
func (ws *workspace) assign() {
	k := ws.k
	parallelFor(ws.workers, len(ws.x), func(from, to int) {
		for i := from; i < to; i++ {
			label := ws.labels[i]
			ub := ws.upper[i]
			if ws.nearest[label] >= ub {
				continue
			}

			p := ws.x[i]
			lower := ws.lower[i*k : (i+1)*k]
			tight := false
			for j := 0; j < k; j++ {
				if j == label || ub <= lower[j] || ub <= ws.half[label*k+j] {
					continue
				}
				if !tight {
					ub = ws.m.Distance(p, ws.centers[label])
					lower[label] = ub
					tight = true
				}
				if ub > lower[j] || ub > ws.half[label*k+j] {
					d := ws.m.Distance(p, ws.centers[j])
					lower[j] = d
					if d < ub {
						label, ub = j, d
					}
				}
			}
			ws.labels[i] = label
			ws.upper[i] = ub
		}
	})
}

// updateCenters recomputes each center as the weighted mean of its samples,
// relocates empty clusters, records per-center shifts and loosens the bounds
// by those shifts.
func (ws *workspace) updateCenters() {
	k := ws.k
	clear(ws.sums)
	clear(ws.weights)
	for i, p := range ws.x {
		l := ws.labels[i]
		ws.sums[l][0] += ws.w[i] * p[0]
		ws.sums[l][1] += ws.w[i] * p[1]
		ws.weights[l] += ws.w[i]
	}

	ws.relocateEmpty()

	for j := 0; j < k; j++ {
		if ws.weights[j] > 0 {
			ws.newCenters[j] = Point{ws.sums[j][0] / ws.weights[j], ws.sums[j][1] / ws.weights[j]}
		} else {
			ws.newCenters[j] = ws.centers[j]
		}
		ws.shift[j] = ws.m.Distance(ws.centers[j], ws.newCenters[j])
	}

	parallelFor(ws.workers, len(ws.x), func(from, to int) {
		for i := from; i < to; i++ {
			ws.upper[i] += ws.shift[ws.labels[i]]
			lower := ws.lower[i*k : (i+1)*k]
			for j := range lower {
				lower[j] = math.Max(lower[j]-ws.shift[j], 0)
			}
		}
	})

	ws.centers, ws.newCenters = ws.newCenters, ws.centers
	centerHalfDistances(ws.m, ws.centers, ws.half, ws.nearest)
}

// relocateEmpty seeds every zero-weight cluster with one of the samples
// farthest from its current center, moving that sample's weight over.
func (ws *workspace) relocateEmpty() {
	var empty []int
	for j, v := range ws.weights {
		if v == 0 {
			empty = append(empty, j)
		}
	}
	if len(empty) == 0 {
		return
	}

	n := len(ws.x)
	dist := make([]float64, n)
	order := make([]int, n)
	for i, p := range ws.x {
		dist[i] = ws.m.Distance(p, ws.centers[ws.labels[i]])
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return dist[order[a]] > dist[order[b]] })

	taken := 0
	for _, j := range empty {
		// Skip zero-weight samples: they would leave the cluster empty again.
		for taken < n && ws.w[order[taken]] == 0 {
			taken++
		}
		if taken >= n {
			return
		}
		far := order[taken]
		taken++

		old := ws.labels[far]
		ws.sums[old][0] -= ws.w[far] * ws.x[far][0]
		ws.sums[old][1] -= ws.w[far] * ws.x[far][1]
		ws.weights[old] -= ws.w[far]

		ws.sums[j] = Point{ws.w[far] * ws.x[far][0], ws.w[far] * ws.x[far][1]}
		ws.weights[j] = ws.w[far]
	}
}

// shiftTotal is the sum of squared center shifts of the last update.
func (ws *workspace) shiftTotal() float64 {
	var s float64
	for _, v := range ws.shift {
		s += v * v
	}
	return s
}

// inertia is the weighted cost of every sample against its assigned center,
// computed exactly rather than from bounds.
func (ws *workspace) inertia() float64 {
	var total float64
	for i, p := range ws.x {
		total += ws.w[i] * ws.m.Cost(ws.m.Distance(p, ws.centers[ws.labels[i]]))
	}
	return total
}

// run performs the refinement loop and returns the number of iterations and
// whether the labels stopped changing.
func (ws *workspace) run(ctx context.Context, maxIter int, tol float64) (int, bool, error) {
	ws.initBounds()
	// No previous assignment yet: the first iteration can never converge strictly.
	for i := range ws.prevLabels {
		ws.prevLabels[i] = -1
	}

	strict := false
	iter := 0
	for iter < maxIter {
		if err := ctx.Err(); err != nil {
			return iter, false, eris.Wrapf(err, "geokmeans: refine iteration %d", iter)
		}
		ws.assign()
		ws.updateCenters()
		iter++

		if slices.Equal(ws.labels, ws.prevLabels) {
			strict = true
			break
		}
		if ws.shiftTotal() <= tol {
			break
		}
		copy(ws.prevLabels, ws.labels)
	}

	if !strict {
		// Labels must match the centers being returned.
		ws.assign()
	}
	return iter, strict, nil
}
