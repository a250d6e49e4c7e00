package geokmeans

import (
	"math"
	"math/rand/v2"
	"sort"
)

// kmeansPlusPlus picks k centers from x (projected space) with greedy
// k-means++. Each step draws 2+ln(k) candidates proportional to their weighted
// potential and keeps the one that lowers total potential the most.
//
// The potential is Metric.Cost of the distance to the closest chosen center.
// For Haversine that is the plain distance rather than its square, which
// departs from textbook k-means++.
func kmeansPlusPlus(m Metric, x []Point, w []float64, k int, rng *rand.Rand) []Point {
	n := len(x)
	centers := make([]Point, 0, k)
	nLocalTrials := 2 + int(math.Log(float64(k)))

	first := weightedIndex(w, rng)
	centers = append(centers, x[first])

	closest := make([]float64, n)
	var pot float64
	for i, p := range x {
		closest[i] = m.Cost(m.Distance(x[first], p))
		pot += w[i] * closest[i]
	}

	cum := make([]float64, n)
	cand := make([]float64, n)
	best := make([]float64, n)
	for c := 1; c < k; c++ {
		var acc float64
		for i := range closest {
			acc += w[i] * closest[i]
			cum[i] = acc
		}

		bestIdx, bestPot := -1, math.Inf(1)
		for t := 0; t < nLocalTrials; t++ {
			v := rng.Float64() * pot
			idx := sort.SearchFloat64s(cum, v)
			if idx >= n {
				idx = n - 1
			}

			var candPot float64
			for i, p := range x {
				d := m.Cost(m.Distance(x[idx], p))
				if d > closest[i] {
					d = closest[i]
				}
				cand[i] = d
				candPot += w[i] * d
			}
			if candPot < bestPot {
				bestIdx, bestPot = idx, candPot
				copy(best, cand)
			}
		}

		centers = append(centers, x[bestIdx])
		pot = bestPot
		copy(closest, best)
	}
	return centers
}

// randomCenters draws k distinct samples without replacement, each draw
// proportional to weight among the samples not yet chosen.
func randomCenters(x []Point, w []float64, k int, rng *rand.Rand) ([]Point, error) {
	positive := 0
	for _, v := range w {
		if v > 0 {
			positive++
		}
	}
	if positive < k {
		return nil, invalid("weights", "random init needs %d samples with positive weight, got %d", k, positive)
	}

	remaining := make([]float64, len(w))
	copy(remaining, w)
	centers := make([]Point, 0, k)
	for len(centers) < k {
		idx := weightedIndex(remaining, rng)
		centers = append(centers, x[idx])
		remaining[idx] = 0
	}
	return centers, nil
}

// weightedIndex samples an index with probability proportional to w.
// Zero-weight entries are never chosen while any weight is positive.
func weightedIndex(w []float64, rng *rand.Rand) int {
	var total float64
	for _, v := range w {
		total += v
	}
	v := rng.Float64() * total
	var acc float64
	last := 0
	for i, wi := range w {
		if wi <= 0 {
			continue
		}
		acc += wi
		last = i
		if acc > v {
			return i
		}
	}
	return last
}
