package geokmeans

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/geocluster/pkg/haversine"
)

// Point is a [longitude, latitude] pair in degrees.
type Point [2]float64

// Lon returns the longitude.
func (p Point) Lon() float64 { return p[0] }

// Lat returns the latitude.
func (p Point) Lat() float64 { return p[1] }

// Metric is the distance strategy the refinement loop runs on. Points are
// projected into the metric's working space once per Fit; means, shifts and
// bounds are all computed in that space and centers are unprojected on output.
type Metric interface {
	Name() string
	// Project maps an input point into the space Distance operates on.
	Project(p Point) Point
	// Unproject is the inverse of Project.
	Unproject(p Point) Point
	// Distance must satisfy the triangle inequality; Elkan pruning relies on it.
	Distance(a, b Point) float64
	// Cost converts a distance into its contribution to inertia and to the
	// seeding potential.
	Cost(d float64) float64
}

// Haversine measures great-circle distance on the unit sphere. Distances are
// in radians. Cost is linear in distance, not squared.
type Haversine struct{}

// Name returns "haversine".
func (Haversine) Name() string { return "haversine" }

// Project converts degrees to radians.
func (Haversine) Project(p Point) Point {
	return Point{haversine.ToRadians(p[0]), haversine.ToRadians(p[1])}
}

// Unproject converts radians back to degrees.
func (Haversine) Unproject(p Point) Point {
	return Point{haversine.ToDegrees(p[0]), haversine.ToDegrees(p[1])}
}

// Distance is the central angle between two projected points.
func (Haversine) Distance(a, b Point) float64 {
	return haversine.Distance(a[0], a[1], b[0], b[1])
}

// Cost returns d unchanged.
func (Haversine) Cost(d float64) float64 { return d }

// Euclidean is planar distance on raw degrees, with the usual squared cost.
type Euclidean struct{}

// Name returns "euclidean".
func (Euclidean) Name() string { return "euclidean" }

// Project is the identity.
func (Euclidean) Project(p Point) Point { return p }

// Unproject is the identity.
func (Euclidean) Unproject(p Point) Point { return p }

// Distance is the straight-line distance in degrees.
func (Euclidean) Distance(a, b Point) float64 {
	return floats.Distance(a[:], b[:], 2)
}

// Cost returns d squared.
func (Euclidean) Cost(d float64) float64 { return d * d }

// ParseMetric resolves a metric by name.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "haversine", "great-circle":
		return Haversine{}, nil
	case "euclidean", "l2":
		return Euclidean{}, nil
	default:
		return nil, invalid("metric", "unknown metric %q", name)
	}
}

// centerHalfDistances fills half (k*k) with d(c_i, c_j)/2 and nearest (k) with
// the half distance from each center to its closest other center.
func centerHalfDistances(m Metric, centers []Point, half, nearest []float64) {
	k := len(centers)
	for i := 0; i < k; i++ {
		half[i*k+i] = 0
		for j := i + 1; j < k; j++ {
			d := m.Distance(centers[i], centers[j]) / 2
			half[i*k+j] = d
			half[j*k+i] = d
		}
	}
	for i := 0; i < k; i++ {
		best := math.Inf(1)
		for j := 0; j < k; j++ {
			if j != i && half[i*k+j] < best {
				best = half[i*k+j]
			}
		}
		nearest[i] = best
	}
}

// nearestCenter returns the index of the closest center and its distance.
// Ties resolve to the lowest index.
func nearestCenter(m Metric, p Point, centers []Point) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for j, c := range centers {
		if d := m.Distance(p, c); d < bestDist {
			best, bestDist = j, d
		}
	}
	return best, bestDist
}
