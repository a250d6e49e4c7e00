package geokmeans

import "math"

// Coordinate bounds in degrees.
const (
	MinLon, MaxLon = -180.0, 180.0
	MinLat, MaxLat = -90.0, 90.0
)

// checkPoint validates one [lon, lat] row.
func checkPoint(field string, row int, p []float64) error {
	if len(p) != 2 {
		return invalidAt(field, row, -1, "expected 2 columns (longitude, latitude), got %d", len(p))
	}
	for col, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalidAt(field, row, col, "value %v is not finite", v)
		}
	}
	if p[0] < MinLon || p[0] > MaxLon {
		return invalidAt(field, row, 0, "longitude %v outside [-180, 180]", p[0])
	}
	if p[1] < MinLat || p[1] > MaxLat {
		return invalidAt(field, row, 1, "latitude %v outside [-90, 90]", p[1])
	}
	return nil
}

// checkMatrix validates the sample matrix and converts it to points.
func checkMatrix(x [][]float64) ([]Point, error) {
	if len(x) == 0 {
		return nil, invalid("X", "no samples")
	}
	pts := make([]Point, len(x))
	for i, row := range x {
		if err := checkPoint("X", i, row); err != nil {
			return nil, err
		}
		pts[i] = Point{row[0], row[1]}
	}
	return pts, nil
}

// checkWeights validates sample weights, defaulting to 1.0 per sample.
func checkWeights(w []float64, n int) ([]float64, error) {
	if w == nil {
		out := make([]float64, n)
		for i := range out {
			out[i] = 1
		}
		return out, nil
	}
	if len(w) != n {
		return nil, invalid("weights", "got %d weights for %d samples", len(w), n)
	}
	var sum float64
	for i, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, invalidAt("weights", i, -1, "value %v is not finite", v)
		}
		if v < 0 {
			return nil, invalidAt("weights", i, -1, "negative weight %v", v)
		}
		sum += v
	}
	if sum <= 0 {
		return nil, invalid("weights", "weights sum to zero")
	}
	out := make([]float64, n)
	copy(out, w)
	return out, nil
}

// Validate checks x and weights as Fit would for n_clusters=k, without
// clustering anything. Callers use it to reject a request before recording
// any state for it.
func Validate(x [][]float64, weights []float64, k int) error {
	_, _, err := checkSamples(x, weights, k)
	return err
}

// checkSamples validates a Fit input and returns the points and the
// effective weights.
func checkSamples(x [][]float64, weights []float64, k int) ([]Point, []float64, error) {
	if k < 1 {
		return nil, nil, invalid("n_clusters", "must be >= 1, got %d", k)
	}
	pts, err := checkMatrix(x)
	if err != nil {
		return nil, nil, err
	}
	w, err := checkWeights(weights, len(pts))
	if err != nil {
		return nil, nil, err
	}
	if len(pts) < k {
		return nil, nil, invalid("X", "n_samples=%d should be >= n_clusters=%d", len(pts), k)
	}
	return pts, w, nil
}
