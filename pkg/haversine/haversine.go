// Package haversine computes great-circle distances on the unit sphere.
//
// All distances are returned in radians. Multiply by EarthRadiusKM or
// EarthRadiusMeters (or call Kilometers/Meters) to get a physical distance.
package haversine

import "math"

// Mean Earth radius (IUGG).
const (
	EarthRadiusKM     = 6371.0088
	EarthRadiusMeters = EarthRadiusKM * 1000
)

// ToRadians converts degrees to radians.
func ToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// ToDegrees converts radians to degrees.
func ToDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Distance returns the great-circle distance between two points given as
// longitude/latitude in radians.
func Distance(lon1, lat1, lon2, lat2 float64) float64 {
	sinLat := math.Sin((lat2 - lat1) / 2)
	sinLon := math.Sin((lon2 - lon1) / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	// Rounding can push h a hair outside [0,1] for antipodal or identical points.
	if h > 1 {
		h = 1
	} else if h < 0 {
		h = 0
	}
	return 2 * math.Asin(math.Sqrt(h))
}

// DistanceDegrees is Distance for inputs in degrees.
func DistanceDegrees(lon1, lat1, lon2, lat2 float64) float64 {
	return Distance(ToRadians(lon1), ToRadians(lat1), ToRadians(lon2), ToRadians(lat2))
}

// Pairwise returns the len(a) x len(b) matrix of distances between two sets of
// [lon, lat] pairs in radians.
func Pairwise(a, b [][2]float64) [][]float64 {
	out := make([][]float64, len(a))
	for i, p := range a {
		row := make([]float64, len(b))
		for j, q := range b {
			row[j] = Distance(p[0], p[1], q[0], q[1])
		}
		out[i] = row
	}
	return out
}

// Kilometers converts a unit-sphere distance to kilometers.
func Kilometers(rad float64) float64 {
	return rad * EarthRadiusKM
}

// Meters converts a unit-sphere distance to meters.
func Meters(rad float64) float64 {
	return rad * EarthRadiusMeters
}
