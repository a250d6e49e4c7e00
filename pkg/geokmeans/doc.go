// Package geokmeans implements k-means clustering of longitude/latitude points
// under great-circle (haversine) distance.
//
// The refinement loop is Lloyd's algorithm with Elkan's triangle-inequality
// pruning: per-sample upper and lower bounds plus inter-center half distances
// let most iterations skip most distance computations. The loop is written
// against the Metric interface, so the same code runs with Euclidean distance.
//
// Seeding is greedy k-means++ (or weighted random sampling, explicit centers,
// or a caller-supplied function). Several independent restarts can be run; the
// lowest-inertia partition is kept, ignoring "improvements" that only relabel
// the current best partition.
//
//	km, err := geokmeans.New(geokmeans.WithClusters(3), geokmeans.WithSeed(1))
//	if err != nil { ... }
//	res, err := km.Fit(ctx, points, nil)
//	dist, err := km.Transform(points) // radians; multiply by haversine.EarthRadiusKM
package geokmeans
