package geokmeans

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func project(m Metric, pts ...Point) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = m.Project(p)
	}
	return out
}

func ones(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

func TestCenterHalfDistances(t *testing.T) {
	m := Haversine{}
	centers := project(m, Point{0, 0}, Point{10, 0}, Point{30, 0})
	half := make([]float64, 9)
	nearest := make([]float64, 3)

	centerHalfDistances(m, centers, half, nearest)

	deg := math.Pi / 180
	assert.InDelta(t, 5*deg, half[0*3+1], 1e-12)
	assert.InDelta(t, 15*deg, half[0*3+2], 1e-12)
	assert.Equal(t, half[1*3+2], half[2*3+1])
	assert.Zero(t, half[1*3+1])

	assert.InDelta(t, 5*deg, nearest[0], 1e-12)
	assert.InDelta(t, 5*deg, nearest[1], 1e-12)
	assert.InDelta(t, 10*deg, nearest[2], 1e-12)
}

func TestCenterHalfDistances_SingleCenter(t *testing.T) {
	half := make([]float64, 1)
	nearest := make([]float64, 1)
	centerHalfDistances(Haversine{}, []Point{{0, 0}}, half, nearest)
	assert.True(t, math.IsInf(nearest[0], 1))
}

func TestWorkspace_InitBoundsMatchesBruteForce(t *testing.T) {
	m := Haversine{}
	var pts []Point
	for _, row := range randomCloud(200, 17) {
		pts = append(pts, m.Project(Point{row[0], row[1]}))
	}
	centers := []Point{pts[0], pts[50], pts[101], pts[152]}

	ws := newWorkspace(m, pts, ones(len(pts)), centers, 1)
	ws.initBounds()

	for i, p := range pts {
		want, d := nearestCenter(m, p, centers)
		assert.Equal(t, want, ws.labels[i], "sample %d", i)
		assert.InDelta(t, d, ws.upper[i], 1e-15)
		for j := range centers {
			assert.LessOrEqual(t, ws.lower[i*4+j], m.Distance(p, centers[j])+1e-15)
		}
	}
}

func TestWorkspace_BoundsStayValidAcrossUpdates(t *testing.T) {
	m := Haversine{}
	var pts []Point
	for _, row := range randomCloud(300, 23) {
		pts = append(pts, m.Project(Point{row[0], row[1]}))
	}
	ws := newWorkspace(m, pts, ones(len(pts)), []Point{pts[0], pts[1], pts[2]}, 1)
	ws.initBounds()

	for iter := 0; iter < 4; iter++ {
		ws.assign()
		ws.updateCenters()
		for i, p := range pts {
			exact := m.Distance(p, ws.centers[ws.labels[i]])
			assert.GreaterOrEqual(t, ws.upper[i]+1e-12, exact, "upper bound, sample %d", i)
			for j := range ws.centers {
				assert.LessOrEqual(t, ws.lower[i*3+j], m.Distance(p, ws.centers[j])+1e-12, "lower bound, sample %d", i)
			}
		}
	}
}

func TestWorkspace_RelocatesEmptyCluster(t *testing.T) {
	m := Euclidean{}
	pts := []Point{{0, 0}, {1, 0}, {9, 0}}
	// Second center is unreachable, so its cluster is empty after assignment.
	ws := newWorkspace(m, pts, ones(3), []Point{{0, 0}, {100, 100}}, 1)
	ws.initBounds()
	ws.assign()
	require.Equal(t, []int{0, 0, 0}, ws.labels)

	ws.updateCenters()

	// The farthest sample (9,0) seeds the empty cluster and leaves cluster 0.
	assert.Equal(t, Point{9, 0}, ws.centers[1])
	assert.Equal(t, Point{0.5, 0}, ws.centers[0])
}

func TestWorkspace_RunStopsOnStrictConvergence(t *testing.T) {
	m := Haversine{}
	pts := project(m, Point{0, 0}, Point{0.1, 0}, Point{50, 10}, Point{50.1, 10})
	ws := newWorkspace(m, pts, ones(4), []Point{pts[0], pts[2]}, 1)

	nIter, strict, err := ws.run(context.Background(), 100, 0)
	require.NoError(t, err)
	assert.True(t, strict)
	assert.Equal(t, 2, nIter)
	assert.Equal(t, []int{0, 0, 1, 1}, ws.labels)
}

func TestWorkspace_RunHonoursMaxIter(t *testing.T) {
	m := Haversine{}
	pts := project(m, Point{0, 0}, Point{0.1, 0}, Point{50, 10}, Point{50.1, 10})
	ws := newWorkspace(m, pts, ones(4), []Point{pts[0], pts[1]}, 1)

	nIter, strict, err := ws.run(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, nIter)
	assert.False(t, strict)

	// The final assignment pass keeps labels consistent with the centers.
	for i, p := range pts {
		want, _ := nearestCenter(m, p, ws.centers)
		assert.Equal(t, want, ws.labels[i])
	}
}

func TestSameClustering(t *testing.T) {
	assert.True(t, sameClustering([]int{0, 0, 1, 2}, []int{2, 2, 0, 1}, 3))
	assert.True(t, sameClustering([]int{0, 1}, []int{0, 1}, 2))
	assert.False(t, sameClustering([]int{0, 0, 1}, []int{0, 1, 1}, 2))
	assert.False(t, sameClustering([]int{0, 1, 1}, []int{1, 0, 1}, 2))

	// A finer partition is not the same as a coarser one in either direction.
	assert.False(t, sameClustering([]int{0, 1}, []int{0, 0}, 2))
	assert.False(t, sameClustering([]int{0, 0}, []int{0, 1}, 2))
	assert.False(t, sameClustering([]int{0, 1, 2}, []int{1, 1, 0}, 3))
}

func TestTolerance(t *testing.T) {
	pts := []Point{{0, 0}, {2, 4}}
	// Population variances are 1 and 4.
	assert.InDelta(t, 2.5e-4, tolerance(pts, 1e-4), 1e-15)
	assert.Zero(t, tolerance(pts, 0))
}

func TestParallelFor_CoversEveryIndex(t *testing.T) {
	n := 10_000
	hits := make([]int, n)
	parallelFor(8, n, func(from, to int) {
		for i := from; i < to; i++ {
			hits[i]++
		}
	})
	for i, h := range hits {
		require.Equal(t, 1, h, "index %d", i)
	}
}
