package geokmeans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	km, err := New()
	require.NoError(t, err)

	o := km.Options()
	assert.Equal(t, DefaultClusters, o.NClusters)
	assert.Equal(t, DefaultMaxIter, o.MaxIter)
	assert.Equal(t, DefaultTol, o.Tol)
	assert.Equal(t, "k-means++", o.Init.String())
	assert.Equal(t, "haversine", o.Metric.Name())
	assert.Equal(t, 1, o.restarts())
}

func TestOptions_Restarts(t *testing.T) {
	cases := []struct {
		name  string
		start Init
		nInit int
		want  int
	}{
		{"auto k-means++", InitKMeansPlusPlus, 0, 1},
		{"auto random", InitRandom, 0, 10},
		{"auto explicit", InitCenters([]Point{{0, 0}}), 0, 1},
		{"explicit ignores n_init", InitCenters([]Point{{0, 0}}), 4, 1},
		{"set k-means++", InitKMeansPlusPlus, 3, 3},
		{"set random", InitRandom, 2, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := defaultOptions()
			o.Init = tc.start
			o.NInit = tc.nInit
			assert.Equal(t, tc.want, o.restarts())
		})
	}
}

func TestParseInit(t *testing.T) {
	got, err := ParseInit("random")
	require.NoError(t, err)
	assert.Equal(t, "random", got.String())

	got, err = ParseInit("K-Means++")
	require.NoError(t, err)
	assert.Equal(t, "k-means++", got.String())

	got, err = ParseInit("")
	require.NoError(t, err)
	assert.Equal(t, "k-means++", got.String())

	_, err = ParseInit("forgy")
	assert.True(t, IsInvalidInput(err))
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("Euclidean")
	require.NoError(t, err)
	assert.Equal(t, "euclidean", m.Name())

	m, err = ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, "haversine", m.Name())

	_, err = ParseMetric("manhattan")
	assert.True(t, IsInvalidInput(err))
}

func TestInitCenters_CopiesInput(t *testing.T) {
	centers := []Point{{1, 2}}
	got := InitCenters(centers)
	centers[0] = Point{9, 9}
	assert.Equal(t, Point{1, 2}, got.centers[0])
}

func TestInvalidInputError_Message(t *testing.T) {
	assert.Equal(t, "geokmeans: invalid X[3][0]: bad", invalidAt("X", 3, 0, "bad").Error())
	assert.Equal(t, "geokmeans: invalid weights[2]: bad", invalidAt("weights", 2, -1, "bad").Error())
	assert.Equal(t, "geokmeans: invalid tol: bad", invalid("tol", "bad").Error())
}

func TestHaversineProjectRoundTrip(t *testing.T) {
	h := Haversine{}
	p := Point{-122.4194, 37.7749}
	back := h.Unproject(h.Project(p))
	assert.InDelta(t, p.Lon(), back.Lon(), 1e-12)
	assert.InDelta(t, p.Lat(), back.Lat(), 1e-12)
}
