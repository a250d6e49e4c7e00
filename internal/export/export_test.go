package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/geocluster/internal/model"
)

func sampleReport() Report {
	return Report{
		RunID:  "run-1",
		Params: model.RunParams{NClusters: 2, Init: "k-means++", Metric: "haversine", NPoints: 3},
		Result: &model.RunResult{
			Labels:    []int{0, 0, 1},
			Centers:   [][2]float64{{-74, 40.7}, {2.35, 48.85}},
			Sizes:     []int{2, 1},
			Inertia:   0.25,
			NIter:     4,
			Converged: true,
		},
		IDs: []string{"a", "b", "c"},
		X:   [][]float64{{-74.1, 40.6}, {-73.9, 40.8}, {2.35, 48.85}},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"":        FormatJSON,
		"JSON":    FormatJSON,
		"yml":     FormatYAML,
		"yaml":    FormatYAML,
		"csv":     FormatCSV,
		"GeoJSON": FormatGeoJSON,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	doc, err := Build(sampleReport())
	require.NoError(t, err)

	assert.Equal(t, "run-1", doc.RunID)
	assert.Equal(t, []Center{
		{Cluster: 0, Lon: -74, Lat: 40.7, Size: 2},
		{Cluster: 1, Lon: 2.35, Lat: 48.85, Size: 1},
	}, doc.Centers)
	require.Len(t, doc.Assignments, 3)
	assert.Equal(t, Assignment{ID: "c", Lon: 2.35, Lat: 48.85, Cluster: 1}, doc.Assignments[2])
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(Report{})
	assert.Error(t, err)

	r := sampleReport()
	r.X = r.X[:2]
	_, err = Build(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 samples but 3 labels")
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleReport()))

	var doc Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, 0.25, doc.Inertia)
	assert.Len(t, doc.Assignments, 3)
	assert.Equal(t, "haversine", doc.Params.Metric)
}

func TestWrite_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatYAML, sampleReport()))
	assert.Contains(t, buf.String(), "n_clusters: 2")

	var doc Document
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, 4, doc.NIter)
	assert.Len(t, doc.Centers, 2)
}

func TestWrite_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sampleReport()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "id,lon,lat,cluster", lines[0])
	assert.Equal(t, "a,-74.1,40.6,0", lines[1])
	assert.Equal(t, "c,2.35,48.85,1", lines[3])
}

func TestWrite_CSVCentersOnly(t *testing.T) {
	r := sampleReport()
	r.X, r.IDs = nil, nil

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, r))
	assert.Equal(t, "cluster,lon,lat,size\n0,-74,40.7,2\n1,2.35,48.85,1\n", buf.String())
}

func TestWrite_GeoJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatGeoJSON, sampleReport()))

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			ID       string `json:"id"`
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 5)

	first := fc.Features[0]
	assert.Equal(t, "center-0", first.ID)
	assert.Equal(t, "Point", first.Geometry.Type)
	assert.Equal(t, []float64{-74, 40.7}, first.Geometry.Coordinates)
	assert.Equal(t, "center", first.Properties["kind"])

	last := fc.Features[4]
	assert.Equal(t, "c", last.ID)
	assert.Equal(t, "sample", last.Properties["kind"])
	assert.Equal(t, float64(1), last.Properties["cluster"])
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, Format("xml"), sampleReport())
	assert.Error(t, err)
}
