// Package export renders clustering results as JSON, YAML, CSV or GeoJSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/geocluster/internal/model"
)

// Format is an output encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatCSV     Format = "csv"
	FormatGeoJSON Format = "geojson"
)

// ParseFormat resolves a format name. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatYAML, FormatCSV, FormatGeoJSON:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", eris.Errorf("export: unknown format %q", s)
	}
}

// Report bundles a run result with the samples it was fitted on. IDs and X
// may be empty when only the stored run is available.
type Report struct {
	RunID  string
	Params model.RunParams
	Result *model.RunResult
	IDs    []string
	X      [][]float64
}

// Center is one cluster center in exported form.
type Center struct {
	Cluster int     `json:"cluster" yaml:"cluster"`
	Lon     float64 `json:"lon" yaml:"lon"`
	Lat     float64 `json:"lat" yaml:"lat"`
	Size    int     `json:"size" yaml:"size"`
}

// Assignment is one labelled sample.
type Assignment struct {
	ID      string  `json:"id" yaml:"id"`
	Lon     float64 `json:"lon" yaml:"lon"`
	Lat     float64 `json:"lat" yaml:"lat"`
	Cluster int     `json:"cluster" yaml:"cluster"`
}

// Document is the structured JSON/YAML form of a Report.
type Document struct {
	RunID       string          `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Params      model.RunParams `json:"params" yaml:"params"`
	Inertia     float64         `json:"inertia" yaml:"inertia"`
	NIter       int             `json:"n_iter" yaml:"n_iter"`
	Converged   bool            `json:"converged" yaml:"converged"`
	Centers     []Center        `json:"centers" yaml:"centers"`
	Assignments []Assignment    `json:"assignments,omitempty" yaml:"assignments,omitempty"`
	Warnings    []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Build flattens r into a Document.
func Build(r Report) (*Document, error) {
	if r.Result == nil {
		return nil, eris.New("export: report has no result")
	}
	res := r.Result
	doc := &Document{
		RunID:     r.RunID,
		Params:    r.Params,
		Inertia:   res.Inertia,
		NIter:     res.NIter,
		Converged: res.Converged,
		Centers:   make([]Center, len(res.Centers)),
		Warnings:  res.Warnings,
	}
	for i, c := range res.Centers {
		doc.Centers[i] = Center{Cluster: i, Lon: c[0], Lat: c[1]}
		if i < len(res.Sizes) {
			doc.Centers[i].Size = res.Sizes[i]
		}
	}

	if len(r.X) == 0 {
		return doc, nil
	}
	if len(r.X) != len(res.Labels) {
		return nil, eris.Errorf("export: %d samples but %d labels", len(r.X), len(res.Labels))
	}
	doc.Assignments = make([]Assignment, len(r.X))
	for i, p := range r.X {
		id := strconv.Itoa(i + 1)
		if i < len(r.IDs) {
			id = r.IDs[i]
		}
		doc.Assignments[i] = Assignment{ID: id, Lon: p[0], Lat: p[1], Cluster: res.Labels[i]}
	}
	return doc, nil
}

// Write encodes r to w in the given format.
func Write(w io.Writer, format Format, r Report) error {
	doc, err := Build(r)
	if err != nil {
		return err
	}

	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(doc), "export: encode json")
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return eris.Wrap(err, "export: encode yaml")
		}
		return eris.Wrap(enc.Close(), "export: close yaml")
	case FormatCSV:
		return writeCSV(w, doc)
	case FormatGeoJSON:
		return writeGeoJSON(w, doc)
	default:
		return eris.Errorf("export: unknown format %q", format)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// writeCSV emits one row per sample, or one row per center when the report
// carries no samples.
func writeCSV(w io.Writer, doc *Document) error {
	cw := csv.NewWriter(w)
	if len(doc.Assignments) > 0 {
		if err := cw.Write([]string{"id", "lon", "lat", "cluster"}); err != nil {
			return eris.Wrap(err, "export: write csv header")
		}
		for _, a := range doc.Assignments {
			if err := cw.Write([]string{a.ID, formatFloat(a.Lon), formatFloat(a.Lat), strconv.Itoa(a.Cluster)}); err != nil {
				return eris.Wrap(err, "export: write csv row")
			}
		}
	} else {
		if err := cw.Write([]string{"cluster", "lon", "lat", "size"}); err != nil {
			return eris.Wrap(err, "export: write csv header")
		}
		for _, c := range doc.Centers {
			if err := cw.Write([]string{strconv.Itoa(c.Cluster), formatFloat(c.Lon), formatFloat(c.Lat), strconv.Itoa(c.Size)}); err != nil {
				return eris.Wrap(err, "export: write csv row")
			}
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

func writeGeoJSON(w io.Writer, doc *Document) error {
	fc := geojson.FeatureCollection{}
	for _, c := range doc.Centers {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       "center-" + strconv.Itoa(c.Cluster),
			Geometry: geom.NewPointFlat(geom.XY, []float64{c.Lon, c.Lat}),
			Properties: map[string]interface{}{
				"kind":    "center",
				"cluster": c.Cluster,
				"size":    c.Size,
			},
		})
	}
	for _, a := range doc.Assignments {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       a.ID,
			Geometry: geom.NewPointFlat(geom.XY, []float64{a.Lon, a.Lat}),
			Properties: map[string]interface{}{
				"kind":    "sample",
				"cluster": a.Cluster,
			},
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "export: encode geojson")
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return eris.Wrap(err, "export: write geojson")
	}
	return nil
}
