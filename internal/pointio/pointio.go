// Package pointio reads longitude/latitude samples from CSV, XLSX, shapefile
// and GeoJSON sources.
package pointio

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
)

// Columns names the attributes to read. Empty Lon/Lat fall back to common
// aliases ("lon", "lng", "longitude", "x" and "lat", "latitude", "y").
type Columns struct {
	Lon      string
	Lat      string
	Weight   string // optional
	ID       string // optional; row numbers are used when absent
	Sheet    string // XLSX sheet name; first sheet when empty
	Encoding string // CSV charset, e.g. "latin1"; UTF-8 when empty
}

// Dataset is a loaded sample matrix.
type Dataset struct {
	IDs     []string
	X       [][]float64 // lon, lat degrees
	Weights []float64   // nil when no weight column was requested
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.X) }

var (
	lonAliases = []string{"lon", "lng", "long", "longitude", "x"}
	latAliases = []string{"lat", "latitude", "y"}
)

// Load reads path, picking the reader from the file extension. "-" reads CSV
// from stdin.
func Load(ctx context.Context, path string, cols Columns) (*Dataset, error) {
	if path == "-" {
		return ReadCSV(ctx, os.Stdin, cols)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(ctx, path, cols)
	case ".shp":
		return ReadShapefile(ctx, path, cols)
	case ".geojson", ".json":
		return ReadGeoJSON(ctx, path, cols)
	case ".csv", ".tsv", ".txt", "":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "pointio: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		if strings.EqualFold(filepath.Ext(path), ".tsv") {
			return readDelimited(ctx, f, cols, '\t')
		}
		return ReadCSV(ctx, f, cols)
	default:
		return nil, eris.Errorf("pointio: unsupported file type %q", filepath.Ext(path))
	}
}

// layout holds resolved column positions for tabular sources.
type layout struct {
	lon, lat, weight, id int
}

func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func findColumn(index map[string]int, name string, aliases []string) int {
	if name != "" {
		if i, ok := index[fold(name)]; ok {
			return i
		}
		return -1
	}
	for _, a := range aliases {
		if i, ok := index[a]; ok {
			return i
		}
	}
	return -1
}

func resolveLayout(header []string, cols Columns) (layout, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := fold(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	l := layout{
		lon:    findColumn(index, cols.Lon, lonAliases),
		lat:    findColumn(index, cols.Lat, latAliases),
		weight: -1,
		id:     -1,
	}
	if l.lon < 0 {
		return l, eris.Errorf("pointio: longitude column %q not found in header %v", cols.Lon, header)
	}
	if l.lat < 0 {
		return l, eris.Errorf("pointio: latitude column %q not found in header %v", cols.Lat, header)
	}
	if cols.Weight != "" {
		if l.weight = findColumn(index, cols.Weight, nil); l.weight < 0 {
			return l, eris.Errorf("pointio: weight column %q not found in header %v", cols.Weight, header)
		}
	}
	if cols.ID != "" {
		// A missing ID column is not an error: row numbers stand in.
		l.id = findColumn(index, cols.ID, nil)
	}
	return l, nil
}

// builder accumulates samples from any source.
type builder struct {
	ds       Dataset
	weighted bool
}

func newBuilder(weighted bool) *builder {
	b := &builder{weighted: weighted}
	if weighted {
		b.ds.Weights = []float64{}
	}
	return b
}

func parseFloat(field, value string, row int) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "pointio: row %d: parse %s %q", row, field, value)
	}
	return v, nil
}

// addRecord appends one tabular record. row is 1-based for error messages.
func (b *builder) addRecord(rec []string, l layout, row int) error {
	get := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	if l.lon >= len(rec) || l.lat >= len(rec) {
		return eris.Errorf("pointio: row %d: expected at least %d fields, got %d", row, max(l.lon, l.lat)+1, len(rec))
	}
	lon, err := parseFloat("lon", get(l.lon), row)
	if err != nil {
		return err
	}
	lat, err := parseFloat("lat", get(l.lat), row)
	if err != nil {
		return err
	}

	var w float64
	if b.weighted {
		if w, err = parseFloat("weight", get(l.weight), row); err != nil {
			return err
		}
	}

	id := strings.TrimSpace(get(l.id))
	b.add(id, lon, lat, w)
	return nil
}

func (b *builder) add(id string, lon, lat, w float64) {
	if id == "" {
		id = strconv.Itoa(len(b.ds.X) + 1)
	}
	b.ds.IDs = append(b.ds.IDs, id)
	b.ds.X = append(b.ds.X, []float64{lon, lat})
	if b.weighted {
		b.ds.Weights = append(b.ds.Weights, w)
	}
}

func (b *builder) dataset() (*Dataset, error) {
	if len(b.ds.X) == 0 {
		return nil, eris.New("pointio: no samples found")
	}
	return &b.ds, nil
}
