package pointio

import (
	"context"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ReadShapefile reads point geometries from a shapefile. ID and weight come
// from the DBF attributes named in cols; Lon and Lat are ignored. Non-point
// shapes are skipped.
func ReadShapefile(ctx context.Context, path string, cols Columns) (*Dataset, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pointio: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[fold(name)] = i
	}

	weightIdx, idIdx := -1, -1
	if cols.Weight != "" {
		i, ok := fieldIdx[fold(cols.Weight)]
		if !ok {
			return nil, eris.Errorf("pointio: shapefile has no attribute %q", cols.Weight)
		}
		weightIdx = i
	}
	if cols.ID != "" {
		if i, ok := fieldIdx[fold(cols.ID)]; ok {
			idIdx = i
		}
	}

	b := newBuilder(weightIdx >= 0)
	var skipped, n int
	for reader.Next() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n++
		_, shape := reader.Shape()

		var x, y float64
		switch s := shape.(type) {
		case *shp.Point:
			x, y = s.X, s.Y
		case *shp.PointZ:
			x, y = s.X, s.Y
		case *shp.PointM:
			x, y = s.X, s.Y
		default:
			skipped++
			continue
		}

		var w float64
		if weightIdx >= 0 {
			if w, err = parseFloat("weight", attribute(reader, weightIdx), n); err != nil {
				return nil, err
			}
		}
		var id string
		if idIdx >= 0 {
			id = attribute(reader, idIdx)
		}
		b.add(id, x, y, w)
	}

	if skipped > 0 {
		zap.L().Debug("pointio: skipped non-point shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return b.dataset()
}

func attribute(reader *shp.Reader, idx int) string {
	return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
}
