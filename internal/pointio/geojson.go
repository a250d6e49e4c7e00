package pointio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// ReadGeoJSON reads Point and MultiPoint features from a FeatureCollection.
// The feature id, or the cols.ID property, names each sample.
func ReadGeoJSON(ctx context.Context, path string, cols Columns) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pointio: read %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "pointio: decode geojson")
	}

	b := newBuilder(cols.Weight != "")
	for i, f := range fc.Features {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var w float64
		if b.weighted {
			if w, err = numericProperty(f.Properties, cols.Weight, i+1); err != nil {
				return nil, err
			}
		}
		id := f.ID
		if cols.ID != "" {
			if v, ok := f.Properties[cols.ID]; ok && v != nil {
				id = fmt.Sprint(v)
			}
		}

		switch g := f.Geometry.(type) {
		case *geom.Point:
			b.add(id, g.X(), g.Y(), w)
		case *geom.MultiPoint:
			for j := 0; j < g.NumPoints(); j++ {
				pid := id
				if pid != "" && g.NumPoints() > 1 {
					pid = id + "/" + strconv.Itoa(j)
				}
				p := g.Point(j)
				b.add(pid, p.X(), p.Y(), w)
			}
		}
	}
	return b.dataset()
}

func numericProperty(props map[string]interface{}, key string, feature int) (float64, error) {
	switch v := props[key].(type) {
	case float64:
		return v, nil
	case string:
		return parseFloat(key, v, feature)
	default:
		return 0, eris.Errorf("pointio: feature %d: property %q is not a number", feature, key)
	}
}
