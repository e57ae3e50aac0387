// Package source loads features from collaborator-supplied formats and
// normalizes them to the feature shape at the store boundary.
package source

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/mapsync/internal/feature"
	geotypes "github.com/sells-group/mapsync/internal/geo"
)

// LoadGeoJSON reads a FeatureCollection of points. Non-point geometries
// and features with invalid coordinates are skipped with a log entry.
func LoadGeoJSON(path string) ([]feature.Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read %s", path)
	}
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "source: parse geojson %s", path)
	}

	feats := make([]feature.Feature, 0, len(fc.Features))
	var skipped int
	for i, gf := range fc.Features {
		pt, ok := gf.Geometry.(*geom.Point)
		if !ok {
			skipped++
			continue
		}
		coord := geotypes.LngLat{Lng: pt.X(), Lat: pt.Y()}
		if !coord.Valid() {
			skipped++
			continue
		}
		f := feature.Feature{
			ID:    gf.ID,
			Coord: coord,
		}
		if f.ID == "" {
			f.ID = fmt.Sprintf("f%04d", i)
		}
		if v, ok := gf.Properties["name"].(string); ok {
			f.Name = v
		}
		if v, ok := gf.Properties["group"].(string); ok {
			f.GroupKey = v
		}
		if v, ok := gf.Properties["kind"].(string); ok {
			f.Kind = feature.KindFromString(v)
		}
		feats = append(feats, f)
	}
	if skipped > 0 {
		zap.L().Debug("source: skipped geojson features",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return feats, nil
}
