package source

import (
	"fmt"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mapsync/internal/feature"
	geotypes "github.com/sells-group/mapsync/internal/geo"
)

// LoadShapefile reads point records from an ESRI shapefile. Attribute
// columns ID, NAME, GROUP and KIND are picked up case-insensitively
// when present; non-point shapes and off-world coordinates are skipped.
func LoadShapefile(path string) ([]feature.Feature, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	attr := func(row int, name string) string {
		idx, ok := fieldIdx[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.ReadAttribute(row, idx), "\x00"))
	}

	var feats []feature.Feature
	var skipped int
	for reader.Next() {
		row, shape := reader.Shape()
		pt, ok := shape.(*shp.Point)
		if !ok {
			skipped++
			continue
		}
		coord := geotypes.LngLat{Lng: pt.X, Lat: pt.Y}
		if !coord.Valid() {
			skipped++
			continue
		}
		f := feature.Feature{
			ID:       attr(row, "id"),
			Name:     attr(row, "name"),
			GroupKey: attr(row, "group"),
			Kind:     feature.KindFromString(attr(row, "kind")),
			Coord:    coord,
		}
		if f.ID == "" {
			f.ID = fmt.Sprintf("f%04d", row)
		}
		feats = append(feats, f)
	}
	if skipped > 0 {
		zap.L().Debug("source: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return feats, nil
}
