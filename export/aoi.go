package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/lulc-exporter/catalog/entities"
	"github.com/airbusgeo/lulc-exporter/service"
	"github.com/airbusgeo/lulc-exporter/service/geometry"
	"github.com/araddon/dateparse"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/paulsmith/gogeos/geos"
)

// LoadAOI reads a GeoJSON boundary file and returns its geometry, merging
// feature collections into a single multipolygon
func LoadAOI(path string) (geom.Geometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadAOI: %w", err)
	}
	g, err := service.UnmarshalAOI(data)
	if err != nil {
		return nil, fmt.Errorf("LoadAOI(%s): %w", path, err)
	}
	if isEmptyAOI(g) {
		return nil, fmt.Errorf("LoadAOI: %s contains no feature", path)
	}
	return g, nil
}

// AreaFromFile builds an export request from an AOI boundary file and an
// optional time window. The AOI id is derived from the file name.
func AreaFromFile(path, collection, startTime, endTime string) (*entities.AreaToExport, error) {
	g, err := LoadAOI(path)
	if err != nil {
		return nil, err
	}

	area := entities.AreaToExport{
		AOIID:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Collection: collection,
		AOI:        geojson.Geometry{Geometry: g},
	}
	if startTime != "" {
		if area.StartTime, err = dateparse.ParseAny(startTime); err != nil {
			return nil, fmt.Errorf("AreaFromFile: parse start time: %w", err)
		}
	}
	if endTime != "" {
		if area.EndTime, err = dateparse.ParseAny(endTime); err != nil {
			return nil, fmt.Errorf("AreaFromFile: parse end time: %w", err)
		}
	}
	return &area, nil
}

func isEmptyAOI(g geom.Geometry) bool {
	switch g := g.(type) {
	case nil:
		return true
	case geom.MultiPolygon:
		return len(g.Polygons()) == 0
	case geom.Polygon:
		return len(g.LinearRings()) == 0
	}
	return false
}

// BBox returns the axis-aligned bounding box of the AOI as
// (minx, miny, maxx, maxy) in the AOI's native CRS
func BBox(g geom.Geometry) ([4]float64, error) {
	bbox, err := geometry.Extent(g)
	if err != nil {
		return bbox, fmt.Errorf("BBox: %w", err)
	}
	return bbox, nil
}

// dissolve merges overlapping polygons of the AOI, so that a cutline built
// from it never burns a pixel twice
func dissolve(g geom.Geometry) (geom.Geometry, error) {
	var polygons []geom.Polygon
	switch g := g.(type) {
	case geom.MultiPolygon:
		for _, p := range g.Polygons() {
			polygons = append(polygons, geom.Polygon(p))
		}
	case geom.Polygon:
		polygons = append(polygons, g)
	default:
		return nil, fmt.Errorf("dissolve: unsupported AOI geometry %T", g)
	}

	geoms := make([]*geos.Geometry, len(polygons))
	for i, p := range polygons {
		gg, err := geometry.GeomToGeos(p)
		if err != nil {
			return nil, fmt.Errorf("dissolve.%w", err)
		}
		geoms[i] = gg
	}
	union, err := geometry.Union(geoms, geometry.TOLERANCE_GEOG)
	if err != nil {
		return nil, fmt.Errorf("dissolve.%w", err)
	}
	merged, err := geometry.GeosToGeom(union)
	if err != nil {
		return nil, fmt.Errorf("dissolve.%w", err)
	}
	return merged, nil
}
