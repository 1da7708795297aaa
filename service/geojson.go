package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
)

// UnmarshalAOI decodes a GeoJSON document into the polygonal boundary of an
// area of interest. Bare geometries, features and feature collections are all
// merged into a single multipolygon. Non-polygonal geometries are rejected.
func UnmarshalAOI(data []byte) (geom.MultiPolygon, error) {
	var g geojson.Geometry
	if err := g.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("UnmarshalAOI: %w", err)
	}
	var mp geom.MultiPolygon
	if err := collectPolygons(g.Geometry, &mp); err != nil {
		return nil, fmt.Errorf("UnmarshalAOI: %w", err)
	}
	return mp, nil
}

func collectPolygons(g interface{}, mp *geom.MultiPolygon) error {
	switch g := g.(type) {
	case nil:
	case geojson.FeatureCollection:
		for _, f := range g.Features {
			if err := collectPolygons(f.Geometry.Geometry, mp); err != nil {
				return err
			}
		}
	case geojson.Feature:
		return collectPolygons(g.Geometry.Geometry, mp)
	case geom.MultiPolygon:
		*mp = append(*mp, g.Polygons()...)
	case geom.Polygon:
		*mp = append(*mp, g.LinearRings())
	case geom.Collection:
		for _, sub := range g.Geometries() {
			if err := collectPolygons(sub, mp); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("the AOI must be polygonal, found %T", g)
	}
	return nil
}

// ToJSON dumps v into workingdir/filename (no-op without a working dir)
func ToJSON(v interface{}, workingdir, filename string) error {
	if workingdir == "" {
		return nil
	}
	vb, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("toJSON.Marshal: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workingdir, filename), vb, 0644); err != nil {
		return fmt.Errorf("toJSON.WriteFile: %w", err)
	}
	return nil
}
