// Package geodir loads directories of GeoJSON boundary files into a single
// multipolygon.
package geodir

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/cap-alert-service/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"
)

// Load reads every *.geojson file in dir concurrently and flattens the
// polygonal members into one multipolygon. Non-polygonal geometries are
// dropped. An empty dir yields an empty set.
func Load(ctx context.Context, dir string, logger *slog.Logger) (orb.MultiPolygon, error) {
	if dir == "" {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.geojson"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}

	results := make([][]orb.Polygon, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			polys, err := LoadFile(path)
			if err != nil {
				return err
			}
			logger.Debug("loaded geojson", "path", path, "polygons", len(polys))
			results[i] = polys
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var mp orb.MultiPolygon
	for _, polys := range results {
		mp = append(mp, polys...)
	}
	logger.Debug("loaded boundary directory", "dir", dir, "files", len(files), "polygons", len(mp))
	return mp, nil
}

// LoadFile parses one GeoJSON document (FeatureCollection, Feature or bare
// geometry) and returns its polygons.
func LoadFile(path string) ([]orb.Polygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	geoms, err := decode(data)
	if err != nil {
		return nil, &domain.ParseError{Source: path, Err: err}
	}
	polys := OnlyPolygons(geoms)
	for _, p := range polys {
		for _, r := range p {
			if !r.Closed() {
				return nil, &domain.ParseError{Source: path, Err: fmt.Errorf("ring is not closed")}
			}
		}
	}
	return polys, nil
}

func decode(data []byte) ([]orb.Geometry, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, err
	}

	switch header.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, err
		}
		geoms := make([]orb.Geometry, 0, len(fc.Features))
		for _, f := range fc.Features {
			if f.Geometry != nil {
				geoms = append(geoms, f.Geometry)
			}
		}
		return geoms, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		if f.Geometry == nil {
			return nil, nil
		}
		return []orb.Geometry{f.Geometry}, nil
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, err
		}
		return []orb.Geometry{g.Geometry()}, nil
	}
}

// OnlyPolygons keeps the Polygon and MultiPolygon members of geoms,
// descending into collections.
func OnlyPolygons(geoms []orb.Geometry) []orb.Polygon {
	var out []orb.Polygon
	for _, g := range geoms {
		switch v := g.(type) {
		case orb.Polygon:
			out = append(out, v)
		case orb.MultiPolygon:
			out = append(out, v...)
		case orb.Collection:
			out = append(out, OnlyPolygons(v)...)
		}
	}
	return out
}
