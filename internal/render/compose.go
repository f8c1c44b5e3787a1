// Package render turns a filtered alert set into a text summary and a
// cropped, layered PNG map.
package render

import (
	"github.com/couchcryptid/cap-alert-service/internal/domain"
	"github.com/couchcryptid/cap-alert-service/internal/geo"
	"github.com/paulmach/orb"
)

// Concavity is the concave hull tolerance used to smooth the merged
// boundaries into one crop mask.
const Concavity = 2.0

// Scene is the vector content of a map before rasterization.
type Scene struct {
	// Bounds is the visible extent in lon/lat.
	Bounds orb.Bound
	// Mask is the crop region derived from the boundaries; never drawn.
	Mask orb.MultiPolygon
	// Basemap holds the outlines, cropped to Mask.
	Basemap orb.MultiPolygon
	// Areas holds the alert area polygons, cropped to Mask when needed.
	Areas orb.MultiPolygon
	// Cropped reports whether Areas was clipped to Mask.
	Cropped bool
}

// Compose builds the scene for alerts. boundaries define the crop mask and
// outlines the optional basemap; either may be empty.
func Compose(alerts domain.AlertSet, boundaries, outlines orb.MultiPolygon) (*Scene, error) {
	mask, err := cropMask(boundaries)
	if err != nil {
		return nil, err
	}

	var areas orb.MultiPolygon
	for _, a := range alerts.Slice() {
		areas = append(areas, a.Polygons()...)
	}

	scene := &Scene{Mask: mask, Areas: areas}
	if len(mask) > 0 && len(areas) > 0 {
		inside, err := geo.Contains(mask, areas)
		if err != nil {
			return nil, &domain.GeometryError{Op: "contains", Err: err}
		}
		if !inside {
			cropped, err := geo.Intersection(areas, mask)
			if err != nil {
				return nil, &domain.GeometryError{Op: "crop areas", Err: err}
			}
			scene.Areas = cropped
			scene.Cropped = true
		}
	}

	if len(outlines) > 0 {
		scene.Basemap = outlines
		if len(mask) > 0 {
			basemap, err := geo.Intersection(outlines, mask)
			if err != nil {
				return nil, &domain.GeometryError{Op: "crop outlines", Err: err}
			}
			scene.Basemap = basemap
		}
	}

	bounds, ok := geo.Bound(mask)
	if !ok {
		bounds, ok = geo.Bound(scene.Areas)
	}
	if !ok {
		return nil, &domain.GeometryError{Op: "bounds", Err: domain.ErrNothingToDraw}
	}
	if bounds.Max[0]-bounds.Min[0] <= 0 || bounds.Max[1]-bounds.Min[1] <= 0 {
		return nil, &domain.GeometryError{Op: "bounds", Err: domain.ErrEmptyImage}
	}
	scene.Bounds = bounds
	return scene, nil
}

// cropMask unions the boundaries and wraps them in a concave hull.
func cropMask(boundaries orb.MultiPolygon) (orb.MultiPolygon, error) {
	if len(boundaries) == 0 {
		return nil, nil
	}
	merged, err := geo.Union(boundaries)
	if err != nil {
		return nil, &domain.GeometryError{Op: "union", Err: err}
	}
	hull := geo.ConcaveHull(merged, Concavity)
	if hull == nil {
		return merged, nil
	}
	return orb.MultiPolygon{hull}, nil
}
