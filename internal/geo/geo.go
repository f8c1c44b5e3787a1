// Package geo is the narrow planar geometry layer used for geofencing and map
// cropping. Longitude and latitude are treated as Cartesian x and y.
//
// Types come from github.com/paulmach/orb; boolean operations are delegated to
// github.com/engelsjk/polygol (a Martinez-Rueda sweep-line clipper).
package geo

import (
	"fmt"
	"math"

	"github.com/engelsjk/polygol"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// areaEpsilon is the residual area below which a clip result is empty.
const areaEpsilon = 1e-12

// Union merges polygons by repeated pairwise union.
func Union(polys []orb.Polygon) (orb.MultiPolygon, error) {
	if len(polys) == 0 {
		return nil, nil
	}
	acc := orb.MultiPolygon{polys[0]}
	for _, p := range polys[1:] {
		out, err := polygol.Union(toPolygol(acc), toPolygol(orb.MultiPolygon{p}))
		if err != nil {
			return nil, fmt.Errorf("union: %w", err)
		}
		acc = fromPolygol(out)
	}
	return acc, nil
}

// Intersection returns a ∩ b.
func Intersection(a, b orb.MultiPolygon) (orb.MultiPolygon, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, nil
	}
	if !a.Bound().Intersects(b.Bound()) {
		return nil, nil
	}
	out, err := polygol.Intersection(toPolygol(a), toPolygol(b))
	if err != nil {
		return nil, fmt.Errorf("intersection: %w", err)
	}
	return fromPolygol(out), nil
}

// Difference returns a − b.
func Difference(a, b orb.MultiPolygon) (orb.MultiPolygon, error) {
	if len(a) == 0 || len(b) == 0 {
		return a, nil
	}
	out, err := polygol.Difference(toPolygol(a), toPolygol(b))
	if err != nil {
		return nil, fmt.Errorf("difference: %w", err)
	}
	return fromPolygol(out), nil
}

// Contains reports whether inner lies entirely within outer.
func Contains(outer, inner orb.MultiPolygon) (bool, error) {
	if len(inner) == 0 {
		return true, nil
	}
	if len(outer) == 0 {
		return false, nil
	}
	if !boundContains(outer.Bound(), inner.Bound()) {
		return false, nil
	}
	rest, err := Difference(inner, outer)
	if err != nil {
		return false, err
	}
	return Area(rest) <= areaEpsilon*math.Max(1, Area(inner)), nil
}

// Intersects reports whether p overlaps region or lies within it.
func Intersects(p orb.Polygon, region orb.MultiPolygon) (bool, error) {
	if len(p) == 0 || len(p[0]) == 0 || len(region) == 0 {
		return false, nil
	}
	if !p.Bound().Intersects(region.Bound()) {
		return false, nil
	}
	for _, pt := range p[0] {
		if planar.MultiPolygonContains(region, pt) {
			return true, nil
		}
	}
	out, err := Intersection(orb.MultiPolygon{p}, region)
	if err != nil {
		return false, err
	}
	return Area(out) > areaEpsilon, nil
}

// Bound returns the bounding box of mp and false when mp has no vertices.
func Bound(mp orb.MultiPolygon) (orb.Bound, bool) {
	for _, p := range mp {
		if len(p) > 0 && len(p[0]) > 0 {
			return mp.Bound(), true
		}
	}
	return orb.Bound{}, false
}

// Area is the planar area of mp, holes subtracted.
func Area(mp orb.MultiPolygon) float64 {
	var total float64
	for _, p := range mp {
		for i, r := range p {
			a := math.Abs(ringArea(r))
			if i == 0 {
				total += a
			} else {
				total -= a
			}
		}
	}
	return total
}

// ringArea is the shoelace signed area, positive for counter-clockwise rings.
func ringArea(r orb.Ring) float64 {
	var sum float64
	for i := 0; i+1 < len(r); i++ {
		sum += r[i][0]*r[i+1][1] - r[i+1][0]*r[i][1]
	}
	return sum / 2
}

func boundContains(outer, inner orb.Bound) bool {
	return outer.Min[0] <= inner.Min[0] && outer.Min[1] <= inner.Min[1] &&
		outer.Max[0] >= inner.Max[0] && outer.Max[1] >= inner.Max[1]
}

func toPolygol(mp orb.MultiPolygon) [][][][]float64 {
	out := make([][][][]float64, 0, len(mp))
	for _, p := range mp {
		poly := make([][][]float64, 0, len(p))
		for _, r := range p {
			ring := make([][]float64, 0, len(r))
			for _, pt := range r {
				ring = append(ring, []float64{pt[0], pt[1]})
			}
			poly = append(poly, ring)
		}
		out = append(out, poly)
	}
	return out
}

func fromPolygol(geom [][][][]float64) orb.MultiPolygon {
	out := make(orb.MultiPolygon, 0, len(geom))
	for _, poly := range geom {
		p := make(orb.Polygon, 0, len(poly))
		for _, ring := range poly {
			r := make(orb.Ring, 0, len(ring)+1)
			for _, c := range ring {
				if len(c) < 2 {
					continue
				}
				r = append(r, orb.Point{c[0], c[1]})
			}
			if len(r) > 0 && !r.Closed() {
				r = append(r, r[0])
			}
			p = append(p, r)
		}
		if len(p) > 0 {
			out = append(out, p)
		}
	}
	return out
}
