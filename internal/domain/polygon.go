package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// CircleEdges is the number of distinct vertices of a synthesized circle.
const CircleEdges = 32

// ParsePolygon parses a CAP polygon: whitespace-separated "lat,lon" pairs
// forming a closed ring. Malformed pairs, non-numeric coordinates and
// unclosed rings are errors; nothing is repaired.
func ParsePolygon(text string) (orb.Polygon, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, errors.New("empty polygon")
	}

	ring := make(orb.Ring, 0, len(fields))
	for _, pair := range fields {
		p, err := parseLatLon(pair)
		if err != nil {
			return nil, err
		}
		ring = append(ring, p)
	}

	if !ring.Closed() {
		return nil, errors.New("polygon is not closed")
	}
	return orb.Polygon{ring}, nil
}

// FormatPolygon renders the outer ring of p in CAP polygon text form.
// FormatPolygon followed by ParsePolygon yields the same ring.
func FormatPolygon(p orb.Polygon) string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, 0, len(p[0]))
	for _, pt := range p[0] {
		parts = append(parts, formatCoord(pt.Lat())+","+formatCoord(pt.Lon()))
	}
	return strings.Join(parts, " ")
}

// ParseCircle parses a CAP circle "lat,lon radius" with the radius in km.
func ParseCircle(text string) (orb.Point, float64, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return orb.Point{}, 0, fmt.Errorf("invalid circle %q", text)
	}
	center, err := parseLatLon(fields[0])
	if err != nil {
		return orb.Point{}, 0, err
	}
	radius, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return orb.Point{}, 0, fmt.Errorf("invalid circle radius %q: %w", fields[1], err)
	}
	if radius < 0 {
		return orb.Point{}, 0, fmt.Errorf("negative circle radius %q", fields[1])
	}
	return center, radius, nil
}

// CirclePolygon approximates a circle of radiusKm around center with a
// closed ring of CircleEdges vertices (CircleEdges+1 points, the last
// repeating the first). Distances use a cheap ruler local to the center, so
// the result is only meaningful for regional radii.
func CirclePolygon(center orb.Point, radiusKm float64) orb.Polygon {
	ruler := NewRuler(center.Lat())
	ring := make(orb.Ring, 0, CircleEdges+1)
	for i := range CircleEdges {
		bearing := 360 * float64(i) / CircleEdges
		ring = append(ring, ruler.Destination(center, radiusKm, bearing))
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// CircleToPolygon parses a CAP circle and converts it with CirclePolygon.
func CircleToPolygon(text string) (orb.Polygon, error) {
	center, radius, err := ParseCircle(text)
	if err != nil {
		return nil, err
	}
	return CirclePolygon(center, radius), nil
}

func parseLatLon(pair string) (orb.Point, error) {
	latStr, lonStr, ok := strings.Cut(pair, ",")
	if !ok {
		return orb.Point{}, fmt.Errorf("invalid coordinate pair %q", pair)
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid latitude %q: %w", latStr, err)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid longitude %q: %w", lonStr, err)
	}
	return orb.Point{lon, lat}, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
