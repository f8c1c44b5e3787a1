package domain

import (
	"math"

	"github.com/paulmach/orb"
)

// WGS-84 ellipsoid constants, kilometers.
const (
	earthRadiusKm = 6378.137
	flattening    = 1 / 298.257223563
	eccSquared    = flattening * (2 - flattening)
	rad           = math.Pi / 180
)

// Ruler is a flat-earth approximation of the WGS-84 ellipsoid around one
// latitude (Mapbox "cheap ruler"). Error stays well under 1% for distances up
// to a few hundred kilometers.
type Ruler struct {
	kx float64 // km per degree of longitude
	ky float64 // km per degree of latitude
}

// NewRuler returns a ruler scaled for lat.
func NewRuler(lat float64) Ruler {
	m := rad * earthRadiusKm
	coslat := math.Cos(lat * rad)
	w2 := 1 / (1 - eccSquared*(1-coslat*coslat))
	w := math.Sqrt(w2)
	return Ruler{
		kx: m * w * coslat,
		ky: m * w * w2 * (1 - eccSquared),
	}
}

// Destination returns the point dist km from p along bearing (degrees
// clockwise from north).
func (r Ruler) Destination(p orb.Point, dist, bearing float64) orb.Point {
	a := bearing * rad
	return r.Offset(p, math.Sin(a)*dist, math.Cos(a)*dist)
}

// Offset moves p by dx km east and dy km north.
func (r Ruler) Offset(p orb.Point, dx, dy float64) orb.Point {
	return orb.Point{p[0] + dx/r.kx, p[1] + dy/r.ky}
}

// distance returns the distance in km between a and b.
func (r Ruler) distance(a, b orb.Point) float64 {
	dx := wrapLon(a[0]-b[0]) * r.kx
	dy := (a[1] - b[1]) * r.ky
	return math.Sqrt(dx*dx + dy*dy)
}

func wrapLon(deg float64) float64 {
	for deg < -180 {
		deg += 360
	}
	for deg > 180 {
		deg -= 360
	}
	return deg
}
