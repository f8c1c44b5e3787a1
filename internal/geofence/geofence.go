// Package geofence restricts alert sets by severity and by location.
package geofence

import (
	"github.com/couchcryptid/cap-alert-service/internal/domain"
	"github.com/couchcryptid/cap-alert-service/internal/geo"
	"github.com/paulmach/orb"
)

// BySeverity keeps alerts whose severity is at least threshold.
func BySeverity(alerts domain.AlertSet, threshold domain.Severity) domain.AlertSet {
	out := make(domain.AlertSet, len(alerts))
	for guid, a := range alerts {
		if a.Info.Severity >= threshold {
			out[guid] = a
		}
	}
	return out
}

// ByBoundary keeps alerts with at least one area polygon that intersects or
// lies within boundaries. Empty boundaries disable the filter.
func ByBoundary(alerts domain.AlertSet, boundaries orb.MultiPolygon) (domain.AlertSet, error) {
	if len(boundaries) == 0 {
		return alerts, nil
	}
	out := make(domain.AlertSet, len(alerts))
	for guid, a := range alerts {
		keep, err := touches(a, boundaries)
		if err != nil {
			return nil, &domain.GeometryError{Op: "geofence " + guid, Err: err}
		}
		if keep {
			out[guid] = a
		}
	}
	return out, nil
}

func touches(a domain.Alert, boundaries orb.MultiPolygon) (bool, error) {
	for _, p := range a.Polygons() {
		ok, err := geo.Intersects(p, boundaries)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
