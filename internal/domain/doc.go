// Package domain models Common Alerting Protocol (CAP) alerts as they are
// published by national weather and civil-defence agencies.
//
// # Data Source
//
// Agencies publish an RSS 2.0 or Atom 1.0 feed whose entries point at
// individual CAP 1.2 XML documents, e.g. https://alerts.metservice.com/cap/rss.
// Each feed entry carries a GUID that uniquely identifies one alert instance;
// the GUID is the de-duplication key across runs.
//
// # CAP Conventions
//
// Polygon format:
//
//	"<lat>,<lon> <lat>,<lon> ..."  →  e.g. "-41.2,174.7 -41.3,174.8 -41.2,174.7"
//	Whitespace-separated WGS-84 pairs, latitude first. The first and last pair
//	must be identical (closed ring). Internally coordinates are stored as
//	(x=lon, y=lat).
//
// Circle format:
//
//	"<lat>,<lon> <radius>"  →  e.g. "-41.2,174.7 25"
//	Radius is in kilometers. Circles are approximated by 32-vertex polygons
//	using a local flat-earth ruler, see [CirclePolygon].
//
// Severity:
//
//	Minor < Moderate < Severe < Extreme, see [Severity]. CAP also defines
//	"Unknown", which is rejected.
//
// Parameters:
//
//	<parameter><valueName>ColourCode</valueName><value>Orange</value></parameter>
//	Collected into a map; later duplicates replace earlier ones.
//
// # Identity
//
// Two alerts are the same alert iff their GUIDs are equal, regardless of
// content. [AlertSet] is keyed by GUID so merging feeds never yields duplicates.
package domain
