package geo

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
)

// ConvexHull returns the closed counter-clockwise convex hull of points
// (Andrew's monotone chain). Fewer than three distinct points yield nil.
func ConvexHull(points []orb.Point) orb.Ring {
	pts := uniquePoints(points)
	if len(pts) < 3 {
		return nil
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})

	hull := make([]orb.Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	if len(hull) < 4 {
		return nil
	}
	// The monotone chain already ends on the starting point.
	return orb.Ring(hull)
}

// ConcaveHull wraps the exterior vertices of mp in a single simple polygon
// that contains every vertex. It starts from the convex hull and digs each
// edge towards the closest interior vertex while edge length over that
// vertex's distance to the nearer endpoint exceeds concavity. A vertex is
// only taken when it is closer to the edge than to either neighbouring
// edge, the two new edges cross nothing on the ring, and no other vertex
// would be cut off. Larger concavity gives a smoother, more convex result.
func ConcaveHull(mp orb.MultiPolygon, concavity float64) orb.Polygon {
	var points []orb.Point
	for _, p := range mp {
		if len(p) == 0 {
			continue
		}
		points = append(points, p[0]...)
	}

	hull := ConvexHull(points)
	if hull == nil {
		return nil
	}

	onHull := make(map[orb.Point]bool, len(hull))
	for _, p := range hull {
		onHull[p] = true
	}
	interior := quadtree.New(orb.MultiPoint(points).Bound())
	remaining := 0
	for _, p := range uniquePoints(points) {
		if onHull[p] {
			continue
		}
		if err := interior.Add(p); err == nil {
			remaining++
		}
	}
	if remaining == 0 {
		return orb.Polygon{hull}
	}

	// The ring is kept as a circular list; each node owns the edge to its
	// successor.
	nodes := make([]*hullNode, len(hull)-1)
	for i := range nodes {
		nodes[i] = &hullNode{p: hull[i]}
	}
	for i, n := range nodes {
		n.next = nodes[(i+1)%len(nodes)]
		n.prev = nodes[(i+len(nodes)-1)%len(nodes)]
	}
	head := nodes[0]

	queue := append([]*hullNode(nil), nodes...)
	for len(queue) > 0 && remaining > 0 {
		n := queue[0]
		queue = queue[1:]

		p, ok := digCandidate(interior, head, n, concavity)
		if !ok {
			continue
		}
		interior.Remove(p, nil)
		remaining--

		dug := &hullNode{p: p, prev: n, next: n.next}
		n.next.prev = dug
		n.next = dug
		queue = append([]*hullNode{n, dug}, queue...)
	}

	ring := orb.Ring{head.p}
	for n := head.next; n != head; n = n.next {
		ring = append(ring, n.p)
	}
	ring = append(ring, head.p)
	return orb.Polygon{ring}
}

type hullNode struct {
	p          orb.Point
	prev, next *hullNode
}

// digCandidate picks the interior vertex the edge from n to n.next should
// be dug towards, closest first.
func digCandidate(interior *quadtree.Quadtree, head, n *hullNode, concavity float64) (orb.Point, bool) {
	a, b := n.p, n.next.p
	length := distance(a, b)
	reach := length / concavity
	if !(reach > 0) {
		return orb.Point{}, false
	}

	search := orb.Bound{Min: a, Max: a}.Extend(b).Pad(reach)
	var candidates []orb.Point
	for _, ptr := range interior.InBound(nil, search) {
		p := ptr.Point()
		if math.Min(distance(p, a), distance(p, b)) < reach {
			candidates = append(candidates, p)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		di, dj := segmentDistance(candidates[i], a, b), segmentDistance(candidates[j], a, b)
		if di != dj {
			return di < dj
		}
		return lessPoint(candidates[i], candidates[j])
	})

	for _, p := range candidates {
		d := segmentDistance(p, a, b)
		if segmentDistance(p, n.prev.p, a) <= d || segmentDistance(p, b, n.next.next.p) <= d {
			continue
		}
		if crossesRing(head, n, a, p) || crossesRing(head, n, p, b) {
			continue
		}
		if cutsOff(interior, a, p, b) {
			continue
		}
		return p, true
	}
	return orb.Point{}, false
}

// crossesRing reports whether segment p-q meets any ring edge other than
// the one owned by skip, ignoring a shared endpoint.
func crossesRing(head, skip *hullNode, p, q orb.Point) bool {
	n := head
	for {
		if n != skip && segmentsMeet(p, q, n.p, n.next.p) {
			return true
		}
		n = n.next
		if n == head {
			return false
		}
	}
}

// cutsOff reports whether digging a-b towards p would leave another
// interior vertex outside the ring: strictly inside triangle a-p-b, or on
// the replaced edge a-b but not on either new edge.
func cutsOff(interior *quadtree.Quadtree, a, p, b orb.Point) bool {
	tri := orb.Bound{Min: a, Max: a}.Extend(p).Extend(b)
	for _, ptr := range interior.InBound(nil, tri) {
		q := ptr.Point()
		if q == p {
			continue
		}
		c1, c2, c3 := cross(a, p, q), cross(p, b, q), cross(b, a, q)
		if (c1 > 0 && c2 > 0 && c3 > 0) || (c1 < 0 && c2 < 0 && c3 < 0) {
			return true
		}
		onReplaced := c3 == 0 && onSegment(a, b, q)
		onNew := (c1 == 0 && onSegment(a, p, q)) || (c2 == 0 && onSegment(p, b, q))
		if onReplaced && !onNew {
			return true
		}
	}
	return false
}

// segmentsMeet reports whether segments p1-p2 and q1-q2 share any point
// besides a single common endpoint.
func segmentsMeet(p1, p2, q1, q2 orb.Point) bool {
	shared := p1 == q1 || p1 == q2 || p2 == q1 || p2 == q2
	if shared {
		if (p1 == q1 && p2 == q2) || (p1 == q2 && p2 == q1) {
			return true
		}
		// Only a collinear overlap counts when an endpoint is shared.
		var o, x, y orb.Point
		switch {
		case p1 == q1:
			o, x, y = p1, p2, q2
		case p1 == q2:
			o, x, y = p1, p2, q1
		case p2 == q1:
			o, x, y = p2, p1, q2
		default:
			o, x, y = p2, p1, q1
		}
		if cross(o, x, y) != 0 {
			return false
		}
		return (x[0]-o[0])*(y[0]-o[0])+(x[1]-o[1])*(y[1]-o[1]) > 0
	}

	d1, d2 := cross(q1, q2, p1), cross(q1, q2, p2)
	d3, d4 := cross(p1, p2, q1), cross(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}

// onSegment reports whether p, already collinear with a-b, lies within it.
func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

func segmentDistance(p, a, b orb.Point) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return distance(p, a)
	}
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return distance(p, orb.Point{a[0] + t*dx, a[1] + t*dy})
}

func distance(a, b orb.Point) float64 {
	return math.Hypot(a[0]-b[0], a[1]-b[1])
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func lessPoint(a, b orb.Point) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	return a[1] < b[1]
}

func uniquePoints(points []orb.Point) []orb.Point {
	seen := make(map[orb.Point]bool, len(points))
	out := make([]orb.Point, 0, len(points))
	for _, p := range points {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
