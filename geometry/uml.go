package geometry

import (
	"github.com/TFMV/ontograph/models"
)

// PortMargin is the horizontal clearance of bracket routes around a box.
const PortMargin = 20.0

// RouteKind names the connector shapes of the UML view.
type RouteKind string

const (
	RouteNone     RouteKind = "none"     // boxes overlap, nothing is drawn
	RouteStraight RouteKind = "straight" // single horizontal or vertical stub
	RouteElbow    RouteKind = "elbow"    // L-shape leaving the left or right side
	RouteBracket  RouteKind = "bracket"  // around the right side of both boxes
	RouteSubClass RouteKind = "subclass" // leaves above or below toward the superclass
)

// Route is a UML connector as a polyline.
type Route struct {
	Kind   RouteKind `json:"kind"`
	Points []Point   `json:"points"`
}

// Path renders the route as an SVG path.
func (r Route) Path() string {
	return PolylinePath(r.Points)
}

type box struct {
	x, y                     float64
	left, right, top, bottom float64
}

func boxOf(n *models.Node) box {
	return box{
		x: n.X, y: n.Y,
		left: n.X - n.Width/2, right: n.X + n.Width/2,
		top: n.Y - n.Height/2, bottom: n.Y + n.Height/2,
	}
}

// horizontal returns +1 when t lies entirely right of s, -1 when entirely
// left and 0 when their horizontal extents overlap.
func horizontal(s, t box) int {
	switch {
	case t.left > s.right:
		return 1
	case t.right < s.left:
		return -1
	}
	return 0
}

// vertical returns +1 when y is above t (t lies below), -1 when y is below t
// and 0 when y falls within t's vertical extent.
func vertical(y float64, t box) int {
	switch {
	case y < t.top:
		return 1
	case y > t.bottom:
		return -1
	}
	return 0
}

// boxVertical compares whole boxes: +1 when t lies entirely below s, -1
// when entirely above, 0 when they overlap vertically.
func boxVertical(s, t box) int {
	switch {
	case t.top > s.bottom:
		return 1
	case t.bottom < s.top:
		return -1
	}
	return 0
}

// ArrowPosition routes a UML connector. Each combination of horizontal
// side, vertical side and relation kind is its own rule.
func ArrowPosition(l *models.Link) Route {
	s := boxOf(l.Source)
	t := boxOf(l.Target)

	if l.Source == l.Target {
		return selfRoute(l, s)
	}
	if l.SubClassOf {
		return subClassRoute(s, t)
	}

	startY := s.y
	if l.Port != nil {
		startY = l.Source.RowCenterY(l.Port)
	}

	h := horizontal(s, t)
	v := vertical(startY, t)
	switch {
	case h == 1 && v == 0:
		return Route{RouteStraight, []Point{{s.right, startY}, {t.left, startY}}}
	case h == -1 && v == 0:
		return Route{RouteStraight, []Point{{s.left, startY}, {t.right, startY}}}
	case h == 1 && v == 1:
		return Route{RouteElbow, []Point{{s.right, startY}, {t.x, startY}, {t.x, t.top}}}
	case h == 1 && v == -1:
		return Route{RouteElbow, []Point{{s.right, startY}, {t.x, startY}, {t.x, t.bottom}}}
	case h == -1 && v == 1:
		return Route{RouteElbow, []Point{{s.left, startY}, {t.x, startY}, {t.x, t.top}}}
	case h == -1 && v == -1:
		return Route{RouteElbow, []Point{{s.left, startY}, {t.x, startY}, {t.x, t.bottom}}}
	default:
		// horizontally overlapping boxes: go around their right sides
		x := max(s.right, t.right) + PortMargin
		return Route{RouteBracket, []Point{{s.right, startY}, {x, startY}, {x, t.y}, {t.right, t.y}}}
	}
}

func subClassRoute(s, t box) Route {
	h := horizontal(s, t)
	v := boxVertical(s, t)
	switch {
	case v == -1 && h == 0:
		x := (max(s.left, t.left) + min(s.right, t.right)) / 2
		return Route{RouteStraight, []Point{{x, s.top}, {x, t.bottom}}}
	case v == -1:
		midY := (s.top + t.bottom) / 2
		return Route{RouteSubClass, []Point{{s.x, s.top}, {s.x, midY}, {t.x, midY}, {t.x, t.bottom}}}
	case v == 1 && h == 0:
		x := (max(s.left, t.left) + min(s.right, t.right)) / 2
		return Route{RouteStraight, []Point{{x, s.bottom}, {x, t.top}}}
	case v == 1:
		midY := (s.bottom + t.top) / 2
		return Route{RouteSubClass, []Point{{s.x, s.bottom}, {s.x, midY}, {t.x, midY}, {t.x, t.top}}}
	case h == 1 && s.y >= t.top && s.y <= t.bottom:
		return Route{RouteStraight, []Point{{s.right, s.y}, {t.left, s.y}}}
	case h == 1 && s.y < t.top:
		return Route{RouteElbow, []Point{{s.right, s.y}, {t.x, s.y}, {t.x, t.top}}}
	case h == 1:
		return Route{RouteElbow, []Point{{s.right, s.y}, {t.x, s.y}, {t.x, t.bottom}}}
	case h == -1 && s.y >= t.top && s.y <= t.bottom:
		return Route{RouteStraight, []Point{{s.left, s.y}, {t.right, s.y}}}
	case h == -1 && s.y < t.top:
		return Route{RouteElbow, []Point{{s.left, s.y}, {t.x, s.y}, {t.x, t.top}}}
	case h == -1:
		return Route{RouteElbow, []Point{{s.left, s.y}, {t.x, s.y}, {t.x, t.bottom}}}
	default:
		return Route{Kind: RouteNone}
	}
}

// selfRoute loops a property row back to the header of its own class.
func selfRoute(l *models.Link, s box) Route {
	startY := s.y
	if l.Port != nil {
		startY = l.Source.RowCenterY(l.Port)
	}
	x := s.right + PortMargin
	headerY := s.top + models.UmlHeaderHeight/2
	return Route{RouteBracket, []Point{{s.right, startY}, {x, startY}, {x, headerY}, {s.right, headerY}}}
}
