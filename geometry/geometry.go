// Package geometry holds the pure, stateless routines that place links on
// the canvas: border intersections, normal vectors, overlap detection and
// SVG path construction.
package geometry

import (
	"fmt"
	"math"
	"strings"

	"github.com/TFMV/ontograph/models"
)

// Curve and loop parameters, in pixels.
const (
	CurveStep = 30.0 // control point displacement per unit of offset
	LoopBase  = 45.0 // distance of loop control points for |offset| == 1
	LoopStep  = 12.0 // extra distance per additional unit of offset
	LoopAngle = math.Pi / 6
	LoopWidth = math.Pi / 9
)

// Point is a 2D coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Scale returns p * k.
func (p Point) Scale(k float64) Point { return Point{p.X * k, p.Y * k} }

// Center returns the position of a node.
func Center(n *models.Node) Point {
	return Point{n.X, n.Y}
}

// IntersectionPoint returns where the segment from `from` to the target's
// center crosses the target's border. Boxed shapes compare the segment slope
// with the box aspect ratio to pick the crossed face; circles offset by the
// radius. A zero-length segment returns `from` unchanged.
func IntersectionPoint(from Point, target *models.Node) Point {
	dx := target.X - from.X
	dy := target.Y - from.Y
	if dx == 0 && dy == 0 {
		return from
	}

	if target.Shape == models.ShapeCircle && target.Uml == nil {
		dist := math.Hypot(dx, dy)
		ratio := target.Radius / dist
		return Point{target.X - dx*ratio, target.Y - dy*ratio}
	}

	w := target.Width / 2
	h := target.Height / 2
	var t float64
	if math.Abs(dy)*w <= math.Abs(dx)*h {
		// slope within the aspect ratio: left or right face
		t = w / math.Abs(dx)
	} else {
		t = h / math.Abs(dy)
	}
	return Point{target.X - dx*t, target.Y - dy*t}
}

// LinkIntersection is IntersectionPoint from the link's source center.
func LinkIntersection(l *models.Link) Point {
	return IntersectionPoint(Center(l.Source), l.Target)
}

// NormalVector returns a vector perpendicular to a→b with the given length.
// Coincident points yield the zero vector.
func NormalVector(a, b Point, length float64) Point {
	nx := -(b.Y - a.Y)
	ny := b.X - a.X
	norm := math.Hypot(nx, ny)
	if norm == 0 {
		return Point{}
	}
	ratio := length / norm
	return Point{nx * ratio, ny * ratio}
}

// AreLinksOverlapped reports whether two links connect the same unordered
// pair of nodes.
func AreLinksOverlapped(l1, l2 *models.Link) bool {
	return (l1.Source == l2.Source && l1.Target == l2.Target) ||
		(l1.Source == l2.Target && l1.Target == l2.Source)
}

// ControlPoint returns the quadratic control point of a curved link; for
// offset 0 it is the segment midpoint.
func ControlPoint(l *models.Link) Point {
	s := Center(l.Source)
	t := Center(l.Target)
	mid := Point{(s.X + t.X) / 2, (s.Y + t.Y) / 2}
	return mid.Add(NormalVector(s, t, float64(l.Offset)*CurveStep))
}

// LinkPath returns the SVG path of a non-UML link: a straight segment for
// offset 0, a quadratic curve otherwise and a cubic loop for self-links.
func LinkPath(l *models.Link) string {
	if l.Loop {
		return LoopPath(l)
	}
	s := Center(l.Source)
	if l.Offset == 0 {
		end := LinkIntersection(l)
		return fmt.Sprintf("M%s L%s", fmtPoint(s), fmtPoint(end))
	}
	c := ControlPoint(l)
	end := IntersectionPoint(c, l.Target)
	return fmt.Sprintf("M%s Q%s %s", fmtPoint(s), fmtPoint(c), fmtPoint(end))
}

// loopControls returns the two cubic control points of a loop link and the
// direction angle of the loop.
func loopControls(l *models.Link) (Point, Point, float64) {
	c := Center(l.Source)
	offset := l.Offset
	if offset == 0 {
		offset = -1
	}
	theta := -math.Pi/2 + float64(offset)*LoopAngle
	r := LoopBase + LoopStep*(math.Abs(float64(offset))-1)
	c1 := c.Add(Point{math.Cos(theta-LoopWidth) * r, math.Sin(theta-LoopWidth) * r})
	c2 := c.Add(Point{math.Cos(theta+LoopWidth) * r, math.Sin(theta+LoopWidth) * r})
	return c1, c2, theta
}

// LoopPath returns the cubic path of a self-link. Loops with different
// offsets leave the node at different angles.
func LoopPath(l *models.Link) string {
	c1, c2, _ := loopControls(l)
	start := IntersectionPoint(c1, l.Source)
	end := IntersectionPoint(c2, l.Source)
	return fmt.Sprintf("M%s C%s %s %s", fmtPoint(start), fmtPoint(c1), fmtPoint(c2), fmtPoint(end))
}

// LabelPosition returns the anchor of a link's predicate label: the curve's
// midpoint, displaced along the normal for curved links.
func LabelPosition(l *models.Link) Point {
	if l.Loop {
		_, _, theta := loopControls(l)
		offset := math.Abs(float64(l.Offset))
		if offset == 0 {
			offset = 1
		}
		r := (LoopBase + LoopStep*(offset-1)) * 0.75
		return Center(l.Source).Add(Point{math.Cos(theta) * r, math.Sin(theta) * r})
	}
	s := Center(l.Source)
	t := Center(l.Target)
	mid := Point{(s.X + t.X) / 2, (s.Y + t.Y) / 2}
	// the quadratic curve passes through mid + normal/2 at t = 0.5
	return mid.Add(NormalVector(s, t, float64(l.Offset)*CurveStep/2))
}

// PolylinePath renders points as an SVG path of straight segments.
func PolylinePath(points []Point) string {
	if len(points) == 0 {
		return ""
	}
	var b strings.Builder
	for i, p := range points {
		if i == 0 {
			b.WriteString("M")
		} else {
			b.WriteString(" L")
		}
		b.WriteString(fmtPoint(p))
	}
	return b.String()
}

func fmtPoint(p Point) string {
	return fmt.Sprintf("%.2f,%.2f", p.X, p.Y)
}
