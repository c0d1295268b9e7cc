package models

import (
	"sync"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// Shape is the visual shape of a node.
type Shape string

const (
	ShapeCircle  Shape = "circle"
	ShapeRect    Shape = "rect"
	ShapeSquare  Shape = "square"
	ShapeOctagon Shape = "octagon"
	ShapeLabel   Shape = "label"
)

// roleShapes maps a resource role to the shape its node is drawn with.
var roleShapes = map[Role]Shape{
	RoleClass:                 ShapeRect,
	RoleDataRange:             ShapeRect,
	RoleConcept:               ShapeRect,
	RoleConceptScheme:         ShapeRect,
	RoleSkosCollection:        ShapeRect,
	RoleSkosOrderedCollection: ShapeRect,
	RoleIndividual:            ShapeCircle,
	RoleProperty:              ShapeOctagon,
	RoleObjectProperty:        ShapeOctagon,
	RoleDatatypeProperty:      ShapeOctagon,
	RoleAnnotationProperty:    ShapeOctagon,
	RoleOntologyProperty:      ShapeOctagon,
	RoleOntology:              ShapeSquare,
	RoleXLabel:                ShapeSquare,
	RoleLimeLexicon:           ShapeSquare,
	RoleOntolexLexicalEntry:   ShapeSquare,
	RoleOntolexForm:           ShapeSquare,
	RoleOntolexLexicalSense:   ShapeSquare,
	RoleDecompComponent:       ShapeSquare,
	RoleMixed:                 ShapeCircle,
	RoleUndetermined:          ShapeCircle,
}

// ShapeFor returns the shape used to draw a resource.
func ShapeFor(r *Resource) Shape {
	if r.IsLiteral() {
		return ShapeLabel
	}
	if shape, ok := roleShapes[r.Role]; ok {
		return shape
	}
	return ShapeCircle
}

// Measurement constants, in pixels.
const (
	FontSize       = 12.0
	MaxLabelRunes  = 32
	RectHeight     = 26.0
	RectPadding    = 10.0
	RectMinWidth   = 50.0
	OctagonHeight  = 30.0
	OctagonPadding = 14.0
	SquareMinSide  = 40.0
	SquarePadding  = 8.0
	CircleMinR     = 20.0
	CirclePadding  = 6.0
	LabelHeight    = 18.0
	LabelPadding   = 4.0

	UmlHeaderHeight = 24.0
	UmlRowHeight    = 18.0
	UmlPadding      = 8.0
	UmlMinWidth     = 80.0
)

var (
	faceOnce sync.Once
	face     font.Face
	faceMu   sync.Mutex
)

// TextWidth measures s in pixels using the Go Regular face at FontSize.
func TextWidth(s string) float64 {
	faceOnce.Do(func() {
		fnt, err := opentype.Parse(goregular.TTF)
		if err != nil {
			return
		}
		face, _ = opentype.NewFace(fnt, &opentype.FaceOptions{
			Size:    FontSize,
			DPI:     72,
			Hinting: font.HintingNone,
		})
	})
	if face == nil {
		// Rough average advance of a proportional font.
		return float64(utf8.RuneCountInString(s)) * FontSize * 0.6
	}
	faceMu.Lock()
	defer faceMu.Unlock()
	return float64(font.MeasureString(face, s)) / 64
}

// TruncateLabel shortens labels longer than MaxLabelRunes with an ellipsis.
func TruncateLabel(s string) string {
	if utf8.RuneCountInString(s) <= MaxLabelRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxLabelRunes-1]) + "…"
}

// Measure computes the shape-dependent size of the node from its label.
func (n *Node) Measure() {
	if n.Uml != nil {
		n.Uml.layout(n)
		return
	}
	text := TextWidth(n.Label())
	switch n.Shape {
	case ShapeRect:
		n.Width = max(RectMinWidth, text+2*RectPadding)
		n.Height = RectHeight
	case ShapeOctagon:
		n.Width = max(RectMinWidth, text+2*OctagonPadding)
		n.Height = OctagonHeight
	case ShapeSquare:
		side := max(SquareMinSide, text+2*SquarePadding)
		n.Width, n.Height = side, side
	case ShapeLabel:
		n.Width = text + 2*LabelPadding
		n.Height = LabelHeight
	default:
		n.Radius = max(CircleMinR, text/2+CirclePadding)
		n.Width, n.Height = 2*n.Radius, 2*n.Radius
	}
}

// CollisionRadius is the radius used by the collide force.
func (n *Node) CollisionRadius() float64 {
	if n.Shape == ShapeCircle && n.Uml == nil {
		return n.Radius
	}
	return max(n.Width, n.Height) / 2
}
