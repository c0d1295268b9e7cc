// Package models provides the data structures of the graph engine: RDF
// resources, the nodes that wrap them and the links between nodes.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Node wraps a resource in a graph. Identity is by reference; callers keep at
// most one node per non-literal resource.
type Node struct {
	ID       string    `json:"id"`
	Resource *Resource `json:"resource"`
	Shape    Shape     `json:"shape"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Vx       float64   `json:"-"`
	Vy       float64   `json:"-"`
	Fx       *float64  `json:"fx,omitempty"` // pinned x
	Fy       *float64  `json:"fy,omitempty"` // pinned y
	Width    float64   `json:"width"`
	Height   float64   `json:"height"`
	Radius   float64   `json:"radius,omitempty"`
	Root     bool      `json:"root,omitempty"`
	Open     bool      `json:"open,omitempty"`
	Uml      *UmlBody  `json:"uml,omitempty"`

	// Placed is false until the node receives a position, either from the
	// caller or from the simulation's initial placement.
	Placed bool `json:"-"`
	// Index is the node's position in the simulation's node slice.
	Index int `json:"-"`
	// OpenBy lists the nodes whose expansion brought this node into the graph.
	OpenBy []*Node `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// Link is a directed, optionally labeled edge between two nodes.
type Link struct {
	ID         string    `json:"id"`
	Source     *Node     `json:"-"`
	Target     *Node     `json:"-"`
	Predicate  *Resource `json:"predicate,omitempty"`
	ClassAxiom bool      `json:"class_axiom,omitempty"`
	Offset     int       `json:"offset"`
	Loop       bool      `json:"loop,omitempty"`
	// OpenBy lists the nodes whose expansion caused the link to exist.
	OpenBy []*Node `json:"-"`

	// UML connectors
	SubClassOf bool      `json:"sub_class_of,omitempty"`
	Port       *PropInfo `json:"port,omitempty"`
}

// UmlBody turns a node into a UML class box listing its properties.
type UmlBody struct {
	Props []*PropInfo `json:"props"`
}

// PropInfo is one property row of a UML class box. X and Y are the row's text
// anchor relative to the node center.
type PropInfo struct {
	Property *Resource `json:"property"`
	Range    *Resource `json:"range,omitempty"`
	Show     string    `json:"show"`
	Row      int       `json:"row"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
}

// NewNode creates a node for r with a unique ID, its role-derived shape and
// measurements.
func NewNode(r *Resource) *Node {
	n := &Node{
		ID:        uuid.New().String(),
		Resource:  r,
		Shape:     ShapeFor(r),
		CreatedAt: time.Now(),
	}
	n.Measure()
	return n
}

// NewUmlNode creates a UML class node with one row per property.
func NewUmlNode(r *Resource, props []*PropInfo) *Node {
	n := &Node{
		ID:        uuid.New().String(),
		Resource:  r,
		Shape:     ShapeRect,
		Uml:       &UmlBody{Props: props},
		CreatedAt: time.Now(),
	}
	n.Measure()
	return n
}

// NewPropInfo creates a UML row; the display string is "property : range".
func NewPropInfo(property, rng *Resource) *PropInfo {
	show := property.DisplayName()
	if rng != nil {
		show += " : " + rng.DisplayName()
	}
	return &PropInfo{Property: property, Range: rng, Show: show}
}

// NewLink creates a link between two nodes. Class axiom and loop flags are
// derived from the predicate and the endpoints.
func NewLink(source, target *Node, predicate *Resource) *Link {
	l := &Link{
		ID:        uuid.New().String(),
		Source:    source,
		Target:    target,
		Predicate: predicate,
		Loop:      source == target,
	}
	if predicate != nil {
		l.ClassAxiom = IsClassAxiom(predicate.Value)
	}
	return l
}

// Label is the (possibly truncated) text drawn for the node.
func (n *Node) Label() string {
	return TruncateLabel(n.Resource.DisplayName())
}

// SetPosition places the node and marks it as placed.
func (n *Node) SetPosition(x, y float64) {
	n.X = x
	n.Y = y
	n.Placed = true
}

// Pin fixes the node at (x, y) in the simulation.
func (n *Node) Pin(x, y float64) {
	n.Fx = &x
	n.Fy = &y
	n.SetPosition(x, y)
}

// Unpin releases a pinned node.
func (n *Node) Unpin() {
	n.Fx = nil
	n.Fy = nil
}

// Pinned reports whether the node has a fixed position.
func (n *Node) Pinned() bool {
	return n.Fx != nil && n.Fy != nil
}

// IsExpandable reports whether the node may be opened. Literals never are.
func (n *Node) IsExpandable() bool {
	return !n.Resource.IsLiteral()
}

// AddOpener records that opener's expansion references n. It returns false if
// opener was already recorded.
func (n *Node) AddOpener(opener *Node) bool {
	var added bool
	n.OpenBy, added = addNode(n.OpenBy, opener)
	return added
}

// RemoveOpener removes opener and returns the remaining count.
func (n *Node) RemoveOpener(opener *Node) int {
	n.OpenBy = removeNode(n.OpenBy, opener)
	return len(n.OpenBy)
}

// HasOpener reports whether opener is recorded in n.OpenBy.
func (n *Node) HasOpener(opener *Node) bool {
	return containsNode(n.OpenBy, opener)
}

// AddOpener records that opener's expansion produced the link.
func (l *Link) AddOpener(opener *Node) bool {
	var added bool
	l.OpenBy, added = addNode(l.OpenBy, opener)
	return added
}

// RemoveOpener removes opener and returns the remaining count.
func (l *Link) RemoveOpener(opener *Node) int {
	l.OpenBy = removeNode(l.OpenBy, opener)
	return len(l.OpenBy)
}

// HasOpener reports whether opener is recorded in l.OpenBy.
func (l *Link) HasOpener(opener *Node) bool {
	return containsNode(l.OpenBy, opener)
}

// Touches reports whether n is an endpoint of the link.
func (l *Link) Touches(n *Node) bool {
	return l.Source == n || l.Target == n
}

// SameAs reports whether the links connect the same resources in the same
// direction through the same predicate.
func (l *Link) SameAs(other *Link) bool {
	return l.Source.Resource.Equal(other.Source.Resource) &&
		l.Target.Resource.Equal(other.Target.Resource) &&
		l.Predicate.Equal(other.Predicate)
}

// MarshalJSON encodes endpoints by node ID.
func (l *Link) MarshalJSON() ([]byte, error) {
	type alias Link
	return json.Marshal(struct {
		*alias
		Source string `json:"source"`
		Target string `json:"target"`
	}{
		alias:  (*alias)(l),
		Source: l.Source.ID,
		Target: l.Target.ID,
	})
}

func (u *UmlBody) layout(n *Node) {
	width := max(UmlMinWidth, TextWidth(n.Label())+2*UmlPadding)
	for _, p := range u.Props {
		width = max(width, TextWidth(p.Show)+2*UmlPadding)
	}
	n.Width = width
	n.Height = UmlHeaderHeight + float64(len(u.Props))*UmlRowHeight + UmlPadding/2
	top := -n.Height / 2
	for i, p := range u.Props {
		p.Row = i
		p.X = -width/2 + UmlPadding
		p.Y = top + UmlHeaderHeight + float64(i)*UmlRowHeight + UmlRowHeight*0.7
	}
}

// RowCenterY returns the absolute y coordinate of the middle of a UML row.
func (n *Node) RowCenterY(p *PropInfo) float64 {
	return n.Y - n.Height/2 + UmlHeaderHeight + float64(p.Row)*UmlRowHeight + UmlRowHeight/2
}

func addNode(list []*Node, n *Node) ([]*Node, bool) {
	if containsNode(list, n) {
		return list, false
	}
	return append(list, n), true
}

func removeNode(list []*Node, n *Node) []*Node {
	for i, m := range list {
		if m == n {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func containsNode(list []*Node, n *Node) bool {
	for _, m := range list {
		if m == n {
			return true
		}
	}
	return false
}
