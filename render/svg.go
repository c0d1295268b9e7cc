package render

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/TFMV/ontograph/geometry"
	"github.com/TFMV/ontograph/graph"
	"github.com/TFMV/ontograph/models"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
)

// SVGRenderer outputs SVG format
type SVGRenderer struct{}

// Name returns the name of the renderer
func (r *SVGRenderer) Name() string {
	return "SVG Renderer"
}

// Description returns a description of the renderer
func (r *SVGRenderer) Description() string {
	return "Renders graphs as Scalable Vector Graphics (SVG) with role-styled node shapes and curved links"
}

// Render creates an SVG representation of the graph. Links are drawn below
// nodes so arrows end on the node borders.
func (r *SVGRenderer) Render(snap *graph.Snapshot, options *OutputOptions) ([]byte, error) {
	if snap == nil {
		return nil, apperrors.NewValidation("snapshot is required")
	}
	if options == nil {
		options = NewDefaultOptions("svg")
	}
	var buf bytes.Buffer
	width, height := canvas(snap, options)

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="no"?>` + "\n")
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" class="ontograph" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">`+"\n",
		width, height, width, height)

	if options.Theme != "" {
		buf.WriteString("<style>")
		writeText(&buf, options.Theme)
		buf.WriteString("</style>\n")
	}

	buf.WriteString(`<defs>
  <marker id="arrow" viewBox="0 0 10 10" refX="10" refY="5" markerWidth="6" markerHeight="6" orient="auto">
    <path class="marker" d="M0,0 L10,5 L0,10 z"/>
  </marker>
  <marker id="arrow-hollow" viewBox="0 0 10 10" refX="10" refY="5" markerWidth="10" markerHeight="10" orient="auto">
    <path class="marker-hollow" d="M0,0 L10,5 L0,10 z"/>
  </marker>
</defs>
`)

	if options.Background != "" {
		fmt.Fprintf(&buf, `<rect class="background" width="100%%" height="100%%" fill="%s"/>`+"\n", attr(options.Background))
	}

	buf.WriteString(`<g class="links">` + "\n")
	for _, link := range snap.Links {
		writeLink(&buf, link, options)
	}
	buf.WriteString("</g>\n")

	buf.WriteString(`<g class="nodes">` + "\n")
	for _, node := range snap.Nodes {
		writeNode(&buf, node, options)
	}
	buf.WriteString("</g>\n")

	if options.Timestamp {
		fmt.Fprintf(&buf, `<text class="timestamp" x="5" y="%.0f">%s</text>`+"\n",
			height-5, time.Now().Format("2006-01-02 15:04:05"))
	}

	buf.WriteString("</svg>\n")
	return buf.Bytes(), nil
}

func writeLink(buf *bytes.Buffer, l *models.Link, options *OutputOptions) {
	if l.Source == nil || l.Target == nil {
		return
	}

	if l.Source.Uml != nil && l.Target.Uml != nil {
		route := geometry.ArrowPosition(l)
		if route.Kind == geometry.RouteNone || len(route.Points) < 2 {
			return
		}
		class, marker := "link uml-link", "arrow"
		if l.SubClassOf {
			class, marker = "link subclass", "arrow-hollow"
		}
		fmt.Fprintf(buf, `<path class="%s" data-id="%s" d="%s" marker-end="url(#%s)"/>`+"\n",
			class, attr(l.ID), route.Path(), marker)
		return
	}

	class := "link"
	dash := ""
	if l.ClassAxiom {
		class += " class-axiom"
		dash = ` stroke-dasharray="5,3"`
	}
	if l.Loop {
		class += " loop"
	}
	fmt.Fprintf(buf, `<path class="%s" data-id="%s" d="%s"%s marker-end="url(#arrow)"/>`+"\n",
		class, attr(l.ID), geometry.LinkPath(l), dash)

	if options.ShowLinkLabels && l.Predicate != nil {
		p := geometry.LabelPosition(l)
		fmt.Fprintf(buf, `<text class="link-label" x="%.2f" y="%.2f" text-anchor="middle">`, p.X, p.Y)
		writeText(buf, l.Predicate.DisplayName())
		buf.WriteString("</text>\n")
	}
}

func writeNode(buf *bytes.Buffer, n *models.Node, options *OutputOptions) {
	fmt.Fprintf(buf, `<g class="node" data-id="%s" transform="translate(%.2f,%.2f)">`+"\n", attr(n.ID), n.X, n.Y)
	if n.Uml != nil {
		writeUml(buf, n)
		buf.WriteString("</g>\n")
		return
	}

	w, h := n.Width/2, n.Height/2
	class := nodeClass(n, string(n.Shape))
	switch n.Shape {
	case models.ShapeRect:
		fmt.Fprintf(buf, `  <rect class="%s" x="%.2f" y="%.2f" width="%.2f" height="%.2f" rx="3"/>`+"\n",
			class, -w, -h, n.Width, n.Height)
	case models.ShapeSquare, models.ShapeLabel:
		fmt.Fprintf(buf, `  <rect class="%s" x="%.2f" y="%.2f" width="%.2f" height="%.2f"/>`+"\n",
			class, -w, -h, n.Width, n.Height)
	case models.ShapeOctagon:
		fmt.Fprintf(buf, `  <polygon class="%s" points="%s"/>`+"\n", class, octagonPoints(w, h))
	default:
		fmt.Fprintf(buf, `  <circle class="%s" r="%.2f"/>`+"\n", class, n.Radius)
	}

	if options.ShowLabels {
		buf.WriteString(`  <text class="node-label" text-anchor="middle" dy="0.35em">`)
		writeText(buf, n.Label())
		buf.WriteString("</text>\n")
	}
	buf.WriteString("</g>\n")
}

// writeUml draws a class box: a bold header, a separator and one text row
// per property.
func writeUml(buf *bytes.Buffer, n *models.Node) {
	w, h := n.Width/2, n.Height/2
	fmt.Fprintf(buf, `  <rect class="%s" x="%.2f" y="%.2f" width="%.2f" height="%.2f"/>`+"\n",
		nodeClass(n, "uml"), -w, -h, n.Width, n.Height)
	fmt.Fprintf(buf, `  <text class="uml-title" y="%.2f" text-anchor="middle">`, -h+models.UmlHeaderHeight*0.65)
	writeText(buf, n.Label())
	buf.WriteString("</text>\n")
	sep := -h + models.UmlHeaderHeight
	fmt.Fprintf(buf, `  <line class="uml-separator" x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f"/>`+"\n", -w, sep, w, sep)
	for _, p := range n.Uml.Props {
		fmt.Fprintf(buf, `  <text class="uml-row" x="%.2f" y="%.2f">`, p.X, p.Y)
		writeText(buf, p.Show)
		buf.WriteString("</text>\n")
	}
}

// nodeClass lists the CSS classes of a node's shape element.
func nodeClass(n *models.Node, shape string) string {
	classes := []string{"shape", shape}
	if n.Resource != nil && n.Resource.Role != "" {
		if role := cssIdent(string(n.Resource.Role)); role != "" {
			classes = append(classes, role)
		}
	}
	if n.Root {
		classes = append(classes, "root")
	}
	if n.Open {
		classes = append(classes, "open")
	}
	if n.Pinned() {
		classes = append(classes, "pinned")
	}
	return strings.Join(classes, " ")
}

// octagonPoints returns the polygon of an octagon with half extents w, h.
func octagonPoints(w, h float64) string {
	c := min(w, h) / 2
	pts := []geometry.Point{
		{X: -w + c, Y: -h}, {X: w - c, Y: -h},
		{X: w, Y: -h + c}, {X: w, Y: h - c},
		{X: w - c, Y: h}, {X: -w + c, Y: h},
		{X: -w, Y: h - c}, {X: -w, Y: -h + c},
	}
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = fmt.Sprintf("%.2f,%.2f", p.X, p.Y)
	}
	return strings.Join(parts, " ")
}

// cssIdent drops every character that cannot appear in a class name.
func cssIdent(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, s)
}

func writeText(buf *bytes.Buffer, s string) {
	_ = xml.EscapeText(buf, []byte(s))
}

func attr(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
