// Package render turns graph snapshots into SVG, JSON and Graphviz DOT
// documents.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/TFMV/ontograph/graph"
	"github.com/TFMV/ontograph/models"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
)

// OutputOptions defines rendering configuration options
type OutputOptions struct {
	Format         string  // Output format (svg, json, dot)
	Width          float64 // Width of the output; 0 uses the snapshot's canvas
	Height         float64 // Height of the output; 0 uses the snapshot's canvas
	Background     string  // Background color
	Theme          string  // CSS stylesheet embedded in SVG output
	Timestamp      bool    // Include timestamp in the output
	ShowLabels     bool    // Show node labels
	ShowLinkLabels bool    // Show predicate labels on links
}

// Renderer interface defines methods that all rendering backends must implement
type Renderer interface {
	// Render creates a document from a graph snapshot
	Render(snap *graph.Snapshot, options *OutputOptions) ([]byte, error)

	// Name returns the name of the renderer
	Name() string

	// Description returns a description of the renderer
	Description() string
}

// NewDefaultOptions creates a default set of output options
func NewDefaultOptions(format string) *OutputOptions {
	return &OutputOptions{
		Format:         format,
		Background:     "#ffffff",
		Theme:          DefaultTheme,
		ShowLabels:     true,
		ShowLinkLabels: true,
	}
}

// Formats lists the formats accepted by GetRenderer.
func Formats() []string {
	return []string{"svg", "json", "dot"}
}

// GetRenderer returns the appropriate renderer based on format
func GetRenderer(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "svg":
		return &SVGRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	case "dot":
		return &DOTRenderer{}, nil
	default:
		return nil, apperrors.NewValidation(fmt.Sprintf("unsupported output format: %s", format))
	}
}

// Render renders a snapshot in the format named by options.
func Render(snap *graph.Snapshot, options *OutputOptions) ([]byte, error) {
	if options == nil {
		options = NewDefaultOptions("svg")
	}
	r, err := GetRenderer(options.Format)
	if err != nil {
		return nil, err
	}
	return r.Render(snap, options)
}

// canvas returns the output size, falling back to the snapshot's canvas.
func canvas(snap *graph.Snapshot, options *OutputOptions) (float64, float64) {
	w, h := options.Width, options.Height
	if w <= 0 {
		w = snap.Width
	}
	if h <= 0 {
		h = snap.Height
	}
	return w, h
}

// JSONRenderer outputs raw JSON format
type JSONRenderer struct{}

// Name returns the name of the renderer
func (r *JSONRenderer) Name() string {
	return "JSON Renderer"
}

// Description returns a description of the renderer
func (r *JSONRenderer) Description() string {
	return "Renders the graph as JSON data for machine consumption or custom visualizations"
}

// Render creates a JSON representation of the graph
func (r *JSONRenderer) Render(snap *graph.Snapshot, options *OutputOptions) ([]byte, error) {
	if snap == nil {
		return nil, apperrors.NewValidation("snapshot is required")
	}
	if options == nil {
		options = NewDefaultOptions("json")
	}

	type jsonGraph struct {
		Nodes    []*models.Node         `json:"nodes"`
		Links    []*models.Link         `json:"links"`
		Metadata map[string]interface{} `json:"metadata"`
	}

	width, height := canvas(snap, options)
	out := jsonGraph{
		Nodes: snap.Nodes,
		Links: snap.Links,
		Metadata: map[string]interface{}{
			"width":     width,
			"height":    height,
			"dynamic":   snap.Dynamic,
			"version":   snap.Version,
			"nodeCount": len(snap.Nodes),
			"linkCount": len(snap.Links),
		},
	}
	if out.Nodes == nil {
		out.Nodes = []*models.Node{}
	}
	if out.Links == nil {
		out.Links = []*models.Link{}
	}
	if options.Timestamp {
		out.Metadata["timestamp"] = time.Now().Format(time.RFC3339)
	}

	return json.MarshalIndent(out, "", "  ")
}

// DOTRenderer outputs Graphviz DOT format
type DOTRenderer struct{}

// Name returns the name of the renderer
func (r *DOTRenderer) Name() string {
	return "DOT Renderer"
}

// Description returns a description of the renderer
func (r *DOTRenderer) Description() string {
	return "Renders the graph in Graphviz DOT format for compatibility with Graphviz tools"
}

var dotShapes = map[models.Shape]string{
	models.ShapeRect:    "box",
	models.ShapeOctagon: "octagon",
	models.ShapeSquare:  "square",
	models.ShapeCircle:  "ellipse",
	models.ShapeLabel:   "plaintext",
}

var (
	dotEscaper    = strings.NewReplacer(`"`, `\"`, "\n", `\n`)
	recordEscaper = strings.NewReplacer("|", `\|`, "{", `\{`, "}", `\}`, "<", `\<`, ">", `\>`)
)

// Render creates a DOT representation of the graph. Positions are pinned in
// points so neato -n keeps the simulated layout.
func (r *DOTRenderer) Render(snap *graph.Snapshot, options *OutputOptions) ([]byte, error) {
	if snap == nil {
		return nil, apperrors.NewValidation("snapshot is required")
	}
	if options == nil {
		options = NewDefaultOptions("dot")
	}
	var buf bytes.Buffer
	width, height := canvas(snap, options)

	buf.WriteString("digraph G {\n")
	fmt.Fprintf(&buf, "  graph [bgcolor=\"%s\", size=\"%.2f,%.2f\"];\n",
		dotEscaper.Replace(options.Background), width/72.0, height/72.0)
	fmt.Fprintf(&buf, "  node [fontname=\"Arial\", fontsize=%.1f];\n", models.FontSize)
	fmt.Fprintf(&buf, "  edge [fontname=\"Arial\", fontsize=%.1f];\n", models.FontSize*0.8)

	for _, node := range snap.Nodes {
		shape := dotShapes[node.Shape]
		if node.Uml != nil {
			shape = "record"
		}
		if shape == "" {
			shape = "ellipse"
		}
		fmt.Fprintf(&buf, "  \"%s\" [label=\"%s\", shape=%s, pos=\"%.2f,%.2f!\"];\n",
			node.ID, dotEscaper.Replace(dotLabel(node)), shape, node.X, -node.Y)
	}

	for _, link := range snap.Links {
		style := "solid"
		if link.ClassAxiom || link.SubClassOf {
			style = "dashed"
		}
		label := ""
		if link.Predicate != nil && options.ShowLinkLabels {
			label = link.Predicate.DisplayName()
		}
		fmt.Fprintf(&buf, "  \"%s\" -> \"%s\" [label=\"%s\", style=%s];\n",
			link.Source.ID, link.Target.ID, dotEscaper.Replace(label), style)
	}

	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// dotLabel renders UML boxes as record labels.
func dotLabel(n *models.Node) string {
	if n.Uml == nil {
		return n.Label()
	}
	rows := make([]string, 0, len(n.Uml.Props)+1)
	rows = append(rows, recordEscaper.Replace(n.Label()))
	for _, p := range n.Uml.Props {
		rows = append(rows, recordEscaper.Replace(p.Show))
	}
	return "{" + strings.Join(rows, "|") + "}"
}
