// Package export turns a rendered SVG into a standalone download: styles
// from the theme are resolved and inlined, framework attributes are dropped
// and the result is encoded as a data URI.
package export

import (
	"bytes"
	"encoding/base64"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	apperrors "github.com/TFMV/ontograph/pkg/errors"
)

const (
	svgNamespace   = "http://www.w3.org/2000/svg"
	xlinkNamespace = "http://www.w3.org/1999/xlink"
	xmlHeader      = `<?xml version="1.0" encoding="UTF-8" standalone="no"?>` + "\n"

	// DataURIPrefix starts every exported document.
	DataURIPrefix = "data:image/svg+xml;base64,"
)

// Properties copied into the style attribute, per element kind.
var (
	shapeProperties = []string{"fill", "stroke", "stroke-width"}
	textProperties  = []string{"font", "font-family", "font-size", "font-weight", "stroke"}
	rootProperties  = []string{"background", "width", "height"}
)

var shapeTags = map[string]bool{
	"rect": true, "circle": true, "ellipse": true, "line": true,
	"polyline": true, "polygon": true, "path": true,
}

var textTags = map[string]bool{
	"text": true, "tspan": true, "textPath": true,
}

var inherited = map[string]bool{
	"fill": true, "stroke": true, "stroke-width": true,
	"font": true, "font-family": true, "font-size": true, "font-weight": true,
}

// Exporter inlines a stylesheet into SVG documents.
type Exporter struct {
	mu     sync.RWMutex
	sheet  *Stylesheet
	logger *zap.Logger
}

// New creates an exporter resolving styles against stylesheet.
func New(stylesheet string, logger *zap.Logger) (*Exporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sheet, err := ParseStylesheet(stylesheet)
	if err != nil {
		return nil, err
	}
	return &Exporter{sheet: sheet, logger: logger}, nil
}

// SetStylesheet replaces the theme used by later exports. On error the
// previous theme stays in place.
func (e *Exporter) SetStylesheet(css string) error {
	sheet, err := ParseStylesheet(css)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.sheet = sheet
	e.mu.Unlock()
	e.logger.Info("export stylesheet updated", zap.Int("rules", sheet.Len()))
	return nil
}

func (e *Exporter) stylesheet() *Stylesheet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sheet
}

// Export inlines styles into doc and returns it as a data URI.
func (e *Exporter) Export(doc []byte) (string, error) {
	out, err := e.Inline(doc)
	if err != nil {
		return "", err
	}
	return DataURI(out), nil
}

// Inline parses doc, resolves every element's style against the theme and
// any <style> elements in the document, strips _ng*/ng-* attributes and
// serializes the tree as XML.
func (e *Exporter) Inline(doc []byte) ([]byte, error) {
	root, err := parseSVG(doc)
	if err != nil {
		return nil, err
	}

	sheet := e.stylesheet()
	if css := extractStyles(root); css != "" {
		if sheet, err = sheet.With(css); err != nil {
			return nil, err
		}
	}

	setAttr(root, "xmlns", svgNamespace)
	if hasXlink(root) {
		setNamespacedAttr(root, "xmlns", "xlink", xlinkNamespace)
	}
	inlineStyles(root, sheet, nil, true)

	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	if err := html.Render(&buf, root); err != nil {
		return nil, apperrors.NewInternal("failed to serialize svg", err)
	}
	buf.WriteByte('\n')

	e.logger.Debug("svg exported",
		zap.Int("input_bytes", len(doc)),
		zap.Int("output_bytes", buf.Len()))
	return buf.Bytes(), nil
}

// DataURI encodes an SVG document as a base64 data URI.
func DataURI(doc []byte) string {
	return DataURIPrefix + base64.StdEncoding.EncodeToString(doc)
}

// DecodeDataURI reverses DataURI.
func DecodeDataURI(uri string) ([]byte, error) {
	payload, ok := strings.CutPrefix(uri, DataURIPrefix)
	if !ok {
		return nil, apperrors.NewValidation("not an svg data uri")
	}
	doc, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, apperrors.NewValidation("invalid base64 payload: " + err.Error())
	}
	return doc, nil
}

func parseSVG(doc []byte) (*html.Node, error) {
	s := string(doc)
	i := strings.Index(s, "<svg")
	if i < 0 {
		return nil, apperrors.NewValidation("document has no <svg> element")
	}
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(s[i:]), context)
	if err != nil {
		return nil, apperrors.NewValidation("invalid svg markup: " + err.Error())
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode && n.Data == "svg" {
			// detach from the fragment's siblings
			n.Parent, n.PrevSibling, n.NextSibling = nil, nil, nil
			return n, nil
		}
	}
	return nil, apperrors.NewValidation("document has no <svg> element")
}

// extractStyles removes <style> elements and returns their text.
func extractStyles(root *html.Node) string {
	var styles []*html.Node
	walk(root, func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "style" {
			styles = append(styles, n)
		}
	})
	var b strings.Builder
	for _, s := range styles {
		for c := s.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
				b.WriteByte('\n')
			}
		}
		s.Parent.RemoveChild(s)
	}
	return b.String()
}

// inlineStyles computes styles top-down. Precedence from low to high is
// inherited values, presentation attributes, stylesheet rules and the
// element's own style attribute.
func inlineStyles(n *html.Node, sheet *Stylesheet, parent map[string]string, isRoot bool) {
	if n.Type != html.ElementNode {
		return
	}
	stripFrameworkAttrs(n)

	computed := make(map[string]string)
	for k, v := range parent {
		if inherited[k] {
			computed[k] = v
		}
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && isPresentation(a.Key) {
			computed[a.Key] = a.Val
		}
	}
	if isRoot {
		for _, k := range []string{"width", "height"} {
			if v, ok := computed[k]; ok {
				computed[k] = withUnit(v)
			}
		}
	}
	for k, v := range sheet.Match(n) {
		computed[k] = v
	}
	own := parseDeclarations(getAttr(n, "style"))
	for _, d := range own {
		computed[d.property] = d.value
	}

	var allowed []string
	switch {
	case isRoot:
		allowed = rootProperties
	case shapeTags[n.Data]:
		allowed = shapeProperties
	case textTags[n.Data]:
		allowed = textProperties
	}
	if allowed != nil {
		setStyle(n, allowed, computed, own)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		inlineStyles(c, sheet, computed, false)
	}
}

func setStyle(n *html.Node, allowed []string, computed map[string]string, own []declaration) {
	var parts []string
	keep := make(map[string]bool, len(allowed))
	for _, p := range allowed {
		keep[p] = true
		if v := computed[p]; v != "" {
			parts = append(parts, p+": "+v)
		}
	}
	for _, d := range own {
		if !keep[d.property] {
			parts = append(parts, d.property+": "+d.value)
		}
	}
	if len(parts) == 0 {
		return
	}
	setAttr(n, "style", strings.Join(parts, "; "))
}

func isPresentation(key string) bool {
	switch key {
	case "fill", "stroke", "stroke-width", "font-family", "font-size", "font-weight", "width", "height":
		return true
	}
	return false
}

// stripFrameworkAttrs drops attributes added by client-side frameworks.
func stripFrameworkAttrs(n *html.Node) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "_ng") || strings.HasPrefix(key, "ng-") {
			continue
		}
		attrs = append(attrs, a)
	}
	n.Attr = attrs
}

// withUnit gives a bare number the px unit CSS requires.
func withUnit(v string) string {
	if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
		return strings.TrimSpace(v) + "px"
	}
	return v
}

func hasXlink(root *html.Node) bool {
	found := false
	walk(root, func(n *html.Node) {
		for _, a := range n.Attr {
			if a.Namespace == "xlink" {
				found = true
			}
		}
	})
	return found
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		walk(c, fn)
		c = next
	}
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	setNamespacedAttr(n, "", key, val)
}

func setNamespacedAttr(n *html.Node, ns, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == ns && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Namespace: ns, Key: key, Val: val})
}
