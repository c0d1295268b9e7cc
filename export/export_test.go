package export

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/TFMV/ontograph/graph"
	"github.com/TFMV/ontograph/models"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
	"github.com/TFMV/ontograph/render"
)

const fixture = `<?xml version="1.0" encoding="UTF-8"?>
<svg _ngcontent-c0="" width="400" height="300" viewBox="0 0 400 300" ng-version="15.0.0">
<style>.node { fill: #ff0000; stroke: #000000; } .node.root { stroke: #00ff00; }</style>
<g _ngcontent-c0="" class="nodes">
  <rect _ngcontent-c0="" class="node" width="10" height="10"/>
  <rect class="node root" ng-reflect-node="[object Object]" width="10" height="10" style="stroke-width: 3; opacity: 0.5"/>
  <text class="label" x="5" y="5">A &amp; B</text>
  <use xlink:href="#arrow"/>
</g>
</svg>`

const theme = `/* base */
svg { background: #fafafa; }
text { font-family: Arial; font-size: 12px; }
.label { font-weight: bold; }
* { stroke-width: 1; }
g > rect { fill: purple; }
#id { fill: purple; }`

type element struct {
	name  string
	attrs map[string]string
	text  string
}

// parseElements decodes doc with encoding/xml and flattens its elements in
// document order.
func parseElements(t *testing.T, doc []byte) []*element {
	t.Helper()
	dec := xml.NewDecoder(bytes.NewReader(doc))
	var (
		out   []*element
		stack []*element
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		switch tok := tok.(type) {
		case xml.StartElement:
			el := &element{name: tok.Name.Local, attrs: map[string]string{}}
			for _, a := range tok.Attr {
				el.attrs[a.Name.Local] = a.Value
			}
			out = append(out, el)
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text += string(tok)
			}
		}
	}
	require.Empty(t, stack)
	return out
}

func byName(els []*element, name string) []*element {
	var out []*element
	for _, el := range els {
		if el.name == name {
			out = append(out, el)
		}
	}
	return out
}

func el(tag, class string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag}
	if class != "" {
		n.Attr = []html.Attribute{{Key: "class", Val: class}}
	}
	return n
}

func mustParse(t *testing.T, css string) *Stylesheet {
	t.Helper()
	sheet, err := ParseStylesheet(css)
	require.NoError(t, err)
	return sheet
}

func TestParseStylesheet(t *testing.T) {
	sheet := mustParse(t, theme)
	assert.Equal(t, 6, sheet.Len())

	sheet = mustParse(t, `rect.a { fill: red; } .a { fill: blue; } .b { fill: green; }`)
	assert.Equal(t, "red", sheet.Match(el("rect", "a"))["fill"])
	assert.Equal(t, "blue", sheet.Match(el("circle", "a"))["fill"])
	assert.Equal(t, "green", sheet.Match(el("circle", "a b"))["fill"], "later rule of equal specificity wins")
	assert.Empty(t, sheet.Match(el("circle", "")))

	grouped := mustParse(t, `.x, line , .y.z { stroke: black }`)
	assert.Equal(t, 3, grouped.Len())
	assert.Equal(t, "black", grouped.Match(el("line", ""))["stroke"])
	assert.Empty(t, grouped.Match(el("path", "y")))
	assert.Equal(t, "black", grouped.Match(el("path", "z y"))["stroke"])

	extended, err := grouped.With(`.x { stroke: white }`)
	require.NoError(t, err)
	assert.Equal(t, "white", extended.Match(el("path", "x"))["stroke"])
	assert.Equal(t, "black", grouped.Match(el("path", "x"))["stroke"])
}

func TestStylesheetCascade(t *testing.T) {
	sheet := mustParse(t, `
/* comment */
.a.b { fill: red; }
.b { fill: green !important; }
g .node { stroke: blue; }
text::selection { fill: pink; }
@media screen { rect { stroke-width: 4; } }
@media print { rect { stroke-width: 9; } }
@font-face { font-family: X; }`)

	assert.Equal(t, "green", sheet.Match(el("circle", "a b"))["fill"], "important beats specificity")

	g := el("g", "")
	rect := el("rect", "node")
	g.AppendChild(rect)
	assert.Equal(t, "blue", sheet.Match(rect)["stroke"])
	assert.Equal(t, "4", sheet.Match(rect)["stroke-width"])
	assert.Empty(t, sheet.Match(el("rect", "node"))["stroke"], "descendant selector needs the ancestor")
	assert.Empty(t, sheet.Match(el("text", ""))["fill"])
}

func TestInline(t *testing.T) {
	e, err := New(theme, zap.NewNop())
	require.NoError(t, err)
	out, err := e.Inline([]byte(fixture))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "<?xml"))
	assert.NotContains(t, string(out), "<style")

	els := parseElements(t, out)
	for _, el := range els {
		for k := range el.attrs {
			assert.False(t, strings.HasPrefix(k, "_ng") || strings.HasPrefix(k, "ng-"), "%s keeps %s", el.name, k)
		}
	}

	root := els[0]
	require.Equal(t, "svg", root.name)
	assert.Equal(t, "background: #fafafa; width: 400px; height: 300px", root.attrs["style"])
	assert.Equal(t, "0 0 400 300", root.attrs["viewBox"])

	rects := byName(els, "rect")
	require.Len(t, rects, 2)
	assert.Equal(t, "fill: #ff0000; stroke: #000000; stroke-width: 1", rects[0].attrs["style"])
	assert.Equal(t, "fill: #ff0000; stroke: #00ff00; stroke-width: 3; opacity: 0.5", rects[1].attrs["style"])

	texts := byName(els, "text")
	require.Len(t, texts, 1)
	assert.Equal(t, "font-family: Arial; font-size: 12px; font-weight: bold", texts[0].attrs["style"])
	assert.Equal(t, "A & B", texts[0].text)

	uses := byName(els, "use")
	require.Len(t, uses, 1)
	assert.Equal(t, "#arrow", uses[0].attrs["href"])
	assert.Contains(t, string(out), `xmlns="http://www.w3.org/2000/svg"`)
	assert.Contains(t, string(out), `xmlns:xlink="http://www.w3.org/1999/xlink"`)
}

func TestExportDataURI(t *testing.T) {
	e, err := New(theme, nil)
	require.NoError(t, err)
	uri, err := e.Export([]byte(fixture))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, DataURIPrefix))

	doc, err := DecodeDataURI(uri)
	require.NoError(t, err)
	assert.NotContains(t, string(doc), "_ng")
	assert.NotContains(t, string(doc), "ng-version")
	parseElements(t, doc)

	_, err = DecodeDataURI("data:text/plain;base64,aGk=")
	assert.True(t, apperrors.IsValidation(err))
	_, err = DecodeDataURI(DataURIPrefix + "%%%")
	assert.True(t, apperrors.IsValidation(err))
}

func TestInlineRejectsNonSVG(t *testing.T) {
	e, err := New("", nil)
	require.NoError(t, err)
	_, err = e.Inline([]byte("<html><body>nope</body></html>"))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestSetStylesheet(t *testing.T) {
	e, err := New(`rect { fill: red; }`, nil)
	require.NoError(t, err)
	out, err := e.Inline([]byte(`<svg><rect/></svg>`))
	require.NoError(t, err)
	assert.Equal(t, "fill: red", byName(parseElements(t, out), "rect")[0].attrs["style"])

	require.NoError(t, e.SetStylesheet(`rect { fill: blue; }`))
	out, err = e.Inline([]byte(`<svg><rect/></svg>`))
	require.NoError(t, err)
	assert.Equal(t, "fill: blue", byName(parseElements(t, out), "rect")[0].attrs["style"])
}

func TestInlineRootSizeUnits(t *testing.T) {
	e, err := New("", nil)
	require.NoError(t, err)
	out, err := e.Inline([]byte(`<svg width="100%" height="20"><rect/></svg>`))
	require.NoError(t, err)
	assert.Equal(t, "width: 100%; height: 20px", parseElements(t, out)[0].attrs["style"])
	assert.Equal(t, "2.5em", withUnit("2.5em"))
	assert.Equal(t, "12.5px", withUnit(" 12.5 "))
}

func TestExportRenderedGraph(t *testing.T) {
	cls := models.NewNode(models.NewIRI("http://example.org/Dog", models.RoleClass))
	cls.SetPosition(100, 100)
	cls.Root = true
	super := models.NewNode(models.NewIRI("http://example.org/Animal", models.RoleClass))
	super.SetPosition(300, 100)
	link := models.NewLink(cls, super, models.NewIRI(models.RDFSSubClassOf, ""))
	snap := &graph.Snapshot{
		Nodes:  []*models.Node{cls, super},
		Links:  []*models.Link{link},
		Width:  400,
		Height: 200,
	}

	doc, err := render.Render(snap, render.NewDefaultOptions("svg"))
	require.NoError(t, err)

	e, err := New("", nil)
	require.NoError(t, err)
	out, err := e.Inline(doc)
	require.NoError(t, err)
	els := parseElements(t, out)

	assert.Equal(t, "background: #ffffff; width: 400px; height: 200px", els[0].attrs["style"])
	for _, p := range byName(els, "path") {
		if p.attrs["class"] == "link class-axiom" {
			assert.Equal(t, "fill: none; stroke: #8e6bbf; stroke-width: 1.2", p.attrs["style"])
		}
	}
	var rootRect *element
	for _, r := range byName(els, "rect") {
		if strings.Contains(r.attrs["class"], "root") {
			rootRect = r
		}
	}
	require.NotNil(t, rootRect)
	assert.Equal(t, "fill: #f8c291; stroke: #d1495b; stroke-width: 2.5", rootRect.attrs["style"])
}
