package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TFMV/ontograph/models"
)

func umlBox(x, y float64) *models.Node {
	n := models.NewUmlNode(models.NewIRI("http://ex.org/C", models.RoleClass), nil)
	n.Width, n.Height = 100, 60
	n.SetPosition(x, y)
	return n
}

func TestArrowPositionPropertyRules(t *testing.T) {
	tests := []struct {
		name     string
		tx, ty   float64
		wantKind RouteKind
		want     []Point
	}{
		{"right level", 300, 0, RouteStraight, []Point{{50, 0}, {250, 0}}},
		{"left level", -300, 10, RouteStraight, []Point{{-50, 0}, {-250, 0}}},
		{"right below", 300, 200, RouteElbow, []Point{{50, 0}, {300, 0}, {300, 170}}},
		{"right above", 300, -200, RouteElbow, []Point{{50, 0}, {300, 0}, {300, -170}}},
		{"left below", -300, 200, RouteElbow, []Point{{-50, 0}, {-300, 0}, {-300, 170}}},
		{"left above", -300, -200, RouteElbow, []Point{{-50, 0}, {-300, 0}, {-300, -170}}},
		{"stacked below", 20, 200, RouteBracket, []Point{{50, 0}, {90, 0}, {90, 200}, {70, 200}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := umlBox(0, 0)
			dst := umlBox(tt.tx, tt.ty)
			r := ArrowPosition(models.NewLink(src, dst, nil))
			assert.Equal(t, tt.wantKind, r.Kind)
			assert.Equal(t, tt.want, r.Points)
		})
	}
}

func TestArrowPositionPortRow(t *testing.T) {
	prop := models.NewPropInfo(models.NewIRI("http://ex.org/knows", models.RoleObjectProperty), nil)
	src := models.NewUmlNode(models.NewIRI("http://ex.org/A", models.RoleClass), []*models.PropInfo{prop})
	src.SetPosition(0, 0)
	dst := umlBox(400, 0)

	l := models.NewLink(src, dst, prop.Property)
	l.Port = prop
	r := ArrowPosition(l)

	assert.Equal(t, RouteStraight, r.Kind)
	assert.InDelta(t, src.RowCenterY(prop), r.Points[0].Y, 1e-9)
	assert.InDelta(t, src.X+src.Width/2, r.Points[0].X, 1e-9)
}

func TestArrowPositionSubClassRules(t *testing.T) {
	tests := []struct {
		name     string
		tx, ty   float64
		wantKind RouteKind
		want     []Point
	}{
		{"directly above", 20, -200, RouteStraight, []Point{{10, -30}, {10, -170}}},
		{"above right", 300, -200, RouteSubClass, []Point{{0, -30}, {0, -100}, {300, -100}, {300, -170}}},
		{"directly below", -20, 200, RouteStraight, []Point{{-10, 30}, {-10, 170}}},
		{"below left", -300, 200, RouteSubClass, []Point{{0, 30}, {0, 100}, {-300, 100}, {-300, 170}}},
		{"right level", 300, 10, RouteStraight, []Point{{50, 0}, {250, 0}}},
		{"left level", -300, -10, RouteStraight, []Point{{-50, 0}, {-250, 0}}},
		{"right slightly lower", 300, 50, RouteElbow, []Point{{50, 0}, {300, 0}, {300, 20}}},
		{"left slightly higher", -300, -50, RouteElbow, []Point{{-50, 0}, {-300, 0}, {-300, -20}}},
		{"overlapping", 10, 10, RouteNone, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := umlBox(0, 0)
			dst := umlBox(tt.tx, tt.ty)
			l := models.NewLink(src, dst, models.NewIRI(models.RDFSSubClassOf, models.RoleProperty))
			l.SubClassOf = true
			r := ArrowPosition(l)
			assert.Equal(t, tt.wantKind, r.Kind)
			assert.Equal(t, tt.want, r.Points)
		})
	}
}

func TestArrowPositionSelf(t *testing.T) {
	src := umlBox(0, 0)
	r := ArrowPosition(models.NewLink(src, src, nil))
	assert.Equal(t, RouteBracket, r.Kind)
	assert.Len(t, r.Points, 4)
	assert.Equal(t, "", Route{Kind: RouteNone}.Path())
}
