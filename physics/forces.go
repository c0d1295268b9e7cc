package physics

import (
	"math"

	"github.com/TFMV/ontograph/models"
)

// CenterForce translates all nodes so that their mean position is (X, Y).
type CenterForce struct {
	X, Y     float64
	Strength float64

	nodes []*models.Node
}

// NewCenterForce returns a center force of strength 1.
func NewCenterForce(x, y float64) *CenterForce {
	return &CenterForce{X: x, Y: y, Strength: 1}
}

func (f *CenterForce) Initialize(nodes []*models.Node, _ func() float64) {
	f.nodes = nodes
}

func (f *CenterForce) Apply(_ float64) {
	n := len(f.nodes)
	if n == 0 {
		return
	}
	var sx, sy float64
	for _, node := range f.nodes {
		sx += node.X
		sy += node.Y
	}
	sx = (sx/float64(n) - f.X) * f.Strength
	sy = (sy/float64(n) - f.Y) * f.Strength
	for _, node := range f.nodes {
		node.X -= sx
		node.Y -= sy
	}
}

// ManyBodyForce applies a pairwise charge between all nodes. Negative
// strengths repel.
type ManyBodyForce struct {
	Strength    func(*models.Node) float64
	DistanceMin float64
	DistanceMax float64

	nodes     []*models.Node
	strengths []float64
	jiggle    func() float64
}

// NewManyBodyForce returns a many-body force with the given per-node strength.
func NewManyBodyForce(strength func(*models.Node) float64) *ManyBodyForce {
	return &ManyBodyForce{Strength: strength, DistanceMin: 1, DistanceMax: math.Inf(1)}
}

func (f *ManyBodyForce) Initialize(nodes []*models.Node, jiggle func() float64) {
	f.nodes = nodes
	f.jiggle = jiggle
	f.strengths = make([]float64, len(nodes))
	for i, node := range nodes {
		if f.Strength != nil {
			f.strengths[i] = f.Strength(node)
		} else {
			f.strengths[i] = -30
		}
	}
}

func (f *ManyBodyForce) Apply(alpha float64) {
	min2 := f.DistanceMin * f.DistanceMin
	max2 := f.DistanceMax * f.DistanceMax
	for i, a := range f.nodes {
		for j, b := range f.nodes {
			if i == j || f.strengths[j] == 0 {
				continue
			}
			x := b.X - a.X
			y := b.Y - a.Y
			l := x*x + y*y
			if l >= max2 {
				continue
			}
			if x == 0 {
				x = f.jiggle()
				l += x * x
			}
			if y == 0 {
				y = f.jiggle()
				l += y * y
			}
			if l < min2 {
				l = math.Sqrt(min2 * l)
			}
			w := f.strengths[j] * alpha / l
			a.Vx += x * w
			a.Vy += y * w
		}
	}
}

// CollideForce keeps nodes from overlapping by treating each as a circle.
type CollideForce struct {
	Radius     func(*models.Node) float64
	Strength   float64
	Iterations int

	nodes  []*models.Node
	radii  []float64
	jiggle func() float64
}

// NewCollideForce returns a collide force with strength 1 and one iteration.
func NewCollideForce(radius func(*models.Node) float64) *CollideForce {
	return &CollideForce{Radius: radius, Strength: 1, Iterations: 1}
}

func (f *CollideForce) Initialize(nodes []*models.Node, jiggle func() float64) {
	f.nodes = nodes
	f.jiggle = jiggle
	f.radii = make([]float64, len(nodes))
	for i, node := range nodes {
		if f.Radius != nil {
			f.radii[i] = f.Radius(node)
		} else {
			f.radii[i] = 1
		}
	}
}

func (f *CollideForce) Apply(_ float64) {
	iterations := max(f.Iterations, 1)
	for k := 0; k < iterations; k++ {
		for i, a := range f.nodes {
			ri := f.radii[i]
			ri2 := ri * ri
			xi := a.X + a.Vx
			yi := a.Y + a.Vy
			for j := i + 1; j < len(f.nodes); j++ {
				b := f.nodes[j]
				rj := f.radii[j]
				r := ri + rj
				x := xi - b.X - b.Vx
				y := yi - b.Y - b.Vy
				l := x*x + y*y
				if l >= r*r {
					continue
				}
				if x == 0 {
					x = f.jiggle()
					l += x * x
				}
				if y == 0 {
					y = f.jiggle()
					l += y * y
				}
				l = math.Sqrt(l)
				l = (r - l) / l * f.Strength
				x *= l
				y *= l
				rj2 := rj * rj
				share := rj2 / (ri2 + rj2)
				a.Vx += x * share
				a.Vy += y * share
				b.Vx -= x * (1 - share)
				b.Vy -= y * (1 - share)
			}
		}
	}
}

// LinkForce pulls linked nodes toward a target distance. Strength defaults to
// the inverse of the smaller endpoint degree, and the displacement is split
// by degree so that high-degree nodes move less.
type LinkForce struct {
	Links      []*models.Link
	Distance   func(*models.Link) float64
	Strength   func(*models.Link) float64
	Iterations int

	active    []*models.Link
	strengths []float64
	distances []float64
	bias      []float64
	jiggle    func() float64
}

// NewLinkForce returns a link force over links with a fixed target distance.
func NewLinkForce(links []*models.Link, distance float64) *LinkForce {
	return &LinkForce{
		Links:      links,
		Distance:   func(*models.Link) float64 { return distance },
		Iterations: 1,
	}
}

func (f *LinkForce) Initialize(nodes []*models.Node, jiggle func() float64) {
	f.jiggle = jiggle

	present := make(map[*models.Node]bool, len(nodes))
	for _, node := range nodes {
		present[node] = true
	}

	// Loops and links to nodes outside the simulation exert no force.
	f.active = f.active[:0]
	count := make(map[*models.Node]int)
	for _, link := range f.Links {
		if link.Loop || !present[link.Source] || !present[link.Target] {
			continue
		}
		f.active = append(f.active, link)
		count[link.Source]++
		count[link.Target]++
	}

	f.strengths = make([]float64, len(f.active))
	f.distances = make([]float64, len(f.active))
	f.bias = make([]float64, len(f.active))
	for i, link := range f.active {
		cs, ct := float64(count[link.Source]), float64(count[link.Target])
		f.bias[i] = cs / (cs + ct)
		if f.Strength != nil {
			f.strengths[i] = f.Strength(link)
		} else {
			f.strengths[i] = 1 / math.Min(cs, ct)
		}
		if f.Distance != nil {
			f.distances[i] = f.Distance(link)
		} else {
			f.distances[i] = 30
		}
	}
}

func (f *LinkForce) Apply(alpha float64) {
	iterations := max(f.Iterations, 1)
	for k := 0; k < iterations; k++ {
		for i, link := range f.active {
			s, t := link.Source, link.Target
			x := t.X + t.Vx - s.X - s.Vx
			y := t.Y + t.Vy - s.Y - s.Vy
			if x == 0 {
				x = f.jiggle()
			}
			if y == 0 {
				y = f.jiggle()
			}
			l := math.Sqrt(x*x + y*y)
			l = (l - f.distances[i]) / l * alpha * f.strengths[i]
			x *= l
			y *= l
			b := f.bias[i]
			t.Vx -= x * b
			t.Vy -= y * b
			s.Vx += x * (1 - b)
			s.Vy += y * (1 - b)
		}
	}
}
