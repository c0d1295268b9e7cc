// Package physics implements a velocity-Verlet force simulation with the
// semantics of d3-force: alpha cooling, velocity decay, pluggable forces and
// phyllotaxis placement of new nodes.
package physics

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/TFMV/ontograph/models"
	opensimplex "github.com/ojrac/opensimplex-go"
)

// Default simulation parameters, matching d3-force.
const (
	DefaultAlphaMin      = 0.001
	DefaultVelocityDecay = 0.4
	DefaultInterval      = 16 * time.Millisecond

	initialRadius = 10.0
)

var initialAngle = math.Pi * (3 - math.Sqrt(5))

// Force is one contribution to node velocities, applied on every tick.
type Force interface {
	// Initialize is called whenever the node set changes.
	Initialize(nodes []*models.Node, jiggle func() float64)
	// Apply adds the force's contribution scaled by alpha.
	Apply(alpha float64)
}

type namedForce struct {
	name  string
	force Force
}

type noLocker struct{}

func (noLocker) Lock()   {}
func (noLocker) Unlock() {}

// Simulation advances node positions under a set of forces.
type Simulation struct {
	mu            sync.Mutex
	locker        sync.Locker // lock of the structure owning the nodes
	nodes         []*models.Node
	forces        []namedForce
	alpha         float64
	alphaMin      float64
	alphaDecay    float64
	velocityDecay float64
	originX       float64
	originY       float64
	interval      time.Duration
	noise         opensimplex.Noise
	jiggleStep    float64
	onTick        []func()
	wake          chan struct{}
	ticks         uint64
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithInterval sets the tick period used by Run.
func WithInterval(d time.Duration) Option {
	return func(s *Simulation) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSeed seeds the noise used to separate coincident nodes.
func WithSeed(seed int64) Option {
	return func(s *Simulation) { s.noise = opensimplex.New(seed) }
}

// WithAlphaMin sets the alpha below which the simulation stops.
func WithAlphaMin(min float64) Option {
	return func(s *Simulation) {
		if min > 0 && min < 1 {
			s.alphaMin = min
			s.alphaDecay = 1 - math.Pow(min, 1.0/300)
		}
	}
}

// WithVelocityDecay sets the friction applied to velocities on every tick.
func WithVelocityDecay(decay float64) Option {
	return func(s *Simulation) {
		if decay >= 0 && decay <= 1 {
			s.velocityDecay = decay
		}
	}
}

// NewSimulation creates a stopped simulation with no nodes and no forces.
func NewSimulation(opts ...Option) *Simulation {
	s := &Simulation{
		locker:        noLocker{},
		alpha:         1,
		alphaMin:      DefaultAlphaMin,
		alphaDecay:    1 - math.Pow(DefaultAlphaMin, 1.0/300),
		velocityDecay: DefaultVelocityDecay,
		interval:      DefaultInterval,
		noise:         opensimplex.New(1),
		wake:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind makes ticks run while holding l, the lock of the structure that owns
// the node values. Methods other than Tick, Settle and Run never acquire it.
func (s *Simulation) Bind(l sync.Locker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l == nil {
		l = noLocker{}
	}
	s.locker = l
}

// SetOrigin sets the point around which unplaced nodes are arranged.
func (s *Simulation) SetOrigin(x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.originX, s.originY = x, y
}

// SetNodes replaces the simulated nodes, places the unplaced ones and
// re-initializes every force.
func (s *Simulation) SetNodes(nodes []*models.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = append(s.nodes[:0:0], nodes...)
	for i, node := range s.nodes {
		node.Index = i
		if node.Pinned() {
			node.SetPosition(*node.Fx, *node.Fy)
		}
		if !node.Placed {
			radius := initialRadius * math.Sqrt(0.5+float64(i))
			angle := float64(i) * initialAngle
			node.SetPosition(s.originX+radius*math.Cos(angle), s.originY+radius*math.Sin(angle))
			node.Vx, node.Vy = 0, 0
		}
	}
	for _, f := range s.forces {
		f.force.Initialize(s.nodes, s.jiggle)
	}
}

// Nodes returns the simulated nodes.
func (s *Simulation) Nodes() []*models.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Node(nil), s.nodes...)
}

// SetForce adds or replaces the named force; a nil force removes it.
func (s *Simulation) SetForce(name string, force Force) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range s.forces {
		if f.name == name {
			if force == nil {
				s.forces = append(s.forces[:i], s.forces[i+1:]...)
			} else {
				s.forces[i].force = force
				force.Initialize(s.nodes, s.jiggle)
			}
			return
		}
	}
	if force != nil {
		force.Initialize(s.nodes, s.jiggle)
		s.forces = append(s.forces, namedForce{name: name, force: force})
	}
}

// Force returns the named force or nil.
func (s *Simulation) Force(name string) Force {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.forces {
		if f.name == name {
			return f.force
		}
	}
	return nil
}

// Alpha returns the current alpha.
func (s *Simulation) Alpha() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alpha
}

// SetAlpha sets the current alpha, clamped to [0, 1].
func (s *Simulation) SetAlpha(alpha float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alpha = math.Max(0, math.Min(1, alpha))
}

// Stable reports whether alpha has cooled below alphaMin.
func (s *Simulation) Stable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alpha < s.alphaMin
}

// Ticks returns the number of ticks performed so far.
func (s *Simulation) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// OnTick registers a callback invoked after every tick performed by Run.
func (s *Simulation) OnTick(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTick = append(s.onTick, fn)
}

// Restart wakes a cooled Run loop. It never blocks.
func (s *Simulation) Restart() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Tick advances the simulation by the given number of iterations without
// invoking tick callbacks.
func (s *Simulation) Tick(iterations int) {
	s.mu.Lock()
	locker := s.locker
	s.mu.Unlock()

	locker.Lock()
	defer locker.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < iterations; i++ {
		s.step()
	}
}

// Settle ticks until the simulation is stable or maxIterations is reached
// and returns the number of iterations performed.
func (s *Simulation) Settle(maxIterations int) int {
	s.mu.Lock()
	locker := s.locker
	s.mu.Unlock()

	locker.Lock()
	defer locker.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for ; n < maxIterations && s.alpha >= s.alphaMin; n++ {
		s.step()
	}
	return n
}

// Run ticks on the configured interval while the simulation is hot and
// sleeps until Restart once it cools. It returns when ctx is done.
func (s *Simulation) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if s.Stable() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
				continue
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-ticker.C:
			s.Tick(1)
			s.mu.Lock()
			callbacks := append([]func(){}, s.onTick...)
			s.mu.Unlock()
			for _, fn := range callbacks {
				fn()
			}
		}
	}
}

// step performs one iteration. Callers hold s.mu and the bound locker.
func (s *Simulation) step() {
	s.alpha -= s.alpha * s.alphaDecay

	for _, f := range s.forces {
		f.force.Apply(s.alpha)
	}

	friction := 1 - s.velocityDecay
	for _, node := range s.nodes {
		if node.Fx != nil {
			node.X = *node.Fx
			node.Vx = 0
		} else {
			node.Vx *= friction
			node.X += node.Vx
		}
		if node.Fy != nil {
			node.Y = *node.Fy
			node.Vy = 0
		} else {
			node.Vy *= friction
			node.Y += node.Vy
		}
	}
	s.ticks++
}

// jiggle returns a tiny non-zero displacement used to separate coincident
// nodes.
func (s *Simulation) jiggle() float64 {
	s.jiggleStep += 0.618
	v := s.noise.Eval2(s.jiggleStep, 0.5) * 1e-6
	if v == 0 {
		return 1e-7
	}
	return v
}
