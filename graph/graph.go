// Package graph holds the force-directed graph aggregate: the node and link
// lists of one visualization, its force configuration and the simulation
// that lays it out.
package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/TFMV/ontograph/models"
	"github.com/TFMV/ontograph/physics"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
	"go.uber.org/zap"
)

// Simulator is the physics engine driving node positions. *physics.Simulation
// implements it.
type Simulator interface {
	Bind(l sync.Locker)
	SetOrigin(x, y float64)
	SetNodes(nodes []*models.Node)
	SetForce(name string, force physics.Force)
	SetAlpha(alpha float64)
	Restart()
	OnTick(fn func())
	Settle(maxIterations int) int
	Run(ctx context.Context) error
}

// Forces configures the forces applied by UpdateForces.
type Forces struct {
	// ChargeMultiplier is multiplied by a node's incident link count to give
	// its many-body strength.
	ChargeMultiplier float64 `yaml:"charge_multiplier" json:"charge_multiplier" toml:"charge_multiplier" validate:"lte=0"`
	LinkDistance     float64 `yaml:"link_distance" json:"link_distance" toml:"link_distance" validate:"gt=0"`
	// LinkStrength of zero selects the degree-based default.
	LinkStrength   float64 `yaml:"link_strength" json:"link_strength" toml:"link_strength" validate:"gte=0,lte=1"`
	CollidePadding float64 `yaml:"collide_padding" json:"collide_padding" toml:"collide_padding" validate:"gte=0"`
}

// DefaultForces returns the force parameters used when none are configured.
func DefaultForces() Forces {
	return Forces{
		ChargeMultiplier: -50,
		LinkDistance:     100,
		CollidePadding:   5,
	}
}

// SimulationOptions are the one-time simulation settings.
type SimulationOptions struct {
	Width  float64
	Height float64
}

// restartAlpha is the alpha UpdateForces reheats the simulation to.
const restartAlpha = 0.5

// Graph is the aggregate for one visualization. All methods are safe for
// concurrent use; simulation ticks run under the same lock.
type Graph struct {
	mu      sync.Mutex
	nodes   []*models.Node
	links   []*models.Link
	forces  Forces
	dynamic bool
	width   float64
	height  float64
	version uint64
	sim     Simulator
	ready   bool

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	logger *zap.Logger
}

// New creates an empty graph driven by sim.
func New(sim Simulator, forces Forces, logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{
		sim:     sim,
		forces:  forces,
		dynamic: true,
		subs:    make(map[int]chan Event),
		logger:  logger,
	}
}

// InitSimulation binds the simulation to the graph, centers it and wires the
// tick notification. Repeat calls are no-ops.
func (g *Graph) InitSimulation(opts SimulationOptions) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ready {
		return
	}
	g.ready = true
	g.width, g.height = opts.Width, opts.Height

	g.sim.Bind(&g.mu)
	g.sim.SetOrigin(opts.Width/2, opts.Height/2)
	g.sim.SetForce("center", physics.NewCenterForce(opts.Width/2, opts.Height/2))
	g.sim.OnTick(func() { g.publish(EventTick) })
	g.logger.Debug("simulation initialized",
		zap.Float64("width", opts.Width),
		zap.Float64("height", opts.Height))
}

// Update reassigns link offsets, rebinds nodes and links into the simulation
// and recomputes the forces. Call it after any structural change.
func (g *Graph) Update() {
	g.mu.Lock()
	g.update()
	g.mu.Unlock()
	g.publish(EventStructure)
}

func (g *Graph) update() {
	AssignOffsets(g.links)
	g.version++
	g.sim.SetNodes(g.nodes)
	g.updateForces()
	g.logger.Debug("graph updated",
		zap.Int("nodes", len(g.nodes)),
		zap.Int("links", len(g.links)),
		zap.Uint64("version", g.version))
}

// UpdateForces applies the charge, collide and link parameters and restarts
// the simulation at alpha 0.5.
func (g *Graph) UpdateForces() {
	g.mu.Lock()
	g.updateForces()
	g.mu.Unlock()
	g.publish(EventForces)
}

func (g *Graph) updateForces() {
	degree := make(map[*models.Node]int, len(g.nodes))
	for _, l := range g.links {
		degree[l.Source]++
		if l.Target != l.Source {
			degree[l.Target]++
		}
	}
	multiplier := g.forces.ChargeMultiplier
	g.sim.SetForce("charge", physics.NewManyBodyForce(func(n *models.Node) float64 {
		return float64(degree[n]) * multiplier
	}))

	padding := g.forces.CollidePadding
	g.sim.SetForce("collide", physics.NewCollideForce(func(n *models.Node) float64 {
		return n.CollisionRadius() + padding
	}))

	link := physics.NewLinkForce(append([]*models.Link(nil), g.links...), g.forces.LinkDistance)
	if s := g.forces.LinkStrength; s > 0 {
		link.Strength = func(*models.Link) float64 { return s }
	}
	g.sim.SetForce("link", link)

	g.sim.SetAlpha(restartAlpha)
	g.sim.Restart()
}

// SetForces replaces the force configuration and applies it.
func (g *Graph) SetForces(f Forces) {
	g.mu.Lock()
	g.forces = f
	g.mu.Unlock()
	g.UpdateForces()
}

// Forces returns the current force configuration.
func (g *Graph) Forces() Forces {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.forces
}

// Dynamic reports whether nodes may be expanded and collapsed interactively.
func (g *Graph) Dynamic() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dynamic
}

// SetDynamic enables or disables interactive expansion.
func (g *Graph) SetDynamic(dynamic bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dynamic = dynamic
}

// Settle runs the simulation synchronously until it cools or maxIterations
// is reached.
func (g *Graph) Settle(maxIterations int) int {
	n := g.sim.Settle(maxIterations)
	if n > 0 {
		g.publish(EventTick)
	}
	return n
}

// Run drives the simulation until ctx is done.
func (g *Graph) Run(ctx context.Context) error {
	return g.sim.Run(ctx)
}

// Mutate runs fn with the graph locked and then updates the graph if fn
// changed its structure. Either all of fn's changes become visible at once
// or, if fn returns before mutating, none do.
func (g *Graph) Mutate(fn func(tx *Tx) error) error {
	g.mu.Lock()
	tx := &Tx{g: g}
	err := fn(tx)
	if tx.changed {
		g.update()
	}
	g.mu.Unlock()

	if tx.changed {
		g.publish(EventStructure)
	}
	return err
}

// View runs fn with the graph locked for reading.
func (g *Graph) View(fn func(tx *Tx)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&Tx{g: g})
}

// GetNode returns the node representing r, or nil. Literals never match.
func (g *Graph) GetNode(r *models.Resource) *models.Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return (&Tx{g: g}).GetNode(r)
}

// NodeByID returns the node with the given ID, or nil.
func (g *Graph) NodeByID(id string) *models.Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return (&Tx{g: g}).NodeByID(id)
}

// AddNode inserts n. A second node for the same non-literal resource is a
// conflict.
func (g *Graph) AddNode(n *models.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return (&Tx{g: g}).AddNode(n)
}

// RemoveNode removes n and every link touching it.
func (g *Graph) RemoveNode(n *models.Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	(&Tx{g: g}).RemoveNode(n)
}

// AddLink inserts l, adding its endpoints when absent. An equivalent existing
// link is returned instead of inserting a duplicate.
func (g *Graph) AddLink(l *models.Link) (*models.Link, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return (&Tx{g: g}).AddLink(l)
}

// RemoveLink removes l.
func (g *Graph) RemoveLink(l *models.Link) {
	g.mu.Lock()
	defer g.mu.Unlock()
	(&Tx{g: g}).RemoveLink(l)
}

// GetLinksFrom returns the links whose source represents n's resource.
func (g *Graph) GetLinksFrom(n *models.Node) []*models.Link {
	g.mu.Lock()
	defer g.mu.Unlock()
	return (&Tx{g: g}).LinksFrom(n)
}

// GetLinksTo returns the links whose target represents n's resource.
func (g *Graph) GetLinksTo(n *models.Node) []*models.Link {
	g.mu.Lock()
	defer g.mu.Unlock()
	return (&Tx{g: g}).LinksTo(n)
}

// Pin fixes the node with the given ID at (x, y).
func (g *Graph) Pin(id string, x, y float64) error {
	g.mu.Lock()
	n := (&Tx{g: g}).NodeByID(id)
	if n == nil {
		g.mu.Unlock()
		return apperrors.NewNotFound(fmt.Sprintf("node %s not found", id))
	}
	n.Pin(x, y)
	g.mu.Unlock()

	g.sim.SetAlpha(restartAlpha)
	g.sim.Restart()
	g.publish(EventStructure)
	return nil
}

// Unpin releases the node with the given ID.
func (g *Graph) Unpin(id string) error {
	g.mu.Lock()
	n := (&Tx{g: g}).NodeByID(id)
	if n == nil {
		g.mu.Unlock()
		return apperrors.NewNotFound(fmt.Sprintf("node %s not found", id))
	}
	n.Unpin()
	g.mu.Unlock()

	g.sim.SetAlpha(restartAlpha)
	g.sim.Restart()
	g.publish(EventStructure)
	return nil
}

// Len returns the number of nodes and links.
func (g *Graph) Len() (nodes, links int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes), len(g.links)
}
