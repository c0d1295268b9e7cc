// Package explore populates graphs from the resource service and implements
// the per-node expand/collapse state machine of the data, explore, model and
// UML views.
package explore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/TFMV/ontograph/graph"
	"github.com/TFMV/ontograph/ingest"
	"github.com/TFMV/ontograph/models"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ResourceService is the backend the views read from. Both the HTTP client
// and file-backed datasets implement it.
type ResourceService interface {
	DescribeResource(ctx context.Context, r *models.Resource) (*ingest.Description, error)
	GraphModel(ctx context.Context, r *models.Resource) (*ingest.GraphModel, error)
	ClassModel(ctx context.Context, r *models.Resource) (*ingest.ClassModel, error)
}

// Observer receives expansion outcomes and structural changes.
type Observer interface {
	ObserveExpansion(kind, result string, elapsed time.Duration)
	ObserveGraphChange(kind string, nodeDelta, linkDelta int)
}

type nopObserver struct{}

func (nopObserver) ObserveExpansion(string, string, time.Duration) {}
func (nopObserver) ObserveGraphChange(string, int, int)           {}

// Expansion results reported to the Observer.
const (
	ResultOK           = "ok"
	ResultTooManyLinks = "too_many_links"
	ResultStale        = "stale"
	ResultError        = "error"
)

// State is the expansion state of a node.
type State int

const (
	Closed State = iota
	Expanding
	Open
)

func (s State) String() string {
	switch s {
	case Expanding:
		return "expanding"
	case Open:
		return "open"
	default:
		return "closed"
	}
}

// DefaultThreshold is the largest number of links a data graph expansion
// may add without a predicate filter.
const DefaultThreshold = 50

// childDistance is how far from its opener a new node is first placed.
const childDistance = 40.0

var goldenAngle = math.Pi * (3 - math.Sqrt(5))

// Options configures an Explorer.
type Options struct {
	// Threshold caps unfiltered expansions; zero disables the cap.
	Threshold int
	// HideLiterals drops literal objects from expansions.
	HideLiterals bool
	// Concurrency bounds parallel fetches in ExpandDepth.
	Concurrency int
	Observer    Observer
	Logger      *zap.Logger
}

type nodeState struct {
	state  State
	token  uint64
	cancel context.CancelFunc
}

// Explorer drives one graph view. Expansions of different nodes run
// concurrently; for one node the latest request wins.
type Explorer struct {
	kind        Kind
	graph       *graph.Graph
	service     ResourceService
	threshold   int
	literals    bool
	concurrency int
	observer    Observer
	logger      *zap.Logger

	mu     sync.Mutex
	states map[*models.Node]*nodeState
	root   *models.Node
}

func newExplorer(kind Kind, g *graph.Graph, svc ResourceService, opts Options) *Explorer {
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Explorer{
		kind:        kind,
		graph:       g,
		service:     svc,
		threshold:   opts.Threshold,
		literals:    !opts.HideLiterals,
		concurrency: opts.Concurrency,
		observer:    opts.Observer,
		logger:      opts.Logger.With(zap.String("view", string(kind))),
		states:      make(map[*models.Node]*nodeState),
	}
}

// Kind returns the view variant.
func (e *Explorer) Kind() Kind { return e.kind }

// Graph returns the graph the explorer populates.
func (e *Explorer) Graph() *graph.Graph { return e.graph }

// Root returns the node the view was populated from.
func (e *Explorer) Root() *models.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.root
}

// SetThreshold changes the expansion cap; zero disables it.
func (e *Explorer) SetThreshold(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.threshold = n
}

// State returns the expansion state of node.
func (e *Explorer) State(node *models.Node) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[node]; ok {
		return st.state
	}
	if node.Open {
		return Open
	}
	return Closed
}

func (e *Explorer) stateOf(node *models.Node) *nodeState {
	st, ok := e.states[node]
	if !ok {
		st = &nodeState{}
		if node.Open {
			st.state = Open
		}
		e.states[node] = st
	}
	return st
}

func (e *Explorer) observe(result string, start time.Time) {
	e.observer.ObserveExpansion(string(e.kind), result, time.Since(start))
}

// Expand fetches node's description and links node to its objects. With no
// predicates and more candidates than the threshold it returns a
// TooManyLinksError and commits nothing. A newer Expand or a Collapse of the
// same node makes this call return ErrStaleExpansion.
func (e *Explorer) Expand(ctx context.Context, node *models.Node, predicates []string) error {
	if !e.graph.Dynamic() {
		return apperrors.NewValidation(fmt.Sprintf("nodes of a %s graph cannot be expanded", e.kind))
	}
	if node == nil || !node.IsExpandable() {
		return apperrors.NewValidation("literal nodes cannot be expanded")
	}

	start := time.Now()
	e.mu.Lock()
	st := e.stateOf(node)
	if st.state == Open {
		e.mu.Unlock()
		return nil
	}
	st.token++
	token := st.token
	if st.cancel != nil {
		st.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	st.cancel = cancel
	st.state = Expanding
	e.mu.Unlock()

	desc, err := e.service.DescribeResource(ctx, node.Resource)

	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.states[node]; !ok || cur != st || st.token != token {
		e.observe(ResultStale, start)
		return ErrStaleExpansion
	}
	st.cancel = nil
	st.state = Closed

	if err != nil {
		e.observe(ResultError, start)
		e.logger.Warn("expansion failed", zap.String("resource", node.Resource.String()), zap.Error(err))
		return apperrors.Wrap(err, fmt.Sprintf("describe %s", node.Resource))
	}

	desc = e.candidates(desc)
	if len(predicates) > 0 {
		desc = desc.Filter(predicates)
	} else if e.threshold > 0 && desc.Count() > e.threshold {
		e.observe(ResultTooManyLinks, start)
		return &TooManyLinksError{
			NodeID:    node.ID,
			Total:     desc.Count(),
			Threshold: e.threshold,
			Counts:    desc.Counts(),
		}
	}

	if err := e.commit(node, desc); err != nil {
		if errors.Is(err, ErrStaleExpansion) {
			e.observe(ResultStale, start)
		} else {
			e.observe(ResultError, start)
		}
		return err
	}
	st.state = Open
	e.observe(ResultOK, start)
	return nil
}

// candidates drops what the view does not show.
func (e *Explorer) candidates(desc *ingest.Description) *ingest.Description {
	if e.literals {
		return desc
	}
	out := &ingest.Description{Subject: desc.Subject}
	for _, p := range desc.Properties {
		var objs []*models.Resource
		for _, o := range p.Objects {
			if !o.IsLiteral() {
				objs = append(objs, o)
			}
		}
		if len(objs) > 0 {
			out.Properties = append(out.Properties, ingest.PropertyValues{Predicate: p.Predicate, Objects: objs})
		}
	}
	return out
}

// commit applies an expansion in one graph mutation. Callers hold e.mu.
func (e *Explorer) commit(node *models.Node, desc *ingest.Description) error {
	var nodeDelta, linkDelta int
	err := e.graph.Mutate(func(tx *graph.Tx) error {
		if !tx.Contains(node) {
			return ErrStaleExpansion
		}
		refine(node, desc.Subject)

		i := 0
		for _, pv := range desc.Properties {
			for _, obj := range pv.Objects {
				target := node
				if !obj.Equal(node.Resource) {
					target = tx.GetNode(obj)
					if target == nil {
						target = models.NewNode(obj)
						angle := float64(i) * goldenAngle
						target.SetPosition(node.X+childDistance*math.Cos(angle), node.Y+childDistance*math.Sin(angle))
						if err := tx.AddNode(target); err != nil {
							return err
						}
						nodeDelta++
						i++
					}
					target.AddOpener(node)
				}
				candidate := models.NewLink(node, target, pv.Predicate)
				link, err := tx.AddLink(candidate)
				if err != nil {
					return err
				}
				if link == candidate {
					linkDelta++
				}
				link.AddOpener(node)
			}
		}
		node.Open = true
		return nil
	})
	if err == nil {
		e.observer.ObserveGraphChange(string(e.kind), nodeDelta, linkDelta)
	}
	return err
}

// refine copies role and label reported by the backend onto a node that was
// created without them.
func refine(node *models.Node, subject *models.Resource) {
	if subject == nil || !subject.Equal(node.Resource) {
		return
	}
	if (node.Resource.Role != "" || subject.Role == "") && (node.Resource.Show != "" || subject.Show == "") {
		return
	}
	r := *node.Resource
	if r.Role == "" {
		r.Role = subject.Role
	}
	if r.Show == "" {
		r.Show = subject.Show
	}
	node.Resource = &r
	if node.Uml == nil {
		node.Shape = models.ShapeFor(&r)
	}
	node.Radius = 0
	node.Measure()
}

// Collapse closes node, cancelling an expansion in flight. Links the node's
// expansion created are released; a child left with no opener is collapsed
// in turn and removed, depth first. Root nodes are never removed.
func (e *Explorer) Collapse(node *models.Node) error {
	if !e.graph.Dynamic() {
		return apperrors.NewValidation(fmt.Sprintf("nodes of a %s graph cannot be collapsed", e.kind))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[node]; ok {
		st.token++
		if st.cancel != nil {
			st.cancel()
			st.cancel = nil
		}
		st.state = Closed
	}
	if !node.Open {
		return nil
	}

	var nodeDelta, linkDelta int
	err := e.graph.Mutate(func(tx *graph.Tx) error {
		nodes, links := len(tx.Nodes()), len(tx.Links())
		e.collapse(tx, node, make(map[*models.Node]bool))
		e.sweep(tx)
		nodeDelta = len(tx.Nodes()) - nodes
		linkDelta = len(tx.Links()) - links
		return nil
	})
	if err != nil {
		return err
	}
	e.observer.ObserveGraphChange(string(e.kind), nodeDelta, linkDelta)
	return nil
}

func (e *Explorer) collapse(tx *graph.Tx, n *models.Node, visited map[*models.Node]bool) {
	if visited[n] {
		return
	}
	visited[n] = true
	n.Open = false
	if st, ok := e.states[n]; ok {
		st.state = Closed
	}

	for _, l := range tx.Touching(n) {
		if l.Source != n || !l.HasOpener(n) {
			continue
		}
		if l.RemoveOpener(n) == 0 {
			tx.RemoveLink(l)
		}
		t := l.Target
		if t == n || !t.HasOpener(n) {
			continue
		}
		if t.RemoveOpener(n) > 0 || t.Root {
			continue
		}
		e.collapse(tx, t, visited)
		e.remove(tx, t)
	}
}

// sweep removes nodes no longer connected to a root. Opener counts miss
// these when expanded nodes open each other in a cycle.
func (e *Explorer) sweep(tx *graph.Tx) {
	nodes := tx.Nodes()
	roots := models.FilterNodes(nodes, func(n *models.Node) bool { return n.Root })
	if len(roots) == 0 {
		return
	}
	adj := make(map[*models.Node][]*models.Node)
	for _, l := range tx.Links() {
		adj[l.Source] = append(adj[l.Source], l.Target)
		adj[l.Target] = append(adj[l.Target], l.Source)
	}
	reached := make(map[*models.Node]bool, len(nodes))
	queue := append([]*models.Node(nil), roots...)
	for _, r := range roots {
		reached[r] = true
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, m := range adj[n] {
			if !reached[m] {
				reached[m] = true
				queue = append(queue, m)
			}
		}
	}
	for _, n := range models.FilterNodes(nodes, func(n *models.Node) bool { return !reached[n] }) {
		n.Open = false
		e.remove(tx, n)
	}
}

func (e *Explorer) remove(tx *graph.Tx, n *models.Node) {
	tx.RemoveNode(n)
	if st, ok := e.states[n]; ok {
		st.token++
		if st.cancel != nil {
			st.cancel()
		}
		delete(e.states, n)
	}
}

// Toggle collapses an open or expanding node and expands a closed one. It
// reports whether the call expanded.
func (e *Explorer) Toggle(ctx context.Context, node *models.Node, predicates []string) (bool, error) {
	if e.State(node) == Closed {
		return true, e.Expand(ctx, node, predicates)
	}
	return false, e.Collapse(node)
}

// ExpandDepth expands start and then, level by level, the closed nodes each
// level brought in, up to depth levels. Nodes over the threshold are skipped.
func (e *Explorer) ExpandDepth(ctx context.Context, start *models.Node, depth int) error {
	frontier := []*models.Node{start}
	seen := map[*models.Node]bool{start: true}

	for level := 0; level < depth && len(frontier) > 0; level++ {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.concurrency)
		for _, n := range frontier {
			n := n
			g.Go(func() error {
				err := e.Expand(gctx, n, nil)
				var tm *TooManyLinksError
				if errors.As(err, &tm) {
					e.logger.Info("skipping crowded node",
						zap.String("resource", n.Resource.String()),
						zap.Int("links", tm.Total))
					return nil
				}
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		var next []*models.Node
		e.graph.View(func(tx *graph.Tx) {
			for _, n := range frontier {
				for _, l := range tx.LinksFrom(n) {
					t := l.Target
					if seen[t] || t.Open || !t.IsExpandable() {
						continue
					}
					seen[t] = true
					next = append(next, t)
				}
			}
		})
		frontier = next
	}
	return nil
}
