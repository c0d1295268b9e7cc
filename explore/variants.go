package explore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TFMV/ontograph/graph"
	"github.com/TFMV/ontograph/models"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
)

// Kind is a graph view variant.
type Kind string

const (
	// KindData shows a resource's description, capped by the threshold.
	KindData Kind = "data"
	// KindExplore is a data graph without the cap.
	KindExplore Kind = "explore"
	// KindModel shows the whole graph model at once.
	KindModel Kind = "model"
	// KindUml shows classes as UML boxes.
	KindUml Kind = "uml"
)

// ParseKind validates a view variant name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindData, KindExplore, KindModel, KindUml:
		return k, nil
	default:
		return "", apperrors.NewValidation(fmt.Sprintf("unknown graph kind %q", s))
	}
}

// NewDataGraph creates a dynamic data view. A zero threshold selects
// DefaultThreshold.
func NewDataGraph(g *graph.Graph, svc ResourceService, opts Options) *Explorer {
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	g.SetDynamic(true)
	return newExplorer(KindData, g, svc, opts)
}

// NewExploreGraph creates a dynamic view with no expansion cap.
func NewExploreGraph(g *graph.Graph, svc ResourceService, opts Options) *Explorer {
	opts.Threshold = 0
	g.SetDynamic(true)
	return newExplorer(KindExplore, g, svc, opts)
}

// NewModelGraph creates a static view of the graph model.
func NewModelGraph(g *graph.Graph, svc ResourceService, opts Options) *Explorer {
	opts.Threshold = 0
	g.SetDynamic(false)
	return newExplorer(KindModel, g, svc, opts)
}

// NewUmlGraph creates a static UML class view.
func NewUmlGraph(g *graph.Graph, svc ResourceService, opts Options) *Explorer {
	opts.Threshold = 0
	g.SetDynamic(false)
	return newExplorer(KindUml, g, svc, opts)
}

// New creates the explorer for kind.
func New(kind Kind, g *graph.Graph, svc ResourceService, opts Options) (*Explorer, error) {
	switch kind {
	case KindData:
		return NewDataGraph(g, svc, opts), nil
	case KindExplore:
		return NewExploreGraph(g, svc, opts), nil
	case KindModel:
		return NewModelGraph(g, svc, opts), nil
	case KindUml:
		return NewUmlGraph(g, svc, opts), nil
	default:
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown graph kind %q", kind))
	}
}

// Populate fills the graph for root. Data and explore views add the root and
// expand it unless it is over the threshold; model and UML views load their
// whole model.
func (e *Explorer) Populate(ctx context.Context, root *models.Resource) (*models.Node, error) {
	if err := root.Validate(); err != nil {
		return nil, apperrors.NewValidation(fmt.Sprintf("root: %v", err))
	}

	var (
		node *models.Node
		err  error
	)
	switch e.kind {
	case KindModel:
		node, err = e.populateModel(ctx, root)
	case KindUml:
		node, err = e.populateUml(ctx, root)
	default:
		node, err = e.populateData(ctx, root)
	}
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.root = node
	e.mu.Unlock()
	return node, nil
}

func (e *Explorer) populateData(ctx context.Context, root *models.Resource) (*models.Node, error) {
	if root.IsLiteral() {
		return nil, apperrors.NewValidation("a literal cannot be the root of a data graph")
	}
	node := models.NewNode(root)
	node.Root = true
	err := e.graph.Mutate(func(tx *graph.Tx) error {
		return tx.AddNode(node)
	})
	if err != nil {
		return nil, err
	}

	err = e.Expand(ctx, node, nil)
	if IsTooManyLinks(err) {
		e.logger.Info("root left closed", zap.String("resource", root.String()), zap.Error(err))
		return node, nil
	}
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (e *Explorer) populateModel(ctx context.Context, root *models.Resource) (*models.Node, error) {
	m, err := e.service.GraphModel(ctx, root)
	if err != nil {
		return nil, apperrors.Wrap(err, fmt.Sprintf("graph model of %s", root))
	}

	var rootNode *models.Node
	var nodeDelta, linkDelta int
	err = e.graph.Mutate(func(tx *graph.Tx) error {
		resolve := func(r *models.Resource) (*models.Node, error) {
			if n := tx.GetNode(r); n != nil {
				return n, nil
			}
			n := models.NewNode(r)
			nodeDelta++
			return n, tx.AddNode(n)
		}

		var err error
		if rootNode, err = resolve(root); err != nil {
			return err
		}
		rootNode.Root = true
		for _, t := range m.Triples {
			src, err := resolve(t.Subject)
			if err != nil {
				return err
			}
			tgt, err := resolve(t.Object)
			if err != nil {
				return err
			}
			candidate := models.NewLink(src, tgt, t.Predicate)
			link, err := tx.AddLink(candidate)
			if err != nil {
				return err
			}
			if link == candidate {
				linkDelta++
			}
		}
		for _, n := range tx.Nodes() {
			n.Open = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.observer.ObserveGraphChange(string(e.kind), nodeDelta, linkDelta)
	return rootNode, nil
}

func (e *Explorer) populateUml(ctx context.Context, root *models.Resource) (*models.Node, error) {
	m, err := e.service.ClassModel(ctx, root)
	if err != nil {
		return nil, apperrors.Wrap(err, fmt.Sprintf("class model of %s", root))
	}

	var rootNode *models.Node
	var nodeDelta, linkDelta int
	err = e.graph.Mutate(func(tx *graph.Tx) error {
		classNode := func(r *models.Resource, props []*models.PropInfo) (*models.Node, error) {
			if n := tx.GetNode(r); n != nil {
				return n, nil
			}
			n := models.NewUmlNode(r, props)
			n.Root = true
			n.Open = true
			nodeDelta++
			return n, tx.AddNode(n)
		}
		addLink := func(l *models.Link) error {
			got, err := tx.AddLink(l)
			if err == nil && got == l {
				linkDelta++
			}
			return err
		}

		type classRows struct {
			node  *models.Node
			props []*models.PropInfo
		}
		var rows []classRows
		for _, c := range m.Classes {
			props := make([]*models.PropInfo, len(c.Properties))
			for i, p := range c.Properties {
				props[i] = models.NewPropInfo(p.Property, p.Range)
			}
			n, err := classNode(c.Class, props)
			if err != nil {
				return err
			}
			rows = append(rows, classRows{node: n, props: n.Uml.Props})
		}

		// Properties whose range is a class become port links.
		for _, row := range rows {
			n := row.node
			for _, p := range row.props {
				if p.Range == nil {
					continue
				}
				target := tx.GetNode(p.Range)
				if target == nil || target.Uml == nil {
					continue
				}
				l := models.NewLink(n, target, p.Property)
				l.Port = p
				if err := addLink(l); err != nil {
					return err
				}
			}
		}

		subClassOf := models.NewIRI(models.RDFSSubClassOf, models.RoleProperty)
		for _, a := range m.SubClassOf {
			sub, err := classNode(a.Sub, nil)
			if err != nil {
				return err
			}
			super, err := classNode(a.Super, nil)
			if err != nil {
				return err
			}
			l := models.NewLink(sub, super, subClassOf)
			l.SubClassOf = true
			if err := addLink(l); err != nil {
				return err
			}
		}

		rootNode = tx.GetNode(root)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.observer.ObserveGraphChange(string(e.kind), nodeDelta, linkDelta)
	return rootNode, nil
}
