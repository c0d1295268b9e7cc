package graph

import (
	"fmt"

	"github.com/TFMV/ontograph/models"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
)

// Tx gives access to the graph while its lock is held. It is only valid
// inside the Mutate or View callback that received it.
type Tx struct {
	g       *Graph
	changed bool
}

// Nodes returns a copy of the node list.
func (tx *Tx) Nodes() []*models.Node {
	return append([]*models.Node(nil), tx.g.nodes...)
}

// Links returns a copy of the link list.
func (tx *Tx) Links() []*models.Link {
	return append([]*models.Link(nil), tx.g.links...)
}

// GetNode returns the node representing r, or nil. Literals never match.
func (tx *Tx) GetNode(r *models.Resource) *models.Node {
	if r == nil || r.IsLiteral() {
		return nil
	}
	for _, n := range tx.g.nodes {
		if n.Resource.Equal(r) {
			return n
		}
	}
	return nil
}

// NodeByID returns the node with the given ID, or nil.
func (tx *Tx) NodeByID(id string) *models.Node {
	for _, n := range tx.g.nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Contains reports whether n itself is in the graph.
func (tx *Tx) Contains(n *models.Node) bool {
	for _, m := range tx.g.nodes {
		if m == n {
			return true
		}
	}
	return false
}

// AddNode inserts n. Adding a node already in the graph is a no-op; adding a
// second node for the same non-literal resource is a conflict.
func (tx *Tx) AddNode(n *models.Node) error {
	fresh, err := tx.admits(n)
	if err != nil || !fresh {
		return err
	}
	tx.g.nodes = append(tx.g.nodes, n)
	tx.changed = true
	return nil
}

// admits reports whether n can be inserted and is not yet in the graph.
func (tx *Tx) admits(n *models.Node) (bool, error) {
	if n == nil || n.Resource == nil {
		return false, apperrors.NewValidation("node has no resource")
	}
	if tx.Contains(n) {
		return false, nil
	}
	if existing := tx.GetNode(n.Resource); existing != nil {
		return false, apperrors.NewConflict(fmt.Sprintf("a node for %s already exists", n.Resource))
	}
	return true, nil
}

// RemoveNode removes n and every link touching it.
func (tx *Tx) RemoveNode(n *models.Node) {
	for i, m := range tx.g.nodes {
		if m == n {
			tx.g.nodes = append(tx.g.nodes[:i], tx.g.nodes[i+1:]...)
			tx.changed = true
			break
		}
	}
	kept := tx.g.links[:0]
	for _, l := range tx.g.links {
		if l.Touches(n) {
			tx.changed = true
			continue
		}
		kept = append(kept, l)
	}
	clear(tx.g.links[len(kept):])
	tx.g.links = kept
}

// AddLink inserts l, adding its endpoints when absent. An equivalent existing
// link is returned instead of inserting a duplicate. On error the graph is
// left untouched.
func (tx *Tx) AddLink(l *models.Link) (*models.Link, error) {
	if l == nil || l.Source == nil || l.Target == nil {
		return nil, apperrors.NewValidation("link needs a source and a target")
	}
	for _, existing := range tx.g.links {
		if existing == l || existing.SameAs(l) {
			return existing, nil
		}
	}
	addSource, err := tx.admits(l.Source)
	if err != nil {
		return nil, err
	}
	addTarget, err := tx.admits(l.Target)
	if err != nil {
		return nil, err
	}
	if addSource && addTarget && l.Source != l.Target && tx.sameResource(l.Source, l.Target) {
		return nil, apperrors.NewConflict(fmt.Sprintf("a node for %s already exists", l.Target.Resource))
	}
	if addSource {
		tx.g.nodes = append(tx.g.nodes, l.Source)
	}
	if addTarget && l.Target != l.Source {
		tx.g.nodes = append(tx.g.nodes, l.Target)
	}
	tx.g.links = append(tx.g.links, l)
	tx.changed = true
	return l, nil
}

func (tx *Tx) sameResource(a, b *models.Node) bool {
	return !a.Resource.IsLiteral() && a.Resource.Equal(b.Resource)
}

// RemoveLink removes l.
func (tx *Tx) RemoveLink(l *models.Link) {
	for i, m := range tx.g.links {
		if m == l {
			tx.g.links = append(tx.g.links[:i], tx.g.links[i+1:]...)
			tx.changed = true
			return
		}
	}
}

// LinksFrom returns the links whose source represents n's resource.
func (tx *Tx) LinksFrom(n *models.Node) []*models.Link {
	return models.FilterLinks(tx.g.links, models.FromResource(n.Resource))
}

// LinksTo returns the links whose target represents n's resource.
func (tx *Tx) LinksTo(n *models.Node) []*models.Link {
	return models.FilterLinks(tx.g.links, models.ToResource(n.Resource))
}

// Touching returns the links with n as an endpoint.
func (tx *Tx) Touching(n *models.Node) []*models.Link {
	return models.FilterLinks(tx.g.links, func(l *models.Link) bool { return l.Touches(n) })
}
