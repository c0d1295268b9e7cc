package graph

import "github.com/TFMV/ontograph/models"

// Snapshot is a consistent copy of the graph for rendering.
type Snapshot struct {
	Nodes   []*models.Node `json:"nodes"`
	Links   []*models.Link `json:"links"`
	Width   float64        `json:"width"`
	Height  float64        `json:"height"`
	Dynamic bool           `json:"dynamic"`
	Version uint64         `json:"version"`
}

// Snapshot copies the nodes and links under the graph lock. The copies share
// resources and UML bodies with the live graph, which never mutates them.
func (g *Graph) Snapshot() *Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := &Snapshot{
		Nodes:   make([]*models.Node, len(g.nodes)),
		Links:   make([]*models.Link, 0, len(g.links)),
		Width:   g.width,
		Height:  g.height,
		Dynamic: g.dynamic,
		Version: g.version,
	}
	copies := make(map[*models.Node]*models.Node, len(g.nodes))
	for i, n := range g.nodes {
		c := *n
		c.OpenBy = nil
		if n.Pinned() {
			fx, fy := *n.Fx, *n.Fy
			c.Fx, c.Fy = &fx, &fy
		}
		s.Nodes[i] = &c
		copies[n] = &c
	}
	for _, l := range g.links {
		src, tgt := copies[l.Source], copies[l.Target]
		if src == nil || tgt == nil {
			continue
		}
		c := *l
		c.OpenBy = nil
		c.Source, c.Target = src, tgt
		s.Links = append(s.Links, &c)
	}
	return s
}

// Node returns the snapshot node with the given ID, or nil.
func (s *Snapshot) Node(id string) *models.Node {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
