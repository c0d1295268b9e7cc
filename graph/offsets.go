package graph

import "github.com/TFMV/ontograph/models"

type nodePair struct {
	a, b *models.Node
}

func unordered(l *models.Link) nodePair {
	if l.Source.ID > l.Target.ID {
		return nodePair{l.Target, l.Source}
	}
	return nodePair{l.Source, l.Target}
}

// AssignOffsets recomputes the offset of every link. Links sharing an
// unordered node pair get 0, 1, -1, 2, -2, ... in list order, negated for
// links running opposite to the first link of the group. Self-loops on a node
// get -1, 1, -2, 2, ... so that none is ever 0. Every other link gets 0.
func AssignOffsets(links []*models.Link) {
	groups := make(map[nodePair][]*models.Link)
	loops := make(map[*models.Node][]*models.Link)

	for _, l := range links {
		l.Offset = 0
		l.Loop = l.Source == l.Target
		if l.Loop {
			loops[l.Source] = append(loops[l.Source], l)
			continue
		}
		key := unordered(l)
		groups[key] = append(groups[key], l)
	}

	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		first := group[0]
		for i, l := range group {
			offset := centeredOffset(i)
			if l.Source != first.Source {
				offset = -offset
			}
			l.Offset = offset
		}
	}

	for _, group := range loops {
		for i, l := range group {
			l.Offset = loopOffset(i)
		}
	}
}

// centeredOffset maps 0, 1, 2, 3, 4 to 0, 1, -1, 2, -2.
func centeredOffset(i int) int {
	if i == 0 {
		return 0
	}
	k := (i + 1) / 2
	if i%2 == 1 {
		return k
	}
	return -k
}

// loopOffset maps 0, 1, 2, 3 to -1, 1, -2, 2.
func loopOffset(i int) int {
	k := i/2 + 1
	if i%2 == 0 {
		return -k
	}
	return k
}
