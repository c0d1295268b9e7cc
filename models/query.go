package models

// NodeFilter is a function type used to filter nodes in queries
type NodeFilter func(node *Node) bool

// LinkFilter is a function type used to filter links in queries
type LinkFilter func(link *Link) bool

// FilterNodes returns nodes that match the provided filter function
func FilterNodes(nodes []*Node, filter NodeFilter) []*Node {
	var result []*Node
	for _, n := range nodes {
		if filter(n) {
			result = append(result, n)
		}
	}
	return result
}

// FilterLinks returns links that match the provided filter function
func FilterLinks(links []*Link, filter LinkFilter) []*Link {
	var result []*Link
	for _, l := range links {
		if filter(l) {
			result = append(result, l)
		}
	}
	return result
}

// FromResource matches links whose source is r, by value.
func FromResource(r *Resource) LinkFilter {
	return func(l *Link) bool { return l.Source.Resource.Equal(r) }
}

// ToResource matches links whose target is r, by value.
func ToResource(r *Resource) LinkFilter {
	return func(l *Link) bool { return l.Target.Resource.Equal(r) }
}
