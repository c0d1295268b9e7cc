package explore

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrStaleExpansion is returned by an expansion that was superseded by a
// newer expansion or a collapse of the same node, or whose node left the
// graph while the fetch was in flight. Nothing is committed.
var ErrStaleExpansion = errors.New("expansion superseded")

// TooManyLinksError reports that expanding a node would add more links than
// the view's threshold. The caller retries with a predicate filter chosen
// from Counts.
type TooManyLinksError struct {
	NodeID    string         `json:"node_id"`
	Total     int            `json:"total"`
	Threshold int            `json:"threshold"`
	Counts    map[string]int `json:"counts"`
}

func (e *TooManyLinksError) Error() string {
	return fmt.Sprintf("expansion of %s yields %d links, more than %d", e.NodeID, e.Total, e.Threshold)
}

// Predicates returns the predicate IRIs sorted by descending count.
func (e *TooManyLinksError) Predicates() []string {
	out := make([]string, 0, len(e.Counts))
	for p := range e.Counts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if e.Counts[out[i]] != e.Counts[out[j]] {
			return e.Counts[out[i]] > e.Counts[out[j]]
		}
		return strings.Compare(out[i], out[j]) < 0
	})
	return out
}

// IsTooManyLinks reports whether err is a TooManyLinksError.
func IsTooManyLinks(err error) bool {
	var tm *TooManyLinksError
	return errors.As(err, &tm)
}
