package graph

import "time"

// EventType classifies graph change notifications.
type EventType string

const (
	// EventTick follows a simulation tick; positions changed.
	EventTick EventType = "tick"
	// EventStructure follows a change to the node or link lists.
	EventStructure EventType = "structure"
	// EventForces follows a change of force parameters.
	EventForces EventType = "forces"
)

// Event is a ready-to-render signal. It carries no graph state; subscribers
// take a Snapshot.
type Event struct {
	Type EventType `json:"type"`
	Time time.Time `json:"time"`
}

const subscriberBuffer = 16

// Subscribe returns a channel of change events and a function that
// unsubscribes and closes it. Events are dropped for slow subscribers.
func (g *Graph) Subscribe() (<-chan Event, func()) {
	g.subMu.Lock()
	defer g.subMu.Unlock()

	id := g.nextSub
	g.nextSub++
	ch := make(chan Event, subscriberBuffer)
	g.subs[id] = ch

	var once bool
	return ch, func() {
		g.subMu.Lock()
		defer g.subMu.Unlock()
		if once {
			return
		}
		once = true
		delete(g.subs, id)
		close(ch)
	}
}

func (g *Graph) publish(t EventType) {
	ev := Event{Type: t, Time: time.Now()}

	g.subMu.Lock()
	defer g.subMu.Unlock()
	for _, ch := range g.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
