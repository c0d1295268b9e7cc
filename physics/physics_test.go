package physics

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/TFMV/ontograph/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNodes(n int) []*models.Node {
	nodes := make([]*models.Node, n)
	for i := range nodes {
		nodes[i] = models.NewNode(models.NewIRI("http://example.org/n"+string(rune('a'+i)), models.RoleIndividual))
	}
	return nodes
}

func TestSetNodesPlacesUnplacedNodes(t *testing.T) {
	sim := NewSimulation()
	sim.SetOrigin(100, 100)

	nodes := testNodes(3)
	nodes[1].SetPosition(5, 7)
	sim.SetNodes(nodes)

	assert.True(t, nodes[0].Placed)
	assert.InDelta(t, 100+initialRadius*math.Sqrt(0.5), nodes[0].X, 1e-9)
	assert.InDelta(t, 100, nodes[0].Y, 1e-9)
	assert.Equal(t, 5.0, nodes[1].X)
	assert.Equal(t, 7.0, nodes[1].Y)
	for i, n := range nodes {
		assert.Equal(t, i, n.Index)
	}
}

func TestAlphaCoolsToStable(t *testing.T) {
	sim := NewSimulation()
	sim.SetNodes(testNodes(2))

	n := sim.Settle(1000)
	assert.True(t, sim.Stable())
	// alpha reaches 0.001 after about 300 ticks
	assert.InDelta(t, 300, n, 2)
	assert.Equal(t, uint64(n), sim.Ticks())

	assert.Equal(t, 0, sim.Settle(10))
	sim.SetAlpha(0.5)
	assert.False(t, sim.Stable())
}

func TestVelocityDecay(t *testing.T) {
	tests := []struct {
		decay float64
		want  float64
	}{
		{0.5, 2},
		{0, 4},
		{2, 4 * (1 - DefaultVelocityDecay)},
	}
	for _, tt := range tests {
		sim := NewSimulation(WithVelocityDecay(tt.decay))
		node := testNodes(1)[0]
		node.SetPosition(10, 10)
		sim.SetNodes([]*models.Node{node})
		node.Vx = 4

		sim.Tick(1)
		assert.InDelta(t, tt.want, node.Vx, 1e-9, "decay %v", tt.decay)
		assert.InDelta(t, 10+tt.want, node.X, 1e-9, "decay %v", tt.decay)
	}
}

func TestSetAlphaClamps(t *testing.T) {
	sim := NewSimulation()
	sim.SetAlpha(3)
	assert.Equal(t, 1.0, sim.Alpha())
	sim.SetAlpha(-1)
	assert.Equal(t, 0.0, sim.Alpha())
}

func TestSetForceReplaceAndRemove(t *testing.T) {
	sim := NewSimulation()
	center := NewCenterForce(0, 0)
	sim.SetForce("center", center)
	assert.Same(t, center, sim.Force("center"))

	other := NewCenterForce(10, 10)
	sim.SetForce("center", other)
	assert.Same(t, other, sim.Force("center"))

	sim.SetForce("center", nil)
	assert.Nil(t, sim.Force("center"))
}

func TestCenterForce(t *testing.T) {
	nodes := testNodes(2)
	nodes[0].SetPosition(0, 0)
	nodes[1].SetPosition(10, 20)

	f := NewCenterForce(100, 100)
	f.Initialize(nodes, nil)
	f.Apply(1)

	assert.InDelta(t, 95, nodes[0].X, 1e-9)
	assert.InDelta(t, 90, nodes[0].Y, 1e-9)
	assert.InDelta(t, 105, nodes[1].X, 1e-9)
	assert.InDelta(t, 110, nodes[1].Y, 1e-9)
}

func TestManyBodyRepels(t *testing.T) {
	nodes := testNodes(2)
	nodes[0].SetPosition(0, 0)
	nodes[1].SetPosition(10, 0)

	f := NewManyBodyForce(func(*models.Node) float64 { return -50 })
	f.Initialize(nodes, func() float64 { return 1e-6 })
	f.Apply(1)

	assert.Less(t, nodes[0].Vx, 0.0)
	assert.Greater(t, nodes[1].Vx, 0.0)
	assert.InDelta(t, -nodes[0].Vx, nodes[1].Vx, 1e-9)
}

func TestManyBodyCoincidentNodesSeparate(t *testing.T) {
	sim := NewSimulation(WithSeed(42))
	nodes := testNodes(2)
	nodes[0].SetPosition(0, 0)
	nodes[1].SetPosition(0, 0)
	sim.SetNodes(nodes)
	sim.SetForce("charge", NewManyBodyForce(nil))

	sim.Tick(50)

	d := math.Hypot(nodes[0].X-nodes[1].X, nodes[0].Y-nodes[1].Y)
	assert.Greater(t, d, 1.0)
	assert.False(t, math.IsNaN(nodes[0].X))
}

func TestCollideSeparatesOverlap(t *testing.T) {
	sim := NewSimulation()
	nodes := testNodes(2)
	nodes[0].SetPosition(0, 0)
	nodes[1].SetPosition(5, 0)
	sim.SetNodes(nodes)
	sim.SetForce("collide", NewCollideForce(func(*models.Node) float64 { return 10 }))

	sim.Tick(100)

	assert.GreaterOrEqual(t, math.Abs(nodes[1].X-nodes[0].X), 19.0)
}

func TestLinkForceConvergesToDistance(t *testing.T) {
	sim := NewSimulation()
	nodes := testNodes(2)
	nodes[0].SetPosition(0, 0)
	nodes[1].SetPosition(200, 0)
	link := models.NewLink(nodes[0], nodes[1], nil)
	sim.SetNodes(nodes)
	sim.SetForce("link", NewLinkForce([]*models.Link{link}, 60))

	sim.Settle(1000)

	d := math.Hypot(nodes[1].X-nodes[0].X, nodes[1].Y-nodes[0].Y)
	assert.InDelta(t, 60, d, 1)
}

func TestLinkForceSkipsLoopsAndForeignNodes(t *testing.T) {
	nodes := testNodes(3)
	loop := models.NewLink(nodes[0], nodes[0], nil)
	foreign := models.NewLink(nodes[0], nodes[2], nil)
	ok := models.NewLink(nodes[0], nodes[1], nil)

	f := NewLinkForce([]*models.Link{loop, foreign, ok}, 30)
	f.Initialize(nodes[:2], func() float64 { return 1e-6 })

	require.Len(t, f.active, 1)
	assert.Same(t, ok, f.active[0])
	assert.Equal(t, 1.0, f.strengths[0])
	assert.Equal(t, 0.5, f.bias[0])
}

func TestPinnedNodeHoldsPosition(t *testing.T) {
	sim := NewSimulation()
	nodes := testNodes(2)
	nodes[0].Pin(10, 10)
	nodes[1].SetPosition(12, 10)
	sim.SetNodes(nodes)
	sim.SetForce("charge", NewManyBodyForce(nil))

	sim.Tick(20)

	assert.Equal(t, 10.0, nodes[0].X)
	assert.Equal(t, 10.0, nodes[0].Y)
	assert.Equal(t, 0.0, nodes[0].Vx)
	assert.NotEqual(t, 12.0, nodes[1].X)
}

func TestTickHoldsBoundLocker(t *testing.T) {
	var mu sync.Mutex
	sim := NewSimulation()
	sim.Bind(&mu)
	sim.SetNodes(testNodes(2))

	mu.Lock()
	done := make(chan struct{})
	go func() {
		sim.Tick(1)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("tick ran without the bound lock")
	case <-time.After(20 * time.Millisecond):
	}
	mu.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tick did not complete")
	}
}

func TestRunTicksAndSleepsUntilRestart(t *testing.T) {
	sim := NewSimulation(WithInterval(time.Millisecond), WithAlphaMin(0.5))
	sim.SetNodes(testNodes(2))

	sim.SetAlpha(0.52)

	ticked := make(chan struct{}, 1)
	sim.OnTick(func() {
		select {
		case ticked <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sim.Run(ctx) }()

	require.Eventually(t, sim.Stable, 2*time.Second, time.Millisecond)
	settled := sim.Ticks()
	assert.Greater(t, settled, uint64(0))

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, settled, sim.Ticks())

	sim.SetAlpha(1)
	sim.Restart()
	require.Eventually(t, func() bool { return sim.Ticks() > settled }, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
	assert.NotEmpty(t, ticked)
}

func TestJiggleNonZero(t *testing.T) {
	sim := NewSimulation(WithSeed(7))
	for i := 0; i < 100; i++ {
		v := sim.jiggle()
		assert.NotZero(t, v)
		assert.Less(t, math.Abs(v), 1e-5)
	}
}
