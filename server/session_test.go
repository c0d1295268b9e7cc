package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/ontograph/explore"
	"github.com/TFMV/ontograph/graph"
	"github.com/TFMV/ontograph/ingest"
	"github.com/TFMV/ontograph/physics"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
)

func testSession(t *testing.T, id string) *Session {
	t.Helper()
	ds, err := ingest.LoadDataset("../ingest/testdata/zoo.json")
	require.NoError(t, err)
	g := graph.New(physics.NewSimulation(), graph.DefaultForces(), nil)
	exp, err := explore.New(explore.KindData, g, ds, explore.Options{})
	require.NoError(t, err)
	return newSession(id, exp)
}

func TestStoreAddGetRemove(t *testing.T) {
	var closed []string
	st := NewStore(2, 0, func(s *Session) { closed = append(closed, s.ID) })

	require.NoError(t, st.Add(testSession(t, "a")))
	require.NoError(t, st.Add(testSession(t, "b")))
	err := st.Add(testSession(t, "c"))
	assert.True(t, apperrors.IsUnavailable(err))
	assert.Equal(t, 2, st.Len())

	s, err := st.Get("a")
	require.NoError(t, err)
	assert.Equal(t, explore.KindData, s.Kind)

	_, err = st.Get("c")
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, st.Remove("a"))
	assert.True(t, apperrors.IsNotFound(st.Remove("a")))
	assert.Equal(t, []string{"a"}, closed)

	st.CloseAll()
	assert.Equal(t, 0, st.Len())
	assert.Equal(t, []string{"a", "b"}, closed)
}

func TestStoreList(t *testing.T) {
	st := NewStore(0, 0, nil)
	first := testSession(t, "first")
	second := testSession(t, "second")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, st.Add(second))
	require.NoError(t, st.Add(first))

	list := st.List()
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].ID)
	assert.Equal(t, "second", list[1].ID)
}

func TestStoreSweep(t *testing.T) {
	st := NewStore(0, time.Minute, nil)
	idle := testSession(t, "idle")
	busy := testSession(t, "busy")
	require.NoError(t, st.Add(idle))
	require.NoError(t, st.Add(busy))

	idle.lastUsed.Store(time.Now().Add(-2 * time.Minute).UnixNano())
	assert.Equal(t, 1, st.Sweep(time.Now()))
	_, err := st.Get("idle")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = st.Get("busy")
	assert.NoError(t, err)

	assert.Equal(t, 0, NewStore(0, 0, nil).Sweep(time.Now().Add(time.Hour)))
}

func TestSessionStopsSimulation(t *testing.T) {
	s := testSession(t, "run")
	exited := make(chan error, 1)
	s.start(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, func(err error) { exited <- err })

	s.stop()
	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed after stop")
	}
	assert.ErrorIs(t, <-exited, context.Canceled)

	// stopping twice and stopping an unstarted session are both safe
	s.stop()
	testSession(t, "idle").stop()
}
