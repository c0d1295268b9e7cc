package server

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TFMV/ontograph/explore"
	"github.com/TFMV/ontograph/graph"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
)

// Session is one live graph: the aggregate, the explorer driving it and the
// goroutine running its simulation.
type Session struct {
	ID        string
	Kind      explore.Kind
	Graph     *graph.Graph
	Explorer  *explore.Explorer
	CreatedAt time.Time

	lastUsed atomic.Int64
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func newSession(id string, exp *explore.Explorer) *Session {
	s := &Session{
		ID:        id,
		Kind:      exp.Kind(),
		Graph:     exp.Graph(),
		Explorer:  exp,
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}
	s.touch()
	return s
}

// start runs the simulation until the session is closed.
func (s *Session) start(run func(ctx context.Context) error, onExit func(error)) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer close(s.done)
		onExit(run(ctx))
	}()
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// LastUsed is the time of the last request that touched the session.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// Done is closed once the session's simulation has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) stop() {
	s.stopOnce.Do(func() {
		if s.cancel == nil {
			close(s.done)
			return
		}
		s.cancel()
	})
	<-s.done
}

// Store holds the open sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	max      int
	ttl      time.Duration
	onClose  func(*Session)
}

// NewStore creates a store holding at most max sessions. Sessions idle for
// longer than ttl are removed by Sweep; a zero ttl keeps them forever.
func NewStore(max int, ttl time.Duration, onClose func(*Session)) *Store {
	if onClose == nil {
		onClose = func(*Session) {}
	}
	return &Store{
		sessions: make(map[string]*Session),
		max:      max,
		ttl:      ttl,
		onClose:  onClose,
	}
}

// Add registers s, failing when the store is full.
func (st *Store) Add(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.max > 0 && len(st.sessions) >= st.max {
		return apperrors.NewUnavailable("session limit reached", nil)
	}
	st.sessions[s.ID] = s
	return nil
}

// Get returns the session and marks it used.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFound("graph " + id + " not found")
	}
	s.touch()
	return s, nil
}

// List returns the sessions ordered by creation time.
func (st *Store) List() []*Session {
	st.mu.RLock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	st.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Len is the number of open sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Remove stops and forgets a session.
func (st *Store) Remove(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return apperrors.NewNotFound("graph " + id + " not found")
	}
	st.close(s)
	return nil
}

// Sweep removes sessions idle since before now-ttl and returns how many
// were removed.
func (st *Store) Sweep(now time.Time) int {
	if st.ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-st.ttl)
	var expired []*Session
	st.mu.Lock()
	for id, s := range st.sessions {
		if s.LastUsed().Before(cutoff) {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()
	for _, s := range expired {
		st.close(s)
	}
	return len(expired)
}

// CloseAll stops every session.
func (st *Store) CloseAll() {
	st.mu.Lock()
	all := st.sessions
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()
	for _, s := range all {
		st.close(s)
	}
}

func (st *Store) close(s *Session) {
	s.stop()
	st.onClose(s)
}
