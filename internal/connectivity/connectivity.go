// Package connectivity reports whether the backend is reachable and notifies
// subscribers when that changes.
package connectivity

import "sync"

// Monitor is the online/offline signal the sync layer branches on.
type Monitor interface {
	IsOnline() bool
	// Subscribe registers fn for state changes and returns an unsubscribe
	// function. fn is called only on transitions, never for repeats.
	Subscribe(fn func(online bool)) func()
}

// notifier holds the state and subscriber list shared by the monitors.
type notifier struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(bool)
}

func (n *notifier) IsOnline() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *notifier) Subscribe(fn func(online bool)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func(bool))
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// set updates the state and notifies subscribers outside the lock.
func (n *notifier) set(online bool) {
	n.mu.Lock()
	if n.online == online {
		n.mu.Unlock()
		return
	}
	n.online = online
	fns := make([]func(bool), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// Manual is a monitor whose state is set by the caller. The CLI uses it with
// a health check; tests flip it directly.
type Manual struct {
	notifier
}

// NewManual returns a monitor with the given initial state.
func NewManual(online bool) *Manual {
	m := &Manual{}
	m.online = online
	return m
}

// SetOnline changes the state, notifying subscribers on a transition.
func (m *Manual) SetOnline(online bool) {
	m.set(online)
}

var (
	_ Monitor = (*Manual)(nil)
	_ Monitor = (*Socket)(nil)
)
