package player

import (
	"sync"
	"sync/atomic"
)

// Action is one state transition. Reduce works on a private copy of the
// current state; returning an error discards the copy.
type Action struct {
	Name      string
	Signature string
	Reduce    func(s *State) error
}

// Change is delivered to subscribers after every committed action.
type Change struct {
	Action    string
	Signature string
	Prev      *State
	Next      *State
}

type subscriber struct {
	ch   chan Change
	done chan struct{}
}

// Store is the single observable state cell. Writers are serialized by mu;
// readers load the current snapshot without locking. Every subscriber sees
// changes in commit order.
type Store struct {
	mu     sync.Mutex
	cur    atomic.Pointer[State]
	subs   map[int]*subscriber
	nextID int
}

func NewStore(initial State) *Store {
	s := &Store{subs: make(map[int]*subscriber)}
	s.cur.Store(&initial)
	return s
}

// State returns the current snapshot.
func (s *Store) State() *State {
	return s.cur.Load()
}

// Dispatch applies a and publishes the new snapshot. Delivery blocks while a
// subscriber's buffer is full, so subscribers must keep draining until they
// cancel.
func (s *Store) Dispatch(a Action) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cur.Load()
	next := prev.Clone()
	if err := a.Reduce(&next); err != nil {
		return prev, err
	}
	next.Rev = prev.Rev + 1
	s.cur.Store(&next)

	change := Change{Action: a.Name, Signature: a.Signature, Prev: prev, Next: &next}
	for _, sub := range s.subs {
		select {
		case sub.ch <- change:
		case <-sub.done:
		}
	}
	return &next, nil
}

// Subscribe registers a listener. The returned cancel func stops delivery
// and closes the channel.
func (s *Store) Subscribe(buffer int) (<-chan Change, func()) {
	sub := &subscriber{
		ch:   make(chan Change, buffer),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(sub.done)
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}
