package dispatcher

import (
	"context"
	"sync"
)

// EventType tags a change event.
type EventType string

const (
	Added    EventType = "added"
	Modified EventType = "modified"
	Removed  EventType = "removed"
)

// Event is a single tagged change on a topic.
type Event struct {
	Type   EventType `json:"type"`
	Entity any       `json:"entity"`
}

// SnapshotFunc produces the current full state of a topic. It runs under the
// topic lock at subscribe time, so the snapshot and subsequent events form a
// consistent, gap-free sequence.
type SnapshotFunc func(ctx context.Context) ([]any, error)

// Dispatcher is a push-based in-process channel between stores and their
// subscribers. Each subscription first receives its snapshot as added
// events, then incremental events in publish order. There is no ordering
// guarantee across topics. Topics exist only while subscribed: the last
// cancel prunes the entry, so the map stays bounded by live subscriptions
// rather than by every room or user ever touched.
type Dispatcher struct {
	mu     sync.RWMutex
	topics map[string]*topic
}

type topic struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	pruned bool
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{topics: make(map[string]*topic)}
}

func (d *Dispatcher) topicFor(name string) *topic {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.topics[name]
	if !ok {
		t = &topic{subs: make(map[*Subscription]struct{})}
		d.topics[name] = t
	}
	return t
}

// Subscribe attaches a subscriber to a topic. A non-nil snapshot provider is
// invoked under the topic lock and its entities delivered first; the returned
// subscription's channel then yields live events.
func (d *Dispatcher) Subscribe(ctx context.Context, name string, snapshot SnapshotFunc) (*Subscription, error) {
	for {
		t := d.topicFor(name)
		t.mu.Lock()
		if t.pruned {
			// lost a race with the last unsubscribe; a fresh topic exists now
			t.mu.Unlock()
			continue
		}

		var entities []any
		if snapshot != nil {
			var err error
			entities, err = snapshot(ctx)
			if err != nil {
				empty := len(t.subs) == 0
				if empty {
					t.pruned = true
				}
				t.mu.Unlock()
				if empty {
					d.dropTopic(name, t)
				}
				return nil, err
			}
		}

		sub := newSubscription(func(s *Subscription) {
			d.removeSub(name, t, s)
		})
		for _, e := range entities {
			sub.push(Event{Type: Added, Entity: e})
		}
		t.subs[sub] = struct{}{}
		t.mu.Unlock()
		return sub, nil
	}
}

// Publish delivers an event to every subscriber of the topic, preserving
// per-topic order. Topics nobody subscribed to are not materialized.
func (d *Dispatcher) Publish(name string, ev Event) {
	d.mu.RLock()
	t := d.topics[name]
	d.mu.RUnlock()
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for sub := range t.subs {
		sub.push(ev)
	}
}

func (d *Dispatcher) removeSub(name string, t *topic, s *Subscription) {
	t.mu.Lock()
	delete(t.subs, s)
	empty := len(t.subs) == 0
	if empty {
		t.pruned = true
	}
	t.mu.Unlock()

	if empty {
		d.dropTopic(name, t)
	}
}

func (d *Dispatcher) dropTopic(name string, t *topic) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.topics[name] == t {
		delete(d.topics, name)
	}
}

// Subscription is one subscriber's ordered event stream.
type Subscription struct {
	mu         sync.Mutex
	cond       *sync.Cond
	queue      []Event
	closed     bool
	out        chan Event
	done       chan struct{}
	cancelOnce sync.Once
	unregister func(*Subscription)
}

func newSubscription(unregister func(*Subscription)) *Subscription {
	s := &Subscription{
		out:        make(chan Event, 16),
		done:       make(chan struct{}),
		unregister: unregister,
	}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

// Events yields the subscription's events. The channel closes after Cancel.
func (s *Subscription) Events() <-chan Event {
	return s.out
}

// Cancel stops delivery immediately. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(func() {
		s.unregister(s)
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
		s.cond.Signal()
	})
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.cond.Signal()
	s.mu.Unlock()
}

// pump moves events from the mailbox to the out channel so publishers never
// block on a slow consumer.
func (s *Subscription) pump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			close(s.out)
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			close(s.out)
			return
		}
	}
}
