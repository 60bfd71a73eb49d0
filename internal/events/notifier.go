// Package events provides an in-process notification bus for entity and
// partition changes.
package events

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType is the kind of change an Event reports.
type EventType int

const (
	EntityCreated EventType = iota
	EntityAltered
	PartitionAdded
)

func (t EventType) String() string {
	switch t {
	case EntityCreated:
		return "entity-created"
	case EntityAltered:
		return "entity-altered"
	case PartitionAdded:
		return "partition-added"
	default:
		return "unknown"
	}
}

// Event describes one committed change.
type Event struct {
	Type        EventType
	Kind        string
	Entity      string
	Partition   string
	OperationID string
	// Properties is the caller-facing view after the change; nil for
	// partition events.
	Properties map[string]string
	Timestamp  time.Time
}

// Notifier fans events out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	bufferSize  int
	dropped     int64
}

// Subscriber receives events on Ch until it unsubscribes.
type Subscriber struct {
	ID string
	// Filters are entity name prefixes; empty means all entities.
	Filters []string
	Ch      chan Event
}

// NewNotifier creates a notifier whose subscribers buffer bufferSize events.
func NewNotifier(bufferSize int) *Notifier {
	return &Notifier{
		subscribers: make(map[string]*Subscriber),
		bufferSize:  bufferSize,
	}
}

// Publish sends ev to every matching subscriber.
func (n *Notifier) Publish(ev Event) {
	if n == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, sub := range n.subscribers {
		if !sub.matches(ev.Entity) {
			continue
		}
		select {
		case sub.Ch <- ev:
		default:
			atomic.AddInt64(&n.dropped, 1)
		}
	}
}

// Subscribe registers a subscriber under id, replacing any subscriber with
// the same id.
func (n *Notifier) Subscribe(id string, filters ...string) *Subscriber {
	sub := &Subscriber{
		ID:      id,
		Filters: filters,
		Ch:      make(chan Event, n.bufferSize),
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if old, ok := n.subscribers[id]; ok {
		close(old.Ch)
	}
	n.subscribers[id] = sub
	return sub
}

// SubscribeAutoID registers a subscriber under a generated id.
func (n *Notifier) SubscribeAutoID(filters ...string) *Subscriber {
	return n.Subscribe("sub_"+uuid.NewString(), filters...)
}

// Unsubscribe removes the subscriber and closes its channel.
func (n *Notifier) Unsubscribe(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sub, ok := n.subscribers[id]; ok {
		delete(n.subscribers, id)
		close(sub.Ch)
	}
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full.
func (n *Notifier) Dropped() int64 {
	return atomic.LoadInt64(&n.dropped)
}

func (s *Subscriber) matches(entity string) bool {
	if len(s.Filters) == 0 {
		return true
	}
	for _, f := range s.Filters {
		if f == "" || strings.HasPrefix(entity, f) {
			return true
		}
	}
	return false
}
