// Package status implements the push-based observer bus (C6) shared by the
// node directory and the proxy listener. It is a best-effort, non-blocking
// fan-out: a slow observer may miss intermediate events but is guaranteed to
// eventually see the latest one once it catches up.
package status

import (
	"sync"

	"github.com/google/uuid"
)

// Well-known event types published on the bus.
const (
	// EventNodesUpdated carries a []directory.Node snapshot whenever the
	// directory's contents change (remote refresh or a completed probe
	// batch).
	EventNodesUpdated = "nodes_updated"

	// EventProxyStatus carries a ProxyStatus snapshot whenever the proxy
	// listener's running or accounting state changes; a selection change
	// alone does not publish one.
	EventProxyStatus = "proxy_status"
)

// Event is one message delivered to subscribers. Data's concrete type depends
// on Type; see the Event* constants above.
type Event struct {
	Type string
	Data any
}

// subscriberBuffer bounds how many events a slow subscriber may lag behind
// before older events are dropped. Proxy/node snapshots are emitted far less
// often than, say, per-request traffic events, so this can stay small.
const subscriberBuffer = 32

// Subscriber receives events on a buffered channel. Callers must keep
// draining Events or risk missing intermediate snapshots (never the final
// one, per the bus's delivery guarantee).
type Subscriber struct {
	ID     string
	Events chan Event
}

// Bus is an in-memory, non-blocking pub/sub bus.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]*Subscriber)}
}

// Subscribe registers a new observer and returns it. Call Unsubscribe with
// the returned ID when the observer goes away.
func (b *Bus) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:     uuid.NewString(),
		Events: make(chan Event, subscriberBuffer),
	}
	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes and closes a subscriber's channel. Safe to call more
// than once for the same ID.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.Events)
	}
	b.mu.Unlock()
}

// Publish fans an event out to every current subscriber. Never blocks: when
// a subscriber's buffer is full, its oldest queued event is dropped to make
// room for this one, so the newest event is always kept.
//
// Callers must never hold a directory or listener lock while calling
// Publish.
func (b *Bus) Publish(eventType string, data any) {
	ev := Event{Type: eventType, Data: data}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.Events <- ev:
		default:
			// Slow subscriber — drop its oldest event rather than block the
			// producer or lose the newest one.
			select {
			case <-sub.Events:
			default:
			}
			select {
			case sub.Events <- ev:
			default:
			}
		}
	}
}

// SubscriberCount reports how many observers are currently registered.
// Useful for tests and diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
