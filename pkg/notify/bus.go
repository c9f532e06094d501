// Package notify is a lightweight in-memory fanout bus for engine
// notifications (session lifecycle, bulk progress, delivery logs).
//
// Contract:
//   - Publish never blocks.
//   - Subscribers use buffered channels; slow subscribers drop events.
package notify

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	EventSessionCreated   = "session.created"
	EventSessionUpdated   = "session.updated"
	EventSessionDestroyed = "session.destroyed"
	EventQRCode           = "session.qr"
	EventAuthenticated    = "session.authenticated"
	EventReady            = "session.ready"
	EventDisconnected     = "session.disconnected"
	EventBulkProgress     = "bulk.progress"
	EventDeliveryLog      = "message.delivery"
	EventJobDone          = "schedule.done"
	EventQuotaExceeded    = "quota.exceeded"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan Event)}
}

func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		select {
		case ch <- e:
		default:
			// subscriber is behind, drop
		}
	}
}

// Subscribe registers a buffered listener. The returned func removes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	id := b.seq.Add(1)
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
