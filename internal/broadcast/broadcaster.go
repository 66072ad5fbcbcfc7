// Package broadcast fans recorded alert events out to in-process subscribers.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

const subscriberBuffer = 64

type subscriber struct {
	userID string // empty receives every user's events
	ch     chan *models.AlertEvent
}

type Broadcaster struct {
	subscribers map[uint64]subscriber
	nextID      atomic.Uint64
	dropped     atomic.Uint64
	mu          sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]subscriber),
	}
}

// Subscribe registers a listener for events of userID, or of all users when
// userID is empty.
func (b *Broadcaster) Subscribe(userID string) (uint64, <-chan *models.AlertEvent) {
	id := b.nextID.Add(1)
	ch := make(chan *models.AlertEvent, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[id] = subscriber{userID: userID, ch: ch}
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Broadcast never blocks; events for a full subscriber are dropped.
func (b *Broadcaster) Broadcast(e *models.AlertEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.userID != "" && sub.userID != e.UserID {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels, causing streams to exit gracefully
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}
