package document

import (
	"sync"

	"github.com/foundrysync/mimic/pkg/model"
)

// OverflowPolicy selects what happens when a subscriber's bounded channel
// is full at publish time. This resolves the spec's open question on
// slow-subscriber behavior; dropOldest is the default.
type OverflowPolicy string

const (
	// OverflowDropOldest pops the oldest buffered message, then pushes
	// the new one, so the subscriber loses history but stays connected.
	OverflowDropOldest OverflowPolicy = "dropOldest"
	// OverflowDropNewest discards the incoming message instead.
	OverflowDropNewest OverflowPolicy = "dropNewest"
	// OverflowDisconnect closes the offending subscription.
	OverflowDisconnect OverflowPolicy = "disconnect"
)

// Broadcast is one transaction delivered to every subscriber of a
// document, in the order it was applied.
type Broadcast struct {
	Transaction model.Transaction
	Version     uint64
}

// broadcaster multicasts transactions to a set of bounded, independent
// per-subscriber channels. A slow subscriber never blocks a fast one;
// the configured OverflowPolicy decides what happens when a subscriber
// falls behind.
type broadcaster struct {
	bufferSize int
	policy     OverflowPolicy
	onDrop     func(policy string)

	mu   sync.Mutex
	subs map[int]chan Broadcast
	next int
}

func newBroadcaster(bufferSize int, policy OverflowPolicy, onDrop func(policy string)) *broadcaster {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if policy == "" {
		policy = OverflowDropOldest
	}
	return &broadcaster{bufferSize: bufferSize, policy: policy, onDrop: onDrop, subs: make(map[int]chan Broadcast)}
}

// subscribe returns a channel of broadcasts and an unsubscribe function.
func (b *broadcaster) subscribe() (<-chan Broadcast, func()) {
	ch := make(chan Broadcast, b.bufferSize)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

func (b *broadcaster) publish(msg Broadcast) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- msg:
			continue
		default:
		}

		switch b.policy {
		case OverflowDropNewest:
			if b.onDrop != nil {
				b.onDrop(string(OverflowDropNewest))
			}
		case OverflowDisconnect:
			delete(b.subs, id)
			close(ch)
			if b.onDrop != nil {
				b.onDrop(string(OverflowDisconnect))
			}
		case OverflowDropOldest:
			fallthrough
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- msg:
			default:
			}
			if b.onDrop != nil {
				b.onDrop(string(OverflowDropOldest))
			}
		}
	}
}

// closeAll closes every live subscriber channel. Used on eviction.
func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
