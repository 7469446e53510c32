// Package overlaybus distributes per-tick overlay snapshots to rendering
// consumers without ever blocking the render loop. A slow consumer gets
// snapshots dropped, not queued: a stale overlay is worthless once a newer
// tick exists, so latency beats completeness here.
package overlaybus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/hpsslab/smile-2dvp/internal/types"
)

var (
	ErrBusClosed          = errors.New("overlaybus: bus is closed")
	ErrSubscriberExists   = errors.New("overlaybus: subscriber id already registered")
	ErrSubscriberNotFound = errors.New("overlaybus: subscriber not found")
	ErrNilChannel         = errors.New("overlaybus: subscriber channel is nil")
	ErrReceiverClosed     = errors.New("overlaybus: receiver is closed")
)

// DropPolicy defines what happens when a subscriber cannot keep up.
type DropPolicy int

const (
	// DropNew drops incoming snapshots while the subscriber's buffer is
	// full.
	DropNew DropPolicy = iota
	// DropOld always accepts the new snapshot, replacing the unconsumed
	// one (latest-only, the natural policy for a rendering surface).
	DropOld
)

// SubscriberStats tracks distribution counters for one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriber struct {
	id     string
	policy DropPolicy
	stats  *SubscriberStats

	ch     chan<- types.OverlaySnapshot // DropNew
	holder *latestHolder                // DropOld
}

// Bus fans overlay snapshots out to subscribers.
type Bus struct {
	mu             sync.RWMutex
	subscribers    map[string]*subscriber
	totalPublished uint64
	closed         bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers a channel with the DropNew policy.
func (b *Bus) Subscribe(id string, ch chan<- types.OverlaySnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}
	if ch == nil {
		return ErrNilChannel
	}

	b.subscribers[id] = &subscriber{
		id:     id,
		policy: DropNew,
		stats:  &SubscriberStats{},
		ch:     ch,
	}
	return nil
}

// SubscribeLatest registers a DropOld subscriber and returns its receiver.
func (b *Bus) SubscribeLatest(id string) (*Receiver, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return nil, ErrSubscriberExists
	}

	sub := &subscriber{
		id:     id,
		policy: DropOld,
		stats:  &SubscriberStats{},
		holder: newLatestHolder(),
	}
	b.subscribers[id] = sub
	return &Receiver{holder: sub.holder}, nil
}

// Publish distributes a snapshot to every subscriber. Never blocks.
func (b *Bus) Publish(snap types.OverlaySnapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	atomic.AddUint64(&b.totalPublished, 1)

	for _, sub := range b.subscribers {
		switch sub.policy {
		case DropNew:
			select {
			case sub.ch <- snap:
				atomic.AddUint64(&sub.stats.Sent, 1)
			default:
				atomic.AddUint64(&sub.stats.Dropped, 1)
			}
		case DropOld:
			_ = sub.holder.set(snap)
			atomic.AddUint64(&sub.stats.Sent, 1)
		}
	}
}

// Unsubscribe removes a subscriber.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, exists := b.subscribers[id]
	if !exists {
		return ErrSubscriberNotFound
	}
	if sub.policy == DropOld && sub.holder != nil {
		sub.holder.close()
	}
	delete(b.subscribers, id)
	return nil
}

// Stats returns distribution counters for one subscriber.
func (b *Bus) Stats(id string) (SubscriberStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, exists := b.subscribers[id]
	if !exists {
		return SubscriberStats{}, ErrSubscriberNotFound
	}
	return SubscriberStats{
		Sent:    atomic.LoadUint64(&sub.stats.Sent),
		Dropped: atomic.LoadUint64(&sub.stats.Dropped),
	}, nil
}

// TotalPublished returns how many snapshots went through the bus.
func (b *Bus) TotalPublished() uint64 {
	return atomic.LoadUint64(&b.totalPublished)
}

// Close shuts down the bus and all DropOld receivers.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subscribers {
		if sub.policy == DropOld && sub.holder != nil {
			sub.holder.close()
		}
	}
	b.subscribers = nil
}

// Receiver provides blocking and non-blocking access to the latest
// snapshot for DropOld subscribers.
type Receiver struct {
	holder *latestHolder
}

// Receive blocks until a snapshot is available or the bus closes. After a
// close it returns the zero snapshot.
func (r *Receiver) Receive() types.OverlaySnapshot {
	return r.holder.receive()
}

// TryReceive returns the latest snapshot without blocking.
func (r *Receiver) TryReceive() (types.OverlaySnapshot, bool) {
	return r.holder.tryReceive()
}

// latestHolder keeps only the most recent snapshot.
type latestHolder struct {
	mu     sync.RWMutex
	cond   *sync.Cond
	snap   *types.OverlaySnapshot
	closed bool
}

func newLatestHolder() *latestHolder {
	h := &latestHolder{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

func (h *latestHolder) set(snap types.OverlaySnapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrReceiverClosed
	}
	h.snap = &snap
	h.cond.Broadcast()
	return nil
}

func (h *latestHolder) receive() types.OverlaySnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	for h.snap == nil && !h.closed {
		h.cond.Wait()
	}
	if h.closed {
		return types.OverlaySnapshot{}
	}
	return *h.snap
}

func (h *latestHolder) tryReceive() (types.OverlaySnapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.snap == nil {
		return types.OverlaySnapshot{}, false
	}
	return *h.snap, true
}

func (h *latestHolder) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.cond.Broadcast()
}
