// Package sse implements a Server-Sent Events broker that tells editors when
// their highlights are stale.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/githighlight/internal/models"
)

// Event types.
const (
	TypeSnapshotUpdated = "snapshot.updated"
	TypeRefreshFailed   = "refresh.failed"
	TypeInvalidate      = "highlights.invalidate"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SnapshotData is the payload of snapshot.updated and highlights.invalidate.
type SnapshotData struct {
	Generation  uint64 `json:"generation"`
	Fingerprint string `json:"fingerprint"`
	Commits     int    `json:"commits"`
}

// DefaultKeepAlive is the interval of comment pings on idle streams.
const DefaultKeepAlive = 15 * time.Second

// Option configures a Broker.
type Option func(*Broker)

// WithKeepAlive sets the ping interval for open streams; 0 disables pings.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

// Broker fans snapshot changes out to connected editors.
//
// One goroutine owns the clients, the event sequence, the last announced
// snapshot and the invalidation throttle. Public methods reach it through
// channels.
type Broker struct {
	invalidateMin time.Duration
	keepAlive     time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	snapshotCh    chan SnapshotData
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that sends highlights.invalidate at most once
// per throttle interval. A change suppressed by the throttle is delivered
// when the interval ends, so the last snapshot is always announced.
func NewBroker(throttle time.Duration, opts ...Option) *Broker {
	if throttle <= 0 {
		throttle = 500 * time.Millisecond
	}

	b := &Broker{
		invalidateMin: throttle,
		keepAlive:     DefaultKeepAlive,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		snapshotCh:    make(chan SnapshotData, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

// frame renders one event in wire format.
func frame(id uint64, event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\nid: %d\ndata: %s\n\n", event.Type, id, payload)), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq            uint64
		latest         *SnapshotData
		lastInvalidate time.Time
		pending        *SnapshotData
		trailing       <-chan time.Time
	)

	broadcast := func(event Event) {
		raw, err := frame(seq+1, event)
		if err != nil {
			return
		}
		seq++

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	invalidate := func(data SnapshotData) {
		lastInvalidate = time.Now()
		pending = nil
		trailing = nil
		broadcast(Event{Type: TypeInvalidate, Data: data})
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}
			// Late joiners learn the current generation right away.
			if latest != nil {
				if raw, err := frame(seq, Event{Type: TypeSnapshotUpdated, Data: *latest}); err == nil {
					ch <- raw
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case data := <-b.snapshotCh:
			latest = &data
			broadcast(Event{Type: TypeSnapshotUpdated, Data: data})

			wait := b.invalidateMin - time.Since(lastInvalidate)
			if wait <= 0 {
				invalidate(data)
				continue
			}
			pending = &data
			if trailing == nil {
				trailing = time.After(wait)
			}

		case <-trailing:
			if pending != nil {
				invalidate(*pending)
			}
			trailing = nil

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishSnapshot announces a new snapshot and schedules a throttled
// highlights.invalidate.
func (b *Broker) PublishSnapshot(snap *models.Snapshot) {
	if b.closed.Load() || snap == nil {
		return
	}
	data := SnapshotData{
		Generation:  snap.Generation,
		Fingerprint: snap.Fingerprint,
		Commits:     len(snap.Commits),
	}
	select {
	case b.snapshotCh <- data:
	case <-b.stopped:
	}
}

// PublishFailure announces a failed refresh. Highlights stay valid, so no
// invalidation follows.
func (b *Broker) PublishFailure(err error) {
	if err == nil {
		return
	}
	b.Publish(Event{Type: TypeRefreshFailed, Data: map[string]string{"error": err.Error()}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var ping <-chan time.Time
	if b.keepAlive > 0 {
		ticker := time.NewTicker(b.keepAlive)
		defer ticker.Stop()
		ping = ticker.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
