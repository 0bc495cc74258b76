// Package sse implements a Server-Sent Events broker that tells connected
// shells when the note tree changed on disk.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event types published after the watcher reconciled the index.
const (
	EventNotesChanged = "notes.changed"
	EventNotesRenamed = "notes.renamed"
)

// DefaultHeartbeat is the interval of keep-alive comments on idle streams.
const DefaultHeartbeat = 30 * time.Second

const clientBuffer = 64

// Signal is the payload of every event. Seq increases by one per event, so a
// client that sees a gap knows it missed something and should re-query.
type Signal struct {
	Seq uint64 `json:"seq"`
}

type subscription struct {
	ch     chan []byte
	lastID uint64
}

// Broker manages SSE client connections and broadcasts note signals.
//
// A single event loop owns the client set and the sequence counter. Public
// methods talk to it through channels.
type Broker struct {
	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan string
	countReqCh    chan chan int

	heartbeat time.Duration

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithHeartbeat sets the keep-alive interval. Zero disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// NewBroker creates a new SSE broker and starts its event loop.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan string, 256),
		countReqCh:    make(chan chan int),
		heartbeat:     DefaultHeartbeat,
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func frame(kind string, seq uint64) []byte {
	payload, _ := json.Marshal(Signal{Seq: seq})
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, kind, payload))
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var seq uint64

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = struct{}{}
			// A reconnecting client that missed events gets one catch-up
			// signal carrying the current sequence.
			if sub.lastID > 0 && sub.lastID < seq {
				sub.ch <- frame(EventNotesChanged, seq)
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case kind := <-b.publishCh:
			seq++
			raw := frame(kind, seq)
			for ch := range clients {
				select {
				case ch <- raw:
				default:
					// Slow client: it will notice the gap in seq.
				}
			}

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

// Subscribe adds a new client and returns its channel. lastID is the last
// sequence the client saw, or zero for a fresh connection.
func (b *Broker) Subscribe(lastID uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, lastID: lastID}:
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

// PublishNotes announces a reconciled change. renamed selects notes.renamed
// over notes.changed. Clients re-query whatever they display.
func (b *Broker) PublishNotes(renamed bool) {
	if b.closed.Load() {
		return
	}
	kind := EventNotesChanged
	if renamed {
		kind = EventNotesRenamed
	}
	select {
	case b.publishCh <- kind:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /events). It honours the
// Last-Event-ID header sent by reconnecting EventSource clients.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("retry: 3000\n\n"))
	flusher.Flush()

	ch := b.Subscribe(lastID)
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": keepalive\n\n"))
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
