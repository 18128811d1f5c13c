// Package broadcast fans slot patches and document-changed signals out to
// live-preview subscribers.
//
// Every event is serialized once by the publisher and handed to each
// subscriber's bounded queue. A subscriber whose queue is full is evicted
// instead of blocking the publisher, so a slow viewer can never stall the
// scheduler. The hub also keeps a cumulative snapshot (the last full patch
// with every later diff merged in) that is delivered first on subscribe and
// served to polling clients.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/roach88/livedoc/internal/render"
	"github.com/roach88/livedoc/internal/wire"
)

// DefaultQueueSize is the per-subscriber buffer.
const DefaultQueueSize = 64

// DefaultHeartbeat is the idle keep-alive interval of streaming handlers.
const DefaultHeartbeat = 15 * time.Second

// Event is one serialized message. Name is wire.EventPatch or
// wire.EventDocChanged.
type Event struct {
	Name string
	Data []byte
}

// Subscriber is one live connection.
type Subscriber struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// Events delivers queued events in publish order.
func (s *Subscriber) Events() <-chan Event { return s.events }

// Done is closed when the subscriber is removed or evicted.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// Hub holds the subscriber set and the snapshot.
//
// Thread-safety: all methods are safe for concurrent use. Publishing never
// blocks on a subscriber.
type Hub struct {
	mu        sync.Mutex
	subs      map[*Subscriber]struct{}
	snapshot  wire.Patch
	hasSnap   bool
	queueSize int
	heartbeat time.Duration
	logger    *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithQueueSize sets the per-subscriber buffer.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithHeartbeat sets the keep-alive interval of streaming handlers.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:      map[*Subscriber]struct{}{},
		queueSize: DefaultQueueSize,
		heartbeat: DefaultHeartbeat,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a subscriber. The current snapshot, if any, is
// queued before any later event.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		events: make(chan Event, h.queueSize),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hasSnap {
		if data, err := json.Marshal(h.snapshot); err == nil {
			s.events <- Event{Name: wire.EventPatch, Data: data}
		}
	}
	h.subs[s] = struct{}{}
	h.logger.Debug("subscriber added", "subscribers", len(h.subs))
	return s
}

// Unsubscribe removes s. It is safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		h.logger.Debug("subscriber removed", "subscribers", len(h.subs))
	}
	s.close()
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// PublishPatch merges p into the snapshot and pushes it to every
// subscriber. Implements scheduler.Publisher.
func (h *Hub) PublishPatch(p wire.Patch) {
	data, err := json.Marshal(p)
	if err != nil {
		h.logger.Error("encode patch", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mergeLocked(p)
	h.fanoutLocked(Event{Name: wire.EventPatch, Data: data})
}

// PublishDocChanged pushes a document-changed signal.
func (h *Hub) PublishDocChanged(d wire.DocChanged) {
	data, err := json.Marshal(d)
	if err != nil {
		h.logger.Error("encode doc-changed", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fanoutLocked(Event{Name: wire.EventDocChanged, Data: data})
}

func (h *Hub) fanoutLocked(ev Event) {
	for s := range h.subs {
		select {
		case s.events <- ev:
		default:
			delete(h.subs, s)
			s.close()
			h.logger.Warn("subscriber evicted: queue full", "subscribers", len(h.subs))
		}
	}
}

// mergeLocked folds p into the cumulative snapshot.
func (h *Hub) mergeLocked(p wire.Patch) {
	if len(p.Errors) > 0 {
		h.snapshot = wire.Patch{
			Docstep:     p.Docstep,
			Time:        p.Time,
			SlotPatches: map[string]string{},
			SlotMeta:    map[string]render.SlotMeta{},
			Errors:      p.Errors,
		}
		h.hasSnap = true
		return
	}
	if p.Full || !h.hasSnap || len(h.snapshot.Errors) > 0 {
		h.snapshot = wire.Patch{
			SlotPatches: map[string]string{},
			SlotMeta:    map[string]render.SlotMeta{},
		}
	}
	h.snapshot.Docstep = p.Docstep
	h.snapshot.Time = p.Time
	h.snapshot.Full = true
	for id, html := range p.SlotPatches {
		if html == "" && !p.Full {
			delete(h.snapshot.SlotPatches, id)
			delete(h.snapshot.SlotMeta, id)
			continue
		}
		if html == "" {
			if _, live := p.SlotMeta[id]; !live {
				continue
			}
		}
		h.snapshot.SlotPatches[id] = html
	}
	maps.Copy(h.snapshot.SlotMeta, p.SlotMeta)
	h.hasSnap = true
}

// Snapshot returns a copy of the cumulative patch. ok is false before the
// first publish.
func (h *Hub) Snapshot() (p wire.Patch, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasSnap {
		return wire.Patch{}, false
	}
	p = h.snapshot
	p.SlotPatches = maps.Clone(h.snapshot.SlotPatches)
	p.SlotMeta = maps.Clone(h.snapshot.SlotMeta)
	return p, true
}
