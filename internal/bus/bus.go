// Package bus implements the in-process event broker that routes hub
// events from signal sources to subscribers with priority dispatch,
// bounded per-type history, and reconnect semantics for subscribers that
// wrap external transports.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
)

// Priority orders event dispatch. High drains strictly before normal,
// normal before low.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Event is one routed hub event.
type Event struct {
	Type      string            `json:"type"`
	Source    domain.Source     `json:"source"`
	Priority  Priority          `json:"priority"`
	Data      any               `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	EmittedAt time.Time         `json:"emitted_at"`
	Seq       uint64            `json:"seq"`
}

// Handler consumes one event. Returning an error does not affect other
// subscribers; the bus logs it and moves on.
type Handler func(Event) error

// TransportError marks a subscriber failure as transport-fatal, which
// triggers the bus's reconnect path for that subscriber.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// subscription is one registered handler.
type subscription struct {
	id        uint64
	eventType string
	handler   Handler
	reconnect func(context.Context) error
}

// Subscription is the unsubscribe handle returned by Subscribe.
type Subscription struct {
	bus *Bus
	sub *subscription
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s.sub)
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscription)

// WithReconnect registers the transport re-establishment callback invoked
// with exponential backoff after a TransportError from the handler.
func WithReconnect(fn func(context.Context) error) SubscribeOption {
	return func(s *subscription) { s.reconnect = fn }
}

// Stats is a point-in-time snapshot of broker counters.
type Stats struct {
	Emitted           map[string]uint64 `json:"emitted"` // by priority name
	Delivered         uint64            `json:"delivered"`
	SubscriberErrors  uint64            `json:"subscriber_errors"`
	Reconnects        uint64            `json:"reconnects"`
	ReconnectFailures uint64            `json:"reconnect_failures"`
	QueueDepth        int               `json:"queue_depth"`
	Subscribers       int               `json:"subscribers"`
}

// Bus is the in-process broker. One background worker drains the three
// priority FIFOs; within a priority FIFO order is preserved.
type Bus struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queues  [3][]Event
	closed  bool
	stopped chan struct{}

	subMu   sync.RWMutex
	subs    map[string][]*subscription
	history map[string][]Event

	historySize          int
	maxReconnectAttempts int
	reconnectBackoff     time.Duration

	seq               atomic.Uint64
	subID             atomic.Uint64
	delivered         atomic.Uint64
	subscriberErrors  atomic.Uint64
	reconnects        atomic.Uint64
	reconnectFailures atomic.Uint64
	emitted           [3]atomic.Uint64
}

// Options bounds the broker.
type Options struct {
	HistorySize          int
	MaxReconnectAttempts int
	ReconnectBaseBackoff time.Duration
}

// New creates a broker and starts its dispatch worker. Call Close to
// stop it.
func New(opts Options) *Bus {
	if opts.HistorySize <= 0 {
		opts.HistorySize = 100
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 5
	}
	if opts.ReconnectBaseBackoff <= 0 {
		opts.ReconnectBaseBackoff = time.Second
	}

	b := &Bus{
		subs:                 make(map[string][]*subscription),
		history:              make(map[string][]Event),
		historySize:          opts.HistorySize,
		maxReconnectAttempts: opts.MaxReconnectAttempts,
		reconnectBackoff:     opts.ReconnectBaseBackoff,
		stopped:              make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	go b.run()
	return b
}

// Subscribe registers a handler for an event type. Handlers for one event
// are invoked sequentially in registration order.
func (b *Bus) Subscribe(eventType string, h Handler, opts ...SubscribeOption) *Subscription {
	sub := &subscription{
		id:        b.subID.Add(1),
		eventType: eventType,
		handler:   h,
	}
	for _, opt := range opts {
		opt(sub)
	}

	b.subMu.Lock()
	b.subs[eventType] = append(b.subs[eventType], sub)
	b.subMu.Unlock()

	return &Subscription{bus: b, sub: sub}
}

func (b *Bus) remove(sub *subscription) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	list := b.subs[sub.eventType]
	for i, s := range list {
		if s.id == sub.id {
			b.subs[sub.eventType] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Emit accepts an event into the priority FIFOs. Accepted events are
// never dropped due to subscriber failure; dispatch may be deferred.
func (b *Bus) Emit(e Event) error {
	if e.EmittedAt.IsZero() {
		e.EmittedAt = time.Now()
	}
	e.Seq = b.seq.Add(1)

	if e.Priority < PriorityHigh || e.Priority > PriorityLow {
		e.Priority = PriorityNormal
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("bus: emit on closed bus")
	}
	b.queues[e.Priority] = append(b.queues[e.Priority], e)
	b.mu.Unlock()

	b.emitted[e.Priority].Add(1)
	b.recordHistory(e)
	b.cond.Signal()
	return nil
}

func (b *Bus) recordHistory(e Event) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	h := append(b.history[e.Type], e)
	if len(h) > b.historySize {
		h = h[len(h)-b.historySize:]
	}
	b.history[e.Type] = h
}

// History returns a copy of the retained events for a type, oldest first.
func (b *Bus) History(eventType string) []Event {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return append([]Event(nil), b.history[eventType]...)
}

// run is the single dispatch worker. It drains high before normal before
// low; within one priority, FIFO order holds.
func (b *Bus) run() {
	defer close(b.stopped)
	for {
		b.mu.Lock()
		for !b.closed && b.depthLocked() == 0 {
			b.cond.Wait()
		}
		if b.closed && b.depthLocked() == 0 {
			b.mu.Unlock()
			return
		}
		var ev Event
		for p := PriorityHigh; p <= PriorityLow; p++ {
			if len(b.queues[p]) > 0 {
				ev = b.queues[p][0]
				b.queues[p] = b.queues[p][1:]
				break
			}
		}
		b.mu.Unlock()

		b.dispatch(ev)
	}
}

func (b *Bus) depthLocked() int {
	return len(b.queues[0]) + len(b.queues[1]) + len(b.queues[2])
}

// dispatch invokes subscribers sequentially. Errors are logged and never
// abort sibling deliveries; delivery itself is not retried.
func (b *Bus) dispatch(e Event) {
	b.subMu.RLock()
	subs := append([]*subscription(nil), b.subs[e.Type]...)
	b.subMu.RUnlock()

	for _, sub := range subs {
		if err := sub.handler(e); err != nil {
			b.subscriberErrors.Add(1)
			log.Warn().
				Str("event_type", e.Type).
				Uint64("seq", e.Seq).
				Uint64("subscriber", sub.id).
				Err(err).
				Msg("bus: subscriber error")

			if IsTransportError(err) && sub.reconnect != nil {
				b.attemptReconnect(sub)
			}
			continue
		}
		b.delivered.Add(1)
	}
}

// attemptReconnect re-establishes a subscriber transport with exponential
// backoff, up to the configured attempt cap. Success resets the failure
// counter for that subscriber.
func (b *Bus) attemptReconnect(sub *subscription) {
	backoff := b.reconnectBackoff
	for attempt := 1; attempt <= b.maxReconnectAttempts; attempt++ {
		b.reconnects.Add(1)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := sub.reconnect(ctx)
		cancel()

		if err == nil {
			log.Info().
				Uint64("subscriber", sub.id).
				Int("attempt", attempt).
				Msg("bus: subscriber transport reconnected")
			return
		}

		log.Warn().
			Uint64("subscriber", sub.id).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Err(err).
			Msg("bus: reconnect failed")

		time.Sleep(backoff)
		backoff *= 2
	}
	b.reconnectFailures.Add(1)
}

// Depth returns the number of events waiting across all priorities.
func (b *Bus) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.depthLocked()
}

// Stats returns current broker counters.
func (b *Bus) Stats() Stats {
	b.subMu.RLock()
	subscribers := 0
	for _, list := range b.subs {
		subscribers += len(list)
	}
	b.subMu.RUnlock()

	return Stats{
		Emitted: map[string]uint64{
			"high":   b.emitted[PriorityHigh].Load(),
			"normal": b.emitted[PriorityNormal].Load(),
			"low":    b.emitted[PriorityLow].Load(),
		},
		Delivered:         b.delivered.Load(),
		SubscriberErrors:  b.subscriberErrors.Load(),
		Reconnects:        b.reconnects.Load(),
		ReconnectFailures: b.reconnectFailures.Load(),
		QueueDepth:        b.Depth(),
		Subscribers:       subscribers,
	}
}

// Close stops accepting events, drains what was already accepted, and
// waits for the worker to finish.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.stopped
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.cond.Signal()
	<-b.stopped
}
