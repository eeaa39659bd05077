// Package ingest bounds signal intake with a priority queue and a
// rolling-window rate limit. Overflow drops the lowest-priority queued
// signal to make room; a newcomer that is itself lowest priority is the
// one dropped.
package ingest

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
)

var (
	// ErrRateLimited is returned when the rolling window is exhausted.
	// The caller may re-submit; the core does not retry.
	ErrRateLimited = errors.New("ingest: rate limited")
	// ErrDropped is returned when the queue is full and the new signal is
	// the lowest priority present.
	ErrDropped = errors.New("ingest: queue full, signal dropped")
	// ErrClosed is returned by operations on a closed queue.
	ErrClosed = errors.New("ingest: queue closed")
)

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Enqueued    uint64 `json:"enqueued"`
	Dequeued    uint64 `json:"dequeued"`
	RateLimited uint64 `json:"rate_limited"`
	Dropped     uint64 `json:"dropped"` // includes evictions to make room
	Depth       int    `json:"depth"`
}

type item struct {
	signal  domain.Signal
	seq     uint64 // arrival order, breaks priority ties stably
	heapIdx int
}

// signalHeap orders by priority ascending (1 = highest), then arrival.
type signalHeap []*item

func (h signalHeap) Len() int { return len(h) }
func (h signalHeap) Less(i, j int) bool {
	if h[i].signal.Priority != h[j].signal.Priority {
		return h[i].signal.Priority < h[j].signal.Priority
	}
	return h[i].seq < h[j].seq
}
func (h signalHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}
func (h *signalHeap) Push(x any) {
	it := x.(*item)
	it.heapIdx = len(*h)
	*h = append(*h, it)
}
func (h *signalHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is the bounded, rate-limited ingress queue. Dequeue blocks until
// a signal is available or the context is cancelled.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	heap   signalHeap
	closed bool

	capacity int
	limitN   int
	window   time.Duration
	admits   []time.Time // timestamps of admitted signals inside the window

	seq         uint64
	enqueued    uint64
	dequeued    uint64
	rateLimited uint64
	dropped     uint64

	now func() time.Time
}

// Options bounds the queue.
type Options struct {
	Capacity        int
	RateLimitN      int
	RateLimitWindow time.Duration
}

// NewQueue creates an ingress queue.
func NewQueue(opts Options) *Queue {
	if opts.Capacity <= 0 {
		opts.Capacity = 1000
	}
	if opts.RateLimitN <= 0 {
		opts.RateLimitN = 10
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = 60 * time.Second
	}
	q := &Queue{
		capacity: opts.Capacity,
		limitN:   opts.RateLimitN,
		window:   opts.RateLimitWindow,
		now:      time.Now,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// pruneWindow drops admit timestamps older than the rolling window.
// The window rolls over exactly at its duration.
func (q *Queue) pruneWindow(now time.Time) {
	cutoff := now.Add(-q.window)
	i := 0
	for i < len(q.admits) && !q.admits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		q.admits = append(q.admits[:0], q.admits[i:]...)
	}
}

// Enqueue admits a signal. At capacity it evicts the lowest-priority
// queued signal, unless the newcomer is itself lowest, in which case the
// newcomer is dropped.
func (q *Queue) Enqueue(sig domain.Signal) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	now := q.now()
	q.pruneWindow(now)
	if len(q.admits) >= q.limitN {
		q.rateLimited++
		return ErrRateLimited
	}

	if len(q.heap) >= q.capacity {
		victim := q.lowestLocked()
		if victim == nil || sig.Priority >= victim.signal.Priority {
			q.dropped++
			log.Debug().
				Str("signal_id", sig.ID).
				Int("priority", sig.Priority).
				Msg("ingest: queue full, newcomer dropped")
			return ErrDropped
		}
		heap.Remove(&q.heap, victim.heapIdx)
		q.dropped++
		log.Debug().
			Str("signal_id", victim.signal.ID).
			Int("priority", victim.signal.Priority).
			Msg("ingest: evicted lowest-priority signal to make room")
	}

	q.seq++
	heap.Push(&q.heap, &item{signal: sig, seq: q.seq})
	q.admits = append(q.admits, now)
	q.enqueued++
	q.cond.Signal()
	return nil
}

// lowestLocked returns the queued item with the worst (largest) priority,
// breaking ties toward the most recent arrival.
func (q *Queue) lowestLocked() *item {
	var worst *item
	for _, it := range q.heap {
		if worst == nil ||
			it.signal.Priority > worst.signal.Priority ||
			(it.signal.Priority == worst.signal.Priority && it.seq > worst.seq) {
			worst = it
		}
	}
	return worst
}

// Dequeue removes and returns the highest-priority signal, blocking until
// one is available, the context is cancelled, or the queue is closed.
func (q *Queue) Dequeue(ctx context.Context) (domain.Signal, error) {
	// Wake waiters when the context ends.
	stop := context.AfterFunc(ctx, func() { q.cond.Broadcast() })
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.heap) == 0 {
		if q.closed {
			return domain.Signal{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return domain.Signal{}, err
		}
		q.cond.Wait()
	}

	it := heap.Pop(&q.heap).(*item)
	q.dequeued++
	return it.signal, nil
}

// Size returns the number of queued signals.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Clear removes all queued signals.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.heap = q.heap[:0]
}

// Close stops the queue. Blocked Dequeue calls return ErrClosed once
// drained.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Stats returns current queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Enqueued:    q.enqueued,
		Dequeued:    q.dequeued,
		RateLimited: q.rateLimited,
		Dropped:     q.dropped,
		Depth:       len(q.heap),
	}
}
