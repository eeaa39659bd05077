// Package review holds decisions that need a human approval before
// dispatch. Items move pending → approved/rejected/timed_out; a
// background scanner expires items whose deadline has passed.
package review

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
)

// ErrNotFound is returned for an unknown review id.
var ErrNotFound = errors.New("review: item not found")

// TimeoutPolicy decides what happens to an expired pending item.
type TimeoutPolicy string

const (
	TimeoutReject  TimeoutPolicy = "reject"
	TimeoutApprove TimeoutPolicy = "approve"
)

// Resolution is delivered to the listener whenever an item leaves the
// pending state.
type Resolution struct {
	Item    domain.ReviewItem
	Expired bool // resolved by the scanner, not a human
}

// Queue is the pending-approval store plus its timeout scanner.
type Queue struct {
	mu       sync.Mutex
	items    map[string]*domain.ReviewItem
	ttl      time.Duration
	tick     time.Duration
	policy   TimeoutPolicy
	listener func(Resolution)
	now      func() time.Time

	enqueued  int64
	approved  int64
	rejected  int64
	timedOut  int64
	closeOnce sync.Once
	done      chan struct{}
}

// Options configures a Queue.
type Options struct {
	TTL      time.Duration // per-item timeout, default 1h
	Tick     time.Duration // scanner interval, default 60s
	Policy   TimeoutPolicy // default reject
	Listener func(Resolution)
}

// NewQueue creates a queue. Start must be called for timeouts to fire.
func NewQueue(opts Options) *Queue {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Minute
	}
	if opts.Policy == "" {
		opts.Policy = TimeoutReject
	}
	return &Queue{
		items:    make(map[string]*domain.ReviewItem),
		ttl:      opts.TTL,
		tick:     opts.Tick,
		policy:   opts.Policy,
		listener: opts.Listener,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Enqueue registers a decision for approval and returns the item.
func (q *Queue) Enqueue(d domain.Decision, urgency domain.Urgency, reason string) domain.ReviewItem {
	now := q.now()
	item := domain.ReviewItem{
		ReviewID:  uuid.New().String(),
		SignalID:  d.SignalID,
		Decision:  d,
		Reason:    reason,
		QueuedAt:  now,
		TimeoutAt: now.Add(q.ttl),
		Status:    domain.ReviewPending,
		Urgency:   urgency,
	}

	q.mu.Lock()
	q.items[item.ReviewID] = &item
	q.enqueued++
	q.mu.Unlock()

	log.Info().
		Str("review_id", item.ReviewID).
		Str("signal_id", d.SignalID).
		Str("action", string(d.Action)).
		Str("reason", reason).
		Time("timeout_at", item.TimeoutAt).
		Msg("review: item queued")
	return item
}

// Pending lists pending items sorted by queue time ascending.
func (q *Queue) Pending() []domain.ReviewItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.ReviewItem, 0, len(q.items))
	for _, item := range q.items {
		if item.Status == domain.ReviewPending {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.Before(out[j].QueuedAt) })
	return out
}

// Get returns one item by id.
func (q *Queue) Get(id string) (domain.ReviewItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok {
		return domain.ReviewItem{}, ErrNotFound
	}
	return *item, nil
}

// Approve resolves a pending item as approved. The returned decision has
// its approval requirement cleared for the dispatcher. Re-approving an
// already approved item is a no-op returning the same decision.
func (q *Queue) Approve(id, note string) (domain.Decision, error) {
	item, err := q.resolve(id, domain.ReviewApproved, note, false)
	if err != nil {
		return domain.Decision{}, err
	}
	d := item.Decision
	d.RequiresApproval = false
	return d, nil
}

// Reject resolves a pending item as rejected.
func (q *Queue) Reject(id, note string) error {
	_, err := q.resolve(id, domain.ReviewRejected, note, false)
	return err
}

// resolve performs an idempotent transition. A repeat of the same
// terminal state succeeds silently; a conflicting terminal state errors.
func (q *Queue) resolve(id string, status domain.ReviewStatus, note string, expired bool) (domain.ReviewItem, error) {
	q.mu.Lock()
	item, ok := q.items[id]
	if !ok {
		q.mu.Unlock()
		return domain.ReviewItem{}, ErrNotFound
	}
	if item.Status != domain.ReviewPending {
		snapshot := *item
		q.mu.Unlock()
		if snapshot.Status == status {
			return snapshot, nil
		}
		return domain.ReviewItem{}, fmt.Errorf("review: item %s already %s", id, snapshot.Status)
	}

	item.Status = status
	item.Note = note
	switch status {
	case domain.ReviewApproved:
		q.approved++
	case domain.ReviewRejected:
		q.rejected++
	case domain.ReviewTimedOut:
		q.timedOut++
	}
	snapshot := *item
	listener := q.listener
	q.mu.Unlock()

	log.Info().
		Str("review_id", id).
		Str("status", string(status)).
		Bool("expired", expired).
		Msg("review: item resolved")
	if listener != nil {
		listener(Resolution{Item: snapshot, Expired: expired})
	}
	return snapshot, nil
}

// Start runs the timeout scanner until ctx is cancelled or Close is
// called.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(q.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.done:
				return
			case <-ticker.C:
				q.ExpireDue()
			}
		}
	}()
}

// ExpireDue times out every pending item whose deadline has passed and
// returns how many expired. Exposed for the scanner and for tests.
func (q *Queue) ExpireDue() int {
	now := q.now()

	q.mu.Lock()
	var due []string
	for id, item := range q.items {
		if item.Status == domain.ReviewPending && now.After(item.TimeoutAt) {
			due = append(due, id)
		}
	}
	q.mu.Unlock()

	status := domain.ReviewTimedOut
	for _, id := range due {
		q.resolveExpired(id, status)
	}
	return len(due)
}

func (q *Queue) resolveExpired(id string, status domain.ReviewStatus) {
	// Timed-out items follow the configured policy: the listener sees
	// either a timed_out (reject path) or approved resolution.
	if q.policy == TimeoutApprove {
		status = domain.ReviewApproved
	}
	q.resolve(id, status, "expired", true)
}

// Close stops the scanner.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Pending  int   `json:"pending"`
	Enqueued int64 `json:"enqueued"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
	TimedOut int64 `json:"timed_out"`
}

// Stats reports current counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := 0
	for _, item := range q.items {
		if item.Status == domain.ReviewPending {
			pending++
		}
	}
	return Stats{
		Pending:  pending,
		Enqueued: q.enqueued,
		Approved: q.approved,
		Rejected: q.rejected,
		TimedOut: q.timedOut,
	}
}
