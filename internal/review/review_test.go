package review

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
)

func decision(id string) domain.Decision {
	return domain.Decision{
		DecisionID:       "dec-" + id,
		SignalID:         "sig-" + id,
		Action:           domain.ActionCreateTask,
		TargetPlatform:   domain.PlatformTaskTracker,
		Priority:         2,
		RequiresApproval: true,
	}
}

func TestQueue_ApproveClearsApprovalFlag(t *testing.T) {
	q := NewQueue(Options{})
	item := q.Enqueue(decision("1"), domain.UrgencyHigh, "low_confidence")

	d, err := q.Approve(item.ReviewID, "looks right")
	require.NoError(t, err)
	assert.False(t, d.RequiresApproval)

	got, err := q.Get(item.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewApproved, got.Status)
	assert.Equal(t, "looks right", got.Note)
}

func TestQueue_RejectIsTerminal(t *testing.T) {
	q := NewQueue(Options{})
	item := q.Enqueue(decision("1"), domain.UrgencyMedium, "financial_document")

	require.NoError(t, q.Reject(item.ReviewID, "wrong folder"))

	// Conflicting transition after a terminal state errors.
	_, err := q.Approve(item.ReviewID, "")
	assert.Error(t, err)

	// Repeating the same terminal state is idempotent.
	assert.NoError(t, q.Reject(item.ReviewID, "again"))
}

func TestQueue_PendingSortedByQueueTime(t *testing.T) {
	q := NewQueue(Options{})
	base := time.Now()
	times := []time.Time{base.Add(2 * time.Second), base, base.Add(time.Second)}
	i := 0
	q.now = func() time.Time { t := times[i]; i++; return t }

	q.Enqueue(decision("a"), domain.UrgencyLow, "r")
	q.Enqueue(decision("b"), domain.UrgencyLow, "r")
	q.Enqueue(decision("c"), domain.UrgencyLow, "r")

	pending := q.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, "sig-b", pending[0].SignalID)
	assert.Equal(t, "sig-c", pending[1].SignalID)
	assert.Equal(t, "sig-a", pending[2].SignalID)
}

func TestQueue_ExpireDueRejectsByDefault(t *testing.T) {
	var mu sync.Mutex
	var resolutions []Resolution
	q := NewQueue(Options{
		TTL: time.Hour,
		Listener: func(r Resolution) {
			mu.Lock()
			resolutions = append(resolutions, r)
			mu.Unlock()
		},
	})
	base := time.Now()
	q.now = func() time.Time { return base }
	item := q.Enqueue(decision("1"), domain.UrgencyMedium, "r")

	q.now = func() time.Time { return base.Add(time.Hour + time.Second) }
	assert.Equal(t, 1, q.ExpireDue())

	got, err := q.Get(item.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewTimedOut, got.Status)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, resolutions, 1)
	assert.True(t, resolutions[0].Expired)
	assert.Equal(t, domain.ReviewTimedOut, resolutions[0].Item.Status)
}

func TestQueue_ExpireDueCanAutoApprove(t *testing.T) {
	q := NewQueue(Options{TTL: time.Hour, Policy: TimeoutApprove})
	base := time.Now()
	q.now = func() time.Time { return base }
	item := q.Enqueue(decision("1"), domain.UrgencyMedium, "r")

	q.now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.Equal(t, 1, q.ExpireDue())

	got, err := q.Get(item.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewApproved, got.Status)
}

func TestQueue_ExpireDueSkipsResolvedAndFresh(t *testing.T) {
	q := NewQueue(Options{TTL: time.Hour})
	base := time.Now()
	q.now = func() time.Time { return base }
	resolved := q.Enqueue(decision("1"), domain.UrgencyLow, "r")
	fresh := q.Enqueue(decision("2"), domain.UrgencyLow, "r")
	require.NoError(t, q.Reject(resolved.ReviewID, ""))

	q.now = func() time.Time { return base.Add(30 * time.Minute) }
	assert.Equal(t, 0, q.ExpireDue())

	got, _ := q.Get(fresh.ReviewID)
	assert.Equal(t, domain.ReviewPending, got.Status)
}

func TestQueue_GetUnknownID(t *testing.T) {
	q := NewQueue(Options{})
	_, err := q.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = q.Approve("missing", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueue_Stats(t *testing.T) {
	q := NewQueue(Options{})
	a := q.Enqueue(decision("1"), domain.UrgencyLow, "r")
	q.Enqueue(decision("2"), domain.UrgencyLow, "r")
	require.NoError(t, q.Reject(a.ReviewID, ""))

	stats := q.Stats()
	assert.Equal(t, int64(2), stats.Enqueued)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, int64(1), stats.Rejected)
}
