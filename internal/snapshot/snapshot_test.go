package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
)

func decision(id string) domain.Decision {
	return domain.Decision{
		DecisionID:     "dec-" + id,
		SignalID:       "sig-" + id,
		Action:         domain.ActionCreateTask,
		TargetPlatform: domain.PlatformTaskTracker,
		Priority:       2,
		Validation:     domain.Validation{RulesApplied: []string{"default_task"}},
	}
}

func TestSnapshot_CombinesSources(t *testing.T) {
	a := NewAggregator(Options{
		Sources: Sources{
			QueueDepth:     func() int { return 7 },
			PendingReviews: func() int { return 2 },
			SuccessRate:    func() float64 { return 0.8 },
			CacheHitRate:   func() float64 { return 0.5 },
			Insights:       func() []string { return []string{"sender pattern for alerts@x.com"} },
		},
	})
	a.RecordDecision(decision("1"))
	a.RecordCompletion(true)
	a.RecordCompletion(false)

	data := a.Snapshot()
	assert.Equal(t, 7, data.QueueDepth)
	assert.Equal(t, 2, data.PendingReviews)
	assert.InDelta(t, 0.8, data.SuccessRate, 1e-9)
	assert.InDelta(t, 0.5, data.CacheHitRate, 1e-9)
	assert.InDelta(t, 0.5, data.ErrorRate, 1e-9)
	assert.InDelta(t, 2.0, data.ThroughputPerMin, 1e-9)
	require.Len(t, data.RecentDecisions, 1)
	assert.Equal(t, "dec-1", data.RecentDecisions[0].DecisionID)
	assert.Equal(t, "default_task", data.RecentDecisions[0].Rule)
	assert.NotEmpty(t, data.Insights)
}

func TestSnapshot_CachedWithinTTL(t *testing.T) {
	calls := 0
	a := NewAggregator(Options{
		CacheTTL: 5 * time.Second,
		Sources:  Sources{QueueDepth: func() int { calls++; return calls }},
	})
	base := time.Now()
	a.now = func() time.Time { return base }

	first := a.Snapshot()
	second := a.Snapshot()
	assert.Equal(t, first.QueueDepth, second.QueueDepth)
	assert.Equal(t, 1, calls)

	a.now = func() time.Time { return base.Add(6 * time.Second) }
	third := a.Snapshot()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, third.QueueDepth)
}

func TestSnapshot_DecisionRingBounded(t *testing.T) {
	a := NewAggregator(Options{RingSize: 3, CacheTTL: time.Nanosecond})
	for i := 0; i < 5; i++ {
		a.RecordDecision(decision(string(rune('a' + i))))
	}
	time.Sleep(time.Millisecond)
	data := a.Snapshot()
	assert.Len(t, data.RecentDecisions, 3)
}

func TestSnapshot_InFlightTracking(t *testing.T) {
	a := NewAggregator(Options{CacheTTL: time.Nanosecond})
	a.StageEnter(StageClassify)
	a.StageEnter(StageClassify)
	a.StageEnter(StageExecute)
	a.StageExit(StageClassify)
	a.StageExit(StagePreprocess) // never entered, stays at zero

	time.Sleep(time.Millisecond)
	data := a.Snapshot()
	assert.Equal(t, 1, data.InFlight[StageClassify])
	assert.Equal(t, 1, data.InFlight[StageExecute])
	assert.Equal(t, 0, data.InFlight[StagePreprocess])
}

func TestSnapshot_ThroughputWindowPrunes(t *testing.T) {
	a := NewAggregator(Options{CacheTTL: time.Nanosecond})
	base := time.Now()
	a.now = func() time.Time { return base }
	a.RecordCompletion(true)
	a.RecordCompletion(true)

	a.now = func() time.Time { return base.Add(2 * time.Minute) }
	data := a.Snapshot()
	assert.Zero(t, data.ThroughputPerMin)
}
