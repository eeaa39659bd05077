// Package snapshot aggregates pipeline state into a read-only dashboard
// feed. Snapshots are cached briefly so external pollers cannot hammer
// the live components.
package snapshot

import (
	"container/ring"
	"sync"
	"time"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
)

// Stage names for the in-flight breakdown. Payload building is part of
// the execute stage; it has no stage of its own.
const (
	StagePreprocess = "preprocess"
	StageClassify   = "classify"
	StageDecide     = "decide"
	StageReview     = "review"
	StageExecute    = "execute"
)

// DashboardData is the externally consumed snapshot. Consumers never
// mutate it.
type DashboardData struct {
	GeneratedAt      time.Time         `json:"generated_at"`
	Uptime           time.Duration     `json:"uptime"`
	QueueDepth       int               `json:"queue_depth"`
	BusDepth         int               `json:"bus_depth"`
	InFlight         map[string]int    `json:"in_flight"`
	RecentDecisions  []DecisionSummary `json:"recent_decisions"`
	PendingReviews   int               `json:"pending_reviews"`
	SuccessRate      float64           `json:"success_rate"`
	CacheHitRate     float64           `json:"cache_hit_rate"`
	ThroughputPerMin float64           `json:"throughput_per_min"`
	ErrorRate        float64           `json:"error_rate"`
	Insights         []string          `json:"insights,omitempty"`
}

// DecisionSummary is the bounded-ring entry for one decision.
type DecisionSummary struct {
	DecisionID string            `json:"decision_id"`
	SignalID   string            `json:"signal_id"`
	Action     domain.ActionType `json:"action"`
	Platform   domain.Platform   `json:"platform"`
	Priority   int               `json:"priority"`
	Rule       string            `json:"rule,omitempty"`
	DecidedAt  time.Time         `json:"decided_at"`
}

// Sources are the read hooks into the live components. Nil hooks
// contribute zero values.
type Sources struct {
	QueueDepth     func() int
	BusDepth       func() int
	PendingReviews func() int
	SuccessRate    func() float64
	CacheHitRate   func() float64
	Insights       func() []string
}

// Aggregator collects pipeline activity and serves cached snapshots.
type Aggregator struct {
	mu        sync.Mutex
	sources   Sources
	startedAt time.Time
	cacheTTL  time.Duration
	ringSize  int
	now       func() time.Time

	decisions *ring.Ring
	count     int
	inFlight  map[string]int

	processed []time.Time // completion timestamps within the last minute
	completed int64
	failed    int64

	cached   DashboardData
	cachedAt time.Time
}

// Options configures an Aggregator.
type Options struct {
	Sources  Sources
	CacheTTL time.Duration // default 5s
	RingSize int           // default 100
}

// NewAggregator creates an aggregator.
func NewAggregator(opts Options) *Aggregator {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Second
	}
	if opts.RingSize <= 0 {
		opts.RingSize = 100
	}
	return &Aggregator{
		sources:   opts.Sources,
		startedAt: time.Now(),
		cacheTTL:  opts.CacheTTL,
		ringSize:  opts.RingSize,
		now:       time.Now,
		decisions: ring.New(opts.RingSize),
		inFlight:  make(map[string]int),
	}
}

// SetSources installs the read hooks. Call before serving snapshots;
// components that come up later than the aggregator register here.
func (a *Aggregator) SetSources(s Sources) {
	a.mu.Lock()
	a.sources = s
	a.mu.Unlock()
}

// StageEnter marks a signal entering a pipeline stage.
func (a *Aggregator) StageEnter(stage string) {
	a.mu.Lock()
	a.inFlight[stage]++
	a.mu.Unlock()
}

// StageExit marks a signal leaving a pipeline stage.
func (a *Aggregator) StageExit(stage string) {
	a.mu.Lock()
	if a.inFlight[stage] > 0 {
		a.inFlight[stage]--
	}
	a.mu.Unlock()
}

// RecordDecision appends to the bounded decision ring.
func (a *Aggregator) RecordDecision(d domain.Decision) {
	rule := ""
	if len(d.Validation.RulesApplied) > 0 {
		rule = d.Validation.RulesApplied[0]
	}
	summary := DecisionSummary{
		DecisionID: d.DecisionID,
		SignalID:   d.SignalID,
		Action:     d.Action,
		Platform:   d.TargetPlatform,
		Priority:   d.Priority,
		Rule:       rule,
		DecidedAt:  a.now(),
	}

	a.mu.Lock()
	a.decisions.Value = summary
	a.decisions = a.decisions.Next()
	if a.count < a.ringSize {
		a.count++
	}
	a.mu.Unlock()
}

// RecordCompletion marks one signal finishing the pipeline.
func (a *Aggregator) RecordCompletion(success bool) {
	now := a.now()
	a.mu.Lock()
	a.completed++
	if !success {
		a.failed++
	}
	a.processed = append(a.processed, now)
	a.pruneLocked(now)
	a.mu.Unlock()
}

func (a *Aggregator) pruneLocked(now time.Time) {
	cutoff := now.Add(-time.Minute)
	keep := a.processed[:0]
	for _, ts := range a.processed {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	a.processed = keep
}

// Snapshot returns the dashboard feed, rebuilt at most once per cache
// TTL.
func (a *Aggregator) Snapshot() DashboardData {
	now := a.now()

	a.mu.Lock()
	if !a.cachedAt.IsZero() && now.Sub(a.cachedAt) < a.cacheTTL {
		cached := a.cached
		a.mu.Unlock()
		return cached
	}

	a.pruneLocked(now)
	inFlight := make(map[string]int, len(a.inFlight))
	for k, v := range a.inFlight {
		inFlight[k] = v
	}

	recent := make([]DecisionSummary, 0, a.count)
	a.decisions.Do(func(v interface{}) {
		if s, ok := v.(DecisionSummary); ok {
			recent = append(recent, s)
		}
	})

	var errorRate float64
	if a.completed > 0 {
		errorRate = float64(a.failed) / float64(a.completed)
	}
	throughput := float64(len(a.processed))
	completedAt := now
	sources := a.sources
	a.mu.Unlock()

	data := DashboardData{
		GeneratedAt:      completedAt,
		Uptime:           completedAt.Sub(a.startedAt),
		InFlight:         inFlight,
		RecentDecisions:  recent,
		ThroughputPerMin: throughput,
		ErrorRate:        errorRate,
	}
	if f := sources.QueueDepth; f != nil {
		data.QueueDepth = f()
	}
	if f := sources.BusDepth; f != nil {
		data.BusDepth = f()
	}
	if f := sources.PendingReviews; f != nil {
		data.PendingReviews = f()
	}
	if f := sources.SuccessRate; f != nil {
		data.SuccessRate = f()
	}
	if f := sources.CacheHitRate; f != nil {
		data.CacheHitRate = f()
	}
	if f := sources.Insights; f != nil {
		data.Insights = f()
	}

	a.mu.Lock()
	a.cached = data
	a.cachedAt = completedAt
	a.mu.Unlock()
	return data
}
