// Package pipeline wires the stages together: signals drain from the
// ingest queue through preprocess, classify, decide, and build into
// either the review queue or the dispatcher, and every terminal outcome
// feeds the learning loop.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/bus"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/classify"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/decide"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/dispatch"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/feedback"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/ingest"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/metrics"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/preprocess"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/prompts"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/review"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/snapshot"
)

// EventSignalReceived is the bus event type carrying an inbound signal.
const EventSignalReceived = "signal.received"

// Pipeline owns the stage wiring and the worker that drains the queue.
type Pipeline struct {
	queue      *ingest.Queue
	classifier *classify.Classifier
	engine     *decide.Engine
	dispatcher *dispatch.Dispatcher
	reviews    *review.Queue
	tracker    *feedback.Tracker
	registry   *prompts.Registry
	aggregator *snapshot.Aggregator
	metrics    *metrics.Metrics // optional

	// signal context retained for review resolutions that arrive after
	// the originating pipeline pass finished
	mu      sync.Mutex
	pending map[string]pendingSignal

	wg sync.WaitGroup
}

type pendingSignal struct {
	signal         domain.Signal
	pre            preprocess.Result
	classification domain.Classification
	enqueuedAt     time.Time
	templateVer    int
}

// Options wires a Pipeline.
type Options struct {
	Queue      *ingest.Queue
	Classifier *classify.Classifier
	Engine     *decide.Engine
	Dispatcher *dispatch.Dispatcher
	Reviews    *review.Queue
	Tracker    *feedback.Tracker
	Registry   *prompts.Registry
	Aggregator *snapshot.Aggregator
	Metrics    *metrics.Metrics // optional
}

// New builds the pipeline. The review queue's listener must be set to
// the pipeline's OnReviewResolved before Start.
func New(opts Options) *Pipeline {
	return &Pipeline{
		queue:      opts.Queue,
		classifier: opts.Classifier,
		engine:     opts.Engine,
		dispatcher: opts.Dispatcher,
		reviews:    opts.Reviews,
		tracker:    opts.Tracker,
		registry:   opts.Registry,
		aggregator: opts.Aggregator,
		metrics:    opts.Metrics,
		pending:    make(map[string]pendingSignal),
	}
}

// SetReviews installs the review queue. The queue's listener must be
// this pipeline's OnReviewResolved, so the two are constructed in
// sequence and tied together here.
func (p *Pipeline) SetReviews(q *review.Queue) { p.reviews = q }

// Submit admits one signal at ingress. Rate-limit and overflow errors
// propagate to the caller.
func (p *Pipeline) Submit(sig domain.Signal) error {
	err := p.queue.Enqueue(sig)
	if p.metrics != nil {
		switch {
		case err == nil:
			p.metrics.SignalsIngested.WithLabelValues(string(sig.Source)).Inc()
		case errors.Is(err, ingest.ErrRateLimited):
			p.metrics.SignalsRateLimited.Inc()
		case errors.Is(err, ingest.ErrDropped):
			p.metrics.SignalsDropped.Inc()
		}
	}
	return err
}

// AttachBus subscribes the pipeline to inbound signal events.
func (p *Pipeline) AttachBus(b *bus.Bus) *bus.Subscription {
	return b.Subscribe(EventSignalReceived, func(e bus.Event) error {
		sig, ok := e.Data.(domain.Signal)
		if !ok {
			log.Warn().Str("type", e.Type).Msg("pipeline: event payload is not a signal")
			return nil
		}
		return p.Submit(sig)
	})
}

// Start launches n workers draining the queue until ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				sig, err := p.queue.Dequeue(ctx)
				if err != nil {
					return
				}
				p.Process(ctx, sig)
			}
		}()
	}
}

// Wait blocks until all workers have stopped.
func (p *Pipeline) Wait() { p.wg.Wait() }

// Process runs one signal through the full stage sequence. Cancelled
// work contributes no feedback record.
func (p *Pipeline) Process(ctx context.Context, sig domain.Signal) {
	start := time.Now()

	p.aggregator.StageEnter(snapshot.StagePreprocess)
	pre := preprocess.Run(sig)
	p.aggregator.StageExit(snapshot.StagePreprocess)
	if ctx.Err() != nil {
		return
	}

	p.aggregator.StageEnter(snapshot.StageClassify)
	res := p.classifier.Classify(ctx, pre)
	p.aggregator.StageExit(snapshot.StageClassify)
	if ctx.Err() != nil {
		return
	}

	p.aggregator.StageEnter(snapshot.StageDecide)
	decision := p.engine.Decide(ctx, sig, res.Classification)
	p.aggregator.StageExit(snapshot.StageDecide)
	p.aggregator.RecordDecision(decision)
	if p.metrics != nil && len(decision.Validation.RulesApplied) > 0 {
		p.metrics.DecisionsByRule.WithLabelValues(decision.Validation.RulesApplied[0]).Inc()
	}
	if ctx.Err() != nil {
		return
	}

	if decision.RequiresApproval {
		p.mu.Lock()
		p.pending[decision.DecisionID] = pendingSignal{
			signal:         sig,
			pre:            pre,
			classification: res.Classification,
			enqueuedAt:     start,
			templateVer:    res.TemplateVersion,
		}
		p.mu.Unlock()

		p.aggregator.StageEnter(snapshot.StageReview)
		p.reviews.Enqueue(decision, res.Classification.Urgency, decision.Reasoning)
		return
	}

	p.execute(ctx, sig, pre, res.Classification, decision, res.TemplateVersion, start)
}

func (p *Pipeline) execute(ctx context.Context, sig domain.Signal, pre preprocess.Result,
	classification domain.Classification, decision domain.Decision, templateVer int, start time.Time) {

	p.aggregator.StageEnter(snapshot.StageExecute)
	dispatchStart := time.Now()
	result := p.dispatcher.Dispatch(ctx, sig, decision)
	p.aggregator.StageExit(snapshot.StageExecute)
	if p.metrics != nil {
		platform := string(decision.TargetPlatform)
		outcome := "failure"
		switch {
		case result.Skipped:
			outcome = "skipped"
		case result.Success:
			outcome = "success"
		}
		p.metrics.DispatchOutcomes.WithLabelValues(platform, outcome).Inc()
		p.metrics.DispatchLatency.WithLabelValues(platform).
			Observe(time.Since(dispatchStart).Seconds())
		if result.Attempts > 1 {
			p.metrics.DispatchRetries.Add(float64(result.Attempts - 1))
		}
	}
	if ctx.Err() != nil {
		return
	}

	outcome := domain.OutcomeFailure
	if result.Success {
		outcome = domain.OutcomeSuccess
	}
	p.record(sig, pre, classification, decision, outcome, templateVer, time.Since(start), "")
	p.aggregator.RecordCompletion(result.Success)
}

// OnReviewResolved is the review queue's listener: approved items go to
// the dispatcher, everything else records a rejected outcome.
func (p *Pipeline) OnReviewResolved(r review.Resolution) {
	p.aggregator.StageExit(snapshot.StageReview)
	if p.metrics != nil {
		p.metrics.ReviewResolutions.WithLabelValues(string(r.Item.Status)).Inc()
	}

	p.mu.Lock()
	pend, ok := p.pending[r.Item.Decision.DecisionID]
	delete(p.pending, r.Item.Decision.DecisionID)
	p.mu.Unlock()
	if !ok {
		log.Warn().Str("decision_id", r.Item.Decision.DecisionID).
			Msg("pipeline: resolution for unknown decision")
		return
	}

	switch r.Item.Status {
	case domain.ReviewApproved:
		decision := r.Item.Decision
		decision.RequiresApproval = false
		p.execute(context.Background(), pend.signal, pend.pre, pend.classification,
			decision, pend.templateVer, pend.enqueuedAt)
	default:
		p.record(pend.signal, pend.pre, pend.classification, r.Item.Decision,
			domain.OutcomeRejected, pend.templateVer, time.Since(pend.enqueuedAt), r.Item.Note)
		p.aggregator.RecordCompletion(false)
	}
}

func (p *Pipeline) record(sig domain.Signal, pre preprocess.Result,
	classification domain.Classification, decision domain.Decision, outcome domain.Outcome,
	templateVer int, processing time.Duration, note string) {

	rec := domain.FeedbackRecord{
		Fingerprint:     pre.Fingerprint,
		Source:          sig.Source,
		Sender:          sig.Sender,
		Subject:         sig.Subject,
		Keywords:        pre.Keywords,
		Classification:  classification,
		Decision:        decision,
		Outcome:         outcome,
		Note:            note,
		ProcessingTime:  processing,
		ConfidenceScore: decision.Confidence,
	}
	if err := p.tracker.Record(rec); err != nil {
		log.Error().Err(err).Str("signal_id", sig.ID).Msg("pipeline: feedback record failed")
	}
	if p.metrics != nil {
		p.metrics.FeedbackRecords.WithLabelValues(string(outcome)).Inc()
		p.metrics.PipelineLatency.Observe(processing.Seconds())
	}

	if templateVer != 0 {
		p.registry.RecordEvaluation(templateVer, outcome == domain.OutcomeSuccess,
			decision.Confidence, processing)
	}
}
