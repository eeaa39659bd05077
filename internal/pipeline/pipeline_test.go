package pipeline

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/classify"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/decide"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/dispatch"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/feedback"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/ingest"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/patterns"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/payload"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/prompts"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/review"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/snapshot"
)

type stubOracle struct {
	response string
	calls    atomic.Int64
}

func (s *stubOracle) Chat(ctx context.Context, system, user string) (string, error) {
	s.calls.Add(1)
	return s.response, nil
}

type stubExecutor struct {
	name  string
	calls atomic.Int64
}

func (s *stubExecutor) Name() string { return s.name }

func (s *stubExecutor) Execute(ctx context.Context, p payload.Payload) (map[string]string, error) {
	s.calls.Add(1)
	return map[string]string{"ref": "TASK-1"}, nil
}

type fixture struct {
	pipeline *Pipeline
	queue    *ingest.Queue
	reviews  *review.Queue
	tracker  *feedback.Tracker
	executor *stubExecutor
	oracle   *stubOracle
}

func newFixture(t *testing.T, oracleResponse string) *fixture {
	t.Helper()

	oracle := &stubOracle{response: oracleResponse}
	classifier := classify.NewClassifier(classify.ClassifierOptions{
		Oracle:   oracle,
		Cache:    classify.NewCache(100, time.Hour),
		Registry: prompts.NewRegistry(prompts.RegistryOptions{MaxExamples: 10}),
		Patterns: patterns.NewStore(),
	})

	executor := &stubExecutor{name: "tracker"}
	dispatcher := dispatch.NewDispatcher(dispatch.Options{
		Builder:     payload.NewBuilder(payload.Config{DefaultChannel: "#ops"}),
		BaseBackoff: time.Millisecond,
	})
	dispatcher.Register(domain.PlatformTaskTracker, executor, 0)
	dispatcher.Register(domain.PlatformChat, executor, 0)

	tracker, err := feedback.NewTracker(filepath.Join(t.TempDir(), "feedback.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { tracker.Close() })

	registry := prompts.NewRegistry(prompts.RegistryOptions{MaxExamples: 10})
	queue := ingest.NewQueue(ingest.Options{Capacity: 100, RateLimitN: 100})
	aggregator := snapshot.NewAggregator(snapshot.Options{CacheTTL: time.Nanosecond})

	p := New(Options{
		Queue:      queue,
		Classifier: classifier,
		Engine:     decide.NewEngine(decide.Options{}),
		Dispatcher: dispatcher,
		Tracker:    tracker,
		Registry:   registry,
		Aggregator: aggregator,
	})
	reviews := review.NewQueue(review.Options{Listener: p.OnReviewResolved})
	p.SetReviews(reviews)

	return &fixture{pipeline: p, queue: queue, reviews: reviews,
		tracker: tracker, executor: executor, oracle: oracle}
}

const confidentIncident = `{"urgency":"critical","importance":"high","category":"incident",` +
	`"confidence":0.95,"reasoning":"production outage"}`

const unsureQuestion = `{"urgency":"medium","importance":"medium","category":"question",` +
	`"confidence":0.40,"reasoning":"unclear request"}`

func testSignal(subject string) domain.Signal {
	return domain.Signal{
		ID:        "sig-1",
		Source:    domain.SourceEmail,
		Subject:   subject,
		Body:      "All writes are failing on the primary database.",
		Sender:    "alerts@x.com",
		Timestamp: time.Now(),
		Priority:  1,
	}
}

func TestProcess_CriticalIncidentDispatchesTask(t *testing.T) {
	f := newFixture(t, confidentIncident)
	f.pipeline.Process(context.Background(), testSignal("URGENT: Production database is down"))

	assert.Equal(t, int64(1), f.executor.calls.Load())

	corpus := f.tracker.Corpus()
	require.Len(t, corpus, 1)
	assert.Equal(t, domain.OutcomeSuccess, corpus[0].Outcome)
	assert.Equal(t, domain.ActionCreateTask, corpus[0].Decision.Action)
	assert.Equal(t, "alerts@x.com", corpus[0].Sender)
	assert.NotEmpty(t, corpus[0].Fingerprint)
}

func TestProcess_LowConfidenceEntersReview(t *testing.T) {
	f := newFixture(t, unsureQuestion)
	f.pipeline.Process(context.Background(), testSignal("Can someone look at this?"))

	assert.Equal(t, int64(0), f.executor.calls.Load())
	pending := f.reviews.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.ActionClarify, pending[0].Decision.Action)

	// No terminal outcome yet.
	assert.Empty(t, f.tracker.Corpus())
}

func TestProcess_ApprovalDispatchesAndRecordsSuccess(t *testing.T) {
	f := newFixture(t, unsureQuestion)
	f.pipeline.Process(context.Background(), testSignal("Can someone look at this?"))

	pending := f.reviews.Pending()
	require.Len(t, pending, 1)
	_, err := f.reviews.Approve(pending[0].ReviewID, "go ahead")
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.executor.calls.Load())
	corpus := f.tracker.Corpus()
	require.Len(t, corpus, 1)
	assert.Equal(t, domain.OutcomeSuccess, corpus[0].Outcome)
}

func TestProcess_RejectionRecordsRejectedOutcome(t *testing.T) {
	f := newFixture(t, unsureQuestion)
	f.pipeline.Process(context.Background(), testSignal("Can someone look at this?"))

	pending := f.reviews.Pending()
	require.NoError(t, f.reviews.Reject(pending[0].ReviewID, "not actionable"))

	assert.Equal(t, int64(0), f.executor.calls.Load())
	corpus := f.tracker.Corpus()
	require.Len(t, corpus, 1)
	assert.Equal(t, domain.OutcomeRejected, corpus[0].Outcome)
	assert.Equal(t, "not actionable", corpus[0].Note)
}

func TestProcess_CancelledContributesNoFeedback(t *testing.T) {
	f := newFixture(t, confidentIncident)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.pipeline.Process(ctx, testSignal("URGENT: Production database is down"))
	assert.Empty(t, f.tracker.Corpus())
}

func TestStart_DrainsSubmittedSignals(t *testing.T) {
	f := newFixture(t, confidentIncident)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.pipeline.Start(ctx, 1)
	require.NoError(t, f.pipeline.Submit(testSignal("URGENT: Production database is down")))

	require.Eventually(t, func() bool {
		return len(f.tracker.Corpus()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	f.pipeline.Wait()
}

func TestProcess_IdenticalFingerprintsShareOracleCall(t *testing.T) {
	f := newFixture(t, confidentIncident)
	sig := testSignal("URGENT: Production database is down")

	f.pipeline.Process(context.Background(), sig)
	sig.ID = "sig-2"
	f.pipeline.Process(context.Background(), sig)

	assert.Equal(t, int64(1), f.oracle.calls.Load())
	assert.Len(t, f.tracker.Corpus(), 2)
}
