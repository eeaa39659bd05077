package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/metrics"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/review"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/snapshot"
)

func newTestServer(t *testing.T) (*Server, *review.Queue) {
	t.Helper()
	agg := snapshot.NewAggregator(snapshot.Options{})
	reviews := review.NewQueue(review.Options{})
	m := metrics.New()
	return NewServer(Options{
		Aggregator: agg,
		Reviews:    reviews,
		Registry:   m.Registry,
	}), reviews
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSnapshotEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var data snapshot.DashboardData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.False(t, data.GeneratedAt.IsZero())
}

func TestReviewApproveFlow(t *testing.T) {
	s, reviews := newTestServer(t)
	item := reviews.Enqueue(domain.Decision{
		DecisionID:       "dec-1",
		SignalID:         "sig-1",
		Action:           domain.ActionCreateTask,
		RequiresApproval: true,
	}, domain.UrgencyHigh, "low_confidence")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reviews", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []domain.ReviewItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.Len(t, pending, 1)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/reviews/"+item.ReviewID+"/approve?note=ok", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	got, err := reviews.Get(item.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewApproved, got.Status)
	assert.Equal(t, "ok", got.Note)
}

func TestReviewResolveUnknownID(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reviews/nope/reject", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewConflictAfterTerminal(t *testing.T) {
	s, reviews := newTestServer(t)
	item := reviews.Enqueue(domain.Decision{DecisionID: "dec-1"}, domain.UrgencyLow, "r")
	require.NoError(t, reviews.Reject(item.ReviewID, ""))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/reviews/"+item.ReviewID+"/approve", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
