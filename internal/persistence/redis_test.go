package persistence

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/patterns"
)

func TestMirrorFeedback(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mirror := NewRedisMirror(client)

	rec := domain.FeedbackRecord{
		FeedbackID:  "fb-1",
		Fingerprint: "fp-1",
		Outcome:     domain.OutcomeSuccess,
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectRPush(feedbackKey, data).SetVal(1)
	mock.ExpectLTrim(feedbackKey, -feedbackCap, -1).SetVal("OK")

	require.NoError(t, mirror.MirrorFeedback(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentFeedback(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mirror := NewRedisMirror(client)

	rec := domain.FeedbackRecord{FeedbackID: "fb-1", Outcome: domain.OutcomeSuccess}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectLRange(feedbackKey, -10, -1).SetVal([]string{string(data), "not json"})

	got, err := mirror.RecentFeedback(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fb-1", got[0].FeedbackID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorPatternsRoundTrip(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mirror := NewRedisMirror(client)

	set := patterns.EmptySet()
	set.SignalsAnalyzed = 42
	data, err := json.Marshal(set)
	require.NoError(t, err)

	mock.ExpectSet(patternsKey, data, 0).SetVal("OK")
	require.NoError(t, mirror.MirrorPatterns(context.Background(), set))

	mock.ExpectGet(patternsKey).SetVal(string(data))
	got, found, err := mirror.LoadPatterns(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 42, got.SignalsAnalyzed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadPatternsMissingKey(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mirror := NewRedisMirror(client)

	mock.ExpectGet(patternsKey).RedisNil()
	_, found, err := mirror.LoadPatterns(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}
