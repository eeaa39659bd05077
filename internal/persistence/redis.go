// Package persistence mirrors learning state into Redis so external
// consumers (dashboards) can read it without file access. The file
// layout stays the source of truth; mirror failures are logged, never
// fatal.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/patterns"
)

const (
	feedbackKey = "opscenter:feedback"
	patternsKey = "opscenter:patterns"

	// feedbackCap bounds the mirrored feedback list.
	feedbackCap = 1000
)

// RedisMirror writes feedback records and pattern snapshots to Redis.
type RedisMirror struct {
	client redis.Cmdable
}

// NewRedisMirror wraps an existing client.
func NewRedisMirror(client redis.Cmdable) *RedisMirror {
	return &RedisMirror{client: client}
}

// Connect dials Redis at addr and pings it.
func Connect(ctx context.Context, addr string, db int) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("persistence: ping redis: %w", err)
	}
	log.Info().Str("addr", addr).Msg("persistence: redis mirror connected")
	return &RedisMirror{client: client}, nil
}

// MirrorFeedback appends one record to the bounded mirror list.
func (m *RedisMirror) MirrorFeedback(ctx context.Context, rec domain.FeedbackRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("persistence: marshal feedback: %w", err)
	}
	if err := m.client.RPush(ctx, feedbackKey, data).Err(); err != nil {
		return fmt.Errorf("persistence: push feedback: %w", err)
	}
	if err := m.client.LTrim(ctx, feedbackKey, -feedbackCap, -1).Err(); err != nil {
		return fmt.Errorf("persistence: trim feedback: %w", err)
	}
	return nil
}

// RecentFeedback returns up to n most recent mirrored records.
func (m *RedisMirror) RecentFeedback(ctx context.Context, n int) ([]domain.FeedbackRecord, error) {
	if n <= 0 {
		n = feedbackCap
	}
	raw, err := m.client.LRange(ctx, feedbackKey, int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("persistence: read feedback: %w", err)
	}
	out := make([]domain.FeedbackRecord, 0, len(raw))
	for _, line := range raw {
		var rec domain.FeedbackRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			log.Warn().Err(err).Msg("persistence: skipping malformed mirrored record")
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// MirrorPatterns replaces the mirrored pattern snapshot.
func (m *RedisMirror) MirrorPatterns(ctx context.Context, set patterns.Set) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("persistence: marshal patterns: %w", err)
	}
	if err := m.client.Set(ctx, patternsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("persistence: write patterns: %w", err)
	}
	return nil
}

// LoadPatterns reads the mirrored snapshot. A missing key reports
// found=false with no error.
func (m *RedisMirror) LoadPatterns(ctx context.Context) (patterns.Set, bool, error) {
	data, err := m.client.Get(ctx, patternsKey).Bytes()
	if err == redis.Nil {
		return patterns.EmptySet(), false, nil
	}
	if err != nil {
		return patterns.EmptySet(), false, fmt.Errorf("persistence: read patterns: %w", err)
	}
	var set patterns.Set
	if err := json.Unmarshal(data, &set); err != nil {
		return patterns.EmptySet(), false, fmt.Errorf("persistence: parse patterns: %w", err)
	}
	return set, true, nil
}
