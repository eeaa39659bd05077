// Package feedback closes the learning loop: every terminal outcome is
// appended to a line-delimited log, aggregated into rolling stats, and
// periodically mined for patterns and prompt improvements.
package feedback

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
)

// Tracker appends feedback records and keeps an in-memory corpus plus
// rolling aggregates.
type Tracker struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	writer  *bufio.Writer
	records []domain.FeedbackRecord

	byOutcome  map[domain.Outcome]int
	byCategory map[domain.Category]int
	byAction   map[domain.ActionType]int
	byUrgency  map[domain.Urgency]int

	totalConfidence float64
	totalProcessing time.Duration
}

// NewTracker opens (or creates) the feedback log at path and loads the
// existing corpus.
func NewTracker(path string) (*Tracker, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("feedback: create dir: %w", err)
		}
	}

	t := &Tracker{
		path:       path,
		byOutcome:  make(map[domain.Outcome]int),
		byCategory: make(map[domain.Category]int),
		byAction:   make(map[domain.ActionType]int),
		byUrgency:  make(map[domain.Urgency]int),
	}
	if err := t.load(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("feedback: open log: %w", err)
	}
	t.file = f
	t.writer = bufio.NewWriter(f)

	log.Info().Str("path", path).Int("records", len(t.records)).Msg("feedback: log opened")
	return t, nil
}

func (t *Tracker) load() error {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("feedback: read log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec domain.FeedbackRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			log.Warn().Err(err).Msg("feedback: skipping malformed record")
			continue
		}
		t.indexLocked(rec)
	}
	return sc.Err()
}

// Record appends one terminal outcome. The feedback id and timestamp are
// filled in when absent.
func (t *Tracker) Record(rec domain.FeedbackRecord) error {
	if rec.FeedbackID == "" {
		rec.FeedbackID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("feedback: marshal record: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("feedback: append record: %w", err)
	}
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("feedback: flush record: %w", err)
	}
	t.indexLocked(rec)
	return nil
}

func (t *Tracker) indexLocked(rec domain.FeedbackRecord) {
	t.records = append(t.records, rec)
	t.byOutcome[rec.Outcome]++
	t.byCategory[rec.Classification.Category]++
	t.byAction[rec.Decision.Action]++
	t.byUrgency[rec.Classification.Urgency]++
	t.totalConfidence += rec.Classification.Confidence
	t.totalProcessing += rec.ProcessingTime
}

// Corpus returns a copy of all records for pattern derivation.
func (t *Tracker) Corpus() []domain.FeedbackRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.FeedbackRecord(nil), t.records...)
}

// Close flushes and closes the log.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writer != nil {
		if err := t.writer.Flush(); err != nil {
			return err
		}
	}
	if t.file != nil {
		return t.file.Close()
	}
	return nil
}

// Stats aggregates the corpus.
type Stats struct {
	Total             int                       `json:"total"`
	ByOutcome         map[domain.Outcome]int    `json:"by_outcome"`
	ByCategory        map[domain.Category]int   `json:"by_category"`
	ByAction          map[domain.ActionType]int `json:"by_action"`
	ByUrgency         map[domain.Urgency]int    `json:"by_urgency"`
	SuccessRate       float64                   `json:"success_rate"`
	AvgConfidence     float64                   `json:"avg_confidence"`
	AvgProcessingTime time.Duration             `json:"avg_processing_time"`
}

// Stats computes the rolling aggregates.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := len(t.records)
	s := Stats{
		Total:      total,
		ByOutcome:  copyMap(t.byOutcome),
		ByCategory: copyMap(t.byCategory),
		ByAction:   copyMap(t.byAction),
		ByUrgency:  copyMap(t.byUrgency),
	}
	if total == 0 {
		return s
	}
	s.SuccessRate = float64(t.byOutcome[domain.OutcomeSuccess]) / float64(total)
	s.AvgConfidence = t.totalConfidence / float64(total)
	s.AvgProcessingTime = t.totalProcessing / time.Duration(total)
	return s
}

func copyMap[K comparable](m map[K]int) map[K]int {
	out := make(map[K]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
