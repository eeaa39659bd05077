package patterns

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
)

func record(sender string, category domain.Category, urgency domain.Urgency,
	action domain.ActionType, outcome domain.Outcome, keywords ...string) domain.FeedbackRecord {
	return domain.FeedbackRecord{
		Fingerprint: "fp",
		Sender:      sender,
		Subject:     "Alert from " + sender,
		Keywords:    keywords,
		Classification: domain.Classification{
			Urgency:    urgency,
			Importance: domain.ImportanceMedium,
			Category:   category,
			Confidence: 0.9,
		},
		Decision:  domain.Decision{Action: action},
		Outcome:   outcome,
		Timestamp: time.Date(2026, 8, 3, 14, 0, 0, 0, time.UTC), // Monday 14:00
	}
}

func TestDerive_SenderPattern(t *testing.T) {
	var records []domain.FeedbackRecord
	for i := 0; i < 12; i++ {
		records = append(records, record("alerts@x.com", domain.CategoryIncident,
			domain.UrgencyHigh, domain.ActionCreateTask, domain.OutcomeSuccess))
	}
	// Below threshold: no pattern.
	for i := 0; i < 3; i++ {
		records = append(records, record("rare@x.com", domain.CategoryRequest,
			domain.UrgencyLow, domain.ActionIgnore, domain.OutcomeSuccess))
	}

	set := Derive(records, Thresholds{})
	require.Contains(t, set.SenderPatterns, "alerts@x.com")
	assert.NotContains(t, set.SenderPatterns, "rare@x.com")

	sp := set.SenderPatterns["alerts@x.com"]
	assert.Equal(t, domain.CategoryIncident, sp.DominantCategory)
	assert.Equal(t, domain.ActionCreateTask, sp.PreferredAction)
	assert.InDelta(t, 3.0, sp.AvgUrgency, 1e-9) // high == 3
	assert.Equal(t, 1.0, sp.SuccessRate)
	assert.Equal(t, 12, sp.Support)
}

func TestDerive_UrgencyKeyword(t *testing.T) {
	var records []domain.FeedbackRecord
	// Keyword "outage" appears only in critical signals, against a calm corpus.
	for i := 0; i < 6; i++ {
		records = append(records, record("a@x.com", domain.CategoryIncident,
			domain.UrgencyCritical, domain.ActionCreateTask, domain.OutcomeSuccess, "outage"))
	}
	for i := 0; i < 20; i++ {
		records = append(records, record("b@x.com", domain.CategoryInformation,
			domain.UrgencyLow, domain.ActionSendNotification, domain.OutcomeSuccess, "newsletter"))
	}

	set := Derive(records, Thresholds{})
	require.Contains(t, set.UrgencyKeywords, "outage")
	kp := set.UrgencyKeywords["outage"]
	assert.Equal(t, 6, kp.Occurrences)
	assert.GreaterOrEqual(t, kp.UrgencyBoost, 1)

	// "newsletter" has volume but no boost effect.
	assert.NotContains(t, set.UrgencyKeywords, "newsletter")
}

func TestDerive_AffinityPattern(t *testing.T) {
	var records []domain.FeedbackRecord
	for i := 0; i < 12; i++ {
		records = append(records, record("a@x.com", domain.CategoryIncident,
			domain.UrgencyHigh, domain.ActionCreateTask, domain.OutcomeSuccess))
	}
	// 50% success pair stays out.
	for i := 0; i < 12; i++ {
		outcome := domain.OutcomeSuccess
		if i%2 == 0 {
			outcome = domain.OutcomeFailure
		}
		records = append(records, record("b@x.com", domain.CategoryQuestion,
			domain.UrgencyLow, domain.ActionClarify, outcome))
	}

	set := Derive(records, Thresholds{})
	assert.Contains(t, set.CategoryActionAffinity,
		AffinityKey(domain.CategoryIncident, domain.ActionCreateTask))
	assert.NotContains(t, set.CategoryActionAffinity,
		AffinityKey(domain.CategoryQuestion, domain.ActionClarify))
}

func TestDerive_TimePattern(t *testing.T) {
	var records []domain.FeedbackRecord
	// Monday 14:00 bucket: 25 records, all successful.
	for i := 0; i < 25; i++ {
		records = append(records, record("a@x.com", domain.CategoryRequest,
			domain.UrgencyMedium, domain.ActionCreateTask, domain.OutcomeSuccess))
	}
	// Rest of corpus drags the baseline down.
	for i := 0; i < 40; i++ {
		r := record("b@x.com", domain.CategoryRequest,
			domain.UrgencyMedium, domain.ActionCreateTask, domain.OutcomeFailure)
		r.Timestamp = time.Date(2026, 8, 4, 9, 0, 0, 0, time.UTC) // Tuesday 09:00
		records = append(records, r)
	}

	set := Derive(records, Thresholds{})
	require.Contains(t, set.TimePatterns, TimeKey(14, time.Monday))
	tp := set.TimePatterns[TimeKey(14, time.Monday)]
	assert.Equal(t, 25, tp.Support)
	assert.Equal(t, 1.0, tp.SuccessRate)
	assert.NotContains(t, set.TimePatterns, TimeKey(9, time.Tuesday))
}

func TestDerive_Idempotent(t *testing.T) {
	var records []domain.FeedbackRecord
	for i := 0; i < 30; i++ {
		sender := fmt.Sprintf("s%d@x.com", i%3)
		records = append(records, record(sender, domain.CategoryIncident,
			domain.UrgencyHigh, domain.ActionCreateTask, domain.OutcomeSuccess, "urgent", "server"))
	}

	a := Derive(records, Thresholds{})
	b := Derive(records, Thresholds{})
	a.DerivedAt = b.DerivedAt
	assert.Equal(t, a, b)
}

func TestDerive_EmptyCorpus(t *testing.T) {
	set := Derive(nil, Thresholds{})
	assert.Empty(t, set.SenderPatterns)
	assert.Empty(t, set.UrgencyKeywords)
	assert.Equal(t, 0, set.SignalsAnalyzed)
}

func TestApply_SenderLiftsCategoryAndUrgency(t *testing.T) {
	set := EmptySet()
	set.SenderPatterns["alerts@x.com"] = SenderPattern{
		Sender:           "alerts@x.com",
		DominantCategory: domain.CategoryIncident,
		AvgUrgency:       3.2,
		Support:          15,
	}

	in := domain.Classification{
		Urgency:    domain.UrgencyMedium,
		Importance: domain.ImportanceMedium,
		Category:   domain.CategoryRequest,
		Confidence: 0.70,
	}
	out, adj := set.Apply(in, "alerts@x.com", nil)

	assert.Equal(t, domain.CategoryIncident, out.Category)
	assert.True(t, adj.CategoryOverridden)
	assert.Equal(t, domain.UrgencyHigh, out.Urgency) // exactly one step
	assert.True(t, adj.UrgencyRaised)
	assert.LessOrEqual(t, out.Confidence-in.Confidence, 0.1+1e-9)
}

func TestApply_ConfidenceCappedAtTenth(t *testing.T) {
	set := EmptySet()
	set.SenderPatterns["a@x.com"] = SenderPattern{Sender: "a@x.com", Support: 12}
	for _, kw := range []string{"k1", "k2", "k3", "k4", "k5"} {
		set.UrgencyKeywords[kw] = KeywordPattern{Keyword: kw, UrgencyBoost: 1}
	}

	in := domain.Classification{Urgency: domain.UrgencyLow, Confidence: 0.50}
	out, adj := set.Apply(in, "a@x.com", []string{"k1", "k2", "k3", "k4", "k5"})

	assert.InDelta(t, 0.60, out.Confidence, 1e-9)
	assert.InDelta(t, 0.10, adj.ConfidenceDelta, 1e-9)
	// Urgency rose exactly one step despite five keyword boosts.
	assert.Equal(t, domain.UrgencyMedium, out.Urgency)
}

func TestApply_CriticalDoesNotOverflow(t *testing.T) {
	set := EmptySet()
	set.UrgencyKeywords["outage"] = KeywordPattern{Keyword: "outage", UrgencyBoost: 2}

	in := domain.Classification{Urgency: domain.UrgencyCritical, Confidence: 0.95}
	out, _ := set.Apply(in, "", []string{"outage"})
	assert.Equal(t, domain.UrgencyCritical, out.Urgency)
	assert.LessOrEqual(t, out.Confidence, 1.0)
}

func TestApply_NoPatternsNoChange(t *testing.T) {
	set := EmptySet()
	in := domain.Classification{Urgency: domain.UrgencyMedium, Category: domain.CategoryRequest, Confidence: 0.8}
	out, adj := set.Apply(in, "unknown@x.com", []string{"nothing"})
	assert.Equal(t, in, out)
	assert.Equal(t, Adjustment{}, adj)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.json")

	store := NewStore()
	var records []domain.FeedbackRecord
	for i := 0; i < 12; i++ {
		records = append(records, record("alerts@x.com", domain.CategoryIncident,
			domain.UrgencyHigh, domain.ActionCreateTask, domain.OutcomeSuccess))
	}
	store.Replace(Derive(records, Thresholds{}))
	require.NoError(t, store.SaveFile(path))

	restored := NewStore()
	require.NoError(t, restored.LoadFile(path))

	a := store.Snapshot()
	b := restored.Snapshot()
	assert.Equal(t, a.SenderPatterns, b.SenderPatterns)
	assert.Equal(t, a.SignalsAnalyzed, b.SignalsAnalyzed)
}

func TestStore_LoadMissingFileIsNoop(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.LoadFile(filepath.Join(t.TempDir(), "absent.json")))
	assert.Empty(t, store.Snapshot().SenderPatterns)
}
