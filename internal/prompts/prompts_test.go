package prompts

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
)

func exampleFixture(id string) Example {
	return Example{
		ID:      id,
		Source:  domain.SourceEmail,
		Subject: "Database replica lag",
		Excerpt: "Replica lag exceeded 30s on db-2.",
		Sender:  "alerts@x.com",
		Expected: domain.Classification{
			Urgency:    domain.UrgencyHigh,
			Importance: domain.ImportanceHigh,
			Category:   domain.CategoryIncident,
			Confidence: 0.92,
		},
		AddedAt: time.Now().UTC(),
	}
}

func TestTemplate_RenderIncludesExamples(t *testing.T) {
	tmpl := NewBaseTemplate(10)
	assert.Equal(t, tmpl.SystemPrompt, tmpl.Render())

	tmpl.Examples = append(tmpl.Examples, exampleFixture("ex-1"))
	rendered := tmpl.Render()
	assert.Contains(t, rendered, "Example 1:")
	assert.Contains(t, rendered, "Database replica lag")
	assert.Contains(t, rendered, `"urgency":"high"`)
	assert.True(t, strings.HasPrefix(rendered, tmpl.SystemPrompt))
}

func TestMetrics_RecordAverages(t *testing.T) {
	var m Metrics
	m.record(true, 0.8, 100*time.Millisecond)
	m.record(false, 0.6, 300*time.Millisecond)

	assert.Equal(t, 2, m.Evaluations)
	assert.Equal(t, 1, m.Successes)
	assert.InDelta(t, 0.5, m.SuccessRate, 1e-9)
	assert.InDelta(t, 0.7, m.AvgConfidence, 1e-9)
	assert.Equal(t, 200*time.Millisecond, m.AvgProcessingTime)
}

func TestRegistry_RegisterAssignsMonotonicVersions(t *testing.T) {
	r := NewRegistry(RegistryOptions{MaxExamples: 10})

	cand := r.Active()
	cand.Examples = append(cand.Examples, exampleFixture("ex-1"))
	v := r.Register(cand)
	assert.Equal(t, 2, v)

	v2 := r.Register(cand)
	assert.Equal(t, 3, v2)

	// Registering never moves the active pointer.
	assert.Equal(t, 1, r.Active().Version)
}

func TestRegistry_ExperimentAlternatesTraffic(t *testing.T) {
	r := NewRegistry(RegistryOptions{MaxExamples: 10})
	cand := r.Active()
	cand.Examples = append(cand.Examples, exampleFixture("ex-1"))
	v := r.Register(cand)
	require.NoError(t, r.StartExperiment(v, 4))

	seen := map[int]int{}
	for i := 0; i < 8; i++ {
		seen[r.Select().Version]++
	}
	assert.Equal(t, 4, seen[1])
	assert.Equal(t, 4, seen[v])
}

func TestRegistry_CandidateWinsAndActivates(t *testing.T) {
	r := NewRegistry(RegistryOptions{MaxExamples: 10})
	cand := r.Active()
	v := r.Register(cand)
	require.NoError(t, r.StartExperiment(v, 3))

	// Control: 1/3 success. Candidate: 3/3.
	r.RecordEvaluation(1, true, 0.8, time.Millisecond)
	r.RecordEvaluation(1, false, 0.5, time.Millisecond)
	r.RecordEvaluation(1, false, 0.5, time.Millisecond)
	r.RecordEvaluation(v, true, 0.9, time.Millisecond)
	r.RecordEvaluation(v, true, 0.9, time.Millisecond)
	r.RecordEvaluation(v, true, 0.9, time.Millisecond)

	_, running := r.ExperimentStatus()
	assert.False(t, running)
	assert.Equal(t, v, r.Active().Version)
}

func TestRegistry_CandidateLosesAndArchives(t *testing.T) {
	r := NewRegistry(RegistryOptions{MaxExamples: 10})
	cand := r.Active()
	v := r.Register(cand)
	require.NoError(t, r.StartExperiment(v, 2))

	r.RecordEvaluation(1, true, 0.8, time.Millisecond)
	r.RecordEvaluation(1, true, 0.8, time.Millisecond)
	r.RecordEvaluation(v, false, 0.4, time.Millisecond)
	r.RecordEvaluation(v, true, 0.8, time.Millisecond)

	assert.Equal(t, 1, r.Active().Version)
	loser, ok := r.Version(v)
	require.True(t, ok)
	assert.True(t, loser.Archived)
}

func TestRegistry_DegradationRollsBack(t *testing.T) {
	r := NewRegistry(RegistryOptions{MaxExamples: 10, DegradationPP: 10})
	cand := r.Active()
	v := r.Register(cand)
	require.NoError(t, r.StartExperiment(v, 2))

	// Candidate wins with a perfect record against a 50% control.
	r.RecordEvaluation(1, true, 0.8, time.Millisecond)
	r.RecordEvaluation(1, false, 0.5, time.Millisecond)
	r.RecordEvaluation(v, true, 0.9, time.Millisecond)
	r.RecordEvaluation(v, true, 0.9, time.Millisecond)
	require.Equal(t, v, r.Active().Version)

	// Post-activation it collapses well below baseline-10pp.
	for i := 0; i < 10; i++ {
		r.RecordEvaluation(v, false, 0.4, time.Millisecond)
	}
	assert.Equal(t, 1, r.Active().Version)
	demoted, _ := r.Version(v)
	assert.True(t, demoted.Archived)
}

func TestRegistry_HealthyActivationSticks(t *testing.T) {
	r := NewRegistry(RegistryOptions{MaxExamples: 10, DegradationPP: 10})
	cand := r.Active()
	v := r.Register(cand)
	require.NoError(t, r.StartExperiment(v, 2))

	r.RecordEvaluation(1, true, 0.8, time.Millisecond)
	r.RecordEvaluation(1, false, 0.5, time.Millisecond)
	r.RecordEvaluation(v, true, 0.9, time.Millisecond)
	r.RecordEvaluation(v, true, 0.9, time.Millisecond)
	require.Equal(t, v, r.Active().Version)

	for i := 0; i < 20; i++ {
		r.RecordEvaluation(v, true, 0.9, time.Millisecond)
	}
	assert.Equal(t, v, r.Active().Version)
}

func TestRegistry_ManualRollback(t *testing.T) {
	r := NewRegistry(RegistryOptions{MaxExamples: 10})
	cand := r.Active()
	v := r.Register(cand)
	require.NoError(t, r.StartExperiment(v, 1))
	r.RecordEvaluation(1, false, 0.5, time.Millisecond)
	r.RecordEvaluation(v, true, 0.9, time.Millisecond)
	require.Equal(t, v, r.Active().Version)

	require.NoError(t, r.Rollback(1))
	assert.Equal(t, 1, r.Active().Version)
	assert.Error(t, r.Rollback(99))
}

func TestRegistry_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.jsonl")

	r := NewRegistry(RegistryOptions{MaxExamples: 10})
	cand := r.Active()
	cand.Examples = append(cand.Examples, exampleFixture("ex-1"))
	v := r.Register(cand)
	require.NoError(t, r.StartExperiment(v, 1))
	r.RecordEvaluation(1, false, 0.5, time.Millisecond)
	r.RecordEvaluation(v, true, 0.9, time.Millisecond)
	require.NoError(t, r.SaveFile(path))

	restored := NewRegistry(RegistryOptions{MaxExamples: 10})
	require.NoError(t, restored.LoadFile(path))
	assert.Equal(t, v, restored.Active().Version)
	got, ok := restored.Version(v)
	require.True(t, ok)
	assert.Len(t, got.Examples, 1)
	assert.Equal(t, "ex-1", got.Examples[0].ID)
}

func TestRegistry_LoadMissingFileIsNoop(t *testing.T) {
	r := NewRegistry(RegistryOptions{MaxExamples: 10})
	require.NoError(t, r.LoadFile(filepath.Join(t.TempDir(), "absent.jsonl")))
	assert.Equal(t, 1, r.Active().Version)
}
