package feedback

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/prompts"
)

// Optimizer derives candidate prompt templates from the feedback corpus
// and runs them through the registry's A/B machinery. A successful
// outcome below the low cutoff teaches the oracle a hard case; a failed
// outcome above the high cutoff marks a misleading example.
type Optimizer struct {
	tracker    *Tracker
	registry   *prompts.Registry
	addLimit   int     // max examples added per optimization round
	target     int     // evaluations per experiment side
	lowCutoff  float64 // hard-case confidence ceiling
	highCutoff float64 // misleading confidence floor
}

// OptimizerOptions configures an Optimizer.
type OptimizerOptions struct {
	Tracker    *Tracker
	Registry   *prompts.Registry
	AddLimit   int     // default 3
	Target     int     // default 20
	LowCutoff  float64 // default 0.6
	HighCutoff float64 // default 0.8
}

// NewOptimizer wires an optimizer.
func NewOptimizer(opts OptimizerOptions) *Optimizer {
	if opts.AddLimit <= 0 {
		opts.AddLimit = 3
	}
	if opts.Target <= 0 {
		opts.Target = 20
	}
	if opts.LowCutoff <= 0 {
		opts.LowCutoff = 0.6
	}
	if opts.HighCutoff <= 0 {
		opts.HighCutoff = 0.8
	}
	return &Optimizer{
		tracker:    opts.Tracker,
		registry:   opts.Registry,
		addLimit:   opts.AddLimit,
		target:     opts.Target,
		lowCutoff:  opts.LowCutoff,
		highCutoff: opts.HighCutoff,
	}
}

// Optimize derives a candidate from the active template and starts an
// experiment. Returns the candidate version, or 0 when the corpus
// suggests no change or an experiment is already running.
func (o *Optimizer) Optimize() (int, error) {
	if _, running := o.registry.ExperimentStatus(); running {
		return 0, fmt.Errorf("feedback: experiment already running")
	}

	corpus := o.tracker.Corpus()
	active := o.registry.Active()
	candidate := active.Clone()

	removed := o.removeMisleading(candidate, corpus)
	added := o.addHardCases(candidate, corpus)
	if added == 0 && removed == 0 {
		return 0, nil
	}

	// Cap total examples, dropping the least effective first.
	if len(candidate.Examples) > candidate.MaxExamples {
		trimByEffectiveness(candidate)
	}

	version := o.registry.Register(candidate)
	if err := o.registry.StartExperiment(version, o.target); err != nil {
		return 0, err
	}
	log.Info().
		Int("candidate", version).
		Int("added", added).
		Int("removed", removed).
		Int("examples", len(candidate.Examples)).
		Msg("feedback: candidate template derived")
	return version, nil
}

// removeMisleading drops examples matched by failed high-confidence
// records: same sender and same expected category as the failure.
func (o *Optimizer) removeMisleading(t *prompts.Template, corpus []domain.FeedbackRecord) int {
	type key struct {
		sender   string
		category domain.Category
	}
	failed := map[key]bool{}
	for _, rec := range corpus {
		if rec.Outcome == domain.OutcomeFailure && rec.Classification.Confidence > o.highCutoff {
			failed[key{rec.Sender, rec.Classification.Category}] = true
		}
	}
	if len(failed) == 0 {
		return 0
	}

	kept := t.Examples[:0]
	removed := 0
	for _, ex := range t.Examples {
		if failed[key{ex.Sender, ex.Expected.Category}] {
			removed++
			continue
		}
		kept = append(kept, ex)
	}
	t.Examples = kept
	return removed
}

// addHardCases appends examples drawn from successful low-confidence
// records, newest first, skipping fingerprints already present.
func (o *Optimizer) addHardCases(t *prompts.Template, corpus []domain.FeedbackRecord) int {
	present := map[string]bool{}
	for _, ex := range t.Examples {
		present[ex.ID] = true
	}

	added := 0
	for i := len(corpus) - 1; i >= 0 && added < o.addLimit; i-- {
		rec := corpus[i]
		if rec.Outcome != domain.OutcomeSuccess || rec.Classification.Confidence >= o.lowCutoff {
			continue
		}
		if rec.Fingerprint == "" || present[rec.Fingerprint] {
			continue
		}
		t.Examples = append(t.Examples, prompts.Example{
			ID:       rec.Fingerprint,
			Source:   rec.Source,
			Subject:  rec.Subject,
			Excerpt:  rec.Subject,
			Sender:   rec.Sender,
			Expected: rec.Classification,
			AddedAt:  time.Now().UTC(),
		})
		present[rec.Fingerprint] = true
		added++
	}
	return added
}

// trimByEffectiveness removes the weakest examples until the template
// fits its cap. Unused examples rank below any with history.
func trimByEffectiveness(t *prompts.Template) {
	for len(t.Examples) > t.MaxExamples {
		worst := 0
		for i := 1; i < len(t.Examples); i++ {
			if weaker(t.Examples[i], t.Examples[worst]) {
				worst = i
			}
		}
		t.Examples = append(t.Examples[:worst], t.Examples[worst+1:]...)
	}
}

func weaker(a, b prompts.Example) bool {
	if a.Uses == 0 && b.Uses == 0 {
		return a.AddedAt.Before(b.AddedAt)
	}
	if a.Uses == 0 {
		return false // untested keeps its chance over a measured example
	}
	if b.Uses == 0 {
		return true
	}
	return a.EffectivenessRate() < b.EffectivenessRate()
}
