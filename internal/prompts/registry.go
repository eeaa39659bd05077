package prompts

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Experiment tracks a running A/B comparison between the active template
// (control) and a candidate. Traffic alternates between the two until
// each side has Target evaluations.
type Experiment struct {
	ControlVersion   int       `json:"control_version"`
	CandidateVersion int       `json:"candidate_version"`
	Target           int       `json:"target"`
	ControlEvals     int       `json:"control_evals"`
	ControlHits      int       `json:"control_hits"`
	CandidateEvals   int       `json:"candidate_evals"`
	CandidateHits    int       `json:"candidate_hits"`
	StartedAt        time.Time `json:"started_at"`
}

func (e *Experiment) done() bool {
	return e.ControlEvals >= e.Target && e.CandidateEvals >= e.Target
}

func (e *Experiment) candidateWins() bool {
	controlRate := float64(e.ControlHits) / float64(e.ControlEvals)
	candidateRate := float64(e.CandidateHits) / float64(e.CandidateEvals)
	return candidateRate > controlRate
}

// Registry owns the template versions, the active selection, and the
// experiment lifecycle. All mutation is internally serialized.
type Registry struct {
	mu         sync.Mutex
	versions   map[int]*Template
	active     int
	next       int
	experiment *Experiment
	split      bool // alternates experiment traffic

	// rollback guard state
	priorVersion  int
	priorBaseline float64
	postEvals     int
	postHits      int
	degradationPP float64
	minPostEvals  int
}

// RegistryOptions bounds the registry.
type RegistryOptions struct {
	MaxExamples   int
	DegradationPP float64 // rollback threshold in percentage points
}

// NewRegistry seeds a registry with the base template active.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.DegradationPP <= 0 {
		opts.DegradationPP = 10
	}
	base := NewBaseTemplate(opts.MaxExamples)
	return &Registry{
		versions:      map[int]*Template{base.Version: base},
		active:        base.Version,
		next:          base.Version + 1,
		degradationPP: opts.DegradationPP,
		minPostEvals:  10,
	}
}

// Active returns a copy of the currently active template.
func (r *Registry) Active() *Template {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.versions[r.active].Clone()
}

// Version returns a copy of a specific version.
func (r *Registry) Version(v int) (*Template, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.versions[v]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Versions lists all stored versions ascending.
func (r *Registry) Versions() []*Template {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Template, 0, len(r.versions))
	for v := 1; v < r.next; v++ {
		if t, ok := r.versions[v]; ok {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Register stores a candidate template under the next version number and
// returns the assigned version.
func (r *Registry) Register(t *Template) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := t.Clone()
	stored.Version = r.next
	stored.Metrics = Metrics{}
	stored.CreatedAt = time.Now().UTC()
	r.versions[stored.Version] = stored
	r.next++
	return stored.Version
}

// StartExperiment begins A/B routing between the active template and the
// candidate version. Returns an error if an experiment is running.
func (r *Registry) StartExperiment(candidateVersion, target int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.experiment != nil {
		return fmt.Errorf("prompts: experiment already running (control=v%d candidate=v%d)",
			r.experiment.ControlVersion, r.experiment.CandidateVersion)
	}
	if _, ok := r.versions[candidateVersion]; !ok {
		return fmt.Errorf("prompts: unknown candidate version %d", candidateVersion)
	}
	if target <= 0 {
		target = 20
	}
	r.experiment = &Experiment{
		ControlVersion:   r.active,
		CandidateVersion: candidateVersion,
		Target:           target,
		StartedAt:        time.Now().UTC(),
	}
	log.Info().
		Int("control", r.active).
		Int("candidate", candidateVersion).
		Int("target", target).
		Msg("prompts: experiment started")
	return nil
}

// Select returns the template to use for the next classification. During
// an experiment, traffic alternates between control and candidate until
// each side has its target evaluations.
func (r *Registry) Select() *Template {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e := r.experiment; e != nil {
		useCandidate := r.split && e.CandidateEvals < e.Target
		if !r.split && e.ControlEvals >= e.Target {
			useCandidate = true
		}
		r.split = !r.split
		if useCandidate {
			return r.versions[e.CandidateVersion].Clone()
		}
		return r.versions[e.ControlVersion].Clone()
	}
	return r.versions[r.active].Clone()
}

// RecordEvaluation feeds one classified-signal outcome back into the
// template that produced it. Concludes the experiment when both sides
// reach their target, and triggers rollback if a fresh activation has
// degraded beyond the configured threshold.
func (r *Registry) RecordEvaluation(version int, success bool, confidence float64, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.versions[version]
	if !ok {
		return
	}
	t.Metrics.record(success, confidence, latency)
	for i := range t.Examples {
		t.Examples[i].Uses++
		if success {
			t.Examples[i].Hits++
		}
	}

	if e := r.experiment; e != nil {
		switch version {
		case e.ControlVersion:
			e.ControlEvals++
			if success {
				e.ControlHits++
			}
		case e.CandidateVersion:
			e.CandidateEvals++
			if success {
				e.CandidateHits++
			}
		}
		if e.done() {
			r.concludeLocked()
		}
		return
	}

	// Rollback guard for a freshly activated template.
	if r.priorVersion != 0 && version == r.active {
		r.postEvals++
		if success {
			r.postHits++
		}
		if r.postEvals >= r.minPostEvals {
			rate := float64(r.postHits) / float64(r.postEvals)
			if rate < r.priorBaseline-r.degradationPP/100 {
				r.rollbackLocked(rate)
			} else if r.postEvals >= 5*r.minPostEvals {
				// Enough healthy evidence; stop watching.
				r.priorVersion = 0
			}
		}
	}
}

func (r *Registry) concludeLocked() {
	e := r.experiment
	r.experiment = nil
	r.split = false

	if !e.candidateWins() {
		cand := r.versions[e.CandidateVersion]
		cand.Archived = true
		log.Info().
			Int("control", e.ControlVersion).
			Int("candidate", e.CandidateVersion).
			Msg("prompts: experiment concluded, control retained")
		return
	}

	r.priorVersion = e.ControlVersion
	r.priorBaseline = float64(e.ControlHits) / float64(e.ControlEvals)
	r.postEvals = 0
	r.postHits = 0
	r.active = e.CandidateVersion
	log.Info().
		Int("activated", e.CandidateVersion).
		Int("prior", e.ControlVersion).
		Float64("prior_baseline", r.priorBaseline).
		Msg("prompts: candidate activated")
}

func (r *Registry) rollbackLocked(observedRate float64) {
	demoted := r.versions[r.active]
	demoted.Archived = true
	log.Warn().
		Int("demoted", r.active).
		Int("restored", r.priorVersion).
		Float64("observed_rate", observedRate).
		Float64("prior_baseline", r.priorBaseline).
		Msg("prompts: degradation detected, rolling back")

	r.active = r.priorVersion
	r.priorVersion = 0
	r.postEvals = 0
	r.postHits = 0
}

// Rollback manually reactivates a prior version and archives the current
// active template.
func (r *Registry) Rollback(version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.versions[version]
	if !ok {
		return fmt.Errorf("prompts: unknown version %d", version)
	}
	if t.Archived {
		t.Archived = false
	}
	if r.active != version {
		r.versions[r.active].Archived = true
	}
	r.active = version
	r.priorVersion = 0
	return nil
}

// ExperimentStatus returns a copy of the running experiment, if any.
func (r *Registry) ExperimentStatus() (Experiment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.experiment == nil {
		return Experiment{}, false
	}
	return *r.experiment, true
}

// SaveFile persists one record per version as line-delimited JSON.
func (r *Registry) SaveFile(path string) error {
	versions := r.Versions()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("prompts: create dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("prompts: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, t := range versions {
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("prompts: encode version %d: %w", t.Version, err)
		}
	}
	return w.Flush()
}

// LoadFile restores the version history from a line-delimited JSON file.
// The newest non-archived version becomes active. A missing file leaves
// the registry at its seed state and is not an error.
func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("prompts: open %s: %w", path, err)
	}
	defer f.Close()

	loaded := map[int]*Template{}
	active, next := 0, 1
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var t Template
		if err := json.Unmarshal(line, &t); err != nil {
			return fmt.Errorf("prompts: parse version record: %w", err)
		}
		loaded[t.Version] = &t
		if t.Version >= next {
			next = t.Version + 1
		}
		if !t.Archived && t.Version > active {
			active = t.Version
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("prompts: read %s: %w", path, err)
	}
	if len(loaded) == 0 || active == 0 {
		return nil
	}

	r.mu.Lock()
	r.versions = loaded
	r.active = active
	r.next = next
	r.experiment = nil
	r.priorVersion = 0
	r.mu.Unlock()
	return nil
}
