// Package prompts manages the classifier's prompt templates: versioned
// system prompts with a bounded example list, per-example effectiveness
// stats, A/B experiments between the active template and a candidate,
// and rollback when an activation degrades.
package prompts

import (
	"fmt"
	"strings"
	"time"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
)

// Example is one few-shot example carried by a template.
type Example struct {
	ID       string                `json:"id"`
	Source   domain.Source         `json:"source"`
	Subject  string                `json:"subject"`
	Excerpt  string                `json:"excerpt"` // body excerpt, bounded
	Sender   string                `json:"sender"`
	Expected domain.Classification `json:"expected"`
	AddedAt  time.Time             `json:"added_at"`
	Uses     int                   `json:"uses"`
	Hits     int                   `json:"hits"` // evaluations that succeeded while this example was present
}

// EffectivenessRate is the per-example success share while present.
func (e Example) EffectivenessRate() float64 {
	if e.Uses == 0 {
		return 0
	}
	return float64(e.Hits) / float64(e.Uses)
}

// Metrics aggregates a template's observed performance.
type Metrics struct {
	Evaluations       int           `json:"evaluations"`
	Successes         int           `json:"successes"`
	SuccessRate       float64       `json:"success_rate"`
	AvgConfidence     float64       `json:"avg_confidence"`
	AvgProcessingTime time.Duration `json:"avg_processing_time"`
}

func (m *Metrics) record(success bool, confidence float64, latency time.Duration) {
	n := float64(m.Evaluations)
	m.AvgConfidence = (m.AvgConfidence*n + confidence) / (n + 1)
	m.AvgProcessingTime = time.Duration((float64(m.AvgProcessingTime)*n + float64(latency)) / (n + 1))
	m.Evaluations++
	if success {
		m.Successes++
	}
	m.SuccessRate = float64(m.Successes) / float64(m.Evaluations)
}

// Template is one prompt version. Versions are monotonic within a
// registry; rollback reactivates a prior version rather than editing
// history.
type Template struct {
	ID           string    `json:"id"`
	Version      int       `json:"version"`
	SystemPrompt string    `json:"system_prompt"`
	Examples     []Example `json:"examples"`
	MaxExamples  int       `json:"max_examples"`
	Metrics      Metrics   `json:"metrics"`
	CreatedAt    time.Time `json:"created_at"`
	Archived     bool      `json:"archived"`
}

// Clone deep-copies a template.
func (t *Template) Clone() *Template {
	out := *t
	out.Examples = append([]Example(nil), t.Examples...)
	return &out
}

// Render produces the full system prompt: instructions followed by the
// formatted example list.
func (t *Template) Render() string {
	if len(t.Examples) == 0 {
		return t.SystemPrompt
	}
	var b strings.Builder
	b.WriteString(t.SystemPrompt)
	b.WriteString("\n\nExamples:\n")
	for i, ex := range t.Examples {
		fmt.Fprintf(&b, "\nExample %d:\nSource: %s\nFrom: %s\nSubject: %s\nBody: %s\n",
			i+1, ex.Source, ex.Sender, ex.Subject, ex.Excerpt)
		fmt.Fprintf(&b,
			"Classification: {\"urgency\":%q,\"importance\":%q,\"category\":%q,\"confidence\":%.2f}\n",
			ex.Expected.Urgency, ex.Expected.Importance, ex.Expected.Category, ex.Expected.Confidence)
	}
	return b.String()
}

// baseSystemPrompt is the version-1 instruction block.
const baseSystemPrompt = `You are a triage classifier for an operations inbox. Given one signal
(email, chat message, or spreadsheet edit), respond with a single JSON
object and nothing else:

{
  "urgency": "critical|high|medium|low",
  "importance": "high|medium|low",
  "category": "incident|request|issue|question|information|discussion|spam",
  "confidence": 0.0-1.0,
  "reasoning": "one sentence",
  "suggested_actions": ["create_task"|"send_notification"|"update_document"|"schedule_meeting"|"ignore"|"escalate"|"clarify"],
  "requires_immediate": true|false
}`

// NewBaseTemplate returns the seed template.
func NewBaseTemplate(maxExamples int) *Template {
	if maxExamples <= 0 {
		maxExamples = 10
	}
	return &Template{
		ID:           "classifier-prompt",
		Version:      1,
		SystemPrompt: baseSystemPrompt,
		MaxExamples:  maxExamples,
		CreatedAt:    time.Now().UTC(),
	}
}
