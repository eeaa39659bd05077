// Package decide maps a classified signal to exactly one decision
// through an ordered rule cascade. The first matching rule fires; its
// rule id lands in the decision's validation trail.
package decide

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/dupindex"
)

// Rule ids recorded in validation.rules_applied.
const (
	RuleDuplicate        = "duplicate_suppression"
	RuleSpam             = "spam"
	RuleAutoReply        = "auto_reply"
	RuleCriticalIncident = "critical_incident"
	RuleMeeting          = "meeting"
	RuleDocument         = "document_categorization"
	RuleLowConfidence    = "low_confidence"
	RuleHighImpact       = "high_impact_terms"
	RuleFYI              = "fyi_notification"
	RuleDefault          = "default_task"
)


var autoReplyMarkers = []string{
	"out of office",
	"automatic reply",
	"auto-reply",
	"autoreply",
	"away from my desk",
	"vacation responder",
}

var meetingMarkers = []string{
	"meeting",
	"standup",
	"stand-up",
	"1:1",
	"sync call",
	"schedule a call",
	"calendar invite",
}

var documentMarkers = []string{
	"invoice",
	"report",
	"contract",
	"statement",
	"receipt",
	"proposal",
	"attached",
}

var financialMarkers = []string{
	"invoice",
	"payment",
	"statement",
	"receipt",
	"purchase order",
	"budget",
}

var highImpactMarkers = []string{
	"budget",
	"contract",
	"legal",
	"lawsuit",
	"compliance",
	"liability",
	"acquisition",
}

// Engine evaluates the cascade. Pure given its inputs apart from the
// duplicate-index lookup, which fails open.
type Engine struct {
	dup                 *dupindex.Index
	confidenceThreshold float64
	criticalSLA         time.Duration
	now                 func() time.Time

	decisions   atomic.Int64
	ruleCounter [10]atomic.Int64
}

// Options configures an Engine.
type Options struct {
	Duplicates          *dupindex.Index
	ConfidenceThreshold float64

	// CriticalSLA is the due window for critical incident tasks.
	CriticalSLA time.Duration
}

// NewEngine builds an engine. A zero confidence threshold defaults to
// 0.60, a zero SLA to four hours.
func NewEngine(opts Options) *Engine {
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = 0.60
	}
	if opts.CriticalSLA <= 0 {
		opts.CriticalSLA = 4 * time.Hour
	}
	return &Engine{
		dup:                 opts.Duplicates,
		confidenceThreshold: opts.ConfidenceThreshold,
		criticalSLA:         opts.CriticalSLA,
		now:                 time.Now,
	}
}

// Decide runs the cascade and returns exactly one decision.
func (e *Engine) Decide(ctx context.Context, sig domain.Signal, c domain.Classification) domain.Decision {
	d, rule := e.evaluate(ctx, sig, c)
	d.DecisionID = uuid.New().String()
	d.SignalID = sig.ID
	d.Confidence = c.Confidence
	d.Validation.RulesApplied = append(d.Validation.RulesApplied, rule)

	e.decisions.Add(1)
	e.countRule(rule)
	log.Debug().
		Str("signal_id", sig.ID).
		Str("rule", rule).
		Str("action", string(d.Action)).
		Str("platform", string(d.TargetPlatform)).
		Int("priority", d.Priority).
		Bool("requires_approval", d.RequiresApproval).
		Msg("decide: decision made")
	return d
}

func (e *Engine) evaluate(ctx context.Context, sig domain.Signal, c domain.Classification) (domain.Decision, string) {
	subject := strings.ToLower(sig.Subject)
	body := strings.ToLower(sig.Body)
	text := subject + "\n" + body

	// 1. Duplicate suppression against the intended task title.
	if e.dup != nil {
		if match, dup := e.dup.IsDuplicate(ctx, sig.Subject); dup {
			return domain.Decision{
				Action:         domain.ActionIgnore,
				TargetPlatform: domain.PlatformNone,
				Priority:       priorityFor(c),
				Reasoning:      "duplicate_detected",
				Params: map[string]string{
					"existing_ref":   match.Ref,
					"existing_title": match.Title,
					"similarity":     fmt.Sprintf("%.2f", match.Score),
				},
			}, RuleDuplicate
		}
	}

	// 2. Spam.
	if c.Category == domain.CategorySpam {
		return domain.Decision{
			Action:         domain.ActionIgnore,
			TargetPlatform: domain.PlatformNone,
			Priority:       5,
			Reasoning:      "spam",
		}, RuleSpam
	}

	// 3. Auto-reply.
	if containsAny(text, autoReplyMarkers) {
		return domain.Decision{
			Action:         domain.ActionIgnore,
			TargetPlatform: domain.PlatformNone,
			Priority:       5,
			Reasoning:      "auto_reply",
		}, RuleAutoReply
	}

	// 4. Critical incident.
	if c.Urgency == domain.UrgencyCritical &&
		c.Importance == domain.ImportanceHigh &&
		c.Category == domain.CategoryIncident {
		due := e.now().Add(e.criticalSLA)
		return domain.Decision{
			Action:         domain.ActionCreateTask,
			TargetPlatform: domain.PlatformTaskTracker,
			Priority:       1,
			Reasoning:      "critical incident requires immediate task",
			Params: map[string]string{
				"title":    sig.Subject,
				"due_date": due.Format(time.RFC3339),
			},
		}, RuleCriticalIncident
	}

	// 5. Meeting.
	if containsAny(text, meetingMarkers) {
		return domain.Decision{
			Action:         domain.ActionScheduleMeeting,
			TargetPlatform: domain.PlatformCalendar,
			Priority:       3,
			Reasoning:      "meeting request detected",
			Params:         map[string]string{"title": sig.Subject},
		}, RuleMeeting
	}

	// 6. Document categorization.
	if len(sig.Attachments) > 0 && containsAny(text, documentMarkers) {
		financial := containsAny(text, financialMarkers)
		folder := "Documents/"
		if financial {
			folder = "Invoices/"
		}
		return domain.Decision{
			Action:           domain.ActionUpdateDocument,
			TargetPlatform:   domain.PlatformFilesystem,
			Priority:         priorityFor(c),
			RequiresApproval: financial,
			Reasoning:        "document classification",
			Params: map[string]string{
				"folder":    folder,
				"file_name": sig.Attachments[0].Name,
				"file_id":   sig.Attachments[0].FileID,
			},
		}, RuleDocument
	}

	// 7. Low confidence.
	if c.Confidence < e.confidenceThreshold {
		return domain.Decision{
			Action:           domain.ActionClarify,
			TargetPlatform:   domain.PlatformChat,
			Priority:         priorityFor(c),
			RequiresApproval: true,
			Reasoning:        fmt.Sprintf("confidence %.2f below threshold %.2f", c.Confidence, e.confidenceThreshold),
		}, RuleLowConfidence
	}

	// 8. High-impact terms.
	if c.Importance == domain.ImportanceHigh && containsAny(body, highImpactMarkers) {
		return domain.Decision{
			Action:           domain.ActionEscalate,
			TargetPlatform:   domain.PlatformChat,
			Priority:         priorityFor(c),
			RequiresApproval: true,
			Reasoning:        "high-impact terms in important signal",
		}, RuleHighImpact
	}

	// 9. FYI / low-priority information.
	if c.Category == domain.CategoryInformation || c.Category == domain.CategoryDiscussion {
		return domain.Decision{
			Action:         domain.ActionSendNotification,
			TargetPlatform: domain.PlatformChat,
			Priority:       priorityFor(c),
			Reasoning:      "informational signal",
		}, RuleFYI
	}

	// 10. Default.
	return domain.Decision{
		Action:         domain.ActionCreateTask,
		TargetPlatform: domain.PlatformTaskTracker,
		Priority:       priorityFor(c),
		Reasoning:      "default task creation",
		Params:         map[string]string{"title": sig.Subject},
	}, RuleDefault
}

// priorityFor maps urgency to numeric priority (critical=1 .. low=4);
// high importance lowers it one step, bounded at 1.
func priorityFor(c domain.Classification) int {
	p := 5 - c.Urgency.Level()
	if p < 1 || p > 4 {
		p = 4
	}
	if c.Importance == domain.ImportanceHigh && p > 1 {
		p--
	}
	return p
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func (e *Engine) countRule(rule string) {
	idx := map[string]int{
		RuleDuplicate:        0,
		RuleSpam:             1,
		RuleAutoReply:        2,
		RuleCriticalIncident: 3,
		RuleMeeting:          4,
		RuleDocument:         5,
		RuleLowConfidence:    6,
		RuleHighImpact:       7,
		RuleFYI:              8,
		RuleDefault:          9,
	}[rule]
	e.ruleCounter[idx].Add(1)
}

// Stats reports how often each rule has fired.
type Stats struct {
	Decisions int64            `json:"decisions"`
	ByRule    map[string]int64 `json:"by_rule"`
}

// Stats snapshots the rule counters.
func (e *Engine) Stats() Stats {
	rules := []string{
		RuleDuplicate, RuleSpam, RuleAutoReply, RuleCriticalIncident,
		RuleMeeting, RuleDocument, RuleLowConfidence, RuleHighImpact,
		RuleFYI, RuleDefault,
	}
	byRule := make(map[string]int64, len(rules))
	for i, r := range rules {
		if n := e.ruleCounter[i].Load(); n > 0 {
			byRule[r] = n
		}
	}
	return Stats{Decisions: e.decisions.Load(), ByRule: byRule}
}
