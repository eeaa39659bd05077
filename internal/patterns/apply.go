package patterns

import (
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
)

// Adjustment reports what Apply changed.
type Adjustment struct {
	UrgencyRaised      bool    `json:"urgency_raised"`
	CategoryOverridden bool    `json:"category_overridden"`
	ConfidenceDelta    float64 `json:"confidence_delta"`
	MatchedSender      bool    `json:"matched_sender"`
	MatchedKeywords    int     `json:"matched_keywords"`
}

// senderOverrideMinSupport gates category overrides so a thin history
// cannot rewrite the oracle's judgement.
const senderOverrideMinSupport = 10

// Apply adjusts a classification using the learned patterns for the
// given sender and keywords. The adjustment is bounded: urgency may rise
// by at most one step, confidence by at most +0.1, and the category may
// only be overridden to the sender's dominant category.
func (s Set) Apply(c domain.Classification, sender string, keywords []string) (domain.Classification, Adjustment) {
	out := c.Clone()
	var adj Adjustment

	boost := 0
	confDelta := 0.0

	if sp, ok := s.SenderPatterns[sender]; ok {
		adj.MatchedSender = true
		confDelta += 0.05

		if sp.Support >= senderOverrideMinSupport &&
			sp.DominantCategory != "" &&
			sp.DominantCategory != out.Category {
			out.Category = sp.DominantCategory
			adj.CategoryOverridden = true
		}
		// A historically urgent sender lifts urgency one step.
		if sp.AvgUrgency >= float64(out.Urgency.Level())+0.5 {
			boost = 1
		}
	}

	for _, kw := range keywords {
		if kp, ok := s.UrgencyKeywords[kw]; ok {
			adj.MatchedKeywords++
			if kp.UrgencyBoost > 0 {
				boost = 1 // capped at one step regardless of evidence
			}
			confDelta += 0.02
		}
	}

	if boost > 0 && out.Urgency != domain.UrgencyCritical {
		out.Urgency = domain.UrgencyFromLevel(out.Urgency.Level() + 1)
		adj.UrgencyRaised = true
	}

	if confDelta > 0.1 {
		confDelta = 0.1
	}
	if confDelta > 0 {
		out.Confidence += confDelta
		if out.Confidence > 1.0 {
			out.Confidence = 1.0
		}
		adj.ConfidenceDelta = confDelta
	}

	return out, adj
}
