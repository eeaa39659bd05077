// Package domain holds the shared data model for the reasoning and
// dispatch core: inbound signals, classifications, decisions, platform
// payloads, feedback records, and review items.
package domain

import (
	"time"
)

// Source identifies the communication channel a signal arrived from.
type Source string

const (
	SourceEmail Source = "email"
	SourceChat  Source = "chat"
	SourceSheet Source = "sheet"
)

// Urgency is the classified time-sensitivity of a signal.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// Level encodes urgency as 1..4 (low=1, critical=4) for averaging and
// priority arithmetic.
func (u Urgency) Level() int {
	switch u {
	case UrgencyCritical:
		return 4
	case UrgencyHigh:
		return 3
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether u is a known urgency value.
func (u Urgency) Valid() bool { return u.Level() != 0 }

// UrgencyFromLevel is the inverse of Level. Out-of-range values clamp.
func UrgencyFromLevel(level int) Urgency {
	switch {
	case level >= 4:
		return UrgencyCritical
	case level == 3:
		return UrgencyHigh
	case level == 2:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// Importance is the classified business weight of a signal.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

// Valid reports whether i is a known importance value.
func (i Importance) Valid() bool {
	switch i {
	case ImportanceHigh, ImportanceMedium, ImportanceLow:
		return true
	}
	return false
}

// Category is the classified kind of a signal.
type Category string

const (
	CategoryIncident    Category = "incident"
	CategoryRequest     Category = "request"
	CategoryIssue       Category = "issue"
	CategoryQuestion    Category = "question"
	CategoryInformation Category = "information"
	CategoryDiscussion  Category = "discussion"
	CategorySpam        Category = "spam"
)

// Valid reports whether c is a known category value.
func (c Category) Valid() bool {
	switch c {
	case CategoryIncident, CategoryRequest, CategoryIssue, CategoryQuestion,
		CategoryInformation, CategoryDiscussion, CategorySpam:
		return true
	}
	return false
}

// ActionType enumerates the outbound actions a decision can take.
type ActionType string

const (
	ActionCreateTask       ActionType = "create_task"
	ActionSendNotification ActionType = "send_notification"
	ActionUpdateDocument   ActionType = "update_document"
	ActionScheduleMeeting  ActionType = "schedule_meeting"
	ActionIgnore           ActionType = "ignore"
	ActionEscalate         ActionType = "escalate"
	ActionClarify          ActionType = "clarify"
)

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	switch a {
	case ActionCreateTask, ActionSendNotification, ActionUpdateDocument,
		ActionScheduleMeeting, ActionIgnore, ActionEscalate, ActionClarify:
		return true
	}
	return false
}

// Platform identifies the outbound system a decision targets.
type Platform string

const (
	PlatformTaskTracker Platform = "task-tracker"
	PlatformChat        Platform = "chat"
	PlatformFilesystem  Platform = "filesystem"
	PlatformSpreadsheet Platform = "spreadsheet"
	PlatformCalendar    Platform = "calendar"
	PlatformNone        Platform = "none"
)

// Outcome is the terminal result of acting on a decision.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeModified Outcome = "modified"
	OutcomeRejected Outcome = "rejected"
)

// Attachment describes a file attached to a signal.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
	FileID   string `json:"file_id,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Signal is an inbound event from a communication source awaiting
// reasoning. Immutable once accepted by the ingest queue.
type Signal struct {
	ID          string            `json:"id"`
	Source      Source            `json:"source"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	Sender      string            `json:"sender"`
	Timestamp   time.Time         `json:"timestamp"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	ThreadRef   string            `json:"thread_ref,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Priority    int               `json:"priority"` // 1 (highest) .. 5 (lowest)
}

// Classification is the oracle's judgement of a signal. Produced exactly
// once per signal; cached under a fingerprint.
type Classification struct {
	Urgency           Urgency      `json:"urgency"`
	Importance        Importance   `json:"importance"`
	Category          Category     `json:"category"`
	Confidence        float64      `json:"confidence"`
	Reasoning         string       `json:"reasoning"`
	SuggestedActions  []ActionType `json:"suggested_actions,omitempty"`
	RequiresImmediate bool         `json:"requires_immediate"`
}

// Clone returns a deep copy so cached classifications stay immutable.
func (c Classification) Clone() Classification {
	out := c
	if c.SuggestedActions != nil {
		out.SuggestedActions = append([]ActionType(nil), c.SuggestedActions...)
	}
	return out
}

// Validation records which decision rules fired and any advisory or
// blocking findings.
type Validation struct {
	RulesApplied []string `json:"rules_applied,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	Blockers     []string `json:"blockers,omitempty"`
}

// Decision maps a classification to an outbound action under the business
// rules. Exactly one per signal; a decision may execute zero actions.
type Decision struct {
	DecisionID       string            `json:"decision_id"`
	SignalID         string            `json:"signal_id"`
	Action           ActionType        `json:"action"`
	TargetPlatform   Platform          `json:"target_platform"`
	Params           map[string]string `json:"params,omitempty"`
	Priority         int               `json:"priority"` // 1..5
	RequiresApproval bool              `json:"requires_approval"`
	Reasoning        string            `json:"reasoning"`
	Confidence       float64           `json:"confidence"`
	Validation       Validation        `json:"validation"`
}

// TaskDetails carries the task fields the parameter builder consumes for
// task-creating decisions.
type TaskDetails struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	DueDate     *time.Time        `json:"due_date,omitempty"`
	Assignee    string            `json:"assignee,omitempty"`
	Labels      []string          `json:"labels,omitempty"`
	Priority    int               `json:"priority"`
	Source      Source            `json:"source"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// FeedbackRecord captures one terminal outcome for the learning loop.
// Sender, Subject, and Keywords carry the signal context pattern
// derivation needs.
type FeedbackRecord struct {
	FeedbackID      string            `json:"feedback_id"`
	Fingerprint     string            `json:"fingerprint"`
	Source          Source            `json:"source,omitempty"`
	Sender          string            `json:"sender,omitempty"`
	Subject         string            `json:"subject,omitempty"`
	Keywords        []string          `json:"keywords,omitempty"`
	Classification  Classification    `json:"classification"`
	Decision        Decision          `json:"decision"`
	Outcome         Outcome           `json:"outcome"`
	Modifications   map[string]string `json:"modifications,omitempty"`
	Note            string            `json:"note,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	ProcessingTime  time.Duration     `json:"processing_time"`
	ConfidenceScore float64           `json:"confidence_score"`
}

// ReviewStatus is the approval state of a queued decision.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
	ReviewTimedOut ReviewStatus = "timed_out"
)

// ReviewItem is one human-in-the-loop approval request.
type ReviewItem struct {
	ReviewID  string       `json:"review_id"`
	SignalID  string       `json:"signal_id"`
	Decision  Decision     `json:"decision"`
	Reason    string       `json:"reason"`
	QueuedAt  time.Time    `json:"queued_at"`
	TimeoutAt time.Time    `json:"timeout_at"`
	Status    ReviewStatus `json:"status"`
	Urgency   Urgency      `json:"urgency"`
	Note      string       `json:"note,omitempty"`
}
