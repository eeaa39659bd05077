// Package payload builds the concrete per-platform payload for a
// decision. Required fields reject the build with the missing field
// names; defaulted optional fields produce warnings.
package payload

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
)

// Payload is the built, platform-ready parameter set.
type Payload struct {
	Platform domain.Platform   `json:"platform"`
	Action   domain.ActionType `json:"action"`
	Fields   map[string]string `json:"fields"`
	Warnings []string          `json:"warnings,omitempty"`
}

// ValidationError rejects a build over absent required fields.
type ValidationError struct {
	Platform      domain.Platform
	MissingFields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("payload: %s missing required fields: %s",
		e.Platform, strings.Join(e.MissingFields, ", "))
}

// IsValidationError reports whether err is a required-field rejection.
func IsValidationError(err error) (*ValidationError, bool) {
	ve, ok := err.(*ValidationError)
	return ve, ok
}

// Config carries the destination defaults the builder needs.
type Config struct {
	DefaultChannel   string        // notification channel when none specified
	DefaultFolder    string        // document container when none specified
	BoardSourceBase  string        // base URL for card source references
	DefaultDueWindow time.Duration // due date offset when none specified
}

// Builder constructs payloads. Deterministic given inputs and config,
// apart from the due-date default which is anchored to now.
type Builder struct {
	cfg Config
	now func() time.Time
}

// NewBuilder creates a builder. A zero due window defaults to seven
// days.
func NewBuilder(cfg Config) *Builder {
	if cfg.DefaultDueWindow <= 0 {
		cfg.DefaultDueWindow = 7 * 24 * time.Hour
	}
	return &Builder{cfg: cfg, now: time.Now}
}

// Build produces the payload for a decision or rejects it with a
// ValidationError listing every missing required field.
func (b *Builder) Build(sig domain.Signal, d domain.Decision) (Payload, error) {
	switch d.TargetPlatform {
	case domain.PlatformTaskTracker:
		return b.buildTask(sig, d)
	case domain.PlatformChat:
		return b.buildNotification(sig, d)
	case domain.PlatformFilesystem:
		return b.buildDocument(sig, d)
	case domain.PlatformSpreadsheet:
		return b.buildCard(sig, d)
	case domain.PlatformCalendar:
		return b.buildMeeting(sig, d)
	case domain.PlatformNone:
		return Payload{Platform: d.TargetPlatform, Action: d.Action, Fields: map[string]string{}}, nil
	default:
		return Payload{}, fmt.Errorf("payload: unknown platform %q", d.TargetPlatform)
	}
}

func (b *Builder) buildTask(sig domain.Signal, d domain.Decision) (Payload, error) {
	var missing []string
	var warnings []string
	fields := map[string]string{}

	title := d.Params["title"]
	if title == "" {
		title = sig.Subject
	}
	if strings.TrimSpace(title) == "" {
		missing = append(missing, "title")
	}
	fields["title"] = title

	description := d.Params["description"]
	if description == "" {
		description = sig.Body
		warnings = append(warnings, "description defaulted to signal body")
	}
	fields["description"] = RenderPlain(description)

	fields["priority"] = fmt.Sprintf("%d", d.Priority)
	fields["status"] = "Not Started"

	due := d.Params["due_date"]
	if due == "" {
		due = b.now().Add(b.cfg.DefaultDueWindow).Format(time.RFC3339)
		warnings = append(warnings, "due_date defaulted to +"+formatWindow(b.cfg.DefaultDueWindow))
	}
	fields["due_date"] = due

	fields["source"] = string(sig.Source)
	if assignee := d.Params["assignee"]; assignee != "" {
		fields["assignee"] = assignee
	}
	if labels := d.Params["labels"]; labels != "" {
		fields["labels"] = labels
	}

	if len(missing) > 0 {
		return Payload{}, &ValidationError{Platform: d.TargetPlatform, MissingFields: sortFields(missing)}
	}
	return Payload{Platform: d.TargetPlatform, Action: d.Action, Fields: fields, Warnings: warnings}, nil
}

func (b *Builder) buildNotification(sig domain.Signal, d domain.Decision) (Payload, error) {
	var missing []string
	var warnings []string
	fields := map[string]string{}

	channel := d.Params["channel"]
	if channel == "" {
		channel = b.cfg.DefaultChannel
		if channel == "" {
			missing = append(missing, "channel")
		} else {
			warnings = append(warnings, "channel defaulted to configured destination")
		}
	}
	fields["channel"] = channel

	header := d.Params["header"]
	if header == "" {
		header = sig.Subject
	}
	if strings.TrimSpace(header) == "" {
		missing = append(missing, "header")
	}
	fields["header"] = header

	body := d.Params["body"]
	if body == "" {
		body = sig.Body
	}
	fields["body"] = RenderPlain(body)
	fields["context"] = fmt.Sprintf("from %s via %s", sig.Sender, sig.Source)

	if link := d.Params["link"]; link != "" {
		fields["link"] = link
	}
	if sig.ThreadRef != "" {
		fields["thread_ref"] = sig.ThreadRef
	}

	if len(missing) > 0 {
		return Payload{}, &ValidationError{Platform: d.TargetPlatform, MissingFields: sortFields(missing)}
	}
	return Payload{Platform: d.TargetPlatform, Action: d.Action, Fields: fields, Warnings: warnings}, nil
}

func (b *Builder) buildDocument(sig domain.Signal, d domain.Decision) (Payload, error) {
	var missing []string
	var warnings []string
	fields := map[string]string{}

	folder := d.Params["folder"]
	if folder == "" {
		folder = b.cfg.DefaultFolder
		if folder == "" {
			missing = append(missing, "folder")
		} else {
			warnings = append(warnings, "folder defaulted to configured container")
		}
	}
	fields["folder"] = folder

	if d.Params["file_id"] == "" {
		missing = append(missing, "file_id")
	}
	fields["file_id"] = d.Params["file_id"]

	name := d.Params["file_name"]
	if name == "" {
		missing = append(missing, "file_name")
	}
	fields["file_name"] = name

	description := d.Params["description"]
	if description == "" {
		description = sig.Subject
		warnings = append(warnings, "description defaulted to signal subject")
	}
	fields["description"] = description

	if len(missing) > 0 {
		return Payload{}, &ValidationError{Platform: d.TargetPlatform, MissingFields: sortFields(missing)}
	}
	return Payload{Platform: d.TargetPlatform, Action: d.Action, Fields: fields, Warnings: warnings}, nil
}

func (b *Builder) buildCard(sig domain.Signal, d domain.Decision) (Payload, error) {
	var missing []string
	fields := map[string]string{}

	title := d.Params["title"]
	if title == "" {
		title = sig.Subject
	}
	if strings.TrimSpace(title) == "" {
		missing = append(missing, "title")
	}
	fields["title"] = title
	fields["label"] = priorityLabel(d.Priority)
	if d.Priority <= 2 {
		fields["position"] = "top"
	} else {
		fields["position"] = "bottom"
	}
	if b.cfg.BoardSourceBase != "" {
		fields["source_url"] = strings.TrimRight(b.cfg.BoardSourceBase, "/") + "/" + sig.ID
	}

	if len(missing) > 0 {
		return Payload{}, &ValidationError{Platform: d.TargetPlatform, MissingFields: sortFields(missing)}
	}
	return Payload{Platform: d.TargetPlatform, Action: d.Action, Fields: fields}, nil
}

func (b *Builder) buildMeeting(sig domain.Signal, d domain.Decision) (Payload, error) {
	var missing []string
	var warnings []string
	fields := map[string]string{}

	title := d.Params["title"]
	if title == "" {
		title = sig.Subject
	}
	if strings.TrimSpace(title) == "" {
		missing = append(missing, "title")
	}
	fields["title"] = title
	fields["description"] = RenderPlain(sig.Body)
	fields["organizer"] = sig.Sender

	when := d.Params["when"]
	if when == "" {
		warnings = append(warnings, "when left unset for scheduler to propose")
	} else {
		fields["when"] = when
	}

	if len(missing) > 0 {
		return Payload{}, &ValidationError{Platform: d.TargetPlatform, MissingFields: sortFields(missing)}
	}
	return Payload{Platform: d.TargetPlatform, Action: d.Action, Fields: fields, Warnings: warnings}, nil
}

func priorityLabel(p int) string {
	switch p {
	case 1:
		return "urgent"
	case 2:
		return "high"
	case 3:
		return "medium"
	default:
		return "low"
	}
}

func sortFields(fields []string) []string {
	sort.Strings(fields)
	return fields
}

// formatWindow prints whole-day windows as "N days", anything else as
// a duration string.
func formatWindow(d time.Duration) string {
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	return d.String()
}
