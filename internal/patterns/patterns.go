// Package patterns derives learned regularities (sender, keyword,
// time-of-day, category→action) from the feedback corpus and applies
// them as bounded classification adjustments.
//
// Derivation is idempotent: the same corpus always produces the same
// pattern set. The store is append-only from the tracker's point of view
// and read-only during classification and decision.
package patterns

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
)

// SenderPattern summarizes the history of one sender.
type SenderPattern struct {
	Sender           string            `json:"sender"`
	DominantCategory domain.Category   `json:"dominant_category"`
	AvgUrgency       float64           `json:"avg_urgency"` // encoded 1..4
	PreferredAction  domain.ActionType `json:"preferred_action"`
	SuccessRate      float64           `json:"success_rate"`
	Support          int               `json:"support"`
	LastSeen         time.Time         `json:"last_seen"`
}

// KeywordPattern records a term with a measured urgency boost.
type KeywordPattern struct {
	Keyword      string    `json:"keyword"`
	Occurrences  int       `json:"occurrences"`
	SuccessRate  float64   `json:"success_rate"`
	UrgencyBoost int       `json:"urgency_boost"` // urgency steps, >= 1
	LastSeen     time.Time `json:"last_seen"`
}

// TimePattern marks an hour-of-day × day-of-week bucket whose success
// rate clears the baseline by the configured lift.
type TimePattern struct {
	Hour        int          `json:"hour"`
	Weekday     time.Weekday `json:"weekday"`
	SuccessRate float64      `json:"success_rate"`
	Baseline    float64      `json:"baseline"`
	Support     int          `json:"support"`
	LastSeen    time.Time    `json:"last_seen"`
}

// AffinityPattern marks a (category, action) pair that consistently
// succeeds.
type AffinityPattern struct {
	Category    domain.Category   `json:"category"`
	Action      domain.ActionType `json:"action"`
	SuccessRate float64           `json:"success_rate"`
	Support     int               `json:"support"`
	LastSeen    time.Time         `json:"last_seen"`
}

// SubjectPattern is a derived subject regex with its evidence.
type SubjectPattern struct {
	Pattern     string  `json:"pattern"`
	Support     int     `json:"support"`
	SuccessRate float64 `json:"success_rate"`
}

// Set is one coherent pattern snapshot. All maps key on a canonical
// string.
type Set struct {
	UrgencyKeywords        map[string]KeywordPattern  `json:"urgency_keywords"`
	SenderPatterns         map[string]SenderPattern   `json:"sender_patterns"`
	TimePatterns           map[string]TimePattern     `json:"time_patterns"`
	CategoryActionAffinity map[string]AffinityPattern `json:"category_action_affinity"`
	SubjectPatterns        []SubjectPattern           `json:"subject_patterns"`
	DerivedAt              time.Time                  `json:"derived_at"`
	SignalsAnalyzed        int                        `json:"signals_analyzed"`
}

// EmptySet returns a usable zero-value snapshot.
func EmptySet() Set {
	return Set{
		UrgencyKeywords:        map[string]KeywordPattern{},
		SenderPatterns:         map[string]SenderPattern{},
		TimePatterns:           map[string]TimePattern{},
		CategoryActionAffinity: map[string]AffinityPattern{},
	}
}

// TimeKey is the canonical key for an hour × weekday bucket.
func TimeKey(hour int, weekday time.Weekday) string {
	return fmt.Sprintf("%02d-%s", hour, weekday)
}

// AffinityKey is the canonical key for a (category, action) pair.
func AffinityKey(category domain.Category, action domain.ActionType) string {
	return string(category) + "|" + string(action)
}

// Thresholds parameterize derivation. Zero values take spec defaults.
type Thresholds struct {
	SenderMin   int     // records per sender (default 10)
	KeywordMin  int     // signals per keyword (default 5)
	TimeMin     int     // signals per time bucket (default 20)
	TimeLift    float64 // success-rate lift over baseline (default 0.20)
	AffinityMin int     // records per (category, action) (default 10)
	AffinityPct float64 // required success rate (default 0.80)
}

func (t Thresholds) withDefaults() Thresholds {
	if t.SenderMin <= 0 {
		t.SenderMin = 10
	}
	if t.KeywordMin <= 0 {
		t.KeywordMin = 5
	}
	if t.TimeMin <= 0 {
		t.TimeMin = 20
	}
	if t.TimeLift <= 0 {
		t.TimeLift = 0.20
	}
	if t.AffinityMin <= 0 {
		t.AffinityMin = 10
	}
	if t.AffinityPct <= 0 {
		t.AffinityPct = 0.80
	}
	return t
}

// Derive rebuilds a pattern set from the full feedback corpus. Pure:
// same corpus in, same set out (DerivedAt aside).
func Derive(records []domain.FeedbackRecord, th Thresholds) Set {
	th = th.withDefaults()
	set := EmptySet()
	set.DerivedAt = time.Now().UTC()
	set.SignalsAnalyzed = len(records)
	if len(records) == 0 {
		return set
	}

	deriveSenders(records, th, &set)
	deriveKeywords(records, th, &set)
	deriveTimeBuckets(records, th, &set)
	deriveAffinity(records, th, &set)
	deriveSubjects(records, th, &set)
	return set
}

func isSuccess(o domain.Outcome) bool {
	return o == domain.OutcomeSuccess
}

func deriveSenders(records []domain.FeedbackRecord, th Thresholds, set *Set) {
	type agg struct {
		categories map[domain.Category]int
		actions    map[domain.ActionType]int
		urgencySum int
		successes  int
		total      int
		lastSeen   time.Time
	}
	bySender := map[string]*agg{}

	for _, r := range records {
		if r.Sender == "" {
			continue
		}
		a := bySender[r.Sender]
		if a == nil {
			a = &agg{categories: map[domain.Category]int{}, actions: map[domain.ActionType]int{}}
			bySender[r.Sender] = a
		}
		a.categories[r.Classification.Category]++
		a.actions[r.Decision.Action]++
		a.urgencySum += r.Classification.Urgency.Level()
		if isSuccess(r.Outcome) {
			a.successes++
		}
		a.total++
		if r.Timestamp.After(a.lastSeen) {
			a.lastSeen = r.Timestamp
		}
	}

	for sender, a := range bySender {
		if a.total < th.SenderMin {
			continue
		}
		set.SenderPatterns[sender] = SenderPattern{
			Sender:           sender,
			DominantCategory: dominantCategory(a.categories),
			AvgUrgency:       float64(a.urgencySum) / float64(a.total),
			PreferredAction:  dominantAction(a.actions),
			SuccessRate:      float64(a.successes) / float64(a.total),
			Support:          a.total,
			LastSeen:         a.lastSeen,
		}
	}
}

func deriveKeywords(records []domain.FeedbackRecord, th Thresholds, set *Set) {
	corpusUrgencySum := 0
	for _, r := range records {
		corpusUrgencySum += r.Classification.Urgency.Level()
	}
	corpusAvg := float64(corpusUrgencySum) / float64(len(records))

	type agg struct {
		occurrences int
		urgencySum  int
		successes   int
		lastSeen    time.Time
	}
	byKeyword := map[string]*agg{}
	for _, r := range records {
		for _, kw := range r.Keywords {
			a := byKeyword[kw]
			if a == nil {
				a = &agg{}
				byKeyword[kw] = a
			}
			a.occurrences++
			a.urgencySum += r.Classification.Urgency.Level()
			if isSuccess(r.Outcome) {
				a.successes++
			}
			if r.Timestamp.After(a.lastSeen) {
				a.lastSeen = r.Timestamp
			}
		}
	}

	for kw, a := range byKeyword {
		if a.occurrences < th.KeywordMin {
			continue
		}
		boost := float64(a.urgencySum)/float64(a.occurrences) - corpusAvg
		if boost < 0.5 {
			continue // no measured boost effect
		}
		set.UrgencyKeywords[kw] = KeywordPattern{
			Keyword:      kw,
			Occurrences:  a.occurrences,
			SuccessRate:  float64(a.successes) / float64(a.occurrences),
			UrgencyBoost: int(math.Max(1, math.Round(boost))),
			LastSeen:     a.lastSeen,
		}
	}
}

func deriveTimeBuckets(records []domain.FeedbackRecord, th Thresholds, set *Set) {
	successes := 0
	for _, r := range records {
		if isSuccess(r.Outcome) {
			successes++
		}
	}
	baseline := float64(successes) / float64(len(records))

	type agg struct {
		successes int
		total     int
		lastSeen  time.Time
	}
	byBucket := map[string]*agg{}
	hourOf := map[string]int{}
	weekdayOf := map[string]time.Weekday{}

	for _, r := range records {
		ts := r.Timestamp.UTC()
		key := TimeKey(ts.Hour(), ts.Weekday())
		a := byBucket[key]
		if a == nil {
			a = &agg{}
			byBucket[key] = a
			hourOf[key] = ts.Hour()
			weekdayOf[key] = ts.Weekday()
		}
		a.total++
		if isSuccess(r.Outcome) {
			a.successes++
		}
		if r.Timestamp.After(a.lastSeen) {
			a.lastSeen = r.Timestamp
		}
	}

	for key, a := range byBucket {
		if a.total < th.TimeMin {
			continue
		}
		rate := float64(a.successes) / float64(a.total)
		if rate < baseline+th.TimeLift {
			continue
		}
		set.TimePatterns[key] = TimePattern{
			Hour:        hourOf[key],
			Weekday:     weekdayOf[key],
			SuccessRate: rate,
			Baseline:    baseline,
			Support:     a.total,
			LastSeen:    a.lastSeen,
		}
	}
}

func deriveAffinity(records []domain.FeedbackRecord, th Thresholds, set *Set) {
	type agg struct {
		successes int
		total     int
		lastSeen  time.Time
	}
	byPair := map[string]*agg{}
	catOf := map[string]domain.Category{}
	actOf := map[string]domain.ActionType{}

	for _, r := range records {
		key := AffinityKey(r.Classification.Category, r.Decision.Action)
		a := byPair[key]
		if a == nil {
			a = &agg{}
			byPair[key] = a
			catOf[key] = r.Classification.Category
			actOf[key] = r.Decision.Action
		}
		a.total++
		if isSuccess(r.Outcome) {
			a.successes++
		}
		if r.Timestamp.After(a.lastSeen) {
			a.lastSeen = r.Timestamp
		}
	}

	for key, a := range byPair {
		if a.total < th.AffinityMin {
			continue
		}
		rate := float64(a.successes) / float64(a.total)
		if rate < th.AffinityPct {
			continue
		}
		set.CategoryActionAffinity[key] = AffinityPattern{
			Category:    catOf[key],
			Action:      actOf[key],
			SuccessRate: rate,
			Support:     a.total,
			LastSeen:    a.lastSeen,
		}
	}
}

// deriveSubjects emits anchored regexes for leading subject tokens that
// recur with measured success, sorted for deterministic output.
func deriveSubjects(records []domain.FeedbackRecord, th Thresholds, set *Set) {
	type agg struct {
		successes int
		total     int
	}
	byToken := map[string]*agg{}

	for _, r := range records {
		token := leadingToken(r.Subject)
		if token == "" {
			continue
		}
		a := byToken[token]
		if a == nil {
			a = &agg{}
			byToken[token] = a
		}
		a.total++
		if isSuccess(r.Outcome) {
			a.successes++
		}
	}

	for token, a := range byToken {
		if a.total < th.KeywordMin {
			continue
		}
		set.SubjectPatterns = append(set.SubjectPatterns, SubjectPattern{
			Pattern:     `(?i)^` + token + `\b`,
			Support:     a.total,
			SuccessRate: float64(a.successes) / float64(a.total),
		})
	}
	sort.Slice(set.SubjectPatterns, func(i, j int) bool {
		return set.SubjectPatterns[i].Pattern < set.SubjectPatterns[j].Pattern
	})
}

func leadingToken(subject string) string {
	start := -1
	for i, r := range subject {
		isWord := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if start == -1 {
			if isWord {
				start = i
			}
			continue
		}
		if !isWord {
			return lowerASCII(subject[start:i])
		}
	}
	if start == -1 {
		return ""
	}
	return lowerASCII(subject[start:])
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

func dominantCategory(counts map[domain.Category]int) domain.Category {
	var best domain.Category
	bestN := -1
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys) // deterministic tie-break
	for _, k := range keys {
		if counts[domain.Category(k)] > bestN {
			best = domain.Category(k)
			bestN = counts[domain.Category(k)]
		}
	}
	return best
}

func dominantAction(counts map[domain.ActionType]int) domain.ActionType {
	var best domain.ActionType
	bestN := -1
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		if counts[domain.ActionType(k)] > bestN {
			best = domain.ActionType(k)
			bestN = counts[domain.ActionType(k)]
		}
	}
	return best
}
