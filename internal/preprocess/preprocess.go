// Package preprocess normalizes signals ahead of classification. It is a
// pure stage: deterministic, no I/O, no clock reads.
package preprocess

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
)

// bodyPrefixLen bounds how much of the body participates in the
// fingerprint so trailing boilerplate does not split cache keys.
const bodyPrefixLen = 500

// maxKeywords bounds extraction output.
const maxKeywords = 20

// stopwords excluded from keyword extraction.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"he": {}, "her": {}, "his": {}, "i": {}, "if": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "me": {}, "my": {}, "no": {}, "not": {}, "of": {},
	"on": {}, "or": {}, "our": {}, "she": {}, "so": {}, "that": {},
	"the": {}, "their": {}, "them": {}, "then": {}, "there": {},
	"they": {}, "this": {}, "to": {}, "us": {}, "was": {}, "we": {},
	"were": {}, "will": {}, "with": {}, "you": {}, "your": {},
}

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// Common explicit date shapes: 2024-03-07, 03/07/2024, March 7 2024, 7 March 2024.
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	wordDateRe  = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
)

// Entities are the structured values pulled out of a signal.
type Entities struct {
	Emails []string    `json:"emails,omitempty"`
	Dates  []time.Time `json:"dates,omitempty"`
}

// Result is the preprocessed view of one signal.
type Result struct {
	Signal            domain.Signal `json:"signal"`
	NormalizedSubject string        `json:"normalized_subject"`
	NormalizedBody    string        `json:"normalized_body"`
	Keywords          []string      `json:"keywords"`
	Entities          Entities      `json:"entities"`
	Fingerprint       string        `json:"fingerprint"`
}

// Run preprocesses one signal.
func Run(sig domain.Signal) Result {
	subject := normalize(sig.Subject)
	body := normalize(sig.Body)

	return Result{
		Signal:            sig,
		NormalizedSubject: subject,
		NormalizedBody:    body,
		Keywords:          extractKeywords(subject + " " + body),
		Entities: Entities{
			Emails: extractEmails(sig.Subject + " " + sig.Body),
			Dates:  extractDates(sig.Subject + " " + sig.Body),
		},
		Fingerprint: Fingerprint(sig),
	}
}

// Fingerprint is the deterministic cache key over the normalized
// (source, subject, body prefix, sender) tuple. Signals sharing a
// fingerprint must classify identically when served from cache.
func Fingerprint(sig domain.Signal) string {
	body := normalize(sig.Body)
	if len(body) > bodyPrefixLen {
		body = body[:bodyPrefixLen]
	}
	h := sha256.New()
	h.Write([]byte(string(sig.Source)))
	h.Write([]byte{0})
	h.Write([]byte(normalize(sig.Subject)))
	h.Write([]byte{0})
	h.Write([]byte(body))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(sig.Sender))))
	return hex.EncodeToString(h.Sum(nil))
}

// normalize lowercases and collapses whitespace.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}

// extractKeywords tokenizes, strips stopwords and short tokens, and
// returns the distinct keywords in first-seen order.
func extractKeywords(text string) []string {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(tokens))
	var out []string
	for _, tok := range tokens {
		if len(tok) < 3 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// extractEmails returns distinct email-like entities, lowercased and
// sorted for determinism.
func extractEmails(text string) []string {
	matches := emailRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		m = strings.ToLower(m)
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

var monthByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// extractDates parses explicit dates in ISO, slash (US month-first), and
// written-month forms. Invalid calendar dates are skipped.
func extractDates(text string) []time.Time {
	var out []time.Time
	add := func(year int, month time.Month, day int) {
		if month < time.January || month > time.December || day < 1 || day > 31 {
			return
		}
		t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		// time.Date normalizes overflow (e.g. Feb 30); reject those.
		if t.Day() != day || t.Month() != month {
			return
		}
		out = append(out, t)
	}

	for _, m := range isoDateRe.FindAllStringSubmatch(text, -1) {
		add(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]))
	}
	for _, m := range slashDateRe.FindAllStringSubmatch(text, -1) {
		add(atoi(m[3]), time.Month(atoi(m[1])), atoi(m[2]))
	}
	for _, m := range wordDateRe.FindAllStringSubmatch(text, -1) {
		add(atoi(m[3]), monthByName[strings.ToLower(m[1])], atoi(m[2]))
	}

	if len(out) == 0 {
		return nil
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return dedupeTimes(out)
}

func dedupeTimes(ts []time.Time) []time.Time {
	out := ts[:1]
	for _, t := range ts[1:] {
		if !t.Equal(out[len(out)-1]) {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
