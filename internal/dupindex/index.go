// Package dupindex keeps an in-memory corpus of recent task titles and
// fuzzy-matches candidates against it to suppress redundant task
// creation.
package dupindex

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// titleStopwords are removed before similarity comparison. Fixed set;
// changing it invalidates stored normalized forms.
var titleStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "for": {}, "in": {}, "of": {},
	"on": {}, "or": {}, "the": {}, "to": {}, "with": {},
}

// Entry is one indexed task title.
type Entry struct {
	Title      string    `json:"title"`
	Normalized string    `json:"normalized"`
	Ref        string    `json:"ref"` // existing task reference
	AddedAt    time.Time `json:"added_at"`
}

// Match reports the best candidate found for a lookup.
type Match struct {
	Ref   string  `json:"ref"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Backing is an optional store wrapper consulted during lookup. Errors
// from it are treated as "no candidates": the index fails open and never
// blocks task creation.
type Backing interface {
	Candidates(ctx context.Context) ([]Entry, error)
}

// Index is the bounded fuzzy-match corpus.
type Index struct {
	mu        sync.RWMutex
	entries   []Entry
	max       int
	threshold float64
	backing   Backing

	lookups  uint64
	hits     uint64
	failOpen uint64
}

// Stats is a point-in-time snapshot of index counters.
type Stats struct {
	Size       int     `json:"size"`
	Lookups    uint64  `json:"lookups"`
	Hits       uint64  `json:"hits"`
	FailOpen   uint64  `json:"fail_open"`
	Threshold  float64 `json:"threshold"`
	CorpusSize int     `json:"corpus_size"`
}

// Options bounds the index.
type Options struct {
	CorpusSize int
	Threshold  float64
	Backing    Backing
}

// New creates a duplicate index.
func New(opts Options) *Index {
	if opts.CorpusSize <= 0 {
		opts.CorpusSize = 500
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 0.85
	}
	return &Index{
		max:       opts.CorpusSize,
		threshold: opts.Threshold,
		backing:   opts.Backing,
	}
}

// NormalizeTitle lowercases, strips punctuation and the fixed stopword
// set, and collapses whitespace. Idempotent:
// NormalizeTitle(NormalizeTitle(x)) == NormalizeTitle(x).
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	words := strings.Fields(b.String())
	out := words[:0]
	for _, w := range words {
		if _, stop := titleStopwords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

// Similarity computes 1 − editDistance/maxLen over already-normalized
// strings. Both the distance and maxLen count runes. Two empty strings
// are identical (1.0).
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(a, b))/float64(maxLen)
}

// levenshtein computes edit distance with a two-row matrix.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// Add records a task title in the corpus, evicting the oldest entry when
// full.
func (ix *Index) Add(title, ref string) {
	entry := Entry{
		Title:      title,
		Normalized: NormalizeTitle(title),
		Ref:        ref,
		AddedAt:    time.Now(),
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = append(ix.entries, entry)
	if len(ix.entries) > ix.max {
		ix.entries = ix.entries[len(ix.entries)-ix.max:]
	}
}

// Lookup returns the best match for a candidate title. A backing-store
// error fails open: the in-memory corpus alone decides, and the error is
// logged, never returned.
func (ix *Index) Lookup(ctx context.Context, title string) (Match, bool) {
	normalized := NormalizeTitle(title)

	ix.mu.Lock()
	ix.lookups++
	candidates := append([]Entry(nil), ix.entries...)
	ix.mu.Unlock()

	if ix.backing != nil {
		extra, err := ix.backing.Candidates(ctx)
		if err != nil {
			ix.mu.Lock()
			ix.failOpen++
			ix.mu.Unlock()
			log.Warn().Err(err).Msg("dupindex: backing store lookup failed, failing open")
		} else {
			candidates = append(candidates, extra...)
		}
	}

	var best Match
	found := false
	for _, e := range candidates {
		score := Similarity(normalized, e.Normalized)
		if !found || score > best.Score {
			best = Match{Ref: e.Ref, Title: e.Title, Score: score}
			found = true
		}
	}
	return best, found
}

// IsDuplicate reports whether the candidate title matches an indexed
// title at or above the configured threshold.
func (ix *Index) IsDuplicate(ctx context.Context, title string) (Match, bool) {
	match, found := ix.Lookup(ctx, title)
	if !found || match.Score < ix.threshold {
		return Match{}, false
	}
	ix.mu.Lock()
	ix.hits++
	ix.mu.Unlock()
	return match, true
}

// Threshold returns the configured duplicate threshold.
func (ix *Index) Threshold() float64 { return ix.threshold }

// Size returns the corpus size.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Stats returns current index counters.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Stats{
		Size:       len(ix.entries),
		Lookups:    ix.lookups,
		Hits:       ix.hits,
		FailOpen:   ix.failOpen,
		Threshold:  ix.threshold,
		CorpusSize: ix.max,
	}
}
