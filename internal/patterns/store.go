package patterns

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store holds the current pattern set. Mutation happens only through
// Replace; readers get an independent snapshot.
type Store struct {
	mu  sync.RWMutex
	set Set
}

// NewStore creates a store with an empty pattern set.
func NewStore() *Store {
	return &Store{set: EmptySet()}
}

// Snapshot returns a deep copy of the current set.
func (s *Store) Snapshot() Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set.clone()
}

// Replace installs a freshly derived set.
func (s *Store) Replace(set Set) {
	s.mu.Lock()
	s.set = set.clone()
	s.mu.Unlock()
	log.Info().
		Int("senders", len(set.SenderPatterns)).
		Int("keywords", len(set.UrgencyKeywords)).
		Int("time_buckets", len(set.TimePatterns)).
		Int("affinities", len(set.CategoryActionAffinity)).
		Int("signals_analyzed", set.SignalsAnalyzed).
		Msg("patterns: snapshot replaced")
}

// SaveFile writes the current set as a snapshot file. The file is safe
// to truncate: patterns rederive from the feedback corpus.
func (s *Store) SaveFile(path string) error {
	set := s.Snapshot()
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("patterns: marshal snapshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("patterns: create snapshot dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("patterns: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("patterns: install snapshot: %w", err)
	}
	return nil
}

// LoadFile restores a snapshot from disk. A missing file leaves the
// store empty and is not an error.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("patterns: read snapshot: %w", err)
	}
	var set Set
	if err := json.Unmarshal(data, &set); err != nil {
		return fmt.Errorf("patterns: parse snapshot: %w", err)
	}
	if set.UrgencyKeywords == nil {
		set.UrgencyKeywords = map[string]KeywordPattern{}
	}
	if set.SenderPatterns == nil {
		set.SenderPatterns = map[string]SenderPattern{}
	}
	if set.TimePatterns == nil {
		set.TimePatterns = map[string]TimePattern{}
	}
	if set.CategoryActionAffinity == nil {
		set.CategoryActionAffinity = map[string]AffinityPattern{}
	}

	s.mu.Lock()
	s.set = set
	s.mu.Unlock()
	return nil
}

func (s Set) clone() Set {
	out := s
	out.UrgencyKeywords = make(map[string]KeywordPattern, len(s.UrgencyKeywords))
	for k, v := range s.UrgencyKeywords {
		out.UrgencyKeywords[k] = v
	}
	out.SenderPatterns = make(map[string]SenderPattern, len(s.SenderPatterns))
	for k, v := range s.SenderPatterns {
		out.SenderPatterns[k] = v
	}
	out.TimePatterns = make(map[string]TimePattern, len(s.TimePatterns))
	for k, v := range s.TimePatterns {
		out.TimePatterns[k] = v
	}
	out.CategoryActionAffinity = make(map[string]AffinityPattern, len(s.CategoryActionAffinity))
	for k, v := range s.CategoryActionAffinity {
		out.CategoryActionAffinity[k] = v
	}
	out.SubjectPatterns = append([]SubjectPattern(nil), s.SubjectPatterns...)
	return out
}
