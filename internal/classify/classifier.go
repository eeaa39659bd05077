package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/patterns"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/preprocess"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/prompts"
)

// maxBodyChars is the oversize cutoff. Bodies beyond it skip the oracle
// and classify as bulk information.
const maxBodyChars = 5000

// stricterInstruction is appended on the parse-failure retry.
const stricterInstruction = "\n\nYour previous response was not valid JSON. " +
	"Respond with ONLY the JSON object. No prose, no markdown fences."

// Result carries a classification plus how it was produced.
type Result struct {
	Classification  domain.Classification
	FromCache       bool
	TemplateVersion int
	Adjustment      patterns.Adjustment
}

// Classifier resolves signals to classifications through the oracle,
// with a fingerprint cache in front and at most one in-flight oracle
// call per fingerprint.
type Classifier struct {
	oracle    Oracle
	cache     *Cache
	registry  *prompts.Registry
	patterns  *patterns.Store
	estimator TokenEstimator
	timeout   time.Duration
	attempts  int
	backoff   time.Duration
	group     singleflight.Group

	oracleCalls   atomic.Int64
	oracleRetries atomic.Int64
	parseRetries  atomic.Int64
	parseFailures atomic.Int64
	shortCircuits atomic.Int64
}

// ClassifierOptions wires a Classifier.
type ClassifierOptions struct {
	Oracle    Oracle
	Cache     *Cache
	Registry  *prompts.Registry
	Patterns  *patterns.Store
	Estimator TokenEstimator
	Timeout   time.Duration

	// MaxAttempts bounds oracle transport retries per call; BaseBackoff
	// is the first retry delay, doubled per attempt.
	MaxAttempts int
	BaseBackoff time.Duration
}

// NewClassifier builds a classifier. Cache, registry, and pattern store
// are required; a nil estimator defaults to the char/4 rule.
func NewClassifier(opts ClassifierOptions) *Classifier {
	if opts.Estimator == nil {
		opts.Estimator = CharEstimator{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 250 * time.Millisecond
	}
	return &Classifier{
		oracle:    opts.Oracle,
		cache:     opts.Cache,
		registry:  opts.Registry,
		patterns:  opts.Patterns,
		estimator: opts.Estimator,
		timeout:   opts.Timeout,
		attempts:  opts.MaxAttempts,
		backoff:   opts.BaseBackoff,
	}
}

// Classify resolves one preprocessed signal. It never returns an error
// to the pipeline: oracle and parse failures degrade to a low-confidence
// fallback. Pattern adjustments are applied after the cache so newly
// learned patterns affect cached fingerprints too.
func (c *Classifier) Classify(ctx context.Context, pre preprocess.Result) Result {
	if short, ok := c.shortCircuit(pre); ok {
		c.shortCircuits.Add(1)
		return c.finish(short, pre, false, 0)
	}

	if cached, ok := c.cache.Get(pre.Fingerprint); ok {
		return c.finish(cached, pre, true, 0)
	}

	type flightResult struct {
		classification domain.Classification
		version        int
	}
	v, err, _ := c.group.Do(pre.Fingerprint, func() (interface{}, error) {
		// Re-check under the flight: a racing caller may have filled
		// the cache between our miss and the flight starting.
		if cached, ok := c.cache.Get(pre.Fingerprint); ok {
			return flightResult{cached, 0}, nil
		}
		classification, version, usable := c.invoke(ctx, pre)
		// Fallbacks stay out of the cache so the next signal with this
		// fingerprint consults the oracle again once it recovers.
		if usable {
			c.cache.Put(pre.Fingerprint, classification)
		}
		return flightResult{classification, version}, nil
	})
	if err != nil {
		// Unreachable: invoke never errors. Kept so a future refactor
		// cannot silently drop a signal.
		return c.finish(fallbackClassification("oracle_error"), pre, false, 0)
	}
	fr := v.(flightResult)
	return c.finish(fr.classification, pre, false, fr.version)
}

func (c *Classifier) finish(classification domain.Classification, pre preprocess.Result, fromCache bool, version int) Result {
	adjusted, adj := c.patterns.Snapshot().Apply(classification, strings.ToLower(pre.Signal.Sender), pre.Keywords)
	return Result{
		Classification:  adjusted,
		FromCache:       fromCache,
		TemplateVersion: version,
		Adjustment:      adj,
	}
}

// shortCircuit handles degenerate bodies without an oracle round trip.
func (c *Classifier) shortCircuit(pre preprocess.Result) (domain.Classification, bool) {
	if strings.TrimSpace(pre.Signal.Body) == "" {
		cl := fallbackClassification("empty_body")
		return cl, true
	}
	if len(pre.Signal.Body) > maxBodyChars {
		return domain.Classification{
			Urgency:          domain.UrgencyMedium,
			Importance:       domain.ImportanceMedium,
			Category:         domain.CategoryInformation,
			Confidence:       0.50,
			Reasoning:        "oversize_body",
			SuggestedActions: []domain.ActionType{domain.ActionSendNotification},
		}, true
	}
	return domain.Classification{}, false
}

// invoke runs the oracle with the selected template and parses the
// response, retrying once with a stricter instruction before falling
// back. The bool reports whether the classification came from the
// oracle; fallbacks return false and must not be cached.
func (c *Classifier) invoke(ctx context.Context, pre preprocess.Result) (domain.Classification, int, bool) {
	tmpl := c.registry.Select()
	system := tmpl.Render()
	user := renderSignal(pre)

	log.Debug().
		Str("fingerprint", pre.Fingerprint).
		Int("template_version", tmpl.Version).
		Int("est_tokens", c.estimator.Estimate(system+user)).
		Msg("classify: invoking oracle")

	raw, err := c.chat(ctx, system, user)
	if err != nil {
		log.Warn().Err(err).Str("fingerprint", pre.Fingerprint).Msg("classify: oracle unavailable")
		return fallbackClassification("oracle_error"), tmpl.Version, false
	}

	classification, err := parseClassification(raw)
	if err == nil {
		return classification, tmpl.Version, true
	}

	c.parseRetries.Add(1)
	log.Debug().Err(err).Str("fingerprint", pre.Fingerprint).Msg("classify: parse failed, retrying")
	raw, retryErr := c.chat(ctx, system+stricterInstruction, user)
	if retryErr == nil {
		if classification, err = parseClassification(raw); err == nil {
			return classification, tmpl.Version, true
		}
	}

	c.parseFailures.Add(1)
	log.Warn().Str("fingerprint", pre.Fingerprint).Msg("classify: falling back after parse failure")
	return fallbackClassification("parse_failure"), tmpl.Version, false
}

// chat calls the oracle, retrying transport errors with exponential
// backoff up to the attempt budget. Each attempt gets its own timeout;
// the last error surfaces once attempts are exhausted. Cancellation of
// the parent context stops the retry loop immediately.
func (c *Classifier) chat(ctx context.Context, system, user string) (string, error) {
	backoff := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			c.oracleRetries.Add(1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			backoff *= 2
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		c.oracleCalls.Add(1)
		raw, err := c.oracle.Chat(callCtx, system, user)
		cancel()
		if err == nil {
			return raw, nil
		}
		lastErr = err
		log.Debug().Err(err).Int("attempt", attempt).Msg("classify: oracle call failed")
	}
	return "", lastErr
}

func fallbackClassification(reason string) domain.Classification {
	return domain.Classification{
		Urgency:          domain.UrgencyMedium,
		Importance:       domain.ImportanceMedium,
		Category:         domain.CategoryInformation,
		Confidence:       0.30,
		Reasoning:        reason,
		SuggestedActions: []domain.ActionType{domain.ActionClarify},
	}
}

func renderSignal(pre preprocess.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\nFrom: %s\nSubject: %s\n", pre.Signal.Source, pre.Signal.Sender, pre.Signal.Subject)
	if len(pre.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(pre.Keywords, ", "))
	}
	fmt.Fprintf(&b, "Body:\n%s\n", pre.Signal.Body)
	return b.String()
}

// oracleEnvelope is the JSON shape the prompt asks the oracle for.
type oracleEnvelope struct {
	Urgency           string   `json:"urgency"`
	Importance        string   `json:"importance"`
	Category          string   `json:"category"`
	Confidence        float64  `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
	SuggestedActions  []string `json:"suggested_actions"`
	RequiresImmediate bool     `json:"requires_immediate"`
}

func parseClassification(raw string) (domain.Classification, error) {
	cleaned := stripFences(raw)
	// Tolerate prose around the object by isolating the outermost braces.
	if start := strings.Index(cleaned, "{"); start >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > start {
			cleaned = cleaned[start : end+1]
		}
	}

	var env oracleEnvelope
	if err := json.Unmarshal([]byte(cleaned), &env); err != nil {
		return domain.Classification{}, fmt.Errorf("classify: parse response: %w", err)
	}

	urgency := domain.Urgency(strings.ToLower(env.Urgency))
	if !urgency.Valid() {
		return domain.Classification{}, fmt.Errorf("classify: invalid urgency %q", env.Urgency)
	}
	importance := domain.Importance(strings.ToLower(env.Importance))
	if !importance.Valid() {
		return domain.Classification{}, fmt.Errorf("classify: invalid importance %q", env.Importance)
	}
	category := domain.Category(strings.ToLower(env.Category))
	if !category.Valid() {
		return domain.Classification{}, fmt.Errorf("classify: invalid category %q", env.Category)
	}
	if env.Confidence < 0 || env.Confidence > 1 {
		return domain.Classification{}, fmt.Errorf("classify: confidence %.2f out of range", env.Confidence)
	}

	var actions []domain.ActionType
	for _, a := range env.SuggestedActions {
		at := domain.ActionType(strings.ToLower(a))
		if at.Valid() {
			actions = append(actions, at)
		}
	}

	return domain.Classification{
		Urgency:           urgency,
		Importance:        importance,
		Category:          category,
		Confidence:        env.Confidence,
		Reasoning:         env.Reasoning,
		SuggestedActions:  actions,
		RequiresImmediate: env.RequiresImmediate,
	}, nil
}

// ClassifierStats snapshots classifier counters.
type ClassifierStats struct {
	OracleCalls   int64      `json:"oracle_calls"`
	OracleRetries int64      `json:"oracle_retries"`
	ParseRetries  int64      `json:"parse_retries"`
	ParseFailures int64      `json:"parse_failures"`
	ShortCircuits int64      `json:"short_circuits"`
	Cache         CacheStats `json:"cache"`
}

// Stats reports counters plus the cache snapshot.
func (c *Classifier) Stats() ClassifierStats {
	return ClassifierStats{
		OracleCalls:   c.oracleCalls.Load(),
		OracleRetries: c.oracleRetries.Load(),
		ParseRetries:  c.parseRetries.Load(),
		ParseFailures: c.parseFailures.Load(),
		ShortCircuits: c.shortCircuits.Load(),
		Cache:         c.cache.Stats(),
	}
}
