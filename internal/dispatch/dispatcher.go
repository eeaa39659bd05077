// Package dispatch executes approved decisions against their target
// platforms. Each platform gets an independent token-bucket rate limit
// and circuit breaker; transient failures retry with exponential
// backoff, permanent ones surface immediately.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	cb "github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/dupindex"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/payload"
)

// Executor performs one decision's payload on a platform. Executors must
// be idempotent under retry of identical inputs.
type Executor interface {
	Name() string
	Execute(ctx context.Context, p payload.Payload) (map[string]string, error)
}

// ExecutionResult is the outcome of one dispatched decision.
type ExecutionResult struct {
	DecisionID    string            `json:"decision_id"`
	Success       bool              `json:"success"`
	Skipped       bool              `json:"skipped"`
	Data          map[string]string `json:"data,omitempty"`
	Error         string            `json:"error,omitempty"`
	MissingFields []string          `json:"missing_fields,omitempty"`
	Attempts      int               `json:"attempts"`
	ExecutionTime time.Duration     `json:"execution_time"`
	ExecutorUsed  string            `json:"executor_used"`
}

// BatchResult partitions a batch into per-item outcomes. Failures never
// abort siblings.
type BatchResult struct {
	Successful []ExecutionResult `json:"successful"`
	Failed     []ExecutionResult `json:"failed"`
}

// platformState couples one executor with its limiter and breaker.
type platformState struct {
	executor Executor
	limiter  *rate.Limiter
	breaker  *cb.CircuitBreaker
}

// Dispatcher routes decisions to registered executors.
type Dispatcher struct {
	mu        sync.RWMutex
	platforms map[domain.Platform]*platformState

	builder     *payload.Builder
	dup         *dupindex.Index
	maxAttempts int
	baseBackoff time.Duration
	execTimeout time.Duration

	statsMu   sync.Mutex
	dispatched int64
	succeeded  int64
	failed     int64
	skipped    int64
	retried    int64
}

// Options configures a Dispatcher.
type Options struct {
	Builder     *payload.Builder
	Duplicates  *dupindex.Index
	MaxAttempts int           // default 3
	BaseBackoff time.Duration // default 500ms, doubles per retry
	ExecTimeout time.Duration // per-attempt timeout, default 30s
}

// NewDispatcher creates a dispatcher with no executors registered.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 500 * time.Millisecond
	}
	if opts.ExecTimeout <= 0 {
		opts.ExecTimeout = 30 * time.Second
	}
	return &Dispatcher{
		platforms:   make(map[domain.Platform]*platformState),
		builder:     opts.Builder,
		dup:         opts.Duplicates,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
		execTimeout: opts.ExecTimeout,
	}
}

// Register binds an executor to a platform with a minimum interval
// between calls (e.g. 1s for chat). A zero interval means unlimited.
func (d *Dispatcher) Register(platform domain.Platform, executor Executor, minInterval time.Duration) {
	limit := rate.Inf
	burst := 1
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}

	settings := cb.Settings{
		Name:    string(platform),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts cb.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	d.mu.Lock()
	d.platforms[platform] = &platformState{
		executor: executor,
		limiter:  rate.NewLimiter(limit, burst),
		breaker:  cb.NewCircuitBreaker(settings),
	}
	d.mu.Unlock()
	log.Info().
		Str("platform", string(platform)).
		Str("executor", executor.Name()).
		Dur("min_interval", minInterval).
		Msg("dispatch: executor registered")
}

// Dispatch executes one decision and always returns a result; failures
// are reported in the result, not as a Go error, so every outcome can
// reach the feedback tracker.
func (d *Dispatcher) Dispatch(ctx context.Context, sig domain.Signal, decision domain.Decision) ExecutionResult {
	start := time.Now()
	res := d.execute(ctx, sig, decision)
	res.DecisionID = decision.DecisionID
	res.ExecutionTime = time.Since(start)

	d.statsMu.Lock()
	d.dispatched++
	switch {
	case res.Skipped:
		d.skipped++
		d.succeeded++
	case res.Success:
		d.succeeded++
	default:
		d.failed++
	}
	if res.Attempts > 1 {
		d.retried += int64(res.Attempts - 1)
	}
	d.statsMu.Unlock()
	return res
}

func (d *Dispatcher) execute(ctx context.Context, sig domain.Signal, decision domain.Decision) ExecutionResult {
	// Nothing to do for suppressed decisions.
	if decision.Action == domain.ActionIgnore || decision.TargetPlatform == domain.PlatformNone {
		return ExecutionResult{Success: true, Skipped: true, Data: map[string]string{"reason": decision.Reasoning}}
	}

	d.mu.RLock()
	state, ok := d.platforms[decision.TargetPlatform]
	d.mu.RUnlock()
	if !ok {
		return ExecutionResult{Error: fmt.Sprintf("no executor for platform %s", decision.TargetPlatform)}
	}

	// Idempotency: a task matching a newer duplicate is skipped with no
	// external side effect.
	if decision.Action == domain.ActionCreateTask && d.dup != nil {
		title := decision.Params["title"]
		if title == "" {
			title = sig.Subject
		}
		if match, dup := d.dup.IsDuplicate(ctx, title); dup {
			log.Info().
				Str("decision_id", decision.DecisionID).
				Str("existing_ref", match.Ref).
				Float64("similarity", match.Score).
				Msg("dispatch: duplicate detected, skipping")
			return ExecutionResult{
				Success:      true,
				Skipped:      true,
				ExecutorUsed: state.executor.Name(),
				Data: map[string]string{
					"skipped":      "true",
					"reason":       "duplicate_detected",
					"existing_ref": match.Ref,
				},
			}
		}
	}

	built, err := d.builder.Build(sig, decision)
	if err != nil {
		if ve, ok := payload.IsValidationError(err); ok {
			return ExecutionResult{
				Error:         err.Error(),
				MissingFields: ve.MissingFields,
				ExecutorUsed:  state.executor.Name(),
			}
		}
		return ExecutionResult{Error: err.Error(), ExecutorUsed: state.executor.Name()}
	}

	data, attempts, err := d.runWithRetry(ctx, state, built)
	res := ExecutionResult{
		Attempts:     attempts,
		ExecutorUsed: state.executor.Name(),
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Success = true
	res.Data = data
	if decision.Action == domain.ActionCreateTask && d.dup != nil {
		d.dup.Add(built.Fields["title"], data["ref"])
	}
	return res
}

// runWithRetry drives the attempt loop. Transient failures back off
// exponentially with jitter; permanent failures and open breakers stop
// immediately. Cancellation is honored between attempts.
func (d *Dispatcher) runWithRetry(ctx context.Context, state *platformState, p payload.Payload) (map[string]string, int, error) {
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err := state.limiter.Wait(ctx); err != nil {
			return nil, attempt, err
		}

		out, err := state.breaker.Execute(func() (any, error) {
			callCtx, cancel := context.WithTimeout(ctx, d.execTimeout)
			defer cancel()
			return state.executor.Execute(callCtx, p)
		})
		if err == nil {
			data, _ := out.(map[string]string)
			return data, attempt, nil
		}
		lastErr = err

		if errors.Is(err, cb.ErrOpenState) || errors.Is(err, cb.ErrTooManyRequests) {
			return nil, attempt, fmt.Errorf("dispatch: circuit open for %s: %w", state.executor.Name(), err)
		}
		if !IsTransient(err) {
			return nil, attempt, err
		}
		if attempt == d.maxAttempts {
			break
		}

		backoff := d.baseBackoff << (attempt - 1)
		if half := int64(backoff) / 2; half > 0 {
			backoff += time.Duration(rand.Int63n(half))
		}
		log.Debug().
			Err(err).
			Str("executor", state.executor.Name()).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("dispatch: transient failure, backing off")
		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, d.maxAttempts, fmt.Errorf("dispatch: %d attempts exhausted: %w", d.maxAttempts, lastErr)
}

// DispatchBatch executes a set of decisions; per-item failures do not
// abort siblings.
func (d *Dispatcher) DispatchBatch(ctx context.Context, items []BatchItem) BatchResult {
	var result BatchResult
	for _, item := range items {
		res := d.Dispatch(ctx, item.Signal, item.Decision)
		if res.Success {
			result.Successful = append(result.Successful, res)
		} else {
			result.Failed = append(result.Failed, res)
		}
	}
	return result
}

// BatchItem pairs a decision with its originating signal.
type BatchItem struct {
	Signal   domain.Signal
	Decision domain.Decision
}

// Stats is a counter snapshot.
type Stats struct {
	Dispatched int64 `json:"dispatched"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
	Skipped    int64 `json:"skipped"`
	Retried    int64 `json:"retried"`
}

// Stats reports current counters.
func (d *Dispatcher) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return Stats{
		Dispatched: d.dispatched,
		Succeeded:  d.succeeded,
		Failed:     d.failed,
		Skipped:    d.skipped,
		Retried:    d.retried,
	}
}
