package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/bus"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/classify"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/config"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/decide"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/dispatch"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/dupindex"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/executors"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/feedback"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/httpapi"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/ingest"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/metrics"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/patterns"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/payload"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/persistence"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/pipeline"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/prompts"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/review"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/snapshot"
)

// runPipeline wires every component and blocks until the context is
// cancelled, then shuts down in dependency order.
func runPipeline(ctx context.Context, cfg config.Config, workers int) error {
	m := metrics.New()

	// Learning state.
	tracker, err := feedback.NewTracker(cfg.Storage.FeedbackLogPath)
	if err != nil {
		return err
	}
	defer tracker.Close()

	patternStore := patterns.NewStore()
	if err := patternStore.LoadFile(cfg.Storage.PatternSnapshotPath); err != nil {
		log.Warn().Err(err).Msg("pattern snapshot load failed, starting empty")
	}

	registry := prompts.NewRegistry(prompts.RegistryOptions{
		MaxExamples:   cfg.Prompts.MaxExamples,
		DegradationPP: cfg.Prompts.DegradationRollback,
	})
	if err := registry.LoadFile(cfg.Storage.PromptRegistryPath); err != nil {
		log.Warn().Err(err).Msg("prompt registry load failed, starting from base")
	}

	var mirror *persistence.RedisMirror
	if cfg.Storage.RedisAddr != "" {
		mirror, err = persistence.Connect(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisDB)
		if err != nil {
			log.Warn().Err(err).Msg("redis mirror unavailable, continuing without it")
			mirror = nil
		}
	}

	// Classification path.
	oracle := classify.NewHTTPOracle(classify.HTTPOracleOptions{
		BaseURL: cfg.Oracle.BaseURL,
		APIKey:  oracleAPIKey(),
		Model:   cfg.Oracle.Model,
		Timeout: cfg.Oracle.Timeout,
	})
	classifier := classify.NewClassifier(classify.ClassifierOptions{
		Oracle:      oracle,
		Cache:       classify.NewCache(cfg.Cache.MaxSize, cfg.Cache.TTL),
		Registry:    registry,
		Patterns:    patternStore,
		Timeout:     cfg.Oracle.Timeout,
		MaxAttempts: cfg.Oracle.MaxAttempts,
		BaseBackoff: cfg.Oracle.BaseBackoff,
	})

	// Decision and execution path.
	dup := dupindex.New(dupindex.Options{
		Threshold:  cfg.Duplicates.Threshold,
		CorpusSize: cfg.Duplicates.CorpusSize,
	})
	engine := decide.NewEngine(decide.Options{
		Duplicates:          dup,
		ConfidenceThreshold: cfg.Decision.ConfidenceApprovalThreshold,
		CriticalSLA:         cfg.Decision.CriticalSLA,
	})
	dispatcher := dispatch.NewDispatcher(dispatch.Options{
		Builder: payload.NewBuilder(payload.Config{
			DefaultChannel:   "#operations",
			DefaultDueWindow: cfg.Decision.DefaultTaskDue,
		}),
		Duplicates:  dup,
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		BaseBackoff: cfg.Dispatch.BaseBackoff,
		ExecTimeout: cfg.Dispatch.ExecTimeout,
	})
	executors.RegisterAll(dispatcher, cfg)

	// Dashboard feed.
	aggregator := snapshot.NewAggregator(snapshot.Options{
		CacheTTL: cfg.Snapshot.CacheTTL,
		RingSize: cfg.Snapshot.RecentDecisions,
	})

	queue := ingest.NewQueue(ingest.Options{
		Capacity:        cfg.Ingest.QueueCapacity,
		RateLimitN:      cfg.Ingest.RateLimitN,
		RateLimitWindow: cfg.Ingest.RateLimitWindow,
	})

	p := pipeline.New(pipeline.Options{
		Queue:      queue,
		Classifier: classifier,
		Engine:     engine,
		Dispatcher: dispatcher,
		Tracker:    tracker,
		Registry:   registry,
		Aggregator: aggregator,
		Metrics:    m,
	})

	timeoutPolicy := review.TimeoutReject
	if cfg.Review.TimeoutApprove {
		timeoutPolicy = review.TimeoutApprove
	}
	reviews := review.NewQueue(review.Options{
		TTL:      cfg.Review.MaxTTL,
		Tick:     cfg.Review.Tick,
		Policy:   timeoutPolicy,
		Listener: p.OnReviewResolved,
	})
	p.SetReviews(reviews)

	// Event bus for source adapters.
	hub := bus.New(bus.Options{
		HistorySize:          cfg.Bus.HistorySize,
		MaxReconnectAttempts: cfg.Bus.MaxReconnectAttempts,
		ReconnectBaseBackoff: cfg.Bus.ReconnectBaseBackoff,
	})
	sub := p.AttachBus(hub)
	defer sub.Unsubscribe()

	aggregator.SetSources(snapshot.Sources{
		QueueDepth:     queue.Size,
		BusDepth:       hub.Depth,
		PendingReviews: func() int { return reviews.Stats().Pending },
		SuccessRate:    func() float64 { return tracker.Stats().SuccessRate },
		CacheHitRate:   func() float64 { return classifier.Stats().Cache.HitRate },
		Insights:       func() []string { return patternInsights(patternStore) },
	})
	m.ObserveClassifier(classifier.Stats)
	m.ObserveDepths(queue.Size, hub.Depth, func() int { return reviews.Stats().Pending })

	// Learning loop.
	optimizer := feedback.NewOptimizer(feedback.OptimizerOptions{
		Tracker:    tracker,
		Registry:   registry,
		Target:     cfg.Prompts.ABEvaluations,
		LowCutoff:  cfg.Prompts.LowConfidenceCutoff,
		HighCutoff: cfg.Prompts.HighConfidenceCutoff,
	})
	go learningLoop(ctx, tracker, patternStore, optimizer, mirror, cfg)

	// HTTP front.
	api := httpapi.NewServer(httpapi.Options{
		Addr:       fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Aggregator: aggregator,
		Reviews:    reviews,
		Registry:   m.Registry,
	})
	go func() {
		if err := api.Start(); err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}()

	reviews.Start(ctx)
	p.Start(ctx, workers)
	log.Info().Int("workers", workers).Msg("pipeline running")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// Drain order: stop intake, drain workers, stop review scanner,
	// flush learning state, stop the HTTP front.
	hub.Close()
	queue.Close()
	p.Wait()
	reviews.Close()

	if err := patternStore.SaveFile(cfg.Storage.PatternSnapshotPath); err != nil {
		log.Error().Err(err).Msg("pattern snapshot save failed")
	}
	if err := registry.SaveFile(cfg.Storage.PromptRegistryPath); err != nil {
		log.Error().Err(err).Msg("prompt registry save failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return api.Shutdown(shutdownCtx)
}

// learningLoop periodically rederives patterns from the feedback corpus
// and lets the optimizer propose prompt candidates. New feedback records
// are mirrored to Redis for external consumers when a mirror is up.
func learningLoop(ctx context.Context, tracker *feedback.Tracker, store *patterns.Store,
	optimizer *feedback.Optimizer, mirror *persistence.RedisMirror, cfg config.Config) {

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	mirrored := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			corpus := tracker.Corpus()
			if mirror != nil {
				for _, rec := range corpus[min(mirrored, len(corpus)):] {
					if err := mirror.MirrorFeedback(ctx, rec); err != nil {
						log.Warn().Err(err).Msg("feedback mirror failed")
						break
					}
				}
				mirrored = len(corpus)
			}

			set := patterns.Derive(corpus, patterns.Thresholds{
				SenderMin:   cfg.Patterns.SenderThreshold,
				KeywordMin:  cfg.Patterns.KeywordThreshold,
				TimeMin:     cfg.Patterns.TimeThreshold,
				TimeLift:    cfg.Patterns.TimeLift,
				AffinityMin: cfg.Patterns.AffinityThreshold,
				AffinityPct: cfg.Patterns.AffinityRate,
			})
			store.Replace(set)
			if mirror != nil {
				if err := mirror.MirrorPatterns(ctx, set); err != nil {
					log.Warn().Err(err).Msg("pattern mirror failed")
				}
			}

			if version, err := optimizer.Optimize(); err == nil && version != 0 {
				log.Info().Int("candidate", version).Msg("prompt experiment started")
			}
		}
	}
}

func patternInsights(store *patterns.Store) []string {
	set := store.Snapshot()
	var out []string
	for sender, sp := range set.SenderPatterns {
		out = append(out, fmt.Sprintf("sender %s usually sends %s (support %d)", sender, sp.DominantCategory, sp.Support))
		if len(out) >= 5 {
			break
		}
	}
	for kw, kp := range set.UrgencyKeywords {
		out = append(out, fmt.Sprintf("keyword %q boosts urgency (seen %d)", kw, kp.Occurrences))
		if len(out) >= 10 {
			break
		}
	}
	return out
}

func oracleAPIKey() string {
	return os.Getenv(config.EnvPrefix + "ORACLE_API_KEY")
}
