// Package app wires the analysis subsystems into a running application.
//
// New builds the rule repository, reply cache, session history, LLM
// fallback chain and analysis pipeline from a [config.Config]. Apply swaps
// in hot-reloadable settings, and Shutdown releases connections in order.
//
// For testing, inject implementations via functional options
// (WithHistoryStore, WithCache, ...). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/oratio/internal/aiclient"
	"github.com/MrWong99/oratio/internal/analysis"
	"github.com/MrWong99/oratio/internal/cache"
	"github.com/MrWong99/oratio/internal/candidate"
	"github.com/MrWong99/oratio/internal/config"
	"github.com/MrWong99/oratio/internal/detect"
	"github.com/MrWong99/oratio/internal/health"
	"github.com/MrWong99/oratio/internal/history"
	"github.com/MrWong99/oratio/internal/observe"
	"github.com/MrWong99/oratio/internal/refine"
	"github.com/MrWong99/oratio/internal/resilience"
	"github.com/MrWong99/oratio/internal/rules"
	"github.com/MrWong99/oratio/pkg/provider/llm"
)

// NamedLLM is an LLM backend with the name it is logged and labelled under.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

// Providers holds the LLM backends built by the config registry. A nil
// Primary.Provider means AI refinement is unavailable.
type Providers struct {
	Primary   NamedLLM
	Fallbacks []NamedLLM
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       atomic.Pointer[config.Config]
	providers *Providers
	metrics   *observe.Metrics
	level     *slog.LevelVar

	mu    sync.Mutex // guards rules and rebuilds
	rules *rules.Repository

	cache     cache.Store
	cachePing health.Pinger
	history   history.Store
	llm       *resilience.LLMFallback
	client    *aiclient.Client
	analyzer  atomic.Pointer[analysis.Analyzer]

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistoryStore injects a history store instead of creating one from config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.history = s }
}

// WithCache injects a reply cache instead of creating one from config.
func WithCache(s cache.Store) Option {
	return func(a *App) { a.cache = s }
}

// WithRules injects a rule repository instead of creating one from config.
func WithRules(r *rules.Repository) Option {
	return func(a *App) { a.rules = r }
}

// WithMetrics records pipeline, AI, cache and breaker metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets [App.Apply] change the log level of the handler using lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// New creates an App by wiring all subsystems together. providers comes from
// the config registry and may be nil when AI refinement is off.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{providers: providers}
	for _, o := range opts {
		o(a)
	}
	a.cfg.Store(cfg)

	// ── 1. Rules ─────────────────────────────────────────────────────────
	if err := a.initRules(cfg); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init rules: %w", err)
	}

	// ── 2. Reply cache ───────────────────────────────────────────────────
	if err := a.initCache(ctx, cfg); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init cache: %w", err)
	}

	// ── 3. Session history ───────────────────────────────────────────────
	if err := a.initHistory(ctx, cfg); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 4. AI client ─────────────────────────────────────────────────────
	a.initAI(cfg)

	// ── 5. Pipeline ──────────────────────────────────────────────────────
	a.rebuild(cfg)
	return a, nil
}

func (a *App) initRules(cfg *config.Config) error {
	if a.rules == nil {
		a.rules = newRepository(cfg.Rules)
	}
	if _, err := a.rules.Load(cfg.Rules.DefaultLanguage); err != nil {
		return fmt.Errorf("default language %q: %w", cfg.Rules.DefaultLanguage, err)
	}
	slog.Info("rule packs available", "languages", a.rules.Languages(), "default", cfg.Rules.DefaultLanguage)
	return nil
}

func newRepository(rc config.RulesConfig) *rules.Repository {
	if rc.Dir == "" {
		return rules.NewRepository()
	}
	return rules.NewRepository(rules.WithDir(rc.Dir))
}

func (a *App) initCache(ctx context.Context, cfg *config.Config) error {
	if a.cache != nil {
		return nil
	}
	switch cfg.Cache.Backend {
	case config.CacheNone:
		return nil
	case config.CacheRedis:
		r, err := cache.NewRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, r.Close)
		a.cache = cache.WithTimeout(r, cfg.Cache.Timeout)
		a.cachePing = r
		slog.Info("reply cache connected", "backend", "redis", "addr", cfg.Cache.RedisAddr)
	default:
		a.cache = cache.NewMemory()
	}
	return nil
}

func (a *App) initHistory(ctx context.Context, cfg *config.Config) error {
	if a.history != nil {
		return nil
	}
	if cfg.History.Backend != config.HistoryPostgres {
		a.history = history.NewMemStore()
		return nil
	}
	store, closeFn, err := history.OpenPostgres(ctx, cfg.History.PostgresDSN)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		closeFn()
		return nil
	})
	a.history = store
	slog.Info("session history connected", "backend", "postgres")
	return nil
}

func (a *App) initAI(cfg *config.Config) {
	primary := a.providers.Primary
	if !cfg.AI.IsEnabled(cfg.Providers) {
		return
	}
	if primary.Provider == nil {
		slog.Warn("ai refinement enabled but no LLM provider could be created; running rules only")
		return
	}

	fb := resilience.NewLLMFallback(primary.Provider, primary.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:   cfg.AI.Breaker.MaxFailures,
			ResetTimeout:  cfg.AI.Breaker.ResetTimeout,
			HalfOpenMax:   cfg.AI.Breaker.HalfOpenMax,
			OnStateChange: a.breakerChanged,
		},
	})
	for _, f := range a.providers.Fallbacks {
		fb.AddFallback(f.Name, f.Provider)
	}
	a.llm = fb

	opts := []aiclient.Option{aiclient.WithTimeout(cfg.AI.Timeout)}
	if cfg.AI.MaxTokens > 0 {
		opts = append(opts, aiclient.WithMaxTokens(cfg.AI.MaxTokens))
	}
	if a.metrics != nil {
		opts = append(opts, aiclient.WithMetrics(a.metrics))
	}
	a.client = aiclient.New(fb, opts...)
	slog.Info("ai refinement enabled", "backends", fb.Backends())
}

func (a *App) breakerChanged(name string, from, to resilience.State) {
	slog.Warn("llm circuit breaker changed state", "backend", name, "from", from.String(), "to", to.String())
	if a.metrics != nil {
		a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
	}
}

// rebuild swaps in a pipeline built from cfg. In-flight analyses keep the
// pipeline they started with.
func (a *App) rebuild(cfg *config.Config) {
	a.mu.Lock()
	repo := a.rules
	a.mu.Unlock()

	detector := detect.New(repo, detect.WithFallbackLanguage(cfg.Rules.DefaultLanguage))
	opts := []analysis.Option{analysis.WithHistory(a.history)}
	if a.metrics != nil {
		opts = append(opts, analysis.WithMetrics(a.metrics))
	}
	if a.client != nil {
		opts = append(opts, analysis.WithRefiner(a.newRefiner(cfg)))
	}
	a.analyzer.Store(analysis.New(detector, opts...))
}

func (a *App) newRefiner(cfg *config.Config) *refine.Refiner {
	builder := candidate.New(candidate.WithConfig(candidate.Config{
		MaxCandidates: cfg.Candidates.Max,
		ContextBuffer: cfg.Candidates.ContextBuffer,
		MinDuration:   cfg.Candidates.MinDuration,
		MaxDuration:   cfg.Candidates.MaxDuration,
	}))
	rc := refine.DefaultConfig()
	rc.MaxAISegments = cfg.AI.MaxAISegments
	rc.MaxConcurrency = cfg.AI.MaxConcurrency
	rc.ConfidenceThreshold = cfg.AI.ConfidenceThreshold
	rc.SimilarityThreshold = cfg.AI.SimilarityThreshold
	rc.BatchSize = cfg.AI.BatchSize
	rc.Temperature = cfg.AI.Temperature
	rc.PromptVersion = cfg.AI.PromptVersion
	rc.CacheTTL = cfg.Cache.TTL

	opts := []refine.Option{refine.WithConfig(rc), refine.WithCandidateBuilder(builder)}
	if a.cache != nil {
		opts = append(opts, refine.WithCache(a.cache))
	}
	if a.metrics != nil {
		opts = append(opts, refine.WithMetrics(a.metrics))
	}
	return refine.New(a.client, opts...)
}

// Config returns the configuration currently in effect.
func (a *App) Config() *config.Config { return a.cfg.Load() }

// Analyzer returns the current analysis pipeline.
func (a *App) Analyzer() *analysis.Analyzer { return a.analyzer.Load() }

// History returns the session store.
func (a *App) History() history.Store { return a.history }

// Rules returns the current rule repository.
func (a *App) Rules() *rules.Repository {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rules
}

// AIEnabled reports whether analyses are refined by an LLM.
func (a *App) AIEnabled() bool { return a.client != nil }

// Analyze runs the pipeline for req and, when save is true and the request
// names a user, records the session. A failed save is logged; the report is
// still returned.
func (a *App) Analyze(ctx context.Context, req analysis.Request, save bool) (*analysis.Report, error) {
	if strings.TrimSpace(req.Language) == "" {
		req.Language = a.Config().Rules.DefaultLanguage
	}
	rep, err := a.Analyzer().Analyze(ctx, req)
	if err != nil {
		return nil, err
	}
	if save && req.UserID != "" {
		if err := a.history.Save(ctx, rep.Session()); err != nil {
			observe.Logger(ctx).Warn("app: failed to save session", "analysis_id", rep.ID, "err", err)
		}
	}
	return rep, nil
}

// Apply switches to cfg after a config file change. Only the sections
// flagged in d are reloaded; providers, cache and history keep their
// startup settings.
func (a *App) Apply(cfg *config.Config, d config.ConfigDiff) {
	a.cfg.Store(cfg)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(ParseLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.RulesChanged {
		a.mu.Lock()
		a.rules = newRepository(cfg.Rules)
		a.mu.Unlock()
		slog.Info("rule packs reloaded", "dir", cfg.Rules.Dir, "default", cfg.Rules.DefaultLanguage)
	}
	if d.RulesChanged || d.AITuningChanged {
		a.rebuild(cfg)
	}
}

// Checkers returns the readiness checks for the configured dependencies.
func (a *App) Checkers() []health.Checker {
	checks := []health.Checker{{Name: "rules", Check: func(ctx context.Context) error {
		return health.Rules(a.Rules(), a.Config().Rules.DefaultLanguage).Check(ctx)
	}}}
	if p, ok := a.history.(health.Pinger); ok {
		checks = append(checks, health.Ping("history", p))
	}
	if a.cachePing != nil {
		checks = append(checks, health.Ping("cache", a.cachePing))
	} else if p, ok := a.cache.(health.Pinger); ok {
		checks = append(checks, health.Ping("cache", p))
	}
	if a.llm != nil {
		checks = append(checks, health.Breakers("ai", a.llm.BreakerStates))
	}
	return checks
}

// Shutdown releases every connection opened by New. It is safe to call
// more than once.
func (a *App) Shutdown(_ context.Context) error {
	var err error
	a.stopOnce.Do(func() { err = a.closeAll() })
	return err
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ParseLevel maps a config log level to a slog level. Unknown values map
// to info.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}
