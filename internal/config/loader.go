package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known LLM provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"openai", "openai-native", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultLanguage        = "en"
	DefaultAITimeout       = 30 * time.Second
	DefaultTemperature     = 0.3
	DefaultCacheTTL        = 6 * time.Hour
	DefaultCacheTimeout    = 500 * time.Millisecond
	DefaultMaxAISegments   = 5
	DefaultMaxConcurrency  = 3
	DefaultConfidence      = 0.7
	DefaultSimilarity      = 0.3
	DefaultBatchSize       = 10
	DefaultPromptVersion   = "v1"
	DefaultMaxCandidates   = 10
	DefaultMinSegment      = 2 * time.Second
	DefaultMaxSegment      = 15 * time.Second
	DefaultContextBuffer   = time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerReset    = 30 * time.Second
	DefaultBreakerProbes   = 3
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied: rules only,
// in-memory cache and history.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.LogFormat == "" {
		s.LogFormat = "text"
	}

	ai := &cfg.AI
	if ai.Timeout <= 0 {
		ai.Timeout = DefaultAITimeout
	}
	if ai.Temperature == 0 {
		ai.Temperature = DefaultTemperature
	}
	if ai.MaxAISegments <= 0 {
		ai.MaxAISegments = DefaultMaxAISegments
	}
	if ai.MaxConcurrency <= 0 {
		ai.MaxConcurrency = DefaultMaxConcurrency
	}
	if ai.ConfidenceThreshold == 0 {
		ai.ConfidenceThreshold = DefaultConfidence
	}
	if ai.SimilarityThreshold == 0 {
		ai.SimilarityThreshold = DefaultSimilarity
	}
	if ai.BatchSize <= 0 {
		ai.BatchSize = DefaultBatchSize
	}
	if ai.PromptVersion == "" {
		ai.PromptVersion = DefaultPromptVersion
	}
	if ai.Breaker.MaxFailures <= 0 {
		ai.Breaker.MaxFailures = DefaultBreakerFailures
	}
	if ai.Breaker.ResetTimeout <= 0 {
		ai.Breaker.ResetTimeout = DefaultBreakerReset
	}
	if ai.Breaker.HalfOpenMax <= 0 {
		ai.Breaker.HalfOpenMax = DefaultBreakerProbes
	}

	c := &cfg.Cache
	if c.Backend == "" {
		c.Backend = CacheMemory
	}
	if c.TTL <= 0 {
		c.TTL = DefaultCacheTTL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultCacheTimeout
	}

	if cfg.History.Backend == "" {
		cfg.History.Backend = HistoryMemory
	}
	if cfg.Rules.DefaultLanguage == "" {
		cfg.Rules.DefaultLanguage = DefaultLanguage
	}

	cd := &cfg.Candidates
	if cd.Max <= 0 {
		cd.Max = DefaultMaxCandidates
	}
	if cd.MinDuration <= 0 {
		cd.MinDuration = DefaultMinSegment
	}
	if cd.MaxDuration <= 0 {
		cd.MaxDuration = DefaultMaxSegment
	}
	if cd.ContextBuffer <= 0 {
		cd.ContextBuffer = DefaultContextBuffer
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if f := cfg.Server.LogFormat; f != "" && f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", f))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %v must be within [0,1]", r))
	}

	// Providers
	validateProviderName(cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName(fb.Name)
	}
	if len(cfg.Providers.LLMFallbacks) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
	}

	// AI
	ai := cfg.AI
	if ai.Enabled != nil && *ai.Enabled && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("ai.enabled requires an LLM provider but providers.llm is not configured"))
	}
	if ai.Temperature < 0 || ai.Temperature > 2 {
		errs = append(errs, fmt.Errorf("ai.temperature %.2f is out of range [0, 2]", ai.Temperature))
	}
	if ai.ConfidenceThreshold < 0 || ai.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("ai.confidence_threshold %.2f is out of range [0, 1]", ai.ConfidenceThreshold))
	}
	if ai.SimilarityThreshold < 0 || ai.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("ai.similarity_threshold %.2f is out of range [0, 1]", ai.SimilarityThreshold))
	}

	// Cache
	if b := cfg.Cache.Backend; b != "" && !b.IsValid() {
		errs = append(errs, fmt.Errorf("cache.backend %q is invalid; valid values: memory, redis, none", b))
	}
	if cfg.Cache.Backend == CacheRedis && cfg.Cache.RedisAddr == "" {
		errs = append(errs, errors.New("cache.redis_addr is required when cache.backend is redis"))
	}

	// History
	if b := cfg.History.Backend; b != "" && !b.IsValid() {
		errs = append(errs, fmt.Errorf("history.backend %q is invalid; valid values: memory, postgres", b))
	}
	if cfg.History.Backend == HistoryPostgres && cfg.History.PostgresDSN == "" {
		errs = append(errs, errors.New("history.postgres_dsn is required when history.backend is postgres"))
	}
	if cfg.History.Backend == HistoryMemory {
		slog.Debug("history.backend is memory; sessions are lost on restart")
	}

	// Candidates
	cd := cfg.Candidates
	if cd.MinDuration > 0 && cd.MaxDuration > 0 && cd.MaxDuration < cd.MinDuration {
		errs = append(errs, fmt.Errorf("candidates.max_duration %s is shorter than min_duration %s", cd.MaxDuration, cd.MinDuration))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidProviderNames].
func validateProviderName(name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", "llm",
		"name", name,
		"known", ValidProviderNames,
	)
}
