package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// is reported through RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RulesChanged is true when the rule pack directory or default
	// language changed. Packs are reloaded on the next request.
	RulesChanged bool

	// AITuningChanged is true when any refinement tunable other than the
	// enabled flag and timeout changed.
	AITuningChanged bool

	// RestartRequired lists config sections that changed but are only
	// read at startup.
	RestartRequired []string
}

// IsZero reports whether nothing changed.
func (d ConfigDiff) IsZero() bool {
	return !d.LogLevelChanged && !d.RulesChanged && !d.AITuningChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.RulesChanged = old.Rules != new.Rules
	d.AITuningChanged = aiTuning(old.AI) != aiTuning(new.AI)

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogFormat != new.Server.LogFormat ||
		old.Server.TraceSampleRatio != new.Server.TraceSampleRatio {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) ||
		!equalBool(old.AI.Enabled, new.AI.Enabled) ||
		old.AI.Timeout != new.AI.Timeout ||
		old.AI.MaxTokens != new.AI.MaxTokens ||
		old.AI.Breaker != new.AI.Breaker {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Cache != new.Cache {
		d.RestartRequired = append(d.RestartRequired, "cache")
	}
	if old.History != new.History {
		d.RestartRequired = append(d.RestartRequired, "history")
	}
	if old.Candidates != new.Candidates {
		d.RestartRequired = append(d.RestartRequired, "candidates")
	}
	return d
}

// aiTuningFields is the hot-reloadable part of [AIConfig].
type aiTuningFields struct {
	temperature, confidence, similarity float64
	segments, concurrency, batch        int
	prompt                              string
}

func aiTuning(a AIConfig) aiTuningFields {
	return aiTuningFields{
		temperature: a.Temperature,
		confidence:  a.ConfidenceThreshold,
		similarity:  a.SimilarityThreshold,
		segments:    a.MaxAISegments,
		concurrency: a.MaxConcurrency,
		batch:       a.BatchSize,
		prompt:      a.PromptVersion,
	}
}

func equalBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
