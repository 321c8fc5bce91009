package speech

// Speaking-rate buckets.
const (
	RateTooSlow = "too_slow"
	RateSlow    = "slow"
	RateOptimal = "optimal"
	RateFast    = "fast"
	RateTooFast = "too_fast"
)

// BasicMetrics are the raw counts of a recording.
type BasicMetrics struct {
	WordCount           int     `json:"word_count"`
	DurationMS          int64   `json:"duration_ms"`
	DurationMinutes     float64 `json:"duration_minutes"`
	UniqueWords         int     `json:"unique_words"`
	VocabularyDiversity float64 `json:"vocabulary_diversity"`
	AvgWordLength       float64 `json:"avg_word_length"`
	SentenceCount       int     `json:"sentence_count"`
}

// SpeakingMetrics describe pace.
type SpeakingMetrics struct {
	WPM             float64 `json:"wpm"`
	EffectiveWPM    float64 `json:"effective_wpm"`
	RateBucket      string  `json:"rate_bucket"`
	PaceConsistency float64 `json:"pace_consistency"`
	PaceScore       float64 `json:"pace_score"`
	SpeakingTimeMS  int64   `json:"speaking_time_ms"`
	SpeakingRatio   float64 `json:"speaking_ratio"`
}

// FillerMetrics count disfluency tokens.
type FillerMetrics struct {
	Count     int            `json:"count"`
	Rate      float64        `json:"rate"` // percent of words
	Density   string         `json:"density"`
	Breakdown map[string]int `json:"breakdown,omitempty"`
}

// PauseMetrics summarise inter-word gaps longer than 100ms.
type PauseMetrics struct {
	Count          int     `json:"count"`
	AvgMS          float64 `json:"avg_ms"`
	LongestMS      float64 `json:"longest_ms"`
	LongPauseCount int     `json:"long_pause_count"`
	QualityScore   float64 `json:"quality_score"`
}

// ClarityMetrics combine fillers, pace, pauses, articulation and fluency.
type ClarityMetrics struct {
	Score             float64       `json:"score"`
	FillerPenalty     float64       `json:"filler_penalty"`
	ArticulationScore float64       `json:"articulation_score"`
	Fillers           FillerMetrics `json:"fillers"`
	Pauses            PauseMetrics  `json:"pauses"`
}

// FluencyMetrics describe flow and disfluency.
type FluencyMetrics struct {
	Score              float64 `json:"score"`
	Smoothness         float64 `json:"smoothness"`
	Hesitations        int     `json:"hesitations"`
	Restarts           int     `json:"restarts"`
	IncompleteThoughts int     `json:"incomplete_thoughts"`
}

// EngagementMetrics describe energy and variation.
type EngagementMetrics struct {
	Score           float64 `json:"score"`
	Energy          float64 `json:"energy"`
	PaceVariation   float64 `json:"pace_variation"`
	EmphasisSignals int     `json:"emphasis_signals"`
	Questions       int     `json:"questions"`
	Exclamations    int     `json:"exclamations"`
}

// MetricsResult is the immutable metrics snapshot of one session.
type MetricsResult struct {
	Basic      BasicMetrics      `json:"basic"`
	Speaking   SpeakingMetrics   `json:"speaking"`
	Clarity    ClarityMetrics    `json:"clarity"`
	Fluency    FluencyMetrics    `json:"fluency"`
	Engagement EngagementMetrics `json:"engagement"`

	OverallScore        float64            `json:"overall_score"`
	Grade               string             `json:"grade"`
	ComponentScores     map[string]float64 `json:"component_scores"`
	Strengths           []string           `json:"strengths"`
	AreasForImprovement []string           `json:"areas_for_improvement"`
}
