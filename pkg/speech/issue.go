package speech

// Severity grades how much an issue hurts delivery.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// IsValid reports whether s is a recognised severity.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Rank orders severities for sorting: high=1, medium=2, low=3, anything
// else=4.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	}
	return 4
}

// ParseSeverity maps free-form text (e.g. from an AI response) to a
// [Severity], defaulting to medium.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return Severity(s)
	}
	return SeverityMedium
}

// Source records which stage produced an issue.
type Source string

const (
	SourceRule            Source = "rule"
	SourceAI              Source = "ai"
	SourceRuleAIValidated Source = "rule_ai_validated"
)

// Validation statuses attached by the AI classification stage.
const (
	ValidationValidated   = "validated"
	ValidationNotReviewed = "not_reviewed"
	ValidationRejected    = "false_positive"
)

// Issue is a single timestamped delivery problem.
//
// Issues are immutable once created: stages that add information (AI
// validation, confidence) produce a new record via [Issue.Annotate].
type Issue struct {
	Kind     string   `json:"kind"`
	Category string   `json:"category"`
	StartMS  int64    `json:"start_ms"`
	EndMS    int64    `json:"end_ms"`
	Text     string   `json:"text"`
	Source   Source   `json:"source"`
	Severity Severity `json:"severity"`

	Rationale string `json:"rationale,omitempty"`
	Tip       string `json:"tip,omitempty"`

	// Confidence is in [0,1]; nil until an AI stage has reviewed the issue.
	Confidence       *float64 `json:"confidence,omitempty"`
	ValidationStatus string   `json:"validation_status,omitempty"`
}

// Annotation carries the fields an AI stage may attach to an existing issue.
// Zero-valued fields leave the original value unchanged.
type Annotation struct {
	Source           Source
	Severity         Severity
	Rationale        string
	Tip              string
	Confidence       *float64
	ValidationStatus string
}

// Annotate returns a copy of i with a's non-zero fields merged in.
func (i Issue) Annotate(a Annotation) Issue {
	out := i
	if a.Source != "" {
		out.Source = a.Source
	}
	if a.Severity != "" {
		out.Severity = a.Severity
	}
	if a.Rationale != "" {
		out.Rationale = a.Rationale
	}
	if a.Tip != "" {
		out.Tip = a.Tip
	}
	if a.Confidence != nil {
		c := *a.Confidence
		out.Confidence = &c
	}
	if a.ValidationStatus != "" {
		out.ValidationStatus = a.ValidationStatus
	}
	return out
}

// DurationMS returns the issue's time span.
func (i Issue) DurationMS() int64 { return i.EndMS - i.StartMS }

// Overlaps reports whether the issue's time range intersects [startMS, endMS].
func (i Issue) Overlaps(startMS, endMS int64) bool {
	return i.StartMS <= endMS && startMS <= i.EndMS
}

// ConfidenceOr returns the issue's confidence or def when unset.
func (i Issue) ConfidenceOr(def float64) float64 {
	if i.Confidence == nil {
		return def
	}
	return *i.Confidence
}

// Well-known issue categories produced by rule packs and the AI stage.
const (
	CategoryFillerWords     = "filler_words"
	CategoryPace            = "pace"
	CategoryPauses          = "pauses"
	CategoryClarity         = "clarity"
	CategoryProfessionalism = "professionalism"
)

// Well-known issue kinds.
const (
	KindFillerWord      = "filler_word"
	KindSlowPace        = "slow_pace"
	KindFastPace        = "fast_pace"
	KindLongPause       = "long_pause"
	KindPaceIssue       = "pace_issue"
	KindClarityIssue    = "clarity_issue"
	KindProfessionalism = "professionalism"
	KindConfidenceIssue = "confidence_issue"
	KindEngagementIssue = "engagement_issue"
	KindOther           = "other"
)
