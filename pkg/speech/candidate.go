package speech

// Priority orders candidate segments for AI analysis.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns 0 for high, 1 for medium, 2 for low and 3 otherwise.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// CandidateSource records which selection strategy produced a candidate.
type CandidateSource string

const (
	CandidateIssueBased     CandidateSource = "issue_based"
	CandidateQualitySegment CandidateSource = "quality_segment"
	CandidateRandomSampling CandidateSource = "random_sampling"
)

// Candidate is a bounded transcript window nominated for deeper AI
// scrutiny. Candidates live only for the duration of one pipeline run.
type Candidate struct {
	StartMS    int64           `json:"start_ms"`
	EndMS      int64           `json:"end_ms"`
	Text       string          `json:"text"`
	Priority   Priority        `json:"priority"`
	Source     CandidateSource `json:"source"`
	WordCount  int             `json:"word_count"`
	DurationMS int64           `json:"duration_ms"`

	// QualityScore is set by the quality-segment strategy, in [0,1].
	QualityScore *float64 `json:"quality_score,omitempty"`

	// IssueKind is the kind of the anchoring issue for issue-based candidates.
	IssueKind string `json:"issue_kind,omitempty"`
}

// QualityOr returns the quality score or def when unset.
func (c Candidate) QualityOr(def float64) float64 {
	if c.QualityScore == nil {
		return def
	}
	return *c.QualityScore
}
