package speech

import "time"

// ImprovementArea is one detected weakness ranked by the priority
// recommender.
type ImprovementArea struct {
	Type                 string   `json:"type"`
	CurrentValue         float64  `json:"current_value"`
	TargetValue          float64  `json:"target_value"`
	Severity             Severity `json:"severity"`
	PotentialImprovement float64  `json:"potential_improvement"`
	PriorityScore        float64  `json:"priority_score"`
	EffortLevel          int      `json:"effort_level"`
	EstimatedWeeks       int      `json:"estimated_weeks"`
	ActionableSteps      []string `json:"actionable_steps"`
	Trend                string   `json:"trend,omitempty"`
}

// Achievement is a gamification milestone derived from session history.
type Achievement struct {
	Type         string     `json:"type"`
	Title        string     `json:"title"`
	Threshold    float64    `json:"threshold"`
	CurrentValue float64    `json:"current_value"`
	AchievedAt   *time.Time `json:"achieved_at,omitempty"`
	JustAchieved bool       `json:"just_achieved"`
}

// CoachingRecommendation is a single piece of coaching advice produced by
// the AI stage or its deterministic fallback.
type CoachingRecommendation struct {
	Title    string   `json:"title"`
	Focus    string   `json:"focus"`
	Detail   string   `json:"detail"`
	Drills   []string `json:"drills,omitempty"`
	Priority Priority `json:"priority"`
	Source   Source   `json:"source"`
}
