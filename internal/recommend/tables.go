package recommend

// Improvement area types.
const (
	AreaFillerWords     = "filler_words"
	AreaPace            = "pace"
	AreaClarity         = "clarity"
	AreaEngagement      = "engagement"
	AreaFluency         = "fluency"
	AreaPauses          = "pauses"
	AreaProfessionalism = "professionalism"

	// AreaBaseline is the single recommendation given for a first session.
	AreaBaseline = "record_again_for_baseline"
)

// Speech contexts of the context-relevance table.
const (
	ContextInterview    = "interview"
	ContextPresentation = "presentation"
	ContextGeneral      = "general"
)

// Score weights.
const (
	weightImpact          = 0.4
	weightTransferability = 0.3
	weightEffort          = 0.2
	weightContext         = 0.1
)

// threshold describes when a metric becomes an improvement area and how
// severe it is. For lower-is-better metrics the comparisons flip.
type threshold struct {
	lowerIsBetter bool
	trigger       float64 // area when worse than this
	medium        float64 // medium severity when worse than this
	high          float64 // high severity when worse than this
	target        float64
	// maxContribution caps the impact at the area's share of the overall
	// score.
	maxContribution float64
}

var thresholds = map[string]threshold{
	AreaFillerWords:     {lowerIsBetter: true, trigger: 0.03, medium: 0.05, high: 0.08, target: 0.02, maxContribution: 0.30},
	AreaClarity:         {trigger: 0.75, medium: 0.65, high: 0.55, target: 0.85, maxContribution: 0.35},
	AreaEngagement:      {trigger: 0.70, medium: 0.60, high: 0.50, target: 0.80, maxContribution: 0.15},
	AreaFluency:         {trigger: 0.75, medium: 0.65, high: 0.55, target: 0.85, maxContribution: 0.25},
	AreaPauses:          {lowerIsBetter: true, trigger: 2, medium: 4, high: 6, target: 1, maxContribution: 0.20},
	AreaProfessionalism: {lowerIsBetter: true, trigger: 3, medium: 5, high: 8, target: 1, maxContribution: 0.20},
}

// Pace is two-sided: too slow and too fast have their own targets.
const (
	paceMin        = 140.0
	paceMax        = 180.0
	paceSlowTarget = 150.0
	paceFastTarget = 165.0
	paceMediumBand = 15.0
	paceHighBand   = 30.0
	paceMaxContrib = 0.25
)

// maxImpact normalises capped impacts into [0,1].
const maxImpact = 0.35

var transferability = map[string]float64{
	AreaClarity:         0.9,
	AreaFillerWords:     0.8,
	AreaPace:            0.8,
	AreaFluency:         0.7,
	AreaEngagement:      0.6,
	AreaPauses:          0.5,
	AreaProfessionalism: 0.4,
}

// difficulty is 1 (easy) to 4 (hard).
var difficulty = map[string]int{
	AreaPauses:          1,
	AreaProfessionalism: 1,
	AreaFillerWords:     2,
	AreaPace:            2,
	AreaClarity:         3,
	AreaFluency:         3,
	AreaEngagement:      4,
}

var contextRelevance = map[string]map[string]float64{
	ContextInterview: {
		AreaFillerWords: 0.9, AreaPace: 0.7, AreaClarity: 0.9, AreaEngagement: 0.6,
		AreaFluency: 0.8, AreaPauses: 0.6, AreaProfessionalism: 1.0,
	},
	ContextPresentation: {
		AreaFillerWords: 0.8, AreaPace: 0.9, AreaClarity: 0.9, AreaEngagement: 1.0,
		AreaFluency: 0.8, AreaPauses: 0.7, AreaProfessionalism: 0.7,
	},
	ContextGeneral: {
		AreaFillerWords: 0.8, AreaPace: 0.8, AreaClarity: 0.8, AreaEngagement: 0.7,
		AreaFluency: 0.7, AreaPauses: 0.6, AreaProfessionalism: 0.6,
	},
}

var actionableSteps = map[string][]string{
	AreaFillerWords: {
		"Record a two-minute answer and count every filler word",
		"Replace each filler with a one-beat silent pause",
		"Ask a friend to tap the table whenever you say um or uh",
	},
	AreaPace: {
		"Read a 150-word passage aloud against a one-minute timer",
		"Mark breathing points in your notes before speaking",
		"Record yourself and compare your words per minute with the 140-180 range",
	},
	AreaClarity: {
		"State your main point in the first sentence",
		"Replace vague words with concrete numbers and names",
		"Over-articulate consonants during warm-up reading",
	},
	AreaEngagement: {
		"Add one rhetorical question per section",
		"Stress the key word of every sentence",
		"Vary your pace between stories and conclusions",
	},
	AreaFluency: {
		"Outline three talking points before you start",
		"Finish each sentence before starting the next idea",
		"Practise the same story three times in a row",
	},
	AreaPauses: {
		"Keep transitions between sections under two seconds",
		"Prepare bridge phrases for moving between points",
		"Rehearse openings of each section until they are automatic",
	},
	AreaProfessionalism: {
		"List your most common casual phrases and a professional alternative",
		"Avoid slang when describing results",
		"Review your recording for words you would not use in writing",
	},
}

var practice = map[string]struct{ daily, weekly string }{
	AreaFillerWords:     {"Five minutes of impromptu speaking, pausing instead of filling", "Record one full talk and compare filler counts with last week"},
	AreaPace:            {"Read aloud for five minutes with a metronome at a comfortable rate", "Time a full talk and check it lands in 140-180 words per minute"},
	AreaClarity:         {"Summarise one article in three clear sentences", "Explain a complex topic to a non-expert and ask what they remember"},
	AreaEngagement:      {"Tell a two-minute story with deliberate emphasis", "Deliver your talk standing, with gestures, and review the energy"},
	AreaFluency:         {"Speak on a random topic for two minutes without restarting", "Record a prepared talk and count restarts and hesitations"},
	AreaPauses:          {"Practise section transitions with prepared bridge phrases", "Review a recording and mark every pause longer than three seconds"},
	AreaProfessionalism: {"Rephrase five casual sentences into professional language", "Record a mock meeting update and review its register"},
}

var tracking = map[string]string{
	AreaFillerWords:     "filler words per 100 words",
	AreaPace:            "words per minute",
	AreaClarity:         "clarity score",
	AreaEngagement:      "engagement score",
	AreaFluency:         "fluency score",
	AreaPauses:          "long pauses per session",
	AreaProfessionalism: "unprofessional phrases per session",
}
