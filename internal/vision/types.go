package vision

// Classification describes what kind of drawing or image an artifact is.
type Classification struct {
	Type             string `json:"type"`
	Medium           string `json:"medium"`
	DetailLevel      string `json:"detail_level"`
	Perspective      string `json:"perspective"`
	Style            string `json:"style"`
	DevelopmentLevel string `json:"development_level"`
}

type SpatialAnalysis struct {
	Layout        string   `json:"layout"`
	Circulation   string   `json:"circulation"`
	Relationships []string `json:"relationships"`
	Scale         string   `json:"scale"`
}

type Critique struct {
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Suggestions []string `json:"suggestions"`
}

// Analysis is the structured description of an uploaded artifact.
type Analysis struct {
	Classification         Classification  `json:"classification"`
	SpatialAnalysis        SpatialAnalysis `json:"spatial_analysis"`
	DesignElements         []string        `json:"design_elements"`
	DesignIntent           string          `json:"design_intent"`
	TechnicalObservations  []string        `json:"technical_observations"`
	CritiqueAndSuggestions Critique        `json:"critique_and_suggestions"`
	ChatSummary            string          `json:"chat_summary"`
	Confidence             float64         `json:"confidence"`
}
