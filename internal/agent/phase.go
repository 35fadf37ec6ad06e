package agent

import (
	"strings"
	"time"
)

// PhaseAnalysis describes where in the design process the conversation sits.
type PhaseAnalysis struct {
	Phase            Phase    `json:"phase"`
	Confidence       float64  `json:"confidence"`
	ProgressionScore float64  `json:"progression_score"`
	DurationSeconds  float64  `json:"duration_seconds"`
	Recommendations  []string `json:"recommendations"`
	Synthesized      bool     `json:"synthesized"`
}

var phaseKeywords = map[Phase][]string{
	PhaseIdeation: {
		"concept", "idea", "program", "brief", "explore", "approach", "vision",
		"site", "precedent", "goal", "user", "community",
	},
	PhaseVisualization: {
		"sketch", "plan", "section", "elevation", "form", "massing", "layout",
		"diagram", "circulation", "spatial", "drawing", "model",
	},
	PhaseMaterialization: {
		"material", "structure", "detail", "construction", "timber", "concrete",
		"steel", "facade", "cost", "assembly", "insulation", "joint",
	},
}

var phaseOrder = []Phase{PhaseIdeation, PhaseVisualization, PhaseMaterialization}

var phaseBase = map[Phase]float64{
	PhaseIdeation:        0.2,
	PhaseVisualization:   0.5,
	PhaseMaterialization: 0.8,
}

var phaseRecommendations = map[Phase][]string{
	PhaseIdeation: {
		"Clarify the primary user groups and their needs",
		"Study two or three precedents before committing to a form",
	},
	PhaseVisualization: {
		"Test the layout against circulation and daylight",
		"Sketch alternative massing options side by side",
	},
	PhaseMaterialization: {
		"Check material choices against climate and structure",
		"Detail one junction to validate the construction logic",
	},
}

// SynthesizePhase infers the design phase from conversation text by keyword
// density. It is the fallback when no phase detector result is available.
func SynthesizePhase(text string, userTurns int, elapsed time.Duration) PhaseAnalysis {
	lower := strings.ToLower(text)
	best := PhaseIdeation
	bestHits := 0
	for _, p := range phaseOrder {
		hits := 0
		for _, kw := range phaseKeywords[p] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = p, hits
		}
	}

	confidence := 0.3
	if bestHits > 0 {
		confidence = 0.4 + 0.15*float64(bestHits)
		if confidence > 0.95 {
			confidence = 0.95
		}
	}
	turns := userTurns
	if turns > 10 {
		turns = 10
	}
	return PhaseAnalysis{
		Phase:            best,
		Confidence:       confidence,
		ProgressionScore: Clamp01(phaseBase[best] + 0.02*float64(turns)),
		DurationSeconds:  elapsed.Seconds(),
		Recommendations:  append([]string(nil), phaseRecommendations[best]...),
		Synthesized:      true,
	}
}
