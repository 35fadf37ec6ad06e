package analysis

import (
	"github.com/kalambet/mentor/internal/agent"
)

const maxFocusAreas = 3

// coreConsiderations are expected of every brief.
var coreConsiderations = []string{
	"accessibility", "circulation", "daylight", "site context", "sustainability", "material strategy",
}

// synthesize scores how well the conversation covers the expected
// considerations and recommends where to focus next.
func synthesize(a agent.Analysis, c agent.Classification, brief string, flags []string) agent.Synthesis {
	expected := coreConsiderations
	if isPublic(a.BuildingType) {
		expected = append(append([]string(nil), coreConsiderations...), "public space")
	}

	covered := make(map[string]bool, len(a.Considerations))
	for _, x := range a.Considerations {
		covered[x] = true
	}
	var missing []string
	for _, e := range expected {
		if !covered[e] {
			missing = append(missing, e)
		}
	}

	s := agent.Synthesis{
		AlignmentScore:        agent.Clamp01(float64(len(expected)-len(missing)) / float64(len(expected))),
		MissingConsiderations: missing,
	}

	add := func(f agent.FocusArea) {
		if len(s.NextFocusAreas) >= maxFocusAreas {
			return
		}
		for _, x := range s.NextFocusAreas {
			if x == f {
				return
			}
		}
		s.NextFocusAreas = append(s.NextFocusAreas, f)
	}

	if len(missing)*2 > len(expected) || agent.WordCount(brief) < 15 {
		add(agent.FocusBriefDevelopment)
	}
	if c.ShowsOverconfidence || c.ConfidenceLevel == agent.Overconfident || hasRaw(flags, "ready_for_challenge") {
		add(agent.FocusCognitiveChallenge)
	}
	if c.IsTechnicalQuestion || c.IsKnowledgeSeeking {
		add(agent.FocusDomainExpertise)
	}
	if a.HasVisual {
		add(agent.FocusSpatialAnalysis)
	}
	add(agent.FocusSocraticQuestioning)
	return s
}

func hasRaw(flags []string, name string) bool {
	for _, f := range flags {
		if f == name {
			return true
		}
	}
	return false
}
