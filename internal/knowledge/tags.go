package knowledge

import (
	"regexp"
	"strings"

	"github.com/kalambet/mentor/internal/agent"
)

var (
	measurementPattern = regexp.MustCompile(`(?i)\b\d+([.,]\d+)?\s?(mm|cm|m|m2|m²|sqm|km|ft|feet|foot|inches|meters|metres|square|storeys|stories|people|persons|seats)\b`)

	materialTerms = []string{
		"concrete", "timber", "wood", "steel", "glass", "brick", "stone", "clt",
		"masonry", "aluminium", "aluminum", "glulam", "plaster", "insulation", "cladding",
	}
	spatialTerms = []string{
		"circulation", "layout", "adjacent", "courtyard", "atrium", "corridor", "plan",
		"section", "volume", "threshold", "entrance", "zoning", "orientation", "spatial", "room",
	}
	technicalTerms = []string{
		"structural", "load", "thermal", "acoustic", "ventilation", "daylight", "fire",
		"egress", "code", "span", "foundation", "envelope", "hvac", "u-value", "typology",
	}
)

// Tags are the coarse content flags stored with each chunk.
type Tags struct {
	HasMeasurements bool
	HasMaterials    bool
	HasSpatialInfo  bool
}

func DetectTags(text string) Tags {
	return Tags{
		HasMeasurements: measurementPattern.MatchString(text),
		HasMaterials:    agent.ContainsAny(text, materialTerms),
		HasSpatialInfo:  agent.ContainsAny(text, spatialTerms),
	}
}

// ComplexityScore rates text density in [0,1] from word length, sentence
// length and technical vocabulary.
func ComplexityScore(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	letters := 0
	for _, w := range words {
		letters += len(w)
	}
	avgWord := float64(letters) / float64(len(words))

	sentences := strings.Count(text, ".") + strings.Count(text, "!") + strings.Count(text, "?")
	if sentences == 0 {
		sentences = 1
	}
	avgSentence := float64(len(words)) / float64(sentences)

	tech := float64(agent.CountHits(text, technicalTerms))

	score := 0.3*min(avgWord/8, 1) + 0.3*min(avgSentence/30, 1) + 0.4*min(tech/5, 1)
	return agent.Clamp01(score)
}
