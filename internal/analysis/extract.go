package analysis

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kalambet/mentor/internal/agent"
)

const extractSystemPrompt = `You extract the structure of an architecture design brief. Your output must be ONLY a single valid JSON object. Do not include any other text, prose, or markdown.

Fields:
- "building_type": short noun phrase, e.g. "community center"
- "complexity": one of "simple", "moderate", "complex"
- "detail_level": one of "low", "medium", "high"
- "program_requirements": array of spaces or functions the brief asks for
- "constraints": array of site, budget, climate, occupancy or regulatory constraints
- "considerations": array of design concerns the student already mentions`

// briefFacts is the structured content of a design brief.
type briefFacts struct {
	BuildingType        string   `json:"building_type"`
	Complexity          string   `json:"complexity"`
	DetailLevel         string   `json:"detail_level"`
	ProgramRequirements []string `json:"program_requirements"`
	Constraints         []string `json:"constraints"`
	Considerations      []string `json:"considerations"`
}

func buildExtractPrompt(brief, utterance string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Design brief]\n%s\n", brief)
	if utterance != "" && utterance != brief {
		fmt.Fprintf(&sb, "\n[Latest student message]\n%s\n", utterance)
	}
	return sb.String()
}

// termLabel maps a keyword found in text to the label it stands for.
type termLabel struct {
	term  string
	label string
}

var buildingTypes = []termLabel{
	{"community center", "community center"},
	{"community centre", "community center"},
	{"civic center", "community center"},
	{"library", "library"},
	{"museum", "museum"},
	{"gallery", "gallery"},
	{"school", "school"},
	{"kindergarten", "school"},
	{"university", "educational building"},
	{"hospital", "healthcare facility"},
	{"clinic", "healthcare facility"},
	{"housing", "housing"},
	{"apartment", "housing"},
	{"residence", "housing"},
	{"house", "house"},
	{"office", "office building"},
	{"warehouse", "warehouse conversion"},
	{"factory", "industrial conversion"},
	{"theater", "theater"},
	{"theatre", "theater"},
	{"pavilion", "pavilion"},
	{"market", "market hall"},
	{"hotel", "hotel"},
	{"station", "transit station"},
	{"chapel", "religious building"},
	{"church", "religious building"},
}

var programTerms = []string{
	"auditorium", "multipurpose hall", "hall", "kitchen", "cafe", "café", "classroom",
	"workshop", "gym", "sports hall", "library", "reading room", "exhibition", "gallery",
	"offices", "meeting rooms", "storage", "toilets", "lobby", "reception", "courtyard",
	"playground", "studio", "daycare", "sauna", "garden", "parking",
}

var (
	occupancyRe = regexp.MustCompile(`(\d[\d,]*)\s*(people|persons|users|visitors|occupants|seats|students)`)
	areaRe      = regexp.MustCompile(`(\d[\d,]*)\s*(m2|m²|sqm|square meters|square metres|sq ft|square feet)`)
	budgetRe    = regexp.MustCompile(`(budget|€|\$|eur|usd)\s*\d`)
)

var climateTerms = []termLabel{
	{"nordic", "cold climate"},
	{"scandinavia", "cold climate"},
	{"arctic", "cold climate"},
	{"finland", "cold climate"},
	{"norway", "cold climate"},
	{"sweden", "cold climate"},
	{"tropical", "hot humid climate"},
	{"desert", "hot arid climate"},
	{"mediterranean", "warm dry summers"},
	{"coastal", "coastal exposure"},
	{"flood", "flood risk"},
	{"seismic", "seismic loads"},
}

var considerationTerms = []termLabel{
	{"accessib", "accessibility"},
	{"wheelchair", "accessibility"},
	{"universal design", "accessibility"},
	{"circulation", "circulation"},
	{"daylight", "daylight"},
	{"natural light", "daylight"},
	{"sustainab", "sustainability"},
	{"energy", "sustainability"},
	{"timber", "material strategy"},
	{"material", "material strategy"},
	{"context", "site context"},
	{"neighbo", "site context"},
	{"public space", "public space"},
	{"plaza", "public space"},
	{"gathering", "public space"},
	{"acoustic", "acoustics"},
	{"flexib", "flexibility"},
	{"structure", "structure"},
	{"heritage", "heritage"},
}

// extractHeuristic reads brief facts from keywords when no model is available.
func extractHeuristic(brief, utterance string) briefFacts {
	text := strings.ToLower(brief + "\n" + utterance)
	var f briefFacts

	f.BuildingType = "building"
	for _, bt := range buildingTypes {
		if strings.Contains(text, bt.term) {
			f.BuildingType = bt.label
			break
		}
	}

	for _, p := range programTerms {
		if strings.Contains(text, p) {
			f.ProgramRequirements = appendUnique(f.ProgramRequirements, p)
		}
	}

	if m := occupancyRe.FindStringSubmatch(text); m != nil {
		f.Constraints = append(f.Constraints, "occupancy of "+m[1]+" "+m[2])
	}
	if m := areaRe.FindStringSubmatch(text); m != nil {
		f.Constraints = append(f.Constraints, "floor area of "+m[1]+" "+m[2])
	}
	if budgetRe.MatchString(text) {
		f.Constraints = append(f.Constraints, "budget limit")
	}
	for _, t := range climateTerms {
		if strings.Contains(text, t.term) {
			f.Constraints = appendUnique(f.Constraints, t.label)
		}
	}

	for _, t := range considerationTerms {
		if strings.Contains(text, t.term) {
			f.Considerations = appendUnique(f.Considerations, t.label)
		}
	}

	words := agent.WordCount(brief)
	score := len(f.ProgramRequirements) + len(f.Constraints)
	switch {
	case words > 80 || score >= 6:
		f.Complexity = "complex"
	case words > 25 || score >= 3:
		f.Complexity = "moderate"
	default:
		f.Complexity = "simple"
	}

	lowerBrief := strings.ToLower(brief)
	numbers := len(occupancyRe.FindAllString(lowerBrief, -1)) + len(areaRe.FindAllString(lowerBrief, -1))
	switch {
	case numbers >= 2 || words > 100:
		f.DetailLevel = "high"
	case numbers == 1 || words > 40:
		f.DetailLevel = "medium"
	default:
		f.DetailLevel = "low"
	}
	return f
}

// normalize fills gaps in model output from the heuristic reading.
func (f briefFacts) normalize(h briefFacts) briefFacts {
	if strings.TrimSpace(f.BuildingType) == "" {
		f.BuildingType = h.BuildingType
	}
	switch f.Complexity {
	case "simple", "moderate", "complex":
	default:
		f.Complexity = h.Complexity
	}
	switch f.DetailLevel {
	case "low", "medium", "high":
	default:
		f.DetailLevel = h.DetailLevel
	}
	if len(f.ProgramRequirements) == 0 {
		f.ProgramRequirements = h.ProgramRequirements
	}
	if len(f.Constraints) == 0 {
		f.Constraints = h.Constraints
	}
	for _, c := range h.Considerations {
		f.Considerations = appendUnique(f.Considerations, c)
	}
	return f
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return list
		}
	}
	return append(list, v)
}
