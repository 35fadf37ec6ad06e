package agent

import "strings"

type Flag string

const (
	FlagDeepThinkingEncouraged      Flag = "deep_thinking_encouraged"
	FlagScaffoldingProvided         Flag = "scaffolding_provided"
	FlagCognitiveOffloadingDetected Flag = "cognitive_offloading_detected"
	FlagEngagementMaintained        Flag = "engagement_maintained"
	FlagLearningProgression         Flag = "learning_progression"
	FlagMetacognitiveAwareness      Flag = "metacognitive_awareness"
)

// CanonicalFlags is the full vocabulary, in a stable order.
var CanonicalFlags = []Flag{
	FlagDeepThinkingEncouraged,
	FlagScaffoldingProvided,
	FlagCognitiveOffloadingDetected,
	FlagEngagementMaintained,
	FlagLearningProgression,
	FlagMetacognitiveAwareness,
}

// flagAliases maps the looser names agents use internally onto the canonical set.
var flagAliases = map[string]Flag{
	"deep_thinking":                 FlagDeepThinkingEncouraged,
	"deep_thinking_encouraged":      FlagDeepThinkingEncouraged,
	"encourages_deep_thinking":      FlagDeepThinkingEncouraged,
	"ready_for_challenge":           FlagDeepThinkingEncouraged,
	"scaffolding":                   FlagScaffoldingProvided,
	"scaffolding_provided":          FlagScaffoldingProvided,
	"needs_scaffolding":             FlagScaffoldingProvided,
	"missing_accessibility":         FlagScaffoldingProvided,
	"missing_public_space":          FlagScaffoldingProvided,
	"brief_underdeveloped":          FlagScaffoldingProvided,
	"cognitive_offloading":          FlagCognitiveOffloadingDetected,
	"cognitive_offloading_detected": FlagCognitiveOffloadingDetected,
	"offloading_attempt":            FlagCognitiveOffloadingDetected,
	"direct_answer_request":         FlagCognitiveOffloadingDetected,
	"engagement":                    FlagEngagementMaintained,
	"engagement_maintained":         FlagEngagementMaintained,
	"low_engagement":                FlagEngagementMaintained,
	"learning_progression":          FlagLearningProgression,
	"complexity_mismatch":           FlagLearningProgression,
	"skill_progression":             FlagLearningProgression,
	"metacognitive_awareness":       FlagMetacognitiveAwareness,
	"metacognition":                 FlagMetacognitiveAwareness,
	"overconfidence":                FlagMetacognitiveAwareness,
	"assumption_challenge":          FlagMetacognitiveAwareness,
}

// CanonicalFlag maps any known flag name to the canonical vocabulary.
func CanonicalFlag(name string) (Flag, bool) {
	f, ok := flagAliases[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// NormalizeFlags maps names to canonical flags, dropping unknown ones and
// duplicates while keeping first-seen order.
func NormalizeFlags(names []string) []Flag {
	var out []Flag
	seen := make(map[Flag]bool)
	for _, n := range names {
		f, ok := CanonicalFlag(n)
		if !ok || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// MergeFlags unions flag lists, keeping first-seen order.
func MergeFlags(lists ...[]Flag) []Flag {
	var out []Flag
	seen := make(map[Flag]bool)
	for _, l := range lists {
		for _, f := range l {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

func HasFlag(flags []Flag, f Flag) bool {
	for _, x := range flags {
		if x == f {
			return true
		}
	}
	return false
}
