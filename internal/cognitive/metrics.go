package cognitive

import (
	"strings"

	"github.com/kalambet/mentor/internal/agent"
)

var (
	challengeTerms = []string{
		"why", "what if", "evidence", "alternative", "assumption", "how would", "what would",
		"consider", "weakness", "how do you know",
	}
	directAnswerTerms = []string{
		"the answer is", "simply do", "you should just", "here is the solution", "the solution is",
		"just use", "do this:", "the correct design is", "you must use",
	}
	deepThinkingTerms = []string{
		"consider", "why", "what if", "analyze", "analyse", "reflect", "compare", "how might",
		"implication", "trade-off", "tradeoff", "reason",
	}
	scaffoldingTerms = []string{
		"let's start with", "first consider", "let's break", "step by step", "begin with",
		"start by", "one step", "first,", "before drawing", "let's work",
	}
	metacognitiveTerms = []string{
		"assumption", "how do you know", "what evidence", "reflect", "your reasoning", "rethink",
		"least sure", "convince you",
	}
)

// MeasureInput is everything the metric rubric looks at for one response.
type MeasureInput struct {
	Turn     agent.Turn
	Text     string
	Strategy agent.Strategy
	// Sources are the knowledge passages available to the response.
	Sources []agent.Source
}

// Measure scores a response on the six enhancement metrics. All scores are
// bounded to [0,1] and OverallCognitiveScore is their mean.
func Measure(in MeasureInput) agent.EnhancementMetrics {
	lower := strings.ToLower(in.Text)
	m := agent.EnhancementMetrics{
		CognitiveOffloadingPrevention: offloadingPrevention(lower),
		DeepThinkingEngagement:        0.2 + 0.15*float64(agent.CountHits(lower, deepThinkingTerms)),
		KnowledgeIntegration:          knowledgeIntegration(lower, in.Sources),
		ScaffoldingEffectiveness:      scaffolding(lower, in.Turn.Analysis),
		LearningProgression:           progression(in.Turn),
		MetacognitiveAwareness:        metacognition(lower, in.Strategy),
		ScientificConfidence:          scientificConfidence(in.Turn),
	}
	return m.Finalize()
}

func offloadingPrevention(lower string) float64 {
	score := 0.2
	if strings.Contains(lower, "?") {
		score += 0.4
	}
	score += 0.1 * float64(min(agent.CountHits(lower, challengeTerms), 2))
	if direct := agent.CountHits(lower, directAnswerTerms); direct == 0 {
		score += 0.2
	} else {
		score -= 0.2 * float64(direct)
	}
	return score
}

func knowledgeIntegration(lower string, sources []agent.Source) float64 {
	if len(sources) == 0 {
		return 0.1
	}
	score := 0.5 + 0.1*float64(min(len(sources), 3))
	for _, s := range sources {
		if s.Title != "" && strings.Contains(lower, strings.ToLower(s.Title)) {
			score += 0.1
			break
		}
	}
	return score
}

func scaffolding(lower string, a agent.Analysis) float64 {
	gaps := a.Synthesis.MissingConsiderations
	hits := min(agent.CountHits(lower, scaffoldingTerms), 2)
	if len(gaps) == 0 && len(a.Observations) == 0 {
		return 0.5 + 0.2*float64(hits)
	}
	score := 0.3 + 0.2*float64(hits)
	for _, g := range gaps {
		if strings.Contains(lower, strings.ToLower(g)) {
			score += 0.2
			break
		}
	}
	return score
}

func progression(t agent.Turn) float64 {
	score := 0.3 + 0.1*float64(stageIndex(agent.StageForTurns(t.State.UserTurns())))
	switch t.Classification.ConfidenceLevel {
	case agent.Confident:
		score += 0.2
	case agent.Uncertain:
		score += 0.05
	}
	if t.Analysis.Skill.Updated {
		score += 0.1
	}
	return score
}

func metacognition(lower string, s agent.Strategy) float64 {
	switch s {
	case agent.AssumptionChallenge, agent.DepthPromotion, agent.ChallengingQuestion:
		return 0.8
	}
	score := 0.3
	if agent.ContainsAny(lower, metacognitiveTerms) {
		score += 0.2
	}
	return score
}

// scientificConfidence grows with conversation evidence and drops when the
// classification came from heuristics alone.
func scientificConfidence(t agent.Turn) float64 {
	score := 0.4 + 0.1*float64(min(t.State.UserTurns(), 4))
	if t.Classification.Heuristic {
		score -= 0.1
	}
	return min(score, 0.9)
}

func stageIndex(s agent.Stage) int {
	switch s {
	case agent.StageExploration:
		return 1
	case agent.StageDeepening:
		return 2
	case agent.StageAdvanced:
		return 3
	default:
		return 0
	}
}
