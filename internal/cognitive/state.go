package cognitive

import (
	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/session"
)

// EstimateState reads the learner's cognitive state from the current
// classification and the shape of their recent messages.
func EstimateState(t agent.Turn) agent.CognitiveState {
	c := t.Classification
	words := userWordCounts(t.State)

	st := agent.CognitiveState{
		EngagementLevel:     orLevel(c.EngagementLevel, agent.Medium),
		CognitiveLoad:       agent.LoadOptimal,
		PassivityLevel:      agent.Low,
		OverconfidenceLevel: agent.Low,
		ConversationDepth:   depth(len(words), mean(words)),
		ProgressionTrend:    trend(words),
	}

	switch {
	case c.ShowsConfusion,
		t.State.Profile.SkillLevel == session.Beginner && t.Analysis.Complexity == "complex":
		st.CognitiveLoad = agent.LoadOver
	case c.EngagementLevel == agent.Low && agent.WordCount(t.Utterance) < 8:
		st.CognitiveLoad = agent.LoadUnder
	}

	switch {
	case c.RequestsDirectAnswer:
		st.PassivityLevel = agent.High
	case c.EngagementLevel == agent.Low:
		st.PassivityLevel = agent.Medium
	}

	switch {
	case c.ConfidenceLevel == agent.Overconfident && c.EngagementLevel != agent.High:
		st.OverconfidenceLevel = agent.High
	case c.ConfidenceLevel == agent.Overconfident || c.ShowsOverconfidence:
		st.OverconfidenceLevel = agent.Medium
	}
	return st
}

func userWordCounts(st session.State) []int {
	var out []int
	for _, m := range st.Messages {
		if m.Role == session.RoleUser {
			out = append(out, agent.WordCount(m.Content))
		}
	}
	return out
}

func depth(turns int, meanWords float64) string {
	switch {
	case turns >= 7 || meanWords > 40:
		return agent.DepthDeep
	case turns >= 3 || meanWords > 15:
		return agent.DepthModerate
	default:
		return agent.DepthShallow
	}
}

// trend compares the mean length of the latest three user messages with
// the three before them.
func trend(words []int) string {
	if len(words) < 4 {
		return agent.TrendInsufficientData
	}
	recent := words[len(words)-3:]
	start := len(words) - 6
	if start < 0 {
		start = 0
	}
	earlier := words[start : len(words)-3]
	r, e := mean(recent), mean(earlier)
	switch {
	case r > e*1.2:
		return agent.TrendImproving
	case r < e*0.8:
		return agent.TrendDeclining
	default:
		return agent.TrendStable
	}
}

func mean(v []int) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0
	for _, x := range v {
		sum += x
	}
	return float64(sum) / float64(len(v))
}

func orLevel(l, def agent.Level) agent.Level {
	if l == "" {
		return def
	}
	return l
}
