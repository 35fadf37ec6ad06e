package classifier

import (
	"strings"

	"github.com/kalambet/mentor/internal/agent"
)

var (
	confusionTerms = []string{
		"confused", "confusing", "don't understand", "do not understand", "not sure",
		"unclear", "i'm lost", "i am lost", "struggling", "what do you mean", "don't get",
	}
	overconfidenceTerms = []string{
		"obviously", "perfect", "definitely", "clearly the best", "no doubt", "flawless",
		"nothing to improve", "certainly", "always works", "can't be improved",
	}
	uncertaintyTerms = []string{"maybe", "perhaps", "i think", "might", "not sure", "i guess", "unsure"}
	feedbackTerms    = []string{
		"feedback", "what do you think", "review my", "critique", "thoughts on my",
		"how does my", "is my design", "evaluate my", "how is my", "assess my",
	}
	improvementTerms = []string{"improve", "make it better", "how can i make", "enhance", "refine", "strengthen"}
	technicalTerms   = []string{
		"building code", "regulation", "structural", "load", "span", "u-value", "thermal",
		"fire", "egress", "dimension", "how thick", "how wide", "how tall", "hvac",
		"ventilation", "calculate", "minimum width", "ceiling height", "setback", "insulation value",
	}
	knowledgeTerms = []string{
		"precedent", "example", "case study", "case studies", "reference", "what are some",
		"who designed", "history of", "examples of", "research on", "projects like",
	}
	directAnswerTerms = []string{
		"just tell me", "give me the answer", "what's the answer", "what is the answer",
		"do it for me", "design it for me", "tell me what to do", "just give me",
		"write it for me", "solve it for me", "give me the solution",
	}
	questionStarters = []string{
		"what", "why", "how", "when", "where", "which", "who", "should", "could",
		"would", "can", "is", "are", "do", "does", "will",
	}
	architectureTerms = []string{
		"circulation", "massing", "program", "site", "facade", "structure", "daylight",
		"threshold", "section", "plan", "context", "material", "scale", "user",
	}
)

// Heuristic classifies an utterance from keyword lists alone.
func Heuristic(utterance string) agent.Classification {
	text := strings.TrimSpace(utterance)
	lower := strings.ToLower(text)
	words := agent.WordCount(text)

	c := agent.Classification{
		ShowsConfusion:       agent.ContainsAny(lower, confusionTerms),
		ShowsOverconfidence:  agent.ContainsAny(lower, overconfidenceTerms),
		IsFeedbackRequest:    agent.ContainsAny(lower, feedbackTerms),
		IsImprovementSeeking: agent.ContainsAny(lower, improvementTerms),
		IsKnowledgeSeeking:   agent.ContainsAny(lower, knowledgeTerms),
		RequestsDirectAnswer: agent.ContainsAny(lower, directAnswerTerms),
		IsQuestion:           isQuestion(lower),
		Heuristic:            true,
	}
	c.IsTechnicalQuestion = c.IsQuestion && agent.ContainsAny(lower, technicalTerms)

	switch {
	case c.ShowsOverconfidence:
		c.ConfidenceLevel = agent.Overconfident
	case c.ShowsConfusion || agent.ContainsAny(lower, uncertaintyTerms):
		c.ConfidenceLevel = agent.Uncertain
	default:
		c.ConfidenceLevel = agent.Confident
	}

	switch {
	case c.ShowsConfusion:
		c.UnderstandingLevel = agent.Low
	case words > 40 && agent.CountHits(lower, architectureTerms) >= 3:
		c.UnderstandingLevel = agent.High
	default:
		c.UnderstandingLevel = agent.Medium
	}

	switch {
	case words > 30 || (c.IsQuestion && words > 12):
		c.EngagementLevel = agent.High
	case words < 8 && !c.IsQuestion:
		c.EngagementLevel = agent.Low
	default:
		c.EngagementLevel = agent.Medium
	}

	var flags []string
	if c.RequestsDirectAnswer {
		flags = append(flags, "cognitive_offloading")
	}
	if c.ShowsOverconfidence {
		flags = append(flags, "overconfidence")
	}
	if c.ShowsConfusion {
		flags = append(flags, "needs_scaffolding")
	}
	if c.EngagementLevel == agent.Low {
		flags = append(flags, "low_engagement")
	}
	if c.EngagementLevel == agent.High {
		flags = append(flags, "deep_thinking")
	}
	c.CognitiveFlags = agent.NormalizeFlags(flags)
	c.AIReasoning = "keyword heuristics"
	return finish(c)
}

func isQuestion(lower string) bool {
	if strings.Contains(lower, "?") {
		return true
	}
	fields := strings.Fields(lower)
	if len(fields) == 0 {
		return false
	}
	first := strings.Trim(fields[0], ",.!:;")
	for _, q := range questionStarters {
		if first == q {
			return true
		}
	}
	return false
}
