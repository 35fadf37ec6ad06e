package socratic

import "github.com/kalambet/mentor/internal/agent"

const detailedBriefWords = 100

// Inputs are the only values strategy selection depends on.
type Inputs struct {
	Stage        agent.Stage
	Confidence   agent.Confidence
	Engagement   agent.Level
	Confused     bool
	IsQuestion   bool
	MessageWords int
	Milestone    *agent.MilestoneContext
}

// InputsFor collects selection inputs from a turn.
func InputsFor(t agent.Turn) Inputs {
	c := t.Classification
	conf := c.ConfidenceLevel
	if c.ShowsOverconfidence {
		conf = agent.Overconfident
	}
	return Inputs{
		Stage:        agent.StageForTurns(t.State.UserTurns()),
		Confidence:   conf,
		Engagement:   c.EngagementLevel,
		Confused:     c.ShowsConfusion,
		IsQuestion:   c.IsQuestion,
		MessageWords: agent.WordCount(t.Utterance),
		Milestone:    t.Milestone,
	}
}

var milestoneStrategies = map[agent.MilestoneType]agent.Strategy{
	agent.KnowledgeAcquisition: agent.SupportiveGuidance,
	agent.SkillDemonstration:   agent.ChallengingQuestion,
	agent.InsightFormation:     agent.ExploratoryQuestion,
	agent.ProblemSolving:       agent.AssumptionChallenge,
	agent.ReflectionPoint:      agent.DepthPromotion,
	agent.ReadinessAssessment:  agent.ClarifyingGuidance,
}

// SelectStrategy is deterministic: equal inputs give equal strategies.
// A recognized milestone overrides every other rule.
func SelectStrategy(in Inputs) agent.Strategy {
	if in.Milestone != nil {
		if s, ok := milestoneStrategies[in.Milestone.MilestoneType]; ok {
			return s
		}
	}
	switch {
	case in.MessageWords > detailedBriefWords:
		return agent.SupportiveGuidance
	case in.Confidence == agent.Overconfident && in.Engagement == agent.Low:
		return agent.AssumptionChallenge
	case in.IsQuestion && in.MessageWords <= 15 && in.Stage == agent.StageDeepening:
		return agent.DepthPromotion
	case in.Confused:
		return agent.ClarifyingGuidance
	case in.Confidence == agent.Uncertain:
		return agent.SupportiveGuidance
	case in.Engagement == agent.High:
		return agent.ExploratoryQuestion
	case in.Stage == agent.StageInitial:
		return agent.FoundationalQuestion
	default:
		return agent.AdaptiveQuestion
	}
}

var strategyFlags = map[agent.Strategy][]agent.Flag{
	agent.SupportiveGuidance:   {agent.FlagScaffoldingProvided, agent.FlagEngagementMaintained},
	agent.AssumptionChallenge:  {agent.FlagMetacognitiveAwareness, agent.FlagDeepThinkingEncouraged},
	agent.DepthPromotion:       {agent.FlagDeepThinkingEncouraged, agent.FlagMetacognitiveAwareness},
	agent.ClarifyingGuidance:   {agent.FlagScaffoldingProvided},
	agent.ExploratoryQuestion:  {agent.FlagDeepThinkingEncouraged, agent.FlagEngagementMaintained},
	agent.FoundationalQuestion: {agent.FlagScaffoldingProvided, agent.FlagLearningProgression},
	agent.AdaptiveQuestion:     {agent.FlagEngagementMaintained, agent.FlagLearningProgression},
	agent.ChallengingQuestion:  {agent.FlagMetacognitiveAwareness, agent.FlagLearningProgression},
}
