package interactions

import (
	"strings"

	"github.com/google/uuid"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/classifier"
	"github.com/kalambet/mentor/internal/orchestrator"
	"github.com/kalambet/mentor/internal/session"
)

var transitionTerms = []string{
	"building on", "with that in mind", "looking at", "thinking about", "before ", "let's",
	"now ", "so ", "however", "in light of", "given that", "here is what",
}

var directAnswerTerms = []string{"the answer is", "simply do", "here is the solution", "the solution is", "you should just"}

// buildRecord turns an orchestrator result into a log record, synthesizing
// any metrics or state the result is missing.
func buildRecord(st session.State, res orchestrator.Result, seq int) Record {
	meta := res.Metadata
	c := res.Classification
	if c.InputType == "" {
		c.InputType = classifier.DeriveInputType(c)
	}

	r := Record{
		ID:             uuid.New().String(),
		SessionID:      res.SessionID,
		Seq:            seq,
		Timestamp:      res.UserMessage.TS,
		StudentInput:   res.Input,
		AgentResponse:  res.Response,
		InputLength:    len([]rune(res.Input)),
		ResponseLength: len([]rune(res.Response)),
		InputType:      c.InputType,
		Classification: c,
		RoutingPath:    res.RoutingPath,
		AgentsUsed:     meta.AgentsUsed,
		ResponseType:   meta.ResponseType,
		Strategy:       meta.Strategy,
		Sources:        meta.Sources,
		SourcesCount:   len(meta.Sources),
		CognitiveFlags: meta.CognitiveFlags,
		SkillLevel:     st.Profile.SkillLevel,
		Phase:          meta.PhaseAnalysis,
		ResponseTimeMs: meta.ProcessingMs,
		Degraded:       meta.Degraded,
		Rerouted:       meta.Rerouted,
	}

	if r.Phase.Phase == "" {
		r.Phase = agent.SynthesizePhase(st.Brief+"\n"+res.Input+"\n"+res.Response, st.UserTurns(), res.UserMessage.TS.Sub(st.CreatedAt))
	}

	if isZeroMetrics(meta.ScientificMetrics) {
		r.ScientificMetrics = fallbackMetrics(res, meta.Analysis.Skill.Confidence)
		r.MetricsSynthesized = true
	} else {
		r.ScientificMetrics = meta.ScientificMetrics.Finalize()
	}

	if meta.CognitiveState == (agent.CognitiveState{}) {
		r.StateSynthesized = true
	}
	r.CognitiveState = withStateDefaults(meta.CognitiveState, c.EngagementLevel)

	r.Performance = evaluate(r, res)
	return r
}

func isZeroMetrics(m agent.EnhancementMetrics) bool {
	return m == agent.EnhancementMetrics{}
}

// fallbackMetrics scores a turn from the raw signals when the orchestrator
// supplied no metrics:
// engagement = 0.5 + 0.3 if deep thinking was flagged + 0.2 if confidence > 0.7,
// complexity = 0.4 + input length tier, reflection = 0.3 + 0.4 if the
// response asks a question.
func fallbackMetrics(res orchestrator.Result, confidence float64) agent.EnhancementMetrics {
	flags := res.Metadata.CognitiveFlags

	engagement := 0.5
	if agent.HasFlag(flags, agent.FlagDeepThinkingEncouraged) {
		engagement += 0.3
	}
	if confidence > 0.7 {
		engagement += 0.2
	}

	complexity := 0.4
	switch words := agent.WordCount(res.Input); {
	case words > 50:
		complexity += 0.3
	case words > 20:
		complexity += 0.2
	case words > 8:
		complexity += 0.1
	}

	reflection := 0.3
	if strings.Contains(res.Response, "?") {
		reflection += 0.4
	}

	scaffolding := 0.4
	if agent.HasFlag(flags, agent.FlagScaffoldingProvided) {
		scaffolding += 0.3
	}
	knowledge := 0.1
	if len(res.Metadata.Sources) > 0 {
		knowledge = 0.6
	}
	meta := 0.3
	if agent.HasFlag(flags, agent.FlagMetacognitiveAwareness) {
		meta += 0.3
	}

	return agent.EnhancementMetrics{
		CognitiveOffloadingPrevention: reflection,
		DeepThinkingEngagement:        engagement,
		KnowledgeIntegration:          knowledge,
		ScaffoldingEffectiveness:      scaffolding,
		LearningProgression:           complexity,
		MetacognitiveAwareness:        meta,
		ScientificConfidence:          0.3,
	}.Finalize()
}

// withStateDefaults replaces unknown cognitive state fields with the
// documented defaults.
func withStateDefaults(s agent.CognitiveState, engagement agent.Level) agent.CognitiveState {
	if s.EngagementLevel == "" {
		s.EngagementLevel = engagement
		if s.EngagementLevel == "" {
			s.EngagementLevel = agent.Medium
		}
	}
	if s.CognitiveLoad == "" {
		s.CognitiveLoad = agent.LoadOptimal
	}
	if s.PassivityLevel == "" {
		s.PassivityLevel = agent.Low
	}
	if s.OverconfidenceLevel == "" {
		s.OverconfidenceLevel = agent.Low
	}
	if s.ConversationDepth == "" {
		s.ConversationDepth = agent.DepthShallow
	}
	if s.ProgressionTrend == "" {
		s.ProgressionTrend = agent.TrendInsufficientData
	}
	return s
}

func evaluate(r Record, res orchestrator.Result) Performance {
	lower := strings.ToLower(r.AgentResponse)
	asks := strings.Contains(r.AgentResponse, "?")
	m := r.ScientificMetrics

	responders := 0
	for _, n := range r.AgentsUsed {
		if n != agent.ContextAgent && n != agent.AnalysisAgent {
			responders++
		}
	}
	expected := agent.Route(r.Classification)
	appropriate := r.RoutingPath == expected || (res.Metadata.Rerouted && res.Metadata.RoutedFrom == expected)

	return Performance{
		PreventsOffloading:        asks && !agent.ContainsAny(lower, directAnswerTerms),
		EncouragesDeepThinking:    m.DeepThinkingEngagement >= 0.5 || agent.HasFlag(r.CognitiveFlags, agent.FlagDeepThinkingEncouraged),
		ProvidesScaffolding:       m.ScaffoldingEffectiveness >= 0.6 || agent.HasFlag(r.CognitiveFlags, agent.FlagScaffoldingProvided),
		MaintainsEngagement:       asks || agent.HasFlag(r.CognitiveFlags, agent.FlagEngagementMaintained),
		AdaptsToSkill:             adaptsToSkill(r.SkillLevel, agent.WordCount(r.AgentResponse)),
		AppropriateAgentSelection: appropriate,
		ResponseCoherence:         responders <= 1 || agent.ContainsAny(lower, transitionTerms),
	}
}

// adaptsToSkill checks the reply length against what suits the level.
func adaptsToSkill(level session.SkillLevel, words int) bool {
	switch level {
	case session.Beginner:
		return words > 0 && words <= 150
	case session.Advanced:
		return words >= 15
	default:
		return words >= 10 && words <= 250
	}
}
