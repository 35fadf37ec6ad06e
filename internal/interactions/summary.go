package interactions

import (
	"sort"

	"github.com/kalambet/mentor/internal/agent"
)

// Baseline values for a tutor that hands out answers, used to compute the
// improvement percentages in a session summary.
var baselines = []struct {
	key   string
	value float64
}{
	{"cognitive_offloading_prevention", 0.3},
	{"deep_thinking_engagement", 0.4},
	{"scaffolding_effectiveness", 0.5},
	{"knowledge_integration", 0.2},
	{"sources_per_interaction", 0.5},
	{"skill_adaptation", 0.3},
}

const trendThreshold = 0.05

// Rates are the share of interactions that passed each quality check.
type Rates struct {
	PreventsOffloading        float64 `json:"cognitive_offloading_prevention_rate"`
	EncouragesDeepThinking    float64 `json:"deep_thinking_engagement_rate"`
	ProvidesScaffolding       float64 `json:"scaffolding_rate"`
	MaintainsEngagement       float64 `json:"engagement_rate"`
	AdaptsToSkill             float64 `json:"skill_adaptation_rate"`
	AppropriateAgentSelection float64 `json:"agent_selection_rate"`
	ResponseCoherence         float64 `json:"response_coherence_rate"`
	KnowledgeIntegration      float64 `json:"knowledge_integration_rate"`
}

// MetricsSummary holds the mean scientific metrics and their direction.
type MetricsSummary struct {
	Means               agent.EnhancementMetrics `json:"means"`
	CognitiveScoreTrend string                   `json:"cognitive_score_trend"`
}

// BaselineDelta compares one session measure with its baseline.
type BaselineDelta struct {
	Baseline       float64 `json:"baseline"`
	Current        float64 `json:"current"`
	ImprovementPct float64 `json:"improvement_pct"`
}

// Summary aggregates one session's interactions.
type Summary struct {
	SessionID             string                    `json:"session_id"`
	TotalInteractions     int                       `json:"total_interactions"`
	TotalMoves            int                       `json:"total_design_moves"`
	DurationSeconds       float64                   `json:"duration_seconds"`
	Rates                 Rates                     `json:"rates"`
	ScientificMetrics     MetricsSummary            `json:"scientific_metrics_summary"`
	DominantPhase         agent.Phase               `json:"dominant_phase"`
	PhaseDistribution     map[agent.Phase]int       `json:"phase_distribution"`
	MoveTypeDistribution  map[agent.MoveType]int    `json:"move_type_distribution"`
	ModalityDistribution  map[string]int            `json:"modality_distribution"`
	RoutingDistribution   map[agent.RoutingPath]int `json:"routing_distribution"`
	InputTypeDistribution map[agent.InputType]int   `json:"input_type_distribution"`
	CognitiveState        agent.CognitiveState      `json:"cognitive_state_modes"`
	SourcesPerInteraction float64                   `json:"sources_per_interaction"`
	DegradedInteractions  int                       `json:"degraded_interactions"`
	BaselineComparison    map[string]BaselineDelta  `json:"baseline_comparison"`
	AgentUsage            map[agent.Name]int        `json:"agent_usage"`
	FlagCounts            map[agent.Flag]int        `json:"cognitive_flag_counts"`
	ResponseTypes         map[string]int            `json:"response_types"`
	StrategyDistribution  map[agent.Strategy]int    `json:"strategy_distribution"`
}

// Summarize aggregates records and moves. It is pure; an empty session
// yields zero rates and an insufficient_data trend.
func Summarize(sessionID string, records []Record, moves []DesignMove) Summary {
	s := Summary{
		SessionID:             sessionID,
		TotalInteractions:     len(records),
		TotalMoves:            len(moves),
		PhaseDistribution:     make(map[agent.Phase]int),
		MoveTypeDistribution:  make(map[agent.MoveType]int),
		ModalityDistribution:  make(map[string]int),
		RoutingDistribution:   make(map[agent.RoutingPath]int),
		InputTypeDistribution: make(map[agent.InputType]int),
		BaselineComparison:    make(map[string]BaselineDelta),
		AgentUsage:            make(map[agent.Name]int),
		FlagCounts:            make(map[agent.Flag]int),
		ResponseTypes:         make(map[string]int),
		StrategyDistribution:  make(map[agent.Strategy]int),
	}
	for _, m := range moves {
		s.MoveTypeDistribution[m.MoveType]++
		s.ModalityDistribution[m.Modality]++
	}

	n := len(records)
	if n == 0 {
		s.ScientificMetrics.CognitiveScoreTrend = agent.TrendInsufficientData
		s.CognitiveState = withStateDefaults(agent.CognitiveState{}, "")
		s.BaselineComparison = compareBaselines(Rates{}, 0)
		return s
	}

	var rates Rates
	var sum agent.EnhancementMetrics
	sources := 0
	states := newStateModes()
	for _, r := range records {
		p := r.Performance
		rates.PreventsOffloading += boolRate(p.PreventsOffloading)
		rates.EncouragesDeepThinking += boolRate(p.EncouragesDeepThinking)
		rates.ProvidesScaffolding += boolRate(p.ProvidesScaffolding)
		rates.MaintainsEngagement += boolRate(p.MaintainsEngagement)
		rates.AdaptsToSkill += boolRate(p.AdaptsToSkill)
		rates.AppropriateAgentSelection += boolRate(p.AppropriateAgentSelection)
		rates.ResponseCoherence += boolRate(p.ResponseCoherence)
		rates.KnowledgeIntegration += boolRate(r.SourcesCount > 0)

		sum = addMetrics(sum, r.ScientificMetrics)
		sources += r.SourcesCount
		states.add(r.CognitiveState)

		s.PhaseDistribution[r.Phase.Phase]++
		s.RoutingDistribution[r.RoutingPath]++
		s.InputTypeDistribution[r.InputType]++
		s.ResponseTypes[r.ResponseType]++
		if r.Strategy != "" {
			s.StrategyDistribution[r.Strategy]++
		}
		for _, a := range r.AgentsUsed {
			s.AgentUsage[a]++
		}
		for _, f := range r.CognitiveFlags {
			s.FlagCounts[f]++
		}
		if r.Degraded {
			s.DegradedInteractions++
		}
	}

	s.Rates = scaleRates(rates, float64(n))
	s.ScientificMetrics = MetricsSummary{
		Means:               scaleMetrics(sum, float64(n)),
		CognitiveScoreTrend: scoreTrend(records),
	}
	s.SourcesPerInteraction = float64(sources) / float64(n)
	s.DominantPhase = dominantPhase(s.PhaseDistribution)
	s.CognitiveState = states.modes()
	s.DurationSeconds = records[n-1].Timestamp.Sub(records[0].Timestamp).Seconds()
	s.BaselineComparison = compareBaselines(s.Rates, s.SourcesPerInteraction)
	return s
}

func compareBaselines(r Rates, sourcesPer float64) map[string]BaselineDelta {
	current := map[string]float64{
		"cognitive_offloading_prevention": r.PreventsOffloading,
		"deep_thinking_engagement":        r.EncouragesDeepThinking,
		"scaffolding_effectiveness":       r.ProvidesScaffolding,
		"knowledge_integration":           r.KnowledgeIntegration,
		"sources_per_interaction":         sourcesPer,
		"skill_adaptation":                r.AdaptsToSkill,
	}
	out := make(map[string]BaselineDelta, len(baselines))
	for _, b := range baselines {
		cur := current[b.key]
		out[b.key] = BaselineDelta{
			Baseline:       b.value,
			Current:        cur,
			ImprovementPct: (cur - b.value) / b.value * 100,
		}
	}
	return out
}

// scoreTrend compares the mean overall score of the second half of the
// session with the first half.
func scoreTrend(records []Record) string {
	n := len(records)
	if n < 2 {
		return agent.TrendInsufficientData
	}
	half := n / 2
	first := meanOverall(records[:half])
	second := meanOverall(records[half:])
	switch d := second - first; {
	case d > trendThreshold:
		return agent.TrendImproving
	case d < -trendThreshold:
		return agent.TrendDeclining
	default:
		return agent.TrendStable
	}
}

func meanOverall(records []Record) float64 {
	total := 0.0
	for _, r := range records {
		total += r.ScientificMetrics.OverallCognitiveScore
	}
	return total / float64(len(records))
}

// dominantPhase picks the most frequent phase; ties go to the earlier phase.
func dominantPhase(dist map[agent.Phase]int) agent.Phase {
	best, bestN := agent.PhaseIdeation, -1
	for _, p := range []agent.Phase{agent.PhaseIdeation, agent.PhaseVisualization, agent.PhaseMaterialization} {
		if dist[p] > bestN {
			best, bestN = p, dist[p]
		}
	}
	return best
}

func boolRate(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func scaleRates(r Rates, n float64) Rates {
	return Rates{
		PreventsOffloading:        r.PreventsOffloading / n,
		EncouragesDeepThinking:    r.EncouragesDeepThinking / n,
		ProvidesScaffolding:       r.ProvidesScaffolding / n,
		MaintainsEngagement:       r.MaintainsEngagement / n,
		AdaptsToSkill:             r.AdaptsToSkill / n,
		AppropriateAgentSelection: r.AppropriateAgentSelection / n,
		ResponseCoherence:         r.ResponseCoherence / n,
		KnowledgeIntegration:      r.KnowledgeIntegration / n,
	}
}

func addMetrics(a, b agent.EnhancementMetrics) agent.EnhancementMetrics {
	a.CognitiveOffloadingPrevention += b.CognitiveOffloadingPrevention
	a.DeepThinkingEngagement += b.DeepThinkingEngagement
	a.KnowledgeIntegration += b.KnowledgeIntegration
	a.ScaffoldingEffectiveness += b.ScaffoldingEffectiveness
	a.LearningProgression += b.LearningProgression
	a.MetacognitiveAwareness += b.MetacognitiveAwareness
	a.OverallCognitiveScore += b.OverallCognitiveScore
	a.ScientificConfidence += b.ScientificConfidence
	return a
}

func scaleMetrics(m agent.EnhancementMetrics, n float64) agent.EnhancementMetrics {
	m.CognitiveOffloadingPrevention /= n
	m.DeepThinkingEngagement /= n
	m.KnowledgeIntegration /= n
	m.ScaffoldingEffectiveness /= n
	m.LearningProgression /= n
	m.MetacognitiveAwareness /= n
	m.OverallCognitiveScore /= n
	m.ScientificConfidence /= n
	return m
}

// stateModes counts each cognitive state field's values.
type stateModes struct {
	engagement, load, passivity, overconfidence, depth, trend map[string]int
}

func newStateModes() *stateModes {
	return &stateModes{
		engagement:     make(map[string]int),
		load:           make(map[string]int),
		passivity:      make(map[string]int),
		overconfidence: make(map[string]int),
		depth:          make(map[string]int),
		trend:          make(map[string]int),
	}
}

func (s *stateModes) add(cs agent.CognitiveState) {
	cs = withStateDefaults(cs, "")
	s.engagement[string(cs.EngagementLevel)]++
	s.load[string(cs.CognitiveLoad)]++
	s.passivity[string(cs.PassivityLevel)]++
	s.overconfidence[string(cs.OverconfidenceLevel)]++
	s.depth[cs.ConversationDepth]++
	s.trend[cs.ProgressionTrend]++
}

func (s *stateModes) modes() agent.CognitiveState {
	return agent.CognitiveState{
		EngagementLevel:     agent.Level(mode(s.engagement)),
		CognitiveLoad:       agent.LoadLevel(mode(s.load)),
		PassivityLevel:      agent.Level(mode(s.passivity)),
		OverconfidenceLevel: agent.Level(mode(s.overconfidence)),
		ConversationDepth:   mode(s.depth),
		ProgressionTrend:    mode(s.trend),
	}
}

// mode returns the most frequent key, breaking ties alphabetically.
func mode(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best, bestN := "", 0
	for _, k := range keys {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	return best
}
