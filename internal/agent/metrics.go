package agent

import "math"

// EnhancementMetrics are the six bounded learning scores for one response,
// plus their mean and a confidence in the estimate.
type EnhancementMetrics struct {
	CognitiveOffloadingPrevention float64 `json:"cognitive_offloading_prevention"`
	DeepThinkingEngagement        float64 `json:"deep_thinking_engagement"`
	KnowledgeIntegration          float64 `json:"knowledge_integration"`
	ScaffoldingEffectiveness      float64 `json:"scaffolding_effectiveness"`
	LearningProgression           float64 `json:"learning_progression"`
	MetacognitiveAwareness        float64 `json:"metacognitive_awareness"`
	OverallCognitiveScore         float64 `json:"overall_cognitive_score"`
	ScientificConfidence          float64 `json:"scientific_confidence"`
}

// Finalize clamps every score to [0,1] and recomputes the overall mean.
func (m EnhancementMetrics) Finalize() EnhancementMetrics {
	m.CognitiveOffloadingPrevention = Clamp01(m.CognitiveOffloadingPrevention)
	m.DeepThinkingEngagement = Clamp01(m.DeepThinkingEngagement)
	m.KnowledgeIntegration = Clamp01(m.KnowledgeIntegration)
	m.ScaffoldingEffectiveness = Clamp01(m.ScaffoldingEffectiveness)
	m.LearningProgression = Clamp01(m.LearningProgression)
	m.MetacognitiveAwareness = Clamp01(m.MetacognitiveAwareness)
	m.OverallCognitiveScore = (m.CognitiveOffloadingPrevention + m.DeepThinkingEngagement +
		m.KnowledgeIntegration + m.ScaffoldingEffectiveness + m.LearningProgression +
		m.MetacognitiveAwareness) / 6
	m.ScientificConfidence = Clamp01(m.ScientificConfidence)
	return m
}

// Clamp01 bounds x to [0,1]; NaN becomes 0.
func Clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}

// CognitiveState is a coarse estimate of the learner's current state.
type CognitiveState struct {
	EngagementLevel     Level     `json:"engagement_level"`
	CognitiveLoad       LoadLevel `json:"cognitive_load"`
	PassivityLevel      Level     `json:"passivity_level"`
	OverconfidenceLevel Level     `json:"overconfidence_level"`
	ConversationDepth   string    `json:"conversation_depth"`
	ProgressionTrend    string    `json:"progression_trend"`
}

// Conversation depth and trend values.
const (
	DepthShallow  = "shallow"
	DepthModerate = "moderate"
	DepthDeep     = "deep"

	TrendImproving        = "improving"
	TrendStable           = "stable"
	TrendDeclining        = "declining"
	TrendInsufficientData = "insufficient_data"
)
