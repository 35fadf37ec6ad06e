// Package agent holds the records exchanged between the tutor's agents and
// the orchestrator, plus the pure routing policy.
package agent

import (
	"errors"

	"github.com/kalambet/mentor/internal/session"
)

// ErrInsufficientKnowledge is returned by the domain expert when no passage
// clears the similarity floor. The orchestrator reroutes instead of answering.
var ErrInsufficientKnowledge = errors.New("insufficient knowledge")

type Name string

const (
	ContextAgent   Name = "context_agent"
	AnalysisAgent  Name = "analysis_agent"
	DomainExpert   Name = "domain_expert"
	SocraticTutor  Name = "socratic_tutor"
	CognitiveAgent Name = "cognitive_enhancement"
)

type Confidence string

const (
	Uncertain     Confidence = "uncertain"
	Confident     Confidence = "confident"
	Overconfident Confidence = "overconfident"
)

type Level string

const (
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

type InputType string

const (
	InputFeedbackRequest        InputType = "feedback_request"
	InputImprovementSeeking     InputType = "improvement_seeking"
	InputKnowledgeSeeking       InputType = "knowledge_seeking"
	InputOverconfidentStatement InputType = "overconfident_statement"
	InputConfusionExpression    InputType = "confusion_expression"
	InputDirectQuestion         InputType = "direct_question"
	InputGeneralStatement       InputType = "general_statement"
)

type RoutingPath string

const (
	PathSocraticFocus         RoutingPath = "socratic_focus"
	PathKnowledgeOnly         RoutingPath = "knowledge_only"
	PathKnowledgePlusSocratic RoutingPath = "knowledge_plus_socratic"
	PathCognitiveChallenge    RoutingPath = "cognitive_challenge"
	PathMultiAgent            RoutingPath = "multi_agent"
	PathCognitiveProtection   RoutingPath = "cognitive_protection"
)

type Strategy string

const (
	SupportiveGuidance   Strategy = "supportive_guidance"
	AssumptionChallenge  Strategy = "assumption_challenge"
	DepthPromotion       Strategy = "depth_promotion"
	ClarifyingGuidance   Strategy = "clarifying_guidance"
	ExploratoryQuestion  Strategy = "exploratory_question"
	FoundationalQuestion Strategy = "foundational_question"
	AdaptiveQuestion     Strategy = "adaptive_question"
	ChallengingQuestion  Strategy = "challenging_question"
)

type Stage string

const (
	StageInitial     Stage = "initial"
	StageExploration Stage = "exploration"
	StageDeepening   Stage = "deepening"
	StageAdvanced    Stage = "advanced"
)

// StageForTurns maps the number of user turns (current one included) to a stage.
func StageForTurns(n int) Stage {
	switch {
	case n <= 1:
		return StageInitial
	case n <= 3:
		return StageExploration
	case n <= 6:
		return StageDeepening
	default:
		return StageAdvanced
	}
}

type MilestoneType string

const (
	KnowledgeAcquisition MilestoneType = "knowledge_acquisition"
	SkillDemonstration   MilestoneType = "skill_demonstration"
	InsightFormation     MilestoneType = "insight_formation"
	ProblemSolving       MilestoneType = "problem_solving"
	ReflectionPoint      MilestoneType = "reflection_point"
	ReadinessAssessment  MilestoneType = "readiness_assessment"
)

// MilestoneContext is an externally supplied sub-goal for the Socratic tutor.
type MilestoneContext struct {
	MilestoneType MilestoneType `json:"milestone_type"`
	Description   string        `json:"description,omitempty"`
}

type FocusArea string

const (
	FocusSocraticQuestioning FocusArea = "socratic_questioning"
	FocusDomainExpertise     FocusArea = "domain_expertise"
	FocusCognitiveChallenge  FocusArea = "cognitive_challenge"
	FocusBriefDevelopment    FocusArea = "brief_development"
	FocusSpatialAnalysis     FocusArea = "spatial_analysis"
)

type Phase string

const (
	PhaseIdeation        Phase = "ideation"
	PhaseVisualization   Phase = "visualization"
	PhaseMaterialization Phase = "materialization"
)

type MoveType string

const (
	MoveSynthesis      MoveType = "synthesis"
	MoveAnalysis       MoveType = "analysis"
	MoveEvaluation     MoveType = "evaluation"
	MoveTransformation MoveType = "transformation"
	MoveReflection     MoveType = "reflection"
	MoveGeneral        MoveType = "general"
)

type LoadLevel string

const (
	LoadUnder   LoadLevel = "under"
	LoadOptimal LoadLevel = "optimal"
	LoadOver    LoadLevel = "over"
)

// Classification is the context classifier's reading of one utterance.
type Classification struct {
	ConfidenceLevel      Confidence  `json:"confidence_level"`
	UnderstandingLevel   Level       `json:"understanding_level"`
	EngagementLevel      Level       `json:"engagement_level"`
	IsTechnicalQuestion  bool        `json:"is_technical_question"`
	IsFeedbackRequest    bool        `json:"is_feedback_request"`
	ShowsConfusion       bool        `json:"shows_confusion"`
	ShowsOverconfidence  bool        `json:"shows_overconfidence"`
	IsKnowledgeSeeking   bool        `json:"is_knowledge_seeking"`
	IsImprovementSeeking bool        `json:"is_improvement_seeking"`
	IsQuestion           bool        `json:"is_question"`
	RequestsDirectAnswer bool        `json:"requests_direct_answer"`
	InputType            InputType   `json:"input_type"`
	CognitiveFlags       []Flag      `json:"cognitive_flags"`
	SuggestedPath        RoutingPath `json:"suggested_path"`
	AIReasoning          string      `json:"ai_reasoning"`
	Heuristic            bool        `json:"heuristic"`
}

// Source is a knowledge passage an agent relied on.
type Source struct {
	Title       string  `json:"title"`
	Author      string  `json:"author,omitempty"`
	CitationKey string  `json:"citation_key"`
	Citation    string  `json:"citation"`
	Pages       []int   `json:"pages,omitempty"`
	Similarity  float64 `json:"similarity"`
	Excerpt     string  `json:"excerpt"`
}

type SkillAssessment struct {
	Level      session.SkillLevel `json:"level"`
	Confidence float64            `json:"confidence"`
	Updated    bool               `json:"skill_updated"`
	Streak     int                `json:"streak"`
}

type Synthesis struct {
	AlignmentScore        float64     `json:"alignment_score"`
	MissingConsiderations []string    `json:"missing_considerations"`
	NextFocusAreas        []FocusArea `json:"next_focus_areas"`
}

// Analysis is the analysis agent's situational report for one turn.
type Analysis struct {
	BuildingType          string          `json:"building_type"`
	Complexity            string          `json:"complexity"`
	DetailLevel           string          `json:"detail_level"`
	ProgramRequirements   []string        `json:"program_requirements"`
	Constraints           []string        `json:"constraints"`
	Considerations        []string        `json:"considerations"`
	VisualInsights        []string        `json:"visual_insights,omitempty"`
	HasVisual             bool            `json:"has_visual"`
	KnowledgeEnhanced     bool            `json:"knowledge_enhanced"`
	EnhancementConfidence float64         `json:"enhancement_confidence"`
	Observations          []string        `json:"observations"`
	CognitiveFlags        []Flag          `json:"cognitive_flags"`
	Skill                 SkillAssessment `json:"skill_assessment"`
	Synthesis             Synthesis       `json:"synthesis"`
	Degraded              bool            `json:"degraded,omitempty"`
}

// Response is what every responding agent returns.
type Response struct {
	Agent          Name                `json:"agent"`
	Text           string              `json:"response_text"`
	ResponseType   string              `json:"response_type"`
	Strategy       Strategy            `json:"strategy,omitempty"`
	Flags          []Flag              `json:"cognitive_flags"`
	Metrics        *EnhancementMetrics `json:"enhancement_metrics,omitempty"`
	CognitiveState *CognitiveState     `json:"cognitive_state,omitempty"`
	Sources        []Source            `json:"sources,omitempty"`
	Degraded       bool                `json:"degraded,omitempty"`
}

// Turn is the input shared by the downstream agents.
type Turn struct {
	State          session.State
	Utterance      string
	Classification Classification
	Analysis       Analysis
	Milestone      *MilestoneContext
	// Examples holds the domain expert's sources when it ran earlier in the same turn.
	Examples []Source
	// ExpertText is the domain expert's answer when it ran earlier in the same turn.
	ExpertText string
	Path       RoutingPath
}
