// Package interactions records every tutoring turn for research export:
// one record per turn, the linked stream of design moves, per-session CSV
// files, JSON exports and an aggregate session summary.
package interactions

import (
	"time"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/session"
)

type MoveSource string

const (
	SourceStudent MoveSource = "student"
	SourceAgent   MoveSource = "agent"
)

// Modality values for design moves.
const (
	ModalityVerbal = "verbal"
	ModalitySketch = "sketch"
)

// DesignMove is one thought unit extracted from a turn. Prev and Next hold
// neighbouring move numbers; 0 means there is no neighbour.
type DesignMove struct {
	MoveNumber    int            `json:"move_number"`
	SessionID     string         `json:"session_id"`
	InteractionID string         `json:"interaction_id"`
	Timestamp     time.Time      `json:"timestamp"`
	Phase         agent.Phase    `json:"phase"`
	MoveType      agent.MoveType `json:"move_type"`
	Modality      string         `json:"modality"`
	Source        MoveSource     `json:"source"`
	Content       string         `json:"content"`
	CognitiveLoad float64        `json:"cognitive_load"`
	Prev          int            `json:"prev"`
	Next          int            `json:"next"`
	TemporalGap   float64        `json:"temporal_gap"`
}

// Performance holds the per-turn tutoring quality checks.
type Performance struct {
	PreventsOffloading        bool `json:"prevents_cognitive_offloading"`
	EncouragesDeepThinking    bool `json:"encourages_deep_thinking"`
	ProvidesScaffolding       bool `json:"provides_scaffolding"`
	MaintainsEngagement       bool `json:"maintains_engagement"`
	AdaptsToSkill             bool `json:"adapts_to_skill_level"`
	AppropriateAgentSelection bool `json:"appropriate_agent_selection"`
	ResponseCoherence         bool `json:"response_coherence"`
}

// Record is the logged form of one turn.
type Record struct {
	ID                 string                   `json:"interaction_id"`
	SessionID          string                   `json:"session_id"`
	Seq                int                      `json:"seq"`
	Timestamp          time.Time                `json:"timestamp"`
	StudentInput       string                   `json:"student_input"`
	AgentResponse      string                   `json:"agent_response"`
	InputLength        int                      `json:"input_length"`
	ResponseLength     int                      `json:"response_length"`
	InputType          agent.InputType          `json:"input_type"`
	Classification     agent.Classification     `json:"classification"`
	RoutingPath        agent.RoutingPath        `json:"routing_path"`
	AgentsUsed         []agent.Name             `json:"agents_used"`
	ResponseType       string                   `json:"response_type"`
	Strategy           agent.Strategy           `json:"strategy,omitempty"`
	Sources            []agent.Source           `json:"sources"`
	SourcesCount       int                      `json:"sources_count"`
	CognitiveFlags     []agent.Flag             `json:"cognitive_flags"`
	SkillLevel         session.SkillLevel       `json:"skill_level"`
	Performance        Performance              `json:"performance"`
	MoveNumbers        []int                    `json:"design_moves"`
	Modality           string                   `json:"modality"`
	Phase              agent.PhaseAnalysis      `json:"phase_analysis"`
	ScientificMetrics  agent.EnhancementMetrics `json:"scientific_metrics"`
	CognitiveState     agent.CognitiveState     `json:"cognitive_state"`
	MetricsSynthesized bool                     `json:"metrics_synthesized"`
	StateSynthesized   bool                     `json:"state_synthesized"`
	ResponseTimeMs     int64                    `json:"response_time_ms"`
	Degraded           bool                     `json:"degraded"`
	Rerouted           bool                     `json:"rerouted"`
}

// ExportPaths lists the files one export wrote.
type ExportPaths struct {
	CSV  []string `json:"csv_paths"`
	JSON []string `json:"json_paths"`
}
