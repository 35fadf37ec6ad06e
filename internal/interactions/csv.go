package interactions

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"
	"time"
)

var interactionHeader = []string{
	"interaction_id", "session_id", "seq", "timestamp", "student_input", "agent_response",
	"input_length", "response_length", "input_type", "confidence_level", "understanding_level",
	"engagement_level", "routing_path", "agents_used", "response_type", "strategy", "sources_count",
	"cognitive_flags", "skill_level", "prevents_cognitive_offloading", "encourages_deep_thinking",
	"provides_scaffolding", "maintains_engagement", "adapts_to_skill_level",
	"appropriate_agent_selection", "response_coherence", "phase", "phase_confidence",
	"progression_score", "cognitive_offloading_prevention", "deep_thinking_engagement",
	"knowledge_integration", "scaffolding_effectiveness", "learning_progression",
	"metacognitive_awareness", "overall_cognitive_score", "scientific_confidence",
	"cognitive_load", "passivity_level", "overconfidence_level", "conversation_depth",
	"progression_trend", "metrics_synthesized", "response_time_ms", "degraded", "rerouted",
	"design_moves",
}

var moveHeader = []string{
	"move_number", "session_id", "interaction_id", "timestamp", "phase", "move_type", "modality",
	"source", "content", "cognitive_load", "prev", "next", "temporal_gap",
}

func interactionRow(r Record) []string {
	c := r.Classification
	p := r.Performance
	m := r.ScientificMetrics
	s := r.CognitiveState

	agents := make([]string, len(r.AgentsUsed))
	for i, a := range r.AgentsUsed {
		agents[i] = string(a)
	}
	flags := make([]string, len(r.CognitiveFlags))
	for i, f := range r.CognitiveFlags {
		flags[i] = string(f)
	}
	moves := make([]string, len(r.MoveNumbers))
	for i, n := range r.MoveNumbers {
		moves[i] = strconv.Itoa(n)
	}

	return []string{
		r.ID, r.SessionID, strconv.Itoa(r.Seq), formatTime(r.Timestamp), r.StudentInput, r.AgentResponse,
		strconv.Itoa(r.InputLength), strconv.Itoa(r.ResponseLength), string(r.InputType),
		string(c.ConfidenceLevel), string(c.UnderstandingLevel), string(c.EngagementLevel),
		string(r.RoutingPath), strings.Join(agents, ";"), r.ResponseType, string(r.Strategy),
		strconv.Itoa(r.SourcesCount), strings.Join(flags, ";"), string(r.SkillLevel),
		formatBool(p.PreventsOffloading), formatBool(p.EncouragesDeepThinking),
		formatBool(p.ProvidesScaffolding), formatBool(p.MaintainsEngagement), formatBool(p.AdaptsToSkill),
		formatBool(p.AppropriateAgentSelection), formatBool(p.ResponseCoherence),
		string(r.Phase.Phase), formatFloat(r.Phase.Confidence), formatFloat(r.Phase.ProgressionScore),
		formatFloat(m.CognitiveOffloadingPrevention), formatFloat(m.DeepThinkingEngagement),
		formatFloat(m.KnowledgeIntegration), formatFloat(m.ScaffoldingEffectiveness),
		formatFloat(m.LearningProgression), formatFloat(m.MetacognitiveAwareness),
		formatFloat(m.OverallCognitiveScore), formatFloat(m.ScientificConfidence),
		string(s.CognitiveLoad), string(s.PassivityLevel), string(s.OverconfidenceLevel),
		s.ConversationDepth, s.ProgressionTrend, formatBool(r.MetricsSynthesized),
		strconv.FormatInt(r.ResponseTimeMs, 10), formatBool(r.Degraded), formatBool(r.Rerouted),
		strings.Join(moves, ";"),
	}
}

func moveRows(moves []DesignMove) [][]string {
	out := make([][]string, 0, len(moves))
	for _, m := range moves {
		out = append(out, []string{
			strconv.Itoa(m.MoveNumber), m.SessionID, m.InteractionID, formatTime(m.Timestamp),
			string(m.Phase), string(m.MoveType), m.Modality, string(m.Source), m.Content,
			formatFloat(m.CognitiveLoad), strconv.Itoa(m.Prev), strconv.Itoa(m.Next),
			formatFloat(m.TemporalGap),
		})
	}
	return out
}

// appendCSV appends rows to path, writing header first when the file is new.
func appendCSV(path string, header []string, rows [][]string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeCSV replaces path with header and rows.
func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', 4, 64) }

func formatBool(b bool) string { return strconv.FormatBool(b) }
