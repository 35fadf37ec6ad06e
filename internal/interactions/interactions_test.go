package interactions

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/orchestrator"
	"github.com/kalambet/mentor/internal/session"
	"github.com/kalambet/mentor/internal/storage"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type memRows struct {
	mu   sync.Mutex
	rows []storage.InteractionRow
}

func (m *memRows) SaveInteractionRow(r storage.InteractionRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, r)
	return nil
}

func (m *memRows) ListInteractionRows(sessionID string) ([]storage.InteractionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.InteractionRow
	for _, r := range m.rows {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func testState(id string) session.State {
	return session.State{
		ID:        id,
		Brief:     "Design a community center for 200 people in a Nordic country",
		Profile:   session.Profile{SkillLevel: session.Intermediate},
		CreatedAt: t0,
	}
}

func uniform(v float64) agent.EnhancementMetrics {
	return agent.EnhancementMetrics{
		CognitiveOffloadingPrevention: v,
		DeepThinkingEngagement:        v,
		KnowledgeIntegration:          v,
		ScaffoldingEffectiveness:      v,
		LearningProgression:           v,
		MetacognitiveAwareness:        v,
		ScientificConfidence:          v,
	}
}

func turnResult(sid, input, response string, ts time.Time, m agent.EnhancementMetrics) orchestrator.Result {
	c := agent.Classification{
		ConfidenceLevel:    agent.Confident,
		UnderstandingLevel: agent.Medium,
		EngagementLevel:    agent.Medium,
		InputType:          agent.InputGeneralStatement,
	}
	return orchestrator.Result{
		SessionID:      sid,
		Input:          input,
		Response:       response,
		RoutingPath:    agent.Route(c),
		Classification: c,
		Metadata: orchestrator.Metadata{
			AgentsUsed:        []agent.Name{agent.ContextAgent, agent.AnalysisAgent, agent.SocraticTutor},
			ResponseType:      "socratic_question",
			ScientificMetrics: m,
			PhaseAnalysis:     agent.PhaseAnalysis{Phase: agent.PhaseIdeation, Confidence: 0.6},
		},
		UserMessage: session.Message{Role: session.RoleUser, Content: input, TS: ts},
	}
}

func newTestLogger(t *testing.T, rows RowStore) *Logger {
	t.Helper()
	l, err := NewLogger(t.TempDir(), rows)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	l.now = func() time.Time { return t0.Add(time.Hour) }
	return l
}

func record(t *testing.T, l *Logger, res orchestrator.Result) {
	t.Helper()
	if err := l.Record(context.Background(), testState(res.SessionID), res); err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRecordContainsAllKeysWithClippedMetrics(t *testing.T) {
	l := newTestLogger(t, nil)
	m := uniform(0.5)
	m.CognitiveOffloadingPrevention = 1.4
	m.DeepThinkingEngagement = -0.3
	record(t, l, turnResult("s1", "I want the hall to face the lake.", "What does the lake view give the people inside?", t0, m))

	recs, err := l.Records("s1")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	got := recs[0].ScientificMetrics
	if got.CognitiveOffloadingPrevention != 1 || got.DeepThinkingEngagement != 0 {
		t.Errorf("metrics not clipped: %+v", got)
	}

	b, err := json.Marshal(recs[0])
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		t.Fatal(err)
	}
	keys := []string{
		"interaction_id", "session_id", "seq", "timestamp", "student_input", "agent_response",
		"input_length", "response_length", "input_type", "classification", "routing_path",
		"agents_used", "response_type", "sources", "sources_count", "cognitive_flags", "skill_level",
		"performance", "design_moves", "modality", "phase_analysis", "scientific_metrics",
		"cognitive_state", "metrics_synthesized", "state_synthesized", "response_time_ms",
		"degraded", "rerouted",
	}
	for _, k := range keys {
		if _, ok := fields[k]; !ok {
			t.Errorf("record is missing key %q", k)
		}
	}
	metrics := fields["scientific_metrics"].(map[string]any)
	for k, v := range metrics {
		if f := v.(float64); f < 0 || f > 1 {
			t.Errorf("%s = %v, want within [0,1]", k, f)
		}
	}
}

func TestRecordSynthesizesMissingMetricsAndState(t *testing.T) {
	l := newTestLogger(t, nil)
	res := turnResult("s1", "Design a community center", "What drives the entrance?", t0, agent.EnhancementMetrics{})
	res.Metadata.CognitiveFlags = []agent.Flag{agent.FlagDeepThinkingEncouraged}
	res.Metadata.Analysis.Skill.Confidence = 0.8
	record(t, l, res)

	recs, _ := l.Records("s1")
	r := recs[0]
	if !r.MetricsSynthesized || !r.StateSynthesized {
		t.Fatalf("synthesized flags = %v/%v, want true/true", r.MetricsSynthesized, r.StateSynthesized)
	}
	m := r.ScientificMetrics
	if !approx(m.DeepThinkingEngagement, 1) {
		t.Errorf("engagement = %v, want 1", m.DeepThinkingEngagement)
	}
	if !approx(m.CognitiveOffloadingPrevention, 0.7) {
		t.Errorf("reflection = %v, want 0.7", m.CognitiveOffloadingPrevention)
	}
	if !approx(m.LearningProgression, 0.4) {
		t.Errorf("complexity = %v, want 0.4", m.LearningProgression)
	}

	want := agent.CognitiveState{
		EngagementLevel:     agent.Medium,
		CognitiveLoad:       agent.LoadOptimal,
		PassivityLevel:      agent.Low,
		OverconfidenceLevel: agent.Low,
		ConversationDepth:   agent.DepthShallow,
		ProgressionTrend:    agent.TrendInsufficientData,
	}
	if diff := cmp.Diff(want, r.CognitiveState); diff != "" {
		t.Errorf("state defaults (-want +got):\n%s", diff)
	}
}

func TestRecordSynthesizesMissingPhase(t *testing.T) {
	l := newTestLogger(t, nil)
	res := turnResult("s1", "What concept should drive the program?", "Which idea matters most to the community?", t0, uniform(0.5))
	res.Metadata.PhaseAnalysis = agent.PhaseAnalysis{}
	record(t, l, res)

	recs, _ := l.Records("s1")
	if recs[0].Phase.Phase == "" {
		t.Fatal("phase was not synthesized")
	}
}

func TestPerformanceAgentSelection(t *testing.T) {
	c := agent.Classification{IsKnowledgeSeeking: true, IsQuestion: true, ConfidenceLevel: agent.Confident, EngagementLevel: agent.Medium}

	tests := []struct {
		name     string
		path     agent.RoutingPath
		rerouted bool
		from     agent.RoutingPath
		want     bool
	}{
		{"matches rules", agent.PathKnowledgePlusSocratic, false, "", true},
		{"rerouted from rule path", agent.PathSocraticFocus, true, agent.PathKnowledgePlusSocratic, true},
		{"mismatch", agent.PathCognitiveChallenge, false, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := turnResult("s", "What precedents exist for adaptive reuse?", "Which of these fits your site?", t0, uniform(0.5))
			res.Classification = c
			res.RoutingPath = tt.path
			res.Metadata.Rerouted = tt.rerouted
			res.Metadata.RoutedFrom = tt.from
			r := buildRecord(testState("s"), res, 1)
			if r.Performance.AppropriateAgentSelection != tt.want {
				t.Errorf("AppropriateAgentSelection = %v, want %v", r.Performance.AppropriateAgentSelection, tt.want)
			}
		})
	}
}

func TestPerformanceOffloadingAndEngagement(t *testing.T) {
	res := turnResult("s", "Just tell me the layout", "The answer is a courtyard plan.", t0, uniform(0.2))
	r := buildRecord(testState("s"), res, 1)
	if r.Performance.PreventsOffloading {
		t.Error("a direct answer should not count as preventing offloading")
	}
	if r.Performance.MaintainsEngagement {
		t.Error("a reply without a question or flag should not count as engaging")
	}

	res = turnResult("s", "Just tell me the layout", "What would a courtyard give your users?", t0, uniform(0.2))
	r = buildRecord(testState("s"), res, 1)
	if !r.Performance.PreventsOffloading || !r.Performance.MaintainsEngagement {
		t.Errorf("question reply performance = %+v", r.Performance)
	}
}

func TestDesignMoveChainInvariant(t *testing.T) {
	l := newTestLogger(t, nil)
	// All turns share one base time so later moves must be nudged forward.
	turns := []struct{ in, out string }{
		{"I want a concept around shared warmth. The hall should face south!", "What does the site offer in winter? How will people arrive?"},
		{"Maybe I should rethink the entrance instead.", "What would change for visitors if the entrance moved?"},
		{"I realize the program needs a quiet library zone.", "How does that zone relate to the noisy hall?"},
	}
	for _, tt := range turns {
		record(t, l, turnResult("s1", tt.in, tt.out, t0, uniform(0.5)))
	}

	moves, err := l.Moves("s1")
	if err != nil {
		t.Fatalf("Moves: %v", err)
	}
	if len(moves) < 6 {
		t.Fatalf("got %d moves, want at least 6", len(moves))
	}
	for i, m := range moves {
		if m.MoveNumber != i+1 {
			t.Errorf("moves[%d].MoveNumber = %d", i, m.MoveNumber)
		}
		if m.TemporalGap < 0 {
			t.Errorf("moves[%d].TemporalGap = %v", i, m.TemporalGap)
		}
		if i == 0 {
			if m.Prev != 0 {
				t.Errorf("first move Prev = %d, want 0", m.Prev)
			}
			continue
		}
		prev := moves[i-1]
		if prev.Next != m.MoveNumber || m.Prev != prev.MoveNumber {
			t.Errorf("link broken between %d and %d: next=%d prev=%d", prev.MoveNumber, m.MoveNumber, prev.Next, m.Prev)
		}
		if !m.Timestamp.After(prev.Timestamp) {
			t.Errorf("moves[%d] timestamp %v not after %v", i, m.Timestamp, prev.Timestamp)
		}
	}
	if last := moves[len(moves)-1]; last.Next != 0 {
		t.Errorf("last move Next = %d, want 0", last.Next)
	}

	recs, _ := l.Records("s1")
	total := 0
	for _, r := range recs {
		total += len(r.MoveNumbers)
	}
	if total != len(moves) {
		t.Errorf("records reference %d moves, chain has %d", total, len(moves))
	}
	if moves[0].Source != SourceStudent {
		t.Errorf("first move source = %s, want student", moves[0].Source)
	}
}

func TestMoveTimestampsWithinTurn(t *testing.T) {
	var c moveChain
	moves := c.add("First long sentence here. Second long sentence here.", SourceStudent, t0, 0, agent.PhaseIdeation, ModalityVerbal, "s", "i")
	if len(moves) != 2 {
		t.Fatalf("got %d moves, want 2", len(moves))
	}
	if !moves[0].Timestamp.Equal(t0) || !moves[1].Timestamp.Equal(t0.Add(moveSpacing)) {
		t.Errorf("timestamps = %v, %v", moves[0].Timestamp, moves[1].Timestamp)
	}
	if !approx(moves[1].TemporalGap, 0.1) {
		t.Errorf("gap = %v, want 0.1", moves[1].TemporalGap)
	}
}

func TestSplitMoves(t *testing.T) {
	got := splitMoves("Short. This sentence is long enough! Ok?\nAnother line here")
	want := []string{"This sentence is long enough", "Another line here"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("splitMoves (-want +got):\n%s", diff)
	}
}

func TestClassifyMove(t *testing.T) {
	tests := []struct {
		text  string
		phase agent.Phase
		want  agent.MoveType
	}{
		{"We should rethink the entrance instead", agent.PhaseIdeation, agent.MoveTransformation},
		{"The circulation flow feels cramped", agent.PhaseVisualization, agent.MoveAnalysis},
		{"Let me reflect on my process", agent.PhaseMaterialization, agent.MoveReflection},
		{"Hello there everyone", agent.PhaseIdeation, agent.MoveGeneral},
		{"Timber cladding would cost less", agent.PhaseMaterialization, agent.MoveEvaluation},
	}
	for _, tt := range tests {
		if got := classifyMove(tt.text, tt.phase); got != tt.want {
			t.Errorf("classifyMove(%q, %s) = %s, want %s", tt.text, tt.phase, got, tt.want)
		}
	}
}

func TestCognitiveLoad(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("abcde ", 10))
	got := cognitiveLoad(text, agent.MoveSynthesis, agent.PhaseVisualization)
	if !approx(got, 0.1*1.2*1.2) {
		t.Errorf("cognitiveLoad = %v, want %v", got, 0.1*1.2*1.2)
	}
	long := strings.Repeat("architecture ", 200)
	if got := cognitiveLoad(long, agent.MoveTransformation, agent.PhaseMaterialization); got != 1 {
		t.Errorf("cognitiveLoad on long text = %v, want 1", got)
	}
}

func TestSummaryBaselineComparison(t *testing.T) {
	records := []Record{
		{Performance: Performance{PreventsOffloading: true, AdaptsToSkill: true}, SourcesCount: 1},
		{Performance: Performance{}, SourcesCount: 0},
	}
	s := Summarize("s", records, nil)

	tests := []struct {
		key     string
		current float64
	}{
		{"cognitive_offloading_prevention", 0.5},
		{"deep_thinking_engagement", 0},
		{"knowledge_integration", 0.5},
		{"sources_per_interaction", 0.5},
		{"skill_adaptation", 0.5},
	}
	for _, tt := range tests {
		d := s.BaselineComparison[tt.key]
		if !approx(d.Current, tt.current) {
			t.Errorf("%s current = %v, want %v", tt.key, d.Current, tt.current)
		}
		want := (tt.current - d.Baseline) / d.Baseline * 100
		if !approx(d.ImprovementPct, want) {
			t.Errorf("%s improvement = %v, want %v", tt.key, d.ImprovementPct, want)
		}
	}
	if !approx(s.BaselineComparison["cognitive_offloading_prevention"].ImprovementPct, (0.5-0.3)/0.3*100) {
		t.Error("offloading improvement does not match baseline 0.3")
	}
}

func TestSummaryScoreTrend(t *testing.T) {
	mk := func(scores ...float64) []Record {
		var out []Record
		for _, s := range scores {
			out = append(out, Record{ScientificMetrics: agent.EnhancementMetrics{OverallCognitiveScore: s}})
		}
		return out
	}
	tests := []struct {
		name    string
		records []Record
		want    string
	}{
		{"empty", nil, agent.TrendInsufficientData},
		{"single", mk(0.5), agent.TrendInsufficientData},
		{"improving", mk(0.3, 0.4, 0.6, 0.7), agent.TrendImproving},
		{"declining", mk(0.7, 0.6, 0.4, 0.3), agent.TrendDeclining},
		{"stable", mk(0.5, 0.52, 0.51, 0.5), agent.TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize("s", tt.records, nil).ScientificMetrics.CognitiveScoreTrend
			if got != tt.want {
				t.Errorf("trend = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSummaryTrendImprovesOverTenDeepeningTurns(t *testing.T) {
	l := newTestLogger(t, nil)
	for i := range 10 {
		in := "I keep refining the courtyard idea and its relation to the hall."
		out := "What evidence supports that relation, and how might it change in winter?"
		record(t, l, turnResult("s1", in, out, t0.Add(time.Duration(i)*time.Minute), uniform(0.3+0.05*float64(i))))
	}

	s, err := l.Summary("s1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.TotalInteractions != 10 {
		t.Errorf("TotalInteractions = %d, want 10", s.TotalInteractions)
	}
	if s.ScientificMetrics.CognitiveScoreTrend != agent.TrendImproving {
		t.Errorf("trend = %s, want improving", s.ScientificMetrics.CognitiveScoreTrend)
	}
	if s.DominantPhase != agent.PhaseIdeation {
		t.Errorf("DominantPhase = %s", s.DominantPhase)
	}
	if !approx(s.DurationSeconds, 9*60) {
		t.Errorf("DurationSeconds = %v", s.DurationSeconds)
	}
}

func TestSummaryStateModes(t *testing.T) {
	records := []Record{
		{CognitiveState: agent.CognitiveState{EngagementLevel: agent.High, CognitiveLoad: agent.LoadOver}},
		{CognitiveState: agent.CognitiveState{EngagementLevel: agent.High}},
		{CognitiveState: agent.CognitiveState{EngagementLevel: agent.Low}},
	}
	got := Summarize("s", records, nil).CognitiveState
	if got.EngagementLevel != agent.High {
		t.Errorf("engagement mode = %s, want high", got.EngagementLevel)
	}
	if got.CognitiveLoad != agent.LoadOptimal {
		t.Errorf("load mode = %s, want optimal", got.CognitiveLoad)
	}
	if got.ProgressionTrend != agent.TrendInsufficientData {
		t.Errorf("trend mode = %s", got.ProgressionTrend)
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return rows
}

func TestRecordAppendsCSV(t *testing.T) {
	l := newTestLogger(t, nil)
	record(t, l, turnResult("s1", "The hall needs daylight, even in winter.", "Where does the low sun reach the site?", t0, uniform(0.5)))
	record(t, l, turnResult("s1", "Maybe a clerestory along the north wall.", "What would that do to heat loss?", t0.Add(time.Minute), uniform(0.5)))

	rows := readCSV(t, filepath.Join(l.Dir(), "interactions_s1.csv"))
	if len(rows) != 3 {
		t.Fatalf("got %d interaction rows, want header + 2", len(rows))
	}
	if diff := cmp.Diff(interactionHeader, rows[0]); diff != "" {
		t.Errorf("header (-want +got):\n%s", diff)
	}
	for _, r := range rows[1:] {
		if len(r) != len(interactionHeader) {
			t.Errorf("row has %d fields, want %d", len(r), len(interactionHeader))
		}
	}

	moves, _ := l.Moves("s1")
	moveRows := readCSV(t, filepath.Join(l.Dir(), "design_moves_s1.csv"))
	if len(moveRows) != len(moves)+1 {
		t.Errorf("got %d move rows, want %d", len(moveRows), len(moves)+1)
	}
}

func TestExportWritesFiles(t *testing.T) {
	l := newTestLogger(t, nil)
	record(t, l, turnResult("s1", "I want a concept around shared warmth.", "What does warmth mean for the people using it?", t0, uniform(0.5)))
	record(t, l, turnResult("s1", "A central hearth with the rooms around it.", "How would circulation reach the hearth?", t0.Add(time.Minute), uniform(0.6)))

	paths, err := l.Export("s1")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(paths.CSV) != 2 || len(paths.JSON) != 3 {
		t.Fatalf("paths = %+v", paths)
	}
	for _, p := range append(paths.CSV, paths.JSON...) {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %s: %v", p, err)
		}
	}
	wantComp := filepath.Join(l.Dir(), "comprehensive_session_s1_20250301_110000.json")
	if paths.JSON[2] != wantComp {
		t.Errorf("comprehensive path = %s, want %s", paths.JSON[2], wantComp)
	}

	b, err := os.ReadFile(filepath.Join(l.Dir(), "session_summary_s1.json"))
	if err != nil {
		t.Fatal(err)
	}
	var summary map[string]any
	if err := json.Unmarshal(b, &summary); err != nil {
		t.Fatalf("summary is not JSON: %v", err)
	}
	for _, k := range []string{"scientific_metrics_summary", "baseline_comparison", "move_type_distribution", "cognitive_state_modes"} {
		if _, ok := summary[k]; !ok {
			t.Errorf("summary missing %q", k)
		}
	}

	b, err = os.ReadFile(wantComp)
	if err != nil {
		t.Fatal(err)
	}
	var comp comprehensive
	if err := json.Unmarshal(b, &comp); err != nil {
		t.Fatalf("decoding comprehensive export: %v", err)
	}
	if len(comp.Interactions) != 2 || len(comp.Interactions[0].DesignMoves) == 0 {
		t.Errorf("comprehensive export = %d interactions", len(comp.Interactions))
	}
}

func TestExportEmptySession(t *testing.T) {
	l := newTestLogger(t, nil)
	paths, err := l.Export("fresh")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(paths.JSON) != 3 {
		t.Errorf("JSON paths = %v", paths.JSON)
	}
}

func TestExportRetriesThenLogsError(t *testing.T) {
	l := newTestLogger(t, nil)
	record(t, l, turnResult("s1", "The hall should face the lake.", "What does the lake give the hall?", t0, uniform(0.5)))

	// A directory in place of the summary file makes both attempts fail.
	blocked := filepath.Join(l.Dir(), "session_summary_s1.json")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatal(err)
	}

	paths, err := l.Export("s1")
	if err == nil {
		t.Fatal("Export succeeded, want error")
	}
	if len(paths.JSON) != 2 {
		t.Errorf("JSON paths = %v, want the two unaffected files", paths.JSON)
	}
	b, err := os.ReadFile(filepath.Join(l.Dir(), "export_errors.log"))
	if err != nil {
		t.Fatalf("reading error log: %v", err)
	}
	if !strings.Contains(string(b), "session_summary_s1.json") {
		t.Errorf("error log = %s", b)
	}
}

func TestLoggerRestoresFromRows(t *testing.T) {
	rows := &memRows{}
	first := newTestLogger(t, rows)
	record(t, first, turnResult("s1", "I want a concept around shared warmth.", "What does warmth mean here?", t0, uniform(0.5)))
	record(t, first, turnResult("s1", "A central hearth with rooms around it.", "How would people reach it?", t0.Add(time.Minute), uniform(0.5)))
	wantMoves, _ := first.Moves("s1")

	second := newTestLogger(t, rows)
	recs, err := second.Records("s1")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 2 || recs[1].Seq != 2 {
		t.Fatalf("restored %d records", len(recs))
	}
	gotMoves, _ := second.Moves("s1")
	if diff := cmp.Diff(wantMoves, gotMoves); diff != "" {
		t.Errorf("restored moves (-want +got):\n%s", diff)
	}

	record(t, second, turnResult("s1", "The hearth could double as a stage.", "Who would use that stage?", t0.Add(2*time.Minute), uniform(0.5)))
	recs, _ = second.Records("s1")
	if recs[2].Seq != 3 {
		t.Errorf("next seq = %d, want 3", recs[2].Seq)
	}
}

// flakyRows fails the first failLists listings.
type flakyRows struct {
	*memRows
	failLists int
}

func (f *flakyRows) ListInteractionRows(sessionID string) ([]storage.InteractionRow, error) {
	if f.failLists > 0 {
		f.failLists--
		return nil, errors.New("database is locked")
	}
	return f.memRows.ListInteractionRows(sessionID)
}

func TestRecordHoldsTurnWhenRestoreFails(t *testing.T) {
	rows := &memRows{}
	first := newTestLogger(t, rows)
	record(t, first, turnResult("s1", "I want a concept around shared warmth.", "What does warmth mean here?", t0, uniform(0.5)))
	record(t, first, turnResult("s1", "A central hearth with rooms around it.", "How would people reach it?", t0.Add(time.Minute), uniform(0.5)))

	flaky := &flakyRows{memRows: rows, failLists: 2}
	second := newTestLogger(t, flaky)

	third := turnResult("s1", "The hearth could double as a stage.", "Who would use that stage?", t0.Add(2*time.Minute), uniform(0.5))
	err := second.Record(context.Background(), testState("s1"), third)
	if err == nil || errors.Is(err, ErrUnknownSession) {
		t.Fatalf("Record error = %v, want restore failure", err)
	}

	paths, err := second.Export("s1")
	if err == nil {
		t.Fatalf("Export succeeded with paths %+v while rows could not be restored", paths)
	}
	entries, _ := os.ReadDir(second.Dir())
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), "interactions_") {
			t.Errorf("export wrote %s from a partial log", e.Name())
		}
	}

	recs, err := second.Records("s1")
	if err != nil {
		t.Fatalf("Records after restore: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	for i, r := range recs {
		if r.Seq != i+1 {
			t.Errorf("recs[%d].Seq = %d, want %d", i, r.Seq, i+1)
		}
	}
	if recs[2].StudentInput != third.Input {
		t.Errorf("held turn input = %q, want %q", recs[2].StudentInput, third.Input)
	}
	if stored, _ := rows.ListInteractionRows("s1"); len(stored) != 3 {
		t.Errorf("row store has %d rows, want 3", len(stored))
	}
}

func TestRecordsUnknownSession(t *testing.T) {
	l := newTestLogger(t, &memRows{})
	if _, err := l.Records("missing"); err != ErrUnknownSession {
		t.Errorf("err = %v, want ErrUnknownSession", err)
	}
}

func TestSketchModality(t *testing.T) {
	st := testState("s")
	st.Artifacts = []session.Artifact{{ID: "a1", Kind: session.KindSketch}}
	if got := modalityFor(st, "In my sketch the hall wraps the courtyard"); got != ModalitySketch {
		t.Errorf("modality = %s, want sketch", got)
	}
	if got := modalityFor(testState("s"), "In my sketch the hall wraps the courtyard"); got != ModalityVerbal {
		t.Errorf("modality without artifacts = %s, want verbal", got)
	}
}
