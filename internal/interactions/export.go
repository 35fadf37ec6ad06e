package interactions

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kalambet/mentor/internal/agent"
)

type fullLog struct {
	SessionID    string       `json:"session_id"`
	ExportedAt   time.Time    `json:"exported_at"`
	Interactions []Record     `json:"interactions"`
	DesignMoves  []DesignMove `json:"design_moves"`
}

type comprehensiveEntry struct {
	InteractionID  string                   `json:"interaction_id"`
	Seq            int                      `json:"seq"`
	Timestamp      time.Time                `json:"timestamp"`
	StudentInput   string                   `json:"student_input"`
	AgentResponse  string                   `json:"agent_response"`
	RoutingPath    agent.RoutingPath        `json:"routing_path"`
	Classification agent.Classification     `json:"classification"`
	Metrics        agent.EnhancementMetrics `json:"scientific_metrics"`
	CognitiveState agent.CognitiveState     `json:"cognitive_state"`
	Phase          agent.PhaseAnalysis      `json:"phase_analysis"`
	Performance    Performance              `json:"performance"`
	DesignMoves    []DesignMove             `json:"design_moves"`
}

type comprehensive struct {
	SessionID    string               `json:"session_id"`
	ExportedAt   time.Time            `json:"exported_at"`
	Summary      Summary              `json:"summary"`
	Interactions []comprehensiveEntry `json:"interactions"`
}

// Summary aggregates the session's interactions recorded so far.
func (l *Logger) Summary(sessionID string) (Summary, error) {
	records, err := l.Records(sessionID)
	if err != nil {
		return Summary{}, err
	}
	moves, err := l.Moves(sessionID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(sessionID, records, moves), nil
}

// Export writes the session summary, full log and comprehensive JSON files
// and rewrites the design-move CSV with the complete chain. Each write is
// retried once; failures that persist are also written to the export error
// log. A session without interactions exports an empty summary.
func (l *Logger) Export(sessionID string) (ExportPaths, error) {
	records, err := l.Records(sessionID)
	if err != nil && !errors.Is(err, ErrUnknownSession) {
		return ExportPaths{}, err
	}
	moves, err := l.Moves(sessionID)
	if err != nil && !errors.Is(err, ErrUnknownSession) {
		return ExportPaths{}, err
	}
	now := l.now().UTC()
	summary := Summarize(sessionID, records, moves)

	var paths ExportPaths
	var errs []error

	write := func(path string, fn func() error) bool {
		if err := l.retry(sessionID, path, fn); err != nil {
			errs = append(errs, err)
			return false
		}
		return true
	}

	movesCSV := l.path("design_moves_%s.csv", sessionID)
	if write(movesCSV, func() error { return writeCSV(movesCSV, moveHeader, moveRows(moves)) }) {
		paths.CSV = append(paths.CSV, movesCSV)
	}
	if interactionsCSV := l.path("interactions_%s.csv", sessionID); fileExists(interactionsCSV) {
		paths.CSV = append([]string{interactionsCSV}, paths.CSV...)
	}

	summaryPath := l.path("session_summary_%s.json", sessionID)
	if write(summaryPath, func() error { return writeJSON(summaryPath, summary) }) {
		paths.JSON = append(paths.JSON, summaryPath)
	}

	full := fullLog{SessionID: sessionID, ExportedAt: now, Interactions: records, DesignMoves: moves}
	fullPath := l.path("full_log_%s.json", sessionID)
	if write(fullPath, func() error { return writeJSON(fullPath, full) }) {
		paths.JSON = append(paths.JSON, fullPath)
	}

	comp := comprehensive{
		SessionID:    sessionID,
		ExportedAt:   now,
		Summary:      summary,
		Interactions: groupMoves(records, moves),
	}
	compPath := l.path("comprehensive_session_%s_"+now.Format("20060102_150405")+".json", sessionID)
	if write(compPath, func() error { return writeJSON(compPath, comp) }) {
		paths.JSON = append(paths.JSON, compPath)
	}

	slog.Info("session exported", "session", sessionID, "interactions", len(records), "moves", len(moves))
	return paths, errors.Join(errs...)
}

// retry runs fn, then once more on failure.
func (l *Logger) retry(sessionID, path string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	slog.Warn("export write failed, retrying", "path", path, "error", err)
	if err = fn(); err == nil {
		return nil
	}
	l.errLog.Error("export write failed", "session", sessionID, "path", path, "error", err.Error())
	return fmt.Errorf("writing %s: %w", path, err)
}

func groupMoves(records []Record, moves []DesignMove) []comprehensiveEntry {
	byInteraction := make(map[string][]DesignMove)
	for _, m := range moves {
		byInteraction[m.InteractionID] = append(byInteraction[m.InteractionID], m)
	}
	out := make([]comprehensiveEntry, 0, len(records))
	for _, r := range records {
		out = append(out, comprehensiveEntry{
			InteractionID:  r.ID,
			Seq:            r.Seq,
			Timestamp:      r.Timestamp,
			StudentInput:   r.StudentInput,
			AgentResponse:  r.AgentResponse,
			RoutingPath:    r.RoutingPath,
			Classification: r.Classification,
			Metrics:        r.ScientificMetrics,
			CognitiveState: r.CognitiveState,
			Phase:          r.Phase,
			Performance:    r.Performance,
			DesignMoves:    byInteraction[r.ID],
		})
	}
	return out
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
