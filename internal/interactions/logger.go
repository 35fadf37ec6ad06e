package interactions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/orchestrator"
	"github.com/kalambet/mentor/internal/session"
	"github.com/kalambet/mentor/internal/storage"
)

// ErrUnknownSession is returned when a session has no recorded interactions.
var ErrUnknownSession = errors.New("no interactions recorded for session")

// RowStore persists records as opaque JSON rows.
type RowStore interface {
	SaveInteractionRow(r storage.InteractionRow) error
	ListInteractionRows(sessionID string) ([]storage.InteractionRow, error)
}

type sessionLog struct {
	records []Record
	chain   moveChain
}

// heldTurn is a turn that arrived while the session's log could not be
// restored. It is recorded once a restore succeeds.
type heldTurn struct {
	st  session.State
	res orchestrator.Result
}

// Logger records every turn in memory, appends it to per-session CSV files
// and, when a RowStore is set, persists it as a JSON row.
type Logger struct {
	dir     string
	rows    RowStore
	errFile *lumberjack.Logger
	errLog  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionLog
	held     map[string][]heldTurn
}

// NewLogger writes files into dir. rows may be nil.
func NewLogger(dir string, rows RowStore) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	w := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "export_errors.log"),
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
	return &Logger{
		dir:      dir,
		rows:     rows,
		errFile:  w,
		errLog:   slog.New(slog.NewJSONHandler(w, nil)),
		now:      time.Now,
		sessions: make(map[string]*sessionLog),
		held:     make(map[string][]heldTurn),
	}, nil
}

// Dir returns the output directory.
func (l *Logger) Dir() string { return l.dir }

// Close releases the export error log.
func (l *Logger) Close() error { return l.errFile.Close() }

// Record logs one completed turn. The record is kept in memory even when a
// file or row write fails; those failures are returned joined. When the
// session's earlier rows exist but cannot be restored, the turn is held
// until a later restore succeeds and the restore error is returned.
func (l *Logger) Record(_ context.Context, st session.State, res orchestrator.Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sl, err := l.session(res.SessionID)
	switch {
	case errors.Is(err, ErrUnknownSession):
		sl = &sessionLog{}
		l.sessions[res.SessionID] = sl
	case err != nil:
		l.held[res.SessionID] = append(l.held[res.SessionID], heldTurn{st: st, res: res})
		slog.Warn("restoring interaction log failed, holding turn", "session", res.SessionID,
			"held", len(l.held[res.SessionID]), "error", err)
		return fmt.Errorf("restoring interaction log for %s: %w", res.SessionID, err)
	}
	return l.add(sl, st, res)
}

// add appends one turn to sl and writes it to the CSV files and row store.
// Callers hold l.mu.
func (l *Logger) add(sl *sessionLog, st session.State, res orchestrator.Result) error {
	rec := buildRecord(st, res, len(sl.records)+1)
	rec.Modality = modalityFor(st, res.Input)
	moves := l.extend(sl, &rec, res.UserMessage.TS)
	sl.records = append(sl.records, rec)

	var errs []error
	if err := appendCSV(l.path("interactions_%s.csv", rec.SessionID), interactionHeader, [][]string{interactionRow(rec)}); err != nil {
		errs = append(errs, fmt.Errorf("appending interaction csv: %w", err))
	}
	if len(moves) > 0 {
		if err := appendCSV(l.path("design_moves_%s.csv", rec.SessionID), moveHeader, moveRows(moves)); err != nil {
			errs = append(errs, fmt.Errorf("appending design move csv: %w", err))
		}
	}
	if l.rows != nil {
		if err := l.persist(&rec); err != nil {
			errs = append(errs, err)
		}
	}
	slog.Debug("interaction recorded", "session", rec.SessionID, "seq", rec.Seq, "moves", len(moves))
	return errors.Join(errs...)
}

// extend appends the student moves then the agent moves of rec to the chain.
func (l *Logger) extend(sl *sessionLog, rec *Record, base time.Time) []DesignMove {
	phase := rec.Phase.Phase
	student := sl.chain.add(rec.StudentInput, SourceStudent, base, 0, phase, rec.Modality, rec.SessionID, rec.ID)
	tutor := sl.chain.add(rec.AgentResponse, SourceAgent, base, len(student), phase, ModalityVerbal, rec.SessionID, rec.ID)
	moves := append(student, tutor...)
	rec.MoveNumbers = make([]int, 0, len(moves))
	for _, m := range moves {
		rec.MoveNumbers = append(rec.MoveNumbers, m.MoveNumber)
	}
	return moves
}

func (l *Logger) persist(rec *Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding interaction record: %w", err)
	}
	err = l.rows.SaveInteractionRow(storage.InteractionRow{
		ID:         rec.ID,
		SessionID:  rec.SessionID,
		Seq:        rec.Seq,
		CreatedAt:  rec.Timestamp,
		RecordJSON: string(b),
	})
	if err != nil {
		return fmt.Errorf("saving interaction row: %w", err)
	}
	return nil
}

// Records returns a copy of the session's records in turn order.
func (l *Logger) Records(sessionID string) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl, err := l.session(sessionID)
	if err != nil {
		return nil, err
	}
	return append([]Record(nil), sl.records...), nil
}

// Moves returns a copy of the session's design-move chain.
func (l *Logger) Moves(sessionID string) ([]DesignMove, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl, err := l.session(sessionID)
	if err != nil {
		return nil, err
	}
	return append([]DesignMove(nil), sl.chain.moves...), nil
}

// session returns the in-memory log, restoring it from the row store when
// the process has restarted since the session's last turn. Turns held while
// a restore was failing are recorded after the restored ones. Callers hold
// l.mu.
func (l *Logger) session(id string) (*sessionLog, error) {
	if sl, ok := l.sessions[id]; ok {
		return sl, nil
	}
	sl, err := l.restore(id)
	if err != nil {
		return nil, err
	}
	held := l.held[id]
	if sl == nil {
		if len(held) == 0 {
			return nil, ErrUnknownSession
		}
		sl = &sessionLog{}
	}
	l.sessions[id] = sl
	delete(l.held, id)

	var errs []error
	for _, h := range held {
		if err := l.add(sl, h.st, h.res); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		slog.Warn("writing held interactions failed", "session", id, "error", errors.Join(errs...))
	}
	return sl, nil
}

// restore rebuilds a session's log from its rows. It returns nil when the
// session has no rows.
func (l *Logger) restore(id string) (*sessionLog, error) {
	if l.rows == nil {
		return nil, nil
	}
	rows, err := l.rows.ListInteractionRows(id)
	if err != nil {
		return nil, fmt.Errorf("listing interaction rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	sl := &sessionLog{}
	for _, row := range rows {
		var rec Record
		if err := json.Unmarshal([]byte(row.RecordJSON), &rec); err != nil {
			return nil, fmt.Errorf("decoding interaction %s: %w", row.ID, err)
		}
		l.extend(sl, &rec, rec.Timestamp)
		sl.records = append(sl.records, rec)
	}
	return sl, nil
}

func (l *Logger) path(format, sessionID string) string {
	return filepath.Join(l.dir, fmt.Sprintf(format, sessionID))
}

var sketchTerms = []string{"sketch", "drawing", "drew", "drawn"}

// modalityFor marks student moves as sketch-based when the session has an
// uploaded image and the student refers to it.
func modalityFor(st session.State, input string) string {
	if len(st.Artifacts) > 0 && agent.ContainsAny(strings.ToLower(input), sketchTerms) {
		return ModalitySketch
	}
	return ModalityVerbal
}
