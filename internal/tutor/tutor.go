// Package tutor is the session API: it wires the session store, the
// orchestrator and its agents, the vision port and the interaction logger
// behind StartSession, PostMessage and ExportSession.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/analysis"
	"github.com/kalambet/mentor/internal/classifier"
	"github.com/kalambet/mentor/internal/cognitive"
	"github.com/kalambet/mentor/internal/expert"
	"github.com/kalambet/mentor/internal/interactions"
	"github.com/kalambet/mentor/internal/knowledge"
	"github.com/kalambet/mentor/internal/llm"
	"github.com/kalambet/mentor/internal/orchestrator"
	"github.com/kalambet/mentor/internal/session"
	"github.com/kalambet/mentor/internal/socratic"
	"github.com/kalambet/mentor/internal/vision"
)

const (
	defaultTopK     = 5
	maxArtifactSize = 20 << 20
)

// Describer analyzes uploaded images.
type Describer interface {
	Describe(ctx context.Context, data []byte, mimeType string) (vision.Analysis, error)
}

// Deps are the collaborators a Service is built from. Every field except
// Sessions may be nil: without an LLM the agents run on heuristics and
// templates, without a knowledge store the expert always defers to the
// Socratic tutor.
type Deps struct {
	Sessions  *session.Store
	LLM       llm.Provider
	Knowledge *knowledge.Store
	Vision    Describer
	Logger    *interactions.Logger
}

// Options tune the service.
type Options struct {
	AgentTimeout  time.Duration
	TopK          int
	MinSimilarity float64
	// ArtifactDir receives uploaded image bytes. Empty keeps them in a
	// temporary directory.
	ArtifactDir string
}

// Service is the session API.
type Service struct {
	sessions    *session.Store
	orch        *orchestrator.Orchestrator
	kb          *knowledge.Store
	vision      Describer
	log         *interactions.Logger
	artifactDir string
	topK        int
}

// New builds the agents and the orchestrator from deps.
func New(deps Deps, opts Options) (*Service, error) {
	if deps.Sessions == nil {
		return nil, errors.New("tutor: session store is required")
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.MinSimilarity <= 0 && deps.Knowledge != nil {
		opts.MinSimilarity = deps.Knowledge.MinSimilarity()
	}
	if opts.ArtifactDir == "" {
		opts.ArtifactDir = filepath.Join(os.TempDir(), "mentor-artifacts")
	}
	if err := os.MkdirAll(opts.ArtifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}

	var (
		analysisKB analysis.Searcher
		expertKB   expert.Searcher
	)
	if deps.Knowledge != nil {
		analysisKB = deps.Knowledge
		expertKB = deps.Knowledge
	}

	agents := orchestrator.Agents{
		Classifier: classifier.New(deps.LLM),
		Analysis:   analysis.New(deps.LLM, analysisKB, opts.MinSimilarity),
		Expert:     expert.New(deps.LLM, expertKB, opts.TopK, opts.MinSimilarity),
		Socratic:   socratic.New(deps.LLM),
		Cognitive:  cognitive.New(deps.LLM),
	}
	var recorder orchestrator.Recorder
	if deps.Logger != nil {
		recorder = deps.Logger
	}

	return &Service{
		sessions:    deps.Sessions,
		orch:        orchestrator.New(deps.Sessions, agents, recorder, opts.AgentTimeout),
		kb:          deps.Knowledge,
		vision:      deps.Vision,
		log:         deps.Logger,
		artifactDir: opts.ArtifactDir,
		topK:        opts.TopK,
	}, nil
}

// StartSession creates a session for a design brief. skillLevel defaults to
// intermediate when empty.
func (s *Service) StartSession(brief, skillLevel string) (session.State, error) {
	brief = strings.TrimSpace(brief)
	if brief == "" {
		return session.State{}, invalid("brief", "must not be empty")
	}
	level := session.Intermediate
	if strings.TrimSpace(skillLevel) != "" {
		l, err := session.ParseSkillLevel(skillLevel)
		if err != nil {
			return session.State{}, invalid("skill_level", "%v", err)
		}
		level = l
	}

	st, err := s.sessions.Create(brief, session.Profile{SkillLevel: level})
	if err != nil {
		return session.State{}, fmt.Errorf("creating session: %w", err)
	}
	slog.Info("session started", "session", st.ID, "skill", level)
	return st, nil
}

// Session returns a snapshot of a session.
func (s *Service) Session(id string) (session.State, error) {
	return s.sessions.Get(id)
}

// PostMessage runs one tutoring turn. artifactIDs name previously uploaded
// artifacts the student refers to; any of them still lacking an analysis is
// described before the turn.
func (s *Service) PostMessage(ctx context.Context, sessionID, text string, artifactIDs []string, milestone *agent.MilestoneContext) (orchestrator.Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return orchestrator.Result{}, invalid("text", "must not be empty")
	}
	st, err := s.sessions.Get(sessionID)
	if err != nil {
		return orchestrator.Result{}, err
	}
	if len(artifactIDs) > 0 {
		if err := s.analyzeReferenced(ctx, st, artifactIDs); err != nil {
			return orchestrator.Result{}, err
		}
	}
	return s.orch.Turn(ctx, sessionID, text, milestone)
}

// analyzeReferenced describes referenced artifacts that have no analysis
// yet. A vision failure leaves the artifact unanalyzed and the turn goes on.
func (s *Service) analyzeReferenced(ctx context.Context, st session.State, ids []string) error {
	byID := make(map[string]session.Artifact, len(st.Artifacts))
	for _, a := range st.Artifacts {
		byID[a.ID] = a
	}
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return invalid("artifact_refs", "unknown artifact %q", id)
		}
		if a.Analysis != nil || s.vision == nil {
			continue
		}
		data, err := os.ReadFile(a.StorageRef)
		if err != nil {
			slog.Warn("reading artifact failed", "artifact", id, "error", err)
			continue
		}
		s.describe(ctx, st.ID, id, data, "")
	}
	return nil
}

// UploadArtifact stores an image and attaches its vision analysis when a
// vision port is configured.
func (s *Service) UploadArtifact(ctx context.Context, sessionID, kind string, data []byte, mimeType string) (session.Artifact, error) {
	if len(data) == 0 {
		return session.Artifact{}, invalid("image", "must not be empty")
	}
	if len(data) > maxArtifactSize {
		return session.Artifact{}, invalid("image", "larger than %d bytes", maxArtifactSize)
	}
	k, err := parseKind(kind)
	if err != nil {
		return session.Artifact{}, err
	}
	if _, err := s.sessions.Get(sessionID); err != nil {
		return session.Artifact{}, err
	}

	id := uuid.New().String()
	ref := filepath.Join(s.artifactDir, sessionID+"_"+id)
	if err := os.WriteFile(ref, data, 0o644); err != nil {
		return session.Artifact{}, fmt.Errorf("storing artifact: %w", err)
	}
	a := session.Artifact{ID: id, Kind: k, StorageRef: ref}
	if err := s.sessions.SetBrief(sessionID, session.BriefUpdate{Artifacts: []session.Artifact{a}}); err != nil {
		return session.Artifact{}, fmt.Errorf("attaching artifact: %w", err)
	}

	if s.vision != nil {
		if an, ok := s.describe(ctx, sessionID, id, data, mimeType); ok {
			a.Analysis = &an
		}
	}
	return a, nil
}

func (s *Service) describe(ctx context.Context, sessionID, artifactID string, data []byte, mimeType string) (vision.Analysis, bool) {
	an, err := s.vision.Describe(ctx, data, mimeType)
	if err != nil {
		slog.Warn("artifact analysis failed", "session", sessionID, "artifact", artifactID, "error", err)
		return vision.Analysis{}, false
	}
	u := session.BriefUpdate{Analyses: map[string]vision.Analysis{artifactID: an}}
	if err := s.sessions.SetBrief(sessionID, u); err != nil {
		slog.Warn("attaching artifact analysis failed", "session", sessionID, "artifact", artifactID, "error", err)
		return vision.Analysis{}, false
	}
	slog.Debug("artifact analyzed", "session", sessionID, "artifact", artifactID, "type", an.Classification.Type)
	return an, true
}

func parseKind(kind string) (session.ArtifactKind, error) {
	switch k := session.ArtifactKind(strings.ToLower(strings.TrimSpace(kind))); k {
	case "":
		return session.KindSketch, nil
	case session.KindSketch, session.KindPlan, session.KindElevation, session.Kind3D, session.KindPhoto, session.KindOther:
		return k, nil
	}
	return "", invalid("kind", "unknown artifact kind %q", kind)
}

// ExportSession writes the session's CSV and JSON exports.
func (s *Service) ExportSession(sessionID string) (interactions.ExportPaths, error) {
	if _, err := s.sessions.Get(sessionID); err != nil {
		return interactions.ExportPaths{}, err
	}
	if s.log == nil {
		return interactions.ExportPaths{}, errors.New("interaction logging is disabled")
	}
	return s.log.Export(sessionID)
}

// Interactions returns the session's logged interactions.
func (s *Service) Interactions(sessionID string) ([]interactions.Record, error) {
	if _, err := s.sessions.Get(sessionID); err != nil {
		return nil, err
	}
	if s.log == nil {
		return nil, nil
	}
	recs, err := s.log.Records(sessionID)
	if errors.Is(err, interactions.ErrUnknownSession) {
		return nil, nil
	}
	return recs, err
}

// Summary aggregates the session's interactions so far.
func (s *Service) Summary(sessionID string) (interactions.Summary, error) {
	recs, err := s.Interactions(sessionID)
	if err != nil {
		return interactions.Summary{}, err
	}
	if len(recs) == 0 {
		return interactions.Summarize(sessionID, nil, nil), nil
	}
	return s.log.Summary(sessionID)
}

// SearchKnowledge queries the knowledge store directly.
func (s *Service) SearchKnowledge(ctx context.Context, query string, k int) ([]knowledge.CitedHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, invalid("query", "must not be empty")
	}
	if s.kb == nil {
		return nil, errors.New("knowledge store is not configured")
	}
	if k <= 0 {
		k = s.topK
	}
	return s.kb.SearchWithCitations(ctx, query, k)
}
