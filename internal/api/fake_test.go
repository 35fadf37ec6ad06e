package api

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/interactions"
	"github.com/kalambet/mentor/internal/knowledge"
	"github.com/kalambet/mentor/internal/orchestrator"
	"github.com/kalambet/mentor/internal/session"
	"github.com/kalambet/mentor/internal/tutor"
)

const testToken = "test-token"

// fakeTutor is an in-memory Tutor with one known session, "s1".
type fakeTutor struct {
	mu        sync.Mutex
	posted    []string
	refs      []string
	uploaded  []byte
	kind      string
	mimeType  string
	searchK   int
	hits      []knowledge.CitedHit
	exportErr error
}

func (f *fakeTutor) StartSession(brief, skillLevel string) (session.State, error) {
	if strings.TrimSpace(brief) == "" {
		return session.State{}, &tutor.ValidationError{Field: "brief", Reason: "must not be empty"}
	}
	level := session.Intermediate
	if skillLevel != "" {
		l, err := session.ParseSkillLevel(skillLevel)
		if err != nil {
			return session.State{}, &tutor.ValidationError{Field: "skill_level", Reason: err.Error()}
		}
		level = l
	}
	return session.State{
		ID:        "s1",
		Brief:     brief,
		Profile:   session.Profile{SkillLevel: level},
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeTutor) Session(id string) (session.State, error) {
	if id != "s1" {
		return session.State{}, session.ErrNotFound
	}
	return session.State{ID: "s1", Brief: "community library", Profile: session.Profile{SkillLevel: session.Intermediate}}, nil
}

func (f *fakeTutor) PostMessage(ctx context.Context, sessionID, text string, artifactIDs []string, milestone *agent.MilestoneContext) (orchestrator.Result, error) {
	if strings.TrimSpace(text) == "" {
		return orchestrator.Result{}, &tutor.ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if sessionID != "s1" {
		return orchestrator.Result{}, fmt.Errorf("appending user message: %w", session.ErrNotFound)
	}
	f.mu.Lock()
	f.posted = append(f.posted, text)
	f.refs = append(f.refs, artifactIDs...)
	f.mu.Unlock()
	return orchestrator.Result{
		SessionID:   sessionID,
		Input:       text,
		Response:    "What does the entrance need to say to someone arriving?",
		RoutingPath: agent.PathSocraticFocus,
		Metadata: orchestrator.Metadata{
			AgentsUsed:   []agent.Name{agent.SocraticTutor},
			ResponseType: "socratic_question",
		},
	}, nil
}

func (f *fakeTutor) UploadArtifact(ctx context.Context, sessionID, kind string, data []byte, mimeType string) (session.Artifact, error) {
	if sessionID != "s1" {
		return session.Artifact{}, session.ErrNotFound
	}
	f.mu.Lock()
	f.uploaded = data
	f.kind = kind
	f.mimeType = mimeType
	f.mu.Unlock()
	return session.Artifact{ID: "a1", Kind: session.ArtifactKind(kind), StorageRef: "/tmp/a1"}, nil
}

func (f *fakeTutor) Interactions(sessionID string) ([]interactions.Record, error) {
	if sessionID != "s1" {
		return nil, session.ErrNotFound
	}
	return nil, nil
}

func (f *fakeTutor) Summary(sessionID string) (interactions.Summary, error) {
	if sessionID != "s1" {
		return interactions.Summary{}, session.ErrNotFound
	}
	return interactions.Summarize(sessionID, nil, nil), nil
}

func (f *fakeTutor) ExportSession(sessionID string) (interactions.ExportPaths, error) {
	if sessionID != "s1" {
		return interactions.ExportPaths{}, session.ErrNotFound
	}
	if f.exportErr != nil {
		return interactions.ExportPaths{}, f.exportErr
	}
	return interactions.ExportPaths{
		CSV:  []string{"/out/interactions_s1.csv", "/out/design_moves_s1.csv"},
		JSON: []string{"/out/session_summary_s1.json"},
	}, nil
}

func (f *fakeTutor) SearchKnowledge(ctx context.Context, query string, k int) ([]knowledge.CitedHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &tutor.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	f.mu.Lock()
	f.searchK = k
	f.mu.Unlock()
	return f.hits, nil
}
