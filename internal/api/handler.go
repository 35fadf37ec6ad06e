package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/interactions"
	"github.com/kalambet/mentor/internal/knowledge"
	"github.com/kalambet/mentor/internal/orchestrator"
	"github.com/kalambet/mentor/internal/session"
	"github.com/kalambet/mentor/internal/tutor"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxUploadSize      = 20 << 20 // 20MB
	maxSearchResults   = 50
)

// Tutor is the session API served over HTTP and MCP.
type Tutor interface {
	StartSession(brief, skillLevel string) (session.State, error)
	Session(id string) (session.State, error)
	PostMessage(ctx context.Context, sessionID, text string, artifactIDs []string, milestone *agent.MilestoneContext) (orchestrator.Result, error)
	UploadArtifact(ctx context.Context, sessionID, kind string, data []byte, mimeType string) (session.Artifact, error)
	Interactions(sessionID string) ([]interactions.Record, error)
	Summary(sessionID string) (interactions.Summary, error)
	ExportSession(sessionID string) (interactions.ExportPaths, error)
	SearchKnowledge(ctx context.Context, query string, k int) ([]knowledge.CitedHit, error)
}

type StartSessionRequest struct {
	Brief      string `json:"brief"`
	SkillLevel string `json:"skill_level"`
}

type PostMessageRequest struct {
	Text         string                  `json:"text"`
	ArtifactRefs []string                `json:"artifact_refs"`
	Milestone    *agent.MilestoneContext `json:"milestone,omitempty"`
}

// MessageResponse is the reply to one posted message.
type MessageResponse struct {
	Response    string                `json:"response"`
	RoutingPath agent.RoutingPath     `json:"routing_path"`
	Metadata    orchestrator.Metadata `json:"metadata"`
}

type InteractionsResponse struct {
	SessionID    string                `json:"session_id"`
	Interactions []interactions.Record `json:"interactions"`
	Summary      interactions.Summary  `json:"summary"`
}

// NewHandler returns the HTTP session API. Every route except /health
// requires the bearer token.
func NewHandler(t Tutor, token string) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(token))

		r.Post("/sessions", handleStartSession(t))
		r.Get("/sessions/{id}", handleGetSession(t))
		r.Post("/sessions/{id}/messages", handlePostMessage(t))
		r.Post("/sessions/{id}/artifacts", handleUploadArtifact(t))
		r.Get("/sessions/{id}/interactions", handleInteractions(t))
		r.Post("/sessions/{id}/export", handleExport(t))
		r.Get("/knowledge/search", handleSearch(t))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleStartSession(t Tutor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartSessionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		st, err := t.StartSession(req.Brief, req.SkillLevel)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, st)
	}
}

func handleGetSession(t Tutor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := t.Session(chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handlePostMessage(t Tutor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PostMessageRequest
		if !decodeBody(w, r, &req) {
			return
		}
		id := chi.URLParam(r, "id")
		res, err := t.PostMessage(r.Context(), id, req.Text, req.ArtifactRefs, req.Milestone)
		if err != nil {
			serviceError(w, err)
			return
		}
		slog.Debug("message handled",
			"session", id,
			"routing_path", res.RoutingPath,
			"degraded", res.Metadata.Degraded,
			"duration_ms", res.Metadata.ProcessingMs,
		)
		writeJSON(w, http.StatusOK, MessageResponse{
			Response:    res.Response,
			RoutingPath: res.RoutingPath,
			Metadata:    res.Metadata,
		})
	}
}

// handleUploadArtifact accepts a multipart form with an "image" file part
// and an optional "kind" field.
func handleUploadArtifact(t Tutor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<20)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "image file is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading image: %v", err)
			return
		}
		mimeType := header.Header.Get("Content-Type")
		if mimeType == "application/octet-stream" {
			mimeType = ""
		}

		a, err := t.UploadArtifact(r.Context(), chi.URLParam(r, "id"), r.FormValue("kind"), data, mimeType)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

func handleInteractions(t Tutor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		recs, err := t.Interactions(id)
		if err != nil {
			serviceError(w, err)
			return
		}
		sum, err := t.Summary(id)
		if err != nil {
			serviceError(w, err)
			return
		}
		if recs == nil {
			recs = []interactions.Record{}
		}
		writeJSON(w, http.StatusOK, InteractionsResponse{SessionID: id, Interactions: recs, Summary: sum})
	}
}

func handleExport(t Tutor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paths, err := t.ExportSession(chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, paths)
	}
}

func handleSearch(t Tutor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		k := 0
		if raw := q.Get("k"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "k must be a positive integer")
				return
			}
			k = min(n, maxSearchResults)
		}
		hits, err := t.SearchKnowledge(r.Context(), q.Get("q"), k)
		if err != nil {
			serviceError(w, err)
			return
		}
		if hits == nil {
			hits = []knowledge.CitedHit{}
		}
		writeJSON(w, http.StatusOK, hits)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// serviceError maps tutor errors to HTTP status codes.
func serviceError(w http.ResponseWriter, err error) {
	var verr *tutor.ValidationError
	switch {
	case errors.As(err, &verr):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", verr.Error())
	case errors.Is(err, session.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "session not found")
	default:
		slog.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
