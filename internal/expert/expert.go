// Package expert answers knowledge questions from the ingested literature.
// Every answer names its sources; without a relevant passage it declines.
package expert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/knowledge"
	"github.com/kalambet/mentor/internal/llm"
)

const (
	defaultTimeout = 20 * time.Second
	defaultK       = 5
	maxPassages    = 3
	excerptLen     = 280
)

// Completer is the LLM capability used to phrase grounded answers.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Searcher retrieves cited passages.
type Searcher interface {
	SearchWithCitations(ctx context.Context, query string, k int) ([]knowledge.CitedHit, error)
}

// Agent is the domain expert.
type Agent struct {
	llm     Completer
	kb      Searcher
	k       int
	minSim  float64
	timeout time.Duration
}

// New creates an Agent. client may be nil, in which case answers are
// assembled from passage excerpts.
func New(client Completer, kb Searcher, k int, minSim float64) *Agent {
	if k <= 0 {
		k = defaultK
	}
	if minSim <= 0 {
		minSim = 0.3
	}
	return &Agent{llm: client, kb: kb, k: k, minSim: minSim, timeout: defaultTimeout}
}

// Respond returns agent.ErrInsufficientKnowledge when no passage reaches the
// similarity floor. Search failures are returned wrapped.
func (a *Agent) Respond(ctx context.Context, t agent.Turn) (agent.Response, error) {
	if a.kb == nil {
		return agent.Response{}, agent.ErrInsufficientKnowledge
	}

	query := buildQuery(t)
	hits, err := a.kb.SearchWithCitations(ctx, query, a.k)
	if err != nil {
		return agent.Response{}, fmt.Errorf("searching knowledge: %w", err)
	}

	var relevant []knowledge.CitedHit
	for _, h := range hits {
		if h.Similarity >= a.minSim {
			relevant = append(relevant, h)
		}
	}
	if len(relevant) == 0 {
		slog.Debug("expert: no passage above similarity floor", "query", query, "hits", len(hits), "min_sim", a.minSim)
		return agent.Response{}, agent.ErrInsufficientKnowledge
	}
	if len(relevant) > maxPassages {
		relevant = relevant[:maxPassages]
	}

	sources := make([]agent.Source, len(relevant))
	for i, h := range relevant {
		sources[i] = agent.Source{
			Title:       h.Metadata.Title,
			Author:      h.Metadata.Author,
			CitationKey: h.Metadata.CitationKey,
			Citation:    h.Citation,
			Pages:       h.Pages,
			Similarity:  h.Similarity,
			Excerpt:     excerpt(h.Content, excerptLen),
		}
	}

	body, degraded := a.compose(ctx, t, sources)
	return agent.Response{
		Agent:        agent.DomainExpert,
		Text:         body + "\n\n" + formatSources(sources),
		ResponseType: "knowledge_response",
		Flags:        []agent.Flag{agent.FlagLearningProgression},
		Sources:      sources,
		Degraded:     degraded,
	}, nil
}

func buildQuery(t agent.Turn) string {
	q := strings.TrimSpace(t.Utterance)
	if agent.WordCount(q) < 6 && t.Analysis.BuildingType != "" && t.Analysis.BuildingType != "building" {
		q = t.Analysis.BuildingType + " " + q
	}
	return q
}

func (a *Agent) compose(ctx context.Context, t agent.Turn, sources []agent.Source) (string, bool) {
	fallback := composeFromExcerpts(t.Utterance, sources)
	if a.llm == nil {
		return fallback, false
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	out, err := a.llm.Complete(ctx, llm.CompletionRequest{
		System:      systemPrompt,
		Prompt:      buildPrompt(t, sources),
		MaxTokens:   600,
		Temperature: 0.3,
	})
	if err != nil {
		slog.Warn("expert: llm call failed, using excerpts", "error", err)
		return fallback, true
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return fallback, true
	}
	return out, false
}

const systemPrompt = `You are an architecture domain expert supporting a design student. Answer only from the numbered passages provided. Name the source title whenever you use a passage. If the passages do not answer part of the question, say so instead of guessing. Keep the answer under 180 words and do not design the project for the student.`

func buildPrompt(t agent.Turn, sources []agent.Source) string {
	var sb strings.Builder
	if t.State.Brief != "" {
		fmt.Fprintf(&sb, "[Design brief]\n%s\n\n", t.State.Brief)
	}
	fmt.Fprintf(&sb, "[Student skill level]\n%s\n\n", t.State.Profile.SkillLevel)
	sb.WriteString("[Passages]\n")
	for i, s := range sources {
		fmt.Fprintf(&sb, "%d. %s\n%s\n\n", i+1, s.Citation, s.Excerpt)
	}
	fmt.Fprintf(&sb, "[Question]\n%s\n", t.Utterance)
	return sb.String()
}

func composeFromExcerpts(utterance string, sources []agent.Source) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Here is what the literature says about %s.", agent.Topic(utterance, "this question"))
	for _, s := range sources {
		fmt.Fprintf(&sb, "\n\nIn %s: %s", quoteTitle(s.Title), s.Excerpt)
	}
	return sb.String()
}

func formatSources(sources []agent.Source) string {
	var sb strings.Builder
	sb.WriteString("Sources:")
	for _, s := range sources {
		sb.WriteString("\n- ")
		sb.WriteString(s.Citation)
		if len(s.Pages) > 0 {
			sb.WriteString(" p. ")
			sb.WriteString(joinInts(s.Pages))
		}
	}
	return sb.String()
}

func quoteTitle(title string) string {
	if title == "" {
		return "an untitled source"
	}
	return "“" + title + "”"
}

// excerpt trims text to at most n bytes on a word boundary.
func excerpt(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= n {
		return text
	}
	cut := text[:n]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, ",;:") + "..."
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
