// Package classifier reads each student message along confidence,
// understanding, engagement and intent dimensions.
package classifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/llm"
	"github.com/kalambet/mentor/internal/session"
)

const defaultTimeout = 10 * time.Second

// Completer is the LLM capability the classifier needs.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Classifier combines an LLM reading with keyword heuristics.
type Classifier struct {
	llm     Completer
	timeout time.Duration
}

// New creates a Classifier. A nil client means heuristics only.
func New(client Completer) *Classifier {
	return &Classifier{llm: client, timeout: defaultTimeout}
}

type llmResult struct {
	ConfidenceLevel      string   `json:"confidence_level"`
	UnderstandingLevel   string   `json:"understanding_level"`
	EngagementLevel      string   `json:"engagement_level"`
	IsTechnicalQuestion  bool     `json:"is_technical_question"`
	IsFeedbackRequest    bool     `json:"is_feedback_request"`
	ShowsConfusion       bool     `json:"shows_confusion"`
	ShowsOverconfidence  bool     `json:"shows_overconfidence"`
	IsKnowledgeSeeking   bool     `json:"is_knowledge_seeking"`
	RequestsDirectAnswer bool     `json:"requests_direct_answer"`
	CognitiveFlags       []string `json:"cognitive_flags"`
	Reasoning            string   `json:"reasoning"`
}

// Classify never fails: if the LLM call or its output is unusable the
// heuristic reading is returned instead. The result is advisory.
func (c *Classifier) Classify(ctx context.Context, st session.State, utterance string) agent.Classification {
	h := Heuristic(utterance)
	if c.llm == nil {
		return h
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.llm.Complete(ctx, llm.CompletionRequest{
		System:      systemPrompt,
		Prompt:      BuildPrompt(st, utterance),
		MaxTokens:   400,
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		slog.Warn("classifier: llm call failed, using heuristics", "error", err)
		return h
	}

	var r llmResult
	if err := agent.DecodeJSON(raw, &r); err != nil {
		slog.Warn("classifier: unparseable llm output, using heuristics", "error", err)
		return h
	}
	return merge(r, h)
}

// merge takes validated LLM fields, falling back field by field to the
// heuristic reading for values outside the recognized options.
func merge(r llmResult, h agent.Classification) agent.Classification {
	out := agent.Classification{
		ConfidenceLevel:      h.ConfidenceLevel,
		UnderstandingLevel:   h.UnderstandingLevel,
		EngagementLevel:      h.EngagementLevel,
		IsTechnicalQuestion:  r.IsTechnicalQuestion,
		IsFeedbackRequest:    r.IsFeedbackRequest,
		ShowsConfusion:       r.ShowsConfusion,
		ShowsOverconfidence:  r.ShowsOverconfidence,
		IsKnowledgeSeeking:   r.IsKnowledgeSeeking,
		RequestsDirectAnswer: r.RequestsDirectAnswer || h.RequestsDirectAnswer,
		IsImprovementSeeking: h.IsImprovementSeeking,
		IsQuestion:           h.IsQuestion,
		AIReasoning:          r.Reasoning,
	}
	if v := agent.Confidence(r.ConfidenceLevel); validConfidence(v) {
		out.ConfidenceLevel = v
	}
	if v := agent.Level(r.UnderstandingLevel); validLevel(v) {
		out.UnderstandingLevel = v
	}
	if v := agent.Level(r.EngagementLevel); validLevel(v) {
		out.EngagementLevel = v
	}
	if out.ConfidenceLevel == agent.Overconfident {
		out.ShowsOverconfidence = true
	}
	out.CognitiveFlags = agent.MergeFlags(agent.NormalizeFlags(r.CognitiveFlags), h.CognitiveFlags)
	return finish(out)
}

func finish(c agent.Classification) agent.Classification {
	c.InputType = DeriveInputType(c)
	c.SuggestedPath = agent.Route(c)
	return c
}

func validConfidence(v agent.Confidence) bool {
	return v == agent.Uncertain || v == agent.Confident || v == agent.Overconfident
}

func validLevel(v agent.Level) bool {
	return v == agent.Low || v == agent.Medium || v == agent.High
}

// DeriveInputType reduces a classification to a single input type.
func DeriveInputType(c agent.Classification) agent.InputType {
	switch {
	case c.IsFeedbackRequest:
		return agent.InputFeedbackRequest
	case c.IsImprovementSeeking:
		return agent.InputImprovementSeeking
	case c.IsKnowledgeSeeking:
		return agent.InputKnowledgeSeeking
	case c.ShowsOverconfidence || c.ConfidenceLevel == agent.Overconfident:
		return agent.InputOverconfidentStatement
	case c.ShowsConfusion:
		return agent.InputConfusionExpression
	case c.IsQuestion:
		return agent.InputDirectQuestion
	default:
		return agent.InputGeneralStatement
	}
}
