// Package cognitive guards against cognitive offloading. It challenges
// overconfident students, refuses to hand out finished answers, and scores
// every response on the six enhancement metrics.
package cognitive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/llm"
)

const defaultTimeout = 15 * time.Second

// Completer is the LLM capability used to phrase challenges.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Agent is the cognitive enhancement agent.
type Agent struct {
	llm     Completer
	timeout time.Duration
}

// New creates an Agent. A nil client selects the built-in phrasings.
func New(client Completer) *Agent {
	return &Agent{llm: client, timeout: defaultTimeout}
}

type mode string

const (
	modeProtection mode = "cognitive_protection"
	modeChallenge  mode = "cognitive_challenge"
	modeReflection mode = "reflective_challenge"
)

func modeFor(t agent.Turn) mode {
	switch {
	case t.Path == agent.PathCognitiveProtection || t.Classification.RequestsDirectAnswer:
		return modeProtection
	case t.Path == agent.PathMultiAgent:
		return modeReflection
	default:
		return modeChallenge
	}
}

// probeTerms must appear in a challenge for it to count as probing assumptions.
var probeTerms = []string{"evidence", "weakness", "alternative"}

// Respond produces a challenge or protection move for the turn. It does not
// fail; model errors fall back to fixed phrasings.
func (a *Agent) Respond(ctx context.Context, t agent.Turn) (agent.Response, error) {
	m := modeFor(t)
	topic := agent.Topic(t.Utterance, designSubject(t.Analysis))

	text := template(m, topic)
	degraded := false
	if a.llm != nil {
		out, err := a.generate(ctx, m, t, topic)
		switch {
		case err != nil:
			slog.Warn("cognitive: llm call failed, using template", "mode", m, "error", err)
			degraded = true
		case m == modeChallenge && !agent.ContainsAny(out, probeTerms):
			slog.Debug("cognitive: generated challenge lacks probing language, using template")
		case out != "":
			text = agent.EnsureQuestion(out)
		}
	}

	strategy, flags := agent.AssumptionChallenge, []agent.Flag{agent.FlagMetacognitiveAwareness, agent.FlagDeepThinkingEncouraged}
	if m == modeProtection {
		strategy = ""
		flags = []agent.Flag{agent.FlagCognitiveOffloadingDetected, agent.FlagScaffoldingProvided}
	}

	metrics := Measure(MeasureInput{Turn: t, Text: text, Strategy: strategy, Sources: t.Examples})
	state := EstimateState(t)
	return agent.Response{
		Agent:          agent.CognitiveAgent,
		Text:           text,
		ResponseType:   string(m),
		Strategy:       strategy,
		Flags:          flags,
		Metrics:        &metrics,
		CognitiveState: &state,
		Degraded:       degraded,
	}, nil
}

func template(m mode, topic string) string {
	switch m {
	case modeProtection:
		return fmt.Sprintf("I won't hand you a finished answer, but we can work it out together. "+
			"What have you already tried for %s, and where exactly did you get stuck?", topic)
	case modeReflection:
		return fmt.Sprintf("Before weighing outside feedback on %s, test it yourself. "+
			"Which part are you least sure about, what evidence would convince you it works, "+
			"and what alternative would you compare it against?", topic)
	default:
		return fmt.Sprintf("Conviction is a good start, but a design needs evidence. "+
			"What evidence shows that your approach to %s works for the people in the brief? "+
			"Name one weakness a critic would point to, and which two alternatives would you compare it against?", topic)
	}
}

func (a *Agent) generate(ctx context.Context, m mode, t agent.Turn, topic string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	out, err := a.llm.Complete(ctx, llm.CompletionRequest{
		System:      systemPrompt(m),
		Prompt:      fmt.Sprintf("Design brief: %s\nTopic: %s\nStudent: %s", t.State.Brief, topic, t.Utterance),
		MaxTokens:   200,
		Temperature: 0.5,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func systemPrompt(m mode) string {
	base := "You are a design studio tutor who never gives students finished answers. Reply in at most three sentences and end with a question."
	switch m {
	case modeProtection:
		return base + " The student asked you to do the work for them. Decline kindly and ask what they have tried so far."
	case modeReflection:
		return base + " The student asked for feedback. Prompt them to evaluate their own work first."
	default:
		return base + " The student is overconfident. Ask for evidence, a weakness, and alternatives."
	}
}

func designSubject(a agent.Analysis) string {
	if a.BuildingType != "" && a.BuildingType != "building" {
		return "your " + a.BuildingType
	}
	return "your design"
}
