// Package socratic implements the tutor that guides through questions and
// never hands out answers.
package socratic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/cognitive"
	"github.com/kalambet/mentor/internal/llm"
)

const defaultTimeout = 15 * time.Second

// Completer is the LLM capability used to phrase questions.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Agent is the Socratic tutor.
type Agent struct {
	llm     Completer
	timeout time.Duration
}

// New creates an Agent. A nil client selects the built-in questions.
func New(client Completer) *Agent {
	return &Agent{llm: client, timeout: defaultTimeout}
}

// Respond always returns a question. When the domain expert already ran in
// this turn the question is anchored on its examples.
func (a *Agent) Respond(ctx context.Context, t agent.Turn) (agent.Response, error) {
	strategy := SelectStrategy(InputsFor(t))
	topic := agent.Topic(t.Utterance, subject(t.Analysis))

	var text string
	if len(t.Examples) > 0 {
		text = exampleQuestion(t.Examples[0], t.Analysis)
	} else {
		text = Question(strategy, topic, t.Analysis)
	}

	degraded := false
	if a.llm != nil {
		out, err := a.generate(ctx, strategy, topic, t)
		switch {
		case err != nil:
			slog.Warn("socratic: llm call failed, using template", "strategy", strategy, "error", err)
			degraded = true
		case out == "":
		case len(t.Examples) > 0 && !mentionsAny(out, t.Examples):
			text = fmt.Sprintf("Thinking about %s: %s", quote(t.Examples[0].Title), agent.EnsureQuestion(out))
		default:
			text = agent.EnsureQuestion(out)
		}
	}

	flags := append([]agent.Flag(nil), strategyFlags[strategy]...)
	if t.Classification.RequestsDirectAnswer {
		flags = agent.MergeFlags([]agent.Flag{agent.FlagCognitiveOffloadingDetected}, flags)
	}

	metrics := cognitive.Measure(cognitive.MeasureInput{Turn: t, Text: text, Strategy: strategy, Sources: t.Examples})
	return agent.Response{
		Agent:        agent.SocraticTutor,
		Text:         text,
		ResponseType: "socratic_question",
		Strategy:     strategy,
		Flags:        flags,
		Metrics:      &metrics,
		Degraded:     degraded,
	}, nil
}

// Question renders the built-in question for a strategy. It is also the
// orchestrator's deterministic fallback.
func Question(s agent.Strategy, topic string, a agent.Analysis) string {
	switch s {
	case agent.SupportiveGuidance:
		return fmt.Sprintf("You have a lot on the table already, which is good. Let's start with %s: "+
			"which part of it matters most to the people using the building, and why?", topic)
	case agent.AssumptionChallenge:
		return fmt.Sprintf("What assumption about %s are you most confident in, and what evidence would change your mind?", topic)
	case agent.DepthPromotion:
		return fmt.Sprintf("Why does %s matter for this project, and how would the design change if that priority shifted?", topic)
	case agent.ClarifyingGuidance:
		return fmt.Sprintf("Let's break %s down into smaller pieces. First consider how people arrive, move through "+
			"and leave the building. Which of those movements feels least clear to you right now?", topic)
	case agent.ExploratoryQuestion:
		return fmt.Sprintf("What if you approached %s from a completely different angle? What would you gain and what would you lose?", topic)
	case agent.FoundationalQuestion:
		return fmt.Sprintf("Before drawing anything, who will use %s, and what should they feel when they arrive?", subject(a))
	case agent.ChallengingQuestion:
		return fmt.Sprintf("Can you show how your decisions on %s hold up under the hardest constraint in the brief?", topic)
	default:
		return fmt.Sprintf("How does your current thinking on %s connect back to the brief, and what would you test next?", topic)
	}
}

func exampleQuestion(ex agent.Source, a agent.Analysis) string {
	return fmt.Sprintf("Looking at %s, which of its strategies would translate to %s, and what would you have to change for your own site and users?",
		quote(ex.Title), subject(a))
}

func (a *Agent) generate(ctx context.Context, s agent.Strategy, topic string, t agent.Turn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	out, err := a.llm.Complete(ctx, llm.CompletionRequest{
		System:      systemPrompt,
		Prompt:      buildPrompt(s, topic, t),
		MaxTokens:   200,
		Temperature: 0.6,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

const systemPrompt = `You are a Socratic design studio tutor for architecture students. Never give answers, solutions, or finished designs. Reply with at most two sentences and end with exactly one question.`

var strategyGuides = map[agent.Strategy]string{
	agent.SupportiveGuidance:   "Acknowledge the student's work and guide them to prioritize one aspect.",
	agent.AssumptionChallenge:  "Gently challenge the assumption the student is relying on.",
	agent.DepthPromotion:       "Push the student to explain why, going one level deeper.",
	agent.ClarifyingGuidance:   "The student is confused. Break the topic into a first small step.",
	agent.ExploratoryQuestion:  "Invite the student to explore an alternative direction.",
	agent.FoundationalQuestion: "Ask about users, site or purpose before form.",
	agent.AdaptiveQuestion:     "Connect the current topic back to the brief.",
	agent.ChallengingQuestion:  "Ask the student to demonstrate the skill under a hard constraint.",
}

func buildPrompt(s agent.Strategy, topic string, t agent.Turn) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Strategy]\n%s\n\n", strategyGuides[s])
	if t.Milestone != nil && t.Milestone.Description != "" {
		fmt.Fprintf(&sb, "[Milestone]\n%s\n\n", t.Milestone.Description)
	}
	if t.State.Brief != "" {
		fmt.Fprintf(&sb, "[Design brief]\n%s\n\n", t.State.Brief)
	}
	if len(t.Analysis.Synthesis.MissingConsiderations) > 0 {
		fmt.Fprintf(&sb, "[Not yet considered]\n%s\n\n", strings.Join(t.Analysis.Synthesis.MissingConsiderations, ", "))
	}
	if len(t.Examples) > 0 {
		sb.WriteString("[Examples the expert just shared; ask about these specifically and name one by title]\n")
		for _, ex := range t.Examples {
			fmt.Fprintf(&sb, "- %s\n", ex.Title)
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "[Topic]\n%s\n\n[Student]\n%s\n", topic, t.Utterance)
	return sb.String()
}

func subject(a agent.Analysis) string {
	if a.BuildingType != "" && a.BuildingType != "building" {
		return "your " + a.BuildingType
	}
	return "your design"
}

func mentionsAny(text string, sources []agent.Source) bool {
	lower := strings.ToLower(text)
	for _, s := range sources {
		if s.Title != "" && strings.Contains(lower, strings.ToLower(s.Title)) {
			return true
		}
	}
	return false
}

func quote(title string) string {
	if title == "" {
		return "that example"
	}
	return "“" + title + "”"
}
