package classifier

import (
	"fmt"
	"strings"

	"github.com/kalambet/mentor/internal/session"
)

const systemPrompt = `You classify a student's message in an architecture design tutoring session. Your output must be ONLY a single valid JSON object. Do not include any other text, prose, or markdown.

Fields:
- "confidence_level": one of "uncertain", "confident", "overconfident"
- "understanding_level": one of "low", "medium", "high"
- "engagement_level": one of "low", "medium", "high"
- "is_technical_question": true if the student asks about codes, dimensions, structure, building physics or other technical facts
- "is_feedback_request": true if the student asks for feedback or a review of their work
- "shows_confusion": true if the student says they are confused or lost
- "shows_overconfidence": true if the student claims their work is perfect or beyond question
- "is_knowledge_seeking": true if the student asks for precedents, examples, case studies or references
- "requests_direct_answer": true if the student asks the tutor to simply give the answer or do the design for them
- "cognitive_flags": array drawn from "deep_thinking_encouraged", "scaffolding_provided", "cognitive_offloading_detected", "engagement_maintained", "learning_progression", "metacognitive_awareness"
- "reasoning": one sentence explaining the classification

Rules:
- Precedent and example requests are knowledge seeking, not technical.
- Judge only the latest message; use the history for context.`

// BuildPrompt renders the user prompt for one classification call.
func BuildPrompt(st session.State, utterance string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Student profile]\nskill level: %s\n", st.Profile.SkillLevel)
	if st.Brief != "" {
		fmt.Fprintf(&sb, "\n[Design brief]\n%s\n", st.Brief)
	}
	history := st.RecentMessages(6)
	if len(history) > 0 {
		sb.WriteString("\n[Recent conversation]\n")
		for _, m := range history {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
	}
	fmt.Fprintf(&sb, "\n[Latest message]\n%s\n", utterance)
	return sb.String()
}
