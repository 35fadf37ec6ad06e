package interactions

import (
	"regexp"
	"strings"
	"time"

	"github.com/kalambet/mentor/internal/agent"
)

const (
	minMoveChars = 10
	moveSpacing  = 100 * time.Millisecond
)

var moveSplitRe = regexp.MustCompile(`[.!?\n]+`)

// moveOrder is the order in which move types are tested.
var moveOrder = []agent.MoveType{
	agent.MoveSynthesis, agent.MoveAnalysis, agent.MoveEvaluation, agent.MoveTransformation, agent.MoveReflection,
}

// phaseMovePatterns are consulted first, for the current phase only.
var phaseMovePatterns = map[agent.Phase]map[agent.MoveType][]string{
	agent.PhaseIdeation: {
		agent.MoveSynthesis:      {"concept", "idea", "combine", "bring together", "vision"},
		agent.MoveAnalysis:       {"program", "site", "user", "need", "requirement", "brief"},
		agent.MoveEvaluation:     {"works", "fits", "suitable", "appropriate"},
		agent.MoveTransformation: {"instead", "shift", "reframe", "rethink"},
		agent.MoveReflection:     {"i wonder", "i realize", "looking back"},
	},
	agent.PhaseVisualization: {
		agent.MoveSynthesis:      {"layout", "arrange", "organize", "compose", "massing"},
		agent.MoveAnalysis:       {"circulation", "section", "plan", "flow", "adjacen", "orientation"},
		agent.MoveEvaluation:     {"too narrow", "too dark", "proportion", "legible", "clear"},
		agent.MoveTransformation: {"move the", "rotate", "extend", "split", "shift"},
		agent.MoveReflection:     {"the sketch shows", "i drew", "my drawing"},
	},
	agent.PhaseMaterialization: {
		agent.MoveSynthesis:      {"assembly", "system", "integrate", "combine"},
		agent.MoveAnalysis:       {"structure", "load", "span", "thermal", "detail", "insulation"},
		agent.MoveEvaluation:     {"cost", "durable", "performance", "efficient"},
		agent.MoveTransformation: {"replace", "switch to", "substitute", "upgrade"},
		agent.MoveReflection:     {"in hindsight", "i learned", "lesson"},
	},
}

// generalMovePatterns apply in every phase.
var generalMovePatterns = map[agent.MoveType][]string{
	agent.MoveSynthesis:      {"create", "design", "propose", "develop", "generate"},
	agent.MoveAnalysis:       {"analy", "examine", "consider", "why", "how", "understand"},
	agent.MoveEvaluation:     {"better", "worse", "evaluate", "assess", "compare", "evidence", "weakness", "strength", "good", "perfect"},
	agent.MoveTransformation: {"change", "modify", "adapt", "transform", "alternative", "what if"},
	agent.MoveReflection:     {"reflect", "think", "feel", "learn", "confused", "assumption"},
}

var typeLoadMultiplier = map[agent.MoveType]float64{
	agent.MoveSynthesis:      1.2,
	agent.MoveAnalysis:       1.1,
	agent.MoveEvaluation:     1.3,
	agent.MoveTransformation: 1.4,
	agent.MoveReflection:     0.8,
	agent.MoveGeneral:        1.0,
}

var phaseLoadMultiplier = map[agent.Phase]float64{
	agent.PhaseIdeation:        1.0,
	agent.PhaseVisualization:   1.2,
	agent.PhaseMaterialization: 1.3,
}

// splitMoves returns the sentences of text that are long enough to count
// as design moves.
func splitMoves(text string) []string {
	var out []string
	for _, part := range moveSplitRe.Split(text, -1) {
		part = strings.TrimSpace(part)
		if len([]rune(part)) >= minMoveChars {
			out = append(out, part)
		}
	}
	return out
}

// classifyMove matches phase-scoped patterns before general ones.
func classifyMove(text string, phase agent.Phase) agent.MoveType {
	lower := strings.ToLower(text)
	if patterns, ok := phaseMovePatterns[phase]; ok {
		for _, mt := range moveOrder {
			if agent.ContainsAny(lower, patterns[mt]) {
				return mt
			}
		}
	}
	for _, mt := range moveOrder {
		if agent.ContainsAny(lower, generalMovePatterns[mt]) {
			return mt
		}
	}
	return agent.MoveGeneral
}

// textComplexity is the mean word length relative to five characters.
func textComplexity(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	chars := 0
	for _, w := range words {
		chars += len([]rune(w))
	}
	return float64(chars) / float64(len(words)) / 5
}

// cognitiveLoad = min(words*complexity/100, 1) * type multiplier * phase
// multiplier, bounded to [0,1].
func cognitiveLoad(text string, mt agent.MoveType, phase agent.Phase) float64 {
	words := float64(len(strings.Fields(text)))
	base := min(words*textComplexity(text)/100, 1)
	tm, ok := typeLoadMultiplier[mt]
	if !ok {
		tm = 1
	}
	pm, ok := phaseLoadMultiplier[phase]
	if !ok {
		pm = 1
	}
	return agent.Clamp01(base * tm * pm)
}

// moveChain extends one session's move sequence, keeping move numbers,
// timestamps and links consistent.
type moveChain struct {
	moves []DesignMove
}

func (c *moveChain) last() *DesignMove {
	if len(c.moves) == 0 {
		return nil
	}
	return &c.moves[len(c.moves)-1]
}

// add extracts moves from text and links them onto the chain. Timestamps
// are base + (offset+i)*100ms, truncated to microseconds and forced to be
// strictly increasing across the whole session.
func (c *moveChain) add(text string, src MoveSource, base time.Time, offset int, phase agent.Phase, modality, sessionID, interactionID string) []DesignMove {
	start := len(c.moves)
	for i, sentence := range splitMoves(text) {
		ts := base.Add(time.Duration(offset+i) * moveSpacing).Truncate(time.Microsecond)
		mt := classifyMove(sentence, phase)
		m := DesignMove{
			MoveNumber:    len(c.moves) + 1,
			SessionID:     sessionID,
			InteractionID: interactionID,
			Phase:         phase,
			MoveType:      mt,
			Modality:      modality,
			Source:        src,
			Content:       sentence,
			CognitiveLoad: cognitiveLoad(sentence, mt, phase),
		}
		if prev := c.last(); prev != nil {
			if !ts.After(prev.Timestamp) {
				ts = prev.Timestamp.Add(time.Microsecond)
			}
			prev.Next = m.MoveNumber
			m.Prev = prev.MoveNumber
			m.TemporalGap = ts.Sub(prev.Timestamp).Seconds()
		}
		m.Timestamp = ts
		c.moves = append(c.moves, m)
	}
	return append([]DesignMove(nil), c.moves[start:]...)
}
