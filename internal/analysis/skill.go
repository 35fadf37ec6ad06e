package analysis

import (
	"strings"
	"sync"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/session"
)

const (
	// stableConfidence and stableTurns gate a profile skill change: the same
	// assessed level must be seen with enough confidence on consecutive turns.
	stableConfidence = 0.7
	stableTurns      = 3
)

var (
	advancedVocabulary = []string{
		"parti", "tectonic", "phenomenolog", "typolog", "poché", "poche", "datum",
		"threshold", "promenade", "spatial sequence", "figure-ground", "parametric",
		"thermal mass", "passive house", "embodied carbon", "cross-laminated", "clt",
		"cantilever", "load path", "section", "precedent",
	}
	intermediateVocabulary = []string{
		"circulation", "massing", "program", "zoning", "daylight", "facade", "orientation",
		"context", "scale", "proportion", "structure", "grid", "atrium", "courtyard",
		"accessibility", "sustainability", "materiality", "elevation", "plan",
	}
)

// assessSkill estimates the student's level from the vocabulary and length of
// their recent messages. Confidence grows with the amount of evidence.
func assessSkill(st session.State, utterance string) (session.SkillLevel, float64) {
	var sb strings.Builder
	for _, m := range st.RecentMessages(8) {
		if m.Role == session.RoleUser {
			sb.WriteString(m.Content)
			sb.WriteByte('\n')
		}
	}
	sb.WriteString(utterance)
	text := strings.ToLower(sb.String())

	adv := agent.CountHits(text, advancedVocabulary)
	mid := agent.CountHits(text, intermediateVocabulary)
	words := agent.WordCount(text)

	var level session.SkillLevel
	switch {
	case adv >= 3 || (adv >= 2 && mid >= 4):
		level = session.Advanced
	case mid >= 2 || adv >= 1:
		level = session.Intermediate
	default:
		level = session.Beginner
	}

	evidence := float64(adv*2+mid) / 10
	if words > 60 {
		evidence += 0.2
	}
	conf := 0.4 + evidence
	if level == session.Beginner && words < 15 {
		conf = 0.4
	}
	return level, agent.Clamp01(min(conf, 0.95))
}

// skillTracker remembers per-session reassessment streaks.
type skillTracker struct {
	mu      sync.Mutex
	streaks map[string]streak
}

type streak struct {
	level session.SkillLevel
	count int
}

func newSkillTracker() *skillTracker {
	return &skillTracker{streaks: make(map[string]streak)}
}

// observe records one assessment and reports whether the profile level
// should change, together with the current streak length.
func (t *skillTracker) observe(sessionID string, current, assessed session.SkillLevel, conf float64) (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if assessed == current || conf < stableConfidence {
		delete(t.streaks, sessionID)
		return false, 0
	}
	s := t.streaks[sessionID]
	if s.level != assessed {
		s = streak{level: assessed}
	}
	s.count++
	if s.count >= stableTurns {
		delete(t.streaks, sessionID)
		return true, s.count
	}
	t.streaks[sessionID] = s
	return false, s.count
}
