package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/mentor/internal/vision"
)

type SkillLevel string

const (
	Beginner     SkillLevel = "beginner"
	Intermediate SkillLevel = "intermediate"
	Advanced     SkillLevel = "advanced"
)

// ParseSkillLevel accepts the three recognized levels case-insensitively.
func ParseSkillLevel(s string) (SkillLevel, error) {
	switch SkillLevel(strings.ToLower(strings.TrimSpace(s))) {
	case Beginner:
		return Beginner, nil
	case Intermediate:
		return Intermediate, nil
	case Advanced:
		return Advanced, nil
	}
	return "", fmt.Errorf("unknown skill level %q", s)
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Profile struct {
	SkillLevel    SkillLevel `json:"skill_level"`
	DetectedLevel SkillLevel `json:"detected_level,omitempty"`
	Domain        string     `json:"domain"`
}

type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	TS      time.Time `json:"ts"`
}

type ArtifactKind string

const (
	KindSketch    ArtifactKind = "sketch"
	KindPlan      ArtifactKind = "plan"
	KindElevation ArtifactKind = "elevation"
	Kind3D        ArtifactKind = "3d"
	KindPhoto     ArtifactKind = "photo"
	KindOther     ArtifactKind = "other"
)

// Artifact is an uploaded image. Analysis is attached lazily and never replaced.
type Artifact struct {
	ID         string           `json:"id"`
	Kind       ArtifactKind     `json:"kind"`
	StorageRef string           `json:"storage_ref"`
	Analysis   *vision.Analysis `json:"analysis,omitempty"`
}

// State is a point-in-time copy of a session. Mutating it does not affect the store.
type State struct {
	ID        string     `json:"id"`
	Brief     string     `json:"brief"`
	Profile   Profile    `json:"profile"`
	Messages  []Message  `json:"messages"`
	Artifacts []Artifact `json:"artifacts"`
	CreatedAt time.Time  `json:"created_at"`
}

// UserTurns counts user messages.
func (s State) UserTurns() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// LastUserMessage returns the most recent user utterance, or "".
func (s State) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// RecentMessages returns up to n trailing messages.
func (s State) RecentMessages(n int) []Message {
	if n <= 0 || len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// Analyses returns the vision analyses attached so far, in upload order.
func (s State) Analyses() []vision.Analysis {
	var out []vision.Analysis
	for _, a := range s.Artifacts {
		if a.Analysis != nil {
			out = append(out, *a.Analysis)
		}
	}
	return out
}

func (s State) clone() State {
	c := s
	c.Messages = append([]Message(nil), s.Messages...)
	c.Artifacts = make([]Artifact, len(s.Artifacts))
	for i, a := range s.Artifacts {
		c.Artifacts[i] = a
		if a.Analysis != nil {
			an := *a.Analysis
			c.Artifacts[i].Analysis = &an
		}
	}
	return c
}
