package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Session struct {
	ID            string
	Brief         string
	SkillLevel    string
	DetectedLevel string
	Domain        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Message struct {
	SessionID string
	Seq       int
	Role      string
	Content   string
	TS        time.Time // stored with microsecond precision
}

type Artifact struct {
	ID           string
	SessionID    string
	Kind         string
	StorageRef   string
	AnalysisJSON string // empty until the vision port has described it
	CreatedAt    time.Time
}

// InteractionRow is an opaque JSON-encoded interaction record keyed by session and turn.
type InteractionRow struct {
	ID         string
	SessionID  string
	Seq        int
	CreatedAt  time.Time
	RecordJSON string
}
