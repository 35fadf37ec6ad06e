package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/mentor/internal/storage"
	"github.com/kalambet/mentor/internal/vision"
)

// Persister defines the storage operations the Store needs.
// Implemented by storage.Store.
type Persister interface {
	CreateSession(s storage.Session) error
	UpdateSession(s storage.Session) error
	GetSession(id string) (storage.Session, error)
	AppendMessage(m storage.Message) error
	ListMessages(sessionID string) ([]storage.Message, error)
	SaveArtifact(a storage.Artifact) error
	SetArtifactAnalysis(id, analysisJSON string) error
	ListArtifacts(sessionID string) ([]storage.Artifact, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type EventKind string

const (
	EventMessage EventKind = "message"
	EventBrief   EventKind = "brief"
)

// Event describes one mutation. Observers receive it after the store has applied it.
type Event struct {
	Kind      EventKind
	SessionID string
	Message   *Message
	Update    *BriefUpdate
}

type Observer func(Event)

// BriefUpdate groups the mutable, non-message parts of a session. Nil fields
// are left unchanged.
type BriefUpdate struct {
	Brief     *string
	Profile   *Profile
	Artifacts []Artifact
	// Analyses attaches vision results to already uploaded artifacts by id.
	Analyses map[string]vision.Analysis
}

type entry struct {
	mu    sync.Mutex
	state State
}

// Store owns session state. All mutation goes through AppendMessage and SetBrief.
type Store struct {
	db    Persister
	clock Clock

	mu        sync.RWMutex
	sessions  map[string]*entry
	observers []Observer
}

// NewStore creates a Store. db may be nil for a purely in-memory store.
func NewStore(db Persister) *Store {
	return NewStoreWithClock(db, realClock{})
}

// NewStoreWithClock creates a Store with a custom clock (for testing).
func NewStoreWithClock(db Persister, clock Clock) *Store {
	return &Store{db: db, clock: clock, sessions: make(map[string]*entry)}
}

// Observe registers fn to receive every subsequent mutation.
func (s *Store) Observe(fn Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Create registers a new session with the given brief and profile.
func (s *Store) Create(brief string, profile Profile) (State, error) {
	if profile.Domain == "" {
		profile.Domain = "architecture"
	}
	st := State{
		ID:        uuid.New().String(),
		Brief:     brief,
		Profile:   profile,
		CreatedAt: s.clock.Now().UTC(),
	}
	if s.db != nil {
		if err := s.db.CreateSession(toStorageSession(st)); err != nil {
			return State{}, fmt.Errorf("persisting session: %w", err)
		}
	}

	s.mu.Lock()
	s.sessions[st.ID] = &entry{state: st}
	s.mu.Unlock()

	return st.clone(), nil
}

// Get returns a snapshot of the session, loading it from storage if needed.
func (s *Store) Get(id string) (State, error) {
	e, err := s.entry(id)
	if err != nil {
		return State{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone(), nil
}

// AppendMessage appends a message with a timestamp strictly after the previous one.
func (s *Store) AppendMessage(id string, role Role, content string) (Message, error) {
	e, err := s.entry(id)
	if err != nil {
		return Message{}, err
	}

	e.mu.Lock()
	ts := s.clock.Now().UTC().Truncate(time.Microsecond)
	seq := len(e.state.Messages)
	if seq > 0 {
		last := e.state.Messages[seq-1].TS
		if !ts.After(last) {
			ts = last.Add(time.Microsecond)
		}
		if !ts.After(last) {
			e.mu.Unlock()
			panic(&StateInvariantError{SessionID: id, Detail: "message timestamp not monotonic"})
		}
	}
	msg := Message{Role: role, Content: content, TS: ts}
	if s.db != nil {
		err := s.db.AppendMessage(storage.Message{SessionID: id, Seq: seq, Role: string(role), Content: content, TS: ts})
		if err != nil {
			e.mu.Unlock()
			return Message{}, fmt.Errorf("persisting message: %w", err)
		}
	}
	e.state.Messages = append(e.state.Messages, msg)
	e.mu.Unlock()

	s.notify(Event{Kind: EventMessage, SessionID: id, Message: &msg})
	return msg, nil
}

// SetBrief applies u to the session. Artifacts are append-only and an
// artifact's analysis, once attached, is never replaced.
func (s *Store) SetBrief(id string, u BriefUpdate) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	next := e.state.clone()
	if u.Brief != nil {
		next.Brief = *u.Brief
	}
	if u.Profile != nil {
		p := *u.Profile
		if p.Domain == "" {
			p.Domain = next.Profile.Domain
		}
		next.Profile = p
	}
	for _, a := range u.Artifacts {
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		next.Artifacts = append(next.Artifacts, a)
	}
	var attached []string
	for artifactID, an := range u.Analyses {
		for i := range next.Artifacts {
			if next.Artifacts[i].ID == artifactID && next.Artifacts[i].Analysis == nil {
				next.Artifacts[i].Analysis = &an
				attached = append(attached, artifactID)
			}
		}
	}

	if s.db != nil {
		if err := s.persistBrief(id, e.state, next, u, attached); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	e.state = next
	e.mu.Unlock()

	s.notify(Event{Kind: EventBrief, SessionID: id, Update: &u})
	return nil
}

func (s *Store) persistBrief(id string, prev, next State, u BriefUpdate, attached []string) error {
	if u.Brief != nil || u.Profile != nil {
		if err := s.db.UpdateSession(toStorageSession(next)); err != nil {
			return fmt.Errorf("persisting session update: %w", err)
		}
	}
	for _, a := range next.Artifacts[len(prev.Artifacts):] {
		row := storage.Artifact{ID: a.ID, SessionID: id, Kind: string(a.Kind), StorageRef: a.StorageRef}
		if a.Analysis != nil {
			b, err := json.Marshal(a.Analysis)
			if err != nil {
				return fmt.Errorf("encoding analysis: %w", err)
			}
			row.AnalysisJSON = string(b)
		}
		if err := s.db.SaveArtifact(row); err != nil {
			return fmt.Errorf("persisting artifact: %w", err)
		}
	}
	for _, artifactID := range attached {
		isNew := true
		for _, a := range prev.Artifacts {
			if a.ID == artifactID {
				isNew = false
			}
		}
		if isNew {
			continue
		}
		b, err := json.Marshal(u.Analyses[artifactID])
		if err != nil {
			return fmt.Errorf("encoding analysis: %w", err)
		}
		if err := s.db.SetArtifactAnalysis(artifactID, string(b)); err != nil {
			return fmt.Errorf("persisting analysis: %w", err)
		}
	}
	return nil
}

func (s *Store) entry(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return e, nil
	}
	if s.db == nil {
		return nil, ErrNotFound
	}

	st, err := s.load(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Double-check after acquiring write lock.
	if e, ok := s.sessions[id]; ok {
		return e, nil
	}
	e = &entry{state: st}
	s.sessions[id] = e
	return e, nil
}

func (s *Store) load(id string) (State, error) {
	row, err := s.db.GetSession(id)
	if errors.Is(err, storage.ErrNotFound) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("loading session: %w", err)
	}
	st := State{
		ID:    row.ID,
		Brief: row.Brief,
		Profile: Profile{
			SkillLevel:    SkillLevel(row.SkillLevel),
			DetectedLevel: SkillLevel(row.DetectedLevel),
			Domain:        row.Domain,
		},
		CreatedAt: row.CreatedAt,
	}

	msgs, err := s.db.ListMessages(id)
	if err != nil {
		return State{}, fmt.Errorf("loading messages: %w", err)
	}
	for _, m := range msgs {
		st.Messages = append(st.Messages, Message{Role: Role(m.Role), Content: m.Content, TS: m.TS})
	}

	arts, err := s.db.ListArtifacts(id)
	if err != nil {
		return State{}, fmt.Errorf("loading artifacts: %w", err)
	}
	for _, a := range arts {
		art := Artifact{ID: a.ID, Kind: ArtifactKind(a.Kind), StorageRef: a.StorageRef}
		if a.AnalysisJSON != "" {
			var an vision.Analysis
			if err := json.Unmarshal([]byte(a.AnalysisJSON), &an); err != nil {
				slog.Warn("session: dropping unreadable artifact analysis", "artifact", a.ID, "error", err)
			} else {
				art.Analysis = &an
			}
		}
		st.Artifacts = append(st.Artifacts, art)
	}
	return st, nil
}

func (s *Store) notify(ev Event) {
	s.mu.RLock()
	obs := append([]Observer(nil), s.observers...)
	s.mu.RUnlock()
	for _, fn := range obs {
		fn(ev)
	}
}

func toStorageSession(st State) storage.Session {
	return storage.Session{
		ID:            st.ID,
		Brief:         st.Brief,
		SkillLevel:    string(st.Profile.SkillLevel),
		DetectedLevel: string(st.Profile.DetectedLevel),
		Domain:        st.Profile.Domain,
		CreatedAt:     st.CreatedAt,
	}
}
