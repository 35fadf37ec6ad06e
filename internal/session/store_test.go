package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/mentor/internal/storage"
	"github.com/kalambet/mentor/internal/vision"
)

type frozenClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *frozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func openTestDB(t *testing.T) *storage.Store {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAppendMessage_StrictlyMonotonic(t *testing.T) {
	// A frozen clock forces every append to collide on the same instant.
	clock := &frozenClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	s := NewStoreWithClock(nil, clock)

	st, err := s.Create("Design a library", Profile{SkillLevel: Beginner})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := s.AppendMessage(st.ID, RoleUser, "hello"); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	got, err := s.Get(st.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Messages) != 5 {
		t.Fatalf("got %d messages, want 5", len(got.Messages))
	}
	for i := 1; i < len(got.Messages); i++ {
		if !got.Messages[i].TS.After(got.Messages[i-1].TS) {
			t.Errorf("message %d ts %v not after %v", i, got.Messages[i].TS, got.Messages[i-1].TS)
		}
	}
}

func TestMessagesRoundTripThroughStorage(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db)

	st, err := s.Create("Design a community center", Profile{SkillLevel: Intermediate})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var sent []Message
	for _, c := range []struct {
		role Role
		text string
	}{{RoleUser, "first"}, {RoleAssistant, "What drives it?"}, {RoleUser, "second"}} {
		m, err := s.AppendMessage(st.ID, c.role, c.text)
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		sent = append(sent, m)
	}

	// A fresh store must rebuild the session from storage.
	reloaded, err := NewStore(db).Get(st.ID)
	if err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	if len(reloaded.Messages) != len(sent) {
		t.Fatalf("got %d messages, want %d", len(reloaded.Messages), len(sent))
	}
	for i, m := range reloaded.Messages {
		if m.Role != sent[i].Role || m.Content != sent[i].Content || !m.TS.Equal(sent[i].TS) {
			t.Errorf("message %d = %+v, want %+v", i, m, sent[i])
		}
	}
	if reloaded.Profile.SkillLevel != Intermediate || reloaded.Profile.Domain != "architecture" {
		t.Errorf("profile = %+v", reloaded.Profile)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := NewStore(openTestDB(t))
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := NewStore(nil).AppendMessage("nope", RoleUser, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSetBrief_ArtifactsAndAnalysis(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db)
	st, err := s.Create("", Profile{SkillLevel: Beginner})
	if err != nil {
		t.Fatal(err)
	}

	brief := "Adaptive reuse of a warehouse"
	if err := s.SetBrief(st.ID, BriefUpdate{
		Brief:     &brief,
		Artifacts: []Artifact{{ID: "a1", Kind: KindSketch, StorageRef: "/tmp/a1.png"}},
	}); err != nil {
		t.Fatalf("SetBrief: %v", err)
	}

	first := vision.Analysis{ChatSummary: "a plan sketch", Confidence: 0.7}
	if err := s.SetBrief(st.ID, BriefUpdate{Analyses: map[string]vision.Analysis{"a1": first}}); err != nil {
		t.Fatalf("SetBrief analyses: %v", err)
	}
	// A second analysis must not replace the first.
	second := vision.Analysis{ChatSummary: "other", Confidence: 0.1}
	if err := s.SetBrief(st.ID, BriefUpdate{Analyses: map[string]vision.Analysis{"a1": second}}); err != nil {
		t.Fatalf("SetBrief analyses: %v", err)
	}

	got, err := NewStore(db).Get(st.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Brief != brief {
		t.Errorf("Brief = %q, want %q", got.Brief, brief)
	}
	if len(got.Artifacts) != 1 || got.Artifacts[0].Analysis == nil {
		t.Fatalf("artifacts = %+v", got.Artifacts)
	}
	if got.Artifacts[0].Analysis.ChatSummary != "a plan sketch" {
		t.Errorf("analysis = %+v, want first analysis kept", got.Artifacts[0].Analysis)
	}
	if n := len(got.Analyses()); n != 1 {
		t.Errorf("Analyses() len = %d, want 1", n)
	}
}

func TestObserversSeeEveryMutation(t *testing.T) {
	s := NewStore(nil)
	var events []Event
	s.Observe(func(ev Event) { events = append(events, ev) })

	st, err := s.Create("brief", Profile{SkillLevel: Advanced})
	if err != nil {
		t.Fatal(err)
	}
	s.AppendMessage(st.ID, RoleUser, "hi")
	p := Profile{SkillLevel: Intermediate}
	s.SetBrief(st.ID, BriefUpdate{Profile: &p})

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != EventMessage || events[0].Message.Content != "hi" {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].Kind != EventBrief || events[1].Update.Profile.SkillLevel != Intermediate {
		t.Errorf("events[1] = %+v", events[1])
	}

	got, _ := s.Get(st.ID)
	if got.Profile.Domain != "architecture" {
		t.Errorf("domain = %q, want preserved default", got.Profile.Domain)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewStore(nil)
	st, _ := s.Create("brief", Profile{SkillLevel: Beginner})
	s.AppendMessage(st.ID, RoleUser, "hi")

	snap, _ := s.Get(st.ID)
	snap.Messages[0].Content = "mutated"

	again, _ := s.Get(st.ID)
	if again.Messages[0].Content != "hi" {
		t.Errorf("snapshot mutation leaked into store: %q", again.Messages[0].Content)
	}
}

func TestStateHelpers(t *testing.T) {
	st := State{Messages: []Message{
		{Role: RoleUser, Content: "a"},
		{Role: RoleAssistant, Content: "b"},
		{Role: RoleUser, Content: "c"},
	}}
	if st.UserTurns() != 2 {
		t.Errorf("UserTurns = %d, want 2", st.UserTurns())
	}
	if st.LastUserMessage() != "c" {
		t.Errorf("LastUserMessage = %q", st.LastUserMessage())
	}
	if got := st.RecentMessages(2); len(got) != 2 || got[0].Content != "b" {
		t.Errorf("RecentMessages = %+v", got)
	}
}

func TestParseSkillLevel(t *testing.T) {
	if lvl, err := ParseSkillLevel(" Advanced "); err != nil || lvl != Advanced {
		t.Errorf("ParseSkillLevel = %q, %v", lvl, err)
	}
	if _, err := ParseSkillLevel("expert"); err == nil {
		t.Error("expected error for unknown level")
	}
}
