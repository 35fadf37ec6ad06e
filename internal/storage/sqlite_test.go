package storage

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies that the migrations create the expected indexes.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_artifacts_session", "idx_interaction_records_session", "idx_knowledge_chunks_citation"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)

	want := Session{
		ID:         "sess-1",
		Brief:      "Design a community center for 200 people in a Nordic country",
		SkillLevel: "beginner",
		Domain:     "architecture",
	}
	if err := s.CreateSession(want); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Brief != want.Brief || got.SkillLevel != want.SkillLevel || got.Domain != want.Domain {
		t.Errorf("GetSession = %+v, want %+v", got, want)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not populated")
	}

	got.SkillLevel = "intermediate"
	got.DetectedLevel = "intermediate"
	if err := s.UpdateSession(got); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	updated, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if updated.SkillLevel != "intermediate" || updated.DetectedLevel != "intermediate" {
		t.Errorf("profile not updated: %+v", updated)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetSession("missing"); err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if err := s.UpdateSession(Session{ID: "missing"}); err != ErrNotFound {
		t.Errorf("UpdateSession error = %v, want ErrNotFound", err)
	}
}

func TestMessagesOrderedBySeq(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateSession(Session{ID: "s", SkillLevel: "beginner", Domain: "architecture"}); err != nil {
		t.Fatal(err)
	}

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, role := range []string{"user", "assistant", "user"} {
		m := Message{SessionID: "s", Seq: i, Role: role, Content: role, TS: base.Add(time.Duration(i) * time.Microsecond)}
		if err := s.AppendMessage(m); err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
	}

	msgs, err := s.ListMessages("s")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if !msgs[i].TS.After(msgs[i-1].TS) {
			t.Errorf("message %d ts %v not after %v", i, msgs[i].TS, msgs[i-1].TS)
		}
	}
	if !msgs[0].TS.Equal(base) {
		t.Errorf("ts = %v, want %v", msgs[0].TS, base)
	}

	// Duplicate seq is rejected by the primary key.
	if err := s.AppendMessage(Message{SessionID: "s", Seq: 0, Role: "user", Content: "dup", TS: base}); err == nil {
		t.Error("expected error for duplicate seq")
	}
}

func TestArtifacts(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateSession(Session{ID: "s", SkillLevel: "beginner", Domain: "architecture"}); err != nil {
		t.Fatal(err)
	}

	if err := s.SaveArtifact(Artifact{ID: "a1", SessionID: "s", Kind: "sketch", StorageRef: "/tmp/a1.png"}); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}
	if err := s.SetArtifactAnalysis("a1", `{"confidence":0.8}`); err != nil {
		t.Fatalf("SetArtifactAnalysis: %v", err)
	}
	if err := s.SetArtifactAnalysis("missing", "{}"); err != ErrNotFound {
		t.Errorf("SetArtifactAnalysis(missing) = %v, want ErrNotFound", err)
	}

	arts, err := s.ListArtifacts("s")
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(arts) != 1 || arts[0].AnalysisJSON != `{"confidence":0.8}` || arts[0].Kind != "sketch" {
		t.Errorf("ListArtifacts = %+v", arts)
	}
}

func TestInteractionRows(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		r := InteractionRow{ID: "i" + string(rune('a'+i)), SessionID: "s", Seq: i, RecordJSON: `{"n":1}`}
		if err := s.SaveInteractionRow(r); err != nil {
			t.Fatalf("SaveInteractionRow: %v", err)
		}
	}
	rows, err := s.ListInteractionRows("s")
	if err != nil {
		t.Fatalf("ListInteractionRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i, r := range rows {
		if r.Seq != i {
			t.Errorf("rows[%d].Seq = %d", i, r.Seq)
		}
	}

	other, err := s.ListInteractionRows("other")
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("expected no rows for other session, got %d", len(other))
	}
}

// TestSubSecondTimestampsRoundTrip stores times whose fractional part ends
// in zeros; the driver hands those back trimmed.
func TestSubSecondTimestampsRoundTrip(t *testing.T) {
	stamps := []time.Time{
		time.Date(2026, 10, 15, 10, 15, 54, 412584160, time.UTC),
		time.Date(2026, 10, 15, 10, 15, 54, 412584000, time.UTC),
		time.Date(2026, 10, 15, 10, 15, 54, 0, time.UTC),
	}

	for i, ts := range stamps {
		s := openTestStore(t)
		if err := s.CreateSession(Session{ID: "s", SkillLevel: "beginner", Domain: "architecture", CreatedAt: ts}); err != nil {
			t.Fatalf("[%d] CreateSession: %v", i, err)
		}
		if err := s.SaveArtifact(Artifact{ID: "a1", SessionID: "s", Kind: "sketch", StorageRef: "/tmp/a1.png", CreatedAt: ts}); err != nil {
			t.Fatalf("[%d] SaveArtifact: %v", i, err)
		}
		if err := s.SaveInteractionRow(InteractionRow{ID: "i1", SessionID: "s", Seq: 1, CreatedAt: ts, RecordJSON: "{}"}); err != nil {
			t.Fatalf("[%d] SaveInteractionRow: %v", i, err)
		}

		sess, err := s.GetSession("s")
		if err != nil {
			t.Fatalf("[%d] GetSession: %v", i, err)
		}
		if !sess.CreatedAt.Equal(ts) {
			t.Errorf("[%d] session CreatedAt = %v, want %v", i, sess.CreatedAt, ts)
		}

		arts, err := s.ListArtifacts("s")
		if err != nil {
			t.Fatalf("[%d] ListArtifacts: %v", i, err)
		}
		if len(arts) != 1 || !arts[0].CreatedAt.Equal(ts) {
			t.Errorf("[%d] ListArtifacts = %+v, want CreatedAt %v", i, arts, ts)
		}

		rows, err := s.ListInteractionRows("s")
		if err != nil {
			t.Fatalf("[%d] ListInteractionRows: %v", i, err)
		}
		if len(rows) != 1 || !rows[0].CreatedAt.Equal(ts) {
			t.Errorf("[%d] ListInteractionRows = %+v, want CreatedAt %v", i, rows, ts)
		}
	}
}

func TestListSessionIDs(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC()
	for i, id := range []string{"old", "new"} {
		sess := Session{ID: id, SkillLevel: "beginner", Domain: "architecture", CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := s.CreateSession(sess); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := s.ListSessionIDs(10)
	if err != nil {
		t.Fatalf("ListSessionIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "new" {
		t.Errorf("ids = %v, want [new old]", ids)
	}
}
