//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/freeeve/enclaves/internal/model"
	"github.com/freeeve/enclaves/internal/testutil"
)

var testDB *sql.DB

func setup(t *testing.T) {
	t.Helper()
	if testDB == nil {
		testDB = testutil.SetupDB(t)
	}
	testutil.CleanupDB(t, testDB)
}

var testSetup = json.RawMessage(`{"territories":[{"id":1,"owner":1,"forces":10},{"id":2,"owner":2,"forces":10}]}`)

func createTestSession(t *testing.T, repo *SessionRepo, user string) *model.Session {
	t.Helper()
	s, err := repo.Create(context.Background(), user, "Skirmish "+user, "30s", "run-"+user, testSetup)
	if err != nil {
		t.Fatalf("create test session: %v", err)
	}
	return s
}

// --- SessionRepo Tests ---

func TestSessionCreateAndFind(t *testing.T) {
	setup(t)
	repo := NewSessionRepo(testDB)

	s := createTestSession(t, repo, "alice")
	if s.ID == "" {
		t.Fatal("expected non-empty ID")
	}
	if s.Status != model.StatusActive {
		t.Fatalf("expected active, got %s", s.Status)
	}

	found, err := repo.FindByID(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil || found.RunID != "run-alice" || found.TurnDuration != "30s" {
		t.Fatalf("unexpected session %+v", found)
	}
	var setupDoc map[string]any
	if err := json.Unmarshal(found.Setup, &setupDoc); err != nil {
		t.Fatalf("setup should be valid JSON: %v", err)
	}
}

func TestSessionFindMissing(t *testing.T) {
	setup(t)
	repo := NewSessionRepo(testDB)

	s, err := repo.FindByID(context.Background(), "00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if s != nil {
		t.Fatal("expected nil for missing session")
	}
}

func TestSessionListByUser(t *testing.T) {
	setup(t)
	repo := NewSessionRepo(testDB)

	createTestSession(t, repo, "alice")
	createTestSession(t, repo, "bob")

	list, err := repo.ListByUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].UserID != "alice" {
		t.Fatalf("expected alice's session only, got %+v", list)
	}
}

func TestSessionFinishAndRestart(t *testing.T) {
	setup(t)
	repo := NewSessionRepo(testDB)
	ctx := context.Background()

	s := createTestSession(t, repo, "carol")
	if err := repo.SetFinished(ctx, s.ID, model.StatusFinished, "victory"); err != nil {
		t.Fatalf("set finished: %v", err)
	}
	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active sessions, got %d", len(active))
	}

	found, _ := repo.FindByID(ctx, s.ID)
	if found.Outcome != "victory" || found.FinishedAt == nil {
		t.Fatalf("expected finished victory, got %+v", found)
	}

	if err := repo.SetRun(ctx, s.ID, "run-2"); err != nil {
		t.Fatalf("set run: %v", err)
	}
	found, _ = repo.FindByID(ctx, s.ID)
	if !found.Active() || found.RunID != "run-2" || found.FinishedAt != nil {
		t.Fatalf("expected a fresh active run, got %+v", found)
	}
}

func TestSessionSetRunMissing(t *testing.T) {
	setup(t)
	repo := NewSessionRepo(testDB)
	if err := repo.SetRun(context.Background(), "00000000-0000-0000-0000-000000000000", "x"); err == nil {
		t.Fatal("expected error for missing session")
	}
}

// --- TurnRepo Tests ---

func TestTurnSaveAndList(t *testing.T) {
	setup(t)
	sessions := NewSessionRepo(testDB)
	turns := NewTurnRepo(testDB)
	ctx := context.Background()

	s := createTestSession(t, sessions, "dave")
	for i := 1; i <= 3; i++ {
		turn := &model.Turn{
			SessionID:   s.ID,
			RunID:       s.RunID,
			Number:      i,
			StateBefore: testSetup,
			StateAfter:  testSetup,
			Outcome:     "ongoing",
		}
		if i == 2 {
			turn.Events = json.RawMessage(`[{"kind":"reinforced","territory":1,"amount":2}]`)
		}
		if err := turns.SaveTurn(ctx, turn); err != nil {
			t.Fatalf("save turn %d: %v", i, err)
		}
		if turn.ID == "" || turn.ResolvedAt.IsZero() {
			t.Fatalf("expected ID and timestamp filled, got %+v", turn)
		}
	}

	list, err := turns.ListTurns(ctx, s.ID)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(list))
	}
	for i, turn := range list {
		if turn.Number != i+1 {
			t.Errorf("turn %d out of order: %d", i, turn.Number)
		}
	}
	if len(list[1].Events) == 0 {
		t.Error("expected events on turn 2")
	}
	if len(list[0].Events) != 0 {
		t.Errorf("expected no events on turn 1, got %s", list[0].Events)
	}
}
