package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/gramsetu/citizen-assist-backend/internal/domain"
)

func TestActiveState_NoneYet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := ActiveState(ctx, db, "911234567890"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ActiveState on empty table: err = %v, want ErrNotFound", err)
	}
}

func TestCreateInitialState_ThenActive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	created, err := CreateInitialState(ctx, db, "911234567890")
	if err != nil {
		t.Fatalf("CreateInitialState: %v", err)
	}
	if created.State != domain.StateInitial || !created.Active {
		t.Fatalf("unexpected initial row: %+v", created)
	}

	got, err := ActiveState(ctx, db, "911234567890")
	if err != nil {
		t.Fatalf("ActiveState: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ActiveState returned %q, want %q", got.ID, created.ID)
	}
}

func TestCommitTransition_AppendOnlyHistory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	const citizen = "911234567890"

	initial, err := CreateInitialState(ctx, db, citizen)
	if err != nil {
		t.Fatalf("CreateInitialState: %v", err)
	}

	next, err := CommitTransition(ctx, db, initial, domain.StateAwaitingName, "", "welcome")
	if err != nil {
		t.Fatalf("CommitTransition: %v", err)
	}
	if next.State != domain.StateAwaitingName || !next.Active {
		t.Fatalf("unexpected next state row: %+v", next)
	}

	// Prior row must now be inactive and stamped with the outcome.
	history, err := ListStates(ctx, db, citizen)
	if err != nil {
		t.Fatalf("ListStates: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	var prior domain.RegistrationState
	for _, s := range history {
		if s.ID == initial.ID {
			prior = s
		}
	}
	if prior.Active {
		t.Error("prior state still active after commit")
	}
	if prior.LastOutcome != "welcome" {
		t.Errorf("prior LastOutcome = %q, want welcome", prior.LastOutcome)
	}

	// At most one active row.
	active, err := ActiveState(ctx, db, citizen)
	if err != nil {
		t.Fatalf("ActiveState: %v", err)
	}
	if active.ID != next.ID {
		t.Errorf("active = %q, want %q", active.ID, next.ID)
	}
}

func TestCommitTransition_ConflictOnStaleRead(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	const citizen = "911234567890"

	initial, err := CreateInitialState(ctx, db, citizen)
	if err != nil {
		t.Fatalf("CreateInitialState: %v", err)
	}

	// First commit wins.
	if _, err := CommitTransition(ctx, db, initial, domain.StateAwaitingName, "", "welcome"); err != nil {
		t.Fatalf("first CommitTransition: %v", err)
	}

	// Second commit based on the same (now inactive) row must fail and leave
	// the store untouched.
	if _, err := CommitTransition(ctx, db, initial, domain.StateAwaitingName, "", "welcome"); !errors.Is(err, ErrActiveStateConflict) {
		t.Fatalf("stale CommitTransition err = %v, want ErrActiveStateConflict", err)
	}

	history, err := ListStates(ctx, db, citizen)
	if err != nil {
		t.Fatalf("ListStates: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d after failed commit, want 2", len(history))
	}
}

func TestIncrementAttempt(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	s, err := CreateInitialState(ctx, db, "911234567890")
	if err != nil {
		t.Fatalf("CreateInitialState: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := IncrementAttempt(ctx, db, s.ID, "needs_clarification"); err != nil {
			t.Fatalf("IncrementAttempt #%d: %v", i+1, err)
		}
	}

	got, err := ActiveState(ctx, db, "911234567890")
	if err != nil {
		t.Fatalf("ActiveState: %v", err)
	}
	if got.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", got.Attempts)
	}
	if got.LastOutcome != "needs_clarification" {
		t.Errorf("LastOutcome = %q", got.LastOutcome)
	}

	// Inactive rows must not accept attempts.
	if _, err := CommitTransition(ctx, db, got, domain.StateAwaitingName, "", "ok"); err != nil {
		t.Fatalf("CommitTransition: %v", err)
	}
	if err := IncrementAttempt(ctx, db, got.ID, "late"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("IncrementAttempt on inactive row err = %v, want ErrNotFound", err)
	}
}
