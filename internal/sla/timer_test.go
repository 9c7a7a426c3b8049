package sla

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testPolicy(budgetSeconds, warningPercent int) Policy {
	return Policy{
		ID:                      uuid.New(),
		TenantID:                uuid.New(),
		ResponseSeconds:         budgetSeconds,
		WarningThresholdPercent: warningPercent,
	}
}

func TestStartTimer(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	timer := StartTimer(uuid.New(), uuid.New(), testPolicy(3600, 80), t0)

	if timer.State() != StateRunning {
		t.Fatalf("expected running, got %s", timer.State())
	}
	if !timer.DueAt.Equal(t0.Add(3600 * time.Second)) {
		t.Fatalf("expected due_at = start + budget, got %s", timer.DueAt)
	}
}

func TestPauseResumePreservesRemainingBudget(t *testing.T) {
	// budget=3600s, started at T, paused at T+600s, resumed at T+6600s:
	// due_at must land at T+9600s, not T+6600+3600.
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	timer := StartTimer(uuid.New(), uuid.New(), testPolicy(3600, 80), t0)

	if err := timer.Pause(t0.Add(600 * time.Second)); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if timer.State() != StatePaused {
		t.Fatalf("expected paused, got %s", timer.State())
	}
	if got := timer.Remaining(t0.Add(5000 * time.Second)); got != 3000*time.Second {
		t.Fatalf("paused remainder must freeze at 3000s, got %s", got)
	}

	if err := timer.Resume(t0.Add(6600 * time.Second)); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	want := t0.Add(9600 * time.Second)
	if !timer.DueAt.Equal(want) {
		t.Fatalf("expected due_at %s, got %s", want, timer.DueAt)
	}
	if timer.State() != StateRunning {
		t.Fatalf("expected running after resume, got %s", timer.State())
	}
}

func TestDueAtMonotonicAcrossCycles(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	timer := StartTimer(uuid.New(), uuid.New(), testPolicy(3600, 80), t0)

	prevDue := timer.DueAt
	at := t0
	for i := 0; i < 5; i++ {
		at = at.Add(2 * time.Minute)
		if err := timer.Pause(at); err != nil {
			t.Fatalf("cycle %d pause: %v", i, err)
		}
		at = at.Add(10 * time.Minute)
		if err := timer.Resume(at); err != nil {
			t.Fatalf("cycle %d resume: %v", i, err)
		}
		if timer.DueAt.Before(prevDue) {
			t.Fatalf("cycle %d: due_at went backwards: %s < %s", i, timer.DueAt, prevDue)
		}
		prevDue = timer.DueAt
	}
}

func TestCheckBreach(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	timer := StartTimer(uuid.New(), uuid.New(), testPolicy(600, 80), t0)

	if timer.CheckBreach(t0.Add(599 * time.Second)) {
		t.Fatal("timer breached before due")
	}
	if !timer.CheckBreach(t0.Add(600 * time.Second)) {
		t.Fatal("timer did not breach at due")
	}
	if timer.State() != StateBreached {
		t.Fatalf("expected breached, got %s", timer.State())
	}
	firstBreach := *timer.BreachedAt

	// Terminal: a second check never re-breaches or moves the timestamp.
	if timer.CheckBreach(t0.Add(700 * time.Second)) {
		t.Fatal("breach transition happened twice")
	}
	if !timer.BreachedAt.Equal(firstBreach) {
		t.Fatal("breached_at mutated after being set")
	}
	if err := timer.Pause(t0.Add(700 * time.Second)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("breached timer accepted pause: %v", err)
	}
	if err := timer.Complete(t0.Add(700 * time.Second)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("breached timer accepted complete: %v", err)
	}
}

func TestComplete(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("running", func(t *testing.T) {
		timer := StartTimer(uuid.New(), uuid.New(), testPolicy(600, 80), t0)
		if err := timer.Complete(t0.Add(time.Minute)); err != nil {
			t.Fatalf("complete failed: %v", err)
		}
		if timer.State() != StateCompleted {
			t.Fatalf("expected completed, got %s", timer.State())
		}
	})

	t.Run("paused", func(t *testing.T) {
		timer := StartTimer(uuid.New(), uuid.New(), testPolicy(600, 80), t0)
		if err := timer.Pause(t0.Add(time.Minute)); err != nil {
			t.Fatalf("pause failed: %v", err)
		}
		if err := timer.Complete(t0.Add(2 * time.Minute)); err != nil {
			t.Fatalf("complete failed: %v", err)
		}
	})

	t.Run("completed is terminal", func(t *testing.T) {
		timer := StartTimer(uuid.New(), uuid.New(), testPolicy(600, 80), t0)
		if err := timer.Complete(t0.Add(time.Minute)); err != nil {
			t.Fatalf("complete failed: %v", err)
		}
		if err := timer.Resume(t0.Add(2 * time.Minute)); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("completed timer accepted resume: %v", err)
		}
	})
}

func TestAtRisk(t *testing.T) {
	// threshold=80%, budget=1000s: elapsed 850s is at risk, 799s is not.
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	timer := StartTimer(uuid.New(), uuid.New(), testPolicy(1000, 80), t0)

	if timer.AtRisk(t0.Add(799 * time.Second)) {
		t.Fatal("799s elapsed of 1000s budget must not be at risk at 80%")
	}
	if !timer.AtRisk(t0.Add(800 * time.Second)) {
		t.Fatal("800s elapsed of 1000s budget must be at risk at 80%")
	}
	if !timer.AtRisk(t0.Add(850 * time.Second)) {
		t.Fatal("850s elapsed of 1000s budget must be at risk at 80%")
	}

	// Derived state only while running.
	if err := timer.Pause(t0.Add(850 * time.Second)); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if timer.AtRisk(t0.Add(900 * time.Second)) {
		t.Fatal("paused timer must not report at risk")
	}
}
