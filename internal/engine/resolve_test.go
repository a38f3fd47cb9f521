package engine_test

import (
	"testing"
	"time"

	"crewboard/internal/domain"
)

func (env *testEnv) roster(t *testing.T) map[string]domain.Employee {
	t.Helper()
	items, err := env.Engine.ResolveRoster(env.Ctx, "acme")
	if err != nil {
		t.Fatalf("resolve roster: %v", err)
	}
	byID := make(map[string]domain.Employee, len(items))
	for _, emp := range items {
		byID[emp.ID] = emp
	}
	return byID
}

func TestRecurringRuleAppliesOnItsWeekday(t *testing.T) {
	env := newTestEnv(t)
	id := env.addEmployee(t, "Alice", true)
	// clock is Wednesday; rule is for Wednesday
	if _, err := env.Engine.SetRecurringRule(env.Ctx, "acme", id, 3, "WFH", "tester"); err != nil {
		t.Fatalf("set rule: %v", err)
	}
	// a Friday rule must not fire today
	if _, err := env.Engine.SetRecurringRule(env.Ctx, "acme", id, 5, "Remote", "tester"); err != nil {
		t.Fatalf("set rule: %v", err)
	}

	emp := env.roster(t)[id]
	if emp.Status != "WFH" {
		t.Fatalf("expected WFH, got %q", emp.Status)
	}
	if emp.AppliedDate == nil || *emp.AppliedDate != "2024-01-03" {
		t.Fatalf("expected applied date 2024-01-03, got %v", emp.AppliedDate)
	}
}

func TestRecurringDisabledEmployeeSkipped(t *testing.T) {
	env := newTestEnv(t)
	id := env.addEmployee(t, "Bob", false)
	if _, err := env.Engine.SetRecurringRule(env.Ctx, "acme", id, 3, "WFH", "tester"); err != nil {
		t.Fatalf("set rule: %v", err)
	}
	emp := env.roster(t)[id]
	if emp.Status != "Out" {
		t.Fatalf("rule fired despite recurring disabled: %q", emp.Status)
	}
}

func TestResolveIsIdempotentPerDay(t *testing.T) {
	env := newTestEnv(t)
	id := env.addEmployee(t, "Carol", true)
	if _, err := env.Engine.SetRecurringRule(env.Ctx, "acme", id, 3, "WFH", "tester"); err != nil {
		t.Fatalf("set rule: %v", err)
	}
	if got := env.roster(t)[id].Status; got != "WFH" {
		t.Fatalf("first resolve: %q", got)
	}
	// a manual change after resolution must survive further resolves today
	if _, err := env.Engine.SetEmployeeStatus(env.Ctx, "acme", id, "Out to Lunch", "tester"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	for i := 0; i < 3; i++ {
		if got := env.roster(t)[id].Status; got != "Out to Lunch" {
			t.Fatalf("resolve %d clobbered manual status: %q", i, got)
		}
	}
	// next day the rule no longer matches (Thursday) so nothing changes either
	*env.Clock = env.Clock.AddDate(0, 0, 1)
	if got := env.roster(t)[id].Status; got != "Out to Lunch" {
		t.Fatalf("thursday resolve changed status: %q", got)
	}
}

func TestScheduledOverrideBeatsRecurringRule(t *testing.T) {
	env := newTestEnv(t)
	id := env.addEmployee(t, "Dave", true)
	if _, err := env.Engine.SetRecurringRule(env.Ctx, "acme", id, 3, "WFH", "tester"); err != nil {
		t.Fatalf("set rule: %v", err)
	}
	o, err := env.Engine.AddOverride(env.Ctx, "acme", id, "2024-01-03", "Vacation", "tester")
	if err != nil {
		t.Fatalf("add override: %v", err)
	}

	emp := env.roster(t)[id]
	if emp.Status != "Vacation" {
		t.Fatalf("expected override to win, got %q", emp.Status)
	}
	stored, err := env.Engine.Repo.GetScheduledOverride(env.Ctx, "acme", o.ID)
	if err != nil {
		t.Fatalf("get override: %v", err)
	}
	if stored.LastAppliedDate == nil || *stored.LastAppliedDate != "2024-01-03" {
		t.Fatalf("override not stamped as applied: %v", stored.LastAppliedDate)
	}
}

func TestRetentionKeepsTodayPurgesPast(t *testing.T) {
	env := newTestEnv(t)
	id := env.addEmployee(t, "Erin", true)
	if _, err := env.Engine.AddOverride(env.Ctx, "acme", id, "2024-01-03", "Sick", "tester"); err != nil {
		t.Fatalf("add override: %v", err)
	}

	// today's override survives today's resolve
	if got := env.roster(t)[id].Status; got != "Sick" {
		t.Fatalf("expected Sick, got %q", got)
	}
	overrides, err := env.Engine.Repo.ListScheduledOverrides(env.Ctx, "acme", id)
	if err != nil {
		t.Fatalf("list overrides: %v", err)
	}
	if len(overrides) != 1 {
		t.Fatalf("today's override purged early")
	}

	// tomorrow it is purged, and the applied status is left alone
	*env.Clock = env.Clock.AddDate(0, 0, 1)
	if got := env.roster(t)[id].Status; got != "Sick" {
		t.Fatalf("purge changed status: %q", got)
	}
	overrides, err = env.Engine.Repo.ListScheduledOverrides(env.Ctx, "acme", id)
	if err != nil {
		t.Fatalf("list overrides: %v", err)
	}
	if len(overrides) != 0 {
		t.Fatalf("expired override not purged")
	}
}

func TestMissedOverrideNeverAppliesRetroactively(t *testing.T) {
	env := newTestEnv(t)
	id := env.addEmployee(t, "Frank", true)
	if _, err := env.Engine.AddOverride(env.Ctx, "acme", id, "2024-01-03", "Vacation", "tester"); err != nil {
		t.Fatalf("add override: %v", err)
	}

	// nobody resolves on the 3rd; the first resolve happens on the 5th
	*env.Clock = env.Clock.AddDate(0, 0, 2)
	emp := env.roster(t)[id]
	if emp.Status != "Out" {
		t.Fatalf("missed override applied retroactively: %q", emp.Status)
	}
	overrides, err := env.Engine.Repo.ListScheduledOverrides(env.Ctx, "acme", id)
	if err != nil {
		t.Fatalf("list overrides: %v", err)
	}
	if len(overrides) != 0 {
		t.Fatalf("missed override should have been purged")
	}
}

func TestFutureOverrideWaitsForItsDate(t *testing.T) {
	env := newTestEnv(t)
	id := env.addEmployee(t, "Grace", true)
	if _, err := env.Engine.AddOverride(env.Ctx, "acme", id, "2024-01-05", "Vacation", "tester"); err != nil {
		t.Fatalf("add override: %v", err)
	}
	if got := env.roster(t)[id].Status; got != "Out" {
		t.Fatalf("future override applied early: %q", got)
	}
	*env.Clock = time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	if got := env.roster(t)[id].Status; got != "Vacation" {
		t.Fatalf("override not applied on its date: %q", got)
	}
}

// Full week walkthrough: a Wednesday rule, a Wednesday override for one
// employee, then the morning after.
func TestWednesdayScenario(t *testing.T) {
	env := newTestEnv(t)
	alice := env.addEmployee(t, "Alice", true)
	bob := env.addEmployee(t, "Bob", true)
	for _, id := range []string{alice, bob} {
		if _, err := env.Engine.SetRecurringRule(env.Ctx, "acme", id, 3, "WFH", "tester"); err != nil {
			t.Fatalf("set rule: %v", err)
		}
	}
	if _, err := env.Engine.AddOverride(env.Ctx, "acme", bob, "2024-01-03", "Vacation", "tester"); err != nil {
		t.Fatalf("add override: %v", err)
	}

	board := env.roster(t)
	if board[alice].Status != "WFH" {
		t.Fatalf("alice: %q", board[alice].Status)
	}
	if board[bob].Status != "Vacation" {
		t.Fatalf("bob: %q", board[bob].Status)
	}

	// resolving again during the day is a no-op
	board = env.roster(t)
	if board[alice].Status != "WFH" || board[bob].Status != "Vacation" {
		t.Fatalf("second resolve changed the board: %q %q", board[alice].Status, board[bob].Status)
	}

	// Thursday: no rules match, override is purged, statuses stay
	*env.Clock = env.Clock.AddDate(0, 0, 1)
	board = env.roster(t)
	if board[alice].Status != "WFH" || board[bob].Status != "Vacation" {
		t.Fatalf("thursday board: %q %q", board[alice].Status, board[bob].Status)
	}
	overrides, err := env.Engine.Repo.ListScheduledOverrides(env.Ctx, "acme", "")
	if err != nil {
		t.Fatalf("list overrides: %v", err)
	}
	if len(overrides) != 0 {
		t.Fatalf("wednesday override survived thursday cleanup")
	}
}
