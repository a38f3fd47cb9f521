package engine_test

import (
	"context"
	"testing"
	"time"

	"crewboard/internal/config"
	"crewboard/internal/db"
	"crewboard/internal/engine"
	"crewboard/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Clock  *time.Time
}

// newTestEnv builds an engine over a temp-dir database with a fixed clock.
// 2024-01-03 is a Wednesday; tests that need weekday math rely on that.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("acme")
	eng := engine.New(conn, cfg)
	clock := time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return clock }
	ctx := context.Background()
	if _, err := eng.InitTenant(ctx, "acme", "Acme Inc", "tester"); err != nil {
		t.Fatalf("init tenant: %v", err)
	}
	return &testEnv{Engine: eng, Ctx: ctx, Clock: &clock}
}

func (env *testEnv) addEmployee(t *testing.T, name string, recurring bool) string {
	t.Helper()
	emp, err := env.Engine.CreateEmployee(env.Ctx, engine.EmployeeCreateOptions{
		TenantID:    "acme",
		DisplayName: name,
		Recurring:   recurring,
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("create employee %s: %v", name, err)
	}
	return emp.ID
}

func TestCreateEmployeeDefaultStatus(t *testing.T) {
	env := newTestEnv(t)
	emp, err := env.Engine.CreateEmployee(env.Ctx, engine.EmployeeCreateOptions{
		TenantID:    "acme",
		DisplayName: "Alice",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("create employee: %v", err)
	}
	if emp.Status != "Out" {
		t.Fatalf("expected default status Out, got %q", emp.Status)
	}
	if emp.AppliedDate != nil {
		t.Fatalf("new employee should have no applied date")
	}
}

func TestSetRecurringRuleValidation(t *testing.T) {
	env := newTestEnv(t)
	id := env.addEmployee(t, "Alice", true)

	if _, err := env.Engine.SetRecurringRule(env.Ctx, "acme", id, 7, "WFH", "tester"); err == nil {
		t.Fatalf("expected error for weekday 7")
	}
	if _, err := env.Engine.SetRecurringRule(env.Ctx, "acme", id, -1, "WFH", "tester"); err == nil {
		t.Fatalf("expected error for weekday -1")
	}
	if _, err := env.Engine.SetRecurringRule(env.Ctx, "acme", id, 3, "", "tester"); err == nil {
		t.Fatalf("expected error for empty status")
	}
	if _, err := env.Engine.SetRecurringRule(env.Ctx, "acme", "missing", 3, "WFH", "tester"); err == nil {
		t.Fatalf("expected error for unknown employee")
	}

	rule, err := env.Engine.SetRecurringRule(env.Ctx, "acme", id, 3, "WFH", "tester")
	if err != nil {
		t.Fatalf("set rule: %v", err)
	}
	// setting again for the same weekday replaces the status
	rule2, err := env.Engine.SetRecurringRule(env.Ctx, "acme", id, 3, "Remote", "tester")
	if err != nil {
		t.Fatalf("replace rule: %v", err)
	}
	if rule2.ID != rule.ID {
		t.Fatalf("expected upsert to keep rule identity, got %s vs %s", rule2.ID, rule.ID)
	}
	if rule2.Status != "Remote" {
		t.Fatalf("expected replaced status Remote, got %q", rule2.Status)
	}
	rules, err := env.Engine.Repo.ListRecurringRules(env.Ctx, "acme", id)
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected one rule after upsert, got %d", len(rules))
	}
}

func TestAddOverrideValidation(t *testing.T) {
	env := newTestEnv(t)
	id := env.addEmployee(t, "Bob", true)

	if _, err := env.Engine.AddOverride(env.Ctx, "acme", id, "2024-01-03", "", "tester"); err == nil {
		t.Fatalf("expected error for empty status")
	}
	if _, err := env.Engine.AddOverride(env.Ctx, "acme", id, "Jan 3 2024", "Sick", "tester"); err == nil {
		t.Fatalf("expected error for malformed date")
	}
	if _, err := env.Engine.AddOverride(env.Ctx, "acme", id, "2024-01-02", "Sick", "tester"); err == nil {
		t.Fatalf("expected error for past date")
	}
	// today and future are fine
	if _, err := env.Engine.AddOverride(env.Ctx, "acme", id, "2024-01-03", "Sick", "tester"); err != nil {
		t.Fatalf("today override: %v", err)
	}
	if _, err := env.Engine.AddOverride(env.Ctx, "acme", id, "2024-02-01", "Vacation", "tester"); err != nil {
		t.Fatalf("future override: %v", err)
	}
}

func TestManualStatusKeepsResolverMarkers(t *testing.T) {
	env := newTestEnv(t)
	id := env.addEmployee(t, "Carol", true)
	if _, err := env.Engine.SetRecurringRule(env.Ctx, "acme", id, 3, "WFH", "tester"); err != nil {
		t.Fatalf("set rule: %v", err)
	}
	if _, err := env.Engine.ResolveRoster(env.Ctx, "acme"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	emp, err := env.Engine.SetEmployeeStatus(env.Ctx, "acme", id, "In a Meeting", "tester")
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if emp.AppliedDate == nil || *emp.AppliedDate != "2024-01-03" {
		t.Fatalf("manual status change must not clear applied date, got %v", emp.AppliedDate)
	}
}

func TestSetPredefinedStatuses(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.Engine.SetPredefinedStatuses(env.Ctx, "acme", []string{"In", "", "Out"}, "tester"); err == nil {
		t.Fatalf("expected error for empty label")
	}
	if _, err := env.Engine.SetPredefinedStatuses(env.Ctx, "acme", []string{"In", "In"}, "tester"); err == nil {
		t.Fatalf("expected error for duplicate label")
	}
	items, err := env.Engine.SetPredefinedStatuses(env.Ctx, "acme", []string{"Here", "Gone"}, "tester")
	if err != nil {
		t.Fatalf("set statuses: %v", err)
	}
	if len(items) != 2 || items[0].Label != "Here" || items[1].Label != "Gone" {
		t.Fatalf("unexpected status list: %+v", items)
	}
	if items[0].Position != 0 || items[1].Position != 1 {
		t.Fatalf("positions must follow list order: %+v", items)
	}
}

func TestAddMemberRoleValidation(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.AddMember(env.Ctx, "acme", "newbie", "owner", "tester"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
	if err := env.Engine.AddMember(env.Ctx, "acme", "newbie", "member", "tester"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	role, err := env.Engine.Repo.MemberRole(env.Ctx, "acme", "newbie")
	if err != nil || role != "member" {
		t.Fatalf("expected member role, got %q err %v", role, err)
	}
}

func TestDeleteEmployeeCascades(t *testing.T) {
	env := newTestEnv(t)
	id := env.addEmployee(t, "Dave", true)
	if _, err := env.Engine.SetRecurringRule(env.Ctx, "acme", id, 1, "WFH", "tester"); err != nil {
		t.Fatalf("set rule: %v", err)
	}
	if _, err := env.Engine.AddOverride(env.Ctx, "acme", id, "2024-01-05", "Sick", "tester"); err != nil {
		t.Fatalf("add override: %v", err)
	}
	if err := env.Engine.DeleteEmployee(env.Ctx, "acme", id, "tester"); err != nil {
		t.Fatalf("delete employee: %v", err)
	}
	rules, err := env.Engine.Repo.ListRecurringRules(env.Ctx, "acme", id)
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("rules should cascade on employee delete")
	}
	overrides, err := env.Engine.Repo.ListScheduledOverrides(env.Ctx, "acme", id)
	if err != nil {
		t.Fatalf("list overrides: %v", err)
	}
	if len(overrides) != 0 {
		t.Fatalf("overrides should cascade on employee delete")
	}
}
