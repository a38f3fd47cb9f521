package engine

import (
	"context"

	"crewboard/internal/domain"
	"crewboard/internal/events"
)

// ResolveRoster runs the three status passes for a tenant and returns the
// roster as stored afterwards. The clock is read once; today's date and
// weekday both derive from that single reading, so a run spanning midnight
// stays internally consistent.
//
// Pass order matters: recurring first, scheduled second so an override for
// today wins, retention last so today's overrides survive until tomorrow.
// Each write stamps applied_date, which makes re-invocation on the same day a
// no-op for already-resolved employees. Per-record write failures are logged
// and skipped; the final reselect always runs.
func (e Engine) ResolveRoster(ctx context.Context, tenantID string) ([]domain.Employee, error) {
	now := e.now().UTC()
	today := now.Format(DateLayout)
	weekday := int(now.Weekday())
	nowStr := now.Format("2006-01-02T15:04:05Z07:00")

	candidates, err := e.Repo.ListUnresolvedEmployees(ctx, tenantID, today)
	if err != nil {
		return nil, err
	}

	if len(candidates) > 0 {
		e.recurringPass(ctx, tenantID, candidates, today, weekday, nowStr)
		e.scheduledPass(ctx, tenantID, candidates, today, nowStr)
	}
	e.retentionPass(ctx, tenantID, today)

	return e.Repo.ListEmployees(ctx, tenantID)
}

// Roster reselects without running passes. Change-feed consumers refresh
// through this so a webhook-triggered reload cannot re-enter the resolver.
func (e Engine) Roster(ctx context.Context, tenantID string) ([]domain.Employee, error) {
	return e.Repo.ListEmployees(ctx, tenantID)
}

// recurringPass applies the weekday rule to every candidate that opted in and
// holds no override for today. The override check happens here rather than in
// the scheduled pass: skipping the rule write entirely avoids a transient
// rule-status flash between passes.
func (e Engine) recurringPass(ctx context.Context, tenantID string, candidates []domain.Employee, today string, weekday int, now string) {
	rules, err := e.Repo.RulesForWeekday(ctx, tenantID, weekday)
	if err != nil {
		e.log().Warn("recurring pass: load rules", "tenant", tenantID, "err", err)
		return
	}
	if len(rules) == 0 {
		return
	}
	overridden, err := e.Repo.OverrideEmployeeIDsOn(ctx, tenantID, today)
	if err != nil {
		e.log().Warn("recurring pass: load overrides", "tenant", tenantID, "err", err)
		return
	}
	for _, emp := range candidates {
		if !emp.RecurringEnabled {
			continue
		}
		rule, ok := rules[emp.ID]
		if !ok {
			continue
		}
		if overridden[emp.ID] {
			continue
		}
		applied, err := e.Repo.ApplyResolvedStatus(ctx, tenantID, emp.ID, rule.Status, today, now)
		if err != nil {
			e.log().Warn("recurring pass: apply", "tenant", tenantID, "employee", emp.ID, "err", err)
			continue
		}
		if !applied {
			continue
		}
		if err := e.Events.AppendDB(ctx, "employee.status.resolved", tenantID, "employee", emp.ID, "resolver", events.EventPayload{
			"source":      "recurring",
			"rule_id":     rule.ID,
			"status":      rule.Status,
			"from_status": emp.Status,
		}); err != nil {
			e.log().Warn("recurring pass: event", "tenant", tenantID, "employee", emp.ID, "err", err)
		}
	}
}

// scheduledPass applies overrides whose scheduled_date equals today, exactly.
// It runs over the candidate set but writes unconditionally, so an override
// beats whatever the recurring pass just stamped.
func (e Engine) scheduledPass(ctx context.Context, tenantID string, candidates []domain.Employee, today, now string) {
	overrides, err := e.Repo.OverridesForDate(ctx, tenantID, today)
	if err != nil {
		e.log().Warn("scheduled pass: load overrides", "tenant", tenantID, "err", err)
		return
	}
	if len(overrides) == 0 {
		return
	}
	candidateSet := make(map[string]domain.Employee, len(candidates))
	for _, emp := range candidates {
		candidateSet[emp.ID] = emp
	}
	for _, o := range overrides {
		emp, ok := candidateSet[o.EmployeeID]
		if !ok {
			continue
		}
		if err := e.Repo.OverwriteResolvedStatus(ctx, tenantID, o.EmployeeID, o.Status, today, now); err != nil {
			e.log().Warn("scheduled pass: apply", "tenant", tenantID, "employee", o.EmployeeID, "err", err)
			continue
		}
		if err := e.Repo.StampOverrideApplied(ctx, tenantID, o.ID, today); err != nil {
			e.log().Warn("scheduled pass: stamp", "tenant", tenantID, "override", o.ID, "err", err)
		}
		if err := e.Events.AppendDB(ctx, "employee.status.resolved", tenantID, "employee", o.EmployeeID, "resolver", events.EventPayload{
			"source":      "override",
			"override_id": o.ID,
			"status":      o.Status,
			"from_status": emp.Status,
		}); err != nil {
			e.log().Warn("scheduled pass: event", "tenant", tenantID, "employee", o.EmployeeID, "err", err)
		}
	}
}

// retentionPass purges overrides dated strictly before today, over the whole
// tenant. It runs even when the candidate set was empty: cleanup does not
// depend on anyone needing resolution today.
func (e Engine) retentionPass(ctx context.Context, tenantID, today string) {
	n, err := e.Repo.DeleteOverridesBefore(ctx, tenantID, today)
	if err != nil {
		e.log().Warn("retention pass", "tenant", tenantID, "err", err)
		return
	}
	if n == 0 {
		return
	}
	if err := e.Events.AppendDB(ctx, "override.purged", tenantID, "override", "", "resolver", events.EventPayload{
		"count":  n,
		"before": today,
	}); err != nil {
		e.log().Warn("retention pass: event", "tenant", tenantID, "err", err)
	}
}
