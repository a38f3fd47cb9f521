package repo

import (
	"context"
	"database/sql"

	"crewboard/internal/domain"
)

// --- recurring rules ---

// UpsertRecurringRule inserts a rule or, when the employee already has one for
// that weekday, replaces its status. Returns the row as stored.
func (r Repo) UpsertRecurringRule(ctx context.Context, rule domain.RecurringRule) (domain.RecurringRule, error) {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO recurring_rules(id,tenant_id,employee_id,weekday,status,created_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT(employee_id,weekday) DO UPDATE SET status=excluded.status`,
		rule.ID, rule.TenantID, rule.EmployeeID, rule.Weekday, rule.Status, rule.CreatedAt)
	if err != nil {
		return domain.RecurringRule{}, err
	}
	row := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,employee_id,weekday,status,created_at
FROM recurring_rules WHERE employee_id=? AND weekday=?`, rule.EmployeeID, rule.Weekday)
	var stored domain.RecurringRule
	err = row.Scan(&stored.ID, &stored.TenantID, &stored.EmployeeID, &stored.Weekday, &stored.Status, &stored.CreatedAt)
	if err == sql.ErrNoRows {
		return stored, ErrNotFound
	}
	return stored, err
}

func (r Repo) GetRecurringRule(ctx context.Context, tenantID, id string) (domain.RecurringRule, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,employee_id,weekday,status,created_at
FROM recurring_rules WHERE id=? AND tenant_id=?`, id, tenantID)
	var rule domain.RecurringRule
	err := row.Scan(&rule.ID, &rule.TenantID, &rule.EmployeeID, &rule.Weekday, &rule.Status, &rule.CreatedAt)
	if err == sql.ErrNoRows {
		return rule, ErrNotFound
	}
	return rule, err
}

func (r Repo) ListRecurringRules(ctx context.Context, tenantID, employeeID string) ([]domain.RecurringRule, error) {
	query := `SELECT id,tenant_id,employee_id,weekday,status,created_at FROM recurring_rules WHERE tenant_id=?`
	args := []any{tenantID}
	if employeeID != "" {
		query += ` AND employee_id=?`
		args = append(args, employeeID)
	}
	query += ` ORDER BY employee_id ASC, weekday ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RecurringRule
	for rows.Next() {
		var rule domain.RecurringRule
		if err := rows.Scan(&rule.ID, &rule.TenantID, &rule.EmployeeID, &rule.Weekday, &rule.Status, &rule.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rule)
	}
	return res, rows.Err()
}

// RulesForWeekday returns every rule of the tenant matching a weekday, keyed by
// employee ID. An employee can hold at most one rule per weekday.
func (r Repo) RulesForWeekday(ctx context.Context, tenantID string, weekday int) (map[string]domain.RecurringRule, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,employee_id,weekday,status,created_at
FROM recurring_rules WHERE tenant_id=? AND weekday=?`, tenantID, weekday)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]domain.RecurringRule{}
	for rows.Next() {
		var rule domain.RecurringRule
		if err := rows.Scan(&rule.ID, &rule.TenantID, &rule.EmployeeID, &rule.Weekday, &rule.Status, &rule.CreatedAt); err != nil {
			return nil, err
		}
		res[rule.EmployeeID] = rule
	}
	return res, rows.Err()
}

func (r Repo) DeleteRecurringRule(ctx context.Context, tenantID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM recurring_rules WHERE id=? AND tenant_id=?`, id, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- scheduled overrides ---

func (r Repo) InsertScheduledOverride(ctx context.Context, o domain.ScheduledOverride) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO scheduled_overrides(id,tenant_id,employee_id,scheduled_date,status,last_applied_date,created_at)
VALUES (?,?,?,?,?,?,?)`,
		o.ID, o.TenantID, o.EmployeeID, o.ScheduledDate, o.Status, nullableStringPtr(o.LastAppliedDate), o.CreatedAt)
	return err
}

func (r Repo) GetScheduledOverride(ctx context.Context, tenantID, id string) (domain.ScheduledOverride, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,employee_id,scheduled_date,status,last_applied_date,created_at
FROM scheduled_overrides WHERE id=? AND tenant_id=?`, id, tenantID)
	o, err := scanOverride(row.Scan)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) ListScheduledOverrides(ctx context.Context, tenantID, employeeID string) ([]domain.ScheduledOverride, error) {
	query := `SELECT id,tenant_id,employee_id,scheduled_date,status,last_applied_date,created_at
FROM scheduled_overrides WHERE tenant_id=?`
	args := []any{tenantID}
	if employeeID != "" {
		query += ` AND employee_id=?`
		args = append(args, employeeID)
	}
	query += ` ORDER BY scheduled_date ASC, created_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ScheduledOverride
	for rows.Next() {
		o, err := scanOverride(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// OverridesForDate returns the overrides scheduled for an exact date, in
// creation order so the latest entry for an employee wins when applied in
// sequence.
func (r Repo) OverridesForDate(ctx context.Context, tenantID, date string) ([]domain.ScheduledOverride, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,employee_id,scheduled_date,status,last_applied_date,created_at
FROM scheduled_overrides WHERE tenant_id=? AND scheduled_date=? ORDER BY created_at ASC, id ASC`, tenantID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ScheduledOverride
	for rows.Next() {
		o, err := scanOverride(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// OverrideEmployeeIDsOn returns the set of employees holding an override for a
// date. The recurring pass skips these so the override has final say.
func (r Repo) OverrideEmployeeIDsOn(ctx context.Context, tenantID, date string) (map[string]bool, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT employee_id FROM scheduled_overrides
WHERE tenant_id=? AND scheduled_date=?`, tenantID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res[id] = true
	}
	return res, rows.Err()
}

// StampOverrideApplied records that an override was applied on a date, so a
// later resolver run on the same day does not re-apply it.
func (r Repo) StampOverrideApplied(ctx context.Context, tenantID, id, date string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE scheduled_overrides SET last_applied_date=? WHERE id=? AND tenant_id=?`,
		date, id, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteScheduledOverride removes one override by ID.
func (r Repo) DeleteScheduledOverride(ctx context.Context, tenantID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM scheduled_overrides WHERE id=? AND tenant_id=?`, id, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOverridesBefore purges overrides whose date has passed, tenant-wide.
// Returns the number of rows removed.
func (r Repo) DeleteOverridesBefore(ctx context.Context, tenantID, date string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM scheduled_overrides WHERE tenant_id=? AND scheduled_date<?`, tenantID, date)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanOverride(scan func(dest ...any) error) (domain.ScheduledOverride, error) {
	var o domain.ScheduledOverride
	var lastApplied sql.NullString
	err := scan(&o.ID, &o.TenantID, &o.EmployeeID, &o.ScheduledDate, &o.Status, &lastApplied, &o.CreatedAt)
	if err != nil {
		return o, err
	}
	if lastApplied.Valid {
		o.LastAppliedDate = &lastApplied.String
	}
	return o, nil
}
