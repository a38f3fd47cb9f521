package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"crewboard/internal/config"
	"crewboard/internal/domain"
	"crewboard/internal/events"
	"crewboard/internal/repo"
)

// DateLayout is the calendar-date convention used everywhere: applied_date,
// scheduled_date and rule matching all compare these strings.
const DateLayout = "2006-01-02"

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Log    *slog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Log:    slog.Default(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

// InitTenant creates a tenant with its default config, seeds the predefined
// status list from that config, and makes the creating actor an admin.
func (e Engine) InitTenant(ctx context.Context, tenantID, companyName, actorID string) (domain.Tenant, error) {
	if tenantID == "" {
		return domain.Tenant{}, errors.New("tenant id is required")
	}
	if companyName == "" {
		companyName = tenantID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer tx.Rollback()

	t := domain.Tenant{
		ID:          tenantID,
		CompanyName: companyName,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO tenants(id,company_name,created_at) VALUES (?,?,?)`,
		t.ID, t.CompanyName, t.CreatedAt); err != nil {
		return domain.Tenant{}, fmt.Errorf("insert tenant: %w", err)
	}
	cfg := config.Default(tenantID)
	cfg.Tenant.CompanyName = companyName
	if err := e.Repo.UpsertTenantConfigTx(ctx, tx, t.ID, cfg); err != nil {
		return domain.Tenant{}, fmt.Errorf("insert tenant config: %w", err)
	}
	for i, label := range cfg.Statuses {
		if _, err := tx.ExecContext(ctx, `INSERT INTO predefined_statuses(id,tenant_id,label,position) VALUES (?,?,?,?)`,
			uuid.New().String(), t.ID, label, i); err != nil {
			return domain.Tenant{}, fmt.Errorf("seed statuses: %w", err)
		}
	}
	if actorID != "" {
		if _, err := tx.ExecContext(ctx, `INSERT INTO actors(id,created_at) VALUES (?,?) ON CONFLICT(id) DO NOTHING`,
			actorID, t.CreatedAt); err != nil {
			return domain.Tenant{}, err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO members(tenant_id,actor_id,role,created_at) VALUES (?,?,?,?)`,
			t.ID, actorID, repo.RoleAdmin, t.CreatedAt); err != nil {
			return domain.Tenant{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "tenant.init", t.ID, "tenant", t.ID, actorID, events.EventPayload{"company_name": t.CompanyName}); err != nil {
		return domain.Tenant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Tenant{}, err
	}
	return t, nil
}

// ImportConfig replaces the stored tenant config and reseeds the predefined
// status list from it.
func (e Engine) ImportConfig(ctx context.Context, tenantID string, cfg *config.Config, actorID string) error {
	if _, err := e.Repo.GetTenant(ctx, tenantID); err != nil {
		return err
	}
	if err := e.Repo.UpsertTenantConfig(ctx, tenantID, cfg); err != nil {
		return err
	}
	statuses := make([]domain.PredefinedStatus, 0, len(cfg.Statuses))
	for _, label := range cfg.Statuses {
		statuses = append(statuses, domain.PredefinedStatus{ID: uuid.New().String(), TenantID: tenantID, Label: label})
	}
	if err := e.Repo.ReplacePredefinedStatuses(ctx, tenantID, statuses); err != nil {
		return err
	}
	if cfg.Tenant.CompanyName != "" {
		if err := e.Repo.UpdateTenant(ctx, tenantID, cfg.Tenant.CompanyName); err != nil {
			return err
		}
	}
	return e.Events.AppendDB(ctx, "tenant.config.imported", tenantID, "tenant", tenantID, actorID, events.EventPayload{
		"statuses": len(cfg.Statuses),
		"webhooks": len(cfg.Webhooks),
	})
}

// EmployeeCreateOptions are parameters for creating an employee.
type EmployeeCreateOptions struct {
	ID          string
	TenantID    string
	DisplayName string
	Email       string
	Phone       string
	Status      string
	AvatarURL   string
	Recurring   bool
	ActorID     string
}

func (e Engine) CreateEmployee(ctx context.Context, opts EmployeeCreateOptions) (domain.Employee, error) {
	if opts.TenantID == "" {
		return domain.Employee{}, errors.New("tenant is required")
	}
	if opts.DisplayName == "" {
		return domain.Employee{}, errors.New("display name is required")
	}
	if _, err := e.Repo.GetTenant(ctx, opts.TenantID); err != nil {
		return domain.Employee{}, err
	}
	status := opts.Status
	if status == "" && e.Config != nil {
		status = e.Config.Board.DefaultStatus
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	emp := domain.Employee{
		ID:               id,
		TenantID:         opts.TenantID,
		DisplayName:      opts.DisplayName,
		Email:            opts.Email,
		Phone:            opts.Phone,
		Status:           status,
		AvatarURL:        optionalString(opts.AvatarURL),
		RecurringEnabled: opts.Recurring,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Employee{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO employees(id,tenant_id,display_name,email,phone,status,avatar_url,recurring_enabled,already_applied,applied_date,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,0,NULL,?,?)`,
		emp.ID, emp.TenantID, emp.DisplayName, nullable(emp.Email), nullable(emp.Phone), emp.Status,
		nullablePtr(emp.AvatarURL), emp.RecurringEnabled, emp.CreatedAt, emp.UpdatedAt); err != nil {
		return domain.Employee{}, fmt.Errorf("insert employee: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "employee.created", emp.TenantID, "employee", emp.ID, opts.ActorID, events.EventPayload{
		"display_name": emp.DisplayName,
		"status":       emp.Status,
	}); err != nil {
		return domain.Employee{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Employee{}, err
	}
	return emp, nil
}

// EmployeeUpdateOptions encapsulates allowed employee updates. A manual status
// change here does not touch the resolver's idempotency markers: the markers
// record resolver work, not user intent.
type EmployeeUpdateOptions struct {
	TenantID    string
	ID          string
	DisplayName *string
	Email       *string
	Phone       *string
	Status      *string
	AvatarURL   *string
	ClearAvatar bool
	Recurring   *bool
	ActorID     string
}

func (e Engine) UpdateEmployee(ctx context.Context, opts EmployeeUpdateOptions) (domain.Employee, error) {
	emp, err := e.Repo.GetEmployee(ctx, opts.TenantID, opts.ID)
	if err != nil {
		return emp, err
	}
	if opts.DisplayName != nil && *opts.DisplayName == "" {
		return emp, errors.New("display name must not be empty")
	}
	if opts.Status != nil && *opts.Status == "" {
		return emp, errors.New("status must not be empty")
	}
	if err := e.Repo.UpdateEmployee(ctx, opts.TenantID, opts.ID, repo.EmployeeUpdate{
		DisplayName:      opts.DisplayName,
		Email:            opts.Email,
		Phone:            opts.Phone,
		Status:           opts.Status,
		AvatarURL:        opts.AvatarURL,
		ClearAvatar:      opts.ClearAvatar,
		RecurringEnabled: opts.Recurring,
	}); err != nil {
		return emp, err
	}
	if opts.Status != nil && *opts.Status != emp.Status {
		if err := e.Events.AppendDB(ctx, "employee.status.set", opts.TenantID, "employee", opts.ID, opts.ActorID, events.EventPayload{
			"from_status": emp.Status,
			"to_status":   *opts.Status,
		}); err != nil {
			return emp, err
		}
	} else {
		if err := e.Events.AppendDB(ctx, "employee.updated", opts.TenantID, "employee", opts.ID, opts.ActorID, nil); err != nil {
			return emp, err
		}
	}
	return e.Repo.GetEmployee(ctx, opts.TenantID, opts.ID)
}

// SetEmployeeStatus is the manual quick-set path used by boards and the CLI.
func (e Engine) SetEmployeeStatus(ctx context.Context, tenantID, employeeID, status, actorID string) (domain.Employee, error) {
	if status == "" {
		return domain.Employee{}, errors.New("status must not be empty")
	}
	return e.UpdateEmployee(ctx, EmployeeUpdateOptions{
		TenantID: tenantID,
		ID:       employeeID,
		Status:   &status,
		ActorID:  actorID,
	})
}

func (e Engine) DeleteEmployee(ctx context.Context, tenantID, employeeID, actorID string) error {
	emp, err := e.Repo.GetEmployee(ctx, tenantID, employeeID)
	if err != nil {
		return err
	}
	// rules and overrides cascade via foreign keys
	if err := e.Repo.DeleteEmployee(ctx, tenantID, employeeID); err != nil {
		return err
	}
	return e.Events.AppendDB(ctx, "employee.deleted", tenantID, "employee", employeeID, actorID, events.EventPayload{
		"display_name": emp.DisplayName,
	})
}

// SetRecurringRule upserts the standing status for one employee on one weekday.
func (e Engine) SetRecurringRule(ctx context.Context, tenantID, employeeID string, weekday int, status, actorID string) (domain.RecurringRule, error) {
	if weekday < 0 || weekday > 6 {
		return domain.RecurringRule{}, fmt.Errorf("weekday %d out of range [0,6]", weekday)
	}
	if status == "" {
		return domain.RecurringRule{}, errors.New("status must not be empty")
	}
	if _, err := e.Repo.GetEmployee(ctx, tenantID, employeeID); err != nil {
		return domain.RecurringRule{}, err
	}
	rule, err := e.Repo.UpsertRecurringRule(ctx, domain.RecurringRule{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		EmployeeID: employeeID,
		Weekday:    weekday,
		Status:     status,
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return rule, err
	}
	if err := e.Events.AppendDB(ctx, "rule.set", tenantID, "rule", rule.ID, actorID, events.EventPayload{
		"employee_id": employeeID,
		"weekday":     weekday,
		"status":      status,
	}); err != nil {
		return rule, err
	}
	return rule, nil
}

func (e Engine) RemoveRecurringRule(ctx context.Context, tenantID, ruleID, actorID string) error {
	rule, err := e.Repo.GetRecurringRule(ctx, tenantID, ruleID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteRecurringRule(ctx, tenantID, ruleID); err != nil {
		return err
	}
	return e.Events.AppendDB(ctx, "rule.removed", tenantID, "rule", ruleID, actorID, events.EventPayload{
		"employee_id": rule.EmployeeID,
		"weekday":     rule.Weekday,
	})
}

// AddOverride schedules a one-off status for an exact date. Past dates are
// rejected: the resolver would purge them without ever applying.
func (e Engine) AddOverride(ctx context.Context, tenantID, employeeID, date, status, actorID string) (domain.ScheduledOverride, error) {
	if status == "" {
		return domain.ScheduledOverride{}, errors.New("status must not be empty")
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return domain.ScheduledOverride{}, fmt.Errorf("date %q must be YYYY-MM-DD", date)
	}
	today := e.now().UTC().Format(DateLayout)
	if date < today {
		return domain.ScheduledOverride{}, fmt.Errorf("date %s is in the past", date)
	}
	if _, err := e.Repo.GetEmployee(ctx, tenantID, employeeID); err != nil {
		return domain.ScheduledOverride{}, err
	}
	o := domain.ScheduledOverride{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		EmployeeID:    employeeID,
		ScheduledDate: date,
		Status:        status,
		CreatedAt:     e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertScheduledOverride(ctx, o); err != nil {
		return o, err
	}
	if err := e.Events.AppendDB(ctx, "override.added", tenantID, "override", o.ID, actorID, events.EventPayload{
		"employee_id":    employeeID,
		"scheduled_date": date,
		"status":         status,
	}); err != nil {
		return o, err
	}
	return o, nil
}

func (e Engine) RemoveOverride(ctx context.Context, tenantID, overrideID, actorID string) error {
	o, err := e.Repo.GetScheduledOverride(ctx, tenantID, overrideID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteScheduledOverride(ctx, tenantID, overrideID); err != nil {
		return err
	}
	return e.Events.AppendDB(ctx, "override.removed", tenantID, "override", overrideID, actorID, events.EventPayload{
		"employee_id":    o.EmployeeID,
		"scheduled_date": o.ScheduledDate,
	})
}

// SetPredefinedStatuses replaces the tenant's quick-pick list. The list is
// advisory: employee statuses remain free text.
func (e Engine) SetPredefinedStatuses(ctx context.Context, tenantID string, labels []string, actorID string) ([]domain.PredefinedStatus, error) {
	seen := map[string]bool{}
	statuses := make([]domain.PredefinedStatus, 0, len(labels))
	for _, label := range labels {
		if label == "" {
			return nil, errors.New("status label must not be empty")
		}
		if seen[label] {
			return nil, fmt.Errorf("duplicate status label %q", label)
		}
		seen[label] = true
		statuses = append(statuses, domain.PredefinedStatus{ID: uuid.New().String(), TenantID: tenantID, Label: label})
	}
	if _, err := e.Repo.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	if err := e.Repo.ReplacePredefinedStatuses(ctx, tenantID, statuses); err != nil {
		return nil, err
	}
	if err := e.Events.AppendDB(ctx, "statuses.set", tenantID, "tenant", tenantID, actorID, events.EventPayload{
		"labels": labels,
	}); err != nil {
		return nil, err
	}
	return e.Repo.ListPredefinedStatuses(ctx, tenantID)
}

// CreateAnnouncement adds a banner message to the tenant's rotation.
func (e Engine) CreateAnnouncement(ctx context.Context, tenantID, message string, position int, actorID string) (domain.Announcement, error) {
	if message == "" {
		return domain.Announcement{}, errors.New("message must not be empty")
	}
	if _, err := e.Repo.GetTenant(ctx, tenantID); err != nil {
		return domain.Announcement{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	a := domain.Announcement{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Message:   message,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertAnnouncement(ctx, a); err != nil {
		return a, err
	}
	if err := e.Events.AppendDB(ctx, "announcement.created", tenantID, "announcement", a.ID, actorID, nil); err != nil {
		return a, err
	}
	return a, nil
}

func (e Engine) UpdateAnnouncement(ctx context.Context, tenantID, id string, message *string, position *int, actorID string) (domain.Announcement, error) {
	if message != nil && *message == "" {
		return domain.Announcement{}, errors.New("message must not be empty")
	}
	if err := e.Repo.UpdateAnnouncement(ctx, tenantID, id, message, position); err != nil {
		return domain.Announcement{}, err
	}
	if err := e.Events.AppendDB(ctx, "announcement.updated", tenantID, "announcement", id, actorID, nil); err != nil {
		return domain.Announcement{}, err
	}
	return e.Repo.GetAnnouncement(ctx, tenantID, id)
}

func (e Engine) DeleteAnnouncement(ctx context.Context, tenantID, id, actorID string) error {
	if err := e.Repo.DeleteAnnouncement(ctx, tenantID, id); err != nil {
		return err
	}
	return e.Events.AppendDB(ctx, "announcement.deleted", tenantID, "announcement", id, actorID, nil)
}

// AddMember grants a role on a tenant.
func (e Engine) AddMember(ctx context.Context, tenantID, actorID, role, grantedBy string) error {
	if role != repo.RoleAdmin && role != repo.RoleMember {
		return fmt.Errorf("role %q must be admin or member", role)
	}
	if _, err := e.Repo.GetTenant(ctx, tenantID); err != nil {
		return err
	}
	if err := e.Repo.AssignRole(ctx, tenantID, actorID, role); err != nil {
		return err
	}
	return e.Events.AppendDB(ctx, "member.assigned", tenantID, "member", actorID, grantedBy, events.EventPayload{
		"role": role,
	})
}

func (e Engine) RemoveMember(ctx context.Context, tenantID, actorID, removedBy string) error {
	if err := e.Repo.RemoveMember(ctx, tenantID, actorID); err != nil {
		return err
	}
	return e.Events.AppendDB(ctx, "member.removed", tenantID, "member", actorID, removedBy, nil)
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
