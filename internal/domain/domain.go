package domain

type Tenant struct {
	ID          string `json:"id"`
	CompanyName string `json:"company_name"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Employee struct {
	ID               string  `json:"id"`
	TenantID         string  `json:"tenant_id"`
	DisplayName      string  `json:"display_name"`
	Email            string  `json:"email,omitempty"`
	Phone            string  `json:"phone,omitempty"`
	Status           string  `json:"status"`
	AvatarURL        *string `json:"avatar_url,omitempty"`
	RecurringEnabled bool    `json:"recurring_enabled"`
	AlreadyApplied   bool    `json:"already_applied"`
	AppliedDate      *string `json:"applied_date,omitempty" format:"date"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
}

// RecurringRule is a standing default status for one weekday.
// Weekday uses the 0=Sunday..6=Saturday convention throughout.
type RecurringRule struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	EmployeeID string `json:"employee_id"`
	Weekday    int    `json:"weekday" minimum:"0" maximum:"6"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// ScheduledOverride is a one-off status for an exact calendar date. It beats
// any recurring rule on that date and is purged once the date has passed.
type ScheduledOverride struct {
	ID              string  `json:"id"`
	TenantID        string  `json:"tenant_id"`
	EmployeeID      string  `json:"employee_id"`
	ScheduledDate   string  `json:"scheduled_date" format:"date"`
	Status          string  `json:"status"`
	LastAppliedDate *string `json:"last_applied_date,omitempty" format:"date"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
}

type PredefinedStatus struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Label    string `json:"label"`
	Position int    `json:"position"`
}

type Announcement struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Message   string `json:"message"`
	Position  int    `json:"position"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Member struct {
	TenantID  string `json:"tenant_id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role" enum:"admin,member"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	TenantID   string `json:"tenant_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
