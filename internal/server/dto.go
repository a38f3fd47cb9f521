package server

import (
	"encoding/json"

	"crewboard/internal/config"
	"crewboard/internal/domain"
)

// Request payloads

type CreateTenantRequest struct {
	ID          string  `json:"id"`
	CompanyName *string `json:"company_name,omitempty"`
}

type UpdateTenantRequest struct {
	CompanyName string `json:"company_name"`
}

type CreateEmployeeRequest struct {
	ID          *string `json:"id,omitempty"`
	DisplayName string  `json:"display_name"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Status      *string `json:"status,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	Recurring   bool    `json:"recurring_enabled,omitempty"`
}

type UpdateEmployeeRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Status      *string `json:"status,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	Recurring   *bool   `json:"recurring_enabled,omitempty"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type SetRuleRequest struct {
	EmployeeID string `json:"employee_id"`
	Weekday    int    `json:"weekday" minimum:"0" maximum:"6"`
	Status     string `json:"status"`
}

type AddOverrideRequest struct {
	EmployeeID string `json:"employee_id"`
	Date       string `json:"date" format:"date"`
	Status     string `json:"status"`
}

type SetStatusesRequest struct {
	Labels []string `json:"labels"`
}

type CreateAnnouncementRequest struct {
	Message  string `json:"message"`
	Position int    `json:"position,omitempty"`
}

type UpdateAnnouncementRequest struct {
	Message  *string `json:"message,omitempty"`
	Position *int    `json:"position,omitempty"`
}

type MemberChangeRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role,omitempty" enum:"admin,member"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type TenantResponse struct {
	ID          string `json:"id"`
	CompanyName string `json:"company_name"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type EmployeeResponse struct {
	ID               string  `json:"id"`
	TenantID         string  `json:"tenant_id"`
	DisplayName      string  `json:"display_name"`
	Email            string  `json:"email,omitempty"`
	Phone            string  `json:"phone,omitempty"`
	Status           string  `json:"status"`
	AvatarURL        *string `json:"avatar_url,omitempty"`
	RecurringEnabled bool    `json:"recurring_enabled"`
	AppliedDate      *string `json:"applied_date,omitempty" format:"date"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
}

type RuleResponse struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	EmployeeID string `json:"employee_id"`
	Weekday    int    `json:"weekday" minimum:"0" maximum:"6"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type OverrideResponse struct {
	ID              string  `json:"id"`
	TenantID        string  `json:"tenant_id"`
	EmployeeID      string  `json:"employee_id"`
	ScheduledDate   string  `json:"scheduled_date" format:"date"`
	Status          string  `json:"status"`
	LastAppliedDate *string `json:"last_applied_date,omitempty" format:"date"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
}

type StatusResponse struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Position int    `json:"position"`
}

type AnnouncementResponse struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Position  int    `json:"position"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type MemberResponse struct {
	ActorID   string `json:"actor_id"`
	Role      string `json:"role" enum:"admin,member"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	TenantID   string         `json:"tenant_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type BoardSummaryResponse struct {
	TenantID     string         `json:"tenant_id"`
	CompanyName  string         `json:"company_name"`
	StatusCounts map[string]int `json:"status_counts"`
	Employees    int            `json:"employees"`
}

type TenantConfigResponse struct {
	Tenant struct {
		ID          string `json:"id"`
		CompanyName string `json:"company_name"`
	} `json:"tenant"`
	Board struct {
		DefaultStatus         string `json:"default_status"`
		BannerRotationSeconds int    `json:"banner_rotation_seconds"`
	} `json:"board"`
	Statuses []string `json:"statuses"`
	Webhooks int      `json:"webhooks"`
}

type WhoAmIResponse struct {
	ActorID string   `json:"actor_id"`
	Tenants []string `json:"tenants"`
	Source  string   `json:"source,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func tenantResponse(t domain.Tenant) TenantResponse {
	return TenantResponse(t)
}

func employeeResponse(e domain.Employee) EmployeeResponse {
	return EmployeeResponse{
		ID:               e.ID,
		TenantID:         e.TenantID,
		DisplayName:      e.DisplayName,
		Email:            e.Email,
		Phone:            e.Phone,
		Status:           e.Status,
		AvatarURL:        e.AvatarURL,
		RecurringEnabled: e.RecurringEnabled,
		AppliedDate:      e.AppliedDate,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

func mapEmployees(items []domain.Employee) []EmployeeResponse {
	res := make([]EmployeeResponse, 0, len(items))
	for _, e := range items {
		res = append(res, employeeResponse(e))
	}
	return res
}

func ruleResponse(r domain.RecurringRule) RuleResponse {
	return RuleResponse(r)
}

func overrideResponse(o domain.ScheduledOverride) OverrideResponse {
	return OverrideResponse(o)
}

func statusResponse(s domain.PredefinedStatus) StatusResponse {
	return StatusResponse{ID: s.ID, Label: s.Label, Position: s.Position}
}

func announcementResponse(a domain.Announcement) AnnouncementResponse {
	return AnnouncementResponse{
		ID:        a.ID,
		Message:   a.Message,
		Position:  a.Position,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func memberResponse(m domain.Member) MemberResponse {
	return MemberResponse{ActorID: m.ActorID, Role: m.Role, CreatedAt: m.CreatedAt}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		TenantID:   e.TenantID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(strPtr(e.Payload)),
	}
}

func configResponse(cfg *config.Config) TenantConfigResponse {
	var res TenantConfigResponse
	res.Tenant.ID = cfg.Tenant.ID
	res.Tenant.CompanyName = cfg.Tenant.CompanyName
	res.Board.DefaultStatus = cfg.Board.DefaultStatus
	res.Board.BannerRotationSeconds = cfg.Board.BannerRotationSeconds
	res.Statuses = nonNilSlice(cfg.Statuses)
	res.Webhooks = len(cfg.Webhooks)
	return res
}

// JSON helpers

func decodeJSONMap(raw *string) map[string]any {
	if raw == nil || *raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(*raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func strPtr(in string) *string {
	return &in
}
