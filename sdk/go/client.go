package crewboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Crewboard HTTP API client.
type Client struct {
	BaseURL     string
	TenantID    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, tenantID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		TenantID: tenantID,
		Timeout:  10 * time.Second,
	}
}

// Employee represents the API employee model.
type Employee struct {
	ID               string  `json:"id"`
	TenantID         string  `json:"tenant_id"`
	DisplayName      string  `json:"display_name"`
	Email            string  `json:"email,omitempty"`
	Phone            string  `json:"phone,omitempty"`
	Status           string  `json:"status"`
	AvatarURL        *string `json:"avatar_url,omitempty"`
	RecurringEnabled bool    `json:"recurring_enabled"`
	AppliedDate      *string `json:"applied_date,omitempty"`
}

// Rule represents a recurring weekday rule.
type Rule struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	EmployeeID string `json:"employee_id"`
	Weekday    int    `json:"weekday"`
	Status     string `json:"status"`
}

// Override represents a scheduled one-off status.
type Override struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenant_id"`
	EmployeeID    string `json:"employee_id"`
	ScheduledDate string `json:"scheduled_date"`
	Status        string `json:"status"`
}

// Announcement represents a banner message.
type Announcement struct {
	ID       string `json:"id"`
	Message  string `json:"message"`
	Position int    `json:"position"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	TenantID   string         `json:"tenant_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Roster resolves today's statuses server-side and returns the board.
func (c *Client) Roster(ctx context.Context) ([]Employee, error) {
	var resp []Employee
	err := c.do(ctx, http.MethodGet, c.tenantPath("roster"), nil, &resp)
	return resp, err
}

// CurrentRoster returns the board without triggering resolution.
func (c *Client) CurrentRoster(ctx context.Context) ([]Employee, error) {
	var resp []Employee
	err := c.do(ctx, http.MethodGet, c.tenantPath("roster/current"), nil, &resp)
	return resp, err
}

// CreateEmployee adds an employee to the board.
func (c *Client) CreateEmployee(ctx context.Context, displayName, status string) (Employee, error) {
	body := map[string]any{
		"display_name": displayName,
	}
	if status != "" {
		body["status"] = status
	}
	var resp Employee
	err := c.do(ctx, http.MethodPost, c.tenantPath("employees"), body, &resp)
	return resp, err
}

// SetStatus sets an employee's status.
func (c *Client) SetStatus(ctx context.Context, employeeID, status string) (Employee, error) {
	body := map[string]any{"status": status}
	var resp Employee
	endpoint := c.tenantPath(fmt.Sprintf("employees/%s/status", url.PathEscape(employeeID)))
	err := c.do(ctx, http.MethodPut, endpoint, body, &resp)
	return resp, err
}

// SetRule sets a recurring weekday rule (0=Sunday .. 6=Saturday).
func (c *Client) SetRule(ctx context.Context, employeeID string, weekday int, status string) (Rule, error) {
	body := map[string]any{
		"employee_id": employeeID,
		"weekday":     weekday,
		"status":      status,
	}
	var resp Rule
	err := c.do(ctx, http.MethodPut, c.tenantPath("rules"), body, &resp)
	return resp, err
}

// AddOverride schedules a one-off status for an exact date (YYYY-MM-DD).
func (c *Client) AddOverride(ctx context.Context, employeeID, date, status string) (Override, error) {
	body := map[string]any{
		"employee_id": employeeID,
		"date":        date,
		"status":      status,
	}
	var resp Override
	err := c.do(ctx, http.MethodPost, c.tenantPath("overrides"), body, &resp)
	return resp, err
}

// Announcements lists the banner rotation.
func (c *Client) Announcements(ctx context.Context) ([]Announcement, error) {
	var resp []Announcement
	err := c.do(ctx, http.MethodGet, c.tenantPath("announcements"), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.tenantPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) tenantPath(p string) string {
	tenant := url.PathEscape(c.TenantID)
	return fmt.Sprintf("v0/tenants/%s/%s", tenant, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
