package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"crewboard/internal/config"
	"crewboard/internal/db"
	"crewboard/internal/engine"
	"crewboard/internal/migrate"
)

const testTenant = "acme"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default(testTenant)
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.InitTenant(context.Background(), testTenant, "Acme Inc", "tester"); err != nil {
		t.Fatalf("init tenant: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if headers == nil {
		req.Header.Set("X-Actor-Id", "tester")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type employeeBody struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func createEmployee(t *testing.T, srv *testServer, name string) employeeBody {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tenants/"+testTenant+"/employees", map[string]any{
		"display_name":      name,
		"recurring_enabled": true,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create employee status %d: %s", res.StatusCode, string(data))
	}
	var emp employeeBody
	if err := json.Unmarshal(data, &emp); err != nil {
		t.Fatalf("unmarshal employee: %v", err)
	}
	return emp
}

func TestRosterAppliesRulesAndOverrides(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	alice := createEmployee(t, srv, "Alice")
	bob := createEmployee(t, srv, "Bob")

	now := time.Now().UTC()
	weekday := int(now.Weekday())
	today := now.Format("2006-01-02")

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/tenants/"+testTenant+"/rules", map[string]any{
		"employee_id": alice.ID,
		"weekday":     weekday,
		"status":      "WFH",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set rule status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/tenants/"+testTenant+"/rules", map[string]any{
		"employee_id": bob.ID,
		"weekday":     weekday,
		"status":      "WFH",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set rule status %d: %s", res.StatusCode, string(data))
	}
	// Bob's override for today should beat his recurring rule.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/"+testTenant+"/overrides", map[string]any{
		"employee_id": bob.ID,
		"date":        today,
		"status":      "Vacation",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add override status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tenants/"+testTenant+"/roster", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("roster status %d: %s", res.StatusCode, string(data))
	}
	var roster []employeeBody
	if err := json.Unmarshal(data, &roster); err != nil {
		t.Fatalf("unmarshal roster: %v", err)
	}
	statuses := map[string]string{}
	for _, emp := range roster {
		statuses[emp.ID] = emp.Status
	}
	if statuses[alice.ID] != "WFH" {
		t.Fatalf("expected Alice WFH, got %q", statuses[alice.ID])
	}
	if statuses[bob.ID] != "Vacation" {
		t.Fatalf("expected Bob Vacation, got %q", statuses[bob.ID])
	}

	// A manual change after resolution must survive a second resolve the same day.
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/tenants/"+testTenant+"/employees/"+alice.ID+"/status", map[string]any{
		"status": "Out to Lunch",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tenants/"+testTenant+"/roster", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("re-resolve status %d: %s", res.StatusCode, string(data))
	}
	roster = nil
	_ = json.Unmarshal(data, &roster)
	for _, emp := range roster {
		if emp.ID == alice.ID && emp.Status != "Out to Lunch" {
			t.Fatalf("second resolve overwrote manual status: %q", emp.Status)
		}
	}
}

func TestOverridePastDateRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	emp := createEmployee(t, srv, "Carol")
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tenants/"+testTenant+"/overrides", map[string]any{
		"employee_id": emp.ID,
		"date":        yesterday,
		"status":      "Sick",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for past date, got %d: %s", res.StatusCode, string(data))
	}
}

func TestRuleWeekdayOutOfRange(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	emp := createEmployee(t, srv, "Dave")
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/tenants/"+testTenant+"/rules", map[string]any{
		"employee_id": emp.ID,
		"weekday":     7,
		"status":      "WFH",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for weekday 7, got %d: %s", res.StatusCode, string(data))
	}
}

func TestNonAdminCannotCreateEmployee(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	// stranger is not a member at all
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/"+testTenant+"/employees", map[string]any{
		"display_name": "Eve",
	}, map[string]string{"X-Actor-Id": "stranger"})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}

	// a plain member can read but not create
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/"+testTenant+"/members/assign", map[string]any{
		"actor_id": "viewer",
		"role":     "member",
	}, nil)
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusNoContent {
		t.Fatalf("assign member: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tenants/"+testTenant+"/employees", map[string]any{
		"display_name": "Eve",
	}, map[string]string{"X-Actor-Id": "viewer"})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for member, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tenants/"+testTenant+"/employees", nil, map[string]string{"X-Actor-Id": "viewer"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("member list employees: %d %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v0/tenants/"+testTenant+"/employees", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
}

func TestDevLoginAndMe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "tester",
	}, map[string]string{})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("bad login response: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me struct {
		ActorID string   `json:"actor_id"`
		Tenants []string `json:"tenants"`
		Source  string   `json:"source"`
	}
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.ActorID != "tester" || me.Source != "jwt" {
		t.Fatalf("unexpected principal: %+v", me)
	}
	if len(me.Tenants) != 1 || me.Tenants[0] != testTenant {
		t.Fatalf("unexpected tenants: %v", me.Tenants)
	}
}

func TestEventsCursorPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	for i := 0; i < 5; i++ {
		createEmployee(t, srv, fmt.Sprintf("Emp %d", i))
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tenants/"+testTenant+"/events?limit=3", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var page struct {
		Items []struct {
			ID   int64  `json:"id"`
			Type string `json:"type"`
		} `json:"items"`
		NextCursor string `json:"next_cursor"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 events, got %d", len(page.Items))
	}
	if page.NextCursor == "" {
		t.Fatalf("expected a next cursor")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tenants/"+testTenant+"/events?limit=50&cursor="+page.NextCursor, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second page status %d: %s", res.StatusCode, string(data))
	}
	var page2 struct {
		Items []struct {
			ID int64 `json:"id"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &page2); err != nil {
		t.Fatalf("unmarshal second page: %v", err)
	}
	if len(page2.Items) == 0 {
		t.Fatalf("expected more events on the second page")
	}
	lastReturned := page.Items[len(page.Items)-1].ID
	for _, evt := range page2.Items {
		if evt.ID >= lastReturned {
			t.Fatalf("cursor did not advance past %d: got %d", lastReturned, evt.ID)
		}
	}
}

func TestHealthUnauthenticated(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, err := srv.Client().Get(srv.URL + "/v0/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}
