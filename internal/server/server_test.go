package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/directory"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/migrate"
	"fieldline/internal/repo"
)

const testSecret = "test-secret"

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
	return newTestServerWithAuth(t, AuthConfig{JWTSecret: testSecret, AllowLegacyActorHeader: true})
}

func newTestServerWithAuth(t *testing.T, authCfg AuthConfig) (*testServer, func()) {
	t.Helper()
	ctx := context.Background()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("farm-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	dir := directory.NewStore(conn)
	if _, err := dir.Sync(ctx, []domain.Worker{
		{ID: "w1", Name: "Alice", Role: "worker"},
		{ID: "w2", Name: "Bob", Role: "worker"},
		{ID: "sup1", Name: "Sam", Role: "supervisor"},
	}, "tester"); err != nil {
		t.Fatalf("seed workers: %v", err)
	}
	e := engine.New(conn, cfg, dir)
	e.Now = func() time.Time { return time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC) }
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     authCfg,
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

func as(actor string) map[string]string {
	return map[string]string{"X-Actor-Id": actor}
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

func expectStatus(t *testing.T, res *http.Response, data []byte, want int) {
	t.Helper()
	if res.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d: %s", res.Request.Method, res.Request.URL.Path, res.StatusCode, want, string(data))
	}
}

func expectErrorCode(t *testing.T, data []byte, want string) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope: %v: %s", err, string(data))
	}
	if env.Error.Code != want {
		t.Fatalf("error code %q, want %q: %s", env.Error.Code, want, string(data))
	}
	return env.Error
}

func createTemplate(t *testing.T, srv *testServer, subtasks int) TemplateResponse {
	t.Helper()
	var steps []map[string]any
	for i := 1; i <= subtasks; i++ {
		steps = append(steps, map[string]any{"id": "s" + string(rune('0'+i)), "title": "Step"})
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/templates", map[string]any{
		"title":                    "Fence inspection",
		"description":              "Walk the north paddock fence line",
		"category":                 "weekly",
		"priority":                 "high",
		"estimated_duration_hours": 2.5,
		"subtasks":                 steps,
	}, as("sup1"))
	expectStatus(t, res, data, http.StatusCreated)
	var tpl TemplateResponse
	if err := json.Unmarshal(data, &tpl); err != nil {
		t.Fatalf("unmarshal template: %v", err)
	}
	return tpl
}

func createAssignment(t *testing.T, srv *testServer, body map[string]any) AssignmentResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/assignments", body, as("sup1"))
	expectStatus(t, res, data, http.StatusCreated)
	var a AssignmentResponse
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatalf("unmarshal assignment: %v", err)
	}
	return a
}

func TestAssignmentLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	tpl := createTemplate(t, srv, 4)
	if len(tpl.Subtasks) != 4 || !tpl.Subtasks[0].Required {
		t.Fatalf("unexpected subtasks: %+v", tpl.Subtasks)
	}
	a := createAssignment(t, srv, map[string]any{"template_id": tpl.ID, "worker_id": "w1"})
	if a.Status != "pending" || a.AssignedDate != "2024-01-10" || a.DueDate != "2024-01-10" {
		t.Fatalf("unexpected new assignment: %+v", a)
	}
	if a.WorkerName != "Alice" || a.TemplateTitle != "Fence inspection" {
		t.Fatalf("denormalised fields not copied: %+v", a)
	}

	wantPercent := []int{25, 50, 75, 100}
	wantStatus := []string{"in-progress", "in-progress", "in-progress", "completed"}
	for i, st := range tpl.Subtasks {
		if i == 3 {
			res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments/"+a.ID+"/verify", nil, as("sup1"))
			expectStatus(t, res, data, http.StatusConflict)
			expectErrorCode(t, data, "conflict")
		}
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments/"+a.ID+"/subtasks/"+st.ID+"/toggle", nil, as("w1"))
		expectStatus(t, res, data, http.StatusOK)
		var got AssignmentResponse
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal toggle: %v", err)
		}
		if got.CompletionPercentage != wantPercent[i] || got.Status != wantStatus[i] {
			t.Fatalf("toggle %d: got %d%% %s", i+1, got.CompletionPercentage, got.Status)
		}
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments/"+a.ID+"/verify", nil, as("sup1"))
	expectStatus(t, res, data, http.StatusOK)
	var verified AssignmentResponse
	if err := json.Unmarshal(data, &verified); err != nil {
		t.Fatalf("unmarshal verify: %v", err)
	}
	if verified.VerifiedBy != "sup1" || verified.CompletedDate == nil || *verified.CompletedDate != "2024-01-10" {
		t.Fatalf("unexpected verified assignment: %+v", verified)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/assignments/"+a.ID, nil, as("w1"))
	expectStatus(t, res, data, http.StatusOK)
	if !strings.Contains(string(data), `"verified_by":"sup1"`) {
		t.Fatalf("verifier not persisted: %s", string(data))
	}
}

func TestOverdueAndListFilters(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	tpl := createTemplate(t, srv, 2)
	late := createAssignment(t, srv, map[string]any{
		"template_id":   tpl.ID,
		"worker_id":     "w1",
		"assigned_date": "2024-01-01",
		"due_date":      "2024-01-09",
	})
	if late.Status != "overdue" || late.CompletionPercentage != 0 {
		t.Fatalf("expected overdue at 0%%, got %s %d", late.Status, late.CompletionPercentage)
	}
	createAssignment(t, srv, map[string]any{"template_id": tpl.ID, "worker_id": "w2"})

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/assignments?status=overdue", nil, as("sup1"))
	expectStatus(t, res, data, http.StatusOK)
	var list listAssignments
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != late.ID {
		t.Fatalf("status filter: %+v", list.Items)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/assignments?worker=w2&date=2024-01-10", nil, as("sup1"))
	expectStatus(t, res, data, http.StatusOK)
	list = listAssignments{}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].WorkerID != "w2" {
		t.Fatalf("worker/date filter: %+v", list.Items)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/assignments?date=10-01-2024", nil, as("sup1"))
	expectStatus(t, res, data, http.StatusBadRequest)
}

func TestErrorMapping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	tpl := createTemplate(t, srv, 1)
	createAssignment(t, srv, map[string]any{"template_id": tpl.ID, "worker_id": "w1"})

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/templates", nil, nil)
	expectStatus(t, res, data, http.StatusUnauthorized)
	expectErrorCode(t, data, "unauthorized")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/templates", nil, map[string]string{"Authorization": "Bearer nope"})
	expectStatus(t, res, data, http.StatusUnauthorized)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/templates", map[string]any{
		"title": "x", "description": "y", "category": "daily", "priority": "low", "estimated_duration_hours": 1,
	}, as("w1"))
	expectStatus(t, res, data, http.StatusForbidden)
	expectErrorCode(t, data, "forbidden")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/templates", map[string]any{
		"title": "x", "description": "y", "category": "daily", "priority": "low", "estimated_duration_hours": 0,
	}, as("sup1"))
	expectStatus(t, res, data, http.StatusBadRequest)
	body := expectErrorCode(t, data, "validation_failed")
	if body.Details["field"] != "estimated_duration_hours" {
		t.Fatalf("expected field detail, got %+v", body.Details)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/templates", map[string]any{
		"title": "x", "description": "y", "category": "hourly", "priority": "low", "estimated_duration_hours": 1,
	}, as("sup1"))
	expectStatus(t, res, data, http.StatusBadRequest)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/templates/missing", nil, as("sup1"))
	expectStatus(t, res, data, http.StatusNotFound)
	expectErrorCode(t, data, "not_found")

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/templates/"+tpl.ID, nil, as("sup1"))
	expectStatus(t, res, data, http.StatusConflict)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments", map[string]any{
		"template_id": tpl.ID, "worker_id": "ghost",
	}, as("sup1"))
	expectStatus(t, res, data, http.StatusNotFound)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments", map[string]any{
		"template_id": tpl.ID, "worker_id": "w1", "assigned_date": "2024-01-10", "due_date": "2024-01-09",
	}, as("sup1"))
	expectStatus(t, res, data, http.StatusBadRequest)
	expectErrorCode(t, data, "validation_failed")
}

func TestToggleRequiresAssigneeOrOverride(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	tpl := createTemplate(t, srv, 2)
	a := createAssignment(t, srv, map[string]any{"template_id": tpl.ID, "worker_id": "w1"})
	url := srv.URL + "/v1/assignments/" + a.ID + "/subtasks/s1/toggle"

	res, data := doJSON(t, client, http.MethodPost, url, nil, as("w2"))
	expectStatus(t, res, data, http.StatusForbidden)

	res, data = doJSON(t, client, http.MethodPost, url, nil, as("sup1"))
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments/"+a.ID+"/subtasks/nope/toggle", nil, as("w1"))
	expectStatus(t, res, data, http.StatusNotFound)
}

func TestTemplateEditsRederiveAssignments(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	tpl := createTemplate(t, srv, 2)
	a := createAssignment(t, srv, map[string]any{"template_id": tpl.ID, "worker_id": "w1"})
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments/"+a.ID+"/subtasks/s1/toggle", nil, as("w1"))
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/templates/"+tpl.ID+"/subtasks/s2", nil, as("sup1"))
	expectStatus(t, res, data, http.StatusNoContent)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/assignments/"+a.ID, nil, as("w1"))
	expectStatus(t, res, data, http.StatusOK)
	var got AssignmentResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != "completed" || got.CompletionPercentage != 100 {
		t.Fatalf("expected completed after removing the open subtask, got %s %d", got.Status, got.CompletionPercentage)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/templates/"+tpl.ID+"/subtasks", map[string]any{"title": "Log findings"}, as("sup1"))
	expectStatus(t, res, data, http.StatusCreated)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/templates/"+tpl.ID, map[string]any{"priority": "critical"}, as("sup1"))
	expectStatus(t, res, data, http.StatusOK)
	var updated TemplateResponse
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if updated.Priority != "critical" || len(updated.Subtasks) != 2 {
		t.Fatalf("unexpected update: %+v", updated)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/assignments/"+a.ID, nil, as("w1"))
	expectStatus(t, res, data, http.StatusOK)
	got = AssignmentResponse{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != "in-progress" || got.CompletionPercentage != 50 || got.CompletedDate != nil {
		t.Fatalf("expected reopened assignment, got %+v", got)
	}
}

func TestStatsEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	tpl := createTemplate(t, srv, 2)
	done := createAssignment(t, srv, map[string]any{"template_id": tpl.ID, "worker_id": "w1"})
	for _, st := range []string{"s1", "s2"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments/"+done.ID+"/subtasks/"+st+"/toggle", nil, as("w1"))
		expectStatus(t, res, data, http.StatusOK)
	}
	createAssignment(t, srv, map[string]any{"template_id": tpl.ID, "worker_id": "w1"})
	createAssignment(t, srv, map[string]any{"template_id": tpl.ID, "worker_id": "w2"})

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/workers/w1/stats", nil, as("w1"))
	expectStatus(t, res, data, http.StatusOK)
	var stats StatsResponse
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.Total != 2 || stats.Completed != 1 || stats.Pending != 1 || stats.CompletionRatePercent != 50 {
		t.Fatalf("unexpected worker stats: %+v", stats)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/workers/ghost/stats", nil, as("sup1"))
	expectStatus(t, res, data, http.StatusNotFound)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/stats", nil, as("sup1"))
	expectStatus(t, res, data, http.StatusOK)
	stats = StatsResponse{}
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.Total != 3 || stats.Completed != 1 {
		t.Fatalf("unexpected global stats: %+v", stats)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/stats/workers", nil, as("sup1"))
	expectStatus(t, res, data, http.StatusOK)
	var rows listStats
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows.Items) != 3 || rows.Items[0].WorkerID != "w1" {
		t.Fatalf("unexpected per-worker stats: %+v", rows.Items)
	}
	sum := 0
	for _, r := range rows.Items {
		sum += r.Total
	}
	if sum != 3 {
		t.Fatalf("per-worker totals %d, want 3", sum)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/workers", nil, as("w2"))
	expectStatus(t, res, data, http.StatusOK)
	var workers listWorkers
	if err := json.Unmarshal(data, &workers); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(workers.Items) != 3 {
		t.Fatalf("expected 3 workers, got %+v", workers.Items)
	}
}

func TestEventsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	tpl := createTemplate(t, srv, 1)
	createAssignment(t, srv, map[string]any{"template_id": tpl.ID, "worker_id": "w1"})

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?limit=1", nil, as("sup1"))
	expectStatus(t, res, data, http.StatusOK)
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Type != "assignment.created" || page.NextCursor == "" {
		t.Fatalf("unexpected first page: %+v", page)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?entity_kind=template&cursor="+page.NextCursor, nil, as("sup1"))
	expectStatus(t, res, data, http.StatusOK)
	page = paginatedEvents{}
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].EntityID != tpl.ID || page.Items[0].Payload == nil {
		t.Fatalf("unexpected template events: %+v", page.Items)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?cursor=abc", nil, as("sup1"))
	expectStatus(t, res, data, http.StatusBadRequest)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events", nil, as("w1"))
	expectStatus(t, res, data, http.StatusForbidden)
}

func TestDevLoginAndAPIKey(t *testing.T) {
	srv, cleanup := newTestServerWithAuth(t, AuthConfig{JWTSecret: testSecret, AllowLegacyActorHeader: true, EnableDevLogin: true})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{"actor_id": "w1"}, nil)
	expectStatus(t, res, data, http.StatusOK)
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	bearer := map[string]string{"Authorization": "Bearer " + login.Token}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, bearer)
	expectStatus(t, res, data, http.StatusOK)
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if me.ActorID != "w1" || me.Source != "jwt" || len(me.Roles) != 1 || me.Roles[0] != "worker" {
		t.Fatalf("unexpected principal: %+v", me)
	}
	for _, p := range me.Permissions {
		if p == "template.write" {
			t.Fatalf("worker should not hold template.write: %v", me.Permissions)
		}
	}

	ctx := context.Background()
	key := "fl_test_key"
	if err := srv.Engine.Repo.InsertAPIKey(ctx, nil, domain.APIKey{
		ID:        "k1",
		ActorID:   "sup1",
		KeyHash:   repo.HashAPIKey(key),
		CreatedAt: "2024-01-10T00:00:00Z",
	}); err != nil {
		t.Fatalf("insert api key: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": key})
	expectStatus(t, res, data, http.StatusOK)
	me = WhoAmIResponse{}
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if me.ActorID != "sup1" || me.Source != "api_key" {
		t.Fatalf("unexpected principal: %+v", me)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": "wrong"})
	expectStatus(t, res, data, http.StatusUnauthorized)
	expectErrorCode(t, data, "invalid_credentials")
}

func TestDevLoginDisabledByDefault(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	url := srv.URL + "/v1/auth/dev/login"

	res, data := doJSON(t, client, http.MethodPost, url, map[string]any{"actor_id": "w1"}, nil)
	expectStatus(t, res, data, http.StatusUnauthorized)

	res, data = doJSON(t, client, http.MethodPost, url, map[string]any{"actor_id": "w1"}, as("sup1"))
	expectStatus(t, res, data, http.StatusNotFound)
}

func TestDevLoginTokenLimitedToDirectoryRole(t *testing.T) {
	srv, cleanup := newTestServerWithAuth(t, AuthConfig{JWTSecret: testSecret, AllowLegacyActorHeader: true, EnableDevLogin: true})
	defer cleanup()
	client := srv.Client()
	url := srv.URL + "/v1/auth/dev/login"

	res, data := doJSON(t, client, http.MethodPost, url, map[string]any{"actor_id": "intruder"}, nil)
	expectStatus(t, res, data, http.StatusNotFound)

	res, data = doJSON(t, client, http.MethodPost, url, map[string]any{
		"actor_id":    "w2",
		"permissions": []string{"assignment.toggle.any", "assignment.verify", "template.write"},
	}, nil)
	expectStatus(t, res, data, http.StatusBadRequest)
	expectErrorCode(t, data, "validation_failed")

	res, data = doJSON(t, client, http.MethodPost, url, map[string]any{"actor_id": "w2"}, nil)
	expectStatus(t, res, data, http.StatusOK)
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	bearer := map[string]string{"Authorization": "Bearer " + login.Token}

	tpl := createTemplate(t, srv, 2)
	a := createAssignment(t, srv, map[string]any{"template_id": tpl.ID, "worker_id": "w1"})

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments/"+a.ID+"/subtasks/s1/toggle", nil, bearer)
	expectStatus(t, res, data, http.StatusForbidden)

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/templates/"+tpl.ID+"/subtasks/s1", nil, bearer)
	expectStatus(t, res, data, http.StatusForbidden)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments/"+a.ID+"/verify", nil, bearer)
	expectStatus(t, res, data, http.StatusForbidden)
}

func TestOpenAPIAndHealthArePublic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	for _, want := range []string{"/v1/templates", "/v1/assignments/{id}/verify", "bearerAuth", "ApiError"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("openapi document missing %q", want)
		}
	}
}
