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

	"archplan/internal/catalog"
	"archplan/internal/config"
	"archplan/internal/db"
	"archplan/internal/domain"
	"archplan/internal/engine"
	"archplan/internal/migrate"
)

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
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e, err := engine.New(conn, config.Default(), engine.Options{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if err := e.SeedCatalog(ctx, catalog.Builtin()); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
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

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
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

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, string(data))
	}
	return env.Error
}

func residentialBriefing() map[string]any {
	return map[string]any{
		"id":        "brief-1",
		"tipologia": "residencial",
		"revision":  2,
		"notes":     "client wants a pool",
	}
}

func TestHealth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "ok") {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
}

func TestAnalyzeThenCompose(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/briefings/analyze", map[string]any{"briefing": residentialBriefing()})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("analyze: %d %s", res.StatusCode, string(data))
	}
	var analysis domain.NeedsAnalysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		t.Fatalf("decode analysis: %v", err)
	}
	if len(analysis.Primary) != 1 || len(analysis.Complementary) != 2 || len(analysis.Optional) != 1 {
		t.Fatalf("unexpected tiers: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/proj-1/compose", map[string]any{
		"analysis": analysis,
		"options":  map[string]any{"start_date": "2024-01-01", "composition_type": "manual"},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("compose: %d %s", res.StatusCode, string(data))
	}
	var p domain.ComposedProject
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	if p.ProjectID != "proj-1" || len(p.Activities) != 16 || p.CompositionType != domain.CompositionManual {
		t.Fatalf("unexpected project %s/%d/%s", p.ProjectID, len(p.Activities), p.CompositionType)
	}
	if p.Metadata.Analysis.OverallScore != analysis.OverallScore || p.Metadata.Analysis.Summary != analysis.Summary {
		t.Fatalf("recomputed analysis differs from the posted one")
	}
}

func TestPlanRecordsEvents(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/proj-1/plan", map[string]any{
		"briefing": residentialBriefing(),
		"options":  map[string]any{"include_optional": false},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("plan: %d %s", res.StatusCode, string(data))
	}
	var plan engine.PlanResult
	if err := json.Unmarshal(data, &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if len(plan.Analysis.Optional) != 1 || len(plan.Project.Metadata.Analysis.Optional) != 0 {
		t.Fatalf("optional tier should be filtered before composing")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=1", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Type != "project.composed" || page.NextCursor == "" {
		t.Fatalf("unexpected first page %s", string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=1&cursor="+page.NextCursor, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events page 2: %d %s", res.StatusCode, string(data))
	}
	page = paginatedEvents{}
	_ = json.Unmarshal(data, &page)
	if len(page.Items) != 1 || page.Items[0].Type != "briefing.analyzed" || page.Items[0].Payload["complexity"] != "medium" {
		t.Fatalf("unexpected second page %s", string(data))
	}
}

func TestComposeCycleIs422(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	err := srv.Engine.SeedCatalog(context.Background(), []domain.Template{{
		ID: "tpl-loop", Category: "architecture",
		Activities: []domain.ActivityTemplate{
			{ID: "a", Title: "A", Dependencies: []string{"b"}},
			{ID: "b", Title: "B", Dependencies: []string{"a"}},
		},
	}})
	if err != nil {
		t.Fatal(err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/compose", map[string]any{
		"analysis": map[string]any{"primary": []map[string]any{{"template_id": "tpl-loop", "category": "architecture", "priority": 1, "score": 1}}},
	})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	body := decodeError(t, data)
	if body.Code != "circular_dependency" || !strings.Contains(body.Message, "circular dependency detected") {
		t.Fatalf("unexpected error body %+v", body)
	}
	if path, ok := body.Details["path"].([]any); !ok || len(path) != 3 {
		t.Fatalf("expected cycle path in details, got %+v", body.Details)
	}
}

func TestBadRequests(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/briefings/analyze", map[string]any{})
	if res.StatusCode != http.StatusBadRequest || decodeError(t, data).Code != "bad_request" {
		t.Fatalf("missing briefing: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/briefings/analyze", map[string]any{"briefing": map[string]any{"type": "residential", "version": "two"}})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-numeric version: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/proj-1/compose", map[string]any{
		"analysis": map[string]any{},
		"options":  map[string]any{"min_priority": -2},
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative priority: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?cursor=abc", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad cursor: %d %s", res.StatusCode, string(data))
	}
}

func TestTemplates(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/templates?category=architecture", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("templates: %d %s", res.StatusCode, string(data))
	}
	var list []TemplateSummary
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 5 {
		t.Fatalf("expected 5 architecture templates, got %d", len(list))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/templates/tpl-structural/activities", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("activities: %d %s", res.StatusCode, string(data))
	}
	var acts templateActivities
	if err := json.Unmarshal(data, &acts); err != nil {
		t.Fatal(err)
	}
	if len(acts.Items) != 3 || acts.Items[1].Dependencies[0] != "structural-concept" {
		t.Fatalf("unexpected activities %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/templates/tpl-ghost/activities", nil)
	if res.StatusCode != http.StatusNotFound || decodeError(t, data).Code != "not_found" {
		t.Fatalf("unknown template: %d %s", res.StatusCode, string(data))
	}
}

func TestOpenAPI(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi: %d", res.StatusCode)
	}
	for _, want := range []string{"briefings/analyze", "{project_id}/compose", "ApiError"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("openapi document missing %q", want)
		}
	}
}
