package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/JonMunkholm/CrmAssist/internal/assistant"
	"github.com/JonMunkholm/CrmAssist/internal/config"
	"github.com/JonMunkholm/CrmAssist/internal/credential"
	"github.com/JonMunkholm/CrmAssist/internal/crmdb"
	"github.com/JonMunkholm/CrmAssist/internal/crmdb/migrations"
	"github.com/JonMunkholm/CrmAssist/internal/llm"
	"github.com/JonMunkholm/CrmAssist/internal/prompt"
	"github.com/JonMunkholm/CrmAssist/internal/schema"
)

var present = credential.Credential{State: credential.Present, Value: "sk-test", Source: credential.SourceEnv}

// scriptedProvider answers translation calls from a question → SQL table and
// every other call with a fixed explanation.
type scriptedProvider struct {
	mu          sync.Mutex
	sql         map[string]string
	explanation string
	calls       int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if req.System == "" {
		return llm.Completion{Text: p.explanation}, nil
	}
	if sql, ok := p.sql[req.User]; ok {
		return llm.Completion{Text: sql}, nil
	}
	return llm.Completion{}, errors.New("model overloaded")
}

type testEnv struct {
	handler  http.Handler
	provider *scriptedProvider
}

func newTestEnv(t *testing.T, cred credential.Credential, withSchema bool) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, dialect, err := crmdb.Open(ctx, config.DBConfig{Driver: "sqlite", DSN: "sqlite://:memory:"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := migrations.NewRunner().Up(ctx, db, 0); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	rules, err := prompt.DefaultRules()
	if err != nil {
		t.Fatalf("DefaultRules() error = %v", err)
	}
	builder, err := prompt.NewBuilder(rules)
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}

	provider := &scriptedProvider{
		sql: map[string]string{
			"Kunder i Jylland":  "```sql\nSELECT company_name FROM customers WHERE postal_code BETWEEN '6000' AND '9999' ORDER BY company_name;\n```",
			"Kunder i Grønland": "SELECT * FROM customers WHERE city = 'Nuuk';",
			"Vis fakturaer":     "SELECT * FROM invoices;",
			"Vis konsulenter":   "SELECT name FROM consultants WHERE id <= 2 ORDER BY id;",
		},
		explanation: "Der er ingen kunder i Grønland. Prøv at søge på Jylland.",
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	executor := crmdb.NewExecutor(db, 0)
	deps := Deps{
		Assistant: assistant.New(provider, builder, executor, cred, assistant.WithLogger(logger)),
		Dashboard: crmdb.NewDashboard(db),
		Executor:  executor,
		Examples:  builder.Examples(),
		Logger:    logger,
	}
	if withSchema {
		cache := schema.NewCache(dialect)
		if err := cache.Load(ctx, db); err != nil {
			t.Fatalf("schema Load() error = %v", err)
		}
		deps.Schema = cache
		deps.DB = db
	}
	return &testEnv{handler: New(deps).Routes(), provider: provider}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

type answerBody struct {
	SQL         string           `json:"sql"`
	Columns     []string         `json:"columns"`
	Rows        []map[string]any `json:"rows"`
	Explanation string           `json:"explanation"`
	Error       string           `json:"error"`
}

func TestAskReturnsRows(t *testing.T) {
	env := newTestEnv(t, present, false)

	rec := env.do(t, http.MethodPost, "/api/ask", `{"question":"Kunder i Jylland"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Fatal("missing trace header")
	}
	got := decode[answerBody](t, rec)
	if got.SQL != "SELECT company_name FROM customers WHERE postal_code BETWEEN '6000' AND '9999' ORDER BY company_name;" {
		t.Fatalf("sql = %q", got.SQL)
	}
	if len(got.Rows) != 6 || got.Rows[0]["company_name"] != "Aalborg Software ApS" {
		t.Fatalf("rows = %v", got.Rows)
	}
	if got.Explanation != "" || env.provider.calls != 1 {
		t.Fatalf("explanation = %q, calls = %d", got.Explanation, env.provider.calls)
	}
}

func TestAskEmptyResultIsExplained(t *testing.T) {
	env := newTestEnv(t, present, false)

	rec := env.do(t, http.MethodPost, "/api/ask", `{"question":"Kunder i Grønland"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"rows":[]`) {
		t.Fatalf("empty rows must be present: %s", rec.Body.String())
	}
	got := decode[answerBody](t, rec)
	if got.Explanation != "Der er ingen kunder i Grønland. Prøv at søge på Jylland." {
		t.Fatalf("explanation = %q", got.Explanation)
	}
	if env.provider.calls != 2 {
		t.Fatalf("calls = %d, want translation plus one explanation", env.provider.calls)
	}
}

func TestAskFailureStatuses(t *testing.T) {
	tests := []struct {
		name   string
		cred   credential.Credential
		body   string
		status int
		check  func(t *testing.T, got answerBody)
	}{
		{
			name:   "no credential",
			cred:   credential.Credential{State: credential.Placeholder},
			body:   `{"question":"Vis alle kunder"}`,
			status: http.StatusServiceUnavailable,
			check: func(t *testing.T, got answerBody) {
				if got.Error != "AI unavailable" || got.SQL != "" {
					t.Fatalf("answer = %+v", got)
				}
			},
		},
		{
			name:   "translation failure",
			cred:   present,
			body:   `{"question":"Ukendt spørgsmål"}`,
			status: http.StatusBadGateway,
			check: func(t *testing.T, got answerBody) {
				if !strings.Contains(got.Error, "model overloaded") || got.SQL != "" {
					t.Fatalf("answer = %+v", got)
				}
			},
		},
		{
			name:   "execution failure",
			cred:   present,
			body:   `{"question":"Vis fakturaer"}`,
			status: http.StatusBadRequest,
			check: func(t *testing.T, got answerBody) {
				if got.SQL != "SELECT * FROM invoices;" || !strings.Contains(got.Error, "invoices") || got.Rows != nil {
					t.Fatalf("answer = %+v", got)
				}
			},
		},
		{
			name:   "missing question",
			cred:   present,
			body:   `{"question":"  "}`,
			status: http.StatusBadRequest,
			check: func(t *testing.T, got answerBody) {
				if got.Error != "question is required" {
					t.Fatalf("answer = %+v", got)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.cred, false)
			rec := env.do(t, http.MethodPost, "/api/ask", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			tt.check(t, decode[answerBody](t, rec))
		})
	}
}

func TestTranslate(t *testing.T) {
	env := newTestEnv(t, credential.Credential{State: credential.Absent}, false)
	rec := env.do(t, http.MethodPost, "/api/translate", `{"question":"Vis alle kunder"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[translateResponse](t, rec)
	if got.SQL != assistant.DegradedSQL || !got.Degraded {
		t.Fatalf("translate = %+v", got)
	}

	env = newTestEnv(t, present, false)
	got = decode[translateResponse](t, env.do(t, http.MethodPost, "/api/translate", `{"question":"Vis konsulenter"}`))
	if got.SQL != "SELECT name FROM consultants WHERE id <= 2 ORDER BY id;" || got.Degraded {
		t.Fatalf("translate = %+v", got)
	}
}

func TestQueryClampsRows(t *testing.T) {
	env := newTestEnv(t, present, false)

	rec := env.do(t, http.MethodPost, "/api/query", `{"query":"SELECT id, title FROM deals ORDER BY id","limit":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	got := decode[queryResponse](t, rec)
	if got.Count != 3 || !got.More || len(got.Columns) != 2 || got.Rows[0][1] != "Cloud migrering fase 2" {
		t.Fatalf("query = %+v", got)
	}

	rec = env.do(t, http.MethodPost, "/api/query", `{"query":"DELETE FROM deals"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t, present, false)

	rec := env.do(t, http.MethodPost, "/api/export", `{"query":"SELECT id, name, phone FROM consultants WHERE id <= 2 ORDER BY id"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment; filename=crm_export_") {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	want := "id,name,phone\n1,Anders Holm,+45 20 11 11 11\n2,Birgitte Lund,+45 20 22 22 22\n"
	if rec.Body.String() != want {
		t.Fatalf("csv =\n%s", rec.Body.String())
	}

	if rec := env.do(t, http.MethodPost, "/api/export", `{"query":"DROP TABLE deals"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	got := decode[statusResponse](t, newTestEnv(t, present, false).do(t, http.MethodGet, "/api/status", ""))
	want := statusResponse{AIAvailable: true, DBAvailable: true, CustomerCount: 12, Status: "healthy", System: "Support Solutions CRM"}
	if got != want {
		t.Fatalf("status = %+v", got)
	}

	got = decode[statusResponse](t, newTestEnv(t, credential.Credential{}, false).do(t, http.MethodGet, "/api/status", ""))
	if got.AIAvailable || got.Status != "partial" {
		t.Fatalf("status = %+v", got)
	}
}

func TestCRMEndpoints(t *testing.T) {
	env := newTestEnv(t, present, false)

	var stats struct {
		Success bool        `json:"success"`
		Stats   crmdb.Stats `json:"stats"`
	}
	rec := env.do(t, http.MethodGet, "/api/crm/stats", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if !stats.Success || stats.Stats.Customers.Total != 12 || stats.Stats.Consultants.AvgRate != 1380 {
		t.Fatalf("stats = %+v", stats)
	}

	var dashboard struct {
		Success bool           `json:"success"`
		Data    crmdb.Overview `json:"data"`
	}
	rec = env.do(t, http.MethodGet, "/api/crm/dashboard", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &dashboard); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if !dashboard.Success || len(dashboard.Data.TopDeals) != 5 {
		t.Fatalf("dashboard = %+v", dashboard)
	}

	var listing struct {
		Success bool          `json:"success"`
		Data    crmdb.Listing `json:"data"`
	}
	rec = env.do(t, http.MethodGet, "/api/crm/deals", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if !listing.Success || listing.Data.Entity != "deals" || len(listing.Data.Rows) != 10 {
		t.Fatalf("listing = %+v", listing)
	}

	if rec := env.do(t, http.MethodGet, "/api/crm/invoices", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown entity status = %d", rec.Code)
	}
}

func TestSchemaEndpoints(t *testing.T) {
	env := newTestEnv(t, present, true)

	got := decode[schemaResponse](t, env.do(t, http.MethodGet, "/api/schema", ""))
	if got.TableCount != 6 || got.Tables[0].Name != "activities" {
		t.Fatalf("schema = %+v", got)
	}

	rec := env.do(t, http.MethodPost, "/api/schema/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", rec.Code)
	}

	env = newTestEnv(t, present, false)
	if rec := env.do(t, http.MethodGet, "/api/schema", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status without schema = %d", rec.Code)
	}
}

func postForm(t *testing.T, env *testEnv, question string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(url.Values{"question": {question}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestIndexPage(t *testing.T) {
	env := newTestEnv(t, present, false)

	rec := env.do(t, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("GET / = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	body := rec.Body.String()
	for _, want := range []string{"Support Solutions CRM", "AI aktiv", "Vis alle kunder"} {
		if !strings.Contains(body, want) {
			t.Fatalf("page missing %q", want)
		}
	}

	body = postForm(t, env, "Vis konsulenter")
	if !strings.Contains(body, "<td>Anders Holm</td>") || !strings.Contains(body, "Birgitte Lund") {
		t.Fatalf("answer table not rendered:\n%s", body)
	}

	body = postForm(t, env, "Kunder i Grønland")
	if !strings.Contains(body, "Der er ingen kunder i Grønland.") {
		t.Fatal("explanation not rendered")
	}
}

func TestIndexPageDegraded(t *testing.T) {
	env := newTestEnv(t, credential.Credential{State: credential.Absent}, false)

	body := postForm(t, env, "Vis alle kunder")
	if !strings.Contains(body, "AI-funktionalitet er ikke tilgængelig") || !strings.Contains(body, "Demo mode") {
		t.Fatalf("degraded notice missing:\n%s", body)
	}
	if env.provider.calls != 0 {
		t.Fatalf("provider calls = %d", env.provider.calls)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, present, false)
	env.do(t, http.MethodGet, "/api/status", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "crmassist_http_requests_total") {
		t.Fatalf("metrics = %d", rec.Code)
	}
}
