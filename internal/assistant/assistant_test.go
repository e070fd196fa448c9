package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/JonMunkholm/CrmAssist/internal/audit"
	"github.com/JonMunkholm/CrmAssist/internal/credential"
	"github.com/JonMunkholm/CrmAssist/internal/llm"
	"github.com/JonMunkholm/CrmAssist/internal/prompt"
	"github.com/JonMunkholm/CrmAssist/internal/query"
)

var present = credential.Credential{State: credential.Present, Value: "sk-test", Source: credential.SourceEnv}

type fakeProvider struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []llm.CompletionRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(_ context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return llm.Completion{}, f.errs[i]
	}
	if i < len(f.responses) {
		return llm.Completion{Text: f.responses[i]}, nil
	}
	return llm.Completion{}, errors.New("unexpected completion call")
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type spyExecutor struct {
	result query.Result
	err    error
	sqls   []string
}

func (s *spyExecutor) Execute(_ context.Context, sql string) (query.Result, error) {
	s.sqls = append(s.sqls, sql)
	return s.result, s.err
}

type spyRecorder struct {
	events []audit.Event
	err    error
}

func (s *spyRecorder) Record(_ context.Context, ev audit.Event) error {
	s.events = append(s.events, ev)
	return s.err
}

func testBuilder(t *testing.T) *prompt.Builder {
	t.Helper()
	rules, err := prompt.DefaultRules()
	if err != nil {
		t.Fatalf("DefaultRules() error = %v", err)
	}
	b, err := prompt.NewBuilder(rules)
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	return b
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func oneRow() query.Result {
	return query.Result{
		Columns: []string{"id", "company_name"},
		Rows:    []query.Row{{"id": int64(1), "company_name": "Nordic Bank A/S"}},
	}
}

func TestTranslateWithoutCredentialReturnsPlaceholder(t *testing.T) {
	for _, cred := range []credential.Credential{
		{State: credential.Absent},
		{State: credential.Placeholder, Source: credential.SourceEnv},
	} {
		provider := &fakeProvider{}
		tr := NewTranslator(provider, testBuilder(t), cred, "", quietLogger())
		for _, q := range []string{"Vis alle kunder", "", "Hot deals i Aarhus"} {
			sql, err := tr.Translate(context.Background(), q)
			if err != nil {
				t.Fatalf("Translate(%q) error = %v", q, err)
			}
			if sql != "SELECT * FROM customers; -- AI ikke tilgængelig" {
				t.Fatalf("Translate(%q) = %q", q, sql)
			}
		}
		if provider.calls() != 0 {
			t.Fatalf("provider called %d times in degraded mode", provider.calls())
		}
	}
}

func TestTranslateStripsFencesAndUsesPrompt(t *testing.T) {
	b := testBuilder(t)
	provider := &fakeProvider{responses: []string{"```sql\nSELECT * FROM deals;\n```"}}
	tr := NewTranslator(provider, b, present, "", quietLogger())

	sql, err := tr.Translate(context.Background(), "Hot deals i Aarhus")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if sql != "SELECT * FROM deals;" {
		t.Fatalf("Translate() = %q", sql)
	}
	req := provider.requests[0]
	if req.System != b.System() || req.User != "Hot deals i Aarhus" || req.Temperature != 0 || req.MaxTokens != 0 {
		t.Fatalf("request = %+v", req)
	}
}

func TestTranslateAppendsVariant(t *testing.T) {
	b := testBuilder(t)
	provider := &fakeProvider{responses: []string{"SELECT 1;"}}
	tr := NewTranslator(provider, b, present, "sales", quietLogger())
	if _, err := tr.Translate(context.Background(), "Pipeline"); err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if provider.requests[0].System != b.SystemFor("sales") {
		t.Fatal("variant text was not appended to the system prompt")
	}
}

func TestTranslateErrors(t *testing.T) {
	boom := errors.New("rate limited")
	tr := NewTranslator(&fakeProvider{errs: []error{boom}}, testBuilder(t), present, "", quietLogger())
	if _, err := tr.Translate(context.Background(), "q"); !errors.Is(err, boom) {
		t.Fatalf("Translate() error = %v, want wrapped %v", err, boom)
	}

	tr = NewTranslator(&fakeProvider{responses: []string{"```sql\n```"}}, testBuilder(t), present, "", quietLogger())
	if _, err := tr.Translate(context.Background(), "q"); !errors.Is(err, ErrEmptySQL) {
		t.Fatalf("Translate() error = %v, want ErrEmptySQL", err)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"```sql\nSELECT * FROM deals;\n```", "SELECT * FROM deals;"},
		{"```SQL\nSELECT 1;\n```", "SELECT 1;"},
		{"```\nSELECT 2;\n```", "SELECT 2;"},
		{"  SELECT 3;  \n", "SELECT 3;"},
		{"```sql SELECT 4;```", "SELECT 4;"},
		{"", ""},
	}
	for _, tt := range tests {
		got := StripFences(tt.in)
		if got != tt.want {
			t.Fatalf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := StripFences(got); again != got {
			t.Fatalf("StripFences not idempotent for %q: %q then %q", tt.in, got, again)
		}
	}
}

func TestCheckStatement(t *testing.T) {
	for _, ok := range []string{"SELECT 1", "  with x as (select 1) select * from x", "select * from customers"} {
		if err := CheckStatement(ok); err != nil {
			t.Fatalf("CheckStatement(%q) error = %v", ok, err)
		}
	}
	for _, bad := range []string{"DELETE FROM customers", "DROP TABLE deals", "update x set y=1"} {
		if err := CheckStatement(bad); !errors.Is(err, ErrStatementNotAllowed) {
			t.Fatalf("CheckStatement(%q) error = %v", bad, err)
		}
	}
	if err := CheckStatement("   "); err == nil {
		t.Fatal("expected error for blank statement")
	}
}

func TestAskWithoutCredential(t *testing.T) {
	exec := &spyExecutor{result: oneRow()}
	provider := &fakeProvider{}
	a := New(provider, testBuilder(t), exec, credential.Credential{State: credential.Absent}, WithLogger(quietLogger()))

	ans := a.Ask(context.Background(), "Vis alle kunder")
	if ans.Error != "AI unavailable" || ans.SQL != "" || ans.Rows != nil {
		t.Fatalf("Ask() = %+v", ans)
	}
	if len(exec.sqls) != 0 || provider.calls() != 0 {
		t.Fatalf("executor calls=%d provider calls=%d", len(exec.sqls), provider.calls())
	}

	// A nil provider with a present credential is also unavailable.
	a = New(nil, testBuilder(t), exec, present, WithLogger(quietLogger()))
	if ans := a.Ask(context.Background(), "q"); ans.Error != AIUnavailable {
		t.Fatalf("Ask() with nil provider = %+v", ans)
	}
}

func TestAskWithRowsSkipsExplainer(t *testing.T) {
	exec := &spyExecutor{result: oneRow()}
	provider := &fakeProvider{responses: []string{"SELECT * FROM customers;"}}
	rec := &spyRecorder{}
	a := New(provider, testBuilder(t), exec, present, WithLogger(quietLogger()), WithRecorder(rec))

	ans := a.Ask(context.Background(), "Vis alle kunder")
	if ans.Error != "" || ans.Explanation != "" {
		t.Fatalf("Ask() = %+v", ans)
	}
	if ans.SQL != "SELECT * FROM customers;" || len(ans.Rows) != 1 || len(ans.Columns) != 2 {
		t.Fatalf("Ask() = %+v", ans)
	}
	if provider.calls() != 1 {
		t.Fatalf("provider calls = %d, want 1 (no explanation)", provider.calls())
	}
	if len(exec.sqls) != 1 || exec.sqls[0] != "SELECT * FROM customers;" {
		t.Fatalf("executor got %v", exec.sqls)
	}
	if len(rec.events) != 1 || rec.events[0].SQL != ans.SQL || rec.events[0].Provider != "fake" {
		t.Fatalf("audit events = %+v", rec.events)
	}
	if !ans.Executed() {
		t.Fatal("expected Executed() to be true")
	}
}

func TestAskWithEmptyResultExplainsOnce(t *testing.T) {
	exec := &spyExecutor{result: query.Result{Columns: []string{"id"}}}
	provider := &fakeProvider{responses: []string{
		"```sql\nSELECT * FROM deals WHERE value > 9999999;\n```",
		"Der er ingen så store deals. Prøv en lavere grænse.",
	}}
	a := New(provider, testBuilder(t), exec, present, WithLogger(quietLogger()))

	ans := a.Ask(context.Background(), "Deals over 10 mio")
	if ans.Error != "" {
		t.Fatalf("Ask() error = %q", ans.Error)
	}
	if ans.Rows == nil || len(ans.Rows) != 0 {
		t.Fatalf("Rows = %#v, want empty non-nil", ans.Rows)
	}
	if ans.Explanation != "Der er ingen så store deals. Prøv en lavere grænse." {
		t.Fatalf("Explanation = %q", ans.Explanation)
	}
	if provider.calls() != 2 {
		t.Fatalf("provider calls = %d, want translate + one explanation", provider.calls())
	}
	explainReq := provider.requests[1]
	if explainReq.System != "" || explainReq.Temperature != 0.7 || explainReq.MaxTokens != 100 {
		t.Fatalf("explain request = %+v", explainReq)
	}
	if !strings.Contains(explainReq.User, `"Deals over 10 mio"`) || !strings.Contains(explainReq.User, "value > 9999999") {
		t.Fatalf("explain prompt = %q", explainReq.User)
	}
}

func TestAskExplainerFailureFallsBack(t *testing.T) {
	exec := &spyExecutor{}
	provider := &fakeProvider{
		responses: []string{"SELECT * FROM projects WHERE 1=0;"},
		errs:      []error{nil, errors.New("timeout")},
	}
	a := New(provider, testBuilder(t), exec, present, WithLogger(quietLogger()))

	ans := a.Ask(context.Background(), "Projekter på Mars")
	if ans.Error != "" {
		t.Fatalf("Ask() error = %q", ans.Error)
	}
	if ans.Explanation != FallbackExplanation {
		t.Fatalf("Explanation = %q", ans.Explanation)
	}
}

func TestAskExecutorFailure(t *testing.T) {
	exec := &spyExecutor{err: errors.New("no such table: invoices")}
	provider := &fakeProvider{responses: []string{"SELECT * FROM invoices;"}}
	a := New(provider, testBuilder(t), exec, present, WithLogger(quietLogger()))

	ans := a.Ask(context.Background(), "Vis fakturaer")
	if ans.SQL != "SELECT * FROM invoices;" || ans.Error != "no such table: invoices" {
		t.Fatalf("Ask() = %+v", ans)
	}
	if ans.Explanation != "" || ans.Rows != nil {
		t.Fatalf("unexpected explanation/rows: %+v", ans)
	}
	if provider.calls() != 1 {
		t.Fatalf("provider calls = %d, explainer must not run", provider.calls())
	}
}

func TestAskTranslationFailure(t *testing.T) {
	exec := &spyExecutor{}
	provider := &fakeProvider{errs: []error{errors.New("API error: status 500")}}
	a := New(provider, testBuilder(t), exec, present, WithLogger(quietLogger()))

	ans := a.Ask(context.Background(), "q")
	if ans.SQL != "" || !strings.Contains(ans.Error, "status 500") {
		t.Fatalf("Ask() = %+v", ans)
	}
	if len(exec.sqls) != 0 {
		t.Fatal("executor must not run after a translation failure")
	}
}

func TestAskStatementGuard(t *testing.T) {
	exec := &spyExecutor{result: oneRow()}
	provider := &fakeProvider{responses: []string{"DELETE FROM customers;"}}
	a := New(provider, testBuilder(t), exec, present, WithLogger(quietLogger()), WithStatementGuard())

	ans := a.Ask(context.Background(), "Slet alle kunder")
	if ans.SQL != "DELETE FROM customers;" || ans.Error != ErrStatementNotAllowed.Error() {
		t.Fatalf("Ask() = %+v", ans)
	}
	if len(exec.sqls) != 0 {
		t.Fatal("guarded statement reached the executor")
	}

	// Without the guard the statement is forwarded verbatim.
	provider = &fakeProvider{responses: []string{"DELETE FROM customers;"}}
	a = New(provider, testBuilder(t), exec, present, WithLogger(quietLogger()))
	a.Ask(context.Background(), "Slet alle kunder")
	if len(exec.sqls) != 1 || exec.sqls[0] != "DELETE FROM customers;" {
		t.Fatalf("executor got %v", exec.sqls)
	}
}

func TestAskAuditFailureIsNotFatal(t *testing.T) {
	exec := &spyExecutor{result: oneRow()}
	provider := &fakeProvider{responses: []string{"SELECT 1;"}}
	rec := &spyRecorder{err: errors.New("broker down")}
	a := New(provider, testBuilder(t), exec, present, WithLogger(quietLogger()), WithRecorder(rec))

	if ans := a.Ask(context.Background(), "q"); ans.Error != "" || len(ans.Rows) != 1 {
		t.Fatalf("Ask() = %+v", ans)
	}
}

func TestExplainerDegradedAndEmpty(t *testing.T) {
	e := NewExplainer(&fakeProvider{}, credential.Credential{State: credential.Placeholder}, DefaultExplainConfig(), quietLogger())
	if got := e.ExplainEmptyResult(context.Background(), "q", "SELECT 1"); got != "Ingen data fundet for denne forespørgsel." {
		t.Fatalf("degraded explanation = %q", got)
	}

	e = NewExplainer(&fakeProvider{responses: []string{"   "}}, present, DefaultExplainConfig(), quietLogger())
	if got := e.ExplainEmptyResult(context.Background(), "q", "SELECT 1"); got != FallbackExplanation {
		t.Fatalf("empty completion explanation = %q", got)
	}
}

func TestExplainConfigIsForwarded(t *testing.T) {
	provider := &fakeProvider{responses: []string{"SELECT 1;", "Ingen."}}
	a := New(provider, testBuilder(t), &spyExecutor{}, present,
		WithLogger(quietLogger()),
		WithExplainConfig(ExplainConfig{Temperature: 0.2, MaxTokens: 40}),
	)
	a.Ask(context.Background(), "q")
	if req := provider.requests[1]; req.Temperature != 0.2 || req.MaxTokens != 40 {
		t.Fatalf("explain request = %+v", req)
	}
}

func TestAnswerJSON(t *testing.T) {
	tests := []struct {
		name     string
		answer   Answer
		wantRows bool
		contains string
	}{
		{"unavailable", Answer{Error: AIUnavailable}, false, `"error":"AI unavailable"`},
		{"execution error", Answer{SQL: "SELECT x", Error: "boom"}, false, `"sql":"SELECT x"`},
		{"empty", Answer{SQL: "SELECT 1", Rows: []query.Row{}, Explanation: "Ingen."}, true, `"rows":[]`},
		{"rows", Answer{SQL: "SELECT 1", Columns: []string{"a"}, Rows: []query.Row{{"a": 1}}}, true, `"columns":["a"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.answer)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if got := strings.Contains(string(raw), `"rows"`); got != tt.wantRows {
				t.Fatalf("rows present = %v in %s", got, raw)
			}
			if !strings.Contains(string(raw), tt.contains) {
				t.Fatalf("json %s missing %s", raw, tt.contains)
			}
		})
	}
}

func TestAskIsSafeForConcurrentUse(t *testing.T) {
	responses := make([]string, 0, 16)
	for i := 0; i < 16; i++ {
		responses = append(responses, "SELECT 1;")
	}
	provider := &fakeProvider{responses: responses}
	exec := query.ExecutorFunc(func(context.Context, string) (query.Result, error) { return oneRow(), nil })
	a := New(provider, testBuilder(t), exec, present, WithLogger(quietLogger()))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ans := a.Ask(context.Background(), "Vis alle kunder"); ans.Error != "" {
				t.Errorf("Ask() error = %q", ans.Error)
			}
		}()
	}
	wg.Wait()
}
