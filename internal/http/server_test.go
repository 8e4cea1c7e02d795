package http

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
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"budgetdash/internal/cache"
	"budgetdash/internal/core"
	blog "budgetdash/internal/log"
	"budgetdash/internal/services"
	"budgetdash/internal/sheets"
	"budgetdash/internal/sheets/memory"
)

func seedSnapshot() sheets.Snapshot {
	return sheets.Snapshot{
		Expenses: []core.Expense{{
			ID: 1, Date: core.NewDate(2024, 1, 1), Category: "Housing", SuperCategory: "Essentials",
			Name: "Rent", Amount: decimal.NewFromInt(1000), Frequency: core.Monthly, Status: core.StatusActive,
		}},
		Subscriptions: []core.Subscription{{
			ID: 1, Date: core.NewDate(2024, 1, 1), Name: "Music",
			Amount: decimal.NewFromInt(10), Frequency: core.Monthly, Status: core.StatusActive,
		}},
		Purchases: []core.PlannedPurchase{{
			ID: 1, Date: core.NewDate(2024, 1, 1), Name: "Laptop",
			Cost: decimal.NewFromInt(2400), Amortization: core.Annually, Status: core.StatusActive,
		}},
		Income: []core.IncomeSource{{
			ID: 1, JobTitle: "Engineer", Salary: decimal.NewFromInt(120000), Frequency: core.Annually,
			Bonus: decimal.NewFromInt(10000), SalaryTaxRate: decimal.RequireFromString("0.25"),
			TotalCompTaxRate: decimal.RequireFromString("0.30"),
		}},
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("disk gone") }

func newTestServer(t *testing.T, opts Options) (*Server, *memory.Store) {
	t.Helper()
	store := memory.NewFromSnapshot(seedSnapshot())
	if opts.SummaryCache != nil {
		opts.Service = services.NewBudgetService(store, nil, opts.SummaryCache)
	} else {
		opts.Service = services.NewBudgetService(store, nil, nil)
	}
	opts.Logger = blog.New(blog.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	srv := NewServer(opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	if srv.templates == nil {
		t.Fatal("templates failed to parse")
	}
	return srv, store
}

func do(t *testing.T, srv *Server, method, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestPagesRender(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	cases := []struct {
		path string
		want []string
	}{
		{"/", []string{"Total compensation", "Annual surplus", "Essentials", "$82,480"}},
		{"/budget", []string{"Housing", "Rent", "/ Month", "Budget plans", "Semi-Monthly"}},
		{"/subscriptions", []string{"Music", "Share of subscriptions", "$120"}},
		{"/purchases", []string{"Laptop", "Annualized", "$2,400"}},
		{"/income", []string{"Engineer", "Compare sources", "$97,000"}},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, tc.path, nil)
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			for _, want := range tc.want {
				if !strings.Contains(rr.Body.String(), want) {
					t.Errorf("%s: body missing %q", tc.path, want)
				}
			}
		})
	}
}

func TestUnknownPathIs404(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	if rr := do(t, srv, http.MethodGet, "/nope", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := do(t, srv, http.MethodGet, path, nil); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	broken, _ := newTestServer(t, Options{Ready: failingPinger{}})
	rr := do(t, broken, http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for failing backend, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "disk gone") {
		t.Fatalf("readiness body should name the failure: %s", rr.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rr := do(t, srv, http.MethodGet, "/expenses", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Allow"), http.MethodPost) {
		t.Fatalf("Allow header = %q", rr.Header().Get("Allow"))
	}
}

func TestSecurityAndTraceHeaders(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rr := do(t, srv, http.MethodGet, "/healthz", nil)
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("missing X-Frame-Options")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Errorf("missing X-Request-ID")
	}

	rr = do(t, srv, http.MethodGet, "/static/app.css", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("static status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Cache-Control"), "max-age=") {
		t.Errorf("static assets should be cacheable, got %q", rr.Header().Get("Cache-Control"))
	}
}

func TestAddSaveDeleteExpense(t *testing.T) {
	srv, store := newTestServer(t, Options{})
	ctx := context.Background()

	rr := do(t, srv, http.MethodPost, "/expenses", url.Values{"category": {"Housing"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("add status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "Added expense 2 to Housing") {
		t.Errorf("unexpected trigger: %s", rr.Header().Get("HX-Trigger"))
	}
	if !strings.Contains(rr.Body.String(), `class="category-group"`) {
		t.Errorf("add should return the category group: %s", rr.Body.String())
	}

	rr = do(t, srv, http.MethodPost, "/expenses/2", url.Values{
		"name":           {"Insurance"},
		"amount":         {"$1,200.50"},
		"frequency":      {"Annually"},
		"date":           {"2024-03-01"},
		"tax_deductible": {"on"},
		"status":         {"Active"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("save status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "Expense 2 saved!") {
		t.Errorf("unexpected trigger: %s", rr.Header().Get("HX-Trigger"))
	}

	rows, _ := store.ListExpenses(ctx)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	saved := rows[1]
	if saved.Name != "Insurance" || !saved.Amount.Equal(decimal.RequireFromString("1200.50")) ||
		saved.Frequency != core.Annually || !saved.TaxDeductible || saved.Category != "Housing" {
		t.Fatalf("unexpected saved row: %+v", saved)
	}

	rr = do(t, srv, http.MethodPost, "/expenses/1/delete", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "Deleted expense 1") {
		t.Errorf("unexpected trigger: %s", rr.Header().Get("HX-Trigger"))
	}
	rows, _ = store.ListExpenses(ctx)
	if len(rows) != 1 || rows[0].ID != 2 {
		t.Fatalf("unexpected rows after delete: %+v", rows)
	}
}

func TestExpenseErrors(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	cases := []struct {
		name   string
		path   string
		form   url.Values
		status int
		body   string
	}{
		{"blank category", "/expenses", url.Values{"category": {"  "}}, http.StatusUnprocessableEntity,
			`<div class="error">Please enter a valid category name.</div>`},
		{"bad amount", "/expenses/1", url.Values{"name": {"Rent"}, "amount": {"abc"}}, http.StatusUnprocessableEntity, "Amount"},
		{"negative amount", "/expenses/1", url.Values{"name": {"Rent"}, "amount": {"-5"}}, http.StatusUnprocessableEntity, "invalid amount"},
		{"blank name", "/expenses/1", url.Values{"name": {""}, "amount": {"5"}}, http.StatusUnprocessableEntity, "Empty name"},
		{"bad date", "/expenses/1", url.Values{"name": {"Rent"}, "amount": {"5"}, "date": {"31/31/2024"}}, http.StatusUnprocessableEntity, "Invalid date"},
		{"unknown id", "/expenses/99", url.Values{"name": {"Rent"}, "amount": {"5"}}, http.StatusNotFound, "no longer exists"},
		{"bad id", "/expenses/abc", url.Values{"name": {"Rent"}}, http.StatusBadRequest, "error"},
		{"markup", "/expenses/1", url.Values{"name": {"<script>alert(1)</script>"}, "amount": {"5"}}, http.StatusBadRequest, "disallowed"},
		{"delete unknown", "/expenses/42/delete", nil, http.StatusNotFound, "no longer exists"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, tc.path, tc.form)
			if rr.Code != tc.status {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tc.status, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), tc.body) {
				t.Fatalf("body %q missing %q", rr.Body.String(), tc.body)
			}
		})
	}
}

func TestCreateCategory(t *testing.T) {
	srv, store := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodPost, "/categories", url.Values{"name": {"Travel"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Travel") || !strings.Contains(rr.Header().Get("HX-Trigger"), "Created category Travel") {
		t.Fatalf("new category should render its group: %s", rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "form:reset") {
		t.Errorf("category form should be reset: %s", rr.Header().Get("HX-Trigger"))
	}

	rr = do(t, srv, http.MethodPost, "/categories", url.Values{"name": {"Housing"}})
	if rr.Code != http.StatusOK || rr.Header().Get("HX-Refresh") != "true" {
		t.Fatalf("existing category should refresh the page: code=%d headers=%v", rr.Code, rr.Header())
	}

	rows, _ := store.ListExpenses(context.Background())
	if len(rows) != 3 {
		t.Fatalf("expected 3 expense rows, got %d", len(rows))
	}
}

func TestSubscriptionPurchaseIncomeHandlers(t *testing.T) {
	srv, store := newTestServer(t, Options{})
	ctx := context.Background()

	steps := []struct {
		path    string
		form    url.Values
		trigger string
	}{
		{"/subscriptions", nil, "Added subscription 2"},
		{"/subscriptions/2", url.Values{"name": {"Video"}, "amount": {"15"}, "frequency": {"Monthly"}}, "Subscription 2 saved!"},
		{"/subscriptions/1/delete", nil, "Deleted subscription 1"},
		{"/purchases", nil, "Added planned purchase 2"},
		{"/purchases/2", url.Values{"name": {"Bike"}, "cost": {"600"}, "amortization": {"Semi-Annually"}}, "Planned purchase 2 saved!"},
		{"/purchases/1/delete", nil, "Deleted planned purchase 1"},
		{"/income", nil, "Added income source 2"},
		{"/income/2", url.Values{"job_title": {"Consultant"}, "salary": {"5000"}, "frequency": {"Monthly"}, "salary_tax_rate": {"20%"}, "total_comp_tax_rate": {"0.2"}}, "Income source 2 saved!"},
		{"/income/1/delete", nil, "Deleted income source 1"},
	}
	for _, step := range steps {
		rr := do(t, srv, http.MethodPost, step.path, step.form)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", step.path, rr.Code, rr.Body.String())
		}
		if !strings.Contains(rr.Header().Get("HX-Trigger"), step.trigger) {
			t.Fatalf("%s trigger=%s, want %q", step.path, rr.Header().Get("HX-Trigger"), step.trigger)
		}
	}

	subs, _ := store.ListSubscriptions(ctx)
	if len(subs) != 1 || subs[0].Name != "Video" || !subs[0].Amount.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("unexpected subscriptions: %+v", subs)
	}
	purchases, _ := store.ListPurchases(ctx)
	if len(purchases) != 1 || purchases[0].Amortization != core.SemiAnnually {
		t.Fatalf("unexpected purchases: %+v", purchases)
	}
	income, _ := store.ListIncome(ctx)
	if len(income) != 1 || income[0].JobTitle != "Consultant" || !income[0].SalaryTaxRate.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("unexpected income: %+v", income)
	}

	rr := do(t, srv, http.MethodPost, "/income/2", url.Values{"job_title": {"Consultant"}, "salary_tax_rate": {"150%"}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("rate above 100%% should be rejected, got %d", rr.Code)
	}
	rr = do(t, srv, http.MethodPost, "/income/2/archive", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown income action should 404, got %d", rr.Code)
	}
}

func TestIncomeSelection(t *testing.T) {
	srv, store := newTestServer(t, Options{})
	if _, err := store.AddIncome(context.Background(), core.IncomeSource{JobTitle: "Designer", Frequency: core.Annually}); err != nil {
		t.Fatal(err)
	}

	rr := do(t, srv, http.MethodGet, "/income", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Source 1") {
		t.Fatalf("income page should show slot 1: %d", rr.Code)
	}

	rr = do(t, srv, http.MethodPost, "/income/selection", url.Values{"job_title": {"Designer"}})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Source 2") {
		t.Fatalf("add slot: %d %s", rr.Code, rr.Body.String())
	}
	if got := srv.selection.Slots(); len(got) != 2 || got[1].JobTitle != "Designer" {
		t.Fatalf("unexpected slots: %+v", got)
	}

	rr = do(t, srv, http.MethodPost, "/income/selection/1", url.Values{"job_title": {"Designer"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("set slot: %d", rr.Code)
	}
	rr = do(t, srv, http.MethodPost, "/income/selection/9", url.Values{"job_title": {"Designer"}})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown slot should 404, got %d", rr.Code)
	}

	rr = do(t, srv, http.MethodPost, "/income/selection/2/delete", nil)
	if rr.Code != http.StatusOK || len(srv.selection.Slots()) != 1 {
		t.Fatalf("remove slot: %d slots=%+v", rr.Code, srv.selection.Slots())
	}
	rr = do(t, srv, http.MethodPost, "/income/selection/1/delete", nil)
	if rr.Code != http.StatusOK || len(srv.selection.Slots()) != 1 {
		t.Fatalf("last slot must stay: %+v", srv.selection.Slots())
	}

	rr = do(t, srv, http.MethodPost, "/income/selection/reset", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("reset: %d", rr.Code)
	}
	if got := srv.selection.Slots(); len(got) != 1 || got[0].ID != 1 || got[0].JobTitle != "Engineer" {
		t.Fatalf("reset should leave slot 1 on the first source: %+v", got)
	}
}

func TestPlans(t *testing.T) {
	srv, store := newTestServer(t, Options{})
	ctx := context.Background()

	rr := do(t, srv, http.MethodPost, "/plans", url.Values{"name": {"Base Line"}})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Base Line") {
		t.Fatalf("save plan: %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodPost, "/plans", url.Values{"name": {"bad/name"}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid plan name should be 422, got %d", rr.Code)
	}

	if err := store.DeleteExpense(ctx, 1); err != nil {
		t.Fatal(err)
	}
	rr = do(t, srv, http.MethodPost, "/plans/Base%20Line/reset", nil)
	if rr.Code != http.StatusOK || rr.Header().Get("HX-Refresh") != "true" {
		t.Fatalf("reset plan: %d %v", rr.Code, rr.Header())
	}
	rows, _ := store.ListExpenses(ctx)
	if len(rows) != 1 || rows[0].Name != "Rent" {
		t.Fatalf("reset should restore the expense: %+v", rows)
	}

	rr = do(t, srv, http.MethodPost, "/plans/Nope/delete", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown plan should 404, got %d", rr.Code)
	}
	rr = do(t, srv, http.MethodPost, "/plans/Base%20Line/delete", nil)
	if rr.Code != http.StatusOK || strings.Contains(rr.Body.String(), "Base Line") {
		t.Fatalf("delete plan: %d %s", rr.Code, rr.Body.String())
	}
}

func TestAPISummary(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodGet, "/api/summary", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type %q", ct)
	}

	var got apiSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	checks := map[string]struct{ got, want decimal.Decimal }{
		"total expense":    {got.TotalExpense, decimal.NewFromInt(14520)},
		"surplus":          {got.AnnualSurplus, decimal.NewFromInt(82480)},
		"after tax":        {got.Income.TotalCompPostTax, decimal.NewFromInt(97000)},
		"expenses monthly": {got.Expenses.Periods["Monthly"], decimal.NewFromInt(1000)},
	}
	for name, c := range checks {
		if !c.got.Equal(c.want) {
			t.Errorf("%s = %s, want %s", name, c.got, c.want)
		}
	}
	if len(got.Categories) != 1 || got.Categories[0].Category != "Housing" {
		t.Errorf("unexpected categories: %+v", got.Categories)
	}
}

func TestMetricsAndSummaryCache(t *testing.T) {
	summaries := cache.NewLRUCache[services.Summary](4, time.Minute)
	srv, _ := newTestServer(t, Options{SummaryCache: summaries})

	do(t, srv, http.MethodGet, "/api/summary", nil)
	do(t, srv, http.MethodGet, "/api/summary", nil)
	do(t, srv, http.MethodPost, "/subscriptions", nil)

	rr := do(t, srv, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"http_requests_total",
		"budget_mutations_total 1",
		"summary_cache_hits_total 1",
		"# TYPE uptime_seconds gauge",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q:\n%s", want, body)
		}
	}

	srv.InvalidateSummary(sheets.TableExpenses)
	if summaries.Size() != 0 {
		t.Fatalf("external change should purge the summary cache")
	}
}

func TestTrustedProxiesFromOptions(t *testing.T) {
	srv, _ := newTestServer(t, Options{TrustedProxies: []string{"203.0.113.0/24", "not-a-cidr"}})

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.RemoteAddr = "203.0.113.9:4000"
	r.Header.Set("X-Forwarded-For", "198.51.100.7, 203.0.113.9")
	if got := srv.detector.ExtractClientIP(r); got != "198.51.100.7" {
		t.Errorf("client IP = %q, want the forwarded address", got)
	}

	r.RemoteAddr = "192.0.2.1:4000"
	if got := srv.detector.ExtractClientIP(r); got != "192.0.2.1" {
		t.Errorf("client IP = %q, untrusted peers must not set it", got)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	srv, _ := newTestServer(t, Options{SummaryCache: cache.NewLRUCache[services.Summary](1, time.Minute)})
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
