package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"budgetdash/internal/core"
	blog "budgetdash/internal/log"
	"budgetdash/internal/services"
	"budgetdash/internal/sheets"
)

// validationErrors are rejected with 422 and shown to the user verbatim.
var validationErrors = []error{
	core.ErrInvalidAmount,
	core.ErrInvalidRate,
	core.ErrInvalidStatus,
	core.ErrInvalidDate,
	core.ErrEmptyName,
	core.ErrEmptyCategory,
	core.ErrNameTooLong,
	services.ErrInvalidCategoryName,
	services.ErrInvalidPlanName,
}

// statusFor maps an error to its HTTP status and banner text.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrSuspiciousInput):
		return http.StatusBadRequest, userMessage(err)
	case errors.Is(err, sheets.ErrNotFound), errors.Is(err, services.ErrUnknownSlot):
		return http.StatusNotFound, "That row no longer exists."
	case errors.Is(err, sheets.ErrPlanNotFound):
		return http.StatusNotFound, "That budget plan does not exist."
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity, userMessage(err)
		}
	}
	return http.StatusInternalServerError, "Something went wrong. Please try again."
}

// fail writes the error banner for err; server errors are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, operation string) {
	status, msg := statusFor(err)
	logger := blog.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		blog.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err,
			blog.ComponentHTTP, operation, blog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", "", ""))
	} else {
		logger.WithComponent(blog.ComponentHTTP).InfoContext(r.Context(), "Request rejected",
			blog.FieldError, err, blog.FieldOperation, operation, blog.FieldStatusCode, status)
	}
	errorResponse(status, msg).Write(w)
}

func errorResponse(status int, msg string) *HTMXResponseBuilder {
	switch status {
	case http.StatusBadRequest:
		return BadRequestError(msg)
	case http.StatusNotFound:
		return NotFoundError(msg)
	case http.StatusUnprocessableEntity:
		return UnprocessableEntityError(msg)
	case http.StatusInternalServerError:
		return InternalServerError(msg).TriggerErrorNotification(msg)
	default:
		return ErrorResponse(status, msg)
	}
}

// success answers a mutation with the fragment from render, a notification
// and a change trigger for fragments that listen for it. If the fragment
// cannot be rendered the page is asked to reload instead.
func (s *Server) success(w http.ResponseWriter, r *http.Request, table, message string, render func(context.Context) (string, error)) {
	s.respond(w, r, NewHTMXResponse(), table, message, render)
}

// respond is success with extra triggers or headers already set on resp.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, resp *HTMXResponseBuilder, table, message string, render func(context.Context) (string, error)) {
	s.countMutation()
	resp.
		TriggerTableChanged(table).
		TriggerSuccessNotification(message)

	if render != nil {
		html, err := render(r.Context())
		if err != nil {
			blog.FromContext(r.Context()).WithComponent(blog.ComponentTemplate).WarnContext(r.Context(),
				"Fragment render failed after change", blog.FieldError, err, blog.FieldTable, table)
			resp.Refresh()
		} else {
			resp.BodyHTML(html)
		}
	}
	resp.Write(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	health := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// handleReady checks templates and, when the backend can be probed, the
// backend itself.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.ready != nil {
		if err := s.ready.Ping(ctx); err != nil {
			checks["backend"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["backend"] = "ok"
		}
	} else {
		checks["backend"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in Prometheus
// text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()

	w.WriteHeader(http.StatusOK)

	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", name, help, name, name, v)
	}

	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	counter("http_client_errors_total", "Responses with a 4xx status", traceMetrics.ClientErrors)
	counter("http_server_errors_total", "Responses with a 5xx status", traceMetrics.ServerErrors)
	gauge("http_response_time_avg_microseconds", "Average response time", traceMetrics.AverageResponseTime)
	counter("budget_mutations_total", "Successful table mutations", atomic.LoadInt64(&s.mutations))
	counter("rate_limit_hits_total", "Requests rejected by the rate limiter", rateLimitMetrics.TotalHits)
	gauge("active_rate_limit_clients", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	counter("suspicious_requests_total", "Suspicious requests detected", securityMetrics.SuspiciousRequests)
	counter("suspicious_inputs_total", "Form values rejected as markup", securityMetrics.SuspiciousInputs)

	if s.summaryCache != nil {
		stats := s.summaryCache.Stats()
		counter("summary_cache_hits_total", "Summary cache hits", stats.Hits)
		counter("summary_cache_misses_total", "Summary cache misses", stats.Misses)
		gauge("summary_cache_entries", "Current summary cache entries", int64(stats.Entries))
	}

	gauge("uptime_seconds", "Application uptime in seconds", int64(time.Since(s.started).Seconds()))
}

type (
	apiIncome struct {
		SalaryPreTax     decimal.Decimal `json:"salary_pre_tax"`
		SalaryTaxes      decimal.Decimal `json:"salary_taxes"`
		SalaryPostTax    decimal.Decimal `json:"salary_post_tax"`
		BonusPreTax      decimal.Decimal `json:"bonus_pre_tax"`
		BonusTaxes       decimal.Decimal `json:"bonus_taxes"`
		BonusPostTax     decimal.Decimal `json:"bonus_post_tax"`
		TotalCompPreTax  decimal.Decimal `json:"total_comp_pre_tax"`
		TotalTaxes       decimal.Decimal `json:"total_taxes"`
		TotalCompPostTax decimal.Decimal `json:"total_comp_post_tax"`
	}

	apiPlan struct {
		Total   decimal.Decimal            `json:"annual_total"`
		Periods map[string]decimal.Decimal `json:"per_period"`
		Rows    int                        `json:"rows"`
	}

	apiCategory struct {
		Category string          `json:"category"`
		Annual   decimal.Decimal `json:"annual"`
		Monthly  decimal.Decimal `json:"monthly"`
		Rows     int             `json:"rows"`
	}

	apiShare struct {
		Label   string          `json:"label"`
		Annual  decimal.Decimal `json:"annual"`
		Percent decimal.Decimal `json:"percent"`
	}

	apiSummary struct {
		Income             apiIncome       `json:"income"`
		Expenses           apiPlan         `json:"expenses"`
		Subscriptions      apiPlan         `json:"subscriptions"`
		Purchases          apiPlan         `json:"planned_purchases"`
		TotalExpense       decimal.Decimal `json:"total_annual_expense"`
		AnnualSurplus      decimal.Decimal `json:"annual_surplus"`
		Categories         []apiCategory   `json:"categories"`
		SuperCategories    []apiShare      `json:"super_categories"`
		Essentials         []apiShare      `json:"essentials"`
		SubscriptionShares []apiShare      `json:"subscription_shares"`
	}
)

func toAPIPlan(p core.Plan) apiPlan {
	return apiPlan{Total: p.Total, Periods: p.PeriodTotals, Rows: len(p.Lines)}
}

func toAPIShares(shares []core.Share) []apiShare {
	out := make([]apiShare, 0, len(shares))
	for _, sh := range shares {
		out = append(out, apiShare{Label: sh.Label, Annual: sh.Annual, Percent: sh.Percent})
	}
	return out
}

func toAPISummary(sum services.Summary) apiSummary {
	in := sum.Budget.Income
	out := apiSummary{
		Income: apiIncome{
			SalaryPreTax:     in.SalaryPreTax,
			SalaryTaxes:      in.SalaryTaxes,
			SalaryPostTax:    in.SalaryPostTax,
			BonusPreTax:      in.BonusPreTax,
			BonusTaxes:       in.BonusTaxes,
			BonusPostTax:     in.BonusPostTax,
			TotalCompPreTax:  in.TotalCompPreTax,
			TotalTaxes:       in.TotalTaxes,
			TotalCompPostTax: in.TotalCompPostTax,
		},
		Expenses:           toAPIPlan(sum.Budget.Expenses),
		Subscriptions:      toAPIPlan(sum.Budget.Subscriptions),
		Purchases:          toAPIPlan(sum.Budget.Purchases),
		TotalExpense:       sum.Budget.TotalExpense(),
		AnnualSurplus:      sum.Budget.AnnualSurplus(),
		Categories:         make([]apiCategory, 0, len(sum.Categories)),
		SuperCategories:    toAPIShares(sum.SuperCategories),
		Essentials:         toAPIShares(sum.Essentials),
		SubscriptionShares: toAPIShares(sum.SubscriptionShares),
	}
	for _, g := range sum.Categories {
		out.Categories = append(out.Categories, apiCategory{
			Category: g.Category,
			Annual:   g.Annual,
			Monthly:  g.MonthlyTotal,
			Rows:     len(g.Expenses),
		})
	}
	return out
}

// handleAPISummary returns the derived budget as JSON. Decimals are encoded
// as strings to keep their precision.
func (s *Server) handleAPISummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.summary(r.Context())
	if err != nil {
		s.fail(w, r, err, blog.OpRead)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(toAPISummary(sum))
}
