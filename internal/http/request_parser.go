// Package http serves the budget dashboard.
//
// This file implements utilities for parsing and validating HTTP request data.
// Handlers accept either form-encoded bodies (htmx) or JSON objects with the
// same keys.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"budgetdash/internal/core"
	"budgetdash/internal/middleware/security"
	"budgetdash/internal/services"
)

const maxBodyBytes = 1 << 20

var (
	// ErrBadRequest marks malformed requests; it maps to 400.
	ErrBadRequest = errors.New("invalid request format")
	// ErrSuspiciousInput marks form values that look like markup or script.
	ErrSuspiciousInput = errors.New("input contains disallowed characters")
)

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a trimmed, sanitized value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Has reports whether key was sent at all.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	return p.formData != nil && p.formData.Has(key)
}

func (p *RequestBodyParser) ContentType() string {
	return p.contentType
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// formReader reads typed fields from a parsed body and remembers the first
// field that failed the markup check.
type formReader struct {
	p          *RequestBodyParser
	detector   *security.Detector
	suspicious string
}

func newFormReader(r *http.Request, detector *security.Detector) (*formReader, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return &formReader{p: p, detector: detector}, nil
}

func (f *formReader) String(key string) string {
	v := f.p.Get(key)
	if f.suspicious == "" && f.detector != nil && f.detector.DetectSuspiciousInput(v) {
		f.suspicious = key
	}
	return v
}

func (f *formReader) Amount(key string) (decimal.Decimal, error) {
	v, err := core.ParseAmount(f.p.Get(key))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func (f *formReader) Rate(key string) (decimal.Decimal, error) {
	v, err := core.ParseRate(f.p.Get(key))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func (f *formReader) Date(key string) (core.Date, error) {
	return core.ParseDate(f.p.Get(key))
}

// Bool reads a checkbox: present with "on", "true", "1" or "yes".
func (f *formReader) Bool(key string) bool {
	switch strings.ToLower(f.p.Get(key)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// Err reports the first suspicious field, if any.
func (f *formReader) Err() error {
	if f.suspicious != "" {
		return fmt.Errorf("%w: %s", ErrSuspiciousInput, f.suspicious)
	}
	return nil
}

// pathID reads a positive integer path value such as {id}.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s %q", ErrBadRequest, name, raw)
	}
	return id, nil
}

func parseExpenseUpdate(f *formReader, id int64) (services.ExpenseUpdate, error) {
	u := services.ExpenseUpdate{
		ID:            id,
		Name:          f.String("name"),
		Frequency:     core.Frequency(f.String("frequency")),
		TaxDeductible: f.Bool("tax_deductible"),
		Notes:         f.String("notes"),
		Status:        core.ParseStatus(f.String("status")),
	}
	var err error
	if u.Amount, err = f.Amount("amount"); err != nil {
		return u, err
	}
	if u.Date, err = f.Date("date"); err != nil {
		return u, err
	}
	return u, f.Err()
}

func parseSubscription(f *formReader, id int64) (core.Subscription, error) {
	sub := core.Subscription{
		ID:            id,
		Name:          f.String("name"),
		Frequency:     core.Frequency(f.String("frequency")),
		TaxDeductible: f.Bool("tax_deductible"),
		Notes:         f.String("notes"),
		Status:        core.ParseStatus(f.String("status")),
	}
	var err error
	if sub.Amount, err = f.Amount("amount"); err != nil {
		return sub, err
	}
	if sub.Date, err = f.Date("date"); err != nil {
		return sub, err
	}
	return sub, f.Err()
}

func parsePurchase(f *formReader, id int64) (core.PlannedPurchase, error) {
	p := core.PlannedPurchase{
		ID:           id,
		Name:         f.String("name"),
		Amortization: core.Frequency(f.String("amortization")),
		Notes:        f.String("notes"),
		Status:       core.ParseStatus(f.String("status")),
	}
	var err error
	if p.Cost, err = f.Amount("cost"); err != nil {
		return p, err
	}
	if p.Date, err = f.Date("date"); err != nil {
		return p, err
	}
	return p, f.Err()
}

func parseIncome(f *formReader, id int64) (core.IncomeSource, error) {
	in := core.IncomeSource{
		ID:        id,
		JobTitle:  f.String("job_title"),
		Frequency: core.Frequency(f.String("frequency")),
	}
	var err error
	if in.Salary, err = f.Amount("salary"); err != nil {
		return in, err
	}
	if in.Bonus, err = f.Amount("bonus"); err != nil {
		return in, err
	}
	if in.SalaryTaxRate, err = f.Rate("salary_tax_rate"); err != nil {
		return in, err
	}
	if in.TotalCompTaxRate, err = f.Rate("total_comp_tax_rate"); err != nil {
		return in, err
	}
	return in, f.Err()
}
