package csvfile

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"budgetdash/internal/core"
)

// File names inside the data directory.
const (
	ExpensesFile      = "budget_data.csv"
	SubscriptionsFile = "subscriptions.csv"
	PurchasesFile     = "planned_purchases.csv"
	IncomeFile        = "income.csv"
)

// utf8BOM is written at the top of every file so spreadsheet tools keep
// emoji and accented category names intact.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Column headers.
const (
	colID            = "ID"
	colDate          = "Date"
	colCategory      = "Category"
	colSuperCategory = "Super Category"
	colName          = "Name"
	colAmount        = "Amount"
	colFrequency     = "Frequency"
	colTaxDeductible = "Tax Deductible"
	colNotes         = "Notes"
	colStatus        = "Status"

	colSubscriptionName = "Subscription/ Recurring Expense"
	colCost             = "Cost"
	colAmortization     = "Amortization Method"

	colJobTitle         = "Job Title"
	colSalary           = "Salary"
	colBonus            = "Bonus"
	colTotalComp        = "Total Compensation"
	colSalaryTaxRate    = "Salary Effective Tax Rate"
	colTotalCompTaxRate = "Total Compensation Effective Tax Rate"
)

var (
	expenseHeader      = []string{colID, colDate, colCategory, colSuperCategory, colName, colAmount, colFrequency, colTaxDeductible, colNotes, colStatus}
	subscriptionHeader = []string{colID, colDate, colSubscriptionName, colAmount, colFrequency, colTaxDeductible, colNotes, colStatus}
	purchaseHeader     = []string{colID, colDate, colName, colCost, colAmortization, colNotes, colStatus}
	incomeHeader       = []string{colID, colJobTitle, colSalary, colFrequency, colBonus, colTotalComp, colSalaryTaxRate, colTotalCompTaxRate}
)

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("missing column")

// table is a parsed CSV file whose cells are looked up by header name, so
// files written by other tools may order or omit optional columns freely.
type table struct {
	index map[string]int
	rows  [][]string
}

func readTable(r io.Reader, required ...string) (*table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}

	t := &table{index: make(map[string]int)}
	if len(records) == 0 {
		return t, nil
	}
	for i, h := range records[0] {
		t.index[strings.TrimSpace(h)] = i
	}
	for _, col := range required {
		if _, ok := t.index[col]; !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, col)
		}
	}
	t.rows = records[1:]
	return t, nil
}

func (t *table) cell(row []string, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// rowError numbers data rows the way a spreadsheet does: the header is row 1.
func rowError(i int, err error) error {
	return fmt.Errorf("row %d: %w", i+2, err)
}

func writeTable(w io.Writer, header []string, rows [][]string) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("writing BOM: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// parseID accepts "7" as well as the "7.0" a dataframe writes once the
// column has held a blank. A blank ID is reported as zero so the caller can
// assign one.
func parseID(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil || !v.Equal(v.Truncate(0)) {
		return 0, fmt.Errorf("parsing ID %q", s)
	}
	return v.IntPart(), nil
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("parsing boolean %q: %w", s, err)
	}
	return b, nil
}

func parseAmount(col, s string) (decimal.Decimal, error) {
	v, err := core.ParseAmount(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s %q: %w", col, s, err)
	}
	return v, nil
}

func parseRate(col, s string) (decimal.Decimal, error) {
	v, err := core.ParseRate(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s %q: %w", col, s, err)
	}
	return v, nil
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// assignIDs gives rows without an ID the next free one, in file order.
func assignIDs(ids []int64) {
	next := core.NextID(ids...)
	for i := range ids {
		if ids[i] == 0 {
			ids[i] = next
			next++
		}
	}
}

// ReadExpenses reads budget_data.csv.
func ReadExpenses(r io.Reader) ([]core.Expense, error) {
	t, err := readTable(r, colCategory, colName, colAmount)
	if err != nil {
		return nil, err
	}

	out := make([]core.Expense, 0, len(t.rows))
	ids := make([]int64, 0, len(t.rows))
	for i, row := range t.rows {
		e, err := unmarshalExpense(t, row)
		if err != nil {
			return nil, rowError(i, err)
		}
		out = append(out, e)
		ids = append(ids, e.ID)
	}
	assignIDs(ids)
	for i := range out {
		out[i].ID = ids[i]
	}
	return out, nil
}

func unmarshalExpense(t *table, row []string) (core.Expense, error) {
	id, err := parseID(t.cell(row, colID))
	if err != nil {
		return core.Expense{}, err
	}
	date, err := core.ParseDate(t.cell(row, colDate))
	if err != nil {
		return core.Expense{}, err
	}
	amount, err := parseAmount(colAmount, t.cell(row, colAmount))
	if err != nil {
		return core.Expense{}, err
	}
	deductible, err := parseBool(t.cell(row, colTaxDeductible))
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		ID:            id,
		Date:          date,
		Category:      t.cell(row, colCategory),
		SuperCategory: t.cell(row, colSuperCategory),
		Name:          t.cell(row, colName),
		Amount:        amount,
		Frequency:     core.Frequency(t.cell(row, colFrequency)),
		TaxDeductible: deductible,
		Notes:         t.cell(row, colNotes),
		Status:        core.ParseStatus(t.cell(row, colStatus)),
	}, nil
}

// WriteExpenses writes budget_data.csv.
func WriteExpenses(w io.Writer, expenses []core.Expense) error {
	return writeTable(w, expenseHeader, expenseRows(expenses))
}

func expenseRows(expenses []core.Expense) [][]string {
	rows := make([][]string, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.Date.String(),
			e.Category,
			e.SuperCategory,
			e.Name,
			e.Amount.StringFixed(2),
			string(e.Frequency),
			formatBool(e.TaxDeductible),
			e.Notes,
			string(e.Status),
		})
	}
	return rows
}

// ReadSubscriptions reads subscriptions.csv.
func ReadSubscriptions(r io.Reader) ([]core.Subscription, error) {
	t, err := readTable(r, colSubscriptionName, colAmount)
	if err != nil {
		return nil, err
	}

	out := make([]core.Subscription, 0, len(t.rows))
	ids := make([]int64, 0, len(t.rows))
	for i, row := range t.rows {
		id, err := parseID(t.cell(row, colID))
		if err != nil {
			return nil, rowError(i, err)
		}
		date, err := core.ParseDate(t.cell(row, colDate))
		if err != nil {
			return nil, rowError(i, err)
		}
		amount, err := parseAmount(colAmount, t.cell(row, colAmount))
		if err != nil {
			return nil, rowError(i, err)
		}
		deductible, err := parseBool(t.cell(row, colTaxDeductible))
		if err != nil {
			return nil, rowError(i, err)
		}
		out = append(out, core.Subscription{
			ID:            id,
			Date:          date,
			Name:          t.cell(row, colSubscriptionName),
			Amount:        amount,
			Frequency:     core.Frequency(t.cell(row, colFrequency)),
			TaxDeductible: deductible,
			Notes:         t.cell(row, colNotes),
			Status:        core.ParseStatus(t.cell(row, colStatus)),
		})
		ids = append(ids, id)
	}
	assignIDs(ids)
	for i := range out {
		out[i].ID = ids[i]
	}
	return out, nil
}

// WriteSubscriptions writes subscriptions.csv.
func WriteSubscriptions(w io.Writer, subs []core.Subscription) error {
	return writeTable(w, subscriptionHeader, subscriptionRows(subs))
}

func subscriptionRows(subs []core.Subscription) [][]string {
	rows := make([][]string, 0, len(subs))
	for _, s := range subs {
		rows = append(rows, []string{
			strconv.FormatInt(s.ID, 10),
			s.Date.String(),
			s.Name,
			s.Amount.StringFixed(2),
			string(s.Frequency),
			formatBool(s.TaxDeductible),
			s.Notes,
			string(s.Status),
		})
	}
	return rows
}

// ReadPurchases reads planned_purchases.csv.
func ReadPurchases(r io.Reader) ([]core.PlannedPurchase, error) {
	t, err := readTable(r, colName, colCost)
	if err != nil {
		return nil, err
	}

	out := make([]core.PlannedPurchase, 0, len(t.rows))
	ids := make([]int64, 0, len(t.rows))
	for i, row := range t.rows {
		id, err := parseID(t.cell(row, colID))
		if err != nil {
			return nil, rowError(i, err)
		}
		date, err := core.ParseDate(t.cell(row, colDate))
		if err != nil {
			return nil, rowError(i, err)
		}
		cost, err := parseAmount(colCost, t.cell(row, colCost))
		if err != nil {
			return nil, rowError(i, err)
		}
		out = append(out, core.PlannedPurchase{
			ID:           id,
			Date:         date,
			Name:         t.cell(row, colName),
			Cost:         cost,
			Amortization: core.Frequency(t.cell(row, colAmortization)),
			Notes:        t.cell(row, colNotes),
			Status:       core.ParseStatus(t.cell(row, colStatus)),
		})
		ids = append(ids, id)
	}
	assignIDs(ids)
	for i := range out {
		out[i].ID = ids[i]
	}
	return out, nil
}

// WritePurchases writes planned_purchases.csv.
func WritePurchases(w io.Writer, purchases []core.PlannedPurchase) error {
	return writeTable(w, purchaseHeader, purchaseRows(purchases))
}

func purchaseRows(purchases []core.PlannedPurchase) [][]string {
	rows := make([][]string, 0, len(purchases))
	for _, p := range purchases {
		rows = append(rows, []string{
			strconv.FormatInt(p.ID, 10),
			p.Date.String(),
			p.Name,
			p.Cost.StringFixed(2),
			string(p.Amortization),
			p.Notes,
			string(p.Status),
		})
	}
	return rows
}

// ReadIncome reads income.csv. The derived Total Compensation column is
// ignored; it is recomputed on write.
func ReadIncome(r io.Reader) ([]core.IncomeSource, error) {
	t, err := readTable(r, colJobTitle, colSalary)
	if err != nil {
		return nil, err
	}

	out := make([]core.IncomeSource, 0, len(t.rows))
	ids := make([]int64, 0, len(t.rows))
	for i, row := range t.rows {
		id, err := parseID(t.cell(row, colID))
		if err != nil {
			return nil, rowError(i, err)
		}
		salary, err := parseAmount(colSalary, t.cell(row, colSalary))
		if err != nil {
			return nil, rowError(i, err)
		}
		bonus, err := parseAmount(colBonus, t.cell(row, colBonus))
		if err != nil {
			return nil, rowError(i, err)
		}
		salaryRate, err := parseRate(colSalaryTaxRate, t.cell(row, colSalaryTaxRate))
		if err != nil {
			return nil, rowError(i, err)
		}
		compRate, err := parseRate(colTotalCompTaxRate, t.cell(row, colTotalCompTaxRate))
		if err != nil {
			return nil, rowError(i, err)
		}
		out = append(out, core.IncomeSource{
			ID:               id,
			JobTitle:         t.cell(row, colJobTitle),
			Salary:           salary,
			Frequency:        core.Frequency(t.cell(row, colFrequency)),
			Bonus:            bonus,
			SalaryTaxRate:    salaryRate,
			TotalCompTaxRate: compRate,
		})
		ids = append(ids, id)
	}
	assignIDs(ids)
	for i := range out {
		out[i].ID = ids[i]
	}
	return out, nil
}

// WriteIncome writes income.csv.
func WriteIncome(w io.Writer, sources []core.IncomeSource) error {
	return writeTable(w, incomeHeader, incomeRows(sources))
}

func incomeRows(sources []core.IncomeSource) [][]string {
	rows := make([][]string, 0, len(sources))
	for _, s := range sources {
		rows = append(rows, []string{
			strconv.FormatInt(s.ID, 10),
			s.JobTitle,
			s.Salary.StringFixed(2),
			string(s.Frequency),
			s.Bonus.StringFixed(2),
			s.TotalCompensation().StringFixed(2),
			s.SalaryTaxRate.String(),
			s.TotalCompTaxRate.String(),
		})
	}
	return rows
}
