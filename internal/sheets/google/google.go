// Package google mirrors budget snapshots into a Google Sheets spreadsheet,
// one tab per table.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gsheet "google.golang.org/api/sheets/v4"

	"budgetdash/internal/sheets"
	"budgetdash/internal/sheets/csvfile"
)

// Tab titles, keyed by table name.
var tabTitles = map[string]string{
	sheets.TableExpenses:      "Budget Data",
	sheets.TableSubscriptions: "Subscriptions",
	sheets.TablePurchases:     "Planned Purchases",
	sheets.TableIncome:        "Income",
}

// Exporter rewrites every tab on each export: clear, then header and rows.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
}

// New builds an exporter authenticated per opts.
func New(ctx context.Context, opts Options) (*Exporter, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing Google spreadsheet ID")
	}
	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, opts.SpreadsheetID), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID string) *Exporter {
	return &Exporter{svc: svc, spreadsheetID: strings.TrimSpace(spreadsheetID)}
}

func (e *Exporter) Name() string { return "google" }

func (e *Exporter) Export(ctx context.Context, snap sheets.Snapshot) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}
	tables := csvfile.Encode(snap)

	if err := e.ensureTabs(ctx, tables); err != nil {
		return err
	}

	ranges := make([]string, 0, len(tables))
	data := make([]*gsheet.ValueRange, 0, len(tables))
	for _, t := range tables {
		title := tabTitles[t.Table]
		ranges = append(ranges, quoteTab(title))
		data = append(data, &gsheet.ValueRange{
			Range:  quoteTab(title) + "!A1",
			Values: values(t.Header, t.Rows),
		})
	}

	clearReq := &gsheet.BatchClearValuesRequest{Ranges: ranges}
	if _, err := e.svc.Spreadsheets.Values.BatchClear(e.spreadsheetID, clearReq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear tabs: %w", err)
	}

	update := &gsheet.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}
	resp, err := e.svc.Spreadsheets.Values.BatchUpdate(e.spreadsheetID, update).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write tabs: %w", err)
	}

	slog.DebugContext(ctx, "Google Sheets export written",
		"spreadsheet_id", e.spreadsheetID,
		"updated_cells", resp.TotalUpdatedCells,
		"taken_at", snap.TakenAt.Format(time.RFC3339))
	return nil
}

// ensureTabs adds any missing tab in a single batch update.
func (e *Exporter) ensureTabs(ctx context.Context, tables []csvfile.EncodedTable) error {
	ss, err := e.svc.Spreadsheets.Get(e.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	existing := make(map[string]bool, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			existing[sh.Properties.Title] = true
		}
	}

	var requests []*gsheet.Request
	for _, t := range tables {
		title := tabTitles[t.Table]
		if existing[title] {
			continue
		}
		requests = append(requests, &gsheet.Request{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		})
	}
	if len(requests) == 0 {
		return nil
	}

	batch := &gsheet.BatchUpdateSpreadsheetRequest{Requests: requests}
	if _, err := e.svc.Spreadsheets.BatchUpdate(e.spreadsheetID, batch).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tabs: %w", err)
	}
	slog.InfoContext(ctx, "Created missing spreadsheet tabs", "count", len(requests))
	return nil
}

func values(header []string, rows [][]string) [][]any {
	out := make([][]any, 0, len(rows)+1)
	out = append(out, row(header))
	for _, r := range rows {
		out = append(out, row(r))
	}
	return out
}

func row(cells []string) []any {
	out := make([]any, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}

// quoteTab wraps a tab title for A1 notation; embedded quotes are doubled.
func quoteTab(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
