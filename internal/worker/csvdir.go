package worker

import (
	"context"

	"budgetdash/internal/sheets"
	"budgetdash/internal/sheets/csvfile"
)

// CSVDirExporter writes the tables with the same codec as the csv backend.
type CSVDirExporter struct {
	dir string
}

func NewCSVDirExporter(dir string) *CSVDirExporter {
	return &CSVDirExporter{dir: dir}
}

func (e *CSVDirExporter) Name() string { return "csvdir" }

func (e *CSVDirExporter) Export(ctx context.Context, snap sheets.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return csvfile.WriteDir(e.dir, snap)
}
