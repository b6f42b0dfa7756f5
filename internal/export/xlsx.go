package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// WorkbookWriter implements Writer by saving one .xlsx workbook per snapshot.
type WorkbookWriter struct {
	dir string
}

// NewWorkbookWriter creates a WorkbookWriter that saves under dir.
func NewWorkbookWriter(dir string) *WorkbookWriter {
	return &WorkbookWriter{dir: dir}
}

func (w *WorkbookWriter) Name() string { return "xlsx" }

// Path returns where the workbook for the report is saved.
func (w *WorkbookWriter) Path(report Report) string {
	snap := report.Snapshot
	file := fmt.Sprintf("holdings_%s_%s.xlsx", snap.AccountID, fileStamp(snap.TakenAt))
	return filepath.Join(w.dir, snap.AccountID, file)
}

// Write renders the report and saves it to Path.
func (w *WorkbookWriter) Write(_ context.Context, report Report) error {
	f, err := Render(report)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	path := w.Path(report)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

// Render builds an in-memory workbook with one sheet per grid, headers in bold.
func Render(report Report) (*excelize.File, error) {
	f := excelize.NewFile()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9EAD3"}},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	for i, grid := range report.Grids {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, grid.Name); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("renaming sheet: %w", err)
			}
		} else if _, err := f.NewSheet(grid.Name); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("creating sheet %s: %w", grid.Name, err)
		}

		if err := writeGrid(f, grid, header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeGrid(f *excelize.File, grid Grid, headerStyle int) error {
	width := 0
	for i, row := range grid.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(grid.Name, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", grid.Name, i+1, err)
		}
		width = max(width, len(row))
	}
	if len(grid.Rows) == 0 || width == 0 {
		return nil
	}

	last, err := excelize.CoordinatesToCellName(width, 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(grid.Name, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("styling %s header: %w", grid.Name, err)
	}
	return f.SetPanes(grid.Name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
