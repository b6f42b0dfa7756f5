package export

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/mtlprog/holdings/internal/domain"
)

// SheetHistory accumulates one row per snapshot.
const SheetHistory = "HISTORY"

// historyCol describes one column of the HISTORY sheet.
type historyCol struct {
	header string
	money  bool
	value  func(domain.Snapshot) any
}

// historyColumns defines the fixed columns; per-currency totals follow them.
var historyColumns = []historyCol{
	{header: "Taken At", value: func(s domain.Snapshot) any { return s.TakenAt.UTC().Format("2006-01-02 15:04:05") }},
	{header: "Account", value: func(s domain.Snapshot) any { return s.AccountID }},
	{header: "Positions", value: func(s domain.Snapshot) any { return s.Totals.Positions }},
	{header: "OK", value: func(s domain.Snapshot) any { return s.Totals.OKCount }},
	{header: "Stale", value: func(s domain.Snapshot) any { return s.Totals.StaleCount }},
	{header: "Missing", value: func(s domain.Snapshot) any { return s.Totals.MissingInputCount }},
	{header: "Base CCY", value: func(s domain.Snapshot) any { return s.Totals.BaseCurrency }},
	{header: "Total Base", money: true, value: func(s domain.Snapshot) any {
		if s.Totals.BaseCurrency == "" {
			return nil
		}
		return toFloat(s.Totals.TotalBase)
	}},
	{header: "Sources Failed", value: func(s domain.Snapshot) any {
		_, _, failed := s.Summary.SourceCounts()
		return failed
	}},
}

// historyCurrencies is the set of currencies given their own total column, in order.
var historyCurrencies = []string{"ARS", "USD", "USDT", "EUR"}

// buildHistoryRows builds the header row and the data row for one snapshot.
func buildHistoryRows(snap domain.Snapshot) (header []any, data []any) {
	header = make([]any, 0, len(historyColumns)+len(historyCurrencies))
	data = make([]any, 0, cap(header))

	for _, col := range historyColumns {
		header = append(header, col.header)
		data = append(data, col.value(snap))
	}
	for _, ccy := range historyCurrencies {
		header = append(header, "Total "+ccy)
		if v, ok := snap.Totals.ByCurrency[ccy]; ok {
			data = append(data, toFloat(v))
		} else {
			data = append(data, float64(0))
		}
	}
	return header, data
}

// historyWidth is the number of HISTORY columns.
func historyWidth() int {
	return len(historyColumns) + len(historyCurrencies)
}

// AppendHistory ensures the HISTORY sheet exists, writes the header if the sheet
// is new or empty, then appends one data row for the snapshot.
func (w *SheetsWriter) AppendHistory(ctx context.Context, snap domain.Snapshot) error {
	meta, err := w.ensureSheets(ctx, SheetHistory)
	if err != nil {
		return fmt.Errorf("ensuring %s sheet: %w", SheetHistory, err)
	}

	header, dataRow := buildHistoryRows(snap)
	lastCol := columnName(historyWidth())

	existing, err := w.svc.Spreadsheets.Values.Get(w.spreadsheetID, SheetHistory+"!A1:A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("reading %s header: %w", SheetHistory, err)
	}

	if len(existing.Values) == 0 {
		_, err = w.svc.Spreadsheets.Values.Update(
			w.spreadsheetID,
			SheetHistory+"!A1",
			&sheets.ValueRange{Values: [][]any{header}},
		).ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("writing %s header: %w", SheetHistory, err)
		}
		if err := w.formatHistory(ctx, meta[SheetHistory]); err != nil {
			return fmt.Errorf("formatting %s sheet: %w", SheetHistory, err)
		}
	}

	_, err = w.svc.Spreadsheets.Values.Append(
		w.spreadsheetID,
		SheetHistory+"!A:"+lastCol,
		&sheets.ValueRange{Values: [][]any{dataRow}},
	).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appending %s row: %w", SheetHistory, err)
	}

	return nil
}

// historyMoneyCols returns the 0-based columns that hold money amounts.
func historyMoneyCols() []int {
	cols := lo.FilterMap(historyColumns, func(c historyCol, i int) (int, bool) { return i, c.money })
	for i := range historyCurrencies {
		cols = append(cols, len(historyColumns)+i)
	}
	return cols
}

// formatHistory gives the header a light-green bold look, freezes it and
// formats the money columns.
func (w *SheetsWriter) formatHistory(ctx context.Context, hist sheetMeta) error {
	lightGreen := &sheets.Color{Red: 0.851, Green: 0.918, Blue: 0.827}
	width := int64(historyWidth())

	reqs := []*sheets.Request{
		cellFormatReq(hist.id, 0, 1, 0, width,
			&sheets.CellFormat{
				BackgroundColor:     lightGreen,
				TextFormat:          &sheets.TextFormat{Bold: true},
				HorizontalAlignment: "CENTER",
			},
			"userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)"),
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:        hist.id,
					GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
	}
	for _, col := range historyMoneyCols() {
		reqs = append(reqs, cellFormatReq(hist.id, 1, 100000, int64(col), int64(col+1),
			&sheets.CellFormat{NumberFormat: &sheets.NumberFormat{Type: "NUMBER", Pattern: "#,##0.00"}},
			"userEnteredFormat.numberFormat"))
	}

	_, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: reqs},
	).Context(ctx).Do()
	return err
}
