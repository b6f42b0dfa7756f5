package export

import (
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

// Sheet names written for every snapshot.
const (
	SheetValuations = "VALUATIONS"
	SheetPrices     = "PRICES"
	SheetTotals     = "TOTALS"
	SheetSources    = "SOURCES"
)

// Grid is one named sheet of cell values, header row first.
type Grid struct {
	Name string
	Rows [][]any
}

// Report is the tabular rendering of a snapshot shared by every writer.
type Report struct {
	Snapshot domain.Snapshot
	Grids    []Grid
}

// BuildReport renders a snapshot into its sheets.
func BuildReport(snap domain.Snapshot) Report {
	return Report{
		Snapshot: snap,
		Grids: []Grid{
			{Name: SheetValuations, Rows: buildValuations(snap.Valuations)},
			{Name: SheetPrices, Rows: buildPrices(snap.Prices)},
			{Name: SheetTotals, Rows: buildTotals(snap.Totals)},
			{Name: SheetSources, Rows: buildSources(snap.Summary)},
		},
	}
}

// Columns: Symbol | Description | Type | Market | Source | Quantity | Currency | Price | Price CCY |
// Price Source | Quality | Price As Of | Valuation | FX | Value Base | Share % | Status
func buildValuations(rows []domain.ValuationRow) [][]any {
	data := make([][]any, 0, len(rows)+1)
	data = append(data, []any{
		"Symbol", "Description", "Type", "Market", "Source",
		"Quantity", "Currency", "Price", "Price CCY", "Price Source", "Quality", "Price As Of",
		"Valuation", "FX", "Value Base", "Share %", "Status",
	})

	for _, r := range rows {
		p := r.Position
		data = append(data, []any{
			p.Symbol, p.Description, string(p.InstrumentType), p.Market, p.Source,
			toFloat(p.Quantity), p.Currency,
			ptrFloat(r.Price), r.PriceCurrency, r.PriceSource, qualityCell(r.QualityScore), timeCell(r.PriceAsOf),
			ptrFloat(r.Valuation), ptrFloat(r.FXRate), ptrFloat(r.ValueBase), ptrFloat(r.PortfolioSharePct),
			string(r.Status),
		})
	}
	return data
}

// Columns: Symbol | Currency | Venue | Source | Type | Price | Quality | As Of
func buildPrices(prices []domain.PriceRecord) [][]any {
	data := [][]any{{"Symbol", "Currency", "Venue", "Source", "Type", "Price", "Quality", "As Of"}}
	for _, p := range prices {
		data = append(data, []any{
			p.Symbol, p.Currency, p.Venue, p.Source, string(p.PriceType),
			toFloat(p.Price), p.QualityScore, p.AsOf.UTC().Format(time.RFC3339),
		})
	}
	return data
}

// Columns: Group | Currency | Value. Count rows follow the currency sums.
func buildTotals(t domain.Totals) [][]any {
	data := [][]any{{"Group", "Currency", "Value"}}

	for _, ccy := range sortedKeys(t.ByCurrency) {
		data = append(data, []any{"total", ccy, toFloat(t.ByCurrency[ccy])})
	}

	types := lo.Keys(t.ByInstrumentType)
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, it := range types {
		byCcy := t.ByInstrumentType[it]
		for _, ccy := range sortedKeys(byCcy) {
			data = append(data, []any{string(it), ccy, toFloat(byCcy[ccy])})
		}
	}

	if t.BaseCurrency != "" {
		data = append(data, []any{"base", t.BaseCurrency, toFloat(t.TotalBase)})
	}

	data = append(data,
		[]any{"positions", "", t.Positions},
		[]any{"ok", "", t.OKCount},
		[]any{"stale", "", t.StaleCount},
		[]any{"missing_input", "", t.MissingInputCount},
	)
	if t.UnconvertedCount > 0 {
		data = append(data, []any{"unconverted", "", t.UnconvertedCount})
	}
	return data
}

// Columns: Source | Status | Positions | Error Kind | Reason
func buildSources(s domain.RunSummary) [][]any {
	data := [][]any{{"Source", "Status", "Positions", "Error Kind", "Reason"}}
	for _, o := range s.Sources {
		data = append(data, []any{o.Name, string(o.Status), o.Records, o.ErrorKind, o.Reason})
	}
	data = append(data,
		[]any{"invalid_records", "", s.InvalidRecords, "", ""},
		[]any{"prices_resolved", "", s.PricesResolved, "", ""},
		[]any{"prices_missing", "", s.PricesMissing, "", ""},
	)
	return data
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func ptrFloat(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return toFloat(*d)
}

func qualityCell(q int) any {
	if q == 0 {
		return nil
	}
	return q
}

func timeCell(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// fileStamp formats a snapshot time for file names.
func fileStamp(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
