package archive

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

// Decimal columns are written as strings so no precision is lost.

type valuationRecord struct {
	SnapshotID        string  `parquet:"name=snapshot_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	AccountID         string  `parquet:"name=account_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	TakenAt           int64   `parquet:"name=taken_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Symbol            string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	InstrumentType    string  `parquet:"name=instrument_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Market            string  `parquet:"name=market, type=BYTE_ARRAY, convertedtype=UTF8"`
	Source            string  `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	Quantity          string  `parquet:"name=quantity, type=BYTE_ARRAY, convertedtype=UTF8"`
	Currency          string  `parquet:"name=currency, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price             *string `parquet:"name=price, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	PriceCurrency     string  `parquet:"name=price_currency, type=BYTE_ARRAY, convertedtype=UTF8"`
	PriceSource       string  `parquet:"name=price_source, type=BYTE_ARRAY, convertedtype=UTF8"`
	QualityScore      int32   `parquet:"name=quality_score, type=INT32"`
	Valuation         *string `parquet:"name=valuation, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ValueBase         *string `parquet:"name=value_base, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	PortfolioSharePct *string `parquet:"name=portfolio_share_pct, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Status            string  `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type positionRecord struct {
	SnapshotID     string `parquet:"name=snapshot_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	AccountID      string `parquet:"name=account_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	TakenAt        int64  `parquet:"name=taken_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Symbol         string `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Description    string `parquet:"name=description, type=BYTE_ARRAY, convertedtype=UTF8"`
	InstrumentType string `parquet:"name=instrument_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Market         string `parquet:"name=market, type=BYTE_ARRAY, convertedtype=UTF8"`
	Source         string `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	Quantity       string `parquet:"name=quantity, type=BYTE_ARRAY, convertedtype=UTF8"`
	Currency       string `parquet:"name=currency, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type priceRecord struct {
	SnapshotID   string `parquet:"name=snapshot_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	AccountID    string `parquet:"name=account_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol       string `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Currency     string `parquet:"name=currency, type=BYTE_ARRAY, convertedtype=UTF8"`
	Venue        string `parquet:"name=venue, type=BYTE_ARRAY, convertedtype=UTF8"`
	Source       string `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	PriceType    string `parquet:"name=price_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price        string `parquet:"name=price, type=BYTE_ARRAY, convertedtype=UTF8"`
	QualityScore int32  `parquet:"name=quality_score, type=INT32"`
	AsOf         int64  `parquet:"name=as_of, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

type fxRecord struct {
	SnapshotID string `parquet:"name=snapshot_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	AccountID  string `parquet:"name=account_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	TakenAt    int64  `parquet:"name=taken_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	FromCcy    string `parquet:"name=from_ccy, type=BYTE_ARRAY, convertedtype=UTF8"`
	ToCcy      string `parquet:"name=to_ccy, type=BYTE_ARRAY, convertedtype=UTF8"`
	Rate       string `parquet:"name=rate, type=BYTE_ARRAY, convertedtype=UTF8"`
	Source     string `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	AsOf       int64  `parquet:"name=as_of, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

func valuationRecords(snap domain.Snapshot) []valuationRecord {
	id, takenAt := snap.ID.String(), snap.TakenAt.UnixMilli()
	return lo.Map(snap.Valuations, func(r domain.ValuationRow, _ int) valuationRecord {
		p := r.Position
		return valuationRecord{
			SnapshotID:        id,
			AccountID:         snap.AccountID,
			TakenAt:           takenAt,
			Symbol:            p.Symbol,
			InstrumentType:    string(p.InstrumentType),
			Market:            p.Market,
			Source:            p.Source,
			Quantity:          p.Quantity.String(),
			Currency:          p.Currency,
			Price:             decString(r.Price),
			PriceCurrency:     r.PriceCurrency,
			PriceSource:       r.PriceSource,
			QualityScore:      int32(r.QualityScore),
			Valuation:         decString(r.Valuation),
			ValueBase:         decString(r.ValueBase),
			PortfolioSharePct: decString(r.PortfolioSharePct),
			Status:            string(r.Status),
		}
	})
}

func positionRecords(snap domain.Snapshot) []positionRecord {
	id, takenAt := snap.ID.String(), snap.TakenAt.UnixMilli()
	return lo.Map(snap.Positions, func(p domain.Position, _ int) positionRecord {
		return positionRecord{
			SnapshotID:     id,
			AccountID:      snap.AccountID,
			TakenAt:        takenAt,
			Symbol:         p.Symbol,
			Description:    p.Description,
			InstrumentType: string(p.InstrumentType),
			Market:         p.Market,
			Source:         p.Source,
			Quantity:       p.Quantity.String(),
			Currency:       p.Currency,
		}
	})
}

func priceRecords(snap domain.Snapshot) []priceRecord {
	id := snap.ID.String()
	return lo.Map(snap.Prices, func(p domain.PriceRecord, _ int) priceRecord {
		return priceRecord{
			SnapshotID:   id,
			AccountID:    snap.AccountID,
			Symbol:       p.Symbol,
			Currency:     p.Currency,
			Venue:        p.Venue,
			Source:       p.Source,
			PriceType:    string(p.PriceType),
			Price:        p.Price.String(),
			QualityScore: int32(p.QualityScore),
			AsOf:         p.AsOf.UnixMilli(),
		}
	})
}

func fxRecords(snap domain.Snapshot) []fxRecord {
	id, takenAt := snap.ID.String(), snap.TakenAt.UnixMilli()
	return lo.Map(snap.FXRates, func(r domain.FXRate, _ int) fxRecord {
		return fxRecord{
			SnapshotID: id,
			AccountID:  snap.AccountID,
			TakenAt:    takenAt,
			FromCcy:    r.From,
			ToCcy:      r.To,
			Rate:       r.Rate.String(),
			Source:     r.Source,
			AsOf:       r.AsOf.UnixMilli(),
		}
	})
}

func decString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	return lo.ToPtr(d.String())
}
