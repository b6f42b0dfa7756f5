package santander

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/source"
)

func holdingsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "santander.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing holdings: %v", err)
	}
	return path
}

func TestFetchPositions(t *testing.T) {
	path := holdingsFile(t, `{"funds": [
		{"fund_id": 14, "quantity": "1500.5", "name": "Super Ahorro $"},
		{"id": "27", "symbol": "srenta", "quantity": 10, "currency": "USD"},
		{"quantity": 5}
	]}`)

	c := NewClient("http://unused", path)
	got, err := c.FetchPositions(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("positions = %d, want 2 (entry without fund id dropped)", len(got))
	}
	if got[0].Asset != "SANTANDER_14" || got[0].Quantity != "1500.5" || got[0].Description != "Super Ahorro $" {
		t.Errorf("first = %+v", got[0])
	}
	if got[0].InstrumentType != string(domain.InstrumentFund) {
		t.Errorf("InstrumentType = %q, want fund", got[0].InstrumentType)
	}
	if got[1].Asset != "SRENTA" || got[1].Currency != "USD" {
		t.Errorf("second = %+v", got[1])
	}
}

func TestFetchPriceKnownFund(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fondosInformacion/funds/27/detail" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if _, err := uuid.Parse(r.Header.Get("X-San-Correlationid")); err != nil {
			t.Errorf("correlation id = %q, want uuid", r.Header.Get("X-San-Correlationid"))
		}
		if r.Header.Get("Channel-Name") != "webpublic" {
			t.Errorf("channel-name header missing")
		}
		w.Write([]byte(`{"data":{"currentShareValue":"12.345678","currentShareValueDate":"2024-06-28","name":"Renta Fija"}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, holdingsFile(t, `[{"fund_id":"27","symbol":"SRENTA","quantity":1}]`))
	if _, err := c.FetchPositions(context.Background(), "acc-1"); err != nil {
		t.Fatalf("FetchPositions: %v", err)
	}

	q, err := c.FetchPrice(context.Background(), "srenta", "ARS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q == nil {
		t.Fatal("expected quote")
	}
	if !q.Price.Equal(decimal.RequireFromString("12.345678")) || q.PriceType != domain.PriceTypeNAV || q.Currency != "ARS" {
		t.Errorf("quote = %+v", q)
	}
	if want := time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC); !q.AsOf.Equal(want) {
		t.Errorf("AsOf = %v, want %v", q.AsOf, want)
	}
}

func TestFetchPriceDerivesFundIDFromSymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fondosInformacion/funds/99/detail" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":{"currentShareValue":3.5}}`))
	}))
	defer server.Close()

	fixed := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	c := NewClient(server.URL, "")
	c.now = func() time.Time { return fixed }

	q, err := c.FetchPrice(context.Background(), "SANTANDER_99", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q == nil || q.Currency != "ARS" || !q.AsOf.Equal(fixed) {
		t.Errorf("quote = %+v", q)
	}
}

func TestFetchPriceUnknownSymbolMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	q, err := NewClient(server.URL, "").FetchPrice(context.Background(), "GGAL", "ARS")
	if q != nil || err != nil {
		t.Errorf("FetchPrice = %v, %v, want nil, nil", q, err)
	}
	if calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", calls.Load())
	}
}

func TestFetchPriceMissingShareValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	q, err := NewClient(server.URL, "").FetchPrice(context.Background(), "SANTANDER_1", "ARS")
	if q != nil || err != nil {
		t.Errorf("FetchPrice = %v, %v, want nil, nil", q, err)
	}
}

func TestFetchPriceForbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "").FetchPrice(context.Background(), "SANTANDER_1", "ARS")
	if !errors.Is(err, source.ErrAuth) {
		t.Errorf("error = %v, want auth error", err)
	}
}
