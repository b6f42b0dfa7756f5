package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"

	"github.com/mtlprog/holdings/internal/domain"
)

// bytesFile is a read-only parquet source over an encoded file.
type bytesFile struct {
	data []byte
	*bytes.Reader
}

func newBytesFile(data []byte) *bytesFile {
	return &bytesFile{data: data, Reader: bytes.NewReader(data)}
}

func (f *bytesFile) Create(string) (source.ParquetFile, error) { return nil, errors.New("read only") }
func (f *bytesFile) Open(string) (source.ParquetFile, error)   { return newBytesFile(f.data), nil }
func (f *bytesFile) Write([]byte) (int, error)                 { return 0, errors.New("read only") }
func (f *bytesFile) Close() error                              { return nil }

func testSnapshot() domain.Snapshot {
	takenAt := time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC)
	price := decimal.RequireFromString("50000.12345678")
	value := decimal.RequireFromString("100000.24691356")
	btc := domain.Position{
		AccountID: "acc-1", Symbol: "BTC", InstrumentType: domain.InstrumentCrypto,
		Market: "crypto", Source: "binance", Quantity: decimal.RequireFromString("2"), Currency: "USDT",
	}
	ggal := domain.Position{
		AccountID: "acc-1", Symbol: "GGAL", InstrumentType: domain.InstrumentEquity,
		Market: "BCBA", Source: "iol", Quantity: decimal.RequireFromString("10"), Currency: "ARS",
	}
	return domain.Snapshot{
		ID:        uuid.MustParse("2b1d3c4e-0000-4000-8000-000000000001"),
		AccountID: "acc-1",
		TakenAt:   takenAt,
		Positions: []domain.Position{btc, ggal},
		Prices: []domain.PriceRecord{{
			Symbol: "BTC", Currency: "USDT", Venue: "BINANCE", Source: "binance",
			PriceType: domain.PriceTypeLast, Price: price, QualityScore: domain.QualityBinance, AsOf: takenAt,
		}},
		Valuations: []domain.ValuationRow{
			{Position: btc, Price: &price, PriceCurrency: "USDT", PriceSource: "binance",
				QualityScore: domain.QualityBinance, Valuation: &value, Status: domain.StatusOK},
			{Position: ggal, Status: domain.StatusMissingInput},
		},
		FXRates: []domain.FXRate{{
			From: "USD", To: "ARS", Rate: decimal.RequireFromString("1200.5"),
			Source: "dolarapi_blue_venta", AsOf: takenAt.Add(-time.Hour),
		}},
	}
}

type memStore struct {
	name    string
	err     error
	objects map[string][]byte
}

func newMemStore(name string) *memStore {
	return &memStore{name: name, objects: map[string][]byte{}}
}

func (m *memStore) Name() string { return m.name }

func (m *memStore) Put(_ context.Context, key string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.objects[key] = data
	return nil
}

func TestObjectKey(t *testing.T) {
	got := ObjectKey(ResourceValuations, testSnapshot(), "abc")
	want := "valuations/dt=2025-06-07/account=acc-1/abc.parquet"
	if got != want {
		t.Errorf("key = %s, want %s", got, want)
	}
}

func TestArchiverWritesEveryResource(t *testing.T) {
	store := newMemStore("mem")
	a := NewArchiver("snappy", store)
	a.newID = func() string { return "fixed" }

	if err := a.AfterSnapshot(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("AfterSnapshot: %v", err)
	}

	for _, resource := range []string{ResourceValuations, ResourcePositions, ResourcePrices, ResourceFX} {
		key := resource + "/dt=2025-06-07/account=acc-1/fixed.parquet"
		data, ok := store.objects[key]
		if !ok {
			t.Errorf("missing object %s (have %d)", key, len(store.objects))
			continue
		}
		if !bytes.HasPrefix(data, []byte("PAR1")) || !bytes.HasSuffix(data, []byte("PAR1")) {
			t.Errorf("%s is not a parquet file", key)
		}
	}
}

func TestValuationParquetRoundTrip(t *testing.T) {
	rows := valuationRecords(testSnapshot())
	data, err := encode(rows, new(valuationRecord), compressionCodec("snappy"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	pr, err := reader.NewParquetReader(newBytesFile(data), new(valuationRecord), 1)
	if err != nil {
		t.Fatalf("NewParquetReader: %v", err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
	got := make([]valuationRecord, n)
	if err := pr.Read(&got); err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got[0].Symbol != "BTC" || got[0].Price == nil || *got[0].Price != "50000.12345678" {
		t.Errorf("BTC row = %+v", got[0])
	}
	if got[0].Valuation == nil || *got[0].Valuation != "100000.24691356" {
		t.Errorf("BTC valuation = %v", got[0].Valuation)
	}
	if got[1].Price != nil || got[1].Status != "missing_input" {
		t.Errorf("GGAL row = %+v", got[1])
	}
}

func TestFXParquetRoundTrip(t *testing.T) {
	snap := testSnapshot()
	data, err := encode(fxRecords(snap), new(fxRecord), compressionCodec("gzip"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	pr, err := reader.NewParquetReader(newBytesFile(data), new(fxRecord), 1)
	if err != nil {
		t.Fatalf("NewParquetReader: %v", err)
	}
	defer pr.ReadStop()

	got := make([]fxRecord, int(pr.GetNumRows()))
	if err := pr.Read(&got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("rows = %d, want 1", len(got))
	}
	r := got[0]
	if r.FromCcy != "USD" || r.ToCcy != "ARS" || r.Rate != "1200.5" || r.Source != "dolarapi_blue_venta" {
		t.Errorf("fx row = %+v", r)
	}
	if r.AsOf != snap.TakenAt.Add(-time.Hour).UnixMilli() || r.SnapshotID != snap.ID.String() {
		t.Errorf("fx row ids/time = %s %d", r.SnapshotID, r.AsOf)
	}
}

func TestArchiverSkipsEmptyResources(t *testing.T) {
	store := newMemStore("mem")
	a := NewArchiver("none", store)

	snap := testSnapshot()
	snap.Prices = nil
	if err := a.AfterSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("AfterSnapshot: %v", err)
	}
	for key := range store.objects {
		if strings.HasPrefix(key, ResourcePrices+"/") {
			t.Errorf("unexpected prices object %s", key)
		}
	}
	if len(store.objects) != 3 {
		t.Errorf("objects = %d, want 3", len(store.objects))
	}
}

func TestArchiverContinuesAfterStoreFailure(t *testing.T) {
	broken := newMemStore("s3")
	broken.err = errors.New("access denied")
	local := newMemStore("local")
	a := NewArchiver("gzip", broken, local)

	err := a.AfterSnapshot(context.Background(), testSnapshot())
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("err = %v, want access denied", err)
	}
	if len(local.objects) != 4 {
		t.Errorf("local objects = %d, want 4", len(local.objects))
	}
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)

	if err := s.Put(context.Background(), "valuations/dt=2025-06-07/account=acc-1/x.parquet", []byte("PAR1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "valuations", "dt=2025-06-07", "account=acc-1", "x.parquet"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "PAR1" {
		t.Errorf("data = %q", data)
	}
}

type mockPutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (m *mockPutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.inputs = append(m.inputs, in)
	body, _ := io.ReadAll(in.Body)
	m.bodies = append(m.bodies, body)
	if m.err != nil {
		return nil, m.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3StorePrefixesKey(t *testing.T) {
	putter := &mockPutter{}
	s := newS3Store(putter, "holdings", "/snapshots/")

	if err := s.Put(context.Background(), "prices/dt=2025-06-07/account=acc-1/x.parquet", []byte("data")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(putter.inputs) != 1 {
		t.Fatalf("calls = %d, want 1", len(putter.inputs))
	}
	in := putter.inputs[0]
	if *in.Bucket != "holdings" {
		t.Errorf("bucket = %s", *in.Bucket)
	}
	if *in.Key != "snapshots/prices/dt=2025-06-07/account=acc-1/x.parquet" {
		t.Errorf("key = %s", *in.Key)
	}
	if string(putter.bodies[0]) != "data" {
		t.Errorf("body = %q", putter.bodies[0])
	}
}

func TestS3StoreError(t *testing.T) {
	s := newS3Store(&mockPutter{err: errors.New("no such bucket")}, "holdings", "")
	err := s.Put(context.Background(), "k", nil)
	if err == nil || !strings.Contains(err.Error(), "s3://holdings/k") {
		t.Errorf("err = %v", err)
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), S3Config{}); err == nil {
		t.Error("expected error for empty bucket")
	}
}

func TestCompressionCodec(t *testing.T) {
	tests := map[string]string{
		"":       "SNAPPY",
		"Snappy": "SNAPPY",
		"gzip":   "GZIP",
		"none":   "UNCOMPRESSED",
	}
	for in, want := range tests {
		if got := compressionCodec(in).String(); got != want {
			t.Errorf("compressionCodec(%q) = %s, want %s", in, got, want)
		}
	}
}
