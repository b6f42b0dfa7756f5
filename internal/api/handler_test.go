package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/export"
	"github.com/mtlprog/holdings/internal/snapshot"
)

type mockSnapshotService struct {
	snapshots     map[string][]domain.Snapshot
	generateErr   error
	lastListLimit int
	generatedAt   time.Time
}

func (m *mockSnapshotService) Generate(_ context.Context, accountID string, at time.Time) (domain.Snapshot, error) {
	m.generatedAt = at
	if m.generateErr != nil {
		return domain.Snapshot{}, m.generateErr
	}
	return domain.Snapshot{ID: uuid.New(), AccountID: accountID, TakenAt: at}, nil
}

func (m *mockSnapshotService) Latest(_ context.Context, accountID string) (*domain.Snapshot, error) {
	list := m.snapshots[accountID]
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

func (m *mockSnapshotService) List(_ context.Context, accountID string, limit int) ([]snapshot.Header, error) {
	m.lastListLimit = limit
	list := m.snapshots[accountID]
	headers := make([]snapshot.Header, 0, len(list))
	for _, s := range list[:min(limit, len(list))] {
		headers = append(headers, snapshot.Header{ID: s.ID, AccountID: s.AccountID, TakenAt: s.TakenAt})
	}
	return headers, nil
}

type recordingHook struct {
	calls int
}

func (h *recordingHook) Name() string { return "recording" }

func (h *recordingHook) AfterSnapshot(context.Context, domain.Snapshot) error {
	h.calls++
	return nil
}

func seeded() *mockSnapshotService {
	return &mockSnapshotService{snapshots: map[string][]domain.Snapshot{
		"acc-1": {
			{ID: uuid.New(), AccountID: "acc-1", TakenAt: time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)},
			{ID: uuid.New(), AccountID: "acc-1", TakenAt: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)},
		},
	}}
}

func serve(t *testing.T, mux http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestGetLatestSnapshotSuccess(t *testing.T) {
	mux := NewMux(NewHandler(seeded()), "")

	w := serve(t, mux, httptest.NewRequest(http.MethodGet, "/api/v1/accounts/acc-1/snapshots/latest", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var snap domain.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.TakenAt.Day() != 16 {
		t.Errorf("taken_at = %v, want newest", snap.TakenAt)
	}
}

func TestGetLatestSnapshotNotFound(t *testing.T) {
	mux := NewMux(NewHandler(seeded()), "")

	w := serve(t, mux, httptest.NewRequest(http.MethodGet, "/api/v1/accounts/other/snapshots/latest", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetLatestWorkbook(t *testing.T) {
	mux := NewMux(NewHandler(seeded()), "")

	w := serve(t, mux, httptest.NewRequest(http.MethodGet, "/api/v1/accounts/acc-1/snapshots/latest.xlsx", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	want := `attachment; filename="holdings_acc-1_20250116T000000Z.xlsx"`
	if got := w.Header().Get("Content-Disposition"); got != want {
		t.Errorf("Content-Disposition = %q, want %q", got, want)
	}
	f, err := excelize.OpenReader(w.Body)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer func() { _ = f.Close() }()
	if sheets := f.GetSheetList(); len(sheets) != 4 || sheets[0] != export.SheetValuations {
		t.Errorf("sheets = %v", sheets)
	}
}

func TestListSnapshotsLimits(t *testing.T) {
	tests := []struct {
		query      string
		wantStatus int
		wantLimit  int
	}{
		{"", http.StatusOK, snapshot.DefaultListLimit},
		{"?limit=1", http.StatusOK, 1},
		{"?limit=1000", http.StatusOK, snapshot.MaxListLimit},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			svc := seeded()
			mux := NewMux(NewHandler(svc), "")

			w := serve(t, mux, httptest.NewRequest(http.MethodGet, "/api/v1/accounts/acc-1/snapshots"+tt.query, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if svc.lastListLimit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", svc.lastListLimit, tt.wantLimit)
			}
		})
	}
}

func TestListSnapshotsEmptyIsArray(t *testing.T) {
	mux := NewMux(NewHandler(seeded()), "")

	w := serve(t, mux, httptest.NewRequest(http.MethodGet, "/api/v1/accounts/nobody/snapshots", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestGenerateSnapshotRunsHooks(t *testing.T) {
	svc := seeded()
	hook := &recordingHook{}
	h := NewHandler(svc, hook)
	h.now = func() time.Time { return time.Date(2025, 2, 1, 10, 0, 0, 500, time.UTC) }
	mux := NewMux(h, "secret")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/acc-1/snapshots/generate", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := serve(t, mux, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if hook.calls != 1 {
		t.Errorf("hook calls = %d, want 1", hook.calls)
	}
	if !svc.generatedAt.Equal(time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("generated at %v, want truncated to the second", svc.generatedAt)
	}
}

func TestGenerateSnapshotErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("saving: %w", snapshot.ErrDuplicateSnapshot), http.StatusConflict},
		{snapshot.ErrEmptyAccount, http.StatusBadRequest},
		{errors.New("database down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			hook := &recordingHook{}
			mux := NewMux(NewHandler(&mockSnapshotService{generateErr: tt.err}, hook), "")

			w := serve(t, mux, httptest.NewRequest(http.MethodPost, "/api/v1/accounts/acc-1/snapshots/generate", nil))

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if hook.calls != 0 {
				t.Errorf("hooks ran after a failed generation")
			}
		})
	}
}

func TestGenerateSnapshotRequiresAuth(t *testing.T) {
	mux := NewMux(NewHandler(seeded()), "secret")

	w := serve(t, mux, httptest.NewRequest(http.MethodPost, "/api/v1/accounts/acc-1/snapshots/generate", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	mux := NewMux(NewHandler(seeded()), "")

	w := serve(t, mux, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestNewHandlerPanicsOnNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewHandler(nil)
}
