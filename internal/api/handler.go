package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/export"
	"github.com/mtlprog/holdings/internal/pipeline"
	"github.com/mtlprog/holdings/internal/snapshot"
	"github.com/mtlprog/holdings/internal/worker"
)

// SnapshotService is the part of snapshot.Service the handlers use.
type SnapshotService interface {
	Generate(ctx context.Context, accountID string, at time.Time) (domain.Snapshot, error)
	Latest(ctx context.Context, accountID string) (*domain.Snapshot, error)
	List(ctx context.Context, accountID string, limit int) ([]snapshot.Header, error)
}

// Handler provides HTTP endpoints for the holdings API.
type Handler struct {
	snapshots SnapshotService
	hooks     []worker.AfterSnapshotHook
	now       func() time.Time
}

// NewHandler creates a new API handler. Hooks run after an on-demand generation.
func NewHandler(snapshots SnapshotService, hooks ...worker.AfterSnapshotHook) *Handler {
	if snapshots == nil {
		panic("api.NewHandler: snapshots is nil")
	}
	return &Handler{snapshots: snapshots, hooks: hooks, now: time.Now}
}

// GetLatestSnapshot handles GET /api/v1/accounts/{account}/snapshots/latest.
func (h *Handler) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.latest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetLatestWorkbook handles GET /api/v1/accounts/{account}/snapshots/latest.xlsx.
func (h *Handler) GetLatestWorkbook(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.latest(w, r)
	if !ok {
		return
	}

	f, err := export.Render(export.BuildReport(*snap))
	if err != nil {
		slog.Error("failed to render workbook", "account", snap.AccountID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer func() { _ = f.Close() }()

	filename := fmt.Sprintf("holdings_%s_%s.xlsx", snap.AccountID, snap.TakenAt.UTC().Format("20060102T150405Z"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		slog.Warn("failed to write workbook response", "error", err)
	}
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) (*domain.Snapshot, bool) {
	account, ok := accountParam(w, r)
	if !ok {
		return nil, false
	}

	snap, err := h.snapshots.Latest(r.Context(), account)
	if err != nil {
		slog.Error("failed to get latest snapshot", "account", account, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no snapshots found")
		return nil, false
	}
	return snap, true
}

// ListSnapshots handles GET /api/v1/accounts/{account}/snapshots.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}

	limit := snapshot.DefaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = snapshot.ClampLimit(n)
	}

	headers, err := h.snapshots.List(r.Context(), account, limit)
	if err != nil {
		slog.Error("failed to list snapshots", "account", account, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if headers == nil {
		headers = []snapshot.Header{}
	}
	writeJSON(w, http.StatusOK, headers)
}

// GenerateSnapshot handles POST /api/v1/accounts/{account}/snapshots/generate.
func (h *Handler) GenerateSnapshot(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}

	at := h.now().UTC().Truncate(time.Second)
	snap, err := h.snapshots.Generate(r.Context(), account, at)
	if err != nil {
		switch {
		case errors.Is(err, snapshot.ErrDuplicateSnapshot):
			writeError(w, http.StatusConflict, "snapshot already exists for this timestamp")
		case errors.Is(err, pipeline.ErrEmptyAccount), errors.Is(err, snapshot.ErrEmptyAccount):
			writeError(w, http.StatusBadRequest, "account id is required")
		default:
			slog.Error("failed to generate snapshot", "account", account, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to generate snapshot")
		}
		return
	}

	worker.RunHooks(r.Context(), snap, h.hooks...)
	writeJSON(w, http.StatusCreated, snap)
}

func accountParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	account := strings.TrimSpace(r.PathValue("account"))
	if account == "" {
		writeError(w, http.StatusBadRequest, "account id is required")
		return "", false
	}
	return account, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
