package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/holdings/internal/domain"
)

// ErrDuplicateSnapshot is returned when a snapshot already exists for the same account and timestamp.
var ErrDuplicateSnapshot = errors.New("snapshot already exists for this timestamp")

const (
	DefaultListLimit = 30
	MaxListLimit     = 365

	uniqueViolation = "23505"
)

// Header is the listing view of a stored snapshot.
type Header struct {
	ID           uuid.UUID `json:"id"`
	AccountID    string    `json:"account_id"`
	TakenAt      time.Time `json:"taken_at"`
	OKCount      int       `json:"ok_count"`
	MissingCount int       `json:"missing_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository is an append-only snapshot store.
type Repository interface {
	Save(ctx context.Context, snap domain.Snapshot) error
	Latest(ctx context.Context, accountID string) (*domain.Snapshot, error)
	List(ctx context.Context, accountID string, limit int) ([]Header, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL snapshot repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Save stores the snapshot document and its price records in one transaction.
// Saving a second snapshot for the same account and timestamp fails with ErrDuplicateSnapshot.
func (r *PgRepository) Save(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO valuation_snapshots (id, account_id, taken_at, data, ok_count, missing_count)
		 VALUES ($1, $2, $3, $4::jsonb, $5, $6)`,
		snap.ID, snap.AccountID, snap.TakenAt, data, snap.Totals.OKCount, snap.Totals.MissingInputCount)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("account %s at %s: %w", snap.AccountID, snap.TakenAt.Format(time.RFC3339), ErrDuplicateSnapshot)
		}
		return fmt.Errorf("saving snapshot: %w", err)
	}

	if len(snap.Prices) > 0 {
		batch := &pgx.Batch{}
		for _, p := range snap.Prices {
			batch.Queue(
				`INSERT INTO price_records (snapshot_id, symbol, currency, venue, source, price_type, price, quality_score, as_of, account_id)
				 VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10)`,
				snap.ID, p.Symbol, p.Currency, p.Venue, p.Source, p.PriceType, p.Price.String(), p.QualityScore, p.AsOf, p.AccountID)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("saving price records: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot for the account, or nil when none exists.
func (r *PgRepository) Latest(ctx context.Context, accountID string) (*domain.Snapshot, error) {
	var data []byte
	err := r.pool.QueryRow(ctx,
		`SELECT data FROM valuation_snapshots
		 WHERE account_id = $1
		 ORDER BY taken_at DESC
		 LIMIT 1`, accountID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting latest snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}

// List returns snapshot headers for the account, newest first.
func (r *PgRepository) List(ctx context.Context, accountID string, limit int) ([]Header, error) {
	limit = ClampLimit(limit)

	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, taken_at, ok_count, missing_count, created_at
		 FROM valuation_snapshots
		 WHERE account_id = $1
		 ORDER BY taken_at DESC
		 LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var headers []Header
	for rows.Next() {
		var h Header
		if err := rows.Scan(&h.ID, &h.AccountID, &h.TakenAt, &h.OKCount, &h.MissingCount, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return headers, nil
}

// ClampLimit maps a requested page size into [1, MaxListLimit], defaulting to DefaultListLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
