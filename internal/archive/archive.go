package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"

	"github.com/mtlprog/holdings/internal/domain"
)

// Archived resources, one parquet file each per snapshot.
const (
	ResourceValuations = "valuations"
	ResourcePositions  = "positions"
	ResourcePrices     = "prices"
	ResourceFX         = "fx"
)

// Archiver writes snapshot rows as partitioned parquet files to every store.
type Archiver struct {
	stores []Store
	codec  parquet.CompressionCodec
	newID  func() string
}

// NewArchiver creates an Archiver. compression is one of snappy, gzip or none.
func NewArchiver(compression string, stores ...Store) *Archiver {
	if len(stores) == 0 {
		panic("archive.NewArchiver: no stores")
	}
	return &Archiver{
		stores: stores,
		codec:  compressionCodec(compression),
		newID:  uuid.NewString,
	}
}

// Name implements worker.AfterSnapshotHook.
func (a *Archiver) Name() string { return "archive" }

// ObjectKey returns the partitioned key of one resource file:
// resource/dt=YYYY-MM-DD/account=<id>/<name>.parquet.
func ObjectKey(resource string, snap domain.Snapshot, name string) string {
	return path.Join(
		resource,
		"dt="+snap.TakenAt.UTC().Format("2006-01-02"),
		"account="+snap.AccountID,
		name+".parquet",
	)
}

// AfterSnapshot implements worker.AfterSnapshotHook. Empty resources are skipped.
func (a *Archiver) AfterSnapshot(ctx context.Context, snap domain.Snapshot) error {
	files, err := a.encodeAll(snap)
	if err != nil {
		return err
	}

	var errs []error
	for resource, data := range files {
		key := ObjectKey(resource, snap, a.newID())
		for _, store := range a.stores {
			if err := store.Put(ctx, key, data); err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", store.Name(), resource, err))
				continue
			}
			slog.Debug("archive: object written", "store", store.Name(), "key", key, "bytes", len(data))
		}
	}
	return errors.Join(errs...)
}

func (a *Archiver) encodeAll(snap domain.Snapshot) (map[string][]byte, error) {
	files := make(map[string][]byte, 4)

	if rows := valuationRecords(snap); len(rows) > 0 {
		data, err := encode(rows, new(valuationRecord), a.codec)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", ResourceValuations, err)
		}
		files[ResourceValuations] = data
	}
	if rows := positionRecords(snap); len(rows) > 0 {
		data, err := encode(rows, new(positionRecord), a.codec)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", ResourcePositions, err)
		}
		files[ResourcePositions] = data
	}
	if rows := priceRecords(snap); len(rows) > 0 {
		data, err := encode(rows, new(priceRecord), a.codec)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", ResourcePrices, err)
		}
		files[ResourcePrices] = data
	}
	if rows := fxRecords(snap); len(rows) > 0 {
		data, err := encode(rows, new(fxRecord), a.codec)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", ResourceFX, err)
		}
		files[ResourceFX] = data
	}
	return files, nil
}
