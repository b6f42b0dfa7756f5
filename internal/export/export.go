package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mtlprog/holdings/internal/domain"
)

// Writer renders a report to one destination.
type Writer interface {
	Name() string
	Write(ctx context.Context, report Report) error
}

// Service builds the report for a snapshot and hands it to every writer.
type Service struct {
	writers []Writer
}

// NewService creates a new export Service. Nil writers are ignored.
func NewService(writers ...Writer) *Service {
	s := &Service{}
	for _, w := range writers {
		if w != nil {
			s.writers = append(s.writers, w)
		}
	}
	return s
}

// Name implements worker.AfterSnapshotHook.
func (s *Service) Name() string { return "export" }

// Writers returns the names of the configured writers.
func (s *Service) Writers() []string {
	names := make([]string, 0, len(s.writers))
	for _, w := range s.writers {
		names = append(names, w.Name())
	}
	return names
}

// AfterSnapshot implements worker.AfterSnapshotHook. Every writer runs even when
// an earlier one fails; the failures are joined.
func (s *Service) AfterSnapshot(ctx context.Context, snap domain.Snapshot) error {
	if len(s.writers) == 0 {
		return nil
	}

	report := BuildReport(snap)
	var errs []error
	for _, w := range s.writers {
		if err := w.Write(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
			continue
		}
		slog.Debug("export: report written", "writer", w.Name(), "account", snap.AccountID)
	}
	return errors.Join(errs...)
}
