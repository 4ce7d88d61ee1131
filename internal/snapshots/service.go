package snapshots

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/habilita/habilita/internal/indicators"
)

// DefaultRetention bounds how long snapshots are kept.
const DefaultRetention = 400 * 24 * time.Hour

// Loader loads the enriched results a snapshot summarises.
type Loader interface {
	Load(ctx context.Context, q indicators.ResultQuery) (indicators.Dataset, error)
}

// Store persists snapshots.
type Store interface {
	Save(ctx context.Context, s Snapshot) (Snapshot, error)
	History(ctx context.Context, year, limit int) ([]Snapshot, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service captures and reads compliance snapshots.
type Service struct {
	loader    Loader
	store     Store
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds the service.
func NewService(loader Loader, store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		loader:    loader,
		store:     store,
		retention: DefaultRetention,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Capture summarises the current results for year and stores the summary
// under today's date. Year zero is the current year. A load that returned
// warnings and no results is not stored, so a backend outage does not chart
// as a drop to zero.
func (s *Service) Capture(ctx context.Context, year int) (Snapshot, error) {
	now := s.now()
	if year <= 0 {
		year = now.Year()
	}
	ds, err := s.loader.Load(ctx, indicators.ResultQuery{Year: year})
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshots: load results: %w", err)
	}
	if len(ds.Results) == 0 && len(ds.Warnings) > 0 {
		return Snapshot{}, ErrNoData
	}
	summary := indicators.Summarize(ds.Results)
	snap := Snapshot{
		TakenOn:      time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		Year:         year,
		Total:        summary.Total,
		Compliant:    summary.Compliant,
		NonCompliant: summary.NonCompliant,
		Undetermined: summary.Undetermined,
		Rate:         summary.Rate,
		Summary:      summary,
	}
	saved, err := s.store.Save(ctx, snap)
	if err != nil {
		return Snapshot{}, err
	}
	s.logger.Info("compliance snapshot captured",
		slog.Int("year", year),
		slog.Int("total", saved.Total),
		slog.Float64("rate", saved.Rate))

	if s.retention > 0 {
		if n, err := s.store.Prune(ctx, snap.TakenOn.Add(-s.retention)); err != nil {
			s.logger.Warn("prune snapshots", slog.Any("error", err))
		} else if n > 0 {
			s.logger.Info("pruned snapshots", slog.Int64("deleted", n))
		}
	}
	return saved, nil
}

// History returns up to limit snapshots for year, oldest first.
func (s *Service) History(ctx context.Context, year, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 30
	}
	return s.store.History(ctx, year, limit)
}
