package indicators

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Backend is the subset of the REST client the indicator views need.
type Backend interface {
	ListIndicators(ctx context.Context) ([]Indicator, error)
	ListHeadquarters(ctx context.Context) ([]Headquarters, error)
	ListResults(ctx context.Context, q ResultQuery) ([]RawResult, error)
}

// Warning messages shown when one of the parallel loads fails.
const (
	WarnIndicators   = "No se pudo cargar el catálogo de indicadores."
	WarnHeadquarters = "No se pudo cargar el listado de sedes."
	WarnResults      = "No se pudieron cargar los resultados."
)

// Dataset is everything the dashboard and results views render. Warnings
// lists the partial failures; the matching collection is left empty.
type Dataset struct {
	Indicators   []Indicator
	Headquarters []Headquarters
	Results      []DetailedResult
	Warnings     []string
}

// Lookup returns the index over the dataset's catalogs.
func (d Dataset) Lookup() Lookup {
	return NewLookup(d.Indicators, d.Headquarters)
}

// Service loads and enriches indicator results. Nothing is cached between
// calls; every page visit reads the backend.
type Service struct {
	backend Backend
	logger  *slog.Logger
}

// NewService wires the backend.
func NewService(backend Backend, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, logger: logger}
}

// Load fetches indicators, headquarters and results concurrently. A failing
// fetch is logged and reported as a warning instead of failing the page; only
// cancellation of ctx is returned as an error.
func (s *Service) Load(ctx context.Context, q ResultQuery) (Dataset, error) {
	var (
		ds  Dataset
		raw []RawResult
		mu  sync.Mutex
	)
	warn := func(msg, op string, err error) {
		s.logger.Warn(op, slog.Any("error", err))
		mu.Lock()
		ds.Warnings = append(ds.Warnings, msg)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := s.backend.ListIndicators(gctx)
		if err != nil {
			warn(WarnIndicators, "load indicators", err)
			return nil
		}
		ds.Indicators = items
		return nil
	})
	g.Go(func() error {
		items, err := s.backend.ListHeadquarters(gctx)
		if err != nil {
			warn(WarnHeadquarters, "load headquarters", err)
			return nil
		}
		ds.Headquarters = items
		return nil
	})
	g.Go(func() error {
		items, err := s.backend.ListResults(gctx, q)
		if err != nil {
			warn(WarnResults, "load results", err)
			return nil
		}
		raw = items
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Dataset{}, err
	}

	if ds.Indicators == nil {
		ds.Indicators = []Indicator{}
	}
	if ds.Headquarters == nil {
		ds.Headquarters = []Headquarters{}
	}
	ds.Results = EnrichAll(raw, ds.Lookup())
	return ds, nil
}

// Catalogs loads only the indicator and headquarters lists.
func (s *Service) Catalogs(ctx context.Context) ([]Indicator, []Headquarters, error) {
	var (
		inds []Indicator
		hqs  []Headquarters
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		inds, err = s.backend.ListIndicators(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		hqs, err = s.backend.ListHeadquarters(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return inds, hqs, nil
}
