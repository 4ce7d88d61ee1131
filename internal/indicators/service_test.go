package indicators

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habilita/habilita/internal/payload"
)

type fakeBackend struct {
	indicators   []Indicator
	headquarters []Headquarters
	results      []RawResult
	indErr       error
	hqErr        error
	resErr       error
	lastQuery    ResultQuery
}

func (f *fakeBackend) ListIndicators(context.Context) ([]Indicator, error) {
	return f.indicators, f.indErr
}

func (f *fakeBackend) ListHeadquarters(context.Context) ([]Headquarters, error) {
	return f.headquarters, f.hqErr
}

func (f *fakeBackend) ListResults(_ context.Context, q ResultQuery) ([]RawResult, error) {
	f.lastQuery = q
	return f.results, f.resErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServiceLoadEnrichesResults(t *testing.T) {
	backend := &fakeBackend{
		indicators:   []Indicator{{ID: 1, Name: "Caídas", Trend: "decreasing", Target: payload.Float(5)}},
		headquarters: []Headquarters{{ID: 7, Name: "Centro"}},
		results: []RawResult{
			{ID: 1, Indicator: payload.RefTo[Indicator](1), Headquarters: payload.RefTo[Headquarters](7), CalculatedValue: payload.Float(3), Year: 2024},
		},
	}
	svc := NewService(backend, quietLogger())

	ds, err := svc.Load(context.Background(), ResultQuery{Year: 2024})
	require.NoError(t, err)
	assert.Empty(t, ds.Warnings)
	require.Len(t, ds.Results, 1)
	assert.Equal(t, "Caídas", ds.Results[0].IndicatorName)
	assert.Equal(t, "Centro", ds.Results[0].HeadquartersName)
	assert.True(t, ds.Results[0].Compliant())
	assert.Equal(t, 2024, backend.lastQuery.Year)
}

func TestServiceLoadToleratesPartialFailure(t *testing.T) {
	backend := &fakeBackend{
		hqErr: errors.New("sedes caídas"),
		results: []RawResult{
			{ID: 1, Indicator: payload.Embed(3, Indicator{ID: 3, Name: "Embebido"}), Headquarters: payload.RefTo[Headquarters](9)},
		},
		indicators: []Indicator{{ID: 3, Name: "Catálogo"}},
	}
	svc := NewService(backend, quietLogger())

	ds, err := svc.Load(context.Background(), ResultQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{WarnHeadquarters}, ds.Warnings)
	assert.NotNil(t, ds.Headquarters)
	assert.Empty(t, ds.Headquarters)
	require.Len(t, ds.Results, 1)
	assert.Equal(t, "Embebido", ds.Results[0].IndicatorName)
	assert.Equal(t, UnknownHeadquarters, ds.Results[0].HeadquartersName)
}

func TestServiceLoadAllFailing(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&fakeBackend{indErr: boom, hqErr: boom, resErr: boom}, quietLogger())

	ds, err := svc.Load(context.Background(), ResultQuery{})
	require.NoError(t, err)
	assert.Len(t, ds.Warnings, 3)
	assert.Empty(t, ds.Results)
}

func TestServiceLoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewService(&fakeBackend{}, quietLogger()).Load(ctx, ResultQuery{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServiceCatalogsFetchesEveryCall(t *testing.T) {
	backend := &fakeBackend{indicators: []Indicator{{ID: 1}}, headquarters: []Headquarters{{ID: 2}}}
	svc := NewService(backend, quietLogger())
	inds, hqs, err := svc.Catalogs(context.Background())
	require.NoError(t, err)
	assert.Len(t, inds, 1)
	assert.Len(t, hqs, 1)

	backend.hqErr = errors.New("down")
	_, _, err = svc.Catalogs(context.Background())
	assert.Error(t, err)
}
