package importer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habilita/habilita/internal/backend"
	"github.com/habilita/habilita/internal/indicators"
	"github.com/habilita/habilita/internal/payload"
	"github.com/habilita/habilita/internal/platform/httpx"
	"github.com/habilita/habilita/internal/shared"
)

func testCatalogs() ([]indicators.Indicator, []indicators.Headquarters) {
	return []indicators.Indicator{
			{ID: 1, Code: "IND-01", Name: "Caídas", MeasurementUnit: "%", MeasurementFrequency: "mensual", Trend: "decreciente", Target: payload.Float(5)},
			{ID: 2, Code: "IND-02", Name: "Satisfacción", MeasurementUnit: "puntos", MeasurementFrequency: "trimestral", Trend: "creciente"},
			{ID: 3, Code: "IND-03", Name: "Auditorías", MeasurementFrequency: "anual"},
		}, []indicators.Headquarters{
			{ID: 10, Name: "Sede Norte"},
			{ID: 20, Name: "Sede Sur"},
		}
}

type fakeCatalogs struct{ err error }

func (f fakeCatalogs) Catalogs(context.Context) ([]indicators.Indicator, []indicators.Headquarters, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	inds, hqs := testCatalogs()
	return inds, hqs, nil
}

type fakeCreator struct {
	calls int
	got   []indicators.ResultInput
	err   error
}

func (f *fakeCreator) CreateResults(_ context.Context, in []indicators.ResultInput) ([]indicators.RawResult, error) {
	f.calls++
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	out := make([]indicators.RawResult, len(in))
	for i := range in {
		out[i] = indicators.RawResult{ID: int64(i + 1)}
	}
	return out, nil
}

type fakeAuditor struct{ entries []shared.AuditLog }

func (f *fakeAuditor) Record(_ context.Context, log shared.AuditLog) error {
	f.entries = append(f.entries, log)
	return nil
}

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis, *fakeCreator, *fakeAuditor) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	creator := &fakeCreator{}
	auditor := &fakeAuditor{}
	svc := NewService(fakeCatalogs{}, creator, NewStore(client, time.Minute), auditor, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.WithNow(func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) })
	return svc, mr, creator, auditor
}

func TestParseDetectsDelimiterAndHeaderAliases(t *testing.T) {
	data := "\xef\xbb\xbfIndicador Código;Sede;Año;Mes;Numerador;Denominador\nIND-01;10;2025;3;2;100\n\n;;;;;\nIND-02;Sede Sur;2025;;4,5;5\n"
	sheet, err := Parse(strings.NewReader(data), "carga.csv")
	require.NoError(t, err)
	require.Len(t, sheet.Records, 2)
	assert.Equal(t, 2, sheet.Records[0].Line)
	assert.Equal(t, 5, sheet.Records[1].Line)
	assert.Equal(t, "IND-01", sheet.Get(sheet.Records[0], ColIndicator))
	assert.Equal(t, "2025", sheet.Get(sheet.Records[0], ColYear))
	assert.Equal(t, "4,5", sheet.Get(sheet.Records[1], ColNumerator))
	assert.Equal(t, "", sheet.Get(sheet.Records[1], ColQuarter))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader("  \n"), "vacio.csv")
	require.ErrorIs(t, err, ErrEmptyFile)

	_, err = Parse(strings.NewReader("indicador_codigo,anio\nIND-01,2025\n"), "x.csv")
	require.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), "sede_id")
	assert.True(t, IsParseError(err))

	_, err = Parse(strings.NewReader("indicador_codigo,sede_id,anio,numerador,denominador\n"), "x.csv")
	require.ErrorIs(t, err, ErrEmptyFile)

	_, err = Parse(bytes.NewReader([]byte("PK\x03\x04garbage")), "x.xlsx")
	require.ErrorIs(t, err, ErrInvalidFile)

	assert.False(t, IsParseError(errors.New("redis down")))
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "ano", NormalizeKey(" AÑO "))
	assert.Equal(t, "indicador_codigo", NormalizeKey("Indicador-Código"))
	assert.Equal(t, "sede_norte", NormalizeKey("Sede  Norte"))
}

func TestValidateRows(t *testing.T) {
	data := strings.Join([]string{
		"indicador_codigo,sede_id,anio,mes,trimestre,semestre,numerador,denominador",
		"IND-01,10,2025,3,,,2,100",        // valid monthly percentage
		"IND-01,10,2025,3,,,1,100",        // duplicate of line 2
		"IND-01,sede norte,2025,,,,1,100", // month missing for monthly
		"IND-02,20,2025,,2,,\"4,5\",5",    // valid quarterly with decimal comma
		"IND-99,10,2025,1,,,1,1",          // unknown indicator
		"IND-03,30,2025,,,,1,0",           // unknown site and zero denominator
		"IND-03,20,2025,,,,x,1",           // bad numerator
		"3,20,2024,,,,1,2",                // indicator by id, annual
	}, "\n")
	sheet, err := Parse(strings.NewReader(data), "carga.csv")
	require.NoError(t, err)
	inds, hqs := testCatalogs()
	rows := ValidateRows(sheet, NewCatalog(inds, hqs), nil)
	require.Len(t, rows, 8)

	first := rows[0]
	require.True(t, first.Valid(), first.Errors)
	assert.Equal(t, "Caídas", first.IndicatorName)
	assert.Equal(t, "Sede Norte", first.HeadquartersName)
	assert.Equal(t, "2025-03", first.PeriodLabel)
	require.NotNil(t, first.Input.Month)
	assert.Equal(t, 3, *first.Input.Month)
	assert.Nil(t, first.Input.Quarter)
	require.NotNil(t, first.Input.Value)
	assert.InDelta(t, 2.0, *first.Input.Value, 1e-9)

	assert.Equal(t, []string{"fila duplicada (línea 2)"}, rows[1].Errors)
	require.Len(t, rows[2].Errors, 1)
	assert.Contains(t, rows[2].Errors[0], "mes requerido")

	quarterly := rows[3]
	require.True(t, quarterly.Valid(), quarterly.Errors)
	assert.Equal(t, "2025-T2", quarterly.PeriodLabel)
	assert.InDelta(t, 4.5, quarterly.Input.Numerator, 1e-9)
	assert.InDelta(t, 0.9, *quarterly.Input.Value, 1e-9)

	assert.Equal(t, []string{"indicador desconocido: IND-99"}, rows[4].Errors)
	assert.ElementsMatch(t, []string{"sede desconocida: 30", "el denominador no puede ser cero"}, rows[5].Errors)
	assert.Equal(t, []string{"numerador inválido"}, rows[6].Errors)

	annual := rows[7]
	require.True(t, annual.Valid(), annual.Errors)
	assert.Equal(t, "IND-03", annual.IndicatorCode)
	assert.Equal(t, "2024", annual.PeriodLabel)
	assert.Nil(t, annual.Input.Month)
}

func TestTemplateXLSXRoundTrip(t *testing.T) {
	inds, hqs := testCatalogs()
	buf := &bytes.Buffer{}
	require.NoError(t, WriteTemplateXLSX(buf, inds, hqs))

	sheet, err := Parse(bytes.NewReader(buf.Bytes()), "plantilla.xlsx")
	require.NoError(t, err)
	require.Len(t, sheet.Records, 1)
	rows := ValidateRows(sheet, NewCatalog(inds, hqs), nil)
	require.True(t, rows[0].Valid(), rows[0].Errors)
	assert.Equal(t, "2025-01", rows[0].PeriodLabel)
}

func TestTemplateCSV(t *testing.T) {
	inds, hqs := testCatalogs()
	buf := &bytes.Buffer{}
	require.NoError(t, WriteTemplateCSV(buf, inds, hqs))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(TemplateColumns, ","), lines[0])
	assert.Equal(t, "IND-01,10,2025,1,,,0,1", lines[1])

	buf.Reset()
	require.NoError(t, WriteTemplateCSV(buf, nil, nil))
	assert.Equal(t, strings.Join(TemplateColumns, ",")+"\n", buf.String())
}

func TestStoreExpiresPreview(t *testing.T) {
	svc, mr, _, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.Preview(ctx, "carga.csv", strings.NewReader("indicador_codigo,sede_id,anio,mes,numerador,denominador\nIND-01,10,2025,1,1,2\n"), "ana")
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)

	loaded, err := svc.Load(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana", loaded.CreatedBy)
	assert.Equal(t, 1, loaded.ValidCount())

	mr.FastForward(2 * time.Minute)
	_, err = svc.Load(ctx, p.ID)
	require.ErrorIs(t, err, ErrPreviewNotFound)
	require.ErrorIs(t, err, httpx.ErrNotFound)

	_, err = svc.Load(ctx, "not-a-uuid")
	require.ErrorIs(t, err, ErrPreviewNotFound)
}

func TestCommitPostsValidRowsOnce(t *testing.T) {
	svc, _, creator, auditor := newTestService(t)
	ctx := context.Background()
	p, err := svc.Preview(ctx, "carga.csv", strings.NewReader("indicador_codigo,sede_id,anio,mes,numerador,denominador\nIND-01,10,2025,1,1,2\nIND-99,10,2025,1,1,2\n"), "ana")
	require.NoError(t, err)

	out, err := svc.Commit(ctx, p.ID, "ana")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, 1, out.Created)
	assert.Equal(t, 1, out.Skipped)
	require.Len(t, creator.got, 1)
	assert.Equal(t, int64(1), creator.got[0].Indicator)

	require.Len(t, auditor.entries, 1)
	assert.Equal(t, "results.import", auditor.entries[0].Action)
	assert.Equal(t, p.ID, auditor.entries[0].EntityID)

	stored, err := svc.Outcome(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Created, stored.Created)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.True(t, out.FinishedAt.Equal(stored.FinishedAt))

	_, err = svc.Commit(ctx, p.ID, "ana")
	require.ErrorIs(t, err, ErrAlreadyCommitted)
	assert.Equal(t, 1, creator.calls)
}

func TestCommitFailureReleasesClaim(t *testing.T) {
	svc, _, creator, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.Preview(ctx, "carga.csv", strings.NewReader("indicador_codigo,sede_id,anio,mes,numerador,denominador\nIND-01,10,2025,1,1,2\n"), "ana")
	require.NoError(t, err)

	creator.err = &backend.APIError{Status: 400, Message: "year: inválido"}
	out, err := svc.Commit(ctx, p.ID, "ana")
	require.Error(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, "year: inválido", out.Error)

	creator.err = nil
	out, err = svc.Commit(ctx, p.ID, "ana")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Created)
}

func TestCommitWithoutValidRows(t *testing.T) {
	svc, _, creator, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.Preview(ctx, "carga.csv", strings.NewReader("indicador_codigo,sede_id,anio,mes,numerador,denominador\nIND-99,10,2025,1,1,2\n"), "ana")
	require.NoError(t, err)
	_, err = svc.Commit(ctx, p.ID, "ana")
	require.ErrorIs(t, err, ErrNothingToCommit)
	assert.Zero(t, creator.calls)
}

func TestPreviewCatalogFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	svc := NewService(fakeCatalogs{err: httpx.ErrUpstream}, &fakeCreator{}, NewStore(client, 0), nil, nil)
	_, err := svc.Preview(context.Background(), "carga.csv", strings.NewReader("indicador_codigo,sede_id,anio,numerador,denominador\nIND-01,10,2025,1,2\n"), "ana")
	require.ErrorIs(t, err, httpx.ErrUpstream)
}
