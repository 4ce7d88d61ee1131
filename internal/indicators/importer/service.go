package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/habilita/habilita/internal/audit"
	"github.com/habilita/habilita/internal/backend"
	"github.com/habilita/habilita/internal/indicators"
	"github.com/habilita/habilita/internal/shared"
)

// Catalogs loads the reference data uploads are validated against.
type Catalogs interface {
	Catalogs(ctx context.Context) ([]indicators.Indicator, []indicators.Headquarters, error)
}

// Creator posts result batches to the backend.
type Creator interface {
	CreateResults(ctx context.Context, in []indicators.ResultInput) ([]indicators.RawResult, error)
}

// Auditor records who imported what.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ErrNothingToCommit is returned when a preview has no valid rows.
var ErrNothingToCommit = errors.New("la vista previa no tiene filas válidas")

// Service builds previews and commits them.
type Service struct {
	catalogs Catalogs
	creator  Creator
	audit    Auditor
	store    *Store
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the importer. audit may be nil.
func NewService(catalogs Catalogs, creator Creator, store *Store, audit Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalogs: catalogs,
		creator:  creator,
		audit:    audit,
		store:    store,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Preview parses and validates an upload and stores the result.
func (s *Service) Preview(ctx context.Context, filename string, r io.Reader, actor string) (Preview, error) {
	sheet, err := Parse(r, filename)
	if err != nil {
		return Preview{}, err
	}
	inds, hqs, err := s.catalogs.Catalogs(ctx)
	if err != nil {
		return Preview{}, fmt.Errorf("importer: load catalogs: %w", err)
	}
	p := Preview{
		FileName:  filename,
		CreatedBy: actor,
		CreatedAt: s.now(),
		Rows:      ValidateRows(sheet, NewCatalog(inds, hqs), s.validate),
	}
	if err := s.store.Save(ctx, &p); err != nil {
		return Preview{}, fmt.Errorf("importer: save preview: %w", err)
	}
	s.logger.Info("import preview stored",
		slog.String("batch", p.ID),
		slog.String("file", filename),
		slog.Int("valid", p.ValidCount()),
		slog.Int("invalid", p.InvalidCount()))
	return p, nil
}

// Load returns a stored preview.
func (s *Service) Load(ctx context.Context, id string) (Preview, error) {
	return s.store.Load(ctx, id)
}

// Outcome returns the result of a finished commit.
func (s *Service) Outcome(ctx context.Context, id string) (Outcome, error) {
	return s.store.Outcome(ctx, id)
}

// Commit posts the valid rows of a preview. A batch commits at most once;
// a failed commit releases the claim so it can be retried. The outcome is
// stored and audited whether or not the backend accepted the rows.
func (s *Service) Commit(ctx context.Context, id, actor string) (Outcome, error) {
	p, err := s.store.Load(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	inputs := p.Inputs()
	if len(inputs) == 0 {
		return Outcome{}, ErrNothingToCommit
	}
	if err := s.store.Claim(ctx, id); err != nil {
		return Outcome{}, err
	}

	created, postErr := s.creator.CreateResults(ctx, inputs)
	out := Outcome{
		BatchID:    id,
		Status:     StatusCompleted,
		Created:    len(created),
		Skipped:    p.InvalidCount(),
		Actor:      actor,
		FinishedAt: s.now(),
	}
	if postErr != nil {
		out.Status = StatusFailed
		out.Error = backend.Message(postErr)
		s.logger.Error("import commit failed", slog.String("batch", id), slog.Any("error", postErr))
		if len(created) == 0 {
			if err := s.store.Release(ctx, id); err != nil {
				s.logger.Warn("import release claim", slog.String("batch", id), slog.Any("error", err))
			}
		}
	}
	if err := s.store.SaveOutcome(ctx, out); err != nil {
		s.logger.Warn("import save outcome", slog.String("batch", id), slog.Any("error", err))
	}
	if s.audit != nil {
		entry := shared.AuditLog{
			Actor:    actor,
			Action:   audit.ActionResultsImport,
			Entity:   audit.EntityImportBatch,
			EntityID: id,
			Meta: map[string]any{
				"file":    p.FileName,
				"status":  out.Status,
				"created": out.Created,
				"skipped": out.Skipped,
			},
			At: out.FinishedAt,
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			s.logger.Warn("import audit", slog.String("batch", id), slog.Any("error", err))
		}
	}
	if postErr != nil {
		return out, postErr
	}
	s.logger.Info("import committed", slog.String("batch", id), slog.Int("created", out.Created))
	return out, nil
}

// Template writes the CSV or XLSX template using the live catalogs.
func (s *Service) Template(ctx context.Context, w io.Writer, xlsx bool) error {
	inds, hqs, err := s.catalogs.Catalogs(ctx)
	if err != nil {
		return fmt.Errorf("importer: load catalogs: %w", err)
	}
	if xlsx {
		return WriteTemplateXLSX(w, inds, hqs)
	}
	return WriteTemplateCSV(w, inds, hqs)
}
