package snapshots

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/habilita/habilita/internal/platform/db"
)

// Repository stores snapshots in compliance_snapshots. One row is kept per
// day and year; a second capture on the same day replaces the first.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repo.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const upsertSnapshot = `
INSERT INTO compliance_snapshots
    (taken_on, year, total, compliant, non_compliant, undetermined, rate, summary)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (taken_on, year) DO UPDATE SET
    total = EXCLUDED.total,
    compliant = EXCLUDED.compliant,
    non_compliant = EXCLUDED.non_compliant,
    undetermined = EXCLUDED.undetermined,
    rate = EXCLUDED.rate,
    summary = EXCLUDED.summary,
    created_at = NOW()
RETURNING id, created_at`

// Save upserts s and returns it with its id and creation time.
func (r *Repository) Save(ctx context.Context, s Snapshot) (Snapshot, error) {
	summary, err := json.Marshal(s.Summary)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshots: encode summary: %w", err)
	}
	takenOn := pgtype.Date{Time: s.TakenOn, Valid: !s.TakenOn.IsZero()}
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var created pgtype.Timestamptz
		if err := tx.QueryRow(ctx, upsertSnapshot,
			takenOn, s.Year, s.Total, s.Compliant, s.NonCompliant, s.Undetermined, s.Rate, summary,
		).Scan(&s.ID, &created); err != nil {
			return err
		}
		s.CreatedAt = created.Time
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshots: save: %w", err)
	}
	return s, nil
}

const selectHistory = `
SELECT id, taken_on, year, total, compliant, non_compliant, undetermined, rate, summary, created_at
FROM compliance_snapshots
WHERE year = $1
ORDER BY taken_on DESC
LIMIT $2`

// History returns the latest limit snapshots for year, oldest first.
func (r *Repository) History(ctx context.Context, year, limit int) ([]Snapshot, error) {
	rows, err := r.pool.Query(ctx, selectHistory, year, limit)
	if err != nil {
		return nil, fmt.Errorf("snapshots: history: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanSnapshot)
	if err != nil {
		return nil, fmt.Errorf("snapshots: history: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

func scanSnapshot(row pgx.CollectableRow) (Snapshot, error) {
	var (
		s       Snapshot
		takenOn pgtype.Date
		created pgtype.Timestamptz
		summary []byte
	)
	if err := row.Scan(&s.ID, &takenOn, &s.Year, &s.Total, &s.Compliant, &s.NonCompliant, &s.Undetermined, &s.Rate, &summary, &created); err != nil {
		return Snapshot{}, err
	}
	s.TakenOn = takenOn.Time
	s.CreatedAt = created.Time
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &s.Summary); err != nil {
			return Snapshot{}, err
		}
	}
	return s, nil
}

// Prune deletes snapshots taken before cutoff.
func (r *Repository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM compliance_snapshots WHERE taken_on < $1`, pgtype.Date{Time: cutoff, Valid: true})
	if err != nil {
		return 0, fmt.Errorf("snapshots: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
