package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WindowParams selects one page of audit_logs. Invalid fields do not filter.
type WindowParams struct {
	FromAt     pgtype.Timestamptz
	ToAt       pgtype.Timestamptz
	Actor      pgtype.Text
	Entity     pgtype.Text
	Action     pgtype.Text
	OffsetRows int32
	LimitRows  int32
}

// AllParams selects every matching row, for exports.
type AllParams struct {
	FromAt pgtype.Timestamptz
	ToAt   pgtype.Timestamptz
	Actor  pgtype.Text
	Entity pgtype.Text
	Action pgtype.Text
}

// Row is a raw audit_logs row.
type Row struct {
	At       pgtype.Timestamptz
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
}

const timelineWhere = `
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::text IS NULL OR actor ILIKE '%' || $3 || '%')
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR action = $5)`

const timelineWindowSQL = `SELECT occurred_at, actor, action, entity, entity_id, meta
FROM audit_logs` + timelineWhere + `
ORDER BY occurred_at DESC, id DESC
OFFSET $6 LIMIT $7`

const timelineAllSQL = `SELECT occurred_at, actor, action, entity, entity_id, meta
FROM audit_logs` + timelineWhere + `
ORDER BY occurred_at DESC, id DESC
LIMIT 5000`

// PGRepository reads audit_logs from Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps pool.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// TimelineWindow returns one page of entries, newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, arg WindowParams) ([]Row, error) {
	rows, err := r.pool.Query(ctx, timelineWindowSQL,
		arg.FromAt, arg.ToAt, arg.Actor, arg.Entity, arg.Action, arg.OffsetRows, arg.LimitRows)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanRow)
}

// TimelineAll returns up to 5000 matching entries, newest first.
func (r *PGRepository) TimelineAll(ctx context.Context, arg AllParams) ([]Row, error) {
	rows, err := r.pool.Query(ctx, timelineAllSQL, arg.FromAt, arg.ToAt, arg.Actor, arg.Entity, arg.Action)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanRow)
}

func scanRow(row pgx.CollectableRow) (Row, error) {
	var (
		out  Row
		meta []byte
	)
	if err := row.Scan(&out.At, &out.Actor, &out.Action, &out.Entity, &out.EntityID, &meta); err != nil {
		return Row{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &out.Meta); err != nil {
			return Row{}, err
		}
	}
	return out, nil
}
