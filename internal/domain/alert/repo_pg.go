package alert

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bedtrack/bedtrack/internal/platform/apperr"
	"github.com/bedtrack/bedtrack/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const alertCols = `id, severity, message, ward, priority, bed_id, acknowledged, acknowledged_by, acknowledged_at, created_at`

func scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.Severity, &a.Message, &a.Ward, &a.Priority, &a.BedID,
		&a.Acknowledged, &a.AcknowledgedBy, &a.AcknowledgedAt, &a.CreatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Alert) error {
	a.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO alert (id, severity, message, ward, priority, bed_id)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING created_at`,
		a.ID, a.Severity, a.Message, a.Ward, a.Priority, a.BedID,
	).Scan(&a.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	a, err := scanAlert(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+alertCols+` FROM alert WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("Alert %s not found", id)
	}
	return a, err
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*Alert, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.Severity != "" {
		where += fmt.Sprintf(` AND severity = $%d`, idx)
		args = append(args, f.Severity)
		idx++
	}
	if f.Ward != "" {
		where += fmt.Sprintf(` AND ward = $%d`, idx)
		args = append(args, f.Ward)
		idx++
	}
	if f.Unacknowledged {
		where += ` AND NOT acknowledged`
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM alert`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := conn.Query(ctx, `SELECT `+alertCols+` FROM alert`+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Acknowledge(ctx context.Context, id uuid.UUID, by string) (*Alert, error) {
	a, err := scanAlert(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE alert SET acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = NOW()
		WHERE id = $1 AND NOT acknowledged
		RETURNING `+alertCols, id, by))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return a, err
}
