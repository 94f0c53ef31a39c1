package transfer

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

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const transferCols = `id, patient_id, source_bed_id, destination_bed_id, current_ward, target_ward,
	reason, notes, status, requested_by, reviewed_by, reviewed_at, completed_at, deny_reason,
	created_at, updated_at`

func scanTransfer(row pgx.Row) (*Transfer, error) {
	var t Transfer
	err := row.Scan(&t.ID, &t.PatientID, &t.SourceBedID, &t.DestinationBedID, &t.CurrentWard,
		&t.TargetWard, &t.Reason, &t.Notes, &t.Status, &t.RequestedBy, &t.ReviewedBy,
		&t.ReviewedAt, &t.CompletedAt, &t.DenyReason, &t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (r *repoPG) Create(ctx context.Context, t *Transfer) error {
	t.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO ward_transfer (id, patient_id, source_bed_id, current_ward, target_ward,
			reason, notes, status, requested_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		t.ID, t.PatientID, t.SourceBedID, t.CurrentWard, t.TargetWard,
		t.Reason, t.Notes, t.Status, t.RequestedBy,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("Patient already has a pending transfer")
	}
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	t, err := scanTransfer(r.conn(ctx).QueryRow(ctx, `SELECT `+transferCols+` FROM ward_transfer WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("Transfer %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	return t, nil
}

func (r *repoPG) FindPendingByPatient(ctx context.Context, patientID uuid.UUID) (*Transfer, error) {
	t, err := scanTransfer(r.conn(ctx).QueryRow(ctx, `
		SELECT `+transferCols+` FROM ward_transfer
		WHERE patient_id = $1 AND status = 'pending'`, patientID))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pending transfer: %w", err)
	}
	return t, nil
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*Transfer, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Ward != "" {
		where += fmt.Sprintf(` AND (current_ward = $%d OR target_ward = $%d)`, idx, idx)
		args = append(args, f.Ward)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM ward_transfer`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transfers: %w", err)
	}

	query := `SELECT ` + transferCols + ` FROM ward_transfer` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()
	var items []*Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transfer: %w", err)
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

// pending runs a conditional update against a pending transfer.
func (r *repoPG) pending(ctx context.Context, op, set string, args ...interface{}) (*Transfer, error) {
	t, err := scanTransfer(r.conn(ctx).QueryRow(ctx, `
		UPDATE ward_transfer SET `+set+`, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+transferCols, args...))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s transfer: %w", op, err)
	}
	return t, nil
}

func (r *repoPG) UpdateDetails(ctx context.Context, id uuid.UUID, reason, notes string) (*Transfer, error) {
	return r.pending(ctx, "update", `reason = $2, notes = $3`, id, reason, notes)
}

func (r *repoPG) MarkCompleted(ctx context.Context, id uuid.UUID, c Completion) (*Transfer, error) {
	return r.pending(ctx, "complete", `status = 'completed', destination_bed_id = $2, reviewed_by = $3,
		reviewed_at = NOW(), completed_at = NOW(), notes = COALESCE($4, notes)`,
		id, c.DestinationBedID, c.ReviewedBy, c.Notes)
}

func (r *repoPG) MarkDenied(ctx context.Context, id uuid.UUID, reviewer, reason string) (*Transfer, error) {
	return r.pending(ctx, "deny", `status = 'denied', reviewed_by = $2, reviewed_at = NOW(), deny_reason = $3`,
		id, reviewer, reason)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM ward_transfer WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, fmt.Errorf("delete transfer: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
