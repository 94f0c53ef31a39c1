package bedrequest

import (
	"context"
	"fmt"
	"time"

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

const requestCols = `id, request_id, requested_by, requested_by_name, patient_name, patient_age,
	patient_gender, triage_level, required_equipment, reason, preferred_ward, eta, status, priority,
	assigned_bed_id, assigned_bed_number, assigned_bed_ward, reviewed_by, reviewed_at, denial_reason,
	reservation_expires_at, fulfilled_at, patient_id, cancelled_by, cancelled_at, cancel_reason,
	expired_at, is_deleted, deleted_by, deleted_at, created_at, updated_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	err := row.Scan(&r.ID, &r.RequestID, &r.RequestedBy, &r.RequestedByName, &r.PatientName, &r.PatientAge,
		&r.PatientGender, &r.TriageLevel, &r.RequiredEquipment, &r.Reason, &r.PreferredWard, &r.ETA,
		&r.Status, &r.Priority, &r.AssignedBedID, &r.AssignedBedNumber, &r.AssignedBedWard,
		&r.ReviewedBy, &r.ReviewedAt, &r.DenialReason, &r.ReservationExpiresAt, &r.FulfilledAt,
		&r.PatientID, &r.CancelledBy, &r.CancelledAt, &r.CancelReason, &r.ExpiredAt,
		&r.IsDeleted, &r.DeletedBy, &r.DeletedAt, &r.CreatedAt, &r.UpdatedAt)
	return &r, err
}

func (r *repoPG) Create(ctx context.Context, req *Request) error {
	req.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bed_request (id, request_id, requested_by, requested_by_name, patient_name, patient_age,
			patient_gender, triage_level, required_equipment, reason, preferred_ward, eta, status, priority)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		req.ID, req.RequestID, req.RequestedBy, req.RequestedByName, req.PatientName, req.PatientAge,
		req.PatientGender, req.TriageLevel, req.RequiredEquipment, req.Reason, req.PreferredWard,
		req.ETA, req.Status, req.Priority,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert bed request: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requestCols+` FROM bed_request WHERE id = $1 AND NOT is_deleted`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("Bed request %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get bed request: %w", err)
	}
	return req, nil
}

func (r *repoPG) GetByRequestID(ctx context.Context, requestID string) (*Request, error) {
	req, err := scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requestCols+` FROM bed_request WHERE request_id = $1 AND NOT is_deleted`, requestID))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("Bed request %s not found", requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("get bed request by request id: %w", err)
	}
	return req, nil
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*Request, int, error) {
	where := ` WHERE NOT is_deleted`
	var args []interface{}
	idx := 1
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Ward != "" {
		where += fmt.Sprintf(` AND (preferred_ward = $%d OR assigned_bed_ward = $%d)`, idx, idx)
		args = append(args, f.Ward)
		idx++
	}
	if f.RequestedBy != "" {
		where += fmt.Sprintf(` AND requested_by = $%d`, idx)
		args = append(args, f.RequestedBy)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bed_request`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bed requests: %w", err)
	}

	query := `SELECT ` + requestCols + ` FROM bed_request` + where +
		fmt.Sprintf(` ORDER BY priority DESC, created_at ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	items, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) ListDue(ctx context.Context, now time.Time, limit int) ([]*Request, error) {
	return r.query(ctx, `SELECT `+requestCols+` FROM bed_request
		WHERE status = 'approved' AND reservation_expires_at <= $1 AND NOT is_deleted
		ORDER BY reservation_expires_at
		LIMIT $2`, now, limit)
}

func (r *repoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Request, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list bed requests: %w", err)
	}
	defer rows.Close()
	var items []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bed request: %w", err)
		}
		items = append(items, req)
	}
	return items, rows.Err()
}

// transition runs a conditional UPDATE ... RETURNING and maps a missing row
// to nil.
func (r *repoPG) transition(ctx context.Context, what, sql string, args ...interface{}) (*Request, error) {
	req, err := scanRequest(r.conn(ctx).QueryRow(ctx, sql+` RETURNING `+requestCols, args...))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s bed request: %w", what, err)
	}
	return req, nil
}

func (r *repoPG) UpdateDetails(ctx context.Context, req *Request) (*Request, error) {
	return r.transition(ctx, "update", `
		UPDATE bed_request SET patient_name=$2, patient_age=$3, patient_gender=$4, triage_level=$5,
			required_equipment=$6, reason=$7, preferred_ward=$8, eta=$9, priority=$10, updated_at=NOW()
		WHERE id = $1 AND status = 'pending' AND NOT is_deleted`,
		req.ID, req.PatientName, req.PatientAge, req.PatientGender, req.TriageLevel,
		req.RequiredEquipment, req.Reason, req.PreferredWard, req.ETA, req.Priority)
}

func (r *repoPG) MarkApproved(ctx context.Context, id uuid.UUID, a Approval) (*Request, error) {
	return r.transition(ctx, "approve", `
		UPDATE bed_request SET status='approved', assigned_bed_id=$2, assigned_bed_number=$3,
			assigned_bed_ward=$4, reviewed_by=$5, reviewed_at=NOW(), reservation_expires_at=$6, updated_at=NOW()
		WHERE id = $1 AND status = 'pending' AND NOT is_deleted`,
		id, a.BedID, a.BedNumber, a.BedWard, a.ReviewedBy, a.ExpiresAt)
}

func (r *repoPG) MarkDenied(ctx context.Context, id uuid.UUID, reviewer, reason string) (*Request, error) {
	return r.transition(ctx, "deny", `
		UPDATE bed_request SET status='denied', reviewed_by=$2, reviewed_at=NOW(), denial_reason=$3, updated_at=NOW()
		WHERE id = $1 AND status = 'pending' AND NOT is_deleted`,
		id, reviewer, reason)
}

func (r *repoPG) MarkFulfilled(ctx context.Context, id, patientID uuid.UUID) (*Request, error) {
	return r.transition(ctx, "fulfil", `
		UPDATE bed_request SET status='fulfilled', fulfilled_at=NOW(), patient_id=$2,
			reservation_expires_at=NULL, updated_at=NOW()
		WHERE id = $1 AND status = 'approved' AND assigned_bed_id IS NOT NULL AND NOT is_deleted`,
		id, patientID)
}

func (r *repoPG) MarkCancelled(ctx context.Context, id uuid.UUID, by, reason string) (*Request, error) {
	return r.transition(ctx, "cancel", `
		UPDATE bed_request SET status='denied', cancelled_by=$2, cancelled_at=NOW(), cancel_reason=$3,
			assigned_bed_id=NULL, assigned_bed_number='', assigned_bed_ward='',
			reservation_expires_at=NULL, updated_at=NOW()
		WHERE id = $1 AND status = 'pending' AND NOT is_deleted`,
		id, by, reason)
}

func (r *repoPG) MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (*Request, error) {
	return r.transition(ctx, "expire", `
		UPDATE bed_request SET status='expired', expired_at=$2, reservation_expires_at=NULL,
			assigned_bed_id=NULL, assigned_bed_number='', assigned_bed_ward='', updated_at=NOW()
		WHERE id = $1 AND status = 'approved' AND reservation_expires_at <= $2 AND NOT is_deleted`,
		id, now)
}

func (r *repoPG) SoftDelete(ctx context.Context, id uuid.UUID, by string) (*Request, error) {
	return r.transition(ctx, "delete", `
		UPDATE bed_request SET is_deleted=TRUE, deleted_by=$2, deleted_at=NOW(), updated_at=NOW()
		WHERE id = $1 AND status IN ('denied','fulfilled','cancelled','expired') AND NOT is_deleted`,
		id, by)
}
