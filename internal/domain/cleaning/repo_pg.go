package cleaning

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bedtrack/bedtrack/internal/platform/apperr"
	"github.com/bedtrack/bedtrack/internal/platform/db"
)

type jobRepoPG struct{ pool *pgxpool.Pool }

func NewJobRepoPG(pool *pgxpool.Pool) JobRepository { return &jobRepoPG{pool: pool} }

func (r *jobRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const jobCols = `id, bed_id, bed_number, ward, floor, section, room_number, status,
	assigned_staff_id, assigned_staff_name, started_at, completed_at, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.BedID, &j.BedNumber, &j.Ward, &j.Floor, &j.Section, &j.RoomNumber,
		&j.Status, &j.AssignedStaffID, &j.AssignedStaffName, &j.StartedAt, &j.CompletedAt,
		&j.CreatedAt, &j.UpdatedAt)
	return &j, err
}

func (r *jobRepoPG) Create(ctx context.Context, j *Job) error {
	j.ID = uuid.New()
	if j.Status == "" {
		j.Status = JobPending
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO cleaning_job (id, bed_id, bed_number, ward, floor, section, room_number, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		j.ID, j.BedID, j.BedNumber, j.Ward, j.Floor, j.Section, j.RoomNumber, j.Status,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("Bed %s already has an open cleaning job", j.BedNumber)
	}
	if err != nil {
		return fmt.Errorf("insert cleaning job: %w", err)
	}
	return nil
}

func (r *jobRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Job, error) {
	j, err := scanJob(r.conn(ctx).QueryRow(ctx, `SELECT `+jobCols+` FROM cleaning_job WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("Cleaning job %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get cleaning job: %w", err)
	}
	return j, nil
}

func (r *jobRepoPG) FindOpenByBed(ctx context.Context, bedID uuid.UUID) (*Job, error) {
	j, err := scanJob(r.conn(ctx).QueryRow(ctx, `
		SELECT `+jobCols+` FROM cleaning_job
		WHERE bed_id = $1 AND status <> 'completed'
		ORDER BY created_at DESC LIMIT 1`, bedID))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open cleaning job: %w", err)
	}
	return j, nil
}

func (r *jobRepoPG) List(ctx context.Context, f JobFilter) ([]*Job, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Ward != "" {
		where += fmt.Sprintf(` AND ward = $%d`, idx)
		args = append(args, f.Ward)
		idx++
	}
	if f.StaffID != nil {
		where += fmt.Sprintf(` AND assigned_staff_id = $%d`, idx)
		args = append(args, *f.StaffID)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM cleaning_job`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cleaning jobs: %w", err)
	}

	query := `SELECT ` + jobCols + ` FROM cleaning_job` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list cleaning jobs: %w", err)
	}
	defer rows.Close()
	var items []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan cleaning job: %w", err)
		}
		items = append(items, j)
	}
	return items, total, rows.Err()
}

func (r *jobRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to JobStatus) (*Job, error) {
	j, err := scanJob(r.conn(ctx).QueryRow(ctx, `
		UPDATE cleaning_job SET
			status = $3,
			started_at = CASE WHEN $3 = 'active' THEN NOW() ELSE started_at END,
			completed_at = CASE WHEN $3 = 'completed' THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+jobCols, id, from, to))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update cleaning job status: %w", err)
	}
	return j, nil
}

func (r *jobRepoPG) SetAssignee(ctx context.Context, id uuid.UUID, prev *uuid.UUID, staff *Staff) (*Job, error) {
	j, err := scanJob(r.conn(ctx).QueryRow(ctx, `
		UPDATE cleaning_job SET assigned_staff_id = $3, assigned_staff_name = $4, updated_at = NOW()
		WHERE id = $1 AND status <> 'completed' AND assigned_staff_id IS NOT DISTINCT FROM $2
		RETURNING `+jobCols, id, prev, staff.ID, staff.Name))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("assign cleaning job: %w", err)
	}
	return j, nil
}

func (r *jobRepoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM cleaning_job WHERE id = $1 AND status <> 'completed'`, id)
	if err != nil {
		return false, fmt.Errorf("delete cleaning job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

type staffRepoPG struct{ pool *pgxpool.Pool }

func NewStaffRepoPG(pool *pgxpool.Pool) StaffRepository { return &staffRepoPG{pool: pool} }

func (r *staffRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const staffCols = `id, staff_code, name, status, active_jobs, completed_jobs, created_at, updated_at`

func scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff
	err := row.Scan(&s.ID, &s.StaffCode, &s.Name, &s.Status, &s.ActiveJobs, &s.CompletedJobs,
		&s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *staffRepoPG) Create(ctx context.Context, s *Staff) error {
	s.ID = uuid.New()
	s.Status = StaffAvailable
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO cleaning_staff (id, staff_code, name, status)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at`,
		s.ID, s.StaffCode, s.Name, s.Status,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("Staff code %s already exists", s.StaffCode)
	}
	if err != nil {
		return fmt.Errorf("insert cleaning staff: %w", err)
	}
	return nil
}

func (r *staffRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	s, err := scanStaff(r.conn(ctx).QueryRow(ctx, `SELECT `+staffCols+` FROM cleaning_staff WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("Cleaning staff %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get cleaning staff: %w", err)
	}
	return s, nil
}

func (r *staffRepoPG) GetByCode(ctx context.Context, code string) (*Staff, error) {
	s, err := scanStaff(r.conn(ctx).QueryRow(ctx, `SELECT `+staffCols+` FROM cleaning_staff WHERE staff_code = $1`, code))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("Cleaning staff %s not found", code)
	}
	if err != nil {
		return nil, fmt.Errorf("get cleaning staff by code: %w", err)
	}
	return s, nil
}

func (r *staffRepoPG) List(ctx context.Context, limit, offset int) ([]*Staff, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM cleaning_staff`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cleaning staff: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+staffCols+` FROM cleaning_staff
		ORDER BY staff_code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list cleaning staff: %w", err)
	}
	defer rows.Close()
	var items []*Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan cleaning staff: %w", err)
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *staffRepoPG) AdjustActive(ctx context.Context, id uuid.UUID, activeDelta, completedDelta int) (*Staff, error) {
	s, err := scanStaff(r.conn(ctx).QueryRow(ctx, `
		UPDATE cleaning_staff SET
			active_jobs = GREATEST(active_jobs + $2, 0),
			completed_jobs = completed_jobs + $3,
			status = CASE WHEN GREATEST(active_jobs + $2, 0) > 0 THEN 'busy' ELSE 'available' END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+staffCols, id, activeDelta, completedDelta))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("Cleaning staff %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("adjust cleaning staff: %w", err)
	}
	return s, nil
}
