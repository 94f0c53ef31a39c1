package bed

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

const bedCols = `id, bed_number, ward, status, equipment_type, patient_id, floor, section,
	room_number, notes, ever_occupied, last_cleaned_at, created_at, updated_at`

func scanBed(row pgx.Row) (*Bed, error) {
	var b Bed
	err := row.Scan(&b.ID, &b.BedNumber, &b.Ward, &b.Status, &b.EquipmentType, &b.PatientID,
		&b.Floor, &b.Section, &b.RoomNumber, &b.Notes, &b.EverOccupied, &b.LastCleanedAt,
		&b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *repoPG) Create(ctx context.Context, b *Bed) error {
	b.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bed (id, bed_number, ward, status, equipment_type, floor, section, room_number, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		b.ID, b.BedNumber, b.Ward, b.Status, b.EquipmentType, b.Floor, b.Section, b.RoomNumber, b.Notes,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("Bed %s already exists", b.BedNumber)
	}
	if err != nil {
		return fmt.Errorf("insert bed: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bed, error) {
	b, err := scanBed(r.conn(ctx).QueryRow(ctx, `SELECT `+bedCols+` FROM bed WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("Bed %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get bed: %w", err)
	}
	return b, nil
}

func (r *repoPG) GetByNumber(ctx context.Context, number string) (*Bed, error) {
	b, err := scanBed(r.conn(ctx).QueryRow(ctx, `SELECT `+bedCols+` FROM bed WHERE bed_number = $1`, number))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("Bed %s not found", number)
	}
	if err != nil {
		return nil, fmt.Errorf("get bed by number: %w", err)
	}
	return b, nil
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*Bed, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.Ward != "" {
		where += fmt.Sprintf(` AND ward = $%d`, idx)
		args = append(args, f.Ward)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.EquipmentType != "" {
		where += fmt.Sprintf(` AND equipment_type = $%d`, idx)
		args = append(args, f.EquipmentType)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bed`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count beds: %w", err)
	}

	query := `SELECT ` + bedCols + ` FROM bed` + where +
		fmt.Sprintf(` ORDER BY ward, bed_number LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	items, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) ListByWard(ctx context.Context, ward string) ([]*Bed, error) {
	return r.query(ctx, `SELECT `+bedCols+` FROM bed WHERE ward = $1 ORDER BY bed_number`, ward)
}

func (r *repoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Bed, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list beds: %w", err)
	}
	defer rows.Close()
	var items []*Bed
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bed: %w", err)
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, b *Bed) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bed SET equipment_type=$2, floor=$3, section=$4, room_number=$5, notes=$6, updated_at=NOW()
		WHERE id = $1`,
		b.ID, b.EquipmentType, b.Floor, b.Section, b.RoomNumber, b.Notes)
	if err != nil {
		return fmt.Errorf("update bed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Bed %s not found", b.ID)
	}
	return nil
}

func (r *repoPG) ApplyChange(ctx context.Context, id uuid.UUID, from Status, ch Change) (*Bed, error) {
	var patientID *uuid.UUID
	if ch.To == StatusOccupied {
		patientID = ch.PatientID
	}
	b, err := scanBed(r.conn(ctx).QueryRow(ctx, `
		UPDATE bed SET
			status = $3,
			patient_id = $4,
			notes = COALESCE($5, notes),
			ever_occupied = ever_occupied OR $4::uuid IS NOT NULL,
			last_cleaned_at = CASE WHEN $6 THEN NOW() ELSE last_cleaned_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+bedCols,
		id, from, ch.To, patientID, ch.Notes, ch.Cleaned))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update bed status: %w", err)
	}
	return b, nil
}

func (r *repoPG) FindAvailable(ctx context.Context, ward string, equipment []string) (*Bed, error) {
	b, err := scanBed(r.conn(ctx).QueryRow(ctx, `
		SELECT `+bedCols+` FROM bed
		WHERE ward = $1 AND status = 'available' AND equipment_type = ANY($2)
		ORDER BY bed_number
		LIMIT 1`, ward, equipment))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find available bed: %w", err)
	}
	return b, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM bed WHERE id = $1 AND status NOT IN ('occupied', 'reserved')`, id)
	if db.IsForeignKeyViolation(err) {
		return apperr.Conflict("Bed %s is still referenced by patient records", id)
	}
	if err != nil {
		return fmt.Errorf("delete bed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		b, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return apperr.Conflict("Bed %s cannot be deleted while %s", b.BedNumber, b.Status)
	}
	return nil
}

func (r *repoPG) CountByWardStatus(ctx context.Context) ([]WardCount, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT ward, status, COUNT(*) FROM bed GROUP BY ward, status ORDER BY ward, status`)
	if err != nil {
		return nil, fmt.Errorf("count beds by ward: %w", err)
	}
	defer rows.Close()
	var out []WardCount
	for rows.Next() {
		var wc WardCount
		if err := rows.Scan(&wc.Ward, &wc.Status, &wc.Count); err != nil {
			return nil, err
		}
		out = append(out, wc)
	}
	return out, rows.Err()
}
