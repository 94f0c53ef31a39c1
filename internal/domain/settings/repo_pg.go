package settings

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bedtrack/bedtrack/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) Load(ctx context.Context) (*Settings, error) {
	var s Settings
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT reservation_ttl_hours::float8, critical_occupancy_pct, emergency_ward, ward_capacity, updated_at
		FROM hospital_settings WHERE id = 1`,
	).Scan(&s.ReservationTTLHours, &s.CriticalOccupancyPct, &s.EmergencyWard, &s.WardCapacity, &s.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) Save(ctx context.Context, s *Settings) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO hospital_settings (id, reservation_ttl_hours, critical_occupancy_pct, emergency_ward, ward_capacity, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			reservation_ttl_hours = EXCLUDED.reservation_ttl_hours,
			critical_occupancy_pct = EXCLUDED.critical_occupancy_pct,
			emergency_ward = EXCLUDED.emergency_ward,
			ward_capacity = EXCLUDED.ward_capacity,
			updated_at = EXCLUDED.updated_at`,
		s.ReservationTTLHours, s.CriticalOccupancyPct, s.EmergencyWard, s.WardCapacity, s.UpdatedAt)
	return err
}
