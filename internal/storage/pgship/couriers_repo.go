package pgship

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"shipdispatch/internal/geo"
	"shipdispatch/internal/models"
)

// Leg selects which load counter an operation touches.
type Leg string

const (
	LegPickup   Leg = "pickup"
	LegDelivery Leg = "delivery"
)

func (l Leg) counterColumn() string {
	if l == LegDelivery {
		return "delivery_load"
	}
	return "pickup_load"
}

const courierColumns = `
  id, full_name, phone, online, available,
  vehicle_type, office_id,
  last_lat, last_lng, position_at,
  pickup_load, delivery_load,
  created_at, updated_at`

func scanCourier(row pgx.Row) (*models.Courier, error) {
	var c models.Courier
	err := row.Scan(
		&c.ID, &c.FullName, &c.Phone, &c.Online, &c.Available,
		&c.VehicleType, &c.OfficeID,
		&c.LastLat, &c.LastLng, &c.PositionAt,
		&c.PickupLoad, &c.DeliveryLoad,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Storage) CreateCourier(ctx context.Context, c *models.Courier) (uint64, error) {
	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO couriers (full_name, phone, online, available, vehicle_type, office_id)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id
`, c.FullName, c.Phone, c.Online, c.Available, c.VehicleType, c.OfficeID).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert courier")
	}
	return id, nil
}

func (s *Storage) GetCourier(ctx context.Context, id uint64) (*models.Courier, error) {
	c, err := scanCourier(s.db.QueryRow(ctx,
		`SELECT `+courierColumns+` FROM couriers WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select courier")
	}
	return c, nil
}

// ListCandidates returns up to limit online+available couriers of an
// office ordered by the leg's load counter ascending.
func (s *Storage) ListCandidates(ctx context.Context, officeID uint64, leg Leg, limit int, exclude []uint64) ([]*models.Courier, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if exclude == nil {
		exclude = []uint64{}
	}

	rows, err := s.db.Query(ctx, `
SELECT `+courierColumns+`
FROM couriers
WHERE office_id = $1
  AND online AND available
  AND NOT (id = ANY($2))
ORDER BY `+leg.counterColumn()+` ASC, id ASC
LIMIT $3
`, officeID, exclude, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select candidates")
	}
	defer rows.Close()

	var out []*models.Courier
	for rows.Next() {
		c, err := scanCourier(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan candidate")
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ClaimCourier bumps the leg counter in a single statement. Zero rows
// means a racing writer took the courier offline or claimed it away.
func (s *Storage) ClaimCourier(ctx context.Context, id uint64, leg Leg) (bool, error) {
	col := leg.counterColumn()
	tag, err := s.db.Exec(ctx, `
UPDATE couriers
SET `+col+` = `+col+` + 1, updated_at = now()
WHERE id = $1 AND online AND available
`, id)
	if err != nil {
		return false, errors.Wrap(err, "claim courier")
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseCourier decrements the leg counter, clamped at zero so a
// double release cannot underflow.
func (s *Storage) ReleaseCourier(ctx context.Context, id uint64, leg Leg) error {
	col := leg.counterColumn()
	_, err := s.db.Exec(ctx, `
UPDATE couriers
SET `+col+` = GREATEST(`+col+` - 1, 0), updated_at = now()
WHERE id = $1
`, id)
	return errors.Wrap(err, "release courier")
}

// UpdateCourierPosition persists the last-known position column the geo
// cache falls back to.
func (s *Storage) UpdateCourierPosition(ctx context.Context, id uint64, lat, lng float64, at time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE couriers
SET last_lat = $2, last_lng = $3, position_at = $4, updated_at = now()
WHERE id = $1
`, id, lat, lng, at.UTC())
	return errors.Wrap(err, "update courier position")
}

func (s *Storage) SetCourierOnline(ctx context.Context, id uint64, online bool) error {
	_, err := s.db.Exec(ctx,
		`UPDATE couriers SET online = $2, updated_at = now() WHERE id = $1`, id, online)
	return errors.Wrap(err, "set courier online")
}

// ListCouriersInBox is the bounding-box fallback scan for radius
// queries when the geo backend is unavailable.
func (s *Storage) ListCouriersInBox(ctx context.Context, box geo.BoundingBox, limit int) ([]*models.Courier, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
SELECT `+courierColumns+`
FROM couriers
WHERE online
  AND last_lat BETWEEN $1 AND $2
  AND last_lng BETWEEN $3 AND $4
LIMIT $5
`, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select couriers in box")
	}
	defer rows.Close()

	var out []*models.Courier
	for rows.Next() {
		c, err := scanCourier(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan courier")
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
