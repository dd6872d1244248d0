package pgship

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"shipdispatch/internal/models"
)

const shipmentColumns = `
  id, tracking_number, status,
  pickup_lat, pickup_lng, pickup_address,
  delivery_lat, delivery_lng, delivery_address,
  pickup_office_id, delivery_office_id,
  pickup_courier_id, delivery_courier_id, primary_courier_id,
  cod_amount, cod_collected, failure_reason,
  current_location, last_update_at,
  created_at, assigned_at, picked_up_at, delivered_at`

func scanShipment(row pgx.Row) (*models.Shipment, error) {
	var sh models.Shipment
	err := row.Scan(
		&sh.ID, &sh.TrackingNumber, &sh.Status,
		&sh.PickupLat, &sh.PickupLng, &sh.PickupAddress,
		&sh.DeliveryLat, &sh.DeliveryLng, &sh.DeliveryAddress,
		&sh.PickupOfficeID, &sh.DeliveryOfficeID,
		&sh.PickupCourierID, &sh.DeliveryCourierID, &sh.PrimaryCourierID,
		&sh.CODAmount, &sh.CODCollected, &sh.FailureReason,
		&sh.CurrentLocation, &sh.LastUpdateAt,
		&sh.CreatedAt, &sh.AssignedAt, &sh.PickedUpAt, &sh.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

func (s *Storage) CreateShipment(ctx context.Context, sh *models.Shipment) (uint64, error) {
	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO shipments (
  tracking_number, status,
  pickup_lat, pickup_lng, pickup_address,
  delivery_lat, delivery_lng, delivery_address,
  cod_amount, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())
RETURNING id
`, sh.TrackingNumber, models.ShipmentCreated,
		sh.PickupLat, sh.PickupLng, sh.PickupAddress,
		sh.DeliveryLat, sh.DeliveryLng, sh.DeliveryAddress,
		sh.CODAmount).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert shipment")
	}
	return id, nil
}

func (s *Storage) GetShipment(ctx context.Context, id uint64) (*models.Shipment, error) {
	sh, err := scanShipment(s.db.QueryRow(ctx,
		`SELECT `+shipmentColumns+` FROM shipments WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select shipment")
	}
	return sh, nil
}

// AssignmentCommit is everything persisted atomically when a courier
// pair is committed to a shipment.
type AssignmentCommit struct {
	ShipmentID        uint64
	PickupOfficeID    uint64
	DeliveryOfficeID  uint64
	PickupCourierID   uint64
	DeliveryCourierID uint64
	AssignedAt        time.Time
}

// CommitAssignment claims the shipment for the pickup leg. The status
// guard makes racing writers lose cleanly: the second committer sees
// zero rows.
func (s *Storage) CommitAssignment(ctx context.Context, c AssignmentCommit) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE shipments
SET
  status = $2,
  pickup_office_id = $3,
  delivery_office_id = $4,
  pickup_courier_id = $5,
  delivery_courier_id = $6,
  primary_courier_id = $5,
  assigned_at = $7
WHERE id = $1 AND status IN ($8, $9)
`, c.ShipmentID, models.ShipmentAssigned,
		c.PickupOfficeID, c.DeliveryOfficeID,
		c.PickupCourierID, c.DeliveryCourierID,
		c.AssignedAt.UTC(),
		models.ShipmentCreated, models.ShipmentPendingAssignment)
	if err != nil {
		return false, errors.Wrap(err, "commit assignment")
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateShipmentStatus persists a transition with an allowed-from guard
// so an illegal transition can never be stored, even under races.
// Leg timestamps are stamped from the target status.
func (s *Storage) UpdateShipmentStatus(ctx context.Context, id uint64, to string, allowedFrom []string, at time.Time) (bool, error) {
	q := `UPDATE shipments SET status = $2`
	switch to {
	case models.ShipmentPickedUp:
		q += `, picked_up_at = $3`
	case models.ShipmentDelivered:
		q += `, delivered_at = $3, cod_collected = (cod_amount > 0)`
	case models.ShipmentDelivering:
		q += `, primary_courier_id = delivery_courier_id, last_update_at = $3`
	default:
		q += `, last_update_at = $3`
	}
	q += ` WHERE id = $1 AND status = ANY($4)`

	tag, err := s.db.Exec(ctx, q, id, to, at.UTC(), allowedFrom)
	if err != nil {
		return false, errors.Wrap(err, "update shipment status")
	}
	return tag.RowsAffected() == 1, nil
}

// PromoteDeliveryCourier moves the shipment to DELIVERING and persists
// the courier taking the delivery leg in the same statement, so a
// replacement courier can never be lost between claim and transition.
func (s *Storage) PromoteDeliveryCourier(ctx context.Context, id, courierID uint64, allowedFrom []string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE shipments
SET
  status = $2,
  delivery_courier_id = $3,
  primary_courier_id = $3,
  last_update_at = $4
WHERE id = $1 AND status = ANY($5)
`, id, models.ShipmentDelivering, courierID, at.UTC(), allowedFrom)
	if err != nil {
		return false, errors.Wrap(err, "promote delivery courier")
	}
	return tag.RowsAffected() == 1, nil
}

// ResetAssignment returns a rejected shipment to CREATED with courier
// fields cleared. Only an ASSIGNED shipment can be reset.
func (s *Storage) ResetAssignment(ctx context.Context, id uint64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE shipments
SET
  status = $2,
  pickup_courier_id = NULL,
  delivery_courier_id = NULL,
  primary_courier_id = NULL,
  assigned_at = NULL
WHERE id = $1 AND status = $3
`, id, models.ShipmentCreated, models.ShipmentAssigned)
	if err != nil {
		return false, errors.Wrap(err, "reset assignment")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Storage) SetFailureReason(ctx context.Context, id uint64, reason string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE shipments SET failure_reason = $2 WHERE id = $1`, id, reason)
	return errors.Wrap(err, "set failure reason")
}

// FindActiveByCourier lists shipments where the courier holds the
// active leg and the lifecycle is not finished.
func (s *Storage) FindActiveByCourier(ctx context.Context, courierID uint64) ([]*models.Shipment, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+shipmentColumns+`
FROM shipments
WHERE primary_courier_id = $1
  AND status NOT IN ($2, $3, $4)
ORDER BY created_at ASC
`, courierID, models.ShipmentDelivered, models.ShipmentCancelled, models.ShipmentReturned)
	if err != nil {
		return nil, errors.Wrap(err, "select active by courier")
	}
	defer rows.Close()

	var out []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan shipment")
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
