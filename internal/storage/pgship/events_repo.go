package pgship

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"shipdispatch/internal/models"
)

const eventColumns = `
  id, shipment_id, status_key, description,
  location_name, location_address, lat, lng,
  actor, event_time, created_at`

func scanEvent(row pgx.Row) (*models.TrackingEvent, error) {
	var e models.TrackingEvent
	err := row.Scan(
		&e.ID, &e.ShipmentID, &e.StatusKey, &e.Description,
		&e.LocationName, &e.LocationAddress, &e.Lat, &e.Lng,
		&e.Actor, &e.EventTime, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// InsertTrackingEvent appends a ledger row and denormalizes the
// shipment's current location / last update in the same transaction.
// Replays are not deduplicated: the ledger is append-only.
func (s *Storage) InsertTrackingEvent(ctx context.Context, e *models.TrackingEvent) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id uint64
	err = tx.QueryRow(ctx, `
INSERT INTO tracking_events (
  shipment_id, status_key, description,
  location_name, location_address, lat, lng,
  actor, event_time, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())
RETURNING id
`, e.ShipmentID, e.StatusKey, e.Description,
		e.LocationName, e.LocationAddress, e.Lat, e.Lng,
		e.Actor, e.EventTime.UTC()).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert tracking event")
	}

	// last_update_at only moves forward; simulated events may carry
	// older event times than already-recorded real ones.
	_, err = tx.Exec(ctx, `
UPDATE shipments
SET
  current_location = CASE WHEN $2 <> '' THEN $2 ELSE current_location END,
  last_update_at = GREATEST(COALESCE(last_update_at, $3), $3)
WHERE id = $1
`, e.ShipmentID, e.LocationName, e.EventTime.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "denormalize shipment")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return id, nil
}

func (s *Storage) ListTrackingEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.TrackingEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT `+eventColumns+`
FROM tracking_events
WHERE shipment_id = $1
ORDER BY event_time DESC, id DESC
LIMIT $2 OFFSET $3
`, shipmentID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.TrackingEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) LatestTrackingEvent(ctx context.Context, shipmentID uint64) (*models.TrackingEvent, error) {
	e, err := scanEvent(s.db.QueryRow(ctx, `
SELECT `+eventColumns+`
FROM tracking_events
WHERE shipment_id = $1
ORDER BY event_time DESC, id DESC
LIMIT 1
`, shipmentID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select latest event")
	}
	return e, nil
}
