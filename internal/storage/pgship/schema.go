package pgship

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS offices (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  type TEXT NOT NULL,
  region TEXT NOT NULL,
  lat DOUBLE PRECISION NOT NULL,
  lng DOUBLE PRECISION NOT NULL,
  address TEXT NOT NULL DEFAULT '',
  active BOOLEAN NOT NULL DEFAULT TRUE
)`,
		`CREATE INDEX IF NOT EXISTS idx_offices_type_lat_lng ON offices(type, lat, lng)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_offices_regional_hub ON offices(region) WHERE type = 'REGIONAL'`,
		`
CREATE TABLE IF NOT EXISTS couriers (
  id BIGSERIAL PRIMARY KEY,
  full_name TEXT NOT NULL,
  phone TEXT NOT NULL DEFAULT '',
  online BOOLEAN NOT NULL DEFAULT FALSE,
  available BOOLEAN NOT NULL DEFAULT FALSE,
  vehicle_type TEXT NOT NULL DEFAULT 'MOTORBIKE',
  office_id BIGINT NOT NULL REFERENCES offices(id),
  last_lat DOUBLE PRECISION NULL,
  last_lng DOUBLE PRECISION NULL,
  position_at TIMESTAMPTZ NULL,
  pickup_load INT NOT NULL DEFAULT 0,
  delivery_load INT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_couriers_office_status ON couriers(office_id, online, available)`,
		`CREATE INDEX IF NOT EXISTS idx_couriers_last_pos ON couriers(last_lat, last_lng)`,
		`
CREATE TABLE IF NOT EXISTS shipments (
  id BIGSERIAL PRIMARY KEY,
  tracking_number TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL,
  pickup_lat DOUBLE PRECISION NOT NULL,
  pickup_lng DOUBLE PRECISION NOT NULL,
  pickup_address TEXT NOT NULL DEFAULT '',
  delivery_lat DOUBLE PRECISION NOT NULL,
  delivery_lng DOUBLE PRECISION NOT NULL,
  delivery_address TEXT NOT NULL DEFAULT '',
  pickup_office_id BIGINT NULL REFERENCES offices(id),
  delivery_office_id BIGINT NULL REFERENCES offices(id),
  pickup_courier_id BIGINT NULL REFERENCES couriers(id),
  delivery_courier_id BIGINT NULL REFERENCES couriers(id),
  primary_courier_id BIGINT NULL REFERENCES couriers(id),
  cod_amount BIGINT NOT NULL DEFAULT 0,
  cod_collected BOOLEAN NOT NULL DEFAULT FALSE,
  failure_reason TEXT NULL,
  current_location TEXT NOT NULL DEFAULT '',
  last_update_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  assigned_at TIMESTAMPTZ NULL,
  picked_up_at TIMESTAMPTZ NULL,
  delivered_at TIMESTAMPTZ NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_status ON shipments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_primary_courier ON shipments(primary_courier_id)`,
		`
CREATE TABLE IF NOT EXISTS tracking_events (
  id BIGSERIAL PRIMARY KEY,
  shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
  status_key TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  location_name TEXT NOT NULL DEFAULT '',
  location_address TEXT NOT NULL DEFAULT '',
  lat DOUBLE PRECISION NULL,
  lng DOUBLE PRECISION NULL,
  actor TEXT NOT NULL DEFAULT 'SYSTEM',
  event_time TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_events_shipment_event_time ON tracking_events(shipment_id, event_time DESC)`,
		`
CREATE TABLE IF NOT EXISTS assignment_queue (
  shipment_id BIGINT PRIMARY KEY REFERENCES shipments(id) ON DELETE CASCADE,
  retry_count INT NOT NULL DEFAULT 0,
  queued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  next_retry_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_assignment_queue_next_retry ON assignment_queue(next_retry_at)`,
		`
CREATE TABLE IF NOT EXISTS transit_jobs (
  id BIGSERIAL PRIMARY KEY,
  shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
  seq INT NOT NULL,
  status_key TEXT NOT NULL,
  office_id BIGINT NULL REFERENCES offices(id),
  run_at TIMESTAMPTZ NOT NULL,
  done BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (shipment_id, seq)
)`,
		`CREATE INDEX IF NOT EXISTS idx_transit_jobs_due ON transit_jobs(done, run_at)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
