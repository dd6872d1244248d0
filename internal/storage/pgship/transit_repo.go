package pgship

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"shipdispatch/internal/models"
)

// ScheduleTransitJobs inserts a shipment's hop sequence in one
// transaction. Scheduling the same shipment twice is a no-op per hop
// (unique on shipment_id+seq) so a replayed pickup confirmation does
// not duplicate the route.
func (s *Storage) ScheduleTransitJobs(ctx context.Context, jobs []*models.TransitJob) error {
	if len(jobs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, j := range jobs {
		_, err := tx.Exec(ctx, `
INSERT INTO transit_jobs (shipment_id, seq, status_key, office_id, run_at, created_at)
VALUES ($1,$2,$3,$4,$5, now())
ON CONFLICT (shipment_id, seq) DO NOTHING
`, j.ShipmentID, j.Seq, j.StatusKey, j.OfficeID, j.RunAt.UTC())
		if err != nil {
			return errors.Wrap(err, "insert transit job")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// ClaimDueTransitJobs бронирует готовые к выполнению хопы, сдвигая
// run_at на lease вперёд (SELECT ... FOR UPDATE SKIP LOCKED), чтобы
// упавший воркер не потерял джобу, а живой не выполнил её дважды.
func (s *Storage) ClaimDueTransitJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.TransitJob, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT id, shipment_id, seq, status_key, office_id, run_at, done, created_at
FROM transit_jobs
WHERE NOT done AND run_at <= $1
ORDER BY run_at ASC, seq ASC
LIMIT $2
FOR UPDATE SKIP LOCKED
`, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due transit jobs")
	}
	defer rows.Close()

	var picked []*models.TransitJob
	for rows.Next() {
		var j models.TransitJob
		if err := rows.Scan(&j.ID, &j.ShipmentID, &j.Seq, &j.StatusKey, &j.OfficeID, &j.RunAt, &j.Done, &j.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan transit job")
		}
		picked = append(picked, &j)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, j := range picked {
		if _, err := tx.Exec(ctx,
			`UPDATE transit_jobs SET run_at = $2 WHERE id = $1`, j.ID, leaseUntil); err != nil {
			return nil, errors.Wrap(err, "lease transit job")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

func (s *Storage) MarkTransitJobDone(ctx context.Context, id uint64) error {
	_, err := s.db.Exec(ctx, `UPDATE transit_jobs SET done = TRUE WHERE id = $1`, id)
	return errors.Wrap(err, "mark transit job done")
}

// PendingTransitJobs reports how many hops remain for a shipment.
func (s *Storage) PendingTransitJobs(ctx context.Context, shipmentID uint64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM transit_jobs WHERE shipment_id = $1 AND NOT done`, shipmentID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count pending transit jobs")
	}
	return n, nil
}
