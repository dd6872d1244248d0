package pgship

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"shipdispatch/internal/models"
)

// EnqueueAssignment records a shipment awaiting automatic reassignment.
// Re-enqueueing an already queued shipment is a no-op so the retry
// counter is never reset by a concurrent failed attempt.
func (s *Storage) EnqueueAssignment(ctx context.Context, shipmentID uint64, nextRetryAt time.Time) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO assignment_queue (shipment_id, retry_count, queued_at, next_retry_at)
VALUES ($1, 0, now(), $2)
ON CONFLICT (shipment_id) DO NOTHING
`, shipmentID, nextRetryAt.UTC())
	return errors.Wrap(err, "enqueue assignment")
}

func (s *Storage) RemoveFromQueue(ctx context.Context, shipmentID uint64) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM assignment_queue WHERE shipment_id = $1`, shipmentID)
	return errors.Wrap(err, "remove from queue")
}

// ClaimDueAssignments выбирает пачку due-записей и сразу двигает их
// next_retry_at вперёд, чтобы параллельный инстанс их не подхватил.
// Retry count растёт отдельно, только при реальной неудаче (BumpRetry).
func (s *Storage) ClaimDueAssignments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.QueueEntry, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT shipment_id, retry_count, queued_at, next_retry_at
FROM assignment_queue
WHERE next_retry_at <= $1
ORDER BY next_retry_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED
`, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due assignments")
	}
	defer rows.Close()

	var picked []*models.QueueEntry
	for rows.Next() {
		var e models.QueueEntry
		if err := rows.Scan(&e.ShipmentID, &e.RetryCount, &e.QueuedAt, &e.NextRetryAt); err != nil {
			return nil, errors.Wrap(err, "scan queue entry")
		}
		picked = append(picked, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, e := range picked {
		if _, err := tx.Exec(ctx,
			`UPDATE assignment_queue SET next_retry_at = $2 WHERE shipment_id = $1`,
			e.ShipmentID, leaseUntil); err != nil {
			return nil, errors.Wrap(err, "lease queue entry")
		}
		e.NextRetryAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

// BumpRetry increments the counter after a failed attempt and returns
// the new count.
func (s *Storage) BumpRetry(ctx context.Context, shipmentID uint64, nextRetryAt time.Time) (int32, error) {
	var count int32
	err := s.db.QueryRow(ctx, `
UPDATE assignment_queue
SET retry_count = retry_count + 1, next_retry_at = $2
WHERE shipment_id = $1
RETURNING retry_count
`, shipmentID, nextRetryAt.UTC()).Scan(&count)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "bump retry")
	}
	return count, nil
}
