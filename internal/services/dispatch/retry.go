package dispatch

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"shipdispatch/internal/broker/messages"
	"shipdispatch/internal/errs"
	"shipdispatch/internal/models"
)

// ProcessRetryQueue claims one batch of due queue entries and re-runs
// the assignment for each. A still-failing entry gets its retry counter
// bumped; hitting the ceiling removes it and raises one admin alert.
// Returns how many shipments were assigned this pass.
func (s *Service) ProcessRetryQueue(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	entries, err := s.queue.ClaimDueAssignments(ctx, s.now(), batchSize, s.cfg.RetryInterval)
	if err != nil {
		return 0, err
	}

	assigned := 0
	for _, e := range entries {
		ok, err := s.retryOne(ctx, e)
		if err != nil {
			slog.Warn("assignment retry failed",
				"shipment_id", e.ShipmentID, "retry_count", e.RetryCount, "error", err.Error())
			continue
		}
		if ok {
			assigned++
		}
	}
	return assigned, nil
}

func (s *Service) retryOne(ctx context.Context, e *models.QueueEntry) (bool, error) {
	sh, err := s.shipments.GetShipment(ctx, e.ShipmentID)
	if err != nil {
		return false, err
	}
	if sh == nil || sh.Status != models.ShipmentPendingAssignment {
		// Заявка ушла из PENDING_ASSIGNMENT мимо очереди — подчистим.
		return false, s.queue.RemoveFromQueue(ctx, e.ShipmentID)
	}

	err = s.assign(ctx, sh, nil)
	if err == nil {
		return true, nil
	}

	switch errs.CodeOf(err) {
	case errs.CodeNoShipperAvailable, errs.CodeNoOfficeFound:
	default:
		return false, err
	}

	count, err2 := s.queue.BumpRetry(ctx, e.ShipmentID, s.now().Add(s.cfg.RetryInterval))
	if err2 != nil {
		return false, err2
	}
	if count >= s.cfg.MaxRetries {
		if err2 := s.queue.RemoveFromQueue(ctx, e.ShipmentID); err2 != nil {
			return false, err2
		}
		s.publishQuiet(ctx, s.cfg.AlertTopic, e.ShipmentID, messages.AdminAlert{
			MessageID:  uuid.NewString(),
			Kind:       messages.AlertAssignmentExhausted,
			ShipmentID: e.ShipmentID,
			Detail:     "assignment retries exhausted, manual intervention required",
			RaisedAt:   s.now(),
		})
		slog.Error("assignment retries exhausted", "shipment_id", e.ShipmentID, "retries", count)
	}
	return false, err
}

// RetryProcessor runs ProcessRetryQueue on a cron schedule.
type RetryProcessor struct {
	svc       *Service
	cron      *cron.Cron
	batchSize int

	passes   atomic.Uint64
	assigned atomic.Uint64
}

func NewRetryProcessor(svc *Service, batchSize int) *RetryProcessor {
	return &RetryProcessor{
		svc:       svc,
		cron:      cron.New(cron.WithSeconds()),
		batchSize: batchSize,
	}
}

func (p *RetryProcessor) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = p.svc.cfg.RetryInterval
	}
	_, err := p.cron.AddFunc("@every "+interval.String(), func() { p.RunOnce(ctx) })
	if err != nil {
		return err
	}
	p.cron.Start()
	return nil
}

func (p *RetryProcessor) RunOnce(ctx context.Context) {
	n, err := p.svc.ProcessRetryQueue(ctx, p.batchSize)
	if err != nil {
		slog.Error("retry queue pass", "error", err.Error())
		return
	}
	p.passes.Add(1)
	p.assigned.Add(uint64(n))
	if n > 0 {
		slog.Info("retry queue pass", "assigned", n)
	}
}

func (p *RetryProcessor) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
}

// Stats reports lifetime pass and assignment counts.
func (p *RetryProcessor) Stats() (passes, assigned uint64) {
	return p.passes.Load(), p.assigned.Load()
}
