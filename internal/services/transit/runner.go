package transit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"shipdispatch/internal/models"
	"shipdispatch/internal/services/tracking"
)

type JobClaimer interface {
	ClaimDueTransitJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.TransitJob, error)
	MarkTransitJobDone(ctx context.Context, id uint64) error
}

type ShipmentStore interface {
	GetShipment(ctx context.Context, id uint64) (*models.Shipment, error)
	UpdateShipmentStatus(ctx context.Context, id uint64, to string, allowedFrom []string, at time.Time) (bool, error)
}

type LedgerAppender interface {
	Append(ctx context.Context, shipmentID uint64, statusKey string, d tracking.Details) (*models.TrackingEvent, error)
}

// DeliveryAssigner is the dispatcher callback fired by the final hop.
type DeliveryAssigner interface {
	AssignDeliveryLeg(ctx context.Context, shipmentID uint64) error
}

// Runner drains due transit jobs: ticker-driven, manually triggerable,
// bounded concurrency, jobs leased so a second instance cannot execute
// the same hop.
type Runner struct {
	jobs      JobClaimer
	shipments ShipmentStore
	offices   OfficeStore
	ledger    LedgerAppender
	assigner  DeliveryAssigner

	pollInterval time.Duration
	batchSize    int
	concurrency  int
	lease        time.Duration

	triggerCh chan struct{}
	now       func() time.Time

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func NewRunner(jobs JobClaimer, shipments ShipmentStore, offices OfficeStore, ledger LedgerAppender, assigner DeliveryAssigner) *Runner {
	return &Runner{
		jobs:      jobs,
		shipments: shipments,
		offices:   offices,
		ledger:    ledger,
		assigner:  assigner,

		pollInterval: 2 * time.Second,
		batchSize:    100,
		concurrency:  10,
		lease:        60 * time.Second,

		triggerCh:         make(chan struct{}, 1),
		now:               func() time.Time { return time.Now().UTC() },
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (r *Runner) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration) *Runner {
	if pollInterval > 0 {
		r.pollInterval = pollInterval
	}
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	if concurrency > 0 {
		r.concurrency = concurrency
	}
	if lease > 0 {
		r.lease = lease
	}
	return r
}

func (r *Runner) WithClock(now func() time.Time) *Runner {
	if now != nil {
		r.now = now
	}
	return r
}

// Trigger forces an immediate cycle (best-effort, non-blocking).
func (r *Runner) Trigger() {
	r.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (r *Runner) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalClaimed:   r.totalClaimed.Load(),
		TotalProcessed: r.totalProcessed.Load(),
		TotalErrors:    r.totalErrors.Load(),
		InFlight:       r.inFlight.Load(),
	}
	if n := r.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Runner) Run(ctx context.Context) error {
	t := time.NewTicker(r.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.RunOnce(ctx)
		case <-r.triggerCh:
			r.RunOnce(ctx)
		}
	}
}

func (r *Runner) RunOnce(ctx context.Context) {
	now := r.now()
	r.lastCycleUnixNano.Store(now.UnixNano())

	jobs, err := r.jobs.ClaimDueTransitJobs(ctx, now, r.batchSize, r.lease)
	if err != nil {
		slog.Error("claim due transit jobs", "error", err.Error())
		r.recordError(err)
		return
	}
	r.totalClaimed.Add(int64(len(jobs)))

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, j := range jobs {
		sem <- struct{}{}
		wg.Add(1)
		job := j
		r.inFlight.Add(1)
		go func() {
			defer func() {
				r.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := r.processOne(ctx, job); err != nil {
				r.totalErrors.Add(1)
				r.recordError(err)
				slog.Error("process transit job",
					"job_id", job.ID, "shipment_id", job.ShipmentID, "seq", job.Seq, "error", err.Error())
			}
			r.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

func (r *Runner) recordError(err error) {
	r.lastErrorMu.Lock()
	r.lastError = err.Error()
	r.lastErrorMu.Unlock()
}

// processOne executes a single hop. A shipment that left the transit
// lifecycle (cancelled, returned, delivered) retires the job silently.
func (r *Runner) processOne(ctx context.Context, job *models.TransitJob) error {
	sh, err := r.shipments.GetShipment(ctx, job.ShipmentID)
	if err != nil {
		return err
	}
	if sh == nil || sh.Terminal() {
		return r.jobs.MarkTransitJobDone(ctx, job.ID)
	}

	// Время события — плановое время хопа, не момент исполнения: после
	// простоя воркера вся пачка выполняется разом, и только run_at
	// сохраняет порядок хопов при сортировке по event_time.
	d := tracking.Details{EventTime: job.RunAt}
	if job.OfficeID != nil {
		office, err := r.offices.GetOffice(ctx, *job.OfficeID)
		if err != nil {
			return err
		}
		if office != nil {
			d.LocationName = office.Name
			d.LocationAddress = office.Address
			d.Lat = &office.Lat
			d.Lng = &office.Lng
		}
	}

	if _, err := r.ledger.Append(ctx, job.ShipmentID, job.StatusKey, d); err != nil {
		return err
	}

	switch job.StatusKey {
	case models.TrackArrivedPickupOffice:
		// Первый хоп переводит заявку в IN_TRANSIT; guard по статусу
		// делает повторное выполнение безопасным.
		if _, err := r.shipments.UpdateShipmentStatus(ctx, job.ShipmentID, models.ShipmentInTransit,
			[]string{models.ShipmentPickedUp}, r.now()); err != nil {
			return err
		}
	case models.TrackArrivedDeliveryOffice:
		if _, err := r.shipments.UpdateShipmentStatus(ctx, job.ShipmentID, models.ShipmentReadyForDelivery,
			[]string{models.ShipmentInTransit, models.ShipmentPickedUp}, r.now()); err != nil {
			return err
		}
		if err := r.assigner.AssignDeliveryLeg(ctx, job.ShipmentID); err != nil {
			// Хоп выполнен, заявка стоит в READY_FOR_DELIVERY; назначение
			// доставки можно повторить вручную через POST /assign.
			slog.Error("assign delivery leg", "shipment_id", job.ShipmentID, "error", err.Error())
		}
	}

	return r.jobs.MarkTransitJobDone(ctx, job.ID)
}
