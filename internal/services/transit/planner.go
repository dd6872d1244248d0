package transit

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"shipdispatch/internal/errs"
	"shipdispatch/internal/models"
)

type JobStore interface {
	ScheduleTransitJobs(ctx context.Context, jobs []*models.TransitJob) error
}

type OfficeStore interface {
	GetOffice(ctx context.Context, id uint64) (*models.Office, error)
	GetRegionalHub(ctx context.Context, region string) (*models.Office, error)
}

type PlannerConfig struct {
	HopDelay time.Duration // default: 30 seconds between hops
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{HopDelay: 30 * time.Second}
}

// Planner turns a picked-up shipment into its hop sequence. Same-region
// routes pass one regional hub (five hops); cross-region routes pass
// the hub on each side (seven hops). Every hop is a persisted job, so
// a restart resumes the route where it stopped.
type Planner struct {
	offices OfficeStore
	cfg     PlannerConfig
}

func NewPlanner(offices OfficeStore, cfg PlannerConfig) *Planner {
	def := DefaultPlannerConfig()
	if cfg.HopDelay <= 0 {
		cfg.HopDelay = def.HopDelay
	}
	return &Planner{offices: offices, cfg: cfg}
}

type hop struct {
	statusKey string
	officeID  *uint64
}

// Plan builds the job rows for a shipment. from is the pickup time;
// hop i runs at from + (i+1) * HopDelay.
func (p *Planner) Plan(ctx context.Context, sh *models.Shipment, from time.Time) ([]*models.TransitJob, error) {
	if sh.PickupOfficeID == nil || sh.DeliveryOfficeID == nil {
		return nil, errs.New(errs.CodeNoOfficeFound, "shipment %d has no route offices", sh.ID)
	}

	pickupOffice, err := p.offices.GetOffice(ctx, *sh.PickupOfficeID)
	if err != nil {
		return nil, err
	}
	deliveryOffice, err := p.offices.GetOffice(ctx, *sh.DeliveryOfficeID)
	if err != nil {
		return nil, err
	}
	if pickupOffice == nil || deliveryOffice == nil {
		return nil, errs.New(errs.CodeNoOfficeFound, "shipment %d office rows missing", sh.ID)
	}

	srcRegion := regionOf(pickupOffice, sh.PickupLat)
	dstRegion := regionOf(deliveryOffice, sh.DeliveryLat)

	srcHub, err := p.offices.GetRegionalHub(ctx, srcRegion)
	if err != nil {
		return nil, err
	}
	if srcHub == nil {
		return nil, errs.New(errs.CodeNoOfficeFound, "region %s has no hub", srcRegion)
	}

	hops := []hop{
		{models.TrackArrivedPickupOffice, &pickupOffice.ID},
		{models.TrackLeftPickupOffice, &pickupOffice.ID},
		{models.TrackArrivedSortingHub, &srcHub.ID},
		{models.TrackLeftSortingHub, &srcHub.ID},
	}

	if srcRegion != dstRegion {
		dstHub, err := p.offices.GetRegionalHub(ctx, dstRegion)
		if err != nil {
			return nil, err
		}
		if dstHub == nil {
			return nil, errs.New(errs.CodeNoOfficeFound, "region %s has no hub", dstRegion)
		}
		hops = append(hops,
			hop{models.TrackArrivedSortingHub, &dstHub.ID},
			hop{models.TrackLeftSortingHub, &dstHub.ID},
		)
	}

	hops = append(hops, hop{models.TrackArrivedDeliveryOffice, &deliveryOffice.ID})

	jobs := make([]*models.TransitJob, 0, len(hops))
	for i, h := range hops {
		jobs = append(jobs, &models.TransitJob{
			ShipmentID: sh.ID,
			Seq:        int32(i + 1),
			StatusKey:  h.statusKey,
			OfficeID:   h.officeID,
			RunAt:      from.Add(time.Duration(i+1) * p.cfg.HopDelay),
		})
	}
	return jobs, nil
}

// regionOf prefers the office's own region and falls back to the
// latitude heuristic.
func regionOf(o *models.Office, lat float64) string {
	if o != nil && o.Region != "" {
		return o.Region
	}
	return models.RegionForLat(lat)
}

// Service is the scheduling half wired behind the dispatcher.
type Service struct {
	planner *Planner
	jobs    JobStore
	now     func() time.Time
}

func NewService(planner *Planner, jobs JobStore) *Service {
	return &Service{
		planner: planner,
		jobs:    jobs,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// ScheduleTransit persists the shipment's route. Replays are no-ops:
// the store ignores duplicate (shipment, seq) rows.
func (s *Service) ScheduleTransit(ctx context.Context, sh *models.Shipment) error {
	from := s.now()
	if sh.PickedUpAt != nil {
		from = *sh.PickedUpAt
	}
	jobs, err := s.planner.Plan(ctx, sh, from)
	if err != nil {
		return errors.Wrap(err, "plan transit route")
	}
	return s.jobs.ScheduleTransitJobs(ctx, jobs)
}
