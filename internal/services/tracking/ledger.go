package tracking

import (
	"context"
	"time"

	"shipdispatch/internal/errs"
	"shipdispatch/internal/models"
)

type Repository interface {
	InsertTrackingEvent(ctx context.Context, e *models.TrackingEvent) (uint64, error)
	ListTrackingEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.TrackingEvent, error)
	LatestTrackingEvent(ctx context.Context, shipmentID uint64) (*models.TrackingEvent, error)
	GetShipment(ctx context.Context, id uint64) (*models.Shipment, error)
}

// Ledger is the only writer of tracking events. Appends are not
// deduplicated; history is served newest-first, consumers that need
// replay order sort by event time ascending.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

func New(repo Repository, now func() time.Time) *Ledger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{repo: repo, now: now}
}

// Details are the per-event overrides; zero values fall back to the
// vocabulary default, SYSTEM actor and the current time.
type Details struct {
	Description     string
	LocationName    string
	LocationAddress string
	Lat             *float64
	Lng             *float64
	Actor           string
	EventTime       time.Time
}

func (l *Ledger) Append(ctx context.Context, shipmentID uint64, statusKey string, d Details) (*models.TrackingEvent, error) {
	if !KnownStatusKey(statusKey) {
		return nil, errs.New(errs.CodeBadRequest, "unknown tracking status key %q", statusKey)
	}

	sh, err := l.repo.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if sh == nil {
		return nil, errs.NotFound("shipment", shipmentID)
	}

	ev := &models.TrackingEvent{
		ShipmentID:      shipmentID,
		StatusKey:       statusKey,
		Description:     d.Description,
		LocationName:    d.LocationName,
		LocationAddress: d.LocationAddress,
		Lat:             d.Lat,
		Lng:             d.Lng,
		Actor:           d.Actor,
		EventTime:       d.EventTime,
	}
	if ev.Description == "" {
		ev.Description = DefaultDescription(statusKey)
	}
	if ev.Actor == "" {
		ev.Actor = models.ActorSystem
	}
	if ev.EventTime.IsZero() {
		ev.EventTime = l.now()
	}

	id, err := l.repo.InsertTrackingEvent(ctx, ev)
	if err != nil {
		return nil, err
	}
	ev.ID = id
	return ev, nil
}

// History returns events newest-first for display.
func (l *Ledger) History(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.TrackingEvent, error) {
	return l.repo.ListTrackingEvents(ctx, shipmentID, limit, offset)
}

// Latest returns the event with the greatest event time, or NotFound
// when the ledger has no rows for the shipment.
func (l *Ledger) Latest(ctx context.Context, shipmentID uint64) (*models.TrackingEvent, error) {
	ev, err := l.repo.LatestTrackingEvent(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, errs.NotFound("shipment", shipmentID)
	}
	return ev, nil
}
