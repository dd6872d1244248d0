package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"shipdispatch/internal/broker/messages"
	"shipdispatch/internal/errs"
	"shipdispatch/internal/geo"
	"shipdispatch/internal/models"
	"shipdispatch/internal/notify"
	"shipdispatch/internal/services/tracking"
	"shipdispatch/internal/storage/pgship"
)

type ShipmentRepository interface {
	GetShipment(ctx context.Context, id uint64) (*models.Shipment, error)
	CommitAssignment(ctx context.Context, c pgship.AssignmentCommit) (bool, error)
	UpdateShipmentStatus(ctx context.Context, id uint64, to string, allowedFrom []string, at time.Time) (bool, error)
	PromoteDeliveryCourier(ctx context.Context, id, courierID uint64, allowedFrom []string, at time.Time) (bool, error)
	ResetAssignment(ctx context.Context, id uint64) (bool, error)
	SetFailureReason(ctx context.Context, id uint64, reason string) error
	FindActiveByCourier(ctx context.Context, courierID uint64) ([]*models.Shipment, error)
}

type CourierRegistry interface {
	GetCourier(ctx context.Context, id uint64) (*models.Courier, error)
	ListCandidates(ctx context.Context, officeID uint64, leg pgship.Leg, limit int, exclude []uint64) ([]*models.Courier, error)
	ClaimCourier(ctx context.Context, id uint64, leg pgship.Leg) (bool, error)
	ReleaseCourier(ctx context.Context, id uint64, leg pgship.Leg) error
}

type OfficeRegistry interface {
	GetOffice(ctx context.Context, id uint64) (*models.Office, error)
	ListActiveOfficesInBox(ctx context.Context, officeType string, box geo.BoundingBox) ([]*models.Office, error)
}

type Queue interface {
	EnqueueAssignment(ctx context.Context, shipmentID uint64, nextRetryAt time.Time) error
	RemoveFromQueue(ctx context.Context, shipmentID uint64) error
	ClaimDueAssignments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.QueueEntry, error)
	BumpRetry(ctx context.Context, shipmentID uint64, nextRetryAt time.Time) (int32, error)
}

type Ledger interface {
	Append(ctx context.Context, shipmentID uint64, statusKey string, d tracking.Details) (*models.TrackingEvent, error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, payload any) error
}

// Scheduler is how a confirmed pickup is handed to the transit
// simulator. Set after construction; the simulator in turn calls back
// into AssignDeliveryLeg on the final hop.
type Scheduler interface {
	ScheduleTransit(ctx context.Context, sh *models.Shipment) error
}

type Config struct {
	SearchRadiusKm        float64
	SearchRadiusCeilingKm float64
	CandidateLimit        int
	MaxOrderDifference    int32

	RetryInterval time.Duration
	MaxRetries    int32

	AssignedTopic  string
	RejectionTopic string
	AlertTopic     string
}

func (c Config) withDefaults() Config {
	if c.SearchRadiusKm <= 0 {
		c.SearchRadiusKm = 10
	}
	if c.SearchRadiusCeilingKm < c.SearchRadiusKm {
		c.SearchRadiusCeilingKm = c.SearchRadiusKm * 4
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = 20
	}
	if c.MaxOrderDifference <= 0 {
		c.MaxOrderDifference = 5
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 5 * time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 12
	}
	if c.AssignedTopic == "" {
		c.AssignedTopic = "shipment.assigned"
	}
	if c.RejectionTopic == "" {
		c.RejectionTopic = "shipper.rejection"
	}
	if c.AlertTopic == "" {
		c.AlertTopic = "admin.alert"
	}
	return c
}

// Service owns courier assignment: candidate search, the commit, the
// retry queue and rejection handling. It is the only writer of courier
// load counters and shipment assignment fields.
type Service struct {
	shipments ShipmentRepository
	couriers  CourierRegistry
	offices   OfficeRegistry
	queue     Queue
	ledger    Ledger
	producer  Publisher
	sink      notify.Sink

	scheduler Scheduler

	cfg Config
	r   Rand
	now func() time.Time
}

func New(shipments ShipmentRepository, couriers CourierRegistry, offices OfficeRegistry, queue Queue, ledger Ledger, producer Publisher, sink notify.Sink, cfg Config) *Service {
	return &Service{
		shipments: shipments,
		couriers:  couriers,
		offices:   offices,
		queue:     queue,
		ledger:    ledger,
		producer:  producer,
		sink:      sink,
		cfg:       cfg.withDefaults(),
		r:         defaultRand(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetScheduler wires the transit simulator in after construction
// (simulator and dispatcher reference each other).
func (s *Service) SetScheduler(sched Scheduler) { s.scheduler = sched }

// WithClock and WithRand exist for deterministic tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) WithRand(r Rand) *Service {
	if r != nil {
		s.r = r
	}
	return s
}

// Assign runs the pickup-leg assignment for a CREATED or
// PENDING_ASSIGNMENT shipment. Search exhaustion parks the shipment in
// the retry queue and surfaces NoShipperAvailable/NoOfficeFound to the
// caller; everything keeps working in the background.
func (s *Service) Assign(ctx context.Context, shipmentID uint64) (*models.Shipment, error) {
	sh, err := s.shipments.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if sh == nil {
		return nil, errs.NotFound("shipment", shipmentID)
	}

	switch sh.Status {
	case models.ShipmentCreated, models.ShipmentPendingAssignment:
		if err := s.assign(ctx, sh, nil); err != nil {
			return nil, s.parkOnExhaustion(ctx, sh, err)
		}
		return s.shipments.GetShipment(ctx, shipmentID)
	case models.ShipmentReadyForDelivery:
		// Manual retry of a stuck delivery leg.
		if err := s.AssignDeliveryLeg(ctx, shipmentID); err != nil {
			return nil, err
		}
		return s.shipments.GetShipment(ctx, shipmentID)
	default:
		return nil, errs.InvalidTransition(sh.Status, models.ShipmentAssigned)
	}
}

func (s *Service) assign(ctx context.Context, sh *models.Shipment, exclude []uint64) error {
	pickupOffice, err := s.nearestLocalOffice(ctx, sh.PickupLat, sh.PickupLng)
	if err != nil {
		return err
	}
	deliveryOffice, err := s.nearestLocalOffice(ctx, sh.DeliveryLat, sh.DeliveryLng)
	if err != nil {
		return err
	}

	pickupCourier, err := s.claimCandidate(ctx, pickupOffice.ID, pgship.LegPickup, exclude)
	if err != nil {
		return err
	}

	deliveryCourier := pickupCourier
	if deliveryOffice.ID != pickupOffice.ID {
		deliveryCourier, err = s.claimCandidate(ctx, deliveryOffice.ID, pgship.LegDelivery, exclude)
		if err != nil {
			_ = s.couriers.ReleaseCourier(ctx, pickupCourier.ID, pgship.LegPickup)
			return err
		}
	} else {
		ok, err := s.couriers.ClaimCourier(ctx, pickupCourier.ID, pgship.LegDelivery)
		if err != nil || !ok {
			_ = s.couriers.ReleaseCourier(ctx, pickupCourier.ID, pgship.LegPickup)
			if err != nil {
				return err
			}
			return errs.New(errs.CodeNoShipperAvailable, "no courier available")
		}
	}

	now := s.now()
	committed, err := s.shipments.CommitAssignment(ctx, pgship.AssignmentCommit{
		ShipmentID:        sh.ID,
		PickupOfficeID:    pickupOffice.ID,
		DeliveryOfficeID:  deliveryOffice.ID,
		PickupCourierID:   pickupCourier.ID,
		DeliveryCourierID: deliveryCourier.ID,
		AssignedAt:        now,
	})
	if err == nil && !committed {
		err = errs.New(errs.CodeConcurrencyConflict, "shipment %d claimed by another writer", sh.ID)
	}
	if err != nil {
		_ = s.couriers.ReleaseCourier(ctx, pickupCourier.ID, pgship.LegPickup)
		_ = s.couriers.ReleaseCourier(ctx, deliveryCourier.ID, pgship.LegDelivery)
		return err
	}

	// Side effects are best-effort: the assignment already holds.
	s.appendQuiet(ctx, sh.ID, models.TrackShipperAssigned, tracking.Details{
		LocationName:    pickupOffice.Name,
		LocationAddress: pickupOffice.Address,
		EventTime:       now,
	})
	s.publishQuiet(ctx, s.cfg.AssignedTopic, sh.ID, messages.ShipmentAssigned{
		MessageID:         uuid.NewString(),
		ShipmentID:        sh.ID,
		TrackingNumber:    sh.TrackingNumber,
		PickupCourierID:   pickupCourier.ID,
		DeliveryCourierID: deliveryCourier.ID,
		PickupOfficeID:    pickupOffice.ID,
		DeliveryOfficeID:  deliveryOffice.ID,
		AssignedAt:        now,
	})
	s.pushQuiet(ctx, pickupCourier.ID, notify.TypeAssignment,
		"New pickup assignment",
		fmt.Sprintf("Parcel %s is waiting for pickup", sh.TrackingNumber),
		map[string]string{"shipment_id": strconv.FormatUint(sh.ID, 10)})

	if err := s.queue.RemoveFromQueue(ctx, sh.ID); err != nil {
		slog.Error("dequeue after assignment", "shipment_id", sh.ID, "error", err.Error())
	}
	return nil
}

// nearestLocalOffice widens the bounding box by doubling the radius
// until a LOCAL office is found or the ceiling is hit.
func (s *Service) nearestLocalOffice(ctx context.Context, lat, lng float64) (*models.Office, error) {
	for r := s.cfg.SearchRadiusKm; r <= s.cfg.SearchRadiusCeilingKm; r *= 2 {
		offices, err := s.offices.ListActiveOfficesInBox(ctx, models.OfficeTypeLocal, geo.BoxAround(lat, lng, r))
		if err != nil {
			return nil, err
		}
		if len(offices) == 0 {
			continue
		}
		best := offices[0]
		bestD := geo.DistanceKm(lat, lng, best.Lat, best.Lng)
		for _, o := range offices[1:] {
			if d := geo.DistanceKm(lat, lng, o.Lat, o.Lng); d < bestD {
				best, bestD = o, d
			}
		}
		return best, nil
	}
	return nil, errs.New(errs.CodeNoOfficeFound, "no local office within %.0f km", s.cfg.SearchRadiusCeilingKm)
}

// claimCandidate picks load-balanced candidates and claims one with an
// atomic counter bump; a lost claim just drops to the next candidate.
func (s *Service) claimCandidate(ctx context.Context, officeID uint64, leg pgship.Leg, exclude []uint64) (*models.Courier, error) {
	load := pickupLoad
	if leg == pgship.LegDelivery {
		load = deliveryLoad
	}

	cands, err := s.couriers.ListCandidates(ctx, officeID, leg, s.cfg.CandidateLimit, exclude)
	if err != nil {
		return nil, err
	}

	for len(cands) > 0 {
		c := pickCandidate(cands, load, s.cfg.MaxOrderDifference, s.r)
		ok, err := s.couriers.ClaimCourier(ctx, c.ID, leg)
		if err != nil {
			return nil, err
		}
		if ok {
			return c, nil
		}
		// Гонка: курьер ушёл в оффлайн между выборкой и claim'ом.
		next := cands[:0]
		for _, cc := range cands {
			if cc.ID != c.ID {
				next = append(next, cc)
			}
		}
		cands = next
	}
	return nil, errs.New(errs.CodeNoShipperAvailable, "no courier available")
}

// parkOnExhaustion moves the shipment to PENDING_ASSIGNMENT and
// enqueues a retry when the error is search exhaustion; other errors
// pass through untouched.
func (s *Service) parkOnExhaustion(ctx context.Context, sh *models.Shipment, cause error) error {
	switch errs.CodeOf(cause) {
	case errs.CodeNoShipperAvailable, errs.CodeNoOfficeFound:
	default:
		return cause
	}

	if _, err := s.shipments.UpdateShipmentStatus(ctx, sh.ID, models.ShipmentPendingAssignment,
		[]string{models.ShipmentCreated}, s.now()); err != nil {
		return err
	}
	if err := s.queue.EnqueueAssignment(ctx, sh.ID, s.now().Add(s.cfg.RetryInterval)); err != nil {
		return err
	}
	slog.Info("shipment parked for retry", "shipment_id", sh.ID, "cause", cause.Error())
	return cause
}

// Reject handles a courier declining an ASSIGNED (not yet picked up)
// shipment: counters released, shipment reset to CREATED, reassignment
// attempted excluding the rejector.
func (s *Service) Reject(ctx context.Context, shipmentID, courierID uint64, reason string) error {
	sh, err := s.shipments.GetShipment(ctx, shipmentID)
	if err != nil {
		return err
	}
	if sh == nil {
		return errs.NotFound("shipment", shipmentID)
	}
	if sh.Status != models.ShipmentAssigned {
		return errs.New(errs.CodeInvalidStateTransition,
			"cannot reject a shipment in status %s", sh.Status)
	}
	if sh.PrimaryCourierID == nil || *sh.PrimaryCourierID != courierID {
		return errs.New(errs.CodeUnauthorized, "courier %d does not hold shipment %d", courierID, shipmentID)
	}

	reset, err := s.shipments.ResetAssignment(ctx, shipmentID)
	if err != nil {
		return err
	}
	if !reset {
		return errs.New(errs.CodeConcurrencyConflict, "shipment %d moved during rejection", shipmentID)
	}

	s.releaseLegs(ctx, sh)

	now := s.now()
	s.appendQuiet(ctx, shipmentID, models.TrackPickupRequested, tracking.Details{
		Description: "Shipper declined the pickup, looking for another shipper",
		Actor:       models.ActorCourier,
		EventTime:   now,
	})
	s.publishQuiet(ctx, s.cfg.RejectionTopic, shipmentID, messages.ShipperRejection{
		MessageID:      uuid.NewString(),
		ShipmentID:     shipmentID,
		TrackingNumber: sh.TrackingNumber,
		CourierID:      courierID,
		Reason:         reason,
		RejectedAt:     now,
	})

	sh.Status = models.ShipmentCreated
	if err := s.assign(ctx, sh, []uint64{courierID}); err != nil {
		return s.parkOnExhaustion(ctx, sh, err)
	}
	return nil
}

// HandleCourierOffline reassigns the courier's not-yet-picked-up work
// and raises an admin alert for everything already in hand. A parcel
// physically with the courier cannot be handed over by the system.
func (s *Service) HandleCourierOffline(ctx context.Context, courierID uint64) error {
	active, err := s.shipments.FindActiveByCourier(ctx, courierID)
	if err != nil {
		return err
	}

	for _, sh := range active {
		switch sh.Status {
		case models.ShipmentAssigned:
			if err := s.Reject(ctx, sh.ID, courierID, "courier went offline"); err != nil {
				slog.Error("reassign on offline", "shipment_id", sh.ID, "error", err.Error())
			}
		case models.ShipmentPickedUp, models.ShipmentInTransit,
			models.ShipmentReadyForDelivery, models.ShipmentDelivering:
			s.publishQuiet(ctx, s.cfg.AlertTopic, sh.ID, messages.AdminAlert{
				MessageID:  uuid.NewString(),
				Kind:       messages.AlertCourierOfflineMidDelivery,
				ShipmentID: sh.ID,
				CourierID:  courierID,
				Detail:     fmt.Sprintf("courier %d went offline holding shipment %s", courierID, sh.TrackingNumber),
				RaisedAt:   s.now(),
			})
		}
	}
	return nil
}

// ConfirmPickup transitions ASSIGNED -> PICKED_UP and hands the
// shipment to the transit simulator.
func (s *Service) ConfirmPickup(ctx context.Context, shipmentID, courierID uint64) error {
	sh, err := s.shipments.GetShipment(ctx, shipmentID)
	if err != nil {
		return err
	}
	if sh == nil {
		return errs.NotFound("shipment", shipmentID)
	}
	if sh.PickupCourierID == nil || *sh.PickupCourierID != courierID {
		return errs.New(errs.CodeUnauthorized, "courier %d does not hold the pickup leg", courierID)
	}

	ok, err := s.shipments.UpdateShipmentStatus(ctx, shipmentID, models.ShipmentPickedUp,
		[]string{models.ShipmentAssigned}, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return errs.InvalidTransition(sh.Status, models.ShipmentPickedUp)
	}

	s.appendQuiet(ctx, shipmentID, models.TrackPickedUp, tracking.Details{
		Actor:     models.ActorCourier,
		EventTime: s.now(),
	})

	if s.scheduler != nil {
		sh.Status = models.ShipmentPickedUp
		if err := s.scheduler.ScheduleTransit(ctx, sh); err != nil {
			slog.Error("schedule transit", "shipment_id", shipmentID, "error", err.Error())
		}
	}
	return nil
}

// AssignDeliveryLeg runs when the parcel reaches the delivery office.
// The courier claimed at commit time is kept if still usable; same
// office + same courier means handover to self, no reassignment.
func (s *Service) AssignDeliveryLeg(ctx context.Context, shipmentID uint64) error {
	sh, err := s.shipments.GetShipment(ctx, shipmentID)
	if err != nil {
		return err
	}
	if sh == nil {
		return errs.NotFound("shipment", shipmentID)
	}
	if sh.Status != models.ShipmentReadyForDelivery && sh.Status != models.ShipmentInTransit {
		return errs.InvalidTransition(sh.Status, models.ShipmentDelivering)
	}

	courierID, fresh, err := s.resolveDeliveryCourier(ctx, sh)
	if err != nil {
		s.publishQuiet(ctx, s.cfg.AlertTopic, sh.ID, messages.AdminAlert{
			MessageID:  uuid.NewString(),
			Kind:       messages.AlertAssignmentExhausted,
			ShipmentID: sh.ID,
			Detail:     "no courier available for the delivery leg",
			RaisedAt:   s.now(),
		})
		return err
	}

	// Переход и курьер пишутся одним стейтментом, чтобы свежий курьер
	// не потерялся между claim и сменой статуса.
	ok, err := s.shipments.PromoteDeliveryCourier(ctx, shipmentID, courierID,
		[]string{models.ShipmentReadyForDelivery, models.ShipmentInTransit}, s.now())
	if err != nil {
		return err
	}
	if !ok {
		if fresh {
			_ = s.couriers.ReleaseCourier(ctx, courierID, pgship.LegDelivery)
		}
		return errs.New(errs.CodeConcurrencyConflict, "shipment %d moved during delivery assignment", shipmentID)
	}

	s.appendQuiet(ctx, shipmentID, models.TrackOutForDelivery, tracking.Details{EventTime: s.now()})
	s.pushQuiet(ctx, courierID, notify.TypeOutForDelivery,
		"Delivery assignment",
		fmt.Sprintf("Parcel %s is ready for delivery", sh.TrackingNumber),
		map[string]string{"shipment_id": strconv.FormatUint(sh.ID, 10)})
	return nil
}

// resolveDeliveryCourier keeps the committed delivery courier when
// still online+available; otherwise releases them and searches the
// delivery office afresh. Returns whether a fresh claim was made.
func (s *Service) resolveDeliveryCourier(ctx context.Context, sh *models.Shipment) (uint64, bool, error) {
	if sh.DeliveryCourierID != nil {
		c, err := s.couriers.GetCourier(ctx, *sh.DeliveryCourierID)
		if err != nil {
			return 0, false, err
		}
		if c != nil && c.Online && c.Available {
			return c.ID, false, nil
		}
		_ = s.couriers.ReleaseCourier(ctx, *sh.DeliveryCourierID, pgship.LegDelivery)
	}

	if sh.DeliveryOfficeID == nil {
		return 0, false, errs.New(errs.CodeNoOfficeFound, "shipment %d has no delivery office", sh.ID)
	}
	var exclude []uint64
	if sh.DeliveryCourierID != nil {
		exclude = append(exclude, *sh.DeliveryCourierID)
	}
	c, err := s.claimCandidate(ctx, *sh.DeliveryOfficeID, pgship.LegDelivery, exclude)
	if err != nil {
		return 0, false, err
	}
	return c.ID, true, nil
}

// CompleteDelivery finishes the lifecycle and releases both legs'
// counters exactly once.
func (s *Service) CompleteDelivery(ctx context.Context, shipmentID, courierID uint64) error {
	sh, err := s.shipments.GetShipment(ctx, shipmentID)
	if err != nil {
		return err
	}
	if sh == nil {
		return errs.NotFound("shipment", shipmentID)
	}
	if sh.DeliveryCourierID == nil || *sh.DeliveryCourierID != courierID {
		return errs.New(errs.CodeUnauthorized, "courier %d does not hold the delivery leg", courierID)
	}

	ok, err := s.shipments.UpdateShipmentStatus(ctx, shipmentID, models.ShipmentDelivered,
		[]string{models.ShipmentDelivering}, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return errs.InvalidTransition(sh.Status, models.ShipmentDelivered)
	}

	s.releaseLegs(ctx, sh)
	s.appendQuiet(ctx, shipmentID, models.TrackDelivered, tracking.Details{
		Actor:     models.ActorCourier,
		EventTime: s.now(),
	})
	return nil
}

// FailDelivery marks a delivery attempt failed with a reason. Counters
// stay held: the PENDING_REDELIVERY path may hand the parcel back to
// the same courier.
func (s *Service) FailDelivery(ctx context.Context, shipmentID, courierID uint64, reason string) error {
	sh, err := s.shipments.GetShipment(ctx, shipmentID)
	if err != nil {
		return err
	}
	if sh == nil {
		return errs.NotFound("shipment", shipmentID)
	}
	if sh.PrimaryCourierID == nil || *sh.PrimaryCourierID != courierID {
		return errs.New(errs.CodeUnauthorized, "courier %d does not hold shipment %d", courierID, shipmentID)
	}

	ok, err := s.shipments.UpdateShipmentStatus(ctx, shipmentID, models.ShipmentFailed,
		models.AllowedFrom(models.ShipmentFailed), s.now())
	if err != nil {
		return err
	}
	if !ok {
		return errs.InvalidTransition(sh.Status, models.ShipmentFailed)
	}

	if err := s.shipments.SetFailureReason(ctx, shipmentID, reason); err != nil {
		slog.Error("set failure reason", "shipment_id", shipmentID, "error", err.Error())
	}
	s.appendQuiet(ctx, shipmentID, models.TrackDeliveryFailed, tracking.Details{
		Description: reason,
		Actor:       models.ActorCourier,
		EventTime:   s.now(),
	})
	return nil
}

// Cancel aborts a shipment that has not been picked up yet and
// releases any claimed couriers.
func (s *Service) Cancel(ctx context.Context, shipmentID uint64) error {
	sh, err := s.shipments.GetShipment(ctx, shipmentID)
	if err != nil {
		return err
	}
	if sh == nil {
		return errs.NotFound("shipment", shipmentID)
	}

	ok, err := s.shipments.UpdateShipmentStatus(ctx, shipmentID, models.ShipmentCancelled,
		models.AllowedFrom(models.ShipmentCancelled), s.now())
	if err != nil {
		return err
	}
	if !ok {
		return errs.InvalidTransition(sh.Status, models.ShipmentCancelled)
	}

	s.releaseLegs(ctx, sh)
	if err := s.queue.RemoveFromQueue(ctx, shipmentID); err != nil {
		slog.Error("dequeue on cancel", "shipment_id", shipmentID, "error", err.Error())
	}
	return nil
}

func (s *Service) releaseLegs(ctx context.Context, sh *models.Shipment) {
	if sh.PickupCourierID != nil {
		if err := s.couriers.ReleaseCourier(ctx, *sh.PickupCourierID, pgship.LegPickup); err != nil {
			slog.Error("release pickup leg", "shipment_id", sh.ID, "error", err.Error())
		}
	}
	if sh.DeliveryCourierID != nil {
		if err := s.couriers.ReleaseCourier(ctx, *sh.DeliveryCourierID, pgship.LegDelivery); err != nil {
			slog.Error("release delivery leg", "shipment_id", sh.ID, "error", err.Error())
		}
	}
}

func (s *Service) appendQuiet(ctx context.Context, shipmentID uint64, statusKey string, d tracking.Details) {
	if _, err := s.ledger.Append(ctx, shipmentID, statusKey, d); err != nil {
		slog.Error("tracking append", "shipment_id", shipmentID, "status", statusKey, "error", err.Error())
	}
}

func (s *Service) publishQuiet(ctx context.Context, topic string, shipmentID uint64, payload any) {
	if err := s.producer.PublishJSON(ctx, topic, strconv.FormatUint(shipmentID, 10), payload); err != nil {
		slog.Error("publish event", "topic", topic, "shipment_id", shipmentID, "error", err.Error())
	}
}

func (s *Service) pushQuiet(ctx context.Context, userID uint64, notifType, title, body string, data map[string]string) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Push(ctx, userID, notifType, title, body, data); err != nil {
		slog.Error("push notification", "user_id", userID, "error", err.Error())
	}
}
