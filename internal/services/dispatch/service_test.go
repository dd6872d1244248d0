package dispatch

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shipdispatch/internal/errs"
	"shipdispatch/internal/geo"
	"shipdispatch/internal/models"
	"shipdispatch/internal/services/tracking"
	"shipdispatch/internal/storage/pgship"
)

// --- fakes -----------------------------------------------------------

type fakeShipments struct {
	byID map[uint64]*models.Shipment
}

func newFakeShipments(shs ...*models.Shipment) *fakeShipments {
	f := &fakeShipments{byID: map[uint64]*models.Shipment{}}
	for _, sh := range shs {
		f.byID[sh.ID] = sh
	}
	return f
}

func (f *fakeShipments) GetShipment(_ context.Context, id uint64) (*models.Shipment, error) {
	sh, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *sh
	return &cp, nil
}

func (f *fakeShipments) CommitAssignment(_ context.Context, c pgship.AssignmentCommit) (bool, error) {
	sh, ok := f.byID[c.ShipmentID]
	if !ok {
		return false, nil
	}
	if sh.Status != models.ShipmentCreated && sh.Status != models.ShipmentPendingAssignment {
		return false, nil
	}
	sh.Status = models.ShipmentAssigned
	sh.PickupOfficeID = &c.PickupOfficeID
	sh.DeliveryOfficeID = &c.DeliveryOfficeID
	sh.PickupCourierID = &c.PickupCourierID
	sh.DeliveryCourierID = &c.DeliveryCourierID
	sh.PrimaryCourierID = &c.PickupCourierID
	at := c.AssignedAt
	sh.AssignedAt = &at
	return true, nil
}

func (f *fakeShipments) UpdateShipmentStatus(_ context.Context, id uint64, to string, allowedFrom []string, _ time.Time) (bool, error) {
	sh, ok := f.byID[id]
	if !ok {
		return false, nil
	}
	for _, from := range allowedFrom {
		if sh.Status == from {
			sh.Status = to
			if to == models.ShipmentDelivering {
				sh.PrimaryCourierID = sh.DeliveryCourierID
			}
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeShipments) PromoteDeliveryCourier(_ context.Context, id, courierID uint64, allowedFrom []string, _ time.Time) (bool, error) {
	sh, ok := f.byID[id]
	if !ok {
		return false, nil
	}
	for _, from := range allowedFrom {
		if sh.Status == from {
			sh.Status = models.ShipmentDelivering
			cid := courierID
			sh.DeliveryCourierID = &cid
			sh.PrimaryCourierID = &cid
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeShipments) ResetAssignment(_ context.Context, id uint64) (bool, error) {
	sh, ok := f.byID[id]
	if !ok || sh.Status != models.ShipmentAssigned {
		return false, nil
	}
	sh.Status = models.ShipmentCreated
	sh.PickupCourierID = nil
	sh.DeliveryCourierID = nil
	sh.PrimaryCourierID = nil
	sh.AssignedAt = nil
	return true, nil
}

func (f *fakeShipments) SetFailureReason(_ context.Context, id uint64, reason string) error {
	if sh, ok := f.byID[id]; ok {
		sh.FailureReason = &reason
	}
	return nil
}

func (f *fakeShipments) FindActiveByCourier(_ context.Context, courierID uint64) ([]*models.Shipment, error) {
	var out []*models.Shipment
	for _, sh := range f.byID {
		if sh.PrimaryCourierID != nil && *sh.PrimaryCourierID == courierID && !sh.Terminal() {
			cp := *sh
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeCouriers struct {
	byID map[uint64]*models.Courier
}

func newFakeCouriers(cs ...*models.Courier) *fakeCouriers {
	f := &fakeCouriers{byID: map[uint64]*models.Courier{}}
	for _, c := range cs {
		f.byID[c.ID] = c
	}
	return f
}

func (f *fakeCouriers) GetCourier(_ context.Context, id uint64) (*models.Courier, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCouriers) ListCandidates(_ context.Context, officeID uint64, leg pgship.Leg, limit int, exclude []uint64) ([]*models.Courier, error) {
	skip := map[uint64]bool{}
	for _, id := range exclude {
		skip[id] = true
	}
	var out []*models.Courier
	for _, c := range f.byID {
		if c.OfficeID == officeID && c.Online && c.Available && !skip[c.ID] {
			cp := *c
			out = append(out, &cp)
		}
	}
	load := func(c *models.Courier) int32 { return c.PickupLoad }
	if leg == pgship.LegDelivery {
		load = func(c *models.Courier) int32 { return c.DeliveryLoad }
	}
	sort.Slice(out, func(i, j int) bool {
		if load(out[i]) != load(out[j]) {
			return load(out[i]) < load(out[j])
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCouriers) ClaimCourier(_ context.Context, id uint64, leg pgship.Leg) (bool, error) {
	c, ok := f.byID[id]
	if !ok || !c.Online || !c.Available {
		return false, nil
	}
	if leg == pgship.LegDelivery {
		c.DeliveryLoad++
	} else {
		c.PickupLoad++
	}
	return true, nil
}

func (f *fakeCouriers) ReleaseCourier(_ context.Context, id uint64, leg pgship.Leg) error {
	c, ok := f.byID[id]
	if !ok {
		return nil
	}
	if leg == pgship.LegDelivery {
		if c.DeliveryLoad > 0 {
			c.DeliveryLoad--
		}
	} else if c.PickupLoad > 0 {
		c.PickupLoad--
	}
	return nil
}

type fakeOffices struct {
	all []*models.Office
}

func (f *fakeOffices) GetOffice(_ context.Context, id uint64) (*models.Office, error) {
	for _, o := range f.all {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, nil
}

func (f *fakeOffices) ListActiveOfficesInBox(_ context.Context, officeType string, box geo.BoundingBox) ([]*models.Office, error) {
	var out []*models.Office
	for _, o := range f.all {
		if o.Type == officeType && o.Active &&
			o.Lat >= box.MinLat && o.Lat <= box.MaxLat &&
			o.Lng >= box.MinLng && o.Lng <= box.MaxLng {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakeQueue struct {
	entries map[uint64]*models.QueueEntry
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{entries: map[uint64]*models.QueueEntry{}}
}

func (f *fakeQueue) EnqueueAssignment(_ context.Context, shipmentID uint64, nextRetryAt time.Time) error {
	if _, ok := f.entries[shipmentID]; ok {
		return nil
	}
	f.entries[shipmentID] = &models.QueueEntry{ShipmentID: shipmentID, NextRetryAt: nextRetryAt}
	return nil
}

func (f *fakeQueue) RemoveFromQueue(_ context.Context, shipmentID uint64) error {
	delete(f.entries, shipmentID)
	return nil
}

func (f *fakeQueue) ClaimDueAssignments(_ context.Context, now time.Time, limit int, lease time.Duration) ([]*models.QueueEntry, error) {
	var out []*models.QueueEntry
	for _, e := range f.entries {
		if !e.NextRetryAt.After(now) {
			cp := *e
			out = append(out, &cp)
			e.NextRetryAt = now.Add(lease)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeQueue) BumpRetry(_ context.Context, shipmentID uint64, nextRetryAt time.Time) (int32, error) {
	e, ok := f.entries[shipmentID]
	if !ok {
		return 0, nil
	}
	e.RetryCount++
	e.NextRetryAt = nextRetryAt
	return e.RetryCount, nil
}

type appended struct {
	shipmentID uint64
	statusKey  string
	details    tracking.Details
}

type fakeLedger struct {
	events []appended
}

func (f *fakeLedger) Append(_ context.Context, shipmentID uint64, statusKey string, d tracking.Details) (*models.TrackingEvent, error) {
	f.events = append(f.events, appended{shipmentID, statusKey, d})
	return &models.TrackingEvent{ShipmentID: shipmentID, StatusKey: statusKey}, nil
}

type published struct {
	topic   string
	key     string
	payload any
}

type fakePublisher struct {
	msgs []published
}

func (f *fakePublisher) PublishJSON(_ context.Context, topic, key string, payload any) error {
	f.msgs = append(f.msgs, published{topic, key, payload})
	return nil
}

func (f *fakePublisher) onTopic(topic string) []published {
	var out []published
	for _, m := range f.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type fakeScheduler struct {
	scheduled []uint64
}

func (f *fakeScheduler) ScheduleTransit(_ context.Context, sh *models.Shipment) error {
	f.scheduled = append(f.scheduled, sh.ID)
	return nil
}

// firstRand always picks index 0, making selection deterministic.
type firstRand struct{}

func (firstRand) Intn(int) int { return 0 }

// --- fixtures --------------------------------------------------------

// Coordinates around Hanoi; one office covers both ends unless a test
// overrides.
const (
	hanoiLat = 21.0285
	hanoiLng = 105.8542
)

type env struct {
	shipments *fakeShipments
	couriers  *fakeCouriers
	offices   *fakeOffices
	queue     *fakeQueue
	ledger    *fakeLedger
	producer  *fakePublisher
	scheduler *fakeScheduler
	svc       *Service
	now       time.Time
}

func newEnv(t *testing.T, shipments *fakeShipments, couriers *fakeCouriers, offices *fakeOffices) *env {
	t.Helper()
	e := &env{
		shipments: shipments,
		couriers:  couriers,
		offices:   offices,
		queue:     newFakeQueue(),
		ledger:    &fakeLedger{},
		producer:  &fakePublisher{},
		scheduler: &fakeScheduler{},
		now:       time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	e.svc = New(e.shipments, e.couriers, e.offices, e.queue, e.ledger, e.producer, nil, Config{}).
		WithClock(func() time.Time { return e.now }).
		WithRand(firstRand{})
	e.svc.SetScheduler(e.scheduler)
	return e
}

func shipmentAt(id uint64, status string) *models.Shipment {
	return &models.Shipment{
		ID:             id,
		TrackingNumber: "VN00000001",
		Status:         status,
		PickupLat:      hanoiLat,
		PickupLng:      hanoiLng,
		DeliveryLat:    hanoiLat + 0.02,
		DeliveryLng:    hanoiLng + 0.02,
	}
}

func courierAt(id, officeID uint64, pickupLoad int32) *models.Courier {
	return &models.Courier{
		ID:         id,
		FullName:   "courier",
		Online:     true,
		Available:  true,
		OfficeID:   officeID,
		PickupLoad: pickupLoad,
	}
}

func localOffice(id uint64, lat, lng float64) *models.Office {
	return &models.Office{
		ID: id, Name: "PO", Type: models.OfficeTypeLocal,
		Region: models.RegionForLat(lat), Lat: lat, Lng: lng, Active: true,
	}
}

// --- tests -----------------------------------------------------------

func TestAssignDirect(t *testing.T) {
	e := newEnv(t,
		newFakeShipments(shipmentAt(1, models.ShipmentCreated)),
		newFakeCouriers(courierAt(7, 100, 0)),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}},
	)

	sh, err := e.svc.Assign(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, models.ShipmentAssigned, sh.Status)
	require.Equal(t, uint64(7), *sh.PickupCourierID)
	require.Equal(t, uint64(7), *sh.DeliveryCourierID)
	require.Equal(t, uint64(100), *sh.PickupOfficeID)

	// Same office for both ends: both leg counters on the same courier.
	c := e.couriers.byID[7]
	require.EqualValues(t, 1, c.PickupLoad)
	require.EqualValues(t, 1, c.DeliveryLoad)

	require.Len(t, e.ledger.events, 1)
	require.Equal(t, models.TrackShipperAssigned, e.ledger.events[0].statusKey)
	require.Len(t, e.producer.onTopic("shipment.assigned"), 1)
	require.Empty(t, e.queue.entries)
}

func TestAssignNoCourierParksShipment(t *testing.T) {
	e := newEnv(t,
		newFakeShipments(shipmentAt(1, models.ShipmentCreated)),
		newFakeCouriers(),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}},
	)

	_, err := e.svc.Assign(context.Background(), 1)
	require.Error(t, err)
	require.Equal(t, errs.CodeNoShipperAvailable, errs.CodeOf(err))

	sh, _ := e.shipments.GetShipment(context.Background(), 1)
	require.Equal(t, models.ShipmentPendingAssignment, sh.Status)

	entry, ok := e.queue.entries[uint64(1)]
	require.True(t, ok)
	require.EqualValues(t, 0, entry.RetryCount)
	require.Equal(t, e.now.Add(5*time.Minute), entry.NextRetryAt)
}

func TestAssignNoOfficeParksShipment(t *testing.T) {
	e := newEnv(t,
		newFakeShipments(shipmentAt(1, models.ShipmentCreated)),
		newFakeCouriers(courierAt(7, 100, 0)),
		&fakeOffices{},
	)

	_, err := e.svc.Assign(context.Background(), 1)
	require.Equal(t, errs.CodeNoOfficeFound, errs.CodeOf(err))

	sh, _ := e.shipments.GetShipment(context.Background(), 1)
	require.Equal(t, models.ShipmentPendingAssignment, sh.Status)
	require.Contains(t, e.queue.entries, uint64(1))
}

func TestAssignWidensSearchRadius(t *testing.T) {
	// Office ~33 km north of the pickup point: outside the initial
	// 10 km box, inside after two doublings.
	far := localOffice(100, hanoiLat+0.3, hanoiLng)
	e := newEnv(t,
		newFakeShipments(shipmentAt(1, models.ShipmentCreated)),
		newFakeCouriers(courierAt(7, 100, 0)),
		&fakeOffices{all: []*models.Office{far}},
	)

	sh, err := e.svc.Assign(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, models.ShipmentAssigned, sh.Status)
}

func TestAssignPicksNearestOffice(t *testing.T) {
	near := localOffice(100, hanoiLat+0.01, hanoiLng)
	farther := localOffice(200, hanoiLat+0.05, hanoiLng)
	e := newEnv(t,
		newFakeShipments(shipmentAt(1, models.ShipmentCreated)),
		newFakeCouriers(courierAt(7, 100, 0), courierAt(8, 200, 0)),
		&fakeOffices{all: []*models.Office{farther, near}},
	)

	sh, err := e.svc.Assign(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, uint64(100), *sh.PickupOfficeID)
}

func TestAssignSplitOffices(t *testing.T) {
	// Delivery point far enough to resolve to its own office; each leg
	// claims a courier from its own office.
	sh := shipmentAt(1, models.ShipmentCreated)
	sh.DeliveryLat = hanoiLat + 0.3
	deliveryOffice := localOffice(200, hanoiLat+0.3, hanoiLng+0.02)

	e := newEnv(t,
		newFakeShipments(sh),
		newFakeCouriers(courierAt(7, 100, 0), courierAt(8, 200, 0)),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng), deliveryOffice}},
	)

	got, err := e.svc.Assign(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, uint64(7), *got.PickupCourierID)
	require.Equal(t, uint64(8), *got.DeliveryCourierID)
	require.EqualValues(t, 1, e.couriers.byID[7].PickupLoad)
	require.EqualValues(t, 0, e.couriers.byID[7].DeliveryLoad)
	require.EqualValues(t, 1, e.couriers.byID[8].DeliveryLoad)
}

func TestAssignReleasesPickupWhenDeliveryLegFails(t *testing.T) {
	sh := shipmentAt(1, models.ShipmentCreated)
	sh.DeliveryLat = hanoiLat + 0.3

	e := newEnv(t,
		newFakeShipments(sh),
		newFakeCouriers(courierAt(7, 100, 0)), // nobody at the delivery office
		&fakeOffices{all: []*models.Office{
			localOffice(100, hanoiLat, hanoiLng),
			localOffice(200, hanoiLat+0.3, hanoiLng+0.02),
		}},
	)

	_, err := e.svc.Assign(context.Background(), 1)
	require.Equal(t, errs.CodeNoShipperAvailable, errs.CodeOf(err))
	// The pickup claim must have been rolled back.
	require.EqualValues(t, 0, e.couriers.byID[7].PickupLoad)
}

func TestRejectExcludesRejectorAndReassigns(t *testing.T) {
	e := newEnv(t,
		newFakeShipments(shipmentAt(1, models.ShipmentCreated)),
		newFakeCouriers(courierAt(7, 100, 0), courierAt(8, 100, 0)),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}},
	)

	sh, err := e.svc.Assign(context.Background(), 1)
	require.NoError(t, err)
	first := *sh.PickupCourierID

	require.NoError(t, e.svc.Reject(context.Background(), 1, first, "too far"))

	sh, _ = e.shipments.GetShipment(context.Background(), 1)
	require.Equal(t, models.ShipmentAssigned, sh.Status)
	require.NotEqual(t, first, *sh.PickupCourierID)

	// Rejector's counters are back at zero.
	require.EqualValues(t, 0, e.couriers.byID[first].PickupLoad)
	require.EqualValues(t, 0, e.couriers.byID[first].DeliveryLoad)

	require.Len(t, e.producer.onTopic("shipper.rejection"), 1)

	var keys []string
	for _, ev := range e.ledger.events {
		keys = append(keys, ev.statusKey)
	}
	require.Contains(t, keys, models.TrackPickupRequested)
}

func TestRejectOnlyHolderMayReject(t *testing.T) {
	e := newEnv(t,
		newFakeShipments(shipmentAt(1, models.ShipmentCreated)),
		newFakeCouriers(courierAt(7, 100, 0)),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}},
	)
	_, err := e.svc.Assign(context.Background(), 1)
	require.NoError(t, err)

	err = e.svc.Reject(context.Background(), 1, 999, "")
	require.Equal(t, errs.CodeUnauthorized, errs.CodeOf(err))
}

func TestRejectAfterPickupIsRefused(t *testing.T) {
	sh := shipmentAt(1, models.ShipmentPickedUp)
	id := uint64(7)
	sh.PrimaryCourierID = &id
	e := newEnv(t, newFakeShipments(sh), newFakeCouriers(courierAt(7, 100, 0)),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}})

	err := e.svc.Reject(context.Background(), 1, 7, "")
	require.Equal(t, errs.CodeInvalidStateTransition, errs.CodeOf(err))
}

func TestConfirmPickupSchedulesTransit(t *testing.T) {
	e := newEnv(t,
		newFakeShipments(shipmentAt(1, models.ShipmentCreated)),
		newFakeCouriers(courierAt(7, 100, 0)),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}},
	)
	_, err := e.svc.Assign(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, e.svc.ConfirmPickup(context.Background(), 1, 7))

	sh, _ := e.shipments.GetShipment(context.Background(), 1)
	require.Equal(t, models.ShipmentPickedUp, sh.Status)
	require.Equal(t, []uint64{1}, e.scheduler.scheduled)

	var keys []string
	for _, ev := range e.ledger.events {
		keys = append(keys, ev.statusKey)
	}
	require.Contains(t, keys, models.TrackPickedUp)
}

func TestAssignDeliveryLegKeepsCommittedCourier(t *testing.T) {
	sh := shipmentAt(1, models.ShipmentReadyForDelivery)
	officeID, courierID := uint64(100), uint64(7)
	sh.DeliveryOfficeID = &officeID
	sh.DeliveryCourierID = &courierID

	courier := courierAt(7, 100, 0)
	courier.DeliveryLoad = 1 // claimed at commit time
	e := newEnv(t, newFakeShipments(sh), newFakeCouriers(courier),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}})

	require.NoError(t, e.svc.AssignDeliveryLeg(context.Background(), 1))

	got, _ := e.shipments.GetShipment(context.Background(), 1)
	require.Equal(t, models.ShipmentDelivering, got.Status)
	require.Equal(t, courierID, *got.PrimaryCourierID)
	// No extra claim on top of the committed one.
	require.EqualValues(t, 1, e.couriers.byID[7].DeliveryLoad)
}

func TestAssignDeliveryLegReplacesOfflineCourier(t *testing.T) {
	sh := shipmentAt(1, models.ShipmentReadyForDelivery)
	officeID, courierID := uint64(100), uint64(7)
	sh.DeliveryOfficeID = &officeID
	sh.DeliveryCourierID = &courierID

	offline := courierAt(7, 100, 0)
	offline.Online = false
	offline.DeliveryLoad = 1
	backup := courierAt(8, 100, 0)

	e := newEnv(t, newFakeShipments(sh), newFakeCouriers(offline, backup),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}})

	require.NoError(t, e.svc.AssignDeliveryLeg(context.Background(), 1))

	// Offline courier released, backup claimed.
	require.EqualValues(t, 0, e.couriers.byID[7].DeliveryLoad)
	require.EqualValues(t, 1, e.couriers.byID[8].DeliveryLoad)

	// The replacement is persisted on the shipment, taking both the
	// delivery leg and the primary slot.
	got, _ := e.shipments.GetShipment(context.Background(), 1)
	require.Equal(t, models.ShipmentDelivering, got.Status)
	require.Equal(t, uint64(8), *got.DeliveryCourierID)
	require.Equal(t, uint64(8), *got.PrimaryCourierID)

	// The courier actually holding the parcel may complete it.
	require.NoError(t, e.svc.CompleteDelivery(context.Background(), 1, 8))
}

func TestAssignDeliveryLegPendingRedeliveryRefused(t *testing.T) {
	sh := shipmentAt(1, models.ShipmentPendingRedelivery)
	officeID, courierID := uint64(100), uint64(7)
	sh.DeliveryOfficeID = &officeID
	sh.DeliveryCourierID = &courierID

	e := newEnv(t, newFakeShipments(sh), newFakeCouriers(courierAt(7, 100, 0)),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}})

	err := e.svc.AssignDeliveryLeg(context.Background(), 1)
	require.Equal(t, errs.CodeInvalidStateTransition, errs.CodeOf(err))
	require.EqualValues(t, 0, e.couriers.byID[7].DeliveryLoad)
}

func TestAssignDeliveryLegNoCourierRaisesAlert(t *testing.T) {
	sh := shipmentAt(1, models.ShipmentReadyForDelivery)
	officeID := uint64(100)
	sh.DeliveryOfficeID = &officeID

	e := newEnv(t, newFakeShipments(sh), newFakeCouriers(),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}})

	err := e.svc.AssignDeliveryLeg(context.Background(), 1)
	require.Equal(t, errs.CodeNoShipperAvailable, errs.CodeOf(err))
	require.Len(t, e.producer.onTopic("admin.alert"), 1)
}

func TestCompleteDeliveryReleasesBothLegs(t *testing.T) {
	sh := shipmentAt(1, models.ShipmentDelivering)
	pickup, delivery := uint64(7), uint64(8)
	sh.PickupCourierID = &pickup
	sh.DeliveryCourierID = &delivery
	sh.PrimaryCourierID = &delivery

	a, b := courierAt(7, 100, 0), courierAt(8, 100, 0)
	a.PickupLoad, b.DeliveryLoad = 1, 1
	e := newEnv(t, newFakeShipments(sh), newFakeCouriers(a, b),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}})

	require.NoError(t, e.svc.CompleteDelivery(context.Background(), 1, 8))

	got, _ := e.shipments.GetShipment(context.Background(), 1)
	require.Equal(t, models.ShipmentDelivered, got.Status)
	require.EqualValues(t, 0, e.couriers.byID[7].PickupLoad)
	require.EqualValues(t, 0, e.couriers.byID[8].DeliveryLoad)

	var keys []string
	for _, ev := range e.ledger.events {
		keys = append(keys, ev.statusKey)
	}
	require.Contains(t, keys, models.TrackDelivered)
}

func TestFailDeliveryRecordsReason(t *testing.T) {
	sh := shipmentAt(1, models.ShipmentDelivering)
	delivery := uint64(8)
	sh.DeliveryCourierID = &delivery
	sh.PrimaryCourierID = &delivery

	e := newEnv(t, newFakeShipments(sh), newFakeCouriers(courierAt(8, 100, 0)),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}})

	require.NoError(t, e.svc.FailDelivery(context.Background(), 1, 8, "recipient not home"))

	got, _ := e.shipments.GetShipment(context.Background(), 1)
	require.Equal(t, models.ShipmentFailed, got.Status)
	require.Equal(t, "recipient not home", *got.FailureReason)
	require.Equal(t, "recipient not home", e.ledger.events[0].details.Description)
}

func TestCancelReleasesAndDequeues(t *testing.T) {
	e := newEnv(t,
		newFakeShipments(shipmentAt(1, models.ShipmentCreated)),
		newFakeCouriers(courierAt(7, 100, 0)),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}},
	)
	_, err := e.svc.Assign(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, e.svc.Cancel(context.Background(), 1))

	got, _ := e.shipments.GetShipment(context.Background(), 1)
	require.Equal(t, models.ShipmentCancelled, got.Status)
	require.EqualValues(t, 0, e.couriers.byID[7].PickupLoad)
	require.EqualValues(t, 0, e.couriers.byID[7].DeliveryLoad)
}

func TestCancelAfterPickupRefused(t *testing.T) {
	e := newEnv(t, newFakeShipments(shipmentAt(1, models.ShipmentPickedUp)),
		newFakeCouriers(), &fakeOffices{})

	err := e.svc.Cancel(context.Background(), 1)
	require.Equal(t, errs.CodeInvalidStateTransition, errs.CodeOf(err))
}

func TestHandleCourierOffline(t *testing.T) {
	assignedSh := shipmentAt(1, models.ShipmentCreated)
	inHand := shipmentAt(2, models.ShipmentPickedUp)
	holder := uint64(7)
	inHand.PrimaryCourierID = &holder

	e := newEnv(t,
		newFakeShipments(assignedSh, inHand),
		newFakeCouriers(courierAt(7, 100, 0), courierAt(8, 100, 0)),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}},
	)
	_, err := e.svc.Assign(context.Background(), 1)
	require.NoError(t, err)
	sh, _ := e.shipments.GetShipment(context.Background(), 1)
	// Equal loads, deterministic tie-break: courier 7 holds shipment 1.
	require.Equal(t, uint64(7), *sh.PickupCourierID)

	require.NoError(t, e.svc.HandleCourierOffline(context.Background(), 7))

	// Not-yet-picked-up shipment went to the other courier.
	sh, _ = e.shipments.GetShipment(context.Background(), 1)
	require.Equal(t, models.ShipmentAssigned, sh.Status)
	require.Equal(t, uint64(8), *sh.PickupCourierID)

	// In-hand shipment stays put; alert raised instead.
	got, _ := e.shipments.GetShipment(context.Background(), 2)
	require.Equal(t, models.ShipmentPickedUp, got.Status)
	require.Len(t, e.producer.onTopic("admin.alert"), 1)
}

func TestAssignOfTerminalShipmentRefused(t *testing.T) {
	e := newEnv(t, newFakeShipments(shipmentAt(1, models.ShipmentDelivered)),
		newFakeCouriers(), &fakeOffices{})

	_, err := e.svc.Assign(context.Background(), 1)
	require.Equal(t, errs.CodeInvalidStateTransition, errs.CodeOf(err))
}

func TestAssignMissingShipment(t *testing.T) {
	e := newEnv(t, newFakeShipments(), newFakeCouriers(), &fakeOffices{})

	_, err := e.svc.Assign(context.Background(), 42)
	require.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}
