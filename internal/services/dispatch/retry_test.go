package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shipdispatch/internal/broker/messages"
	"shipdispatch/internal/models"
)

func parkShipment(t *testing.T, e *env, id uint64) {
	t.Helper()
	_, err := e.svc.Assign(context.Background(), id)
	require.Error(t, err)
	require.Contains(t, e.queue.entries, id)
}

func TestRetrySucceedsWhenCourierAppears(t *testing.T) {
	e := newEnv(t,
		newFakeShipments(shipmentAt(1, models.ShipmentCreated)),
		newFakeCouriers(),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}},
	)
	parkShipment(t, e, 1)

	// A courier comes online; the due entry assigns on the next pass.
	e.couriers.byID[7] = courierAt(7, 100, 0)
	e.now = e.now.Add(6 * time.Minute)

	n, err := e.svc.ProcessRetryQueue(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	sh, _ := e.shipments.GetShipment(context.Background(), 1)
	require.Equal(t, models.ShipmentAssigned, sh.Status)
	require.Empty(t, e.queue.entries)
}

func TestRetryNotDueIsSkipped(t *testing.T) {
	e := newEnv(t,
		newFakeShipments(shipmentAt(1, models.ShipmentCreated)),
		newFakeCouriers(),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}},
	)
	parkShipment(t, e, 1)
	e.couriers.byID[7] = courierAt(7, 100, 0)

	// Still inside the retry interval.
	n, err := e.svc.ProcessRetryQueue(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, n)

	sh, _ := e.shipments.GetShipment(context.Background(), 1)
	require.Equal(t, models.ShipmentPendingAssignment, sh.Status)
}

func TestRetryBumpsCounterOnFailure(t *testing.T) {
	e := newEnv(t,
		newFakeShipments(shipmentAt(1, models.ShipmentCreated)),
		newFakeCouriers(),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}},
	)
	parkShipment(t, e, 1)
	e.now = e.now.Add(6 * time.Minute)

	n, err := e.svc.ProcessRetryQueue(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, n)

	entry := e.queue.entries[uint64(1)]
	require.EqualValues(t, 1, entry.RetryCount)
	require.Equal(t, e.now.Add(5*time.Minute), entry.NextRetryAt)
}

func TestRetryCeilingEscalatesExactlyOnce(t *testing.T) {
	e := newEnv(t,
		newFakeShipments(shipmentAt(1, models.ShipmentCreated)),
		newFakeCouriers(),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}},
	)
	parkShipment(t, e, 1)

	// Walk the counter to the ceiling (12 by default).
	for i := 0; i < 12; i++ {
		e.now = e.now.Add(6 * time.Minute)
		_, err := e.svc.ProcessRetryQueue(context.Background(), 10)
		require.NoError(t, err)
	}

	require.Empty(t, e.queue.entries)

	alerts := e.producer.onTopic("admin.alert")
	require.Len(t, alerts, 1)
	alert, ok := alerts[0].payload.(messages.AdminAlert)
	require.True(t, ok)
	require.Equal(t, messages.AlertAssignmentExhausted, alert.Kind)
	require.Equal(t, uint64(1), alert.ShipmentID)

	// Further passes find nothing and never alert again.
	e.now = e.now.Add(6 * time.Minute)
	_, err := e.svc.ProcessRetryQueue(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, e.producer.onTopic("admin.alert"), 1)
}

func TestRetryDropsShipmentThatLeftPending(t *testing.T) {
	e := newEnv(t,
		newFakeShipments(shipmentAt(1, models.ShipmentCreated)),
		newFakeCouriers(),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}},
	)
	parkShipment(t, e, 1)

	// Cancelled out of band while queued.
	e.shipments.byID[1].Status = models.ShipmentCancelled
	e.now = e.now.Add(6 * time.Minute)

	_, err := e.svc.ProcessRetryQueue(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, e.queue.entries)
}

func TestRetryProcessorStats(t *testing.T) {
	e := newEnv(t,
		newFakeShipments(shipmentAt(1, models.ShipmentCreated)),
		newFakeCouriers(),
		&fakeOffices{all: []*models.Office{localOffice(100, hanoiLat, hanoiLng)}},
	)
	parkShipment(t, e, 1)
	e.couriers.byID[7] = courierAt(7, 100, 0)
	e.now = e.now.Add(6 * time.Minute)

	p := NewRetryProcessor(e.svc, 10)
	p.RunOnce(context.Background())

	passes, assigned := p.Stats()
	require.EqualValues(t, 1, passes)
	require.EqualValues(t, 1, assigned)
}
