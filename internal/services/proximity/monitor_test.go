package proximity

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"shipdispatch/internal/broker/messages"
	"shipdispatch/internal/cache/geocache"
	"shipdispatch/internal/models"
)

type fakeShipments struct {
	m map[uint64]*models.Shipment
}

func (f *fakeShipments) GetShipment(ctx context.Context, id uint64) (*models.Shipment, error) {
	return f.m[id], nil
}

type capturingProducer struct {
	topics   []string
	payloads [][]byte
}

func (p *capturingProducer) PublishJSON(ctx context.Context, topic, key string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, b)
	return nil
}

func newMonitor(t *testing.T, shipments map[uint64]*models.Shipment) (*Monitor, *capturingProducer) {
	mr := miniredis.RunT(t)
	prod := &capturingProducer{}
	mon := New(
		&fakeShipments{m: shipments},
		geocache.New(mr.Addr(), time.Minute),
		prod,
		"courier.nearby", 500, 24*time.Hour, nil,
	)
	return mon, prod
}

func deliveringShipment(id uint64) *models.Shipment {
	return &models.Shipment{
		ID: id, TrackingNumber: "VN00000042", Status: models.ShipmentDelivering,
		DeliveryLat: 10.7700, DeliveryLng: 106.7000,
	}
}

func TestMonitor_FiresOnceWithinThreshold(t *testing.T) {
	mon, prod := newMonitor(t, map[uint64]*models.Shipment{42: deliveringShipment(42)})
	ctx := context.Background()

	// Courier at the exact delivery coordinates; repeated updates.
	mon.Check(ctx, 7, 42, 10.7700, 106.7000)
	mon.Check(ctx, 7, 42, 10.7700, 106.7000)
	mon.Check(ctx, 7, 42, 10.7701, 106.7001)

	require.Len(t, prod.payloads, 1)
	require.Equal(t, "courier.nearby", prod.topics[0])

	var msg messages.CourierNearby
	require.NoError(t, json.Unmarshal(prod.payloads[0], &msg))
	require.Equal(t, uint64(42), msg.ShipmentID)
	require.Equal(t, uint64(7), msg.CourierID)
	require.Equal(t, "VN00000042", msg.TrackingNumber)
	require.LessOrEqual(t, msg.DistanceM, 500.0)
	require.NotEmpty(t, msg.MessageID)
}

func TestMonitor_OutsideThreshold(t *testing.T) {
	mon, prod := newMonitor(t, map[uint64]*models.Shipment{42: deliveringShipment(42)})

	// ~1.1 km north of the delivery point.
	mon.Check(context.Background(), 7, 42, 10.7800, 106.7000)
	require.Empty(t, prod.payloads)
}

func TestMonitor_SilentNoOps(t *testing.T) {
	assigned := deliveringShipment(43)
	assigned.Status = models.ShipmentAssigned
	noCoords := deliveringShipment(44)
	noCoords.DeliveryLat, noCoords.DeliveryLng = 0, 0

	mon, prod := newMonitor(t, map[uint64]*models.Shipment{43: assigned, 44: noCoords})
	ctx := context.Background()

	mon.Check(ctx, 7, 0, 10.77, 106.70)  // no shipment context
	mon.Check(ctx, 7, 99, 10.77, 106.70) // unknown shipment
	mon.Check(ctx, 7, 43, 10.77, 106.70) // not delivering yet
	mon.Check(ctx, 7, 44, 10.77, 106.70) // missing delivery coordinates

	require.Empty(t, prod.payloads)
}

func TestMonitor_SeparateShipmentsEachFire(t *testing.T) {
	second := deliveringShipment(43)
	mon, prod := newMonitor(t, map[uint64]*models.Shipment{
		42: deliveringShipment(42),
		43: second,
	})
	ctx := context.Background()

	mon.Check(ctx, 7, 42, 10.7700, 106.7000)
	mon.Check(ctx, 8, 43, 10.7700, 106.7000)
	require.Len(t, prod.payloads, 2)
}
