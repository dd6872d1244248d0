package proximity

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"shipdispatch/internal/broker/messages"
	"shipdispatch/internal/geo"
	"shipdispatch/internal/models"
)

type ShipmentSource interface {
	GetShipment(ctx context.Context, id uint64) (*models.Shipment, error)
}

type Flags interface {
	MarkProximityNotified(ctx context.Context, shipmentID uint64, ttl time.Duration) (bool, error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, payload any) error
}

// Monitor fires one "courier nearby" signal per shipment when the
// courier crosses the distance threshold. Everything that is not a
// clean trigger is a silent no-op: the check runs on every position
// update and must never fail the update itself.
type Monitor struct {
	shipments ShipmentSource
	flags     Flags
	producer  Publisher

	topic      string
	thresholdM float64
	flagTTL    time.Duration
	now        func() time.Time
}

func New(shipments ShipmentSource, flags Flags, producer Publisher, topic string, thresholdM float64, flagTTL time.Duration, now func() time.Time) *Monitor {
	if thresholdM <= 0 {
		thresholdM = 500
	}
	if flagTTL <= 0 {
		flagTTL = 24 * time.Hour
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Monitor{
		shipments: shipments, flags: flags, producer: producer,
		topic: topic, thresholdM: thresholdM, flagTTL: flagTTL, now: now,
	}
}

// Check evaluates one position update carrying a shipment context.
func (m *Monitor) Check(ctx context.Context, courierID, shipmentID uint64, lat, lng float64) {
	if shipmentID == 0 {
		return
	}

	sh, err := m.shipments.GetShipment(ctx, shipmentID)
	if err != nil {
		slog.Error("proximity: load shipment", "shipment_id", shipmentID, "error", err.Error())
		return
	}
	if sh == nil {
		return
	}
	if sh.Status != models.ShipmentDelivering {
		return
	}
	if sh.DeliveryLat == 0 && sh.DeliveryLng == 0 {
		return
	}

	distM := geo.DistanceKm(lat, lng, sh.DeliveryLat, sh.DeliveryLng) * 1000
	if distM > m.thresholdM {
		return
	}

	first, err := m.flags.MarkProximityNotified(ctx, shipmentID, m.flagTTL)
	if err != nil {
		slog.Error("proximity: flag", "shipment_id", shipmentID, "error", err.Error())
		return
	}
	if !first {
		return
	}

	msg := messages.CourierNearby{
		MessageID:      uuid.NewString(),
		ShipmentID:     shipmentID,
		TrackingNumber: sh.TrackingNumber,
		CourierID:      courierID,
		DistanceM:      distM,
		At:             m.now(),
	}
	if err := m.producer.PublishJSON(ctx, m.topic, strconv.FormatUint(shipmentID, 10), msg); err != nil {
		// Флаг уже стоит — сигнал по этой посылке потерян до конца TTL.
		// Осознанный компромисс: лучше молча потерять, чем спамить.
		slog.Error("proximity: publish", "shipment_id", shipmentID, "error", err.Error())
	}
}
