package messages

import "time"

// Payloads are flat JSON objects; delivery is at-least-once, consumers
// deduplicate by MessageID if they care.

type ShipmentAssigned struct {
	MessageID         string    `json:"message_id"`
	ShipmentID        uint64    `json:"shipment_id"`
	TrackingNumber    string    `json:"tracking_number"`
	PickupCourierID   uint64    `json:"pickup_courier_id"`
	DeliveryCourierID uint64    `json:"delivery_courier_id"`
	PickupOfficeID    uint64    `json:"pickup_office_id"`
	DeliveryOfficeID  uint64    `json:"delivery_office_id"`
	AssignedAt        time.Time `json:"assigned_at"`
}

type ShipperRejection struct {
	MessageID      string    `json:"message_id"`
	ShipmentID     uint64    `json:"shipment_id"`
	TrackingNumber string    `json:"tracking_number"`
	CourierID      uint64    `json:"courier_id"`
	Reason         string    `json:"reason,omitempty"`
	RejectedAt     time.Time `json:"rejected_at"`
}

type AdminAlert struct {
	MessageID  string    `json:"message_id"`
	Kind       string    `json:"kind"`
	ShipmentID uint64    `json:"shipment_id,omitempty"`
	CourierID  uint64    `json:"courier_id,omitempty"`
	Detail     string    `json:"detail"`
	RaisedAt   time.Time `json:"raised_at"`
}

const (
	AlertAssignmentExhausted       = "ASSIGNMENT_RETRIES_EXHAUSTED"
	AlertCourierOfflineMidDelivery = "COURIER_OFFLINE_MID_DELIVERY"
)

type CourierNearby struct {
	MessageID      string    `json:"message_id"`
	ShipmentID     uint64    `json:"shipment_id"`
	TrackingNumber string    `json:"tracking_number"`
	CourierID      uint64    `json:"courier_id"`
	DistanceM      float64   `json:"distance_m"`
	At             time.Time `json:"at"`
}

// CourierLocation is consumed from the location topic; couriers' apps
// publish it directly to the bus as well as over POST /location.
type CourierLocation struct {
	CourierID  uint64    `json:"courier_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Accuracy   float64   `json:"accuracy,omitempty"`
	Speed      float64   `json:"speed,omitempty"`
	Heading    float64   `json:"heading,omitempty"`
	ShipmentID uint64    `json:"shipment_id,omitempty"`
	Online     *bool     `json:"online,omitempty"`
	At         time.Time `json:"at"`
}
