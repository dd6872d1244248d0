package models

import "time"

// Shipment statuses. The allowed transitions between them live in status.go.
const (
	ShipmentCreated           = "CREATED"
	ShipmentPendingAssignment = "PENDING_ASSIGNMENT"
	ShipmentAssigned          = "ASSIGNED"
	ShipmentPickedUp          = "PICKED_UP"
	ShipmentInTransit         = "IN_TRANSIT"
	ShipmentReadyForDelivery  = "READY_FOR_DELIVERY"
	ShipmentDelivering        = "DELIVERING"
	ShipmentDelivered         = "DELIVERED"
	ShipmentFailed            = "FAILED"
	ShipmentPendingRedelivery = "PENDING_REDELIVERY"
	ShipmentCancelled         = "CANCELLED"
	ShipmentReturned          = "RETURNED"
)

type Shipment struct {
	ID             uint64
	TrackingNumber string
	Status         string

	PickupLat       float64
	PickupLng       float64
	PickupAddress   string
	DeliveryLat     float64
	DeliveryLng     float64
	DeliveryAddress string

	PickupOfficeID   *uint64
	DeliveryOfficeID *uint64

	PickupCourierID   *uint64
	DeliveryCourierID *uint64
	// PrimaryCourierID mirrors whichever leg is currently active.
	PrimaryCourierID *uint64

	CODAmount    int64
	CODCollected bool

	FailureReason *string

	// Denormalized from the tracking ledger.
	CurrentLocation string
	LastUpdateAt    *time.Time

	CreatedAt   time.Time
	AssignedAt  *time.Time
	PickedUpAt  *time.Time
	DeliveredAt *time.Time
}

// Terminal reports whether no further transitions are possible.
func (s *Shipment) Terminal() bool {
	switch s.Status {
	case ShipmentDelivered, ShipmentCancelled, ShipmentReturned:
		return true
	}
	return false
}
