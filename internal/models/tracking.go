package models

import "time"

// Tracking status keys. The ledger owns the default descriptions for
// each key; callers may override them per event.
const (
	TrackOrderPlaced           = "ORDER_PLACED"
	TrackShopConfirmed         = "SHOP_CONFIRMED"
	TrackPacked                = "PACKED"
	TrackReadyToShip           = "READY_TO_SHIP"
	TrackPickupRequested       = "PICKUP_REQUESTED"
	TrackShipperAssigned       = "SHIPPER_ASSIGNED"
	TrackPickedUp              = "PICKED_UP"
	TrackArrivedPickupOffice   = "ARRIVED_PICKUP_OFFICE"
	TrackLeftPickupOffice      = "LEFT_PICKUP_OFFICE"
	TrackArrivedSortingHub     = "ARRIVED_SORTING_HUB"
	TrackLeftSortingHub        = "LEFT_SORTING_HUB"
	TrackArrivedDeliveryOffice = "ARRIVED_DELIVERY_OFFICE"
	TrackOutForDelivery        = "OUT_FOR_DELIVERY"
	TrackDelivered             = "DELIVERED"
	TrackDeliveryFailed        = "DELIVERY_FAILED"
	TrackReturning             = "RETURNING"
	TrackReturned              = "RETURNED"
)

const (
	ActorSystem  = "SYSTEM"
	ActorShop    = "SHOP"
	ActorCourier = "COURIER"
)

type TrackingEvent struct {
	ID          uint64
	ShipmentID  uint64
	StatusKey   string
	Description string

	LocationName    string
	LocationAddress string
	Lat             *float64
	Lng             *float64

	Actor     string
	EventTime time.Time
	CreatedAt time.Time
}

// QueueEntry is one shipment waiting for a reassignment attempt.
type QueueEntry struct {
	ShipmentID  uint64
	RetryCount  int32
	QueuedAt    time.Time
	NextRetryAt time.Time
}

// TransitJob is one scheduled synthetic tracking hop; rows are claimed
// due-first by the worker and executed at most once.
type TransitJob struct {
	ID         uint64
	ShipmentID uint64
	Seq        int32
	StatusKey  string
	OfficeID   *uint64
	RunAt      time.Time
	Done       bool
	CreatedAt  time.Time
}
