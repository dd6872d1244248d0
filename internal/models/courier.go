package models

import "time"

type Courier struct {
	ID        uint64
	FullName  string
	Phone     string
	Online    bool
	Available bool

	VehicleType string
	OfficeID    uint64

	// Last known position persisted in the registry; the live 5-minute
	// record lives in the geo cache.
	LastLat    *float64
	LastLng    *float64
	PositionAt *time.Time

	PickupLoad   int32
	DeliveryLoad int32

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Position is the short-TTL live record kept per online courier.
type Position struct {
	CourierID uint64    `json:"courier_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Speed     float64   `json:"speed,omitempty"`
	Heading   float64   `json:"heading,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NearbyCourier is a radius-query hit, distance in kilometers.
type NearbyCourier struct {
	CourierID  uint64
	Lat        float64
	Lng        float64
	DistanceKm float64
}
