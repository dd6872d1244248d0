// Package dispatchapi is the synchronous HTTP surface over the
// dispatch core: tracking queries, courier geo endpoints and the
// assignment actions.
package dispatchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"shipdispatch/internal/errs"
	"shipdispatch/internal/models"
	"shipdispatch/internal/services/tracking"
)

type Dispatcher interface {
	Assign(ctx context.Context, shipmentID uint64) (*models.Shipment, error)
	Reject(ctx context.Context, shipmentID, courierID uint64, reason string) error
	ConfirmPickup(ctx context.Context, shipmentID, courierID uint64) error
	CompleteDelivery(ctx context.Context, shipmentID, courierID uint64) error
	FailDelivery(ctx context.Context, shipmentID, courierID uint64, reason string) error
	Cancel(ctx context.Context, shipmentID uint64) error
	HandleCourierOffline(ctx context.Context, courierID uint64) error
}

type GeoService interface {
	UpdatePosition(ctx context.Context, pos models.Position) error
	CourierLocation(ctx context.Context, courierID uint64) (*models.Position, error)
	Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]models.NearbyCourier, error)
	SetOffline(ctx context.Context, courierID uint64) error
}

type Ledger interface {
	Append(ctx context.Context, shipmentID uint64, statusKey string, d tracking.Details) (*models.TrackingEvent, error)
	History(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.TrackingEvent, error)
}

type ShipmentStore interface {
	CreateShipment(ctx context.Context, sh *models.Shipment) (uint64, error)
	GetShipment(ctx context.Context, id uint64) (*models.Shipment, error)
}

type ProximityChecker interface {
	Check(ctx context.Context, courierID, shipmentID uint64, lat, lng float64)
}

type API struct {
	dispatcher Dispatcher
	geo        GeoService
	ledger     Ledger
	shipments  ShipmentStore
	proximity  ProximityChecker
}

func New(dispatcher Dispatcher, geo GeoService, ledger Ledger, shipments ShipmentStore, proximity ProximityChecker) *API {
	return &API{
		dispatcher: dispatcher,
		geo:        geo,
		ledger:     ledger,
		shipments:  shipments,
		proximity:  proximity,
	}
}

func (a *API) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/tracking/{shipmentID}", a.getTracking)
	r.Get("/courier-location/{courierID}", a.getCourierLocation)
	r.Get("/nearby-couriers", a.getNearbyCouriers)
	r.Post("/location", a.postLocation)

	r.Post("/shipments", a.postShipment)
	r.Post("/assign/{shipmentID}", a.postAssign)
	r.Post("/reassign/{shipmentID}", a.postReassign)
	r.Post("/pickup/{shipmentID}", a.postPickup)
	r.Post("/delivered/{shipmentID}", a.postDelivered)
	r.Post("/delivery-failed/{shipmentID}", a.postDeliveryFailed)
	r.Post("/cancel/{shipmentID}", a.postCancel)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := errs.CodeOf(err)
	if code == "" {
		code = "INTERNAL"
	}
	writeJSON(w, errs.HTTPStatus(err), map[string]string{
		"code":  string(code),
		"error": err.Error(),
	})
}

func pathID(r *http.Request, name string) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, errs.New(errs.CodeBadRequest, "invalid %s", name)
	}
	return id, nil
}

type shipmentSummary struct {
	ID              uint64     `json:"id"`
	TrackingNumber  string     `json:"trackingNumber"`
	Status          string     `json:"status"`
	CurrentLocation string     `json:"currentLocation,omitempty"`
	LastUpdateAt    *time.Time `json:"lastUpdateAt,omitempty"`
	CODAmount       int64      `json:"codAmount,omitempty"`
	CODCollected    bool       `json:"codCollected,omitempty"`
}

type trackingEventOut struct {
	StatusKey       string    `json:"statusKey"`
	Description     string    `json:"description"`
	LocationName    string    `json:"locationName,omitempty"`
	LocationAddress string    `json:"locationAddress,omitempty"`
	Lat             *float64  `json:"lat,omitempty"`
	Lng             *float64  `json:"lng,omitempty"`
	Actor           string    `json:"actor"`
	EventTime       time.Time `json:"eventTime"`
}

func (a *API) getTracking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "shipmentID")
	if err != nil {
		writeError(w, err)
		return
	}

	sh, err := a.shipments.GetShipment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if sh == nil {
		writeError(w, errs.NotFound("shipment", id))
		return
	}

	events, err := a.ledger.History(r.Context(), id, 100, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]trackingEventOut, 0, len(events))
	for _, e := range events {
		out = append(out, trackingEventOut{
			StatusKey:       e.StatusKey,
			Description:     e.Description,
			LocationName:    e.LocationName,
			LocationAddress: e.LocationAddress,
			Lat:             e.Lat,
			Lng:             e.Lng,
			Actor:           e.Actor,
			EventTime:       e.EventTime,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"shipment": shipmentSummary{
			ID:              sh.ID,
			TrackingNumber:  sh.TrackingNumber,
			Status:          sh.Status,
			CurrentLocation: sh.CurrentLocation,
			LastUpdateAt:    sh.LastUpdateAt,
			CODAmount:       sh.CODAmount,
			CODCollected:    sh.CODCollected,
		},
		"events": out,
	})
}

func (a *API) getCourierLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "courierID")
	if err != nil {
		writeError(w, err)
		return
	}
	pos, err := a.geo.CourierLocation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (a *API) getNearbyCouriers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(w, errs.New(errs.CodeBadRequest, "lat and lng are required"))
		return
	}
	radiusKm := 5.0
	if s := q.Get("radiusKm"); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			radiusKm = v
		}
	}
	limit := 20
	if s := q.Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}

	hits, err := a.geo.Nearby(r.Context(), lat, lng, radiusKm, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if hits == nil {
		hits = []models.NearbyCourier{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"couriers": hits})
}

type locationRequest struct {
	CourierID  uint64  `json:"courierId"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Accuracy   float64 `json:"accuracy,omitempty"`
	Speed      float64 `json:"speed,omitempty"`
	Heading    float64 `json:"heading,omitempty"`
	ShipmentID uint64  `json:"shipmentId,omitempty"`
	Online     *bool   `json:"online,omitempty"`
}

func (a *API) postLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.CodeBadRequest, "invalid body"))
		return
	}

	// Явный оффлайн: снимаем курьера с гео-индекса и отдаём его
	// назначенные заявки диспетчеру.
	if req.Online != nil && !*req.Online {
		if err := a.geo.SetOffline(r.Context(), req.CourierID); err != nil {
			writeError(w, err)
			return
		}
		if err := a.dispatcher.HandleCourierOffline(r.Context(), req.CourierID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"offline": true})
		return
	}

	err := a.geo.UpdatePosition(r.Context(), models.Position{
		CourierID: req.CourierID,
		Lat:       req.Lat,
		Lng:       req.Lng,
		Accuracy:  req.Accuracy,
		Speed:     req.Speed,
		Heading:   req.Heading,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if a.proximity != nil && req.ShipmentID != 0 {
		a.proximity.Check(r.Context(), req.CourierID, req.ShipmentID, req.Lat, req.Lng)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"accepted": true})
}

type createShipmentRequest struct {
	TrackingNumber  string  `json:"trackingNumber"`
	PickupLat       float64 `json:"pickupLat"`
	PickupLng       float64 `json:"pickupLng"`
	PickupAddress   string  `json:"pickupAddress"`
	DeliveryLat     float64 `json:"deliveryLat"`
	DeliveryLng     float64 `json:"deliveryLng"`
	DeliveryAddress string  `json:"deliveryAddress"`
	CODAmount       int64   `json:"codAmount,omitempty"`
}

func (a *API) postShipment(w http.ResponseWriter, r *http.Request) {
	var req createShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.CodeBadRequest, "invalid body"))
		return
	}
	if req.TrackingNumber == "" {
		writeError(w, errs.New(errs.CodeBadRequest, "trackingNumber is required"))
		return
	}

	id, err := a.shipments.CreateShipment(r.Context(), &models.Shipment{
		TrackingNumber:  req.TrackingNumber,
		PickupLat:       req.PickupLat,
		PickupLng:       req.PickupLng,
		PickupAddress:   req.PickupAddress,
		DeliveryLat:     req.DeliveryLat,
		DeliveryLng:     req.DeliveryLng,
		DeliveryAddress: req.DeliveryAddress,
		CODAmount:       req.CODAmount,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := a.ledger.Append(r.Context(), id, models.TrackOrderPlaced, tracking.Details{}); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (a *API) postAssign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "shipmentID")
	if err != nil {
		writeError(w, err)
		return
	}
	sh, err := a.dispatcher.Assign(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shipmentSummary{
		ID:             sh.ID,
		TrackingNumber: sh.TrackingNumber,
		Status:         sh.Status,
	})
}

type courierActionRequest struct {
	CourierID uint64 `json:"courierId"`
	Reason    string `json:"reason,omitempty"`
}

func decodeCourierAction(r *http.Request) (courierActionRequest, error) {
	var req courierActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, errs.New(errs.CodeBadRequest, "invalid body")
	}
	if req.CourierID == 0 {
		return req, errs.New(errs.CodeBadRequest, "courierId is required")
	}
	return req, nil
}

func (a *API) postReassign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "shipmentID")
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := decodeCourierAction(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.dispatcher.Reject(r.Context(), id, req.CourierID, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reassigned": true})
}

func (a *API) postPickup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "shipmentID")
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := decodeCourierAction(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.dispatcher.ConfirmPickup(r.Context(), id, req.CourierID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"pickedUp": true})
}

func (a *API) postDelivered(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "shipmentID")
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := decodeCourierAction(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.dispatcher.CompleteDelivery(r.Context(), id, req.CourierID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"delivered": true})
}

func (a *API) postDeliveryFailed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "shipmentID")
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := decodeCourierAction(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Reason == "" {
		writeError(w, errs.New(errs.CodeBadRequest, "reason is required"))
		return
	}
	if err := a.dispatcher.FailDelivery(r.Context(), id, req.CourierID, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"failed": true})
}

func (a *API) postCancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "shipmentID")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.dispatcher.Cancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}
