package geotrack

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"shipdispatch/internal/errs"
	"shipdispatch/internal/geo"
	"shipdispatch/internal/models"
)

type Cache interface {
	SetPosition(ctx context.Context, pos models.Position) error
	GetPosition(ctx context.Context, courierID uint64) (*models.Position, bool, error)
	GetPositions(ctx context.Context, courierIDs []uint64) (map[uint64]*models.Position, error)
	Radius(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]models.NearbyCourier, error)
	RemoveCourier(ctx context.Context, courierID uint64) error
}

type Repository interface {
	GetCourier(ctx context.Context, id uint64) (*models.Courier, error)
	UpdateCourierPosition(ctx context.Context, id uint64, lat, lng float64, at time.Time) error
	SetCourierOnline(ctx context.Context, id uint64, online bool) error
	ListCouriersInBox(ctx context.Context, box geo.BoundingBox, limit int) ([]*models.Courier, error)
}

// Service is the geo store: live positions in the cache, last-known
// position in the courier registry as fallback.
type Service struct {
	cache Cache
	repo  Repository
	now   func() time.Time
}

func New(cache Cache, repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{cache: cache, repo: repo, now: now}
}

func validCoords(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// minRadiusKm mirrors the geocache floor: 5 meters, enough to absorb
// geohash quantization without letting a 1 km-away courier through.
const minRadiusKm = 0.005

// UpdatePosition writes the live record and persists the last-known
// column. A cache failure is logged, not propagated: the persisted
// position is the source of truth the fallbacks read.
func (s *Service) UpdatePosition(ctx context.Context, pos models.Position) error {
	if pos.CourierID == 0 {
		return errs.New(errs.CodeBadRequest, "courierId is required")
	}
	if !validCoords(pos.Lat, pos.Lng) {
		return errs.New(errs.CodeBadRequest, "coordinates out of range")
	}
	if pos.Timestamp.IsZero() {
		pos.Timestamp = s.now()
	}

	c, err := s.repo.GetCourier(ctx, pos.CourierID)
	if err != nil {
		return err
	}
	if c == nil {
		return errs.NotFound("courier", pos.CourierID)
	}

	if err := s.repo.UpdateCourierPosition(ctx, pos.CourierID, pos.Lat, pos.Lng, pos.Timestamp); err != nil {
		return err
	}
	if err := s.cache.SetPosition(ctx, pos); err != nil {
		slog.Error("geo cache write failed", "courier_id", pos.CourierID, "error", err.Error())
	}
	return nil
}

// CourierLocation returns the live record, falling back to the
// registry's last-known position when the TTL entry is absent.
func (s *Service) CourierLocation(ctx context.Context, courierID uint64) (*models.Position, error) {
	pos, ok, err := s.cache.GetPosition(ctx, courierID)
	if err != nil {
		slog.Error("geo cache read failed", "courier_id", courierID, "error", err.Error())
	} else if ok {
		return pos, nil
	}

	c, err := s.repo.GetCourier(ctx, courierID)
	if err != nil {
		return nil, err
	}
	if c == nil || c.LastLat == nil || c.LastLng == nil {
		return nil, errs.NotFound("courier location", courierID)
	}
	fallback := &models.Position{
		CourierID: courierID,
		Lat:       *c.LastLat,
		Lng:       *c.LastLng,
	}
	if c.PositionAt != nil {
		fallback.Timestamp = *c.PositionAt
	}
	return fallback, nil
}

// Nearby lists couriers within radiusKm sorted ascending by distance.
// On geo-backend failure it degrades to a bounding-box scan over
// persisted positions.
func (s *Service) Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]models.NearbyCourier, error) {
	if !validCoords(lat, lng) {
		return nil, errs.New(errs.CodeBadRequest, "coordinates out of range")
	}
	if radiusKm < 0 {
		return nil, errs.New(errs.CodeBadRequest, "radius must be >= 0")
	}

	hits, err := s.cache.Radius(ctx, lat, lng, radiusKm, limit)
	if err == nil {
		return hits, nil
	}
	slog.Error("geo radius query failed, using db scan", "error", err.Error())

	// Тот же пол, что и в geocache: радиус 0 обязан находить курьера,
	// стоящего ровно в точке запроса.
	effRadius := radiusKm
	if effRadius < minRadiusKm {
		effRadius = minRadiusKm
	}

	couriers, err := s.repo.ListCouriersInBox(ctx, geo.BoxAround(lat, lng, effRadius), limit*4)
	if err != nil {
		return nil, err
	}
	out := make([]models.NearbyCourier, 0, len(couriers))
	for _, c := range couriers {
		if c.LastLat == nil || c.LastLng == nil {
			continue
		}
		d := geo.DistanceKm(lat, lng, *c.LastLat, *c.LastLng)
		if d > effRadius {
			continue // box corners stick out past the radius
		}
		out = append(out, models.NearbyCourier{
			CourierID: c.ID, Lat: *c.LastLat, Lng: *c.LastLng, DistanceKm: d,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DistanceKm is the courier-to-point distance via the freshest known
// position.
func (s *Service) DistanceKm(ctx context.Context, courierID uint64, lat, lng float64) (float64, error) {
	pos, err := s.CourierLocation(ctx, courierID)
	if err != nil {
		return 0, err
	}
	return geo.DistanceKm(pos.Lat, pos.Lng, lat, lng), nil
}

// Positions is the batch multi-get over live records.
func (s *Service) Positions(ctx context.Context, courierIDs []uint64) (map[uint64]*models.Position, error) {
	return s.cache.GetPositions(ctx, courierIDs)
}

// SetOffline drops the courier from the live index and flips the
// registry flag. Reassignment of the courier's work is the
// dispatcher's call, not ours.
func (s *Service) SetOffline(ctx context.Context, courierID uint64) error {
	if err := s.cache.RemoveCourier(ctx, courierID); err != nil {
		slog.Error("geo cache remove failed", "courier_id", courierID, "error", err.Error())
	}
	return s.repo.SetCourierOnline(ctx, courierID, false)
}
