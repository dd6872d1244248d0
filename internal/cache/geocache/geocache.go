package geocache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"shipdispatch/internal/models"
)

const geoIndexKey = "geo:couriers"

// minRadiusKm is the effective floor for radius queries (5 meters), so
// a query at a courier's own coordinates always finds them.
const minRadiusKm = 0.005

// GeoCache keeps the live courier positions: a short-TTL JSON record
// per courier plus a shared GEO index for radius queries. The GEO index
// has no per-member TTL, so radius hits are re-checked against the TTL
// records and stale members are dropped from results.
type GeoCache struct {
	c      *redis.Client
	posTTL time.Duration
}

func New(addr string, posTTL time.Duration) *GeoCache {
	if posTTL <= 0 {
		posTTL = 5 * time.Minute
	}
	return &GeoCache{
		c:      redis.NewClient(&redis.Options{Addr: addr}),
		posTTL: posTTL,
	}
}

func posKey(courierID uint64) string {
	return fmt.Sprintf("courier:%d:pos", courierID)
}

func proximityKey(shipmentID uint64) string {
	return fmt.Sprintf("shipment:%d:proximity", shipmentID)
}

func (g *GeoCache) SetPosition(ctx context.Context, pos models.Position) error {
	b, err := json.Marshal(pos)
	if err != nil {
		return errors.Wrap(err, "marshal position")
	}

	pipe := g.c.TxPipeline()
	pipe.Set(ctx, posKey(pos.CourierID), b, g.posTTL)
	pipe.GeoAdd(ctx, geoIndexKey, &redis.GeoLocation{
		Name:      strconv.FormatUint(pos.CourierID, 10),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis set position")
	}
	return nil
}

func (g *GeoCache) GetPosition(ctx context.Context, courierID uint64) (*models.Position, bool, error) {
	b, err := g.c.Get(ctx, posKey(courierID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get position")
	}
	var pos models.Position
	if err := json.Unmarshal(b, &pos); err != nil {
		return nil, false, errors.Wrap(err, "unmarshal position")
	}
	return &pos, true, nil
}

// GetPositions is a batch multi-get; absent and expired couriers are
// simply missing from the result map.
func (g *GeoCache) GetPositions(ctx context.Context, courierIDs []uint64) (map[uint64]*models.Position, error) {
	if len(courierIDs) == 0 {
		return map[uint64]*models.Position{}, nil
	}
	keys := make([]string, 0, len(courierIDs))
	for _, id := range courierIDs {
		keys = append(keys, posKey(id))
	}

	vals, err := g.c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis mget positions")
	}

	out := make(map[uint64]*models.Position, len(courierIDs))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var pos models.Position
		if json.Unmarshal([]byte(s), &pos) != nil {
			continue
		}
		out[courierIDs[i]] = &pos
	}
	return out, nil
}

// Radius returns couriers within radiusKm of the center, nearest first,
// filtered to those whose TTL record is still alive.
func (g *GeoCache) Radius(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]models.NearbyCourier, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	// GEORADIUS 0 вернул бы пусто: геохеш квантует координаты, и даже в
	// точке члена дистанция получается ненулевой. Пяти метров хватает.
	if radiusKm < minRadiusKm {
		radiusKm = minRadiusKm
	}

	locs, err := g.c.GeoRadius(ctx, geoIndexKey, lng, lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Count:     limit,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis georadius")
	}

	ids := make([]uint64, 0, len(locs))
	for _, l := range locs {
		id, err := strconv.ParseUint(l.Name, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	fresh, err := g.GetPositions(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.NearbyCourier, 0, len(locs))
	for _, l := range locs {
		id, err := strconv.ParseUint(l.Name, 10, 64)
		if err != nil {
			continue
		}
		if _, ok := fresh[id]; !ok {
			continue // запись протухла, курьер давно не слал координаты
		}
		out = append(out, models.NearbyCourier{
			CourierID:  id,
			Lat:        l.Latitude,
			Lng:        l.Longitude,
			DistanceKm: l.Dist,
		})
	}
	return out, nil
}

// RemoveCourier drops a courier from the live index (offline).
func (g *GeoCache) RemoveCourier(ctx context.Context, courierID uint64) error {
	pipe := g.c.TxPipeline()
	pipe.ZRem(ctx, geoIndexKey, strconv.FormatUint(courierID, 10))
	pipe.Del(ctx, posKey(courierID))
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis remove courier")
	}
	return nil
}

// MarkProximityNotified sets the per-shipment notified flag. Returns
// true only for the first caller within the TTL window.
func (g *GeoCache) MarkProximityNotified(ctx context.Context, shipmentID uint64, ttl time.Duration) (bool, error) {
	set, err := g.c.SetNX(ctx, proximityKey(shipmentID), "1", ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis proximity flag")
	}
	return set, nil
}
