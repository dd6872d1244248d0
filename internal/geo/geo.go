package geo

import "math"

const earthRadiusKm = 6371.0

// kmPerDegreeLat: one degree of latitude is ~111 km everywhere.
const kmPerDegreeLat = 111.0

// DistanceKm is the Haversine distance between two points.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// BoxAround returns the bounding box covering radiusKm around a point.
// Longitude degrees shrink with latitude, hence the cos correction.
func BoxAround(lat, lng, radiusKm float64) BoundingBox {
	dLat := radiusKm / kmPerDegreeLat
	cosLat := math.Cos(rad(lat))
	if cosLat < 1e-6 {
		cosLat = 1e-6
	}
	dLng := radiusKm / (kmPerDegreeLat * cosLat)
	return BoundingBox{
		MinLat: lat - dLat,
		MaxLat: lat + dLat,
		MinLng: lng - dLng,
		MaxLng: lng + dLng,
	}
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
