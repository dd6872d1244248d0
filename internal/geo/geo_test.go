package geo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDistanceKm(t *testing.T) {
	// Hanoi -> Ho Chi Minh City, ~1140 km great-circle.
	d := DistanceKm(21.0285, 105.8542, 10.7769, 106.7009)
	require.InDelta(t, 1140, d, 20)

	require.Zero(t, DistanceKm(10.77, 106.70, 10.77, 106.70))
}

func TestBoxAround(t *testing.T) {
	box := BoxAround(10.77, 106.70, 10)

	require.InDelta(t, 10.77-10.0/111, box.MinLat, 1e-9)
	require.InDelta(t, 10.77+10.0/111, box.MaxLat, 1e-9)
	// дельта долготы шире дельты широты из-за поправки на cos(lat)
	require.Greater(t, box.MaxLng-106.70, box.MaxLat-10.77)

	// точка в радиусе попадает в box, точка далеко за радиусом — нет
	require.True(t, box.MinLat <= 10.78 && 10.78 <= box.MaxLat)
	require.False(t, box.MinLat <= 11.5 && 11.5 <= box.MaxLat)
}
