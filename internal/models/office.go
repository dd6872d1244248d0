package models

const (
	OfficeTypeLocal    = "LOCAL"
	OfficeTypeRegional = "REGIONAL"
)

// Regions are coarse latitude bands; transit between two different
// regions routes through both regional hubs.
const (
	RegionNorth   = "north"
	RegionCentral = "central"
	RegionSouth   = "south"
)

type Office struct {
	ID      uint64
	Name    string
	Type    string
	Region  string
	Lat     float64
	Lng     float64
	Address string
	Active  bool
}

// RegionForLat maps a latitude to a region. Matches the country's
// administrative split closely enough for hub routing.
func RegionForLat(lat float64) string {
	switch {
	case lat >= 19.5:
		return RegionNorth
	case lat >= 13.5:
		return RegionCentral
	default:
		return RegionSouth
	}
}
