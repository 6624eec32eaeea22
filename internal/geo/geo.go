package geo

import "math"

const earthRadiusMeters = 6371000.0

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// TravelSeconds is a straight-line lower bound on travel time at the given
// speed. Used to fill edges whose time column is missing.
func TravelSeconds(lat1, lon1, lat2, lon2, speedMps float64) float64 {
	if speedMps <= 0 {
		speedMps = DefaultSpeedMps
	}
	return Haversine(lat1, lon1, lat2, lon2) / speedMps
}

// DefaultSpeedMps is roughly the top running speed of an underground train.
const DefaultSpeedMps = 25.0
