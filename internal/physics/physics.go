package physics

import (
	"math"
)

// ------------------------------------------------------------------------------------------------
// UNIT CONVERSIONS
// ------------------------------------------------------------------------------------------------

const (
	MetersToFeet    = 3.28084    // Feet per metre
	MsToKnots       = 1.943844   // Knots per m/s
	MsToFeetPerMin  = 196.850394 // ft/min per m/s
	MetersPerNM     = 1852.0     // Metres per nautical mile
	EarthRadiusM    = 6371000.0  // Mean Earth radius (m)
	ArcMinutesPerNM = 1.0        // One minute of latitude is one nautical mile
)

// MetersToNM converts metres to nautical miles
func MetersToNM(m float64) float64 {
	return m / MetersPerNM
}

// ------------------------------------------------------------------------------------------------
// NAVIGATION
// ------------------------------------------------------------------------------------------------

func rad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Haversine returns the great-circle distance in metres between two points
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DistanceNM returns the great-circle distance in nautical miles
func DistanceNM(lat1, lon1, lat2, lon2 float64) float64 {
	return MetersToNM(Haversine(lat1, lon1, lat2, lon2))
}

// BoundingBox returns the lat/lon box enclosing a circle of radiusNM around a
// point. Longitude span widens with latitude.
func BoundingBox(lat, lon, radiusNM float64) (latMin, lonMin, latMax, lonMax float64) {
	latDeg := radiusNM * ArcMinutesPerNM / 60.0
	lonDeg := radiusNM * ArcMinutesPerNM / (60.0 * math.Cos(rad(lat)))
	return lat - latDeg, lon - lonDeg, lat + latDeg, lon + lonDeg
}
