// Package geo contains coordinate resolution, validation and pure
// geographic computation helpers.
package geo

import "math"

const earthRadiusKm = 6371.0

// Provenance records which source a coordinate was derived from, ranked
// by trustworthiness when merging.
type Provenance string

const (
	ProvenanceOrderField Provenance = "authoritative-order-field"
	ProvenanceCached     Provenance = "cached-entity-location"
	ProvenanceGeocoded   Provenance = "geocoded-address"
	ProvenanceDevice     Provenance = "device-geolocation"
	ProvenanceProfile    Provenance = "stored-profile-location"
	ProvenanceFallback   Provenance = "static-fallback"
	ProvenancePreserved  Provenance = "preserved"
)

// Coordinate is an immutable longitude/latitude pair. Resolution steps
// produce new values rather than mutating in place.
type Coordinate struct {
	Lng        float64    `json:"lng"`
	Lat        float64    `json:"lat"`
	Provenance Provenance `json:"provenance,omitempty"`
}

// Valid reports whether the pair denotes a real location. The exact
// origin (0,0) is treated as "unset": upstream producers emit it as a
// zero value, never as a genuine position.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lng) || math.IsNaN(c.Lat) || math.IsInf(c.Lng, 0) || math.IsInf(c.Lat, 0) {
		return false
	}
	if c.Lng < -180 || c.Lng > 180 || c.Lat < -90 || c.Lat > 90 {
		return false
	}
	if c.Lng == 0 && c.Lat == 0 {
		return false
	}
	return true
}

// WithProvenance returns a copy tagged with the given provenance.
func (c Coordinate) WithProvenance(p Provenance) Coordinate {
	return Coordinate{Lng: c.Lng, Lat: c.Lat, Provenance: p}
}

// Distance returns the great-circle distance in kilometres between two
// points, rounded to one decimal place.
func Distance(a, b Coordinate) float64 {
	km := haversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
	return math.Round(km*10) / 10
}

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// SortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function.
func SortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
