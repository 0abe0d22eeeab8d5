package geo

import (
	"fmt"
	"math"
)

const earthRadiusMeters = 6_371_000.0

// Distance returns the great-circle distance between two coordinates in
// meters, via the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// Bucket maps a distance to its coarse bucket index for the given width.
func Bucket(distanceMeters, widthMeters float64) int {
	if distanceMeters < 0 {
		return 0
	}
	return int(distanceMeters / widthMeters)
}

// BucketLabel renders a bucket as the display string shown to users, e.g.
// "under 500 m" or "1.0–1.5 km". Exact distances are never displayed.
func BucketLabel(bucket int, widthMeters float64) string {
	low := float64(bucket) * widthMeters
	high := low + widthMeters
	if bucket == 0 {
		if widthMeters < 1000 {
			return fmt.Sprintf("under %.0f m", widthMeters)
		}
		return fmt.Sprintf("under %.1f km", widthMeters/1000)
	}
	return fmt.Sprintf("%.1f–%.1f km", low/1000, high/1000)
}
