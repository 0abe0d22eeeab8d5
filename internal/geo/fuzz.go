package geo

import (
	"math"
	"math/rand"

	"github.com/lateshift-app/afterhours-server/internal/config"
	apperrors "github.com/lateshift-app/afterhours-server/internal/errors"
)

// meters per degree of latitude, near-constant everywhere
const metersPerDegreeLat = 111_320.0

// ValidCoordinate reports whether lat/lon form a real-world coordinate.
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Fuzz returns a display-safe coordinate: the input displaced by a random
// offset of up to radiusMeters, then snapped to a 3-decimal grid (~111 m).
//
// The radius fraction is sqrt-weighted so points distribute uniformly over
// the disc; linear sampling would cluster them near the true location. The
// grid snap is an independent second layer: an observer can neither average
// out the offset across the grid nor recover sub-grid position from the
// offset distribution.
func Fuzz(lat, lon, radiusMeters float64) (float64, float64, error) {
	if !ValidCoordinate(lat, lon) {
		return 0, 0, apperrors.InvalidCoordinate(lat, lon)
	}
	if radiusMeters <= 0 {
		radiusMeters = 500
	}

	theta := rand.Float64() * 2 * math.Pi
	dist := math.Sqrt(rand.Float64()) * radiusMeters

	north := dist * math.Sin(theta)
	east := dist * math.Cos(theta)

	latDelta := north / metersPerDegreeLat

	// meters per degree of longitude shrinks toward the poles
	lonScale := metersPerDegreeLat * math.Cos(lat*math.Pi/180)
	if math.Abs(lonScale) < 1 {
		lonScale = 1
	}
	lonDelta := east / lonScale

	fuzzedLat := roundTo(lat+latDelta, config.FuzzRoundDecimals)
	fuzzedLon := roundTo(lon+lonDelta, config.FuzzRoundDecimals)

	fuzzedLat = math.Max(-90, math.Min(90, fuzzedLat))
	fuzzedLon = wrapLongitude(fuzzedLon)

	return fuzzedLat, fuzzedLon, nil
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}

func wrapLongitude(lon float64) float64 {
	wrapped := math.Mod(lon+180, 360)
	if wrapped < 0 {
		wrapped += 360
	}
	return wrapped - 180
}
