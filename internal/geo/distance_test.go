package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	t.Run("zero for identical points", func(t *testing.T) {
		assert.InDelta(t, 0, Distance(40.7128, -74.0060, 40.7128, -74.0060), 0.001)
	})

	t.Run("known city pair", func(t *testing.T) {
		// New York to Philadelphia, roughly 130 km
		d := Distance(40.7128, -74.0060, 39.9526, -75.1652)
		assert.InDelta(t, 130_000, d, 2_000)
	})

	t.Run("short urban distance", func(t *testing.T) {
		// ~0.01 degrees of latitude is about 1.1 km
		d := Distance(40.7128, -74.0060, 40.7228, -74.0060)
		assert.InDelta(t, 1_113, d, 10)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := Distance(51.5074, -0.1278, 48.8566, 2.3522)
		b := Distance(48.8566, 2.3522, 51.5074, -0.1278)
		assert.InDelta(t, a, b, 0.001)
	})
}

func TestBucket(t *testing.T) {
	assert.Equal(t, 0, Bucket(0, 500))
	assert.Equal(t, 0, Bucket(499.9, 500))
	assert.Equal(t, 1, Bucket(500, 500))
	assert.Equal(t, 2, Bucket(1200, 500))
	assert.Equal(t, 0, Bucket(-10, 500))
}

func TestBucketLabel(t *testing.T) {
	assert.Equal(t, "under 500 m", BucketLabel(0, 500))
	assert.Equal(t, "0.5–1.0 km", BucketLabel(1, 500))
	assert.Equal(t, "1.0–1.5 km", BucketLabel(2, 500))
	assert.Equal(t, "under 1.0 km", BucketLabel(0, 1000))
}
