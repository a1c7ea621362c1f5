package naming

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"geocapture-desktop/internal/geo"
)

func TestSanitizeCoordinate(t *testing.T) {
	assert.Equal(t, "40p7128N", SanitizeCoordinate(40.7128, true))
	assert.Equal(t, "74p0060W", SanitizeCoordinate(-74.006, false))
	assert.Equal(t, "33p8688S", SanitizeCoordinate(-33.8688, true))
	assert.Equal(t, "151p2093E", SanitizeCoordinate(151.2093, false))
}

func TestQuadkey(t *testing.T) {
	// North-west quadrant at zoom 1
	assert.Equal(t, "0", Quadkey(geo.Point{Lat: 45, Lng: -90}, 1))
	assert.Equal(t, "3", Quadkey(geo.Point{Lat: -45, Lng: 90}, 1))
	assert.Len(t, Quadkey(geo.Point{Lat: 40.7, Lng: -74}, 17), 17)
	assert.Equal(t, "", Quadkey(geo.Point{}, 0))
	// Clamped at the Mercator limit instead of overflowing
	assert.Len(t, Quadkey(geo.Point{Lat: 90, Lng: 180}, 3), 3)
}

func TestCaptureFilename(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	name := CaptureFilename("geocapture", geo.Point{Lat: 40.7128, Lng: -74.006}, 16.6, at, ".jpeg")

	assert.True(t, strings.HasPrefix(name, "geocapture_20260304-050607_"))
	assert.True(t, strings.HasSuffix(name, "_z17_40p7128N_74p0060W.jpeg"))

	assert.Equal(t, "geocapture_20260304-050607.png", FallbackFilename("geocapture", at, ""))
}

func TestUploadFilename(t *testing.T) {
	a, b := UploadFilename("png"), UploadFilename("png")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "capture-"))
	assert.True(t, strings.HasSuffix(a, ".png"))
}
