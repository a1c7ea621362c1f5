package naming

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"geocapture-desktop/internal/geo"
)

// CaptureFilename creates a standardized capture filename with view metadata
// Format: {prefix}_{yyyymmdd-hhmmss}_{quadkey}_z{zoom}_{lat}_{lng}.{ext}
func CaptureFilename(prefix string, center geo.Point, zoom float64, at time.Time, ext string) string {
	z := int(math.Round(zoom))
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("%s_%s_%s_z%d_%s_%s.%s",
		prefix,
		at.UTC().Format("20060102-150405"),
		Quadkey(center, z),
		z,
		SanitizeCoordinate(center.Lat, true),
		SanitizeCoordinate(center.Lng, false),
		ext)
}

// FallbackFilename is used when the camera position is unknown
// Format: {prefix}_{yyyymmdd-hhmmss}.{ext}
func FallbackFilename(prefix string, at time.Time, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("%s_%s.%s", prefix, at.UTC().Format("20060102-150405"), ext)
}

// UploadFilename returns a collision-free name for the upload endpoint
func UploadFilename(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("capture-%s.%s", uuid.NewString(), ext)
}
