package naming

import (
	"fmt"
	"math"
	"strings"

	"geocapture-desktop/internal/geo"
)

// Quadkey returns the Bing-style quadkey of the tile containing p at zoom
func Quadkey(p geo.Point, zoom int) string {
	if zoom <= 0 {
		return ""
	}
	lat := math.Max(-85.05112878, math.Min(85.05112878, p.Lat))

	// Web Mercator tile coordinates
	n := math.Pow(2, float64(zoom))
	x := int((p.Lng + 180.0) / 360.0 * n)
	y := int((1.0 - math.Log(math.Tan(lat*math.Pi/180.0)+1.0/math.Cos(lat*math.Pi/180.0))/math.Pi) / 2.0 * n)
	maxIdx := int(n) - 1
	x = min(max(x, 0), maxIdx)
	y = min(max(y, 0), maxIdx)

	var quadkey strings.Builder
	for i := zoom; i > 0; i-- {
		digit := 0
		mask := 1 << (i - 1)
		if (x & mask) != 0 {
			digit++
		}
		if (y & mask) != 0 {
			digit += 2
		}
		quadkey.WriteByte(byte('0' + digit))
	}
	return quadkey.String()
}

// SanitizeCoordinate formats a coordinate for use in filenames (removes minus sign, uses N/S/E/W)
// Replaces decimal point with 'p' for Windows compatibility
func SanitizeCoordinate(coord float64, isLat bool) string {
	var dir string
	switch {
	case isLat && coord < 0:
		dir = "S"
	case isLat:
		dir = "N"
	case coord < 0:
		dir = "W"
	default:
		dir = "E"
	}
	coordStr := fmt.Sprintf("%.4f", math.Abs(coord))
	coordStr = strings.Replace(coordStr, ".", "p", 1)
	return coordStr + dir
}
