package model

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a suffix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// QuantizeCoordinates returns the cache key for a coordinate pair rounded to
// the given number of decimal places. Coordinates that round to the same
// key share one address entry.
func QuantizeCoordinates(lat, lon float64, precision int) string {
	if precision < 0 {
		precision = 0
	}
	return fmt.Sprintf("%.*f,%.*f", precision, roundTo(lat, precision), precision, roundTo(lon, precision))
}

// FallbackAddress is the placeholder shown when no resolved address exists.
func FallbackAddress(lat, lon float64) string {
	return fmt.Sprintf("Area near %.3f, %.3f", lat, lon)
}

func roundTo(v float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	r := math.Round(v*p) / p
	if r == 0 {
		// avoid "-0.0000" keys
		return 0
	}
	return r
}
