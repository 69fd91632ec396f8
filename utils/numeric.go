package utils

import (
	"math"
	"strconv"
	"strings"
)

// ParseNumeric converts a numeric value stored as text into a float64. It
// accepts surrounding whitespace, thousands separators written as commas and
// a leading currency marker ("Rp", "$"). ok is false when raw is nil, blank,
// not finite (NaN, Inf) or still not a number after cleanup; value is then 0.
func ParseNumeric(raw *string) (value float64, ok bool) {
	if raw == nil {
		return 0, false
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return 0, false
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return finite(v)
	}

	s = strings.TrimPrefix(s, "Rp")
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return finite(v)
}

func finite(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// TrimmedOrEmpty dereferences s and trims it.
func TrimmedOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
