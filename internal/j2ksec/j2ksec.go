// Package j2ksec converts between wall-clock time and seconds since the
// J2000 epoch (2000-01-01 12:00:00 UTC), the time unit of every matrix row.
package j2ksec

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidTime = errors.New("invalid time")

// Epoch is j2ksec zero.
var Epoch = time.Date(2000, time.January, 1, 12, 0, 0, 0, time.UTC)

const timestampLayout = "20060102150405"

// now is swapped in tests.
var now = time.Now

func FromTime(t time.Time) float64 {
	return t.Sub(Epoch).Seconds()
}

func ToTime(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return Epoch.Add(time.Duration(whole) * time.Second).Add(time.Duration(math.Round(frac * 1e9)))
}

func Now() float64 {
	return FromTime(now())
}

// Parse accepts:
//
//	123456.5            decimal j2ksec
//	now                 current time
//	-6h, -90m           relative to now
//	20240102030405      UTC timestamp, optionally with .SSS
func Parse(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return 0, fmt.Errorf("%w: empty", ErrInvalidTime)
	case strings.EqualFold(s, "now"):
		return Now(), nil
	case strings.HasPrefix(s, "-") && strings.ContainsAny(s, "hms"):
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
		return FromTime(now().Add(d)), nil
	case len(s) >= len(timestampLayout) && isDigits(s[:len(timestampLayout)]) && (len(s) == len(timestampLayout) || s[len(timestampLayout)] == '.'):
		return parseTimestamp(s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return v, nil
}

func parseTimestamp(s string) (float64, error) {
	layout := timestampLayout
	if len(s) > len(timestampLayout) {
		frac := s[len(timestampLayout)+1:]
		if frac == "" || !isDigits(frac) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
		layout += "." + strings.Repeat("0", len(frac))
	}
	t, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return FromTime(t), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
