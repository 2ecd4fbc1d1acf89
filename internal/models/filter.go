package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDate accepts YYYY-MM-DD or RFC 3339. An empty string yields nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return &t, nil
}

// EndOfDay moves a date-only bound to the last instant of that day so
// that "to 2024-01-31" includes the whole day
func EndOfDay(t *time.Time) *time.Time {
	if t == nil || !t.Equal(t.Truncate(24*time.Hour)) {
		return t
	}
	end := t.Add(24*time.Hour - time.Nanosecond)
	return &end
}

// ParseLocation reads "lat,lon" with a radius in kilometers. An empty
// string yields nil.
func ParseLocation(near string, radiusKm float64) (*Location, error) {
	near = strings.TrimSpace(near)
	if near == "" {
		return nil, nil
	}
	lat, lon, ok := strings.Cut(near, ",")
	if !ok {
		return nil, fmt.Errorf("invalid location %q, want lat,lon", near)
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil || la < -90 || la > 90 {
		return nil, fmt.Errorf("invalid latitude %q", lat)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil || lo < -180 || lo > 180 {
		return nil, fmt.Errorf("invalid longitude %q", lon)
	}
	if radiusKm <= 0 {
		return nil, fmt.Errorf("radius must be positive, got %g", radiusKm)
	}
	return &Location{Latitude: la, Longitude: lo, RadiusKm: radiusKm}, nil
}
