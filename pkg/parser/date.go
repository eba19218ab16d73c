package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// DefaultLocation is the timezone of the bank.
const DefaultLocation = "Europe/Paris"

// Exports are day first. Built-in date formats decode as RFC3339, so a two
// digit year only comes from a custom dd/mm/yy format; month first is a last
// resort for strings no day-first layout accepts.
var dateLayouts = []string{
	"2/1/2006",
	"2/1/06",
	"1/2/06",
	"2006-01-02",
	"2-1-2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseDate parses a statement date to midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if loc == nil {
		loc = time.UTC
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return midnight(t.In(loc), loc), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return midnight(t, loc), nil
		}
	}
	// date cells left as serial day numbers
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 1 && serial < 2958466 {
		t := excelEpoch.AddDate(0, 0, int(serial))
		return midnight(t, loc), nil
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %q", s)
}

func midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func loadLocation(name string) *time.Location {
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.UTC
}
