package openleg

import (
	"fmt"
	"strings"
	"time"
)

// Layouts used by the remote API for time-window and date-only queries.
const (
	DateTimeLayout = "2006-01-02T15:04:05.000000"
	DateLayout     = "2006-01-02"
)

var parseLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.RFC3339Nano,
	DateLayout,
}

// FormatDateTime renders t in the API's timestamp profile.
func FormatDateTime(t time.Time) string {
	return t.Format(DateTimeLayout)
}

// FormatDate renders t in the API's date-only profile.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDateTime accepts the timestamp precisions the API emits. Timestamps
// carry no zone and are interpreted in loc (UTC when nil).
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
