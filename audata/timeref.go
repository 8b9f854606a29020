package audata

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOriginLayout is how the time reference is written to file metadata.
const TimeOriginLayout = "2006-01-02 15:04:05.000000 -0700"

var originLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700",
	"2006-01-02 15:04:05.999999999 -07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 MST",
	time.RFC3339Nano,
}

var naiveLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// FormatTimeOrigin renders t for the time_origin metadata key.
func FormatTimeOrigin(t time.Time) string {
	return t.Format(TimeOriginLayout)
}

// ParseTimeOrigin reads a stored time origin. Besides the written layout it
// accepts zone names, RFC 3339 and bare Unix seconds. Times without a zone
// are taken as local time.
func ParseTimeOrigin(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range originLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return addSeconds(epoch(), secs), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time origin %q", s)
}
