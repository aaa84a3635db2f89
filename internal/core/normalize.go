package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"timebridge.service/internal/core/model"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// dedupNamespace scopes the name-based UUIDs used as dedup keys.
var dedupNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("timebridge.timesheet-event"))

// DedupKey derives the stable key of a directional event. The same
// employee, timestamp and direction always yield the same key.
func DedupKey(externalID, date, clock string, dir model.Direction) string {
	name := strings.Join([]string{strings.TrimSpace(externalID), date + " " + clock, string(dir)}, "|")
	return uuid.NewSHA1(dedupNamespace, []byte(name)).String()
}

var dateLayouts = []string{dateLayout, "2006/01/02", "2006-01-02 15:04:05", time.RFC3339}

// normalizeDate returns the calendar date of raw as yyyy-MM-dd.
func normalizeDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(dateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: unrecognised date %q", ErrData, raw)
}

var clockLayouts = []string{"15:04:05", "15:04", "2006-01-02 15:04:05", "2006-01-02 15:04", time.RFC3339}

// normalizeClock returns the time of day of raw as HH:MM:SS. Full
// timestamps are accepted; their date part is dropped.
func normalizeClock(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(timeLayout), nil
		}
	}
	return "", fmt.Errorf("%w: unrecognised time %q", ErrData, raw)
}

// resolveWindow turns an optional date range into report bounds. No range
// means the last seven days up to now; explicit dates cover whole days.
func resolveWindow(w model.PullWindow, now time.Time) (time.Time, time.Time, error) {
	if w.From == nil && w.To == nil {
		return now.AddDate(0, 0, -7), now, nil
	}

	var from, to time.Time
	switch {
	case w.From != nil && w.To != nil:
		from, to = *w.From, *w.To
	case w.From != nil:
		from, to = *w.From, now
	default:
		to = *w.To
		from = to.AddDate(0, 0, -7)
	}

	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	to = time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, to.Location())
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: window ends before it starts", ErrInvalidInput)
	}
	return from, to, nil
}
