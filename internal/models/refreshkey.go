package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RefreshKind selects which refresh-key set a block belongs to.
type RefreshKind string

const (
	RefreshAvailability RefreshKind = "availability"
	RefreshPackages     RefreshKind = "package"
)

// RefreshSetKey is the redis sorted-set key holding refresh keys for a kind.
func RefreshSetKey(kind RefreshKind) string {
	return fmt.Sprintf("refreshKeys:%s", kind)
}

// RefreshKey marks one destination's calendar month as due for re-sync.
// Timestamp is the queue position: oldest first.
type RefreshKey struct {
	Timestamp     int64
	DestinationID int64
	Year          int
	Month         time.Month
}

// Value encodes the key as "{destinationID}-{year}-{month}".
func (k RefreshKey) Value() string {
	return EncodeRefreshValue(k.DestinationID, k.Year, k.Month)
}

// BlockStart returns midnight UTC of the first day of the key's month.
func (k RefreshKey) BlockStart() time.Time {
	return time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Expired reports whether the key's month lies strictly before the month
// containing now.
func (k RefreshKey) Expired(now time.Time) bool {
	if k.Year != now.Year() {
		return k.Year < now.Year()
	}
	return k.Month < now.Month()
}

func EncodeRefreshValue(destinationID int64, year int, month time.Month) string {
	return fmt.Sprintf("%d-%d-%d", destinationID, year, int(month))
}

// DecodeRefreshValue parses a "{destinationID}-{year}-{month}" value.
func DecodeRefreshValue(value string) (destinationID int64, year int, month time.Month, err error) {
	parts := strings.Split(value, "-")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("malformed refresh value %q", value)
	}
	destinationID, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("malformed destination id in %q: %w", value, err)
	}
	year, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("malformed year in %q: %w", value, err)
	}
	m, err := strconv.Atoi(parts[2])
	if err != nil || m < 1 || m > 12 {
		return 0, 0, 0, fmt.Errorf("malformed month in %q", value)
	}
	return destinationID, year, time.Month(m), nil
}

// MonthsAhead returns the (year, month) pairs for the horizon starting at
// now's month, wrapping past December.
func MonthsAhead(now time.Time, horizon int) []RefreshKey {
	keys := make([]RefreshKey, 0, horizon)
	year, month := now.Year(), now.Month()
	for i := 0; i < horizon; i++ {
		keys = append(keys, RefreshKey{Year: year, Month: month})
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
	return keys
}
