// Package market decides which cache lifetime applies based on the
// Indian bullion market schedule.
package market

import "time"

// The market quotes in IST, which has no daylight saving.
var ist = time.FixedZone("IST", 5*3600+30*60)

const (
	openHour   = 9
	openMinute = 30
	closeHour  = 17
)

// IsMarketHours reports whether now falls inside trading hours:
// Monday through Friday, 09:30 to 17:00 IST. The close boundary is
// exclusive, the open boundary inclusive.
func IsMarketHours(now time.Time) bool {
	local := now.In(ist)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	hour, minute := local.Hour(), local.Minute()

	if hour < openHour || (hour == openHour && minute < openMinute) {
		return false
	}
	if hour >= closeHour {
		return false
	}

	return true
}
