package evaluation

import (
	"time"
)

// IsSnoozed reports whether now falls inside the snooze window. The lower
// bound is inclusive, the upper exclusive, and all comparison happens in UTC.
// A window with either end missing never snoozes.
func IsSnoozed(from, until *time.Time, now time.Time) bool {
	if from == nil || until == nil {
		return false
	}
	nowUTC := now.UTC()
	return !nowUTC.Before(from.UTC()) && nowUTC.Before(until.UTC())
}
