package audience

import "time"

// IsNightTime reports whether t falls in the quiet window [startHour, endHour).
// The window wraps midnight: with 21 and 7 everything from 21:00 through
// 06:59 counts as night.
func IsNightTime(t time.Time, startHour, endHour int) bool {
	h := t.Hour()
	if startHour > endHour {
		return h >= startHour || h < endHour
	}
	return h >= startHour && h < endHour
}

// NextBusinessTime returns the next moment at businessHour o'clock after t.
// A delayed nighttime push fires then.
func NextBusinessTime(t time.Time, businessHour int) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), businessHour, 0, 0, 0, t.Location())
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
