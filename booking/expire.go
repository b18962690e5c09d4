package booking

import "time"

// WillExpireAt computes when an unaccepted booking stops being offered to
// translators, as a pure function of its due and creation timestamps.
//
// The window shrinks with lead time: short-notice bookings stay open until
// due, same-day bookings get 90 minutes, bookings within three days get 16
// hours, and anything further out closes 48 hours before due.
func WillExpireAt(due, created time.Time) time.Time {
	diff := due.Sub(created)

	switch {
	case diff <= 90*time.Minute:
		return due
	case diff <= 24*time.Hour:
		return created.Add(90 * time.Minute)
	case diff <= 72*time.Hour:
		return created.Add(16 * time.Hour)
	default:
		return due.Add(-48 * time.Hour)
	}
}
