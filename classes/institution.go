package cls

import "time"

// sentinel used for any display field the MMS listing did not provide
const NotAvailable = "N/A"

// layout of Institution.ExpiryDate
const DateLayout = "2006-01-02"

// An institution whose subscription is approaching expiry. Created fresh
// each run by the mms client, consumed by the notifier.
type Institution struct {
	Name string
	UID  string

	// normalised to DateLayout when the source timestamp parsed, otherwise
	// left as the raw source value so the filter can reject it
	ExpiryDate      string
	DaysUntilExpiry int

	PlanName      string
	ContactPerson string
	ContactNumber string
	Address       string
}

// returns true if field holds something worth displaying
func HasValue(field string) bool {
	return field != "" && field != NotAvailable
}

// whole days between today and the institutions expiry date. Both are
// compared as calendar dates, so the time of day of today is ignored.
func DaysBetween(today time.Time, expiry time.Time) int {
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(t).Hours() / 24)
}
