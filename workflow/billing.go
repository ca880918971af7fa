package workflow

import "time"

// NextBillingDate computes the due date of a card purchase made on ref for a
// card whose statement cycle closes on billingDay (1-31).
// A purchase strictly before the cutoff day bills in the current cycle; one
// made on or after the cutoff rolls to the next month. The billing day is
// clamped to the length of the target month (billing day 31 in April -> 30).
func NextBillingDate(ref time.Time, billingDay int) time.Time {
	if billingDay < 1 {
		billingDay = 1
	}
	if billingDay > 31 {
		billingDay = 31
	}

	year, month, day := ref.Date()
	if day >= billingDay {
		month++
	}

	dueDay := billingDay
	if last := daysInMonth(year, month); dueDay > last {
		dueDay = last
	}
	return time.Date(year, month, dueDay, 0, 0, 0, 0, ref.Location())
}

// daysInMonth handles overflowed months (time.Date normalizes month 13+).
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
