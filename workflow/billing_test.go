package workflow

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextBillingDate(t *testing.T) {
	cases := []struct {
		name       string
		ref        time.Time
		billingDay int
		want       time.Time
	}{
		{"before cutoff bills same month", date(2024, time.March, 10), 15, date(2024, time.March, 15)},
		{"after cutoff rolls to next month", date(2024, time.March, 20), 15, date(2024, time.April, 15)},
		{"on cutoff rolls to next month", date(2024, time.March, 15), 15, date(2024, time.April, 15)},
		{"billing day clamped to short month", date(2024, time.April, 10), 31, date(2024, time.April, 30)},
		{"clamped february leap year", date(2024, time.February, 10), 31, date(2024, time.February, 29)},
		{"clamped february non leap year", date(2023, time.February, 10), 31, date(2023, time.February, 28)},
		{"december rolls to january", date(2024, time.December, 20), 15, date(2025, time.January, 15)},
		{"december before cutoff stays in december", date(2024, time.December, 10), 15, date(2024, time.December, 15)},
		{"january rollover with day 31", date(2024, time.December, 31), 31, date(2025, time.January, 31)},
		{"first of month with billing day 1", date(2024, time.June, 1), 1, date(2024, time.July, 1)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextBillingDate(tc.ref, tc.billingDay)
			if !got.Equal(tc.want) {
				t.Errorf("NextBillingDate(%s, %d) = %s, want %s",
					tc.ref.Format("2006-01-02"), tc.billingDay,
					got.Format("2006-01-02"), tc.want.Format("2006-01-02"))
			}
		})
	}
}

func TestNextBillingDate_OutOfRangeBillingDay(t *testing.T) {
	// out-of-range inputs are clamped into 1..31
	if got := NextBillingDate(date(2024, time.March, 10), 0); !got.Equal(date(2024, time.April, 1)) {
		t.Errorf("billing day 0: got %s", got.Format("2006-01-02"))
	}
	if got := NextBillingDate(date(2024, time.March, 10), 40); !got.Equal(date(2024, time.March, 31)) {
		t.Errorf("billing day 40: got %s", got.Format("2006-01-02"))
	}
}
