package workflow

import (
	"testing"
)

func TestPriceChange_Tolerance(t *testing.T) {
	cases := []struct {
		name     string
		oldPrice string
		newPrice string
		alert    bool
		pct      string // empty means no percent expected
	}{
		{"within tolerance no alert", "10.00", "10.005", false, ""},
		{"exactly at tolerance no alert", "10.00", "10.01", false, ""},
		{"just beyond tolerance alerts", "10.00", "10.02", true, "0.2"},
		{"decrease beyond tolerance alerts", "10.00", "9.90", true, "-1"},
		{"unchanged no alert", "10.00", "10.00", false, ""},
		{"big increase", "100", "150", true, "50"},
		{"old price zero alerts without percent", "0", "5.00", true, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alert, pct := priceChange(dec(tc.oldPrice), dec(tc.newPrice))
			if alert != tc.alert {
				t.Fatalf("alert = %v, want %v", alert, tc.alert)
			}
			if tc.pct == "" {
				if pct != nil {
					t.Errorf("unexpected percent %s", pct)
				}
				return
			}
			if pct == nil {
				t.Fatalf("expected percent %s, got nil", tc.pct)
			}
			if !pct.Equal(dec(tc.pct)) {
				t.Errorf("change pct = %s, want %s", pct, tc.pct)
			}
		})
	}
}

func TestNormalizeItemName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  olive oil 5L ", "olive oil 5L"},
		{"flour", "flour"},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := normalizeItemName(tc.in); got != tc.want {
			t.Errorf("normalizeItemName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
