package sdhost

import "testing"

func TestClockDividerKnownRates(t *testing.T) {
	cases := []struct {
		name       string
		baseClock  uint32
		targetRate uint32
	}{
		{"identify from 100MHz base", 100_000_000, clockIdentify},
		{"normal from 100MHz base", 100_000_000, clockNormal},
		{"identify from 41.67MHz base", 41_666_666, clockIdentify},
		{"target exceeds base", 1_000_000, 50_000_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := clockDivider(tc.baseClock, tc.targetRate)
			if got&^0xffc0 != 0 {
				t.Fatalf("clockDivider(%d, %d) = %#x, sets bits outside the 10-bit divider field (bits 15:6)", tc.baseClock, tc.targetRate, got)
			}
			freqSelect := got >> 8
			upperBits := (got >> 6) & 0x3
			if freqSelect > 0xff || upperBits > 0x3 {
				t.Fatalf("clockDivider(%d, %d) packed invalid field: freqSelect=%#x upperBits=%#x", tc.baseClock, tc.targetRate, freqSelect, upperBits)
			}
		})
	}
}

func TestClockDividerIsMonotonicWithHigherTargetRate(t *testing.T) {
	slow := clockDivider(100_000_000, 1_000_000)
	fast := clockDivider(100_000_000, 25_000_000)
	if fast > slow {
		t.Fatalf("expected a faster target rate to need an equal or smaller divisor field, got slow=%#x fast=%#x", slow, fast)
	}
}
