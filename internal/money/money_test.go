package money

import "testing"

// TestRound2 checks half-up rounding on amounts that trip binary floats.
func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{1.005, 1.01},
		{2.675, 2.68},
		{-1.005, -1.01},
		{10.994999, 10.99},
		{0.1 + 0.2, 0.3},
	}
	for _, tc := range cases {
		if got := Round2(tc.in); got != tc.want {
			t.Errorf("Round2(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// TestRound2Ptr verifies nil passes through untouched.
func TestRound2Ptr(t *testing.T) {
	if Round2Ptr(nil) != nil {
		t.Error("nil input should stay nil")
	}
	v := 3.14159
	if got := Round2Ptr(&v); got == nil || *got != 3.14 {
		t.Errorf("Round2Ptr(3.14159) = %v, want 3.14", got)
	}
}

// TestPct verifies the zero-total guard.
func TestPct(t *testing.T) {
	if got := Pct(25, 200); got != 12.5 {
		t.Errorf("Pct(25, 200) = %v, want 12.5", got)
	}
	if got := Pct(50, 0); got != 0 {
		t.Errorf("Pct with zero total = %v, want 0", got)
	}
}
