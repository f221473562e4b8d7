package stats

import "testing"

func TestWilsonInterval_ZeroTrials(t *testing.T) {
	lower, upper := WilsonInterval(0, 0, 0.95)
	if lower != 0 || upper != 0 {
		t.Errorf("expected [0,0] for zero trials, got [%v,%v]", lower, upper)
	}
}

func TestWilsonInterval_ContainsPointEstimate(t *testing.T) {
	lower, upper := WilsonInterval(40, 200, 0.95)
	rate := 0.2
	if lower >= rate || upper <= rate {
		t.Errorf("interval [%v,%v] should contain %v", lower, upper, rate)
	}
	if lower < 0 || upper > 1 {
		t.Errorf("interval [%v,%v] outside [0,1]", lower, upper)
	}
}

func TestWilsonInterval_NarrowsWithSample(t *testing.T) {
	l1, u1 := WilsonInterval(10, 100, 0.95)
	l2, u2 := WilsonInterval(100, 1000, 0.95)
	if (u2 - l2) >= (u1 - l1) {
		t.Errorf("larger sample should narrow the interval: %v >= %v", u2-l2, u1-l1)
	}
}

func TestCriticalZ_CommonLevels(t *testing.T) {
	cases := []struct {
		confidence float64
		want       float64
	}{
		{0.99, 2.576},
		{0.95, 1.96},
		{0.90, 1.645},
	}
	for _, c := range cases {
		if got := CriticalZ(c.confidence); got != c.want {
			t.Errorf("CriticalZ(%v) = %v, want %v", c.confidence, got, c.want)
		}
	}
}
