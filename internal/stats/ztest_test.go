package stats

import (
	"math"
	"testing"
)

func TestNormalCDF_KnownValues(t *testing.T) {
	cases := []struct {
		x    float64
		want float64
	}{
		{0, 0.5},
		{1.96, 0.975},
		{-1.96, 0.025},
		{1, 0.8413},
		{-1, 0.1587},
	}

	for _, c := range cases {
		got := NormalCDF(c.x)
		if math.Abs(got-c.want) > 0.001 {
			t.Errorf("NormalCDF(%v) = %v, want ~%v", c.x, got, c.want)
		}
	}
}

func TestNormalCDF_Monotonic(t *testing.T) {
	prev := NormalCDF(-5)
	for x := -4.5; x <= 5; x += 0.5 {
		cur := NormalCDF(x)
		if cur <= prev {
			t.Fatalf("NormalCDF not increasing at x=%v: %v <= %v", x, cur, prev)
		}
		prev = cur
	}
}

func TestZScore_ClearDifference(t *testing.T) {
	// 13% vs 10% over 1000 participants each should clear the 95%
	// significance bar on a two-tailed test.
	z := ZScore(0.13, 0.10, 1000, 1000)
	if z <= 0 {
		t.Fatalf("expected positive z, got %v", z)
	}

	p := PValue(z)
	if p >= 0.05 {
		t.Errorf("expected p < 0.05, got %v", p)
	}
}

func TestZScore_EqualRates(t *testing.T) {
	z := ZScore(0.10, 0.10, 500, 500)
	if z != 0 {
		t.Errorf("expected z=0 for equal rates, got %v", z)
	}
	// The erf approximation carries up to ~1.5e-7 absolute error, so
	// p lands near 1 rather than exactly on it.
	if p := PValue(z); math.Abs(p-1) > 1e-6 {
		t.Errorf("expected p~=1 for z=0, got %v", p)
	}
}

func TestZScore_Symmetry(t *testing.T) {
	z1 := ZScore(0.12, 0.08, 400, 400)
	z2 := ZScore(0.08, 0.12, 400, 400)
	if math.Abs(z1+z2) > 1e-9 {
		t.Errorf("expected symmetric z-scores, got %v and %v", z1, z2)
	}
	if math.Abs(PValue(z1)-PValue(z2)) > 1e-9 {
		t.Errorf("two-tailed p should match for mirrored z")
	}
}

func TestPValue_LargeZ(t *testing.T) {
	p := PValue(6)
	if p < 0 || p > 1e-6 {
		t.Errorf("expected vanishing p for z=6, got %v", p)
	}
}
