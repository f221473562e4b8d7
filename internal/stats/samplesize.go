package stats

import "math"

// Fixed critical values for the conventional 95% confidence / 80% power
// case. RequiredSampleSize does not recompute these from its arguments;
// the configured confidence level and power only affect significance
// testing, not sizing. Kept deliberately, see DESIGN.md.
const (
	zAlpha = 1.96
	zBeta  = 0.84
)

// RequiredSampleSize estimates the per-variation sample size needed to
// detect a relative improvement of mde over the baseline conversion
// rate. confidenceLevel and power are accepted for interface symmetry
// but the calculation uses the fixed 95%/80% critical values above.
func RequiredSampleSize(baseline, mde, confidenceLevel, power float64) int {
	p1 := baseline
	p2 := baseline * (1 + mde)
	pooled := (p1 + p2) / 2

	numerator := math.Pow(zAlpha+zBeta, 2) * 2 * pooled * (1 - pooled)
	denominator := math.Pow(p2-p1, 2)
	if denominator == 0 {
		return 0
	}

	return int(math.Ceil(numerator / denominator))
}
