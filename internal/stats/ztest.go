package stats

import "math"

// ZScore computes the two-proportion z-statistic for conversion rates
// p1 and p2 observed over n1 and n2 participants. The standard error
// uses the pooled proportion under the null hypothesis p1 == p2.
//
// The result is undefined when either sample is empty; callers must
// guard n1 > 0 and n2 > 0.
func ZScore(p1, p2 float64, n1, n2 int) float64 {
	fn1 := float64(n1)
	fn2 := float64(n2)

	pooled := (p1*fn1 + p2*fn2) / (fn1 + fn2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/fn1 + 1/fn2))
	if se == 0 {
		return 0
	}

	return (p1 - p2) / se
}

// PValue returns the two-tailed p-value for a z-statistic.
func PValue(z float64) float64 {
	return 2 * (1 - NormalCDF(math.Abs(z)))
}

// NormalCDF approximates the cumulative distribution function of the
// standard normal distribution: 0.5 * (1 + erf(x / sqrt(2))).
func NormalCDF(x float64) float64 {
	return 0.5 * (1 + erf(x/math.Sqrt2))
}

// erf approximates the error function using Abramowitz and Stegun,
// Handbook of Mathematical Functions, formula 7.1.26. Maximum absolute
// error is about 1.5e-7.
func erf(x float64) float64 {
	a1 := 0.254829592
	a2 := -0.284496736
	a3 := 1.421413741
	a4 := -1.453152027
	a5 := 1.061405429
	p := 0.3275911

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x)

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return sign * y
}
