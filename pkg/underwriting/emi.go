package underwriting

import "math"

// EMI computes the equated monthly installment for a principal repaid
// over tenureMonths at the given annual interest rate (percent), using
// the standard amortization formula
//
//	EMI = P * r * (1+r)^n / ((1+r)^n - 1)
//
// with r the monthly rate. A zero rate degenerates to straight division.
// The result is rounded to two decimals.
func EMI(principal float64, annualROI float64, tenureMonths int) float64 {
	if principal <= 0 || tenureMonths <= 0 {
		return 0
	}
	if annualROI == 0 {
		return round2(principal / float64(tenureMonths))
	}
	r := annualROI / 12 / 100
	factor := math.Pow(1+r, float64(tenureMonths))
	return round2(principal * r * factor / (factor - 1))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
