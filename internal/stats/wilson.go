// Package stats provides the statistical primitives behind promotion gating:
// Wilson score intervals for binomial proportions and bootstrap confidence
// intervals for mean PnL.
package stats

import "math"

// Z95 is the two-sided 95% normal quantile used by default for the
// Wilson interval.
const Z95 = 1.96

// WilsonInterval is a confidence interval for a binomial proportion.
type WilsonInterval struct {
	Lower float64
	Upper float64
}

// Wilson computes the Wilson score interval for successes out of trials at
// quantile z. More accurate than the normal approximation at small samples.
// Returns a zero interval when trials == 0.
func Wilson(successes, trials float64, z float64) WilsonInterval {
	if trials <= 0 {
		return WilsonInterval{}
	}

	phat := successes / trials
	n := trials
	z2 := z * z

	center := (phat + z2/(2*n)) / (1 + z2/n)
	margin := (z / (1 + z2/n)) * math.Sqrt(phat*(1-phat)/n+z2/(4*n*n))

	return WilsonInterval{
		Lower: center - margin,
		Upper: center + margin,
	}
}

// WilsonLowerBound is the lower bound of the 95% Wilson interval.
func WilsonLowerBound(successes, trials float64) float64 {
	return Wilson(successes, trials, Z95).Lower
}
