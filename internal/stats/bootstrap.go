package stats

import (
	"math/rand"
	"sort"
)

// DefaultResamples is the minimum resample count for a bootstrap interval.
const DefaultResamples = 1000

// BootstrapInterval is a percentile bootstrap confidence interval for the
// mean of a sample.
type BootstrapInterval struct {
	Low  float64
	High float64
}

// ExcludesZero reports whether the whole interval lies strictly on one side
// of zero. Sign is irrelevant; only non-ambiguity matters.
func (b BootstrapInterval) ExcludesZero() bool {
	return b.Low > 0 || b.High < 0
}

// BootstrapMeanCI estimates a confidence interval for the mean of samples by
// resampling with replacement. alpha is the total tail mass (0.05 gives a
// 95% interval). The rng is injected so evaluations are reproducible.
// Returns a zero interval when samples is empty.
func BootstrapMeanCI(samples []float64, resamples int, alpha float64, rng *rand.Rand) BootstrapInterval {
	if len(samples) == 0 {
		return BootstrapInterval{}
	}
	if resamples < DefaultResamples {
		resamples = DefaultResamples
	}

	n := len(samples)
	means := make([]float64, resamples)
	for i := 0; i < resamples; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += samples[rng.Intn(n)]
		}
		means[i] = sum / float64(n)
	}
	sort.Float64s(means)

	return BootstrapInterval{
		Low:  percentile(means, alpha/2),
		High: percentile(means, 1-alpha/2),
	}
}

// Mean is the arithmetic mean of samples, 0 for an empty slice.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// percentile uses linear interpolation. sorted must be pre-sorted ASC.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
