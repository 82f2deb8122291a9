package biz

import "math"

// Fixed composite weights. They sum to 1.0, so a total score can never
// leave the [0,5] range of its inputs.
const (
	weightTrust      = 0.40
	weightEngagement = 0.35
	weightExperience = 0.25
)

// ComputeTotalScore computes the weighted composite of the three sub-scores,
// rounded to 2 decimal places. Inputs are expected to be in [0,5]; range
// checks belong to the caller.
func ComputeTotalScore(trust, engagement, experience float64) float64 {
	return round2(weightTrust*trust + weightEngagement*engagement + weightExperience*experience)
}

// round2 rounds half away from zero to 2 decimal places. The same rounding
// is used for stored totals and for aggregate means/medians so the two
// never drift apart.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
