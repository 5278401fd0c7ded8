// Package statistics provides the pure statistical primitives the SPC
// engine builds on: zone classification, sigma estimators, and the
// tabulated unbiasing constants they depend on. Every function
// here is a pure function of its arguments — no I/O, no shared state — so
// the rest of the engine can treat it as a library, not a service.
package statistics

import "math"

// Zone is the control-chart region a point falls into, expressed as eight
// contiguous half-open intervals that partition the real line.
type Zone string

const (
	BeyondUCL  Zone = "BEYOND_UCL"
	ZoneAUpper Zone = "ZONE_A_UPPER"
	ZoneBUpper Zone = "ZONE_B_UPPER"
	ZoneCUpper Zone = "ZONE_C_UPPER"
	ZoneCLower Zone = "ZONE_C_LOWER"
	ZoneBLower Zone = "ZONE_B_LOWER"
	ZoneALower Zone = "ZONE_A_LOWER"
	BeyondLCL  Zone = "BEYOND_LCL"
)

// ZoneBoundaries is the classification frame for one characteristic: a
// center line and the ±1σ/±2σ/±3σ thresholds derived from it, plus the
// sigma of the subgroup mean used to derive them.
type ZoneBoundaries struct {
	CenterLine float64
	Sigma      float64 // sigma of the subgroup mean (process sigma / sqrt(n))

	Plus1Sigma  float64
	Plus2Sigma  float64
	Plus3Sigma  float64
	Minus1Sigma float64
	Minus2Sigma float64
	Minus3Sigma float64
}

// NewZoneBoundaries builds the ±1/±2/±3 sigma thresholds from a center
// line and a sigma of the mean.
func NewZoneBoundaries(centerLine, sigma float64) ZoneBoundaries {
	return ZoneBoundaries{
		CenterLine:  centerLine,
		Sigma:       sigma,
		Plus1Sigma:  centerLine + sigma,
		Plus2Sigma:  centerLine + 2*sigma,
		Plus3Sigma:  centerLine + 3*sigma,
		Minus1Sigma: centerLine - sigma,
		Minus2Sigma: centerLine - 2*sigma,
		Minus3Sigma: centerLine - 3*sigma,
	}
}

// Classify reports the zone, above/below-center flag, and sigma distance
// for a value against the given boundaries. The center line itself counts
// as "above".
func Classify(value float64, b ZoneBoundaries) (zone Zone, isAboveCenter bool, sigmaDistance float64) {
	isAboveCenter = value >= b.CenterLine
	if b.Sigma != 0 {
		sigmaDistance = math.Abs(value-b.CenterLine) / b.Sigma
	}

	switch {
	case value >= b.Plus3Sigma:
		return BeyondUCL, isAboveCenter, sigmaDistance
	case value >= b.Plus2Sigma:
		return ZoneAUpper, isAboveCenter, sigmaDistance
	case value >= b.Plus1Sigma:
		return ZoneBUpper, isAboveCenter, sigmaDistance
	case value >= b.CenterLine:
		return ZoneCUpper, isAboveCenter, sigmaDistance
	case value >= b.Minus1Sigma:
		return ZoneCLower, isAboveCenter, sigmaDistance
	case value >= b.Minus2Sigma:
		return ZoneBLower, isAboveCenter, sigmaDistance
	case value >= b.Minus3Sigma:
		return ZoneALower, isAboveCenter, sigmaDistance
	default:
		return BeyondLCL, isAboveCenter, sigmaDistance
	}
}

// ClassifyStandardized classifies a z-score directly against fixed
// ±1/±2/±3 zones, for STANDARDIZED-mode characteristics where the plotted
// value already is the z-score.
func ClassifyStandardized(z float64) (zone Zone, isAboveCenter bool, sigmaDistance float64) {
	isAboveCenter = z >= 0
	sigmaDistance = math.Abs(z)

	switch {
	case z >= 3:
		return BeyondUCL, isAboveCenter, sigmaDistance
	case z >= 2:
		return ZoneAUpper, isAboveCenter, sigmaDistance
	case z >= 1:
		return ZoneBUpper, isAboveCenter, sigmaDistance
	case z >= 0:
		return ZoneCUpper, isAboveCenter, sigmaDistance
	case z >= -1:
		return ZoneCLower, isAboveCenter, sigmaDistance
	case z >= -2:
		return ZoneBLower, isAboveCenter, sigmaDistance
	case z >= -3:
		return ZoneALower, isAboveCenter, sigmaDistance
	default:
		return BeyondLCL, isAboveCenter, sigmaDistance
	}
}

// ClassifyVariableLimits classifies a raw value for a VARIABLE_LIMITS
// characteristic, where the control limits themselves vary per sample with
// actual_n but the zone boundaries are still drawn from the stored process
// center/sigma.
func ClassifyVariableLimits(value, storedCenterLine, sigmaOfMean, effectiveUCL, effectiveLCL float64) (zone Zone, isAboveCenter bool, sigmaDistance float64) {
	isAboveCenter = value >= storedCenterLine
	if sigmaOfMean != 0 {
		sigmaDistance = math.Abs(value-storedCenterLine) / sigmaOfMean
	}

	zone1Upper := storedCenterLine + sigmaOfMean
	zone2Upper := storedCenterLine + 2*sigmaOfMean
	zone1Lower := storedCenterLine - sigmaOfMean
	zone2Lower := storedCenterLine - 2*sigmaOfMean

	switch {
	case value >= effectiveUCL:
		return BeyondUCL, isAboveCenter, sigmaDistance
	case value >= zone2Upper:
		return ZoneAUpper, isAboveCenter, sigmaDistance
	case value >= zone1Upper:
		return ZoneBUpper, isAboveCenter, sigmaDistance
	case value >= storedCenterLine:
		return ZoneCUpper, isAboveCenter, sigmaDistance
	case value >= zone1Lower:
		return ZoneCLower, isAboveCenter, sigmaDistance
	case value >= zone2Lower:
		return ZoneBLower, isAboveCenter, sigmaDistance
	case value >= effectiveLCL:
		return ZoneALower, isAboveCenter, sigmaDistance
	default:
		return BeyondLCL, isAboveCenter, sigmaDistance
	}
}

// SigmaFromMovingRange estimates process sigma from the span-2 moving
// range of a sequence of individuals: sigma = mean(|x[i+1]-x[i]|)/1.128.
// Requires at least 2 values.
func SigmaFromMovingRange(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(values); i++ {
		sum += math.Abs(values[i] - values[i-1])
	}
	movingRangeBar := sum / float64(len(values)-1)
	return movingRangeBar / 1.128
}

// SigmaFromRBar estimates process sigma from the mean of per-subgroup
// ranges: sigma = R-bar / d2(n). n must be in [2,10].
func SigmaFromRBar(ranges []float64, n int) float64 {
	if len(ranges) == 0 {
		return 0
	}
	var sum float64
	for _, r := range ranges {
		sum += r
	}
	rBar := sum / float64(len(ranges))
	return rBar / D2(n)
}

// SigmaFromSBar estimates process sigma from the mean of per-subgroup
// standard deviations (divisor n-1): sigma = S-bar / c4(n).
// n must be > 10.
func SigmaFromSBar(stddevs []float64, n int) float64 {
	if len(stddevs) == 0 {
		return 0
	}
	var sum float64
	for _, s := range stddevs {
		sum += s
	}
	sBar := sum / float64(len(stddevs))
	return sBar / C4(n)
}

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Range returns max(values) - min(values). Callers must ensure len(values) > 1.
func Range(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}

// SampleStdDev returns the unbiased (divisor n-1) sample standard
// deviation. Callers must ensure len(values) > 1.
func SampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := Mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

// d2Table tabulates the unbiasing constant that relates the mean range of
// a subgroup of size n to process sigma, for n in [2,25]. The control-limit
// calculator reads it only for n in [2,10] (the R-bar method) and uses
// S-bar/c4 for n>10; entries above 10 are reached only through D2 and
// SigmaFromRBar.
var d2Table = map[int]float64{
	2: 1.128, 3: 1.693, 4: 2.059, 5: 2.326,
	6: 2.534, 7: 2.704, 8: 2.847, 9: 2.970, 10: 3.078,
	11: 3.173, 12: 3.258, 13: 3.336, 14: 3.407, 15: 3.472,
	16: 3.532, 17: 3.588, 18: 3.640, 19: 3.689, 20: 3.735,
	21: 3.778, 22: 3.819, 23: 3.858, 24: 3.895, 25: 3.931,
}

// c4Table tabulates the unbiasing constant that relates the mean of
// per-subgroup sample standard deviations to process sigma, used by the
// S-bar method for n > 10, with entries down to n=2 so the table can
// also serve as a sanity check in tests.
var c4Table = map[int]float64{
	2: 0.7979, 3: 0.8862, 4: 0.9213, 5: 0.9400,
	6: 0.9515, 7: 0.9594, 8: 0.9650, 9: 0.9693, 10: 0.9727,
	11: 0.9754, 12: 0.9776, 13: 0.9794, 14: 0.9810, 15: 0.9823,
	16: 0.9835, 17: 0.9845, 18: 0.9854, 19: 0.9862, 20: 0.9869,
	21: 0.9876, 22: 0.9882, 23: 0.9887, 24: 0.9892, 25: 0.9896,
}

// D2 returns the d2 unbiasing constant for subgroup size n, falling back
// to the nearest tabulated neighbor outside [2,25] rather than panicking —
// callers are expected to validate subgroup size against the
// characteristic configuration before reaching here.
func D2(n int) float64 {
	if v, ok := d2Table[n]; ok {
		return v
	}
	if n < 2 {
		return d2Table[2]
	}
	return d2Table[25]
}

// C4 returns the c4 unbiasing constant for subgroup size n. For n beyond
// the tabulated range it uses the Wilson asymptotic closed form
// c4(n) ≈ 4(n-1)/(4n-3), accurate to within 1e-4 for n>25. A real
// deployment hitting n>25 subgroups is a configuration choice to
// support, not an error condition.
func C4(n int) float64 {
	if v, ok := c4Table[n]; ok {
		return v
	}
	if n < 2 {
		return c4Table[2]
	}
	nf := float64(n)
	return 4 * (nf - 1) / (4*nf - 3)
}
