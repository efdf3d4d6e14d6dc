package threshold

import "sort"

// Calibrate turns a distribution of reconstruction errors into a decision
// threshold. Errors are capped at their 99.9th percentile to blunt extreme
// outliers, then two independent estimators are computed over the clipped
// values: the 99.5th percentile, and a spread-based bound (median + 3*MAD,
// falling back to p75 + 1.5*IQR when the MAD collapses to zero). The final
// threshold is the maximum of the candidates, which keeps false positives
// low on small or degenerate samples.
func Calibrate(errors []float64) float64 {
	if len(errors) == 0 {
		return 0.0
	}

	capValue := percentile(errors, 99.9)
	clipped := make([]float64, len(errors))
	for i, e := range errors {
		if e > capValue {
			e = capValue
		}
		clipped[i] = e
	}

	med := median(clipped)
	deviations := make([]float64, len(clipped))
	for i, e := range clipped {
		d := e - med
		if d < 0 {
			d = -d
		}
		deviations[i] = d
	}
	mad := median(deviations)

	candidate := percentile(clipped, 99.5)
	if mad > 0 {
		if spread := med + 3*mad; spread > candidate {
			candidate = spread
		}
	} else {
		q1 := percentile(clipped, 25)
		q3 := percentile(clipped, 75)
		if iqr := q3 - q1; iqr > 0 {
			if spread := q3 + 1.5*iqr; spread > candidate {
				candidate = spread
			}
		}
	}

	return candidate
}

// percentile uses linear interpolation between closest ranks, matching the
// definition the training metrics were originally calibrated with.
func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
