package anomaly

import (
	"math"

	"github.com/shopspring/decimal"
)

// populationStats returns the mean and population standard deviation of
// the amounts. ok is false when fewer than two distinct amounts exist.
func populationStats(amounts []decimal.Decimal) (mean, stddev float64, ok bool) {
	if len(amounts) < 2 {
		return 0, 0, false
	}

	distinct := false
	values := make([]float64, len(amounts))
	for i, a := range amounts {
		values[i] = a.InexactFloat64()
		if !a.Equal(amounts[0]) {
			distinct = true
		}
	}
	if !distinct {
		return 0, 0, false
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var squares float64
	for _, v := range values {
		squares += (v - mean) * (v - mean)
	}
	stddev = math.Sqrt(squares / float64(len(values)))
	if stddev == 0 || math.IsNaN(stddev) {
		return 0, 0, false
	}
	return mean, stddev, true
}
