package stats

import (
	"errors"
	"math"
)

// ErrEmptyInput is returned when a statistic is requested on a zero-length series.
var ErrEmptyInput = errors.New("stats: empty input")

// Trend classifies the direction of a series.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDegrading Trend = "degrading"
	TrendStable    Trend = "stable"
)

// Stability classifies the relative spread of a series.
type Stability string

const (
	StabilityExcellent Stability = "excellent"
	StabilityGood      Stability = "good"
	StabilityUnstable  Stability = "unstable"
)

// Thresholds for Trend and Stability.
const (
	// TrendSlope is the absolute slope above which a series is not stable.
	TrendSlope = 0.1

	// CVExcellent and CVGood are coefficient-of-variation bands in percent.
	CVExcellent = 10.0
	CVGood      = 25.0

	// AnomalySigma is the distance from the mean, in standard deviations,
	// beyond which a value is reported as an anomaly.
	AnomalySigma = 2.0
)

// Summary is the population mean and standard deviation of a series.
type Summary struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// MeanStd returns the population mean and standard deviation (divide by N).
func MeanStd(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrEmptyInput
	}

	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return Summary{Mean: mean, Std: math.Sqrt(sq / n)}, nil
}

// TrendOf returns the direction of values using the ordinary least-squares
// slope of value against its 1-based index. Fewer than two points is Stable.
func TrendOf(values []float64) Trend {
	slope, ok := Slope(values)
	if !ok {
		return TrendStable
	}
	switch {
	case slope > TrendSlope:
		return TrendImproving
	case slope < -TrendSlope:
		return TrendDegrading
	default:
		return TrendStable
	}
}

// Slope returns the least-squares slope of values against x = 1..n.
// ok is false when fewer than two points are given.
func Slope(values []float64) (slope float64, ok bool) {
	n := float64(len(values))
	if len(values) < 2 {
		return 0, false
	}

	sumX := n * (n + 1) / 2
	sumX2 := n * (n + 1) * (2*n + 1) / 6
	var sumY, sumXY float64
	for i, v := range values {
		sumY += v
		sumXY += v * float64(i+1)
	}

	return (n*sumXY - sumX*sumY) / (n*sumX2 - sumX*sumX), true
}

// Anomalies returns, in input order, the values whose distance from the mean
// exceeds AnomalySigma standard deviations. A flat or empty series has none.
func Anomalies(values []float64) []float64 {
	s, err := MeanStd(values)
	if err != nil || s.Std == 0 {
		return nil
	}

	var out []float64
	for _, v := range values {
		if math.Abs(v-s.Mean) > AnomalySigma*s.Std {
			out = append(out, v)
		}
	}
	return out
}

// CoefficientOfVariation returns std/mean*100. ok is false for an empty
// series or a zero mean.
func CoefficientOfVariation(values []float64) (cv float64, ok bool) {
	s, err := MeanStd(values)
	if err != nil || s.Mean == 0 {
		return 0, false
	}
	return s.Std / s.Mean * 100, true
}

// StabilityOf classifies values by coefficient of variation. A zero mean or an
// empty series is Unstable.
func StabilityOf(values []float64) Stability {
	cv, ok := CoefficientOfVariation(values)
	if !ok {
		return StabilityUnstable
	}
	switch {
	case cv < CVExcellent:
		return StabilityExcellent
	case cv < CVGood:
		return StabilityGood
	default:
		return StabilityUnstable
	}
}
