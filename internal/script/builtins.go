package script

import (
	"math"
)

// Indicator math over newest-first series. Every function is pure and returns a
// neutral value instead of failing when the lookback window runs past the oldest bar.

// NoValue is the sentinel for "no previous value" in stateful indicators
var NoValue = math.NaN()

// IsNoValue reports whether v is the NoValue sentinel
func IsNoValue(v float64) bool {
	return math.IsNaN(v)
}

// RsiNeutral is returned by Rsi when there is no movement or not enough history
const RsiNeutral = 50.0

func windowOK(series []float64, bar, length int) bool {
	return length > 0 && bar >= 0 && bar+length <= len(series)
}

// Sma returns the mean of series[bar..bar+length-1], or 0 when the window is incomplete
func Sma(series []float64, bar, length int) float64 {
	if !windowOK(series, bar, length) {
		return 0
	}
	sum := 0.0
	for i := bar; i < bar+length; i++ {
		sum += series[i]
	}
	return sum / float64(length)
}

// Ema advances an exponential moving average by one bar. When prev is NoValue the
// average is seeded with Sma over the same window.
func Ema(series []float64, bar, length int, prev float64) float64 {
	if IsNoValue(prev) {
		return Sma(series, bar, length)
	}
	if bar < 0 || bar >= len(series) || length <= 0 {
		return prev
	}
	k := 2.0 / (float64(length) + 1.0)
	return prev + k*(series[bar]-prev)
}

// Rsi returns the relative strength index from the average gain and loss of the
// length bar-to-bar changes ending at bar
func Rsi(series []float64, bar, length int) float64 {
	// length deltas need length+1 closes
	if !windowOK(series, bar, length+1) {
		return RsiNeutral
	}

	gain, loss := 0.0, 0.0
	for i := bar; i < bar+length; i++ {
		change := series[i] - series[i+1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	avgGain := gain / float64(length)
	avgLoss := loss / float64(length)

	if avgGain == 0 && avgLoss == 0 {
		return RsiNeutral
	}
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// Stdev returns the population standard deviation over the window, or 0 when incomplete
func Stdev(series []float64, bar, length int) float64 {
	if !windowOK(series, bar, length) {
		return 0
	}
	mean := Sma(series, bar, length)
	sum := 0.0
	for i := bar; i < bar+length; i++ {
		d := series[i] - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(length))
}

// clampWindow limits a window to the bars that exist
func clampWindow(series []float64, bar, length int) (int, int, bool) {
	if bar < 0 || bar >= len(series) || length <= 0 {
		return 0, 0, false
	}
	end := bar + length
	if end > len(series) {
		end = len(series)
	}
	return bar, end, true
}

// Highest returns the maximum over the window. A window running past the oldest bar
// covers the bars that exist.
func Highest(series []float64, bar, length int) float64 {
	start, end, ok := clampWindow(series, bar, length)
	if !ok {
		return 0
	}
	max := series[start]
	for i := start + 1; i < end; i++ {
		if series[i] > max {
			max = series[i]
		}
	}
	return max
}

// Lowest returns the minimum over the window, clamped like Highest
func Lowest(series []float64, bar, length int) float64 {
	start, end, ok := clampWindow(series, bar, length)
	if !ok {
		return 0
	}
	min := series[start]
	for i := start + 1; i < end; i++ {
		if series[i] < min {
			min = series[i]
		}
	}
	return min
}

// Crossover reports whether a moved above b at bar
func Crossover(a, b []float64, bar int) bool {
	if bar < 0 || bar+1 >= len(a) || bar+1 >= len(b) {
		return false
	}
	return a[bar] > b[bar] && a[bar+1] <= b[bar+1]
}

// Crossunder reports whether a moved below b at bar
func Crossunder(a, b []float64, bar int) bool {
	if bar < 0 || bar+1 >= len(a) || bar+1 >= len(b) {
		return false
	}
	return a[bar] < b[bar] && a[bar+1] >= b[bar+1]
}

// Wma returns the linearly weighted moving average, newest bar weighted length
func Wma(series []float64, bar, length int) float64 {
	if !windowOK(series, bar, length) {
		return 0
	}
	sum, weights := 0.0, 0.0
	for i := 0; i < length; i++ {
		w := float64(length - i)
		sum += series[bar+i] * w
		weights += w
	}
	return sum / weights
}

// Change returns series[bar] - series[bar+length], or 0 when the older bar is missing
func Change(series []float64, bar, length int) float64 {
	if length <= 0 || bar < 0 || bar+length >= len(series) {
		return 0
	}
	return series[bar] - series[bar+length]
}
