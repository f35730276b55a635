package script

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestSma(t *testing.T) {
	series := []float64{5, 4, 3, 2, 1}

	if got := Sma(series, 0, 3); !almostEqual(got, 4) {
		t.Errorf("expected 4, got %f", got)
	}
	if got := Sma(series, 2, 3); !almostEqual(got, 2) {
		t.Errorf("expected 2, got %f", got)
	}
	if got := Sma(series, 3, 3); got != 0 {
		t.Errorf("expected 0 for an incomplete window, got %f", got)
	}
	if got := Sma(series, 0, 0); got != 0 {
		t.Errorf("expected 0 for zero length, got %f", got)
	}
}

func TestEma(t *testing.T) {
	series := []float64{5, 4, 3, 2, 1}

	t.Run("seeds from sma", func(t *testing.T) {
		if got := Ema(series, 2, 3, NoValue); !almostEqual(got, 2) {
			t.Errorf("expected seed 2, got %f", got)
		}
	})

	t.Run("advances from previous", func(t *testing.T) {
		// k = 2/(3+1) = 0.5
		if got := Ema(series, 0, 3, 3); !almostEqual(got, 4) {
			t.Errorf("expected 4, got %f", got)
		}
	})

	t.Run("constant series stays constant", func(t *testing.T) {
		flat := []float64{7, 7, 7, 7, 7, 7}
		prev := NoValue
		for bar := len(flat) - 3; bar >= 0; bar-- {
			prev = Ema(flat, bar, 3, prev)
			if !almostEqual(prev, 7) {
				t.Errorf("bar %d: expected 7, got %f", bar, prev)
			}
		}
	})
}

func TestRsi(t *testing.T) {
	tests := []struct {
		name   string
		series []float64
		length int
		want   float64
	}{
		{"only gains", []float64{5, 4, 3, 2, 1}, 4, 100},
		{"only losses", []float64{1, 2, 3, 4, 5}, 4, 0},
		{"flat", []float64{3, 3, 3, 3, 3}, 4, RsiNeutral},
		{"short window", []float64{5, 4, 3}, 4, RsiNeutral},
		// gains 2, losses 1 over 2 deltas: rs = 2, rsi = 100 - 100/3
		{"mixed", []float64{3, 1, 2}, 2, 100 - 100.0/3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Rsi(tt.series, 0, tt.length); !almostEqual(got, tt.want) {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestStdev(t *testing.T) {
	series := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	if got := Stdev(series, 0, 8); !almostEqual(got, 2) {
		t.Errorf("expected 2, got %f", got)
	}
	if got := Stdev(series, 1, 8); got != 0 {
		t.Errorf("expected 0 for an incomplete window, got %f", got)
	}
}

func TestHighestLowest(t *testing.T) {
	series := []float64{1, 5, 3, 4}

	if got := Highest(series, 0, 3); got != 5 {
		t.Errorf("expected highest 5, got %f", got)
	}
	if got := Lowest(series, 1, 3); got != 3 {
		t.Errorf("expected lowest 3, got %f", got)
	}

	t.Run("window clamps to available bars", func(t *testing.T) {
		if got := Highest(series, 2, 10); got != 4 {
			t.Errorf("expected 4, got %f", got)
		}
		if got := Lowest(series, 2, 10); got != 3 {
			t.Errorf("expected 3, got %f", got)
		}
	})

	t.Run("bar out of range", func(t *testing.T) {
		if got := Highest(series, 4, 2); got != 0 {
			t.Errorf("expected 0, got %f", got)
		}
		if got := Lowest(series, -1, 2); got != 0 {
			t.Errorf("expected 0, got %f", got)
		}
	})
}

func TestCrossoverCrossunder(t *testing.T) {
	a := []float64{3, 1, 3}
	b := []float64{2, 2, 2}

	if !Crossover(a, b, 0) {
		t.Error("expected crossover at bar 0")
	}
	if Crossunder(a, b, 0) {
		t.Error("expected no crossunder at bar 0")
	}
	if !Crossunder(a, b, 1) {
		t.Error("expected crossunder at bar 1")
	}
	if Crossover(a, b, 2) || Crossunder(a, b, 2) {
		t.Error("expected no cross on the oldest bar")
	}

	t.Run("mutually exclusive", func(t *testing.T) {
		x := []float64{1, 4, 2, 2, 5, 0, 3}
		y := []float64{2, 2, 2, 3, 1, 1, 3}
		for bar := range x {
			if Crossover(x, y, bar) && Crossunder(x, y, bar) {
				t.Errorf("bar %d: crossover and crossunder both true", bar)
			}
		}
	})

	t.Run("equal values never cross", func(t *testing.T) {
		// bar 0 is equal; the previous bar sits below, above and level in turn
		tests := []struct {
			name string
			a, b []float64
		}{
			{"from below", []float64{2, 1}, []float64{2, 2}},
			{"from above", []float64{2, 3}, []float64{2, 2}},
			{"level", []float64{2, 2}, []float64{2, 2}},
		}
		for _, tt := range tests {
			if Crossover(tt.a, tt.b, 0) {
				t.Errorf("%s: expected no crossover on equal values", tt.name)
			}
			if Crossunder(tt.a, tt.b, 0) {
				t.Errorf("%s: expected no crossunder on equal values", tt.name)
			}
		}
	})
}

func TestWma(t *testing.T) {
	series := []float64{3, 2, 1}

	if got := Wma(series, 0, 3); !almostEqual(got, 14.0/6) {
		t.Errorf("expected %f, got %f", 14.0/6, got)
	}
	if got := Wma(series, 1, 3); got != 0 {
		t.Errorf("expected 0 for an incomplete window, got %f", got)
	}
}

func TestChange(t *testing.T) {
	series := []float64{5, 3, 4}

	if got := Change(series, 0, 1); got != 2 {
		t.Errorf("expected 2, got %f", got)
	}
	if got := Change(series, 0, 2); got != 1 {
		t.Errorf("expected 1, got %f", got)
	}
	if got := Change(series, 2, 1); got != 0 {
		t.Errorf("expected 0 on the oldest bar, got %f", got)
	}
}
