// FILE: indicators.go
// Package main – Technical indicators for the trading bot.
//
// SMA, RSI (Wilder's smoothing), and ZScore kept unmodified. Added Bollinger
// bands and the volume-surge pair the entry pipeline (§4.9) needs, which a
// scalar EMA-crossover strategy never computed.
package main

import "math"

// SMA returns the n-period simple moving average of Close, aligned to c.
// For indices < n-1, the function returns NaN.
func SMA(c []Candle, n int) []float64 {
	out := make([]float64, len(c))
	if n <= 0 || len(c) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	var sum float64
	for i := range c {
		sum += c[i].Close
		if i >= n {
			sum -= c[i-n].Close
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// RSI returns the n-period Relative Strength Index using Wilder's smoothing.
// Indices before the first full window are zero (0).
func RSI(c []Candle, n int) []float64 {
	out := make([]float64, len(c))
	if n <= 0 || len(c) == 0 {
		return out
	}
	var gain, loss float64
	for i := 1; i < len(c); i++ {
		d := c[i].Close - c[i-1].Close
		if i <= n {
			if d > 0 {
				gain += d
			} else {
				loss -= d
			}
			if i == n {
				avgGain := gain / float64(n)
				avgLoss := loss / float64(n)
				rs := 0.0
				if avgLoss != 0 {
					rs = avgGain / avgLoss
				} else if avgGain > 0 {
					rs = math.Inf(1)
				}
				out[i] = 100.0 - (100.0 / (1.0 + rs))
			}
		} else {
			if d > 0 {
				gain = (gain*float64(n-1) + d) / float64(n)
				loss = (loss * float64(n-1)) / float64(n)
			} else {
				gain = (gain * float64(n-1)) / float64(n)
				loss = (loss*float64(n-1) - d) / float64(n)
			}
			rs := 0.0
			if loss != 0 {
				rs = gain / loss
			} else if gain > 0 {
				rs = math.Inf(1)
			}
			out[i] = 100.0 - (100.0 / (1.0 + rs))
		}
	}
	return out
}

// ZScore returns the rolling z-score of Close over window n, aligned to c.
// For indices < n-1, the function returns 0.
func ZScore(c []Candle, n int) []float64 {
	out := make([]float64, len(c))
	if n <= 1 || len(c) == 0 {
		return out
	}
	var sum, sumSq float64
	for i := range c {
		x := c[i].Close
		sum += x
		sumSq += x * x
		if i >= n {
			y := c[i-n].Close
			sum -= y
			sumSq -= y * y
		}
		if i >= n-1 {
			mean := sum / float64(n)
			variance := (sumSq / float64(n)) - (mean * mean)
			std := math.Sqrt(math.Max(variance, 1e-12))
			out[i] = (x - mean) / std
		} else {
			out[i] = 0
		}
	}
	return out
}

// BollingerBands holds the rolling mid/upper/lower band, n-period, k std.
type BollingerBands struct {
	Mid   []float64
	Upper []float64
	Lower []float64
}

// Bollinger computes n-period bands at k standard deviations, aligned to c.
func Bollinger(c []Candle, n int, k float64) BollingerBands {
	out := BollingerBands{Mid: make([]float64, len(c)), Upper: make([]float64, len(c)), Lower: make([]float64, len(c))}
	if n <= 1 || len(c) == 0 {
		for i := range c {
			out.Mid[i], out.Upper[i], out.Lower[i] = math.NaN(), math.NaN(), math.NaN()
		}
		return out
	}
	var sum, sumSq float64
	for i := range c {
		x := c[i].Close
		sum += x
		sumSq += x * x
		if i >= n {
			y := c[i-n].Close
			sum -= y
			sumSq -= y * y
		}
		if i >= n-1 {
			mean := sum / float64(n)
			variance := math.Max((sumSq/float64(n))-(mean*mean), 0)
			std := math.Sqrt(variance)
			out.Mid[i] = mean
			out.Upper[i] = mean + k*std
			out.Lower[i] = mean - k*std
		} else {
			out.Mid[i], out.Upper[i], out.Lower[i] = math.NaN(), math.NaN(), math.NaN()
		}
	}
	return out
}

// VolumeSMA returns the n-period simple moving average of Volume, aligned to c.
func VolumeSMA(c []Candle, n int) []float64 {
	out := make([]float64, len(c))
	if n <= 0 || len(c) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	var sum float64
	for i := range c {
		sum += c[i].Volume
		if i >= n {
			sum -= c[i-n].Volume
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// VolSurge returns volume / SMA5(volume) at the last bar, or 0 if undefined.
func VolSurge(c []Candle) float64 {
	if len(c) == 0 {
		return 0
	}
	sma5 := VolumeSMA(c, 5)
	last := len(c) - 1
	denom := sma5[last]
	if math.IsNaN(denom) || denom <= 0 {
		return 0
	}
	return c[last].Volume / denom
}

// IndicatorSet bundles everything the entry pipeline and control loop read
// off one symbol's candle history for a single tick.
type IndicatorSet struct {
	SMA30, SMA120, SMA200, SMA864 float64
	RSI14, RSI14Prev              float64
	Bollinger20                   BollingerBands
	VolSMA5, VolSMA20             float64
	VolSurge                      float64
}

// ComputeIndicators evaluates the full indicator set over c, reading only
// the last two bars for RSI-cross detection.
func ComputeIndicators(c []Candle) IndicatorSet {
	if len(c) == 0 {
		return IndicatorSet{}
	}
	last := len(c) - 1

	sma30 := SMA(c, 30)
	sma120 := SMA(c, 120)
	sma200 := SMA(c, 200)
	sma864 := SMA(c, 864)
	rsi := RSI(c, 14)
	boll := Bollinger(c, 20, 2)
	volSMA5 := VolumeSMA(c, 5)
	volSMA20 := VolumeSMA(c, 20)

	set := IndicatorSet{
		SMA30: sma30[last], SMA120: sma120[last], SMA200: sma200[last], SMA864: sma864[last],
		RSI14:       rsi[last],
		Bollinger20: boll,
		VolSMA5:     volSMA5[last],
		VolSMA20:    volSMA20[last],
		VolSurge:    VolSurge(c),
	}
	if last > 0 {
		set.RSI14Prev = rsi[last-1]
	}
	return set
}
