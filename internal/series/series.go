// Package series holds daily price series and the return and beta math
// run over them.
package series

import (
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/portfolio-aggregator/internal/types"
)

// Point is one observation of a series
type Point struct {
	Time  time.Time
	Value float64
}

// Series is a time-ordered list of observations
type Series []Point

// Len returns the number of observations
func (s Series) Len() int { return len(s) }

// Values returns the observation values in order
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// Normalize sorts by time, truncates timestamps to UTC days, drops
// non-finite values and keeps the last observation of each day
func (s Series) Normalize() Series {
	if len(s) == 0 {
		return nil
	}
	sorted := make(Series, 0, len(s))
	for _, p := range s {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		sorted = append(sorted, Point{Time: Day(p.Time), Value: p.Value})
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	out := sorted[:0]
	for _, p := range sorted {
		if n := len(out); n > 0 && out[n-1].Time.Equal(p.Time) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

// Usable reports whether the series can produce at least one return
func (s Series) Usable() bool {
	return len(s) >= 2
}

// Returns computes consecutive percentage changes. The first point has no
// predecessor and is dropped, as are changes from a zero price.
func (s Series) Returns() Series {
	if len(s) < 2 {
		return nil
	}
	out := make(Series, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		prev := s[i-1].Value
		if prev == 0 {
			continue
		}
		r := s[i].Value/prev - 1
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out = append(out, Point{Time: s[i].Time, Value: r})
	}
	return out
}

// Weekly resamples onto week-ending Sundays. Each Sunday takes the last
// observation at or before it, so weeks with no data repeat the prior value.
// The final label is the first Sunday on or after the last observation.
func (s Series) Weekly() Series {
	if len(s) == 0 {
		return nil
	}
	first := WeekEnd(s[0].Time)
	last := WeekEnd(s[len(s)-1].Time)

	var out Series
	i := 0
	var carry *Point
	for label := first; !label.After(last); label = label.AddDate(0, 0, 7) {
		for i < len(s) && !s[i].Time.After(label) {
			carry = &s[i]
			i++
		}
		if carry == nil {
			continue
		}
		out = append(out, Point{Time: label, Value: carry.Value})
	}
	return out
}

// Day truncates t to midnight UTC
func Day(t time.Time) time.Time {
	return types.Day(t)
}

// WeekEnd returns the Sunday on or after t's day
func WeekEnd(t time.Time) time.Time {
	d := Day(t)
	offset := (7 - int(d.Weekday())) % 7
	return d.AddDate(0, 0, offset)
}

// Align inner-joins two series on timestamp and returns the paired values
// in time order
func Align(a, b Series) (x, y []float64) {
	index := make(map[int64]float64, len(b))
	for _, p := range b {
		index[p.Time.Unix()] = p.Value
	}
	for _, p := range a {
		if v, ok := index[p.Time.Unix()]; ok {
			x = append(x, p.Value)
			y = append(y, v)
		}
	}
	return x, y
}

// Beta returns cov(asset, benchmark) / var(benchmark) over the latest window
// of aligned returns, where window = min(len(assetReturns), lookback).
// It is NaN when fewer than window aligned pairs exist, when the window has
// fewer than two observations, or when benchmark variance is zero.
func Beta(assetReturns, benchmarkReturns Series, lookback int) float64 {
	window := len(assetReturns)
	if lookback < window {
		window = lookback
	}
	if window < 2 {
		return math.NaN()
	}

	x, y := Align(assetReturns, benchmarkReturns)
	if len(x) < window {
		return math.NaN()
	}
	x = x[len(x)-window:]
	y = y[len(y)-window:]

	if constant(y) {
		return math.NaN()
	}
	variance, err := stats.SampleVariance(y)
	if err != nil || negligible(variance, y) {
		return math.NaN()
	}
	covariance, err := stats.Covariance(x, y)
	if err != nil {
		return math.NaN()
	}
	return covariance / variance
}

// constant reports whether every value is identical; accumulated rounding in
// the mean would otherwise leave a tiny non-zero variance
func constant(v []float64) bool {
	lo, err := stats.Min(v)
	if err != nil {
		return true
	}
	hi, _ := stats.Max(v)
	return lo == hi
}

// negligibleVarianceRatio bounds variance relative to the mean square below
// which a benchmark is treated as flat (rounding noise from price division)
const negligibleVarianceRatio = 1e-20

func negligible(variance float64, v []float64) bool {
	if variance == 0 || math.IsNaN(variance) {
		return true
	}
	var sq float64
	for _, x := range v {
		sq += x * x
	}
	meanSq := sq / float64(len(v))
	return variance <= meanSq*negligibleVarianceRatio
}

// DailyBeta computes beta on consecutive daily returns of two price series
func DailyBeta(asset, benchmark Series, lookback int) float64 {
	return Beta(asset.Normalize().Returns(), benchmark.Normalize().Returns(), lookback)
}

// WeeklyBeta computes beta on week-end resampled returns of two price series
func WeeklyBeta(asset, benchmark Series, lookback int) float64 {
	return Beta(asset.Normalize().Weekly().Returns(), benchmark.Normalize().Weekly().Returns(), lookback)
}
