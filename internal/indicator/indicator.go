// Package indicator turns a price series into a technical indicator bundle.
// Everything here is a pure function over its input: no I/O, no clock, same
// series in, same bundle out.
package indicator

import (
	"errors"
	"time"

	talib "github.com/markcheno/go-talib"
)

// ErrInsufficientData is returned when the series is too short to compute
// even the smallest indicator window. Callers treat it as WAIT, not a fault.
var ErrInsufficientData = errors.New("indicator: insufficient data")

type Trend string

const (
	TrendUp            Trend = "uptrend"
	TrendDown          Trend = "downtrend"
	TrendConsolidating Trend = "consolidating"
)

// Point is one (timestamp, price) observation.
type Point struct {
	Time  time.Time
	Price float64
}

// Series is an ascending price history. Duplicate timestamps are dropped
// (first wins) and out-of-order points rejected during validation.
type Series []Point

type MACD struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// MovingAverages holds the simple averages; an unmet window stays nil rather
// than being computed over a short window.
type MovingAverages struct {
	MA20  *float64
	MA50  *float64
	MA200 *float64
}

type Levels struct {
	Support    float64
	Resistance float64
	Pivot      float64
}

// Bundle is the immutable result of Analyze. Absent indicators are nil.
type Bundle struct {
	Price          float64
	RSI            *float64
	MACD           *MACD
	MovingAverages MovingAverages
	Trend          Trend
	Levels         *Levels
}

// Config exposes the tunable windows. Zero values take the defaults.
type Config struct {
	RSIPeriod       int
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	ExtremaLookback int // points scanned for support/resistance
	ExtremaWindow   int // neighbours compared on each side
}

func (c Config) withDefaults() Config {
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.MACDFast <= 0 {
		c.MACDFast = 12
	}
	if c.MACDSlow <= 0 {
		c.MACDSlow = 26
	}
	if c.MACDSignal <= 0 {
		c.MACDSignal = 9
	}
	if c.ExtremaLookback <= 0 {
		c.ExtremaLookback = 50
	}
	if c.ExtremaWindow <= 0 {
		c.ExtremaWindow = 2
	}
	return c
}

// Analyze computes the bundle with default windows.
func Analyze(series Series) (*Bundle, error) {
	return AnalyzeWith(Config{}, series)
}

// AnalyzeWith computes the bundle with explicit windows. The series must at
// least cover the RSI window (period+1 points); anything shorter is
// ErrInsufficientData.
func AnalyzeWith(cfg Config, series Series) (*Bundle, error) {
	cfg = cfg.withDefaults()
	closes, err := sanitize(series)
	if err != nil {
		return nil, err
	}
	if len(closes) < cfg.RSIPeriod+1 {
		return nil, ErrInsufficientData
	}

	b := &Bundle{Price: closes[len(closes)-1]}
	b.RSI = lastOf(talib.Rsi(closes, cfg.RSIPeriod))

	if len(closes) >= cfg.MACDSlow+cfg.MACDSignal {
		line, signal, hist := talib.Macd(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
		if len(line) > 0 {
			idx := len(line) - 1
			b.MACD = &MACD{Line: line[idx], Signal: signal[idx], Histogram: hist[idx]}
		}
	}

	b.MovingAverages = MovingAverages{
		MA20:  sma(closes, 20),
		MA50:  sma(closes, 50),
		MA200: sma(closes, 200),
	}

	b.Trend = classifyTrend(b)
	b.Levels = findLevels(closes, cfg.ExtremaLookback, cfg.ExtremaWindow)
	return b, nil
}

// sanitize validates ordering, drops duplicate timestamps and extracts the
// close prices.
func sanitize(series Series) ([]float64, error) {
	if len(series) == 0 {
		return nil, ErrInsufficientData
	}
	closes := make([]float64, 0, len(series))
	var last time.Time
	for i, p := range series {
		if i > 0 {
			if p.Time.Before(last) {
				return nil, errors.New("indicator: series not ascending by time")
			}
			if p.Time.Equal(last) {
				continue
			}
		}
		closes = append(closes, p.Price)
		last = p.Time
	}
	return closes, nil
}

func sma(closes []float64, period int) *float64 {
	if len(closes) < period {
		return nil
	}
	out := talib.Sma(closes, period)
	return lastOf(out)
}

func lastOf(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	return &v
}

// classifyTrend requires ma50, ma200 and the MACD histogram; when any is
// absent the market is reported as consolidating.
func classifyTrend(b *Bundle) Trend {
	ma := b.MovingAverages
	if ma.MA50 == nil || ma.MA200 == nil || b.MACD == nil {
		return TrendConsolidating
	}
	switch {
	case b.Price > *ma.MA50 && *ma.MA50 > *ma.MA200 && b.MACD.Histogram > 0:
		return TrendUp
	case b.Price < *ma.MA50 && *ma.MA50 < *ma.MA200 && b.MACD.Histogram < 0:
		return TrendDown
	default:
		return TrendConsolidating
	}
}

// findLevels detects local extrema over the last lookback closes comparing
// each candidate against window neighbours on both sides. Resistance is the
// highest local maximum, support the lowest local minimum; when no extremum
// qualifies the window bounds are used. pivot = (support+resistance+last)/3.
func findLevels(closes []float64, lookback, window int) *Levels {
	if len(closes) < 3 {
		return nil
	}
	if len(closes) > lookback {
		closes = closes[len(closes)-lookback:]
	}
	var support, resistance float64
	foundMin, foundMax := false, false
	for i := window; i < len(closes)-window; i++ {
		isMin, isMax := true, true
		for j := i - window; j <= i+window; j++ {
			if j == i {
				continue
			}
			if closes[j] < closes[i] {
				isMin = false
			}
			if closes[j] > closes[i] {
				isMax = false
			}
		}
		if isMin && (!foundMin || closes[i] < support) {
			support = closes[i]
			foundMin = true
		}
		if isMax && (!foundMax || closes[i] > resistance) {
			resistance = closes[i]
			foundMax = true
		}
	}
	if !foundMin {
		support = minOf(closes)
	}
	if !foundMax {
		resistance = maxOf(closes)
	}
	last := closes[len(closes)-1]
	return &Levels{
		Support:    support,
		Resistance: resistance,
		Pivot:      (support + resistance + last) / 3,
	}
}

func minOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
