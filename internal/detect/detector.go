package detect

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/andresuchdata/skuwatch/internal/config"
	"github.com/andresuchdata/skuwatch/internal/domain"
	"github.com/andresuchdata/skuwatch/internal/features"
)

// Detector computes a demand shift verdict per sales series by combining
// three independent signals: CUSUM, moving-average crossover and trailing
// z-score.
type Detector struct {
	cfg config.DemandShiftConfig
}

func NewDetector(cfg config.DemandShiftConfig) *Detector {
	return &Detector{cfg: cfg}
}

// minPoints is the shortest series the detector accepts: enough for two
// non-overlapping short windows, and never below the configured floor.
func (d *Detector) minPoints() int {
	if n := 2 * d.cfg.MAShortWindow; n > d.cfg.MinDataPoints {
		return n
	}
	return d.cfg.MinDataPoints
}

// Detect runs all methods over the series' sales values and combines them.
// Series shorter than the minimum window are rejected with
// features.ErrInsufficientHistory.
func (d *Detector) Detect(f *features.SeriesFeatures) (domain.DemandShiftResult, error) {
	if err := f.RequireHistory(d.minPoints()); err != nil {
		return domain.DemandShiftResult{}, err
	}

	values := f.SalesQty

	methods := []MethodResult{
		d.cusum(values),
		d.maCrossover(values),
		d.zscore(values),
	}

	baseline, current, magnitude := d.relativeChange(values)

	result := Combine(methods, magnitude)
	result.Key = f.Key
	result.DetectionPeriod = f.LatestPeriod
	result.BaselineDemand = baseline
	result.CurrentDemand = current

	return result, nil
}

// cusum detects sustained mean shifts with a tabular CUSUM over the series
// standardized against the first-half baseline. A zero-variance baseline
// falls back to the full-series deviation; a fully constant series emits no
// signal.
func (d *Detector) cusum(values []float64) MethodResult {
	none := MethodResult{Method: domain.MethodCUSUM}

	n := len(values)
	half := n / 2
	if half < 2 {
		return none
	}

	mean := stat.Mean(values[:half], nil)
	sd := stat.StdDev(values[:half], nil)
	if sd == 0 || math.IsNaN(sd) {
		sd = stat.StdDev(values, nil)
	}
	if sd == 0 || math.IsNaN(sd) {
		return none
	}

	var pos, neg, maxPos, minNeg float64
	for i := 1; i < n; i++ {
		z := (values[i] - mean) / sd
		pos = math.Max(0, pos+z-d.cfg.CUSUMSlack)
		neg = math.Min(0, neg+z+d.cfg.CUSUMSlack)
		maxPos = math.Max(maxPos, pos)
		minNeg = math.Min(minNeg, neg)
	}

	threshold := d.cfg.CUSUMThreshold
	if maxPos <= threshold && minNeg >= -threshold {
		return none
	}

	direction := domain.ShiftIncrease
	excursion := maxPos
	if -minNeg > maxPos {
		direction = domain.ShiftDecrease
		excursion = -minNeg
	}

	return MethodResult{
		Method:    domain.MethodCUSUM,
		Fired:     true,
		Direction: direction,
		Magnitude: clamp01(excursion / (2 * threshold)),
	}
}

// maCrossover compares the short-window trailing mean against the
// long-window trailing mean; a relative gap beyond the tolerance fires.
func (d *Detector) maCrossover(values []float64) MethodResult {
	none := MethodResult{Method: domain.MethodMACrossover}

	short := trailingMean(values, d.cfg.MAShortWindow)
	long := trailingMean(values, d.cfg.MALongWindow)
	if long <= 0 {
		return none
	}

	rel := (short - long) / long
	if math.Abs(rel) <= d.cfg.CrossoverTolerance {
		return none
	}

	direction := domain.ShiftStable
	switch {
	case rel > d.cfg.DirectionTolerance:
		direction = domain.ShiftIncrease
	case rel < -d.cfg.DirectionTolerance:
		direction = domain.ShiftDecrease
	}
	if direction == domain.ShiftStable {
		return none
	}

	return MethodResult{
		Method:    domain.MethodMACrossover,
		Fired:     true,
		Direction: direction,
		Magnitude: clamp01(math.Abs(rel)),
	}
}

// zscore standardizes the latest observation against the trailing history
// (everything before it). Zero trailing variance emits no signal.
func (d *Detector) zscore(values []float64) MethodResult {
	none := MethodResult{Method: domain.MethodZScore}

	n := len(values)
	trailing := values[:n-1]
	if len(trailing) < 2 {
		return none
	}

	mean := stat.Mean(trailing, nil)
	sd := stat.StdDev(trailing, nil)
	if sd == 0 || math.IsNaN(sd) {
		return none
	}

	z := (values[n-1] - mean) / sd
	if math.Abs(z) <= d.cfg.ZScoreThreshold {
		return none
	}

	direction := domain.ShiftIncrease
	if z < 0 {
		direction = domain.ShiftDecrease
	}

	return MethodResult{
		Method:    domain.MethodZScore,
		Fired:     true,
		Direction: direction,
		Magnitude: clamp01(math.Abs(z) / (2 * d.cfg.ZScoreThreshold)),
	}
}

// relativeChange compares the most recent short window against the window
// of equal length immediately before it. A zero baseline with current
// demand maps to +1 (new demand from nothing), otherwise 0.
func (d *Detector) relativeChange(values []float64) (baseline, current, magnitude float64) {
	w := d.cfg.MAShortWindow
	n := len(values)

	current = stat.Mean(values[n-w:], nil)
	baseline = stat.Mean(values[n-2*w:n-w], nil)

	switch {
	case baseline > 0:
		magnitude = (current - baseline) / baseline
	case current > 0:
		magnitude = 1
	default:
		magnitude = 0
	}
	return baseline, current, magnitude
}

func trailingMean(values []float64, window int) float64 {
	if window > len(values) {
		window = len(values)
	}
	if window == 0 {
		return 0
	}
	return stat.Mean(values[len(values)-window:], nil)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
