package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/andresuchdata/skuwatch/internal/config"
	"github.com/andresuchdata/skuwatch/internal/dataset"
	"github.com/andresuchdata/skuwatch/internal/domain"
)

// ErrInsufficientHistory marks a series too short for a downstream
// detector's minimum window. The series is skipped, never fatal to a run.
var ErrInsufficientHistory = errors.New("insufficient history")

const week = 7 * 24 * time.Hour

// Series is one aligned, gap-explicit weekly time series for a single
// metric of a single SeriesKey.
type Series struct {
	Key    domain.SeriesKey
	Points []domain.TimeSeriesPoint
}

// Values returns the quantities of the series. When excludeMissing is set,
// filled gap points are dropped instead of contributing zeros.
func (s Series) Values(excludeMissing bool) []float64 {
	out := make([]float64, 0, len(s.Points))
	for _, p := range s.Points {
		if excludeMissing && p.Missing {
			continue
		}
		out = append(out, p.Quantity)
	}
	return out
}

// SeriesFeatures carries everything downstream components need for one
// series: the aligned series themselves plus derived rolling statistics.
type SeriesFeatures struct {
	Key      domain.SeriesKey
	Sales    Series
	OnHand   Series
	Forecast Series

	// SalesQty is the sales series under the configured fill policy;
	// all window statistics below are computed over it.
	SalesQty []float64

	LastSaleDate  *time.Time // nil when the series never recorded a positive sale
	FirstObserved time.Time
	LatestPeriod  time.Time

	CurrentOnHand    float64
	TotalVolume      float64
	MeanDemand       float64
	StdDemand        float64
	RollingShortMean float64
	RollingLongMean  float64
	RollingLongStd   float64
	WeeksOfSupply    float64 // +Inf when there is stock but no demand
	WeeksWithSales   int
}

// RequireHistory returns ErrInsufficientHistory when the sales series has
// fewer points than min.
func (f *SeriesFeatures) RequireHistory(min int) error {
	if len(f.SalesQty) < min {
		return fmt.Errorf("%w: %d points, need %d", ErrInsufficientHistory, len(f.SalesQty), min)
	}
	return nil
}

// Builder aligns raw weekly records into per-series features.
type Builder struct {
	cfg config.FeatureConfig
}

func NewBuilder(cfg config.FeatureConfig) *Builder {
	return &Builder{cfg: cfg}
}

// Build produces one SeriesFeatures per SeriesKey observed in the snapshot.
// Missing weeks between a series' first and last observation are filled as
// explicit zero points (or flagged for exclusion, per the fill policy).
func (b *Builder) Build(snap *dataset.Snapshot) map[domain.SeriesKey]*SeriesFeatures {
	sales := groupByKey(snap.Sales, func(r dataset.SalesRecord) (domain.SeriesKey, time.Time, float64) {
		return domain.SeriesKey{ItemID: r.ItemID, LocationID: r.LocationID}, r.WeekEnding, r.QtySold
	})
	onHand := groupByKey(snap.Inventory, func(r dataset.InventoryRecord) (domain.SeriesKey, time.Time, float64) {
		return domain.SeriesKey{ItemID: r.ItemID, LocationID: r.LocationID}, r.WeekEnding, r.OnHandQty
	})
	forecast := groupByKey(snap.Forecasts, func(r dataset.ForecastRecord) (domain.SeriesKey, time.Time, float64) {
		return domain.SeriesKey{ItemID: r.ItemID, LocationID: r.LocationID}, r.WeekEnding, r.ForecastQty
	})

	keys := make(map[domain.SeriesKey]struct{})
	for k := range sales {
		keys[k] = struct{}{}
	}
	for k := range onHand {
		keys[k] = struct{}{}
	}
	for k := range forecast {
		keys[k] = struct{}{}
	}

	excludeMissing := b.cfg.FillPolicy == config.FillExclude

	out := make(map[domain.SeriesKey]*SeriesFeatures, len(keys))
	for key := range keys {
		first, last, ok := observedRange(sales[key], onHand[key], forecast[key])
		if !ok {
			continue
		}

		f := &SeriesFeatures{
			Key:           key,
			Sales:         alignSeries(key, sales[key]),
			OnHand:        alignSeries(key, onHand[key]),
			Forecast:      alignSeries(key, forecast[key]),
			FirstObserved: first,
			LatestPeriod:  last,
		}
		f.SalesQty = f.Sales.Values(excludeMissing)

		b.derive(f, sales[key], onHand[key])
		out[key] = f
	}

	return out
}

// derive fills the rolling statistics and movement inputs of f.
func (b *Builder) derive(f *SeriesFeatures, rawSales, rawOnHand map[time.Time]float64) {
	for t, q := range rawSales {
		f.TotalVolume += q
		if q > 0 {
			f.WeeksWithSales++
			if f.LastSaleDate == nil || t.After(*f.LastSaleDate) {
				ts := t
				f.LastSaleDate = &ts
			}
		}
	}

	if len(f.SalesQty) > 0 {
		f.MeanDemand = stat.Mean(f.SalesQty, nil)
	}
	if len(f.SalesQty) > 1 {
		f.StdDemand = stat.StdDev(f.SalesQty, nil)
	}
	f.RollingShortMean = tailMean(f.SalesQty, b.cfg.RollingShortWindow)
	f.RollingLongMean = tailMean(f.SalesQty, b.cfg.RollingLongWindow)
	f.RollingLongStd = tailStd(f.SalesQty, b.cfg.RollingLongWindow)

	var latestInv time.Time
	for t, q := range rawOnHand {
		if t.After(latestInv) {
			latestInv = t
			f.CurrentOnHand = q
		}
	}

	switch {
	case f.CurrentOnHand <= 0:
		f.WeeksOfSupply = 0
	case f.RollingShortMean <= 0:
		f.WeeksOfSupply = math.Inf(1)
	default:
		f.WeeksOfSupply = f.CurrentOnHand / f.RollingShortMean
	}
}

// alignSeries walks a 7-day calendar anchored on the metric's own first
// observation, so phase differences between metrics (inventory reported on
// a different weekday than sales) cannot push real observations off-grid.
// Observations inside a week bucket accumulate into that bucket; weeks with
// no observation become explicit gap points.
func alignSeries(key domain.SeriesKey, observed map[time.Time]float64) Series {
	s := Series{Key: key}
	if len(observed) == 0 {
		return s
	}

	var first, last time.Time
	ok := false
	for t := range observed {
		if !ok {
			first, last, ok = t, t, true
			continue
		}
		if t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}

	n := int(last.Sub(first)/week) + 1
	s.Points = make([]domain.TimeSeriesPoint, n)
	for i := range s.Points {
		s.Points[i] = domain.TimeSeriesPoint{PeriodEnd: first.Add(week * time.Duration(i)), Missing: true}
	}
	for t, q := range observed {
		p := &s.Points[int(t.Sub(first)/week)]
		if p.Missing {
			p.Missing = false
			p.Quantity = q
		} else {
			p.Quantity += q
		}
	}
	return s
}

func observedRange(metrics ...map[time.Time]float64) (first, last time.Time, ok bool) {
	for _, m := range metrics {
		for t := range m {
			if !ok {
				first, last, ok = t, t, true
				continue
			}
			if t.Before(first) {
				first = t
			}
			if t.After(last) {
				last = t
			}
		}
	}
	return first, last, ok
}

func groupByKey[T any](rows []T, extract func(T) (domain.SeriesKey, time.Time, float64)) map[domain.SeriesKey]map[time.Time]float64 {
	out := make(map[domain.SeriesKey]map[time.Time]float64)
	for _, row := range rows {
		key, t, q := extract(row)
		if out[key] == nil {
			out[key] = make(map[time.Time]float64)
		}
		// Duplicate rows for the same period accumulate.
		out[key][t] += q
	}
	return out
}

func tailMean(values []float64, window int) float64 {
	tail := tail(values, window)
	if len(tail) == 0 {
		return 0
	}
	return stat.Mean(tail, nil)
}

func tailStd(values []float64, window int) float64 {
	tail := tail(values, window)
	if len(tail) < 2 {
		return 0
	}
	return stat.StdDev(tail, nil)
}

func tail(values []float64, window int) []float64 {
	if window <= 0 || len(values) <= window {
		return values
	}
	return values[len(values)-window:]
}

// SortedKeys returns the series keys in deterministic lexical order.
func SortedKeys(m map[domain.SeriesKey]*SeriesFeatures) []domain.SeriesKey {
	keys := make([]domain.SeriesKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
