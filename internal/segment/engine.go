package segment

import (
	"math"
	"sort"

	"github.com/andresuchdata/skuwatch/internal/config"
	"github.com/andresuchdata/skuwatch/internal/domain"
	"github.com/andresuchdata/skuwatch/internal/features"
)

// Engine performs ABC-XYZ classification. ABC needs one global ranking
// pass over all series' volumes before per-series classes can be assigned;
// this is the single synchronization point of the pipeline.
type Engine struct {
	cfg config.SegmentationConfig
}

func NewEngine(cfg config.SegmentationConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Segment classifies every series in the feature set. The result covers
// all series: ABC classes partition the set with no overlaps or omissions.
func (e *Engine) Segment(feats map[domain.SeriesKey]*features.SeriesFeatures) []domain.SegmentationResult {
	type ranked struct {
		key    domain.SeriesKey
		volume float64
		cv     float64
	}

	rows := make([]ranked, 0, len(feats))
	var totalVolume float64
	for key, f := range feats {
		rows = append(rows, ranked{key: key, volume: f.TotalVolume, cv: e.cv(f)})
		totalVolume += f.TotalVolume
	}

	// Descending volume, ties broken by key lexical order for determinism.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].volume != rows[j].volume {
			return rows[i].volume > rows[j].volume
		}
		return rows[i].key.Less(rows[j].key)
	})

	results := make([]domain.SegmentationResult, 0, len(rows))
	var cumulative float64
	for _, row := range rows {
		var share float64
		if totalVolume > 0 {
			share = row.volume / totalVolume
		}
		cumulative += share

		abc := e.abcClass(row.volume, cumulative)
		xyz := e.xyzClass(row.cv, feats[row.key])

		results = append(results, domain.SegmentationResult{
			Key:                    row.key,
			ABCClass:               abc,
			XYZClass:               xyz,
			Segment:                string(abc) + string(xyz),
			TotalVolume:            row.volume,
			CoefficientOfVariation: row.cv,
			CumulativeVolumeShare:  cumulative,
		})
	}

	return results
}

// abcClass maps cumulative volume share to A/B/C. A series that moved no
// volume at all contributes nothing to the ranking and is C outright,
// which also covers the degenerate snapshot where every series is zero.
func (e *Engine) abcClass(volume, cumulativeShare float64) domain.ABCClass {
	switch {
	case volume <= 0:
		return domain.ClassC
	case cumulativeShare <= e.cfg.ABCAPercentile:
		return domain.ClassA
	case cumulativeShare <= e.cfg.ABCBPercentile:
		return domain.ClassB
	default:
		return domain.ClassC
	}
}

// xyzClass buckets by coefficient of variation. Series with zero or
// undefined mean demand are classified Z outright rather than letting an
// undefined cv decide.
func (e *Engine) xyzClass(cv float64, f *features.SeriesFeatures) domain.XYZClass {
	if f.MeanDemand <= 0 || f.TotalVolume <= 0 {
		return domain.ClassZ
	}
	switch {
	case cv < e.cfg.XYZXThreshold:
		return domain.ClassX
	case cv < e.cfg.XYZYThreshold:
		return domain.ClassY
	default:
		return domain.ClassZ
	}
}

// cv is std/mean of weekly demand; zero when the mean is zero or the
// ratio is not finite.
func (e *Engine) cv(f *features.SeriesFeatures) float64 {
	if f.MeanDemand <= 0 {
		return 0
	}
	cv := f.StdDemand / f.MeanDemand
	if math.IsNaN(cv) || math.IsInf(cv, 0) {
		return 0
	}
	return cv
}
