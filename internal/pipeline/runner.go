package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/skuwatch/internal/alerts"
	"github.com/andresuchdata/skuwatch/internal/config"
	"github.com/andresuchdata/skuwatch/internal/dataset"
	"github.com/andresuchdata/skuwatch/internal/detect"
	"github.com/andresuchdata/skuwatch/internal/domain"
	"github.com/andresuchdata/skuwatch/internal/features"
	"github.com/andresuchdata/skuwatch/internal/movement"
	"github.com/andresuchdata/skuwatch/internal/scoring"
	"github.com/andresuchdata/skuwatch/internal/segment"
)

// SkippedSeries records one series that could not complete a stage.
// Skips never abort the run.
type SkippedSeries struct {
	Key    domain.SeriesKey `json:"key"`
	Stage  string           `json:"stage"`
	Reason string           `json:"reason"`
}

// RunResult holds the complete output of one analysis run, every slice
// sorted by series key (alerts by priority first).
type RunResult struct {
	AnalysisDate time.Time                   `json:"analysis_date"`
	Shifts       []domain.DemandShiftResult  `json:"shifts"`
	Movements    []domain.MovementStatus     `json:"movements"`
	Segments     []domain.SegmentationResult `json:"segments"`
	Scores       []domain.RiskScore          `json:"scores"`
	Alerts       []domain.Alert              `json:"alerts"`
	Skipped      []SkippedSeries             `json:"skipped"`
}

// Runner wires the analytic stages together and fans work out across a
// bounded worker pool. The same snapshot and configuration always produce
// the same RunResult.
type Runner struct {
	cfg        *config.Config
	builder    *features.Builder
	detector   *detect.Detector
	classifier *movement.Classifier
	segmenter  *segment.Engine
	scorer     *scoring.Scorer
	generator  *alerts.Generator
}

func NewRunner(cfg *config.Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &Runner{
		cfg:        cfg,
		builder:    features.NewBuilder(cfg.Features),
		detector:   detect.NewDetector(cfg.DemandShift),
		classifier: movement.NewClassifier(cfg.Movement),
		segmenter:  segment.NewEngine(cfg.Segmentation),
		scorer:     scoring.NewScorer(cfg.Scoring),
		generator:  alerts.NewGenerator(cfg.Alerts),
	}, nil
}

// seriesOutput is the per-key result of one worker unit.
type seriesOutput struct {
	key      domain.SeriesKey
	shift    *domain.DemandShiftResult
	movement *domain.MovementStatus
	score    *domain.RiskScore
	skips    []SkippedSeries
}

// Run executes the full analysis over one snapshot. Per-series failures
// become Skipped entries; only context cancellation aborts the run.
func (r *Runner) Run(ctx context.Context, snap *dataset.Snapshot) (*RunResult, error) {
	start := time.Now()
	asOf := snap.ResolveAnalysisDate()
	if asOf.IsZero() {
		return nil, errors.New("snapshot has no observations to resolve an analysis date from")
	}

	feats := r.builder.Build(snap)
	keys := features.SortedKeys(feats)

	// Segmentation ranks every series against the total volume, so it runs
	// once globally before the per-series fan-out.
	segments := r.segmenter.Segment(feats)
	segmentByKey := make(map[domain.SeriesKey]*domain.SegmentationResult, len(segments))
	for i := range segments {
		segmentByKey[segments[i].Key] = &segments[i]
	}

	result := &RunResult{
		AnalysisDate: asOf,
		Segments:     segments,
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Pipeline.Workers)

	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			out := r.analyzeSeries(key, feats[key], segmentByKey[key], snap, asOf)

			mu.Lock()
			defer mu.Unlock()
			if out.shift != nil {
				result.Shifts = append(result.Shifts, *out.shift)
			}
			if out.movement != nil {
				result.Movements = append(result.Movements, *out.movement)
			}
			if out.score != nil {
				result.Scores = append(result.Scores, *out.score)
			}
			result.Skipped = append(result.Skipped, out.skips...)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze series: %w", err)
	}

	sortByKey(result.Shifts, func(s domain.DemandShiftResult) domain.SeriesKey { return s.Key })
	sortByKey(result.Movements, func(m domain.MovementStatus) domain.SeriesKey { return m.Key })
	sortByKey(result.Scores, func(s domain.RiskScore) domain.SeriesKey { return s.Key })
	sort.Slice(result.Skipped, func(i, j int) bool {
		if result.Skipped[i].Key != result.Skipped[j].Key {
			return result.Skipped[i].Key.Less(result.Skipped[j].Key)
		}
		return result.Skipped[i].Stage < result.Skipped[j].Stage
	})

	result.Alerts = r.generator.Generate(alertInputs(result))

	log.Info().
		Int("series", len(keys)).
		Int("shifts", countDetected(result.Shifts)).
		Int("alerts", len(result.Alerts)).
		Int("skipped", len(result.Skipped)).
		Dur("elapsed", time.Since(start)).
		Time("analysis_date", asOf).
		Msg("analysis run complete")

	return result, nil
}

// analyzeSeries runs the per-key stages. Each stage failure is recorded
// and the remaining stages still run with whatever inputs are available.
func (r *Runner) analyzeSeries(key domain.SeriesKey, f *features.SeriesFeatures, seg *domain.SegmentationResult, snap *dataset.Snapshot, asOf time.Time) seriesOutput {
	out := seriesOutput{key: key}

	shift, err := r.detector.Detect(f)
	if err != nil {
		out.skips = append(out.skips, SkippedSeries{Key: key, Stage: "demand_shift", Reason: err.Error()})
	} else {
		out.shift = &shift
	}

	var item *dataset.Item
	if it, ok := snap.Item(key.ItemID); ok {
		item = &it
	}

	mv := r.classifier.Classify(f, item, asOf)
	out.movement = &mv

	var policy *dataset.ReorderPolicy
	if p, ok := snap.Policy(key); ok {
		policy = &p
	}

	score := r.scorer.Score(scoring.Inputs{
		Key:      key,
		Shift:    out.shift,
		Movement: out.movement,
		Segment:  seg,
		Item:     item,
		Policy:   policy,
		Features: f,
		AsOf:     asOf,
	})
	out.score = &score

	return out
}

// alertInputs joins the sorted result slices back into per-series alert
// material.
func alertInputs(result *RunResult) []alerts.Input {
	shiftByKey := make(map[domain.SeriesKey]*domain.DemandShiftResult, len(result.Shifts))
	for i := range result.Shifts {
		shiftByKey[result.Shifts[i].Key] = &result.Shifts[i]
	}
	movementByKey := make(map[domain.SeriesKey]*domain.MovementStatus, len(result.Movements))
	for i := range result.Movements {
		movementByKey[result.Movements[i].Key] = &result.Movements[i]
	}
	segmentByKey := make(map[domain.SeriesKey]*domain.SegmentationResult, len(result.Segments))
	for i := range result.Segments {
		segmentByKey[result.Segments[i].Key] = &result.Segments[i]
	}

	inputs := make([]alerts.Input, 0, len(result.Scores))
	for _, score := range result.Scores {
		inputs = append(inputs, alerts.Input{
			Score:    score,
			Shift:    shiftByKey[score.Key],
			Movement: movementByKey[score.Key],
			Segment:  segmentByKey[score.Key],
		})
	}
	return inputs
}

func countDetected(shifts []domain.DemandShiftResult) int {
	n := 0
	for _, s := range shifts {
		if s.ShiftDetected {
			n++
		}
	}
	return n
}

func sortByKey[T any](items []T, keyOf func(T) domain.SeriesKey) {
	sort.Slice(items, func(i, j int) bool { return keyOf(items[i]).Less(keyOf(items[j])) })
}
