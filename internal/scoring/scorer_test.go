package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/skuwatch/internal/config"
	"github.com/andresuchdata/skuwatch/internal/dataset"
	"github.com/andresuchdata/skuwatch/internal/domain"
	"github.com/andresuchdata/skuwatch/internal/features"
)

var (
	testKey = domain.SeriesKey{ItemID: "SKU-1", LocationID: "DC-1"}
	asOf    = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
)

func TestScorer_NoInputsScoresZero(t *testing.T) {
	s := NewScorer(config.Default().Scoring)

	score := s.Score(Inputs{Key: testKey, AsOf: asOf})

	assert.Zero(t, score.Score)
	assert.Empty(t, score.FactorBreakdown)
	assert.Empty(t, score.PrimaryFactor)
	assert.Equal(t, "No action required", score.Recommendation)
}

func TestScorer_DeadStockDominates(t *testing.T) {
	s := NewScorer(config.Default().Scoring)

	movement := &domain.MovementStatus{
		Key:            testKey,
		Category:       domain.MovementDeadStock,
		OnHandQuantity: 200,
	}

	score := s.Score(Inputs{Key: testKey, Movement: movement, AsOf: asOf})

	// The only present factor absorbs the full weight under renormalization.
	assert.InDelta(t, 100.0, score.Score, 0.0001)
	assert.Equal(t, FactorMovement, score.PrimaryFactor)
	assert.Equal(t, "Liquidate or write off dead stock", score.Recommendation)
	assert.InDelta(t, 1.0, score.FactorBreakdown[FactorMovement], 0.0001)
}

func TestScorer_MissingZeroPolicyKeepsOriginalWeights(t *testing.T) {
	cfg := config.Default().Scoring
	cfg.MissingFactorPolicy = config.MissingZero
	s := NewScorer(cfg)

	movement := &domain.MovementStatus{
		Key:            testKey,
		Category:       domain.MovementDeadStock,
		OnHandQuantity: 200,
	}

	score := s.Score(Inputs{Key: testKey, Movement: movement, AsOf: asOf})

	// Absent factors contribute zero, so the score is capped at the
	// movement weight.
	assert.InDelta(t, 30.0, score.Score, 0.0001)
}

func TestScorer_DemandDropWeightedAboveSurge(t *testing.T) {
	s := NewScorer(config.Default().Scoring)

	drop := &domain.DemandShiftResult{
		Key:           testKey,
		ShiftDetected: true,
		Direction:     domain.ShiftDecrease,
		Magnitude:     -0.65,
		Confidence:    0.667,
	}
	surge := &domain.DemandShiftResult{
		Key:           testKey,
		ShiftDetected: true,
		Direction:     domain.ShiftIncrease,
		Magnitude:     0.65,
		Confidence:    0.667,
	}

	dropScore := s.Score(Inputs{Key: testKey, Shift: drop, AsOf: asOf})
	surgeScore := s.Score(Inputs{Key: testKey, Shift: surge, AsOf: asOf})

	assert.Greater(t, dropScore.Score, surgeScore.Score)
	// 0.65*0.5 + 0.667*0.3, times the decrease multiplier, renormalized
	// onto the only present factor.
	assert.InDelta(t, (0.65*0.5+0.667*0.3)*1.2*100, dropScore.Score, 0.01)
	assert.Equal(t, "Reduce reorder quantities and pause open orders", dropScore.Recommendation)
	assert.Equal(t, "Increase safety stock and expedite replenishment", surgeScore.Recommendation)
}

func TestScorer_UndetectedShiftContributesZero(t *testing.T) {
	s := NewScorer(config.Default().Scoring)

	stable := &domain.DemandShiftResult{
		Key:       testKey,
		Direction: domain.ShiftStable,
		Magnitude: 0.05,
	}

	score := s.Score(Inputs{Key: testKey, Shift: stable, AsOf: asOf})

	require.Contains(t, score.FactorBreakdown, FactorDemandShift)
	assert.Zero(t, score.FactorBreakdown[FactorDemandShift])
	assert.Zero(t, score.Score)
}

func TestScorer_MovementWithoutStockIsNoRisk(t *testing.T) {
	s := NewScorer(config.Default().Scoring)

	movement := &domain.MovementStatus{
		Key:            testKey,
		Category:       domain.MovementDeadStock,
		OnHandQuantity: 0,
	}

	score := s.Score(Inputs{Key: testKey, Movement: movement, AsOf: asOf})
	assert.Zero(t, score.FactorBreakdown[FactorMovement])
}

func TestScorer_ShelfLifeBands(t *testing.T) {
	s := NewScorer(config.Default().Scoring)

	movement := &domain.MovementStatus{Key: testKey, OnHandQuantity: 50, Category: domain.MovementActive}

	tests := []struct {
		name       string
		launchDays int
		shelfLife  int
		want       float64
	}{
		{name: "fresh stock", launchDays: 10, shelfLife: 100, want: 0},
		{name: "quarter consumed", launchDays: 30, shelfLife: 100, want: 0.2},
		{name: "half consumed", launchDays: 55, shelfLife: 100, want: 0.5},
		{name: "three quarters consumed", launchDays: 80, shelfLife: 100, want: 0.8},
		{name: "expired", launchDays: 120, shelfLife: 100, want: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &dataset.Item{
				ItemID:        testKey.ItemID,
				ShelfLifeDays: tt.shelfLife,
				LaunchDate:    asOf.AddDate(0, 0, -tt.launchDays),
			}

			score := s.Score(Inputs{Key: testKey, Movement: movement, Item: item, AsOf: asOf})
			require.Contains(t, score.FactorBreakdown, FactorShelfLife)
			assert.InDelta(t, tt.want, score.FactorBreakdown[FactorShelfLife], 0.0001)
		})
	}
}

func TestScorer_ShelfLifeAbsentWithoutItem(t *testing.T) {
	s := NewScorer(config.Default().Scoring)

	score := s.Score(Inputs{Key: testKey, AsOf: asOf})
	assert.NotContains(t, score.FactorBreakdown, FactorShelfLife)

	item := &dataset.Item{ItemID: testKey.ItemID} // no shelf life configured
	score = s.Score(Inputs{Key: testKey, Item: item, AsOf: asOf})
	assert.NotContains(t, score.FactorBreakdown, FactorShelfLife)
}

func TestScorer_LifecycleCategories(t *testing.T) {
	s := NewScorer(config.Default().Scoring)

	tests := []struct {
		category string
		want     float64
	}{
		{category: "Declining", want: 0.8},
		{category: "SlowMover", want: 0.6},
		{category: "Seasonal", want: 0.3},
		{category: "NewLaunch", want: 0.2},
		{category: "Staple", want: 0.1},
		{category: "Snacks", want: 0.25}, // unknown category
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			item := &dataset.Item{ItemID: testKey.ItemID, Category: tt.category}
			score := s.Score(Inputs{Key: testKey, Item: item, AsOf: asOf})
			assert.InDelta(t, tt.want, score.FactorBreakdown[FactorLifecycle], 0.0001)
		})
	}
}

func TestScorer_ObsoleteDateRaisesLifecycleRisk(t *testing.T) {
	s := NewScorer(config.Default().Scoring)

	obsolete := asOf.AddDate(0, 1, 0)
	item := &dataset.Item{ItemID: testKey.ItemID, Category: "Declining", ObsoleteDate: &obsolete}

	score := s.Score(Inputs{Key: testKey, Item: item, AsOf: asOf})
	assert.InDelta(t, 1.0, score.FactorBreakdown[FactorLifecycle], 0.0001)
	assert.Equal(t, "Plan phase-out or discontinuation", score.Recommendation)
}

func TestScorer_InventoryFactor(t *testing.T) {
	s := NewScorer(config.Default().Scoring)

	policy := &dataset.ReorderPolicy{ItemID: testKey.ItemID, LocationID: testKey.LocationID, MinQty: 20, MaxQty: 100}
	f := &features.SeriesFeatures{Key: testKey, CurrentOnHand: 250, WeeksOfSupply: 30}

	score := s.Score(Inputs{Key: testKey, Policy: policy, Features: f, AsOf: asOf})

	// Overstock contributes its capped half, supply the excess over 26 weeks.
	want := 0.5 + (30.0-26.0)/26.0*0.5
	assert.InDelta(t, want, score.FactorBreakdown[FactorInventory], 0.0001)
	assert.Equal(t, "Rebalance stock toward the reorder policy band", score.Recommendation)
}

func TestScorer_InventoryWithinPolicy(t *testing.T) {
	s := NewScorer(config.Default().Scoring)

	policy := &dataset.ReorderPolicy{ItemID: testKey.ItemID, LocationID: testKey.LocationID, MinQty: 20, MaxQty: 100}
	f := &features.SeriesFeatures{Key: testKey, CurrentOnHand: 60, WeeksOfSupply: 4}

	score := s.Score(Inputs{Key: testKey, Policy: policy, Features: f, AsOf: asOf})
	assert.Zero(t, score.FactorBreakdown[FactorInventory])
}

func TestScorer_ScoreStaysInRange(t *testing.T) {
	s := NewScorer(config.Default().Scoring)

	shift := &domain.DemandShiftResult{
		Key:           testKey,
		ShiftDetected: true,
		Direction:     domain.ShiftDecrease,
		Magnitude:     -1,
		Confidence:    1,
	}
	movement := &domain.MovementStatus{Key: testKey, Category: domain.MovementDeadStock, OnHandQuantity: 500}
	obsolete := asOf.AddDate(0, -1, 0)
	item := &dataset.Item{
		ItemID:        testKey.ItemID,
		Category:      "Declining",
		ShelfLifeDays: 30,
		LaunchDate:    asOf.AddDate(0, 0, -200),
		ObsoleteDate:  &obsolete,
	}
	policy := &dataset.ReorderPolicy{MaxQty: 10}
	f := &features.SeriesFeatures{Key: testKey, CurrentOnHand: 500, WeeksOfSupply: 200}

	score := s.Score(Inputs{
		Key: testKey, Shift: shift, Movement: movement,
		Item: item, Policy: policy, Features: f, AsOf: asOf,
	})

	assert.LessOrEqual(t, score.Score, 100.0)
	assert.GreaterOrEqual(t, score.Score, 0.0)
	assert.Len(t, score.FactorBreakdown, 5)
	for name, v := range score.FactorBreakdown {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}
}
