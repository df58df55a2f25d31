package scoring

import (
	"math"
	"time"

	"github.com/andresuchdata/skuwatch/internal/config"
	"github.com/andresuchdata/skuwatch/internal/dataset"
	"github.com/andresuchdata/skuwatch/internal/domain"
	"github.com/andresuchdata/skuwatch/internal/features"
)

// Factor names used in the risk score breakdown.
const (
	FactorDemandShift = "demand_shift"
	FactorMovement    = "movement"
	FactorShelfLife   = "shelf_life"
	FactorLifecycle   = "lifecycle"
	FactorInventory   = "inventory"
)

// Inputs bundles everything known about one series at scoring time. Any
// pointer may be nil: absent factors are excluded from the weighted sum
// per the configured missing-factor policy.
type Inputs struct {
	Key      domain.SeriesKey
	Shift    *domain.DemandShiftResult
	Movement *domain.MovementStatus
	Segment  *domain.SegmentationResult
	Item     *dataset.Item
	Policy   *dataset.ReorderPolicy
	Features *features.SeriesFeatures
	AsOf     time.Time
}

// Scorer combines normalized risk factors into one composite score with a
// deterministic recommendation.
type Scorer struct {
	cfg config.ScoringConfig
}

func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the composite risk score for one series. The weighted sum
// of the returned breakdown equals Score/100.
type factor struct {
	name   string
	weight float64
	value  float64
}

func (s *Scorer) Score(in Inputs) domain.RiskScore {
	factors := make([]factor, 0, 5)
	present := func(name string, weight, value float64) {
		factors = append(factors, factor{name: name, weight: weight, value: value})
	}

	if in.Shift != nil {
		present(FactorDemandShift, s.cfg.DemandShiftWeight, s.demandShiftFactor(in.Shift))
	}
	if in.Movement != nil {
		present(FactorMovement, s.cfg.MovementWeight, s.movementFactor(in.Movement))
	}
	if v, ok := s.shelfLifeFactor(in.Item, in.Movement, in.AsOf); ok {
		present(FactorShelfLife, s.cfg.ShelfLifeWeight, v)
	}
	if v, ok := s.lifecycleFactor(in.Item); ok {
		present(FactorLifecycle, s.cfg.LifecycleWeight, v)
	}
	if v, ok := s.inventoryFactor(in.Policy, in.Features); ok {
		present(FactorInventory, s.cfg.InventoryWeight, v)
	}

	score := domain.RiskScore{
		Key:             in.Key,
		FactorBreakdown: make(map[string]float64, len(factors)),
	}

	var weightSum float64
	for _, f := range factors {
		weightSum += f.weight
	}

	var total float64
	for _, f := range factors {
		w := f.weight
		if s.cfg.MissingFactorPolicy == config.MissingRenormalize && weightSum > 0 {
			w = f.weight / weightSum
		}
		total += w * f.value
		score.FactorBreakdown[f.name] = f.value
	}

	score.Score = math.Max(0, math.Min(100, total*100))
	score.PrimaryFactor = primaryFactor(factors)
	score.Recommendation = s.recommend(score.PrimaryFactor, in)

	return score
}

// demandShiftFactor blends shift magnitude and confidence, weighting
// demand drops above surges.
func (s *Scorer) demandShiftFactor(shift *domain.DemandShiftResult) float64 {
	if !shift.ShiftDetected {
		return 0
	}
	v := math.Min(math.Abs(shift.Magnitude), 1)*0.5 + shift.Confidence*0.3
	if shift.Direction == domain.ShiftDecrease {
		v *= s.cfg.DecreaseMultiplier
	}
	return clamp01(v)
}

// movementFactor maps the category ladder monotonically onto [0,1]. Idle
// classification without stock on hand carries no inventory risk.
func (s *Scorer) movementFactor(m *domain.MovementStatus) float64 {
	if m.OnHandQuantity <= 0 {
		return 0
	}
	switch m.Category {
	case domain.MovementDeadStock:
		return 1.0
	case domain.MovementNonMoving:
		return 0.75
	case domain.MovementSlowMoving:
		return 0.40
	default:
		return clamp01(m.RiskScore / 100 * 0.2)
	}
}

// shelfLifeFactor grows with the consumed fraction of the item's shelf
// life. Absent when the item or its shelf life is unknown, or no stock is
// held.
func (s *Scorer) shelfLifeFactor(item *dataset.Item, m *domain.MovementStatus, asOf time.Time) (float64, bool) {
	if item == nil || item.ShelfLifeDays <= 0 || item.LaunchDate.IsZero() {
		return 0, false
	}
	if m == nil || m.OnHandQuantity <= 0 {
		return 0, true
	}

	consumed := asOf.Sub(item.LaunchDate).Hours() / 24 / float64(item.ShelfLifeDays)
	switch {
	case consumed >= 1.0:
		return 1.0, true
	case consumed >= 0.75:
		return 0.8, true
	case consumed >= 0.5:
		return 0.5, true
	case consumed >= 0.25:
		return 0.2, true
	default:
		return 0, true
	}
}

var lifecycleRisk = map[string]float64{
	"Declining": 0.8,
	"SlowMover": 0.6,
	"Seasonal":  0.3,
	"NewLaunch": 0.2,
	"Staple":    0.1,
}

// lifecycleFactor scores the product's lifecycle stage, raised when an
// obsolete date has been set.
func (s *Scorer) lifecycleFactor(item *dataset.Item) (float64, bool) {
	if item == nil || item.Category == "" {
		return 0, false
	}
	v, ok := lifecycleRisk[item.Category]
	if !ok {
		v = 0.25
	}
	if item.ObsoleteDate != nil {
		v += 0.2
	}
	return clamp01(v), true
}

// inventoryFactor measures exposure from the stock position: quantity
// above the reorder maximum and excessive weeks of supply.
func (s *Scorer) inventoryFactor(policy *dataset.ReorderPolicy, f *features.SeriesFeatures) (float64, bool) {
	if policy == nil || f == nil {
		return 0, false
	}
	if f.CurrentOnHand <= 0 {
		return 0, true
	}

	var overstock float64
	if policy.MaxQty > 0 && f.CurrentOnHand > policy.MaxQty {
		overstock = math.Min((f.CurrentOnHand-policy.MaxQty)/policy.MaxQty*0.5, 0.5)
	}

	var supply float64
	if !math.IsInf(f.WeeksOfSupply, 1) && f.WeeksOfSupply > 26 {
		supply = math.Min((f.WeeksOfSupply-26)/26*0.5, 0.5)
	} else if math.IsInf(f.WeeksOfSupply, 1) {
		// Stock with no demand at all is maximal supply risk.
		supply = 0.5
	}

	return clamp01(overstock + supply), true
}

func primaryFactor(factors []factor) string {
	best := ""
	bestValue := -1.0
	for _, f := range factors {
		if f.value > bestValue {
			best = f.name
			bestValue = f.value
		}
	}
	return best
}

// recommend maps the dominant factor and its context onto the action table.
func (s *Scorer) recommend(primary string, in Inputs) string {
	switch primary {
	case FactorMovement:
		if in.Movement == nil {
			break
		}
		switch in.Movement.Category {
		case domain.MovementDeadStock:
			return "Liquidate or write off dead stock"
		case domain.MovementNonMoving:
			return "Hold replenishment and review for transfer or promotion"
		case domain.MovementSlowMoving:
			return "Review pricing and promotions to accelerate movement"
		}
		return "Monitor movement"
	case FactorDemandShift:
		if in.Shift != nil && in.Shift.Direction == domain.ShiftDecrease {
			return "Reduce reorder quantities and pause open orders"
		}
		return "Increase safety stock and expedite replenishment"
	case FactorShelfLife:
		return "Clear stock before expiry, consider markdowns"
	case FactorLifecycle:
		return "Plan phase-out or discontinuation"
	case FactorInventory:
		return "Rebalance stock toward the reorder policy band"
	}
	return "No action required"
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
