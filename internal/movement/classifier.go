package movement

import (
	"math"
	"time"

	"github.com/andresuchdata/skuwatch/internal/config"
	"github.com/andresuchdata/skuwatch/internal/dataset"
	"github.com/andresuchdata/skuwatch/internal/domain"
	"github.com/andresuchdata/skuwatch/internal/features"
)

// Classifier assigns each series an inventory movement category from the
// age of its last positive sale, with a risk score that grows with idle
// time and is boosted for shelf-life exposure.
type Classifier struct {
	cfg config.MovementConfig
}

func NewClassifier(cfg config.MovementConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify computes the movement status for one series as of the run date.
// A series that never recorded a sale is dead stock from its first
// observed inventory date.
func (c *Classifier) Classify(f *features.SeriesFeatures, item *dataset.Item, asOf time.Time) domain.MovementStatus {
	status := domain.MovementStatus{
		Key:            f.Key,
		OnHandQuantity: f.CurrentOnHand,
	}

	if f.LastSaleDate != nil {
		status.DaysSinceLastMovement = daysBetween(*f.LastSaleDate, asOf)
		status.Category = c.categorize(status.DaysSinceLastMovement)
	} else {
		status.NeverSold = true
		status.DaysSinceLastMovement = daysBetween(f.FirstObserved, asOf)
		status.Category = domain.MovementDeadStock
	}

	status.ShelfLifeAtRisk = c.shelfLifeAtRisk(status, item)
	status.RiskScore = c.riskScore(status)

	return status
}

// categorize maps idle days onto the ordered category ladder. Band lower
// bounds are inclusive.
func (c *Classifier) categorize(days int) domain.MovementCategory {
	switch {
	case days < c.cfg.SlowMovingDays:
		return domain.MovementActive
	case days < c.cfg.NonMovingDays:
		return domain.MovementSlowMoving
	case days < c.cfg.DeadStockDays:
		return domain.MovementNonMoving
	default:
		return domain.MovementDeadStock
	}
}

// shelfLifeAtRisk flags idle stock whose idle time has consumed more than
// the configured fraction of the item's shelf life.
func (c *Classifier) shelfLifeAtRisk(status domain.MovementStatus, item *dataset.Item) bool {
	if item == nil || item.ShelfLifeDays <= 0 || status.OnHandQuantity <= 0 {
		return false
	}
	return float64(status.DaysSinceLastMovement) > float64(item.ShelfLifeDays)*c.cfg.ShelfLifeRiskRatio
}

// riskScore scales linearly with idle days up to the dead-stock threshold,
// then saturates at 100. The shelf-life boost is applied before the cap.
func (c *Classifier) riskScore(status domain.MovementStatus) float64 {
	score := float64(status.DaysSinceLastMovement) / float64(c.cfg.DeadStockDays) * 100
	if status.ShelfLifeAtRisk {
		score += c.cfg.ShelfLifeBoost
	}
	return math.Min(score, 100)
}

func daysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}
