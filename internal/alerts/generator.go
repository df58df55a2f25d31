package alerts

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/andresuchdata/skuwatch/internal/config"
	"github.com/andresuchdata/skuwatch/internal/domain"
	"github.com/andresuchdata/skuwatch/internal/scoring"
)

// Input is the per-series material an alert is built from. Score is
// required; the component results are optional context for typing and
// messaging.
type Input struct {
	Score    domain.RiskScore
	Shift    *domain.DemandShiftResult
	Movement *domain.MovementStatus
	Segment  *domain.SegmentationResult
}

// Generator turns risk scores into prioritized alerts. At most one alert
// is emitted per series per run.
type Generator struct {
	cfg config.AlertConfig
	now func() time.Time
}

func NewGenerator(cfg config.AlertConfig) *Generator {
	return &Generator{cfg: cfg, now: time.Now}
}

// WithClock overrides the alert timestamp source. Tests use this for
// deterministic CreatedAt values.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds at most one alert per input, drops anything below the
// configured minimum priority, and returns the rest sorted by priority
// rank then series key.
func (g *Generator) Generate(inputs []Input) []domain.Alert {
	out := make([]domain.Alert, 0, len(inputs))
	for _, in := range inputs {
		priority := g.Priority(in.Score.Score)
		if priority.Rank() > g.cfg.MinPriority.Rank() {
			continue
		}

		out = append(out, domain.Alert{
			AlertID:   uuid.NewString(),
			Key:       in.Score.Key,
			AlertType: alertType(in),
			Priority:  priority,
			Message:   message(in),
			RiskScore: in.Score.Score,
			CreatedAt: g.now().UTC(),
			IsActive:  true,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() < out[j].Priority.Rank()
		}
		return out[i].Key.Less(out[j].Key)
	})

	return out
}

// Priority maps a composite score onto the alert priority bands.
func (g *Generator) Priority(score float64) domain.AlertPriority {
	switch {
	case score >= g.cfg.P1Threshold:
		return domain.PriorityP1Critical
	case score >= g.cfg.P2Threshold:
		return domain.PriorityP2High
	case score >= g.cfg.P3Threshold:
		return domain.PriorityP3Medium
	case score >= g.cfg.P4Threshold:
		return domain.PriorityP4Low
	default:
		return domain.PriorityP5Info
	}
}

// alertType names the alert after the dominant risk factor and its
// context, falling back to COMPOSITE_RISK when no single factor stands
// out.
func alertType(in Input) domain.AlertType {
	switch in.Score.PrimaryFactor {
	case scoring.FactorDemandShift:
		if in.Shift != nil && in.Shift.Direction == domain.ShiftIncrease {
			return domain.AlertDemandSurge
		}
		return domain.AlertDemandDrop
	case scoring.FactorMovement:
		if in.Movement != nil {
			switch in.Movement.Category {
			case domain.MovementDeadStock, domain.MovementNonMoving:
				return domain.AlertDeadStock
			case domain.MovementSlowMoving:
				return domain.AlertSlowMoving
			}
		}
		return domain.AlertSlowMoving
	case scoring.FactorShelfLife:
		return domain.AlertShelfLifeRisk
	case scoring.FactorInventory:
		return domain.AlertOverstock
	}
	return domain.AlertCompositeRisk
}

// message renders the human-readable alert line from the component
// results.
func message(in Input) string {
	key := in.Score.Key.String()

	switch alertType(in) {
	case domain.AlertDemandSurge:
		return fmt.Sprintf("Demand for %s surged %.0f%% above baseline (%s)",
			key, math.Abs(in.Shift.Magnitude)*100, in.Shift.Method)
	case domain.AlertDemandDrop:
		if in.Shift != nil {
			return fmt.Sprintf("Demand for %s dropped %.0f%% below baseline (%s)",
				key, math.Abs(in.Shift.Magnitude)*100, in.Shift.Method)
		}
		return fmt.Sprintf("Demand for %s is declining", key)
	case domain.AlertDeadStock:
		if in.Movement != nil {
			return fmt.Sprintf("%s has not moved in %d days with %.0f units on hand",
				key, in.Movement.DaysSinceLastMovement, in.Movement.OnHandQuantity)
		}
		return fmt.Sprintf("%s is dead stock", key)
	case domain.AlertSlowMoving:
		if in.Movement != nil {
			return fmt.Sprintf("%s is slow moving, last sale %d days ago",
				key, in.Movement.DaysSinceLastMovement)
		}
		return fmt.Sprintf("%s is slow moving", key)
	case domain.AlertShelfLifeRisk:
		return fmt.Sprintf("%s stock is approaching end of shelf life", key)
	case domain.AlertOverstock:
		return fmt.Sprintf("%s is overstocked relative to its reorder policy", key)
	}

	return fmt.Sprintf("%s composite risk score %.0f, review recommended: %s",
		key, in.Score.Score, in.Score.Recommendation)
}
