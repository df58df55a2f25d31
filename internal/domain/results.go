package domain

import "time"

// ShiftDirection is the direction of a detected demand shift.
type ShiftDirection string

const (
	ShiftIncrease ShiftDirection = "INCREASE"
	ShiftDecrease ShiftDirection = "DECREASE"
	ShiftStable   ShiftDirection = "STABLE"
)

// DetectionMethod names the statistical technique that produced a shift
// verdict. COMBINED means at least two methods fired in agreement.
type DetectionMethod string

const (
	MethodCUSUM       DetectionMethod = "CUSUM"
	MethodMACrossover DetectionMethod = "MA_CROSSOVER"
	MethodZScore      DetectionMethod = "ZSCORE"
	MethodCombined    DetectionMethod = "COMBINED"
)

// DemandShiftResult is the per-series verdict of the demand shift detector.
// Direction is STABLE if and only if no shift was detected.
type DemandShiftResult struct {
	Key             SeriesKey       `json:"key"`
	ShiftDetected   bool            `json:"shift_detected"`
	Direction       ShiftDirection  `json:"direction"`
	Magnitude       float64         `json:"magnitude"`        // relative change, e.g. -0.65 for a 65% drop
	Confidence      float64         `json:"confidence"`       // [0,1], agreement across methods
	Method          DetectionMethod `json:"method"`
	DetectionPeriod time.Time       `json:"detection_period"` // period end of the latest observation
	BaselineDemand  float64         `json:"baseline_demand"`
	CurrentDemand   float64         `json:"current_demand"`
}

// MovementCategory classifies inventory movement health, ordered by
// ascending severity.
type MovementCategory string

const (
	MovementActive     MovementCategory = "ACTIVE"
	MovementSlowMoving MovementCategory = "SLOW_MOVING"
	MovementNonMoving  MovementCategory = "NON_MOVING"
	MovementDeadStock  MovementCategory = "DEAD_STOCK"
)

var movementSeverity = map[MovementCategory]int{
	MovementActive:     0,
	MovementSlowMoving: 1,
	MovementNonMoving:  2,
	MovementDeadStock:  3,
}

// Severity returns the rank of the category, ACTIVE=0 .. DEAD_STOCK=3.
func (c MovementCategory) Severity() int {
	return movementSeverity[c]
}

// MovementStatus is the per-series output of the non-moving classifier.
type MovementStatus struct {
	Key                   SeriesKey        `json:"key"`
	DaysSinceLastMovement int              `json:"days_since_last_movement"`
	Category              MovementCategory `json:"category"`
	OnHandQuantity        float64          `json:"on_hand_quantity"`
	RiskScore             float64          `json:"risk_score"` // [0,100]
	ShelfLifeAtRisk       bool             `json:"shelf_life_at_risk"`
	NeverSold             bool             `json:"never_sold"`
}

// ABCClass ranks a series by its contribution to total volume.
type ABCClass string

const (
	ClassA ABCClass = "A"
	ClassB ABCClass = "B"
	ClassC ABCClass = "C"
)

// XYZClass ranks a series by demand variability.
type XYZClass string

const (
	ClassX XYZClass = "X"
	ClassY XYZClass = "Y"
	ClassZ XYZClass = "Z"
)

// SegmentationResult is the ABC-XYZ classification for one series.
type SegmentationResult struct {
	Key                    SeriesKey `json:"key"`
	ABCClass               ABCClass  `json:"abc_class"`
	XYZClass               XYZClass  `json:"xyz_class"`
	Segment                string    `json:"segment"` // e.g. "AX", "CZ"
	TotalVolume            float64   `json:"total_volume"`
	CoefficientOfVariation float64   `json:"coefficient_of_variation"`
	CumulativeVolumeShare  float64   `json:"cumulative_volume_share"`
}

// RiskScore is the composite risk verdict for one series. FactorBreakdown
// holds the normalized [0,1] value of every factor that was present; the
// weighted sum of the breakdown equals Score/100.
type RiskScore struct {
	Key             SeriesKey          `json:"key"`
	Score           float64            `json:"score"` // [0,100]
	FactorBreakdown map[string]float64 `json:"factor_breakdown"`
	PrimaryFactor   string             `json:"primary_factor"`
	Recommendation  string             `json:"recommendation"`
}

// AlertPriority orders alerts by urgency, P1 most severe.
type AlertPriority string

const (
	PriorityP1Critical AlertPriority = "P1_CRITICAL"
	PriorityP2High     AlertPriority = "P2_HIGH"
	PriorityP3Medium   AlertPriority = "P3_MEDIUM"
	PriorityP4Low      AlertPriority = "P4_LOW"
	PriorityP5Info     AlertPriority = "P5_INFO"
)

var priorityRank = map[AlertPriority]int{
	PriorityP1Critical: 0,
	PriorityP2High:     1,
	PriorityP3Medium:   2,
	PriorityP4Low:      3,
	PriorityP5Info:     4,
}

// Rank returns the sort rank of the priority, P1=0 .. P5=4.
func (p AlertPriority) Rank() int {
	return priorityRank[p]
}

// AlertType names what triggered an alert.
type AlertType string

const (
	AlertDemandSurge   AlertType = "DEMAND_SURGE"
	AlertDemandDrop    AlertType = "DEMAND_DROP"
	AlertDeadStock     AlertType = "DEAD_STOCK"
	AlertSlowMoving    AlertType = "SLOW_MOVING"
	AlertShelfLifeRisk AlertType = "SHELF_LIFE_RISK"
	AlertOverstock     AlertType = "OVERSTOCK"
	AlertCompositeRisk AlertType = "COMPOSITE_RISK"
)

// Alert is a prioritized, human-readable notification produced from a
// risk score and its underlying component results.
type Alert struct {
	AlertID   string        `json:"alert_id" db:"alert_id"`
	Key       SeriesKey     `json:"key"`
	AlertType AlertType     `json:"alert_type" db:"alert_type"`
	Priority  AlertPriority `json:"priority" db:"priority"`
	Message   string        `json:"message" db:"message"`
	RiskScore float64       `json:"risk_score" db:"risk_score"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	IsActive  bool          `json:"is_active" db:"is_active"`
}
