package config

import (
	"fmt"
	"math"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/andresuchdata/skuwatch/internal/domain"
)

// Fill policies for missing reporting periods.
const (
	FillZero    = "zero"    // fill gaps with explicit zero-quantity points
	FillExclude = "exclude" // keep gaps explicit but exclude them from window statistics
)

// Missing-factor policies for the risk scorer.
const (
	MissingRenormalize = "renormalize" // spread absent factors' weights over the present ones
	MissingZero        = "zero"        // treat absent factors as zero contribution
)

type Config struct {
	Features     FeatureConfig
	DemandShift  DemandShiftConfig
	Movement     MovementConfig
	Segmentation SegmentationConfig
	Scoring      ScoringConfig
	Alerts       AlertConfig
	Pipeline     PipelineConfig
	Database     DatabaseConfig
	Export       ExportConfig
}

type FeatureConfig struct {
	FillPolicy         string
	RollingShortWindow int
	RollingLongWindow  int
}

type DemandShiftConfig struct {
	CUSUMThreshold     float64 // in standard-deviation units
	CUSUMSlack         float64
	MAShortWindow      int
	MALongWindow       int
	CrossoverTolerance float64 // relative short-vs-long gap that fires the crossover
	DirectionTolerance float64 // relative gap below which direction is considered stable
	ZScoreThreshold    float64
	MinDataPoints      int
}

type MovementConfig struct {
	SlowMovingDays     int
	NonMovingDays      int
	DeadStockDays      int
	ShelfLifeRiskRatio float64 // fraction of shelf life after which idle stock is at risk
	ShelfLifeBoost     float64 // points added to the movement risk score when at risk
}

type SegmentationConfig struct {
	ABCAPercentile float64 // cumulative volume share boundary for class A
	ABCBPercentile float64 // cumulative volume share boundary for class B
	XYZXThreshold  float64 // cv below this is X
	XYZYThreshold  float64 // cv below this is Y, above is Z
}

type ScoringConfig struct {
	DemandShiftWeight   float64
	MovementWeight      float64
	ShelfLifeWeight     float64
	LifecycleWeight     float64
	InventoryWeight     float64
	DecreaseMultiplier  float64 // demand drops weighted above surges
	MissingFactorPolicy string
}

type AlertConfig struct {
	P1Threshold float64
	P2Threshold float64
	P3Threshold float64
	P4Threshold float64
	MinPriority domain.AlertPriority // alerts below this priority are suppressed
}

type PipelineConfig struct {
	Workers int
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type ExportConfig struct {
	OutputDir string
	S3        S3Config
}

type S3Config struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Default returns the configuration with all analytic defaults. Tests and
// parallel runs with alternate parameter sets start from here.
func Default() *Config {
	return &Config{
		Features: FeatureConfig{
			FillPolicy:         FillZero,
			RollingShortWindow: 4,
			RollingLongWindow:  12,
		},
		DemandShift: DemandShiftConfig{
			CUSUMThreshold:     2.0,
			CUSUMSlack:         0.5,
			MAShortWindow:      4,
			MALongWindow:       12,
			CrossoverTolerance: 0.25,
			DirectionTolerance: 0.10,
			ZScoreThreshold:    2.5,
			MinDataPoints:      8,
		},
		Movement: MovementConfig{
			SlowMovingDays:     60,
			NonMovingDays:      90,
			DeadStockDays:      180,
			ShelfLifeRiskRatio: 0.5,
			ShelfLifeBoost:     20,
		},
		Segmentation: SegmentationConfig{
			ABCAPercentile: 0.80,
			ABCBPercentile: 0.95,
			XYZXThreshold:  0.5,
			XYZYThreshold:  1.0,
		},
		Scoring: ScoringConfig{
			DemandShiftWeight:   0.25,
			MovementWeight:      0.30,
			ShelfLifeWeight:     0.20,
			LifecycleWeight:     0.15,
			InventoryWeight:     0.10,
			DecreaseMultiplier:  1.2,
			MissingFactorPolicy: MissingRenormalize,
		},
		Alerts: AlertConfig{
			P1Threshold: 80,
			P2Threshold: 60,
			P3Threshold: 40,
			P4Threshold: 20,
			MinPriority: domain.PriorityP5Info,
		},
		Pipeline: PipelineConfig{
			Workers: 4,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			DBName:  "skuwatch",
			SSLMode: "disable",
		},
		Export: ExportConfig{
			OutputDir: "./data/output",
		},
	}
}

var (
	once     sync.Once
	instance *Config
	loadErr  error
)

// Load reads configuration from environment variables (and .env if present)
// on top of the defaults, then validates. Invalid configuration is fatal to
// the run: no series is processed with a broken parameter set.
func Load() (*Config, error) {
	once.Do(func() {
		_ = godotenv.Load()

		viper.SetDefault("FEATURES_FILL_POLICY", FillZero)
		viper.SetDefault("FEATURES_ROLLING_SHORT_WINDOW", 4)
		viper.SetDefault("FEATURES_ROLLING_LONG_WINDOW", 12)
		viper.SetDefault("SHIFT_CUSUM_THRESHOLD", 2.0)
		viper.SetDefault("SHIFT_CUSUM_SLACK", 0.5)
		viper.SetDefault("SHIFT_MA_SHORT_WINDOW", 4)
		viper.SetDefault("SHIFT_MA_LONG_WINDOW", 12)
		viper.SetDefault("SHIFT_CROSSOVER_TOLERANCE", 0.25)
		viper.SetDefault("SHIFT_DIRECTION_TOLERANCE", 0.10)
		viper.SetDefault("SHIFT_ZSCORE_THRESHOLD", 2.5)
		viper.SetDefault("SHIFT_MIN_DATA_POINTS", 8)
		viper.SetDefault("MOVEMENT_SLOW_MOVING_DAYS", 60)
		viper.SetDefault("MOVEMENT_NON_MOVING_DAYS", 90)
		viper.SetDefault("MOVEMENT_DEAD_STOCK_DAYS", 180)
		viper.SetDefault("MOVEMENT_SHELF_LIFE_RISK_RATIO", 0.5)
		viper.SetDefault("MOVEMENT_SHELF_LIFE_BOOST", 20.0)
		viper.SetDefault("SEGMENT_ABC_A_PERCENTILE", 0.80)
		viper.SetDefault("SEGMENT_ABC_B_PERCENTILE", 0.95)
		viper.SetDefault("SEGMENT_XYZ_X_CV", 0.5)
		viper.SetDefault("SEGMENT_XYZ_Y_CV", 1.0)
		viper.SetDefault("SCORING_DEMAND_SHIFT_WEIGHT", 0.25)
		viper.SetDefault("SCORING_MOVEMENT_WEIGHT", 0.30)
		viper.SetDefault("SCORING_SHELF_LIFE_WEIGHT", 0.20)
		viper.SetDefault("SCORING_LIFECYCLE_WEIGHT", 0.15)
		viper.SetDefault("SCORING_INVENTORY_WEIGHT", 0.10)
		viper.SetDefault("SCORING_DECREASE_MULTIPLIER", 1.2)
		viper.SetDefault("SCORING_MISSING_FACTOR_POLICY", MissingRenormalize)
		viper.SetDefault("ALERT_P1_THRESHOLD", 80.0)
		viper.SetDefault("ALERT_P2_THRESHOLD", 60.0)
		viper.SetDefault("ALERT_P3_THRESHOLD", 40.0)
		viper.SetDefault("ALERT_P4_THRESHOLD", 20.0)
		viper.SetDefault("ALERT_MIN_PRIORITY", string(domain.PriorityP5Info))
		viper.SetDefault("PIPELINE_WORKERS", 4)
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "")
		viper.SetDefault("DB_NAME", "skuwatch")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("EXPORT_OUTPUT_DIR", "./data/output")
		viper.SetDefault("EXPORT_S3_ENABLED", false)
		viper.SetDefault("EXPORT_S3_ENDPOINT", "")
		viper.SetDefault("EXPORT_S3_ACCESS_KEY", "")
		viper.SetDefault("EXPORT_S3_SECRET_KEY", "")
		viper.SetDefault("EXPORT_S3_BUCKET", "")
		viper.SetDefault("EXPORT_S3_REGION", "us-east-1")
		viper.SetDefault("EXPORT_S3_USE_SSL", true)

		viper.AutomaticEnv()

		instance = &Config{
			Features: FeatureConfig{
				FillPolicy:         viper.GetString("FEATURES_FILL_POLICY"),
				RollingShortWindow: viper.GetInt("FEATURES_ROLLING_SHORT_WINDOW"),
				RollingLongWindow:  viper.GetInt("FEATURES_ROLLING_LONG_WINDOW"),
			},
			DemandShift: DemandShiftConfig{
				CUSUMThreshold:     viper.GetFloat64("SHIFT_CUSUM_THRESHOLD"),
				CUSUMSlack:         viper.GetFloat64("SHIFT_CUSUM_SLACK"),
				MAShortWindow:      viper.GetInt("SHIFT_MA_SHORT_WINDOW"),
				MALongWindow:       viper.GetInt("SHIFT_MA_LONG_WINDOW"),
				CrossoverTolerance: viper.GetFloat64("SHIFT_CROSSOVER_TOLERANCE"),
				DirectionTolerance: viper.GetFloat64("SHIFT_DIRECTION_TOLERANCE"),
				ZScoreThreshold:    viper.GetFloat64("SHIFT_ZSCORE_THRESHOLD"),
				MinDataPoints:      viper.GetInt("SHIFT_MIN_DATA_POINTS"),
			},
			Movement: MovementConfig{
				SlowMovingDays:     viper.GetInt("MOVEMENT_SLOW_MOVING_DAYS"),
				NonMovingDays:      viper.GetInt("MOVEMENT_NON_MOVING_DAYS"),
				DeadStockDays:      viper.GetInt("MOVEMENT_DEAD_STOCK_DAYS"),
				ShelfLifeRiskRatio: viper.GetFloat64("MOVEMENT_SHELF_LIFE_RISK_RATIO"),
				ShelfLifeBoost:     viper.GetFloat64("MOVEMENT_SHELF_LIFE_BOOST"),
			},
			Segmentation: SegmentationConfig{
				ABCAPercentile: viper.GetFloat64("SEGMENT_ABC_A_PERCENTILE"),
				ABCBPercentile: viper.GetFloat64("SEGMENT_ABC_B_PERCENTILE"),
				XYZXThreshold:  viper.GetFloat64("SEGMENT_XYZ_X_CV"),
				XYZYThreshold:  viper.GetFloat64("SEGMENT_XYZ_Y_CV"),
			},
			Scoring: ScoringConfig{
				DemandShiftWeight:   viper.GetFloat64("SCORING_DEMAND_SHIFT_WEIGHT"),
				MovementWeight:      viper.GetFloat64("SCORING_MOVEMENT_WEIGHT"),
				ShelfLifeWeight:     viper.GetFloat64("SCORING_SHELF_LIFE_WEIGHT"),
				LifecycleWeight:     viper.GetFloat64("SCORING_LIFECYCLE_WEIGHT"),
				InventoryWeight:     viper.GetFloat64("SCORING_INVENTORY_WEIGHT"),
				DecreaseMultiplier:  viper.GetFloat64("SCORING_DECREASE_MULTIPLIER"),
				MissingFactorPolicy: viper.GetString("SCORING_MISSING_FACTOR_POLICY"),
			},
			Alerts: AlertConfig{
				P1Threshold: viper.GetFloat64("ALERT_P1_THRESHOLD"),
				P2Threshold: viper.GetFloat64("ALERT_P2_THRESHOLD"),
				P3Threshold: viper.GetFloat64("ALERT_P3_THRESHOLD"),
				P4Threshold: viper.GetFloat64("ALERT_P4_THRESHOLD"),
				MinPriority: domain.AlertPriority(viper.GetString("ALERT_MIN_PRIORITY")),
			},
			Pipeline: PipelineConfig{
				Workers: viper.GetInt("PIPELINE_WORKERS"),
			},
			Database: DatabaseConfig{
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			Export: ExportConfig{
				OutputDir: viper.GetString("EXPORT_OUTPUT_DIR"),
				S3: S3Config{
					Enabled:   viper.GetBool("EXPORT_S3_ENABLED"),
					Endpoint:  viper.GetString("EXPORT_S3_ENDPOINT"),
					AccessKey: viper.GetString("EXPORT_S3_ACCESS_KEY"),
					SecretKey: viper.GetString("EXPORT_S3_SECRET_KEY"),
					Bucket:    viper.GetString("EXPORT_S3_BUCKET"),
					Region:    viper.GetString("EXPORT_S3_REGION"),
					UseSSL:    viper.GetBool("EXPORT_S3_USE_SSL"),
				},
			},
		}

		loadErr = instance.Validate()
	})

	return instance, loadErr
}

// Validate checks threshold ordering, weight sums, and enum values.
// Errors here abort a run before any series is processed.
func (c *Config) Validate() error {
	if c.Features.FillPolicy != FillZero && c.Features.FillPolicy != FillExclude {
		return fmt.Errorf("invalid fill policy %q (want %q or %q)", c.Features.FillPolicy, FillZero, FillExclude)
	}
	if c.Features.RollingShortWindow < 1 || c.Features.RollingLongWindow <= c.Features.RollingShortWindow {
		return fmt.Errorf("rolling windows must satisfy 1 <= short < long, got short=%d long=%d",
			c.Features.RollingShortWindow, c.Features.RollingLongWindow)
	}

	ds := c.DemandShift
	if ds.CUSUMThreshold <= 0 || ds.ZScoreThreshold <= 0 {
		return fmt.Errorf("cusum and zscore thresholds must be positive")
	}
	if ds.CUSUMSlack < 0 {
		return fmt.Errorf("cusum slack must be non-negative")
	}
	if ds.MAShortWindow < 1 || ds.MALongWindow <= ds.MAShortWindow {
		return fmt.Errorf("MA windows must satisfy 1 <= short < long, got short=%d long=%d",
			ds.MAShortWindow, ds.MALongWindow)
	}
	if ds.CrossoverTolerance <= 0 || ds.DirectionTolerance < 0 || ds.DirectionTolerance > ds.CrossoverTolerance {
		return fmt.Errorf("crossover tolerances must satisfy 0 <= direction <= crossover, crossover > 0")
	}
	if ds.MinDataPoints < 2*ds.MAShortWindow {
		return fmt.Errorf("min data points %d must be at least twice the short MA window %d",
			ds.MinDataPoints, ds.MAShortWindow)
	}

	mv := c.Movement
	if mv.SlowMovingDays <= 0 || mv.NonMovingDays <= mv.SlowMovingDays || mv.DeadStockDays <= mv.NonMovingDays {
		return fmt.Errorf("movement thresholds must be strictly increasing, got %d/%d/%d",
			mv.SlowMovingDays, mv.NonMovingDays, mv.DeadStockDays)
	}
	if mv.ShelfLifeRiskRatio <= 0 || mv.ShelfLifeRiskRatio > 1 {
		return fmt.Errorf("shelf life risk ratio must be in (0,1], got %v", mv.ShelfLifeRiskRatio)
	}

	sg := c.Segmentation
	if sg.ABCAPercentile <= 0 || sg.ABCBPercentile <= sg.ABCAPercentile || sg.ABCBPercentile > 1 {
		return fmt.Errorf("ABC percentiles must satisfy 0 < A < B <= 1, got A=%v B=%v",
			sg.ABCAPercentile, sg.ABCBPercentile)
	}
	if sg.XYZXThreshold <= 0 || sg.XYZYThreshold <= sg.XYZXThreshold {
		return fmt.Errorf("XYZ cv thresholds must satisfy 0 < X < Y, got X=%v Y=%v",
			sg.XYZXThreshold, sg.XYZYThreshold)
	}

	sc := c.Scoring
	sum := sc.DemandShiftWeight + sc.MovementWeight + sc.ShelfLifeWeight + sc.LifecycleWeight + sc.InventoryWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("scoring weights must sum to 1, got %v", sum)
	}
	for name, w := range map[string]float64{
		"demand_shift": sc.DemandShiftWeight,
		"movement":     sc.MovementWeight,
		"shelf_life":   sc.ShelfLifeWeight,
		"lifecycle":    sc.LifecycleWeight,
		"inventory":    sc.InventoryWeight,
	} {
		if w < 0 {
			return fmt.Errorf("scoring weight %s must be non-negative, got %v", name, w)
		}
	}
	if sc.MissingFactorPolicy != MissingRenormalize && sc.MissingFactorPolicy != MissingZero {
		return fmt.Errorf("invalid missing factor policy %q", sc.MissingFactorPolicy)
	}
	if sc.DecreaseMultiplier < 1 {
		return fmt.Errorf("decrease multiplier must be >= 1, got %v", sc.DecreaseMultiplier)
	}

	al := c.Alerts
	if !(al.P1Threshold > al.P2Threshold && al.P2Threshold > al.P3Threshold && al.P3Threshold > al.P4Threshold && al.P4Threshold >= 0) {
		return fmt.Errorf("alert thresholds must be strictly decreasing P1 > P2 > P3 > P4 >= 0")
	}
	switch al.MinPriority {
	case domain.PriorityP1Critical, domain.PriorityP2High, domain.PriorityP3Medium, domain.PriorityP4Low, domain.PriorityP5Info:
	default:
		return fmt.Errorf("invalid minimum alert priority %q", al.MinPriority)
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline workers must be >= 1, got %d", c.Pipeline.Workers)
	}

	return nil
}
