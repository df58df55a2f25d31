package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/andresuchdata/skuwatch/internal/domain"
	"github.com/andresuchdata/skuwatch/internal/pipeline"
)

type resultsRepository struct {
	db *DB
}

func NewResultsRepository(db *DB) *resultsRepository {
	return &resultsRepository{db: db}
}

// SaveRun persists every record set of one analysis run in a single
// transaction. Re-running the same analysis date overwrites the prior
// results for each series.
func (r *resultsRepository) SaveRun(ctx context.Context, result *pipeline.RunResult) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		// 1. Register the run
		runID, err := r.upsertRun(ctx, tx, result.AnalysisDate)
		if err != nil {
			return fmt.Errorf("failed to upsert analysis run: %w", err)
		}

		// 2. Save each record set
		if err := r.saveShifts(ctx, tx, runID, result.Shifts); err != nil {
			return err
		}
		if err := r.saveMovements(ctx, tx, runID, result.Movements); err != nil {
			return err
		}
		if err := r.saveSegments(ctx, tx, runID, result.Segments); err != nil {
			return err
		}
		if err := r.saveScores(ctx, tx, runID, result.Scores); err != nil {
			return err
		}
		if err := r.saveAlerts(ctx, tx, runID, result.Alerts); err != nil {
			return err
		}

		return nil
	})
}

func (r *resultsRepository) upsertRun(ctx context.Context, tx *sql.Tx, analysisDate time.Time) (int64, error) {
	var id int64
	query := `
		INSERT INTO analysis_runs (analysis_date, created_at)
		VALUES ($1, NOW())
		ON CONFLICT (analysis_date) DO UPDATE
		SET updated_at = NOW()
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, query, analysisDate).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert analysis run: %w", err)
	}
	return id, nil
}

func (r *resultsRepository) saveShifts(ctx context.Context, tx *sql.Tx, runID int64, shifts []domain.DemandShiftResult) error {
	query := `
		INSERT INTO demand_shifts (
			run_id, item_id, location_id, shift_detected, direction,
			magnitude, confidence, method, detection_period,
			baseline_demand, current_demand
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id, item_id, location_id)
		DO UPDATE SET
			shift_detected = EXCLUDED.shift_detected,
			direction = EXCLUDED.direction,
			magnitude = EXCLUDED.magnitude,
			confidence = EXCLUDED.confidence,
			method = EXCLUDED.method,
			detection_period = EXCLUDED.detection_period,
			baseline_demand = EXCLUDED.baseline_demand,
			current_demand = EXCLUDED.current_demand
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare demand shift statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range shifts {
		_, err := stmt.ExecContext(ctx, runID, s.Key.ItemID, s.Key.LocationID,
			s.ShiftDetected, s.Direction, s.Magnitude, s.Confidence, s.Method,
			s.DetectionPeriod, s.BaselineDemand, s.CurrentDemand)
		if err != nil {
			return fmt.Errorf("failed to insert demand shift: %w", err)
		}
	}

	return nil
}

func (r *resultsRepository) saveMovements(ctx context.Context, tx *sql.Tx, runID int64, movements []domain.MovementStatus) error {
	query := `
		INSERT INTO movement_statuses (
			run_id, item_id, location_id, days_since_last_movement,
			category, on_hand_quantity, risk_score, shelf_life_at_risk, never_sold
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, item_id, location_id)
		DO UPDATE SET
			days_since_last_movement = EXCLUDED.days_since_last_movement,
			category = EXCLUDED.category,
			on_hand_quantity = EXCLUDED.on_hand_quantity,
			risk_score = EXCLUDED.risk_score,
			shelf_life_at_risk = EXCLUDED.shelf_life_at_risk,
			never_sold = EXCLUDED.never_sold
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare movement statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range movements {
		_, err := stmt.ExecContext(ctx, runID, m.Key.ItemID, m.Key.LocationID,
			m.DaysSinceLastMovement, m.Category, m.OnHandQuantity,
			m.RiskScore, m.ShelfLifeAtRisk, m.NeverSold)
		if err != nil {
			return fmt.Errorf("failed to insert movement status: %w", err)
		}
	}

	return nil
}

func (r *resultsRepository) saveSegments(ctx context.Context, tx *sql.Tx, runID int64, segments []domain.SegmentationResult) error {
	query := `
		INSERT INTO segmentations (
			run_id, item_id, location_id, abc_class, xyz_class, segment,
			total_volume, coefficient_of_variation, cumulative_volume_share
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, item_id, location_id)
		DO UPDATE SET
			abc_class = EXCLUDED.abc_class,
			xyz_class = EXCLUDED.xyz_class,
			segment = EXCLUDED.segment,
			total_volume = EXCLUDED.total_volume,
			coefficient_of_variation = EXCLUDED.coefficient_of_variation,
			cumulative_volume_share = EXCLUDED.cumulative_volume_share
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare segmentation statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range segments {
		_, err := stmt.ExecContext(ctx, runID, s.Key.ItemID, s.Key.LocationID,
			s.ABCClass, s.XYZClass, s.Segment,
			s.TotalVolume, s.CoefficientOfVariation, s.CumulativeVolumeShare)
		if err != nil {
			return fmt.Errorf("failed to insert segmentation: %w", err)
		}
	}

	return nil
}

func (r *resultsRepository) saveScores(ctx context.Context, tx *sql.Tx, runID int64, scores []domain.RiskScore) error {
	query := `
		INSERT INTO risk_scores (
			run_id, item_id, location_id, score, factor_breakdown,
			primary_factor, recommendation
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, item_id, location_id)
		DO UPDATE SET
			score = EXCLUDED.score,
			factor_breakdown = EXCLUDED.factor_breakdown,
			primary_factor = EXCLUDED.primary_factor,
			recommendation = EXCLUDED.recommendation
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare risk score statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range scores {
		breakdown, err := json.Marshal(s.FactorBreakdown)
		if err != nil {
			return fmt.Errorf("failed to marshal factor breakdown: %w", err)
		}
		_, err = stmt.ExecContext(ctx, runID, s.Key.ItemID, s.Key.LocationID,
			s.Score, breakdown, s.PrimaryFactor, s.Recommendation)
		if err != nil {
			return fmt.Errorf("failed to insert risk score: %w", err)
		}
	}

	return nil
}

func (r *resultsRepository) saveAlerts(ctx context.Context, tx *sql.Tx, runID int64, alerts []domain.Alert) error {
	// Alerts from an earlier run of the same date are superseded, not
	// duplicated.
	if _, err := tx.ExecContext(ctx, `UPDATE alerts SET is_active = FALSE WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("failed to deactivate prior alerts: %w", err)
	}

	query := `
		INSERT INTO alerts (
			alert_id, run_id, item_id, location_id, alert_type,
			priority, message, risk_score, created_at, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare alert statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		_, err := stmt.ExecContext(ctx, a.AlertID, runID, a.Key.ItemID, a.Key.LocationID,
			a.AlertType, a.Priority, a.Message, a.RiskScore, a.CreatedAt, a.IsActive)
		if err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}
	}

	return nil
}

// ActiveAlerts returns the active alerts for one analysis date, most
// urgent first.
func (r *resultsRepository) ActiveAlerts(ctx context.Context, analysisDate time.Time) ([]*domain.Alert, error) {
	query := `
		SELECT a.alert_id, a.item_id AS "key.item_id", a.location_id AS "key.location_id",
		       a.alert_type, a.priority, a.message, a.risk_score,
		       a.created_at, a.is_active
		FROM alerts a
		JOIN analysis_runs r ON a.run_id = r.id
		WHERE r.analysis_date = $1 AND a.is_active
		ORDER BY a.priority ASC, a.risk_score DESC
	`

	var alerts []*domain.Alert
	if err := sqlx.SelectContext(ctx, r.db, &alerts, query, analysisDate); err != nil {
		return nil, fmt.Errorf("failed to list active alerts: %w", err)
	}

	return alerts, nil
}
