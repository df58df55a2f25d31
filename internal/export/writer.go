package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/skuwatch/internal/domain"
	"github.com/andresuchdata/skuwatch/internal/pipeline"
)

const dateLayout = "2006-01-02"

// Writer serializes a run's record sets under one output directory. Each
// run writes a JSON document plus one CSV per record set, named by the
// analysis date.
type Writer struct {
	outputDir string
}

func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir}
}

// Write emits every file for the run and returns the paths written.
func (w *Writer) Write(result *pipeline.RunResult) ([]string, error) {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed creating output directory %s: %w", w.outputDir, err)
	}

	date := result.AnalysisDate.Format(dateLayout)

	paths := []string{}
	add := func(path string, err error) error {
		if err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	}

	if err := add(w.writeJSON(fmt.Sprintf("analysis_%s.json", date), result)); err != nil {
		return nil, err
	}
	if err := add(w.writeShiftsCSV(fmt.Sprintf("demand_shifts_%s.csv", date), result.Shifts)); err != nil {
		return nil, err
	}
	if err := add(w.writeMovementsCSV(fmt.Sprintf("movement_%s.csv", date), result.Movements)); err != nil {
		return nil, err
	}
	if err := add(w.writeSegmentsCSV(fmt.Sprintf("segments_%s.csv", date), result.Segments)); err != nil {
		return nil, err
	}
	if err := add(w.writeScoresCSV(fmt.Sprintf("risk_scores_%s.csv", date), result.Scores)); err != nil {
		return nil, err
	}
	if err := add(w.writeAlertsCSV(fmt.Sprintf("alerts_%s.csv", date), result.Alerts)); err != nil {
		return nil, err
	}

	log.Info().Int("files", len(paths)).Str("dir", w.outputDir).Msg("run exported")

	return paths, nil
}

func (w *Writer) writeJSON(name string, result *pipeline.RunResult) (string, error) {
	path := filepath.Join(w.outputDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed creating %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return "", fmt.Errorf("failed encoding %s: %w", path, err)
	}

	return path, nil
}

func (w *Writer) writeCSV(name string, header []string, rows [][]string) (string, error) {
	path := filepath.Join(w.outputDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed creating %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return "", fmt.Errorf("failed writing header to %s: %w", path, err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return "", fmt.Errorf("failed writing row to %s: %w", path, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("failed flushing %s: %w", path, err)
	}

	return path, nil
}

func (w *Writer) writeShiftsCSV(name string, shifts []domain.DemandShiftResult) (string, error) {
	header := []string{"item_id", "location_id", "shift_detected", "direction", "magnitude",
		"confidence", "method", "detection_period", "baseline_demand", "current_demand"}
	rows := make([][]string, 0, len(shifts))
	for _, s := range shifts {
		rows = append(rows, []string{
			s.Key.ItemID, s.Key.LocationID,
			strconv.FormatBool(s.ShiftDetected),
			string(s.Direction),
			formatFloat(s.Magnitude),
			formatFloat(s.Confidence),
			string(s.Method),
			s.DetectionPeriod.Format(dateLayout),
			formatFloat(s.BaselineDemand),
			formatFloat(s.CurrentDemand),
		})
	}
	return w.writeCSV(name, header, rows)
}

func (w *Writer) writeMovementsCSV(name string, movements []domain.MovementStatus) (string, error) {
	header := []string{"item_id", "location_id", "days_since_last_movement", "category",
		"on_hand_quantity", "risk_score", "shelf_life_at_risk", "never_sold"}
	rows := make([][]string, 0, len(movements))
	for _, m := range movements {
		rows = append(rows, []string{
			m.Key.ItemID, m.Key.LocationID,
			strconv.Itoa(m.DaysSinceLastMovement),
			string(m.Category),
			formatFloat(m.OnHandQuantity),
			formatFloat(m.RiskScore),
			strconv.FormatBool(m.ShelfLifeAtRisk),
			strconv.FormatBool(m.NeverSold),
		})
	}
	return w.writeCSV(name, header, rows)
}

func (w *Writer) writeSegmentsCSV(name string, segments []domain.SegmentationResult) (string, error) {
	header := []string{"item_id", "location_id", "abc_class", "xyz_class", "segment",
		"total_volume", "coefficient_of_variation", "cumulative_volume_share"}
	rows := make([][]string, 0, len(segments))
	for _, s := range segments {
		rows = append(rows, []string{
			s.Key.ItemID, s.Key.LocationID,
			string(s.ABCClass), string(s.XYZClass), s.Segment,
			formatFloat(s.TotalVolume),
			formatFloat(s.CoefficientOfVariation),
			formatFloat(s.CumulativeVolumeShare),
		})
	}
	return w.writeCSV(name, header, rows)
}

func (w *Writer) writeScoresCSV(name string, scores []domain.RiskScore) (string, error) {
	header := []string{"item_id", "location_id", "score", "primary_factor", "recommendation", "factors"}
	rows := make([][]string, 0, len(scores))
	for _, s := range scores {
		rows = append(rows, []string{
			s.Key.ItemID, s.Key.LocationID,
			formatFloat(s.Score),
			s.PrimaryFactor,
			s.Recommendation,
			formatBreakdown(s.FactorBreakdown),
		})
	}
	return w.writeCSV(name, header, rows)
}

func (w *Writer) writeAlertsCSV(name string, alerts []domain.Alert) (string, error) {
	header := []string{"alert_id", "item_id", "location_id", "alert_type", "priority",
		"message", "risk_score", "created_at"}
	rows := make([][]string, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, []string{
			a.AlertID, a.Key.ItemID, a.Key.LocationID,
			string(a.AlertType), string(a.Priority), a.Message,
			formatFloat(a.RiskScore),
			a.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return w.writeCSV(name, header, rows)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatBreakdown flattens the factor map into "name=value;..." with
// stable ordering.
func formatBreakdown(breakdown map[string]float64) string {
	names := make([]string, 0, len(breakdown))
	for name := range breakdown {
		names = append(names, name)
	}
	sort.Strings(names)

	out := ""
	for i, name := range names {
		if i > 0 {
			out += ";"
		}
		out += name + "=" + strconv.FormatFloat(breakdown[name], 'f', 4, 64)
	}
	return out
}
