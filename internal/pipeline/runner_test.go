package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/skuwatch/internal/config"
	"github.com/andresuchdata/skuwatch/internal/dataset"
	"github.com/andresuchdata/skuwatch/internal/domain"
)

var week0 = time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)

func weekEnding(n int) time.Time {
	return week0.AddDate(0, 0, 7*n)
}

func seriesRows(item string, quantities []float64, startWeek int) []dataset.SalesRecord {
	rows := make([]dataset.SalesRecord, 0, len(quantities))
	for i, q := range quantities {
		rows = append(rows, dataset.SalesRecord{
			WeekEnding: weekEnding(startWeek + i),
			ItemID:     item,
			LocationID: "DC-1",
			QtySold:    q,
		})
	}
	return rows
}

func testSnapshot() *dataset.Snapshot {
	snap := &dataset.Snapshot{
		Items: map[string]dataset.Item{
			"DROP": {ItemID: "DROP", Category: "Staple", LaunchDate: week0.AddDate(-1, 0, 0)},
			"FLAT": {ItemID: "FLAT", Category: "Staple", LaunchDate: week0.AddDate(-1, 0, 0)},
			"IDLE": {ItemID: "IDLE", Category: "Declining", LaunchDate: week0.AddDate(-1, 0, 0)},
		},
		Policies: map[domain.SeriesKey]dataset.ReorderPolicy{
			{ItemID: "FLAT", LocationID: "DC-1"}: {ItemID: "FLAT", LocationID: "DC-1", MinQty: 20, MaxQty: 200},
		},
	}

	// Sustained demand drop after eight stable weeks.
	snap.Sales = append(snap.Sales, seriesRows("DROP",
		[]float64{100, 100, 100, 100, 100, 100, 100, 100, 35, 38, 33, 36}, 0)...)
	// Steady seller.
	snap.Sales = append(snap.Sales, seriesRows("FLAT",
		[]float64{50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50}, 0)...)
	// One early sale, then nothing.
	snap.Sales = append(snap.Sales, seriesRows("IDLE",
		[]float64{40, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, 0)...)
	// Too little history for shift detection.
	snap.Sales = append(snap.Sales, seriesRows("SHORT",
		[]float64{10, 12, 11, 13}, 8)...)

	snap.Inventory = []dataset.InventoryRecord{
		{WeekEnding: weekEnding(11), ItemID: "DROP", LocationID: "DC-1", OnHandQty: 300},
		{WeekEnding: weekEnding(11), ItemID: "FLAT", LocationID: "DC-1", OnHandQty: 120},
		{WeekEnding: weekEnding(11), ItemID: "IDLE", LocationID: "DC-1", OnHandQty: 90},
	}

	return snap
}

func TestRunner_FullRun(t *testing.T) {
	runner, err := NewRunner(config.Default())
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, weekEnding(11), result.AnalysisDate)

	// Every series gets a movement status, segment and score; the short
	// series is skipped only for shift detection.
	assert.Len(t, result.Movements, 4)
	assert.Len(t, result.Segments, 4)
	assert.Len(t, result.Scores, 4)
	assert.Len(t, result.Shifts, 3)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "SHORT", result.Skipped[0].Key.ItemID)
	assert.Equal(t, "demand_shift", result.Skipped[0].Stage)

	shifts := make(map[string]domain.DemandShiftResult)
	for _, s := range result.Shifts {
		shifts[s.Key.ItemID] = s
	}

	drop := shifts["DROP"]
	assert.True(t, drop.ShiftDetected)
	assert.Equal(t, domain.ShiftDecrease, drop.Direction)
	assert.Less(t, drop.Magnitude, -0.5)

	flat := shifts["FLAT"]
	assert.False(t, flat.ShiftDetected)
	assert.Equal(t, domain.ShiftStable, flat.Direction)

	movements := make(map[string]domain.MovementStatus)
	for _, m := range result.Movements {
		movements[m.Key.ItemID] = m
	}
	assert.Equal(t, domain.MovementActive, movements["DROP"].Category)
	assert.Equal(t, domain.MovementSlowMoving, movements["IDLE"].Category)
	assert.Equal(t, 77, movements["IDLE"].DaysSinceLastMovement)
}

func TestRunner_OutputIsSorted(t *testing.T) {
	runner, err := NewRunner(config.Default())
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), testSnapshot())
	require.NoError(t, err)

	for i := 1; i < len(result.Scores); i++ {
		assert.True(t, result.Scores[i-1].Key.Less(result.Scores[i].Key))
	}
	for i := 1; i < len(result.Movements); i++ {
		assert.True(t, result.Movements[i-1].Key.Less(result.Movements[i].Key))
	}
	for i := 1; i < len(result.Alerts); i++ {
		prev, cur := result.Alerts[i-1], result.Alerts[i]
		assert.LessOrEqual(t, prev.Priority.Rank(), cur.Priority.Rank())
	}
}

func TestRunner_Deterministic(t *testing.T) {
	runner, err := NewRunner(config.Default())
	require.NoError(t, err)

	first, err := runner.Run(context.Background(), testSnapshot())
	require.NoError(t, err)
	second, err := runner.Run(context.Background(), testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, first.Shifts, second.Shifts)
	assert.Equal(t, first.Movements, second.Movements)
	assert.Equal(t, first.Segments, second.Segments)
	assert.Equal(t, first.Scores, second.Scores)
	assert.Equal(t, first.Skipped, second.Skipped)
	// Alert identity and timestamps differ per run, the rest must not.
	require.Equal(t, len(first.Alerts), len(second.Alerts))
	for i := range first.Alerts {
		assert.Equal(t, first.Alerts[i].Key, second.Alerts[i].Key)
		assert.Equal(t, first.Alerts[i].AlertType, second.Alerts[i].AlertType)
		assert.Equal(t, first.Alerts[i].Priority, second.Alerts[i].Priority)
		assert.Equal(t, first.Alerts[i].Message, second.Alerts[i].Message)
	}
}

func TestRunner_CancelledContext(t *testing.T) {
	runner, err := NewRunner(config.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = runner.Run(ctx, testSnapshot())
	assert.Error(t, err)
}

func TestRunner_EmptySnapshot(t *testing.T) {
	runner, err := NewRunner(config.Default())
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), &dataset.Snapshot{})
	assert.Error(t, err)
}

func TestNewRunner_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.Workers = 0

	_, err := NewRunner(cfg)
	assert.Error(t, err)
}
