package detect

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/skuwatch/internal/config"
	"github.com/andresuchdata/skuwatch/internal/domain"
	"github.com/andresuchdata/skuwatch/internal/features"
)

func newTestFeatures(values []float64) *features.SeriesFeatures {
	return &features.SeriesFeatures{
		Key:          domain.SeriesKey{ItemID: "SKU-1", LocationID: "DC-1"},
		SalesQty:     values,
		LatestPeriod: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestDetector_DemandDrop(t *testing.T) {
	d := NewDetector(config.Default().DemandShift)

	// Four stable weeks at 100 followed by four weeks around 35.
	f := newTestFeatures([]float64{100, 100, 100, 100, 40, 35, 38, 30})

	result, err := d.Detect(f)
	require.NoError(t, err)

	assert.True(t, result.ShiftDetected)
	assert.Equal(t, domain.ShiftDecrease, result.Direction)
	assert.Equal(t, domain.MethodCombined, result.Method)
	assert.InDelta(t, -0.6425, result.Magnitude, 0.0001)
	assert.InDelta(t, 100.0, result.BaselineDemand, 0.0001)
	assert.InDelta(t, 35.75, result.CurrentDemand, 0.0001)
	// CUSUM and the crossover agree, the z-score does not fire.
	assert.InDelta(t, 2.0/3.0, result.Confidence, 0.001)
	assert.Equal(t, f.LatestPeriod, result.DetectionPeriod)
	assert.Equal(t, f.Key, result.Key)
}

func TestDetector_DemandSurge(t *testing.T) {
	d := NewDetector(config.Default().DemandShift)

	f := newTestFeatures([]float64{10, 10, 10, 10, 10, 10, 10, 10, 30, 32, 31, 33})

	result, err := d.Detect(f)
	require.NoError(t, err)

	assert.True(t, result.ShiftDetected)
	assert.Equal(t, domain.ShiftIncrease, result.Direction)
	assert.Equal(t, domain.MethodCombined, result.Method)
	assert.Positive(t, result.Magnitude)
	assert.Greater(t, result.Confidence, 0.0)
}

func TestDetector_ConstantSeriesIsStable(t *testing.T) {
	d := NewDetector(config.Default().DemandShift)

	values := make([]float64, 12)
	for i := range values {
		values[i] = 50
	}

	result, err := d.Detect(newTestFeatures(values))
	require.NoError(t, err)

	assert.False(t, result.ShiftDetected)
	assert.Equal(t, domain.ShiftStable, result.Direction)
	assert.Zero(t, result.Magnitude)
	assert.Zero(t, result.Confidence)
}

func TestDetector_NoisyButStableSeries(t *testing.T) {
	d := NewDetector(config.Default().DemandShift)

	// Fluctuates around 100 with no sustained level change.
	f := newTestFeatures([]float64{95, 105, 98, 102, 97, 103, 99, 101, 96, 104, 100, 98})

	result, err := d.Detect(f)
	require.NoError(t, err)

	assert.False(t, result.ShiftDetected)
	assert.Equal(t, domain.ShiftStable, result.Direction)
}

func TestDetector_InsufficientHistory(t *testing.T) {
	d := NewDetector(config.Default().DemandShift)

	_, err := d.Detect(newTestFeatures([]float64{10, 20, 30, 40, 50}))
	assert.True(t, errors.Is(err, features.ErrInsufficientHistory))
}

func TestDetector_MinPointsFloor(t *testing.T) {
	cfg := config.Default().DemandShift
	cfg.MAShortWindow = 6
	cfg.MinDataPoints = 8
	d := NewDetector(cfg)

	// Two short windows need 12 points; 10 is not enough even though the
	// configured minimum is 8.
	values := make([]float64, 10)
	for i := range values {
		values[i] = float64(i)
	}

	_, err := d.Detect(newTestFeatures(values))
	assert.True(t, errors.Is(err, features.ErrInsufficientHistory))
}

func TestDetector_NewDemandFromZeroBaseline(t *testing.T) {
	d := NewDetector(config.Default().DemandShift)

	f := newTestFeatures([]float64{0, 0, 0, 0, 20, 22, 25, 21})

	result, err := d.Detect(f)
	require.NoError(t, err)

	assert.True(t, result.ShiftDetected)
	assert.Equal(t, domain.ShiftIncrease, result.Direction)
	// Demand appearing from a zero baseline reports full-scale magnitude.
	assert.InDelta(t, 1.0, result.Magnitude, 0.0001)
	assert.Zero(t, result.BaselineDemand)
}
