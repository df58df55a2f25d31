package dataset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/skuwatch/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadSnapshot(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, dir, "items.csv",
		"item_id,description,category,shelf_life_days,launch_date,obsolete_date\n"+
			"SKU-1,Widget,Staple,120,2025-06-01,\n"+
			"SKU-2,Gadget,Declining,,2024-01-15,2026-06-30\n")
	writeFile(t, dir, "locations.csv",
		"location_id,name,region\nDC-1,Central,North\n")
	writeFile(t, dir, "sales.csv",
		"week_ending,item_id,location_id,qty_sold\n"+
			"2026-01-04,SKU-1,DC-1,25\n"+
			"2026-01-11,SKU-1,DC-1,30\n"+
			"2026-01-11,SKU-2,DC-1,5\n")
	writeFile(t, dir, "inventory.csv",
		"week_ending,item_id,location_id,on_hand_qty\n"+
			"2026-01-11,SKU-1,DC-1,140\n")
	writeFile(t, dir, "forecasts.csv",
		"week_ending,item_id,location_id,forecast_qty\n"+
			"2026-01-18,SKU-1,DC-1,28\n")
	writeFile(t, dir, "reorder_policies.csv",
		"item_id,location_id,min_qty,max_qty\nSKU-1,DC-1,20,200\n")

	snap, err := LoadSnapshot(dir)
	require.NoError(t, err)

	require.Len(t, snap.Items, 2)
	item := snap.Items["SKU-1"]
	assert.Equal(t, "Staple", item.Category)
	assert.Equal(t, 120, item.ShelfLifeDays)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), item.LaunchDate)
	assert.Nil(t, item.ObsoleteDate)

	obsolete := snap.Items["SKU-2"]
	require.NotNil(t, obsolete.ObsoleteDate)
	assert.Equal(t, time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC), *obsolete.ObsoleteDate)
	assert.Zero(t, obsolete.ShelfLifeDays)

	require.Len(t, snap.Sales, 3)
	assert.InDelta(t, 25.0, snap.Sales[0].QtySold, 0.0001)
	require.Len(t, snap.Inventory, 1)
	require.Len(t, snap.Forecasts, 1)

	policy, ok := snap.Policy(domain.SeriesKey{ItemID: "SKU-1", LocationID: "DC-1"})
	require.True(t, ok)
	assert.InDelta(t, 200.0, policy.MaxQty, 0.0001)
}

func TestLoadSnapshot_SalesOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sales.csv",
		"week_ending,item_id,location_id,qty_sold\n2026-01-04,SKU-1,DC-1,10\n")

	snap, err := LoadSnapshot(dir)
	require.NoError(t, err)

	assert.Empty(t, snap.Items)
	assert.Len(t, snap.Sales, 1)
}

func TestLoadSnapshot_MissingSalesFile(t *testing.T) {
	_, err := LoadSnapshot(t.TempDir())
	assert.Error(t, err)
}

func TestLoadSnapshot_EmptySales(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sales.csv", "week_ending,item_id,location_id,qty_sold\n")

	_, err := LoadSnapshot(dir)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestLoadSnapshot_BadDate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sales.csv",
		"week_ending,item_id,location_id,qty_sold\nnot-a-date,SKU-1,DC-1,10\n")

	_, err := LoadSnapshot(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "week_ending")
}

func TestSnapshot_ResolveAnalysisDate(t *testing.T) {
	snap := &Snapshot{
		Sales: []SalesRecord{
			{WeekEnding: time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)},
			{WeekEnding: time.Date(2026, 1, 18, 0, 0, 0, 0, time.UTC)},
		},
		Inventory: []InventoryRecord{
			{WeekEnding: time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)},
		},
	}

	assert.Equal(t, time.Date(2026, 1, 18, 0, 0, 0, 0, time.UTC), snap.ResolveAnalysisDate())

	explicit := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	snap.AnalysisDate = explicit
	assert.Equal(t, explicit, snap.ResolveAnalysisDate())
}
