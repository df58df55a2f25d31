package dataset

import (
	"time"

	"github.com/andresuchdata/skuwatch/internal/domain"
)

// Item is one SKU master record.
type Item struct {
	ItemID        string     `json:"item_id" db:"item_id"`
	Description   string     `json:"description" db:"description"`
	Category      string     `json:"category" db:"category"`
	ShelfLifeDays int        `json:"shelf_life_days" db:"shelf_life_days"`
	LaunchDate    time.Time  `json:"launch_date" db:"launch_date"`
	ObsoleteDate  *time.Time `json:"obsolete_date,omitempty" db:"obsolete_date"`
}

// Location is one location master record.
type Location struct {
	LocationID string `json:"location_id" db:"location_id"`
	Name       string `json:"name" db:"name"`
	Region     string `json:"region" db:"region"`
}

// SalesRecord is one weekly sales observation.
type SalesRecord struct {
	WeekEnding time.Time `json:"week_ending"`
	ItemID     string    `json:"item_id"`
	LocationID string    `json:"location_id"`
	QtySold    float64   `json:"qty_sold"`
}

// InventoryRecord is one weekly on-hand snapshot.
type InventoryRecord struct {
	WeekEnding time.Time `json:"week_ending"`
	ItemID     string    `json:"item_id"`
	LocationID string    `json:"location_id"`
	OnHandQty  float64   `json:"on_hand_qty"`
}

// ForecastRecord is one weekly demand forecast.
type ForecastRecord struct {
	WeekEnding  time.Time `json:"week_ending"`
	ItemID      string    `json:"item_id"`
	LocationID  string    `json:"location_id"`
	ForecastQty float64   `json:"forecast_qty"`
}

// ReorderPolicy holds the min/max stocking quantities for one series.
type ReorderPolicy struct {
	ItemID     string  `json:"item_id"`
	LocationID string  `json:"location_id"`
	MinQty     float64 `json:"min_qty"`
	MaxQty     float64 `json:"max_qty"`
}

// Snapshot is the complete input of one analysis run. It is read-only once
// handed to the pipeline.
type Snapshot struct {
	Items     map[string]Item
	Locations map[string]Location
	Sales     []SalesRecord
	Inventory []InventoryRecord
	Forecasts []ForecastRecord
	Policies  map[domain.SeriesKey]ReorderPolicy

	// AnalysisDate is the run date. Zero means "latest week ending in the
	// data", resolved by ResolveAnalysisDate.
	AnalysisDate time.Time
}

// Item returns the master record for an item, if known.
func (s *Snapshot) Item(itemID string) (Item, bool) {
	it, ok := s.Items[itemID]
	return it, ok
}

// Policy returns the reorder policy for a series, if configured.
func (s *Snapshot) Policy(key domain.SeriesKey) (ReorderPolicy, bool) {
	p, ok := s.Policies[key]
	return p, ok
}

// ResolveAnalysisDate returns the explicit analysis date, or the latest
// week ending seen across sales and inventory when none was set.
func (s *Snapshot) ResolveAnalysisDate() time.Time {
	if !s.AnalysisDate.IsZero() {
		return s.AnalysisDate
	}
	var latest time.Time
	for _, r := range s.Sales {
		if r.WeekEnding.After(latest) {
			latest = r.WeekEnding
		}
	}
	for _, r := range s.Inventory {
		if r.WeekEnding.After(latest) {
			latest = r.WeekEnding
		}
	}
	return latest
}
