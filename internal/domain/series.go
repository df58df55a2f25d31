package domain

import "time"

// SeriesKey identifies one analytic unit: a single item at a single location.
// Every component keys its output by this pair.
type SeriesKey struct {
	ItemID     string `json:"item_id" db:"item_id"`
	LocationID string `json:"location_id" db:"location_id"`
}

func (k SeriesKey) String() string {
	return k.ItemID + "@" + k.LocationID
}

// Less orders keys lexically by item then location. Used for deterministic
// tie-breaks and output ordering.
func (k SeriesKey) Less(other SeriesKey) bool {
	if k.ItemID != other.ItemID {
		return k.ItemID < other.ItemID
	}
	return k.LocationID < other.LocationID
}

// TimeSeriesPoint is one reporting period of a weekly series. Gaps in the
// raw data are kept explicit: a filled point carries Missing=true so that
// downstream statistics can exclude it when the exclude policy is active.
type TimeSeriesPoint struct {
	PeriodEnd time.Time `json:"period_end"`
	Quantity  float64   `json:"quantity"`
	Missing   bool      `json:"missing,omitempty"`
}
