package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/skuwatch/internal/domain"
)

// ErrNoSnapshot indicates the snapshot directory held no usable sales data.
var ErrNoSnapshot = errors.New("snapshot contains no sales records")

const dateLayout = "2006-01-02"

// LoadSnapshot reads a full analysis snapshot from a directory of CSV files:
// items.csv, locations.csv, sales.csv, inventory.csv, forecasts.csv and
// reorder_policies.csv. Master files are optional; sales are required.
func LoadSnapshot(dir string) (*Snapshot, error) {
	snap := &Snapshot{
		Items:     make(map[string]Item),
		Locations: make(map[string]Location),
		Policies:  make(map[domain.SeriesKey]ReorderPolicy),
	}

	if err := loadCSV(filepath.Join(dir, "items.csv"), true, func(row map[string]string) error {
		item, err := parseItem(row)
		if err != nil {
			return err
		}
		snap.Items[item.ItemID] = item
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading items: %w", err)
	}

	if err := loadCSV(filepath.Join(dir, "locations.csv"), true, func(row map[string]string) error {
		snap.Locations[row["location_id"]] = Location{
			LocationID: row["location_id"],
			Name:       row["name"],
			Region:     row["region"],
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading locations: %w", err)
	}

	if err := loadCSV(filepath.Join(dir, "sales.csv"), false, func(row map[string]string) error {
		week, err := time.Parse(dateLayout, row["week_ending"])
		if err != nil {
			return fmt.Errorf("bad week_ending %q: %w", row["week_ending"], err)
		}
		qty, err := parseFloat(row["qty_sold"])
		if err != nil {
			return fmt.Errorf("bad qty_sold %q: %w", row["qty_sold"], err)
		}
		snap.Sales = append(snap.Sales, SalesRecord{
			WeekEnding: week,
			ItemID:     row["item_id"],
			LocationID: row["location_id"],
			QtySold:    qty,
		})
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading sales: %w", err)
	}

	if err := loadCSV(filepath.Join(dir, "inventory.csv"), true, func(row map[string]string) error {
		week, err := time.Parse(dateLayout, row["week_ending"])
		if err != nil {
			return fmt.Errorf("bad week_ending %q: %w", row["week_ending"], err)
		}
		qty, err := parseFloat(row["on_hand_qty"])
		if err != nil {
			return fmt.Errorf("bad on_hand_qty %q: %w", row["on_hand_qty"], err)
		}
		snap.Inventory = append(snap.Inventory, InventoryRecord{
			WeekEnding: week,
			ItemID:     row["item_id"],
			LocationID: row["location_id"],
			OnHandQty:  qty,
		})
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading inventory: %w", err)
	}

	if err := loadCSV(filepath.Join(dir, "forecasts.csv"), true, func(row map[string]string) error {
		week, err := time.Parse(dateLayout, row["week_ending"])
		if err != nil {
			return fmt.Errorf("bad week_ending %q: %w", row["week_ending"], err)
		}
		qty, err := parseFloat(row["forecast_qty"])
		if err != nil {
			return fmt.Errorf("bad forecast_qty %q: %w", row["forecast_qty"], err)
		}
		snap.Forecasts = append(snap.Forecasts, ForecastRecord{
			WeekEnding:  week,
			ItemID:      row["item_id"],
			LocationID:  row["location_id"],
			ForecastQty: qty,
		})
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading forecasts: %w", err)
	}

	if err := loadCSV(filepath.Join(dir, "reorder_policies.csv"), true, func(row map[string]string) error {
		minQty, err := parseFloat(row["min_qty"])
		if err != nil {
			return fmt.Errorf("bad min_qty %q: %w", row["min_qty"], err)
		}
		maxQty, err := parseFloat(row["max_qty"])
		if err != nil {
			return fmt.Errorf("bad max_qty %q: %w", row["max_qty"], err)
		}
		key := domain.SeriesKey{ItemID: row["item_id"], LocationID: row["location_id"]}
		snap.Policies[key] = ReorderPolicy{
			ItemID:     row["item_id"],
			LocationID: row["location_id"],
			MinQty:     minQty,
			MaxQty:     maxQty,
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading reorder policies: %w", err)
	}

	if len(snap.Sales) == 0 {
		return nil, ErrNoSnapshot
	}

	log.Info().
		Int("items", len(snap.Items)).
		Int("locations", len(snap.Locations)).
		Int("sales_rows", len(snap.Sales)).
		Int("inventory_rows", len(snap.Inventory)).
		Int("forecast_rows", len(snap.Forecasts)).
		Str("dir", dir).
		Msg("snapshot loaded")

	return snap, nil
}

func parseItem(row map[string]string) (Item, error) {
	item := Item{
		ItemID:      row["item_id"],
		Description: row["description"],
		Category:    row["category"],
	}
	if item.ItemID == "" {
		return Item{}, fmt.Errorf("item row missing item_id")
	}
	if v := row["shelf_life_days"]; v != "" {
		days, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Item{}, fmt.Errorf("bad shelf_life_days %q: %w", v, err)
		}
		item.ShelfLifeDays = days
	}
	if v := row["launch_date"]; v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			return Item{}, fmt.Errorf("bad launch_date %q: %w", v, err)
		}
		item.LaunchDate = d
	}
	if v := row["obsolete_date"]; v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			return Item{}, fmt.Errorf("bad obsolete_date %q: %w", v, err)
		}
		item.ObsoleteDate = &d
	}
	return item, nil
}

// loadCSV streams a header-keyed CSV file through fn. Optional files that
// do not exist are skipped silently.
func loadCSV(path string, optional bool, fn func(row map[string]string) error) error {
	f, err := os.Open(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s line %d: %w", path, line+1, err)
		}
		line++

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			}
		}
		if err := fn(row); err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
	}

	return nil
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
