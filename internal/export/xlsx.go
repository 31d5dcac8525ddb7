// Package export renders the schedule table as a spreadsheet.
package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/yegors/depwatch/internal/schedule"
)

// SheetName is the worksheet holding the schedule.
const SheetName = "Schedule"

var header = []any{"Period", "Origin", "Flight", "Estimated STD", "Samples"}

// WriteSchedule writes entries as an XLSX workbook, one row per entry, sorted
// by period, origin and estimated time.
func WriteSchedule(w io.Writer, entries []schedule.Entry) error {
	f, err := build(entries)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveSchedule writes the workbook to path.
func SaveSchedule(path string, entries []schedule.Entry) error {
	f, err := build(entries)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func build(entries []schedule.Entry) (*excelize.File, error) {
	rows := make([]schedule.Entry, len(entries))
	copy(rows, entries)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		if a.OriginAirport != b.OriginAirport {
			return a.OriginAirport < b.OriginAirport
		}
		if a.EstimatedTime != b.EstimatedTime {
			return a.EstimatedTime < b.EstimatedTime
		}
		return a.FlightNumber < b.FlightNumber
	})

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "E1", bold); err != nil {
		f.Close()
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, e := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		row := []any{e.Period, e.OriginAirport, e.FlightNumber, e.EstimatedTime, e.SampleCount}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "E", 16); err != nil {
		f.Close()
		return nil, err
	}
	if len(rows) > 0 {
		if err := f.AutoFilter(SheetName, fmt.Sprintf("A1:E%d", len(rows)+1), nil); err != nil {
			f.Close()
			return nil, fmt.Errorf("add filter: %w", err)
		}
	}
	return f, nil
}
