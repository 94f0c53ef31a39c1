package occupancy

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/bedtrack/bedtrack/internal/domain/bed"
)

const (
	summarySheet   = "Summary"
	inventorySheet = "Beds"
	timeLayout     = "2006-01-02 15:04"
)

var summaryHeader = []string{"Ward", "Total", "Available", "Occupied", "Cleaning", "Reserved", "Maintenance", "Occupancy %"}

var inventoryHeader = []string{"Bed", "Ward", "Status", "Equipment", "Floor", "Section", "Room", "Last Cleaned", "Notes"}

// ExportXLSX renders the ward summary and the bed inventory as a workbook.
func (s *Service) ExportXLSX(ctx context.Context) ([]byte, error) {
	sum, err := s.Summary(ctx)
	if err != nil {
		return nil, err
	}
	beds, err := s.inventory(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(inventorySheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	rows := make([][]interface{}, 0, len(sum.Wards)+1)
	for _, w := range append(sum.Wards, sum.Hospital) {
		rows = append(rows, []interface{}{w.Ward, w.Total, w.Available, w.Occupied, w.Cleaning, w.Reserved, w.Maintenance, w.OccupancyPct})
	}
	if err := writeSheet(f, summarySheet, summaryHeader, rows, headerStyle); err != nil {
		return nil, err
	}

	rows = rows[:0]
	for _, b := range beds {
		rows = append(rows, inventoryRow(b))
	}
	if err := writeSheet(f, inventorySheet, inventoryHeader, rows, headerStyle); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func inventoryRow(b *bed.Bed) []interface{} {
	cleaned := ""
	if b.LastCleanedAt != nil {
		cleaned = b.LastCleanedAt.UTC().Format(timeLayout)
	}
	return []interface{}{b.BedNumber, b.Ward, string(b.Status), b.EquipmentType, b.Floor, b.Section, b.RoomNumber, cleaned, b.Notes}
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]interface{}, headerStyle int) error {
	for col, title := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return fmt.Errorf("set header %s: %w", cell, err)
		}
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("header cell: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row cell: %w", err)
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("write row %d of %s: %w", i+2, sheet, err)
		}
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return fmt.Errorf("column name: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 16); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	return nil
}
