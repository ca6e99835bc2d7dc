package export

import (
	"fmt"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/qbo-sales-receipts/internal/types"
)

// DefaultSheetName is the name of the report sheet.
const DefaultSheetName = "Sales Receipts"

// Column indexes of the numeric cells in types.Columns.
const (
	colTotalAmount    = 3
	colShippingAmount = 4
	colQuantity       = 6
)

// XLSXSink writes the report as an Excel workbook.
type XLSXSink struct {
	// SheetName overrides DefaultSheetName.
	SheetName string
}

// Write builds the workbook in memory and saves it to path.
func (s *XLSXSink) Write(path string, rows []types.OutputRow) error {
	sheet := s.SheetName
	if sheet == "" {
		sheet = DefaultSheetName
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	widths := make([]int, len(types.Columns))

	// Header row.
	for col, label := range types.Columns {
		if err := setString(f, sheet, col, 1, label); err != nil {
			return err
		}
		widths[col] = utf8.RuneCountInString(label)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(types.Columns), 1)
	if err := f.SetCellStyle(sheet, "A1", lastHeader, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	// Data rows. Amounts and quantities are numeric cells; a missing
	// quantity stays an empty cell.
	for i, row := range rows {
		r := i + 2
		text := row.Strings()
		for col := range types.Columns {
			var err error
			switch col {
			case colTotalAmount:
				err = setNumber(f, sheet, col, r, row.TotalAmount)
			case colShippingAmount:
				err = setNumber(f, sheet, col, r, row.ShippingAmount)
			case colQuantity:
				if row.Quantity.Valid {
					err = setNumber(f, sheet, col, r, row.Quantity.Decimal)
				}
			default:
				err = setString(f, sheet, col, r, text[col])
			}
			if err != nil {
				return err
			}
			if n := utf8.RuneCountInString(text[col]); n > widths[col] {
				widths[col] = n
			}
		}
	}

	for col, w := range widths {
		name, _ := excelize.ColumnNumberToName(col + 1)
		if err := f.SetColWidth(sheet, name, name, float64(w+2)); err != nil {
			return fmt.Errorf("failed to set width of column %s: %w", name, err)
		}
	}

	if err := ensureParent(path); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// setString writes a text cell. Empty values leave the cell unset.
func setString(f *excelize.File, sheet string, col, row int, v string) error {
	if v == "" {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return fmt.Errorf("invalid cell: %w", err)
	}
	if err := f.SetCellStr(sheet, cell, v); err != nil {
		return fmt.Errorf("failed to write cell %s: %w", cell, err)
	}
	return nil
}

func setNumber(f *excelize.File, sheet string, col, row int, v decimal.Decimal) error {
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return fmt.Errorf("invalid cell: %w", err)
	}
	if err := f.SetCellFloat(sheet, cell, v.InexactFloat64(), -1, 64); err != nil {
		return fmt.Errorf("failed to write cell %s: %w", cell, err)
	}
	return nil
}
