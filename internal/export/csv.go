package export

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/ginjaninja78/qbo-sales-receipts/internal/types"
)

// CSVSink writes the report as a CSV file.
type CSVSink struct {
	// Comma is the field delimiter. Default: ','
	Comma rune
}

// Write creates (or truncates) path and writes the header and rows.
func (s *CSVSink) Write(path string, rows []types.OutputRow) (err error) {
	if err := ensureParent(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()

	w := csv.NewWriter(file)
	if s.Comma != 0 {
		w.Comma = s.Comma
	}
	if err := w.Write(types.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range rows {
		if err := w.Write(row.Strings()); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
