// =============================================================================
// QBO Sales Receipt Extractor - Export Sinks
// =============================================================================
//
// This package writes the transformed rows to the report file.
//
// COLUMNS (fixed order):
//   | Date       | Customer | State/Country | Total Amount | Shipping Cost | SKU | Quantity |
//   |------------|----------|---------------|--------------|---------------|-----|----------|
//   | 2024-06-01 | Acme Co  | CA            | 150          | 10            | A1  | 3        |
//   | 2024-06-01 | Acme Co  | CA            | 150          | 10            | B2  |          |
//
// FORMATS:
//   - xlsx: one sheet, bold header, numeric amount cells, auto-sized columns
//   - csv:  same columns, text cells
//
// A sink is only called after the whole fetch succeeded; it never sees a
// partial run.
//
// =============================================================================

package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ginjaninja78/qbo-sales-receipts/internal/config"
	"github.com/ginjaninja78/qbo-sales-receipts/internal/types"
)

// Sink writes report rows to a file.
type Sink interface {
	// Write replaces the file at path with rows. An empty rows slice
	// produces a header-only report.
	Write(path string, rows []types.OutputRow) error
}

// New returns the sink for an output format ("xlsx" or "csv").
func New(format string) (Sink, error) {
	switch format {
	case config.FormatXLSX, "":
		return &XLSXSink{}, nil
	case config.FormatCSV:
		return &CSVSink{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// ensureParent creates the directory that will hold path.
func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}
