// =============================================================================
// QBO Sales Receipt Extractor - Main Entry Point
// =============================================================================
//
// This is the main entry point of the receipts CLI. It delegates command
// execution to the cmd package.
//
// USAGE:
//   receipts extract       - Export the sales receipts of the last N days
//   receipts auth          - Refresh the access token, persist a rotated token
//   receipts version       - Display the application version
//
// ARCHITECTURE:
//   - cmd/                 : CLI command definitions (Cobra)
//   - internal/config      : Configuration file, environment and validation
//   - internal/session     : OAuth2 access token lifecycle
//   - internal/fetcher     : Paginated SalesReceipt queries
//   - internal/validation  : Receipt field checks before transformation
//   - internal/address     : Address to state/country resolution
//   - internal/transformer : Receipt to report rows
//   - internal/types       : Records shared by the packages above
//   - internal/export      : XLSX and CSV report writers
//   - internal/pipeline    : One extraction run, end to end
//   - internal/logging     : Run logger
//   - pkg/utils            : Debug artifacts and run summaries
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/qbo-sales-receipts/cmd"
)

func main() {
	cmd.Execute()
}
