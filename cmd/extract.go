// =============================================================================
// QBO Sales Receipt Extractor - Extract Command
// =============================================================================
//
// This file defines the 'extract' command, the main command of the tool.
//
// COMMAND USAGE:
//   receipts extract [flags]
//
// FLAGS:
//   --days          : Number of days to extract (default: default_days)
//   --output        : Report path, placeholders allowed (default: output_file)
//   --format        : xlsx or csv (default: output_format)
//   --dry-run       : Fetch and transform without writing the report
//   --summary       : Write a run summary file into debug_dir
//   --address-debug : Dump unresolved addresses
//   --receipt-debug : Dump raw receipts next to their rows
//   --strict        : Fail on receipt validation findings
//
// PIPELINE:
//   1. Load configuration
//   2. Refresh the access token (persisting a rotated refresh token)
//   3. Fetch, transform, export
//   4. Print the outcome
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/qbo-sales-receipts/internal/pipeline"
	"github.com/ginjaninja78/qbo-sales-receipts/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	days         int
	outputFile   string
	outputFormat string
	dryRun       bool
	writeSummary bool
	addressDebug bool
	receiptDebug bool
	strict       bool
)

// =============================================================================
// EXTRACT COMMAND DEFINITION
// =============================================================================

// extractCmd represents the 'extract' command.
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Export the sales receipts of the last N days",
	Long: `The extract command fetches every sales receipt dated within the last N days
(today included) and writes one report row per SKU.

On success:
  - The report is written to the output file
  - Enabled debug dumps are written to debug_dir

On error:
  - Nothing is written; an existing report is left untouched
  - The command exits with status 1`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtract(cmd)
	},
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().IntVar(&days, "days", 0, "Number of days of sales receipts to extract (default: default_days from the config)")
	extractCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Report path; {date}, {timestamp} and {days} are expanded")
	extractCmd.Flags().StringVar(&outputFormat, "format", "", "Report format: xlsx or csv")
	extractCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Fetch and transform without writing the report")
	extractCmd.Flags().BoolVar(&writeSummary, "summary", false, "Write a run summary file into debug_dir")
	extractCmd.Flags().BoolVar(&addressDebug, "address-debug", false, "Dump addresses that could not be resolved")
	extractCmd.Flags().BoolVar(&receiptDebug, "receipt-debug", false, "Dump every raw receipt next to its rows")
	extractCmd.Flags().BoolVar(&strict, "strict", false, "Fail when a receipt has missing or inconsistent fields")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// runExtract runs one extraction.
func runExtract(cmd *cobra.Command) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.close()

	n := env.cfg.DefaultDays
	if cmd.Flags().Changed("days") {
		n = days
	}
	if n < 0 {
		return fmt.Errorf("--days must not be negative, got %d", n)
	}

	p, err := pipeline.FromConfig(env.cfg, outputFormat, pipeline.Options{
		OutputFile:       outputFile,
		DryRun:           dryRun,
		AddressDebug:     addressDebug,
		ReceiptDebug:     receiptDebug,
		StrictValidation: strict,
	}, env.log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := p.Run(ctx, n)

	if writeSummary {
		artifacts := utils.NewArtifactWriter(env.cfg.DebugDir)
		path, err := artifacts.WriteSummaryLog(result.Summary(env.runID, dryRun))
		if err != nil {
			env.log.WithError(err).Error("failed to write run summary")
		} else {
			fmt.Printf("Summary written to %s\n", path)
		}
	}

	if result.Err != nil {
		return result.Err
	}

	env.log.WithFields(logrus.Fields{
		"receipts":        result.Receipts,
		"rows":            len(result.Rows),
		"pages":           result.Stats.Pages,
		"refreshes":       result.Stats.Refreshes,
		"validation":      result.Stats.ValidationIssues,
		"ambiguities":     result.Stats.Ambiguities,
		"price_conflicts": result.Stats.PriceConflicts,
		"duration":        result.Stats.Duration.String(),
	}).Info("extract finished")

	if dryRun {
		fmt.Printf("Dry run: %d receipts from the last %d days produced %d rows (%s)\n",
			result.Receipts, n, len(result.Rows), result.Window)
	} else {
		fmt.Printf("Sales receipts from the last %d days have been saved to %s\n", n, result.OutputFile)
	}
	for _, a := range result.Artifacts {
		fmt.Printf("Debug file written to %s\n", a)
	}
	return nil
}
