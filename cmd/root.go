// =============================================================================
// QBO Sales Receipt Extractor - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. All other commands
// are attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (receipts)
//   ├── extractCmd (receipts extract)
//   ├── authCmd    (receipts auth)
//   └── versionCmd (receipts version)
//
// The root command owns the global flags (--config, --verbose) and the
// shared setup of every command: loading the configuration and building the
// run logger.
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/qbo-sales-receipts/internal/config"
	"github.com/ginjaninja78/qbo-sales-receipts/internal/logging"
	"github.com/ginjaninja78/qbo-sales-receipts/internal/session"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the configuration file.
var cfgFile string

// verbose enables debug logging when set to true.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "receipts",
	Short: "QBO Sales Receipt Extractor - Export recent sales receipts to a spreadsheet",
	Long: `receipts pulls the SalesReceipt records of a QuickBooks Online company for a
recent window of days and writes them as one flat report: one row per SKU,
with date, customer, state or country, total and shipping cost.

Key Features:
  - OAuth2 refresh token flow with automatic token rotation
  - Paginated, retried queries; a failed run never writes a partial report
  - Region resolution for domestic (state) and international (country) addresses
  - XLSX or CSV output, optional address and receipt debug dumps

Example Usage:
  receipts extract                     # Last 30 days (or default_days) to sales_receipts.xlsx
  receipts extract --days 7 --format csv --output week.csv
  receipts auth                        # Check the credentials and rotate the token`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if session.IsAuthError(err) {
			fmt.Fprintln(os.Stderr, "If the refresh token was revoked or expired, re-authorize the app and update refresh_token in the config.")
		}
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		config.DefaultConfigFile,
		"Path to the configuration file (config.json is tried when config.yaml is missing)",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// runEnv is what every command needs: the configuration and a logger
// tagged with the run id.
type runEnv struct {
	cfg    *config.Config
	logger *logging.Logger
	log    logrus.FieldLogger
	runID  string
}

// setup loads the configuration and builds the logger.
func setup() (*runEnv, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.Setup(logging.Options{
		Level:   cfg.LogLevel,
		Verbose: verbose,
		File:    cfg.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	runID := logging.NewRunID()
	log := logger.WithField(logging.RunIDField, runID)
	log.WithFields(logrus.Fields{
		"config":      cfg.Path(),
		"credentials": cfg.Credentials().String(),
	}).Debug("configuration loaded")

	return &runEnv{cfg: cfg, logger: logger, log: log, runID: runID}, nil
}

func (r *runEnv) close() {
	if err := r.logger.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
	}
}
