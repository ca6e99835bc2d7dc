// =============================================================================
// QBO Sales Receipt Extractor - Version Command
// =============================================================================
//
// This file defines the 'version' command, which displays the application
// version and build information.
//
// COMMAND USAGE:
//   receipts version
//
// OUTPUT:
//   QBO Sales Receipt Extractor
//   Version:       1.0.0
//   Build Date:    2024-06-01
//   Go Version:    go1.24.0
//   Minor Version: 65
//
// =============================================================================

package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/qbo-sales-receipts/internal/config"
)

// =============================================================================
// VERSION INFORMATION
// =============================================================================
// These variables are set at build time using ldflags.
// Example build command:
//   go build -ldflags "-X 'github.com/ginjaninja78/qbo-sales-receipts/cmd.Version=1.0.0'"

// Version is the application version.
var Version = "1.0.0"

// BuildDate is the date the application was built.
var BuildDate = "unknown"

// versionCmd represents the 'version' command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the application version",
	Long:  `Display the application version, build date, Go runtime version and the default API minor version.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("QBO Sales Receipt Extractor")
		fmt.Printf("Version:       %s\n", Version)
		fmt.Printf("Build Date:    %s\n", BuildDate)
		fmt.Printf("Go Version:    %s\n", runtime.Version())
		fmt.Printf("Minor Version: %d\n", config.DefaultMinorVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
