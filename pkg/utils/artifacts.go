// =============================================================================
// QBO Sales Receipt Extractor - Artifact Writer
// =============================================================================
//
// This module writes the side files of a run, next to the report:
//   - Address debug dump (address_debug.json)
//   - Receipt debug dump (sales_receipts_debug.json)
//   - Run summary (run_summary_<timestamp>.txt, with --summary)
//
// Artifacts are written only after a successful fetch. JSON dumps use a
// 4-space indent so they diff cleanly against earlier runs.
//
// Every file is written to a temporary name in the same directory and then
// renamed, so an interrupted run never leaves a truncated artifact behind.
//
// =============================================================================

package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Artifact file names.
const (
	AddressDebugFile = "address_debug.json"
	ReceiptDebugFile = "sales_receipts_debug.json"
)

// =============================================================================
// ARTIFACT WRITER
// =============================================================================

// ArtifactWriter writes run artifacts into Dir.
type ArtifactWriter struct {
	// Dir is the directory that receives the artifacts.
	Dir string

	// Now is the clock used in generated names. Default: time.Now
	Now func() time.Time
}

// NewArtifactWriter creates an ArtifactWriter for dir.
func NewArtifactWriter(dir string) *ArtifactWriter {
	if dir == "" {
		dir = "."
	}
	return &ArtifactWriter{Dir: dir, Now: time.Now}
}

// EnsureDir creates the artifact directory if it doesn't exist.
//
// RETURNS:
//   - An error if the directory cannot be created.
func (w *ArtifactWriter) EnsureDir() error {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.Dir, err)
	}
	return nil
}

// WriteJSON writes v as indented JSON to name inside Dir.
//
// PARAMETERS:
//   - name: The file name, relative to Dir.
//   - v: The value to encode.
//
// RETURNS:
//   - The path of the written file.
//   - An error if encoding or writing fails.
func (w *ArtifactWriter) WriteJSON(name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", name, err)
	}
	data = append(data, '\n')

	path := filepath.Join(w.Dir, name)
	if err := w.writeFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// writeFile replaces path with data via a temporary file.
func (w *ArtifactWriter) writeFile(path string, data []byte) error {
	if err := w.EnsureDir(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// =============================================================================
// FILE NAMING
// =============================================================================

// GenerateFileName expands the placeholders of a file name pattern.
//
// PARAMETERS:
//   - format: The pattern. Placeholders:
//               {uuid}      - A random UUID
//               {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
//               {date}      - Current date (YYYYMMDD)
//               {time}      - Current time (HHMMSS)
//   - params: Additional placeholder values, e.g. {"days": "30"} for {days}.
//
// EXAMPLE:
//   format: "sales_receipts_{date}_{days}d.xlsx"
//   params: {"days": "30"}
//   output: "sales_receipts_20240601_30d.xlsx"
func (w *ArtifactWriter) GenerateFileName(format string, params map[string]string) string {
	now := w.now()

	replacements := map[string]string{
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
		"{time}":      now.Format("150405"),
	}
	if strings.Contains(format, "{uuid}") {
		replacements["{uuid}"] = uuid.New().String()
	}
	for key, value := range params {
		replacements["{"+key+"}"] = value
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}
	return result
}

func (w *ArtifactWriter) now() time.Time {
	if w.Now == nil {
		return time.Now()
	}
	return w.Now()
}

// =============================================================================
// RUN SUMMARY
// =============================================================================

// RunSummary contains summary information about one extract run.
type RunSummary struct {
	RunID          string
	StartTime      time.Time
	EndTime        time.Time
	Window         string
	DryRun         bool
	Receipts       int
	Rows           int
	Pages          int
	Refreshes      int
	Validation     int
	Ambiguities    int
	PriceConflicts int
	OutputFile     string
	Artifacts      []string
	Error          string
}

// WriteSummaryLog writes a run summary to a text file in Dir.
//
// RETURNS:
//   - The path to the summary file.
//   - An error if writing fails.
func (w *ArtifactWriter) WriteSummaryLog(summary RunSummary) (string, error) {
	name := fmt.Sprintf("run_summary_%s.txt", w.now().Format("20060102_150405"))
	path := filepath.Join(w.Dir, name)

	out := &strings.Builder{}

	status := "success"
	if summary.Error != "" {
		status = "failed"
	}
	output := summary.OutputFile
	if summary.DryRun {
		output = "(dry run, not written)"
	}

	fmt.Fprintf(out, "QBO Sales Receipt Extractor - Run Summary\n"+
		"================================================================================\n\n"+
		"Run Information:\n"+
		"  Run ID:         %s\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n"+
		"  Window:         %s\n"+
		"  Status:         %s\n\n"+
		"Statistics:\n"+
		"  Receipts:        %d\n"+
		"  Rows:            %d\n"+
		"  Pages:           %d\n"+
		"  Token Refreshes: %d\n"+
		"  Validation:      %d\n"+
		"  Ambiguities:     %d\n"+
		"  Price Conflicts: %d\n\n"+
		"Output:\n"+
		"  Report:          %s\n",
		summary.RunID,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Sub(summary.StartTime).String(),
		summary.Window,
		status,
		summary.Receipts,
		summary.Rows,
		summary.Pages,
		summary.Refreshes,
		summary.Validation,
		summary.Ambiguities,
		summary.PriceConflicts,
		output)

	for _, a := range summary.Artifacts {
		fmt.Fprintf(out, "  Artifact:        %s\n", a)
	}
	if summary.Error != "" {
		fmt.Fprintf(out, "\nError:\n  %s\n", summary.Error)
	}

	out.WriteString("\n================================================================================\n" +
		"End of Summary\n")

	if err := w.writeFile(path, []byte(out.String())); err != nil {
		return "", err
	}
	return path, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
