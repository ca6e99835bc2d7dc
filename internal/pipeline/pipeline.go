// =============================================================================
// QBO Sales Receipt Extractor - Extraction Pipeline
// =============================================================================
//
// This module runs one extraction from start to finish.
//
// PIPELINE:
//   1. Compute the query window from the day count
//   2. Authorize the session
//   3. Fetch every receipt of the window
//   4. Validate the receipts
//   5. Transform each receipt, in fetch order
//   6. Write the report through the sink (skipped on dry run)
//   7. Write the enabled debug artifacts
//
// FAILURE:
//   An authorization, fetch or strict validation failure ends the run before
//   step 5. The sink is not called and no artifact is written, so a failed
//   run never replaces a good report with a partial one.
//
// =============================================================================

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ginjaninja78/qbo-sales-receipts/internal/address"
	"github.com/ginjaninja78/qbo-sales-receipts/internal/export"
	"github.com/ginjaninja78/qbo-sales-receipts/internal/fetcher"
	"github.com/ginjaninja78/qbo-sales-receipts/internal/transformer"
	"github.com/ginjaninja78/qbo-sales-receipts/internal/types"
	"github.com/ginjaninja78/qbo-sales-receipts/internal/validation"
	"github.com/ginjaninja78/qbo-sales-receipts/pkg/utils"
)

// Authorizer is the session manager as seen by the pipeline.
type Authorizer interface {
	fetcher.Authorizer
	Refreshes() int
}

// Fetcher retrieves the receipts of a window. *fetcher.Fetcher implements it.
type Fetcher interface {
	FetchReceipts(ctx context.Context, window types.QueryWindow, auth fetcher.Authorizer) ([]types.SalesReceipt, error)
	Stats() fetcher.Stats
}

// =============================================================================
// OPTIONS AND RESULT
// =============================================================================

// Options configures a Pipeline.
type Options struct {
	// OutputFile is the report path. It may use the placeholders of
	// utils.ArtifactWriter.GenerateFileName; {days} is the day count.
	OutputFile string

	// DryRun runs everything except writing the report.
	DryRun bool

	// AddressDebug writes utils.AddressDebugFile.
	AddressDebug bool

	// ReceiptDebug writes utils.ReceiptDebugFile.
	ReceiptDebug bool

	// StrictValidation fails the run when any receipt has a validation
	// finding.
	StrictValidation bool

	// DetailStates, ShippingItemID and PriceConflict configure the
	// transformation; see config.Config.
	DetailStates   []string
	ShippingItemID string
	PriceConflict  string

	// Now is the clock. Default: time.Now
	Now func() time.Time

	// Logger receives run level messages.
	Logger logrus.FieldLogger
}

// Stats contains statistics about a run.
type Stats struct {
	Pages            int
	Refreshes        int
	ValidationIssues int
	Ambiguities      int
	PriceConflicts   int
	Duration         time.Duration
}

// Result represents the outcome of one run.
type Result struct {
	// Window is the queried date range.
	Window types.QueryWindow

	// Receipts is the number of receipts fetched.
	Receipts int

	// Rows are the report rows, in receipt order.
	Rows []types.OutputRow

	// OutputFile is the written report, empty on dry run or failure.
	OutputFile string

	// Artifacts are the debug files written.
	Artifacts []string

	// Stats contains run statistics.
	Stats Stats

	// StartTime is when the run began.
	StartTime time.Time

	// Err is the error that ended the run, nil on success.
	Err error
}

// Summary returns the run summary record of r.
func (r Result) Summary(runID string, dryRun bool) utils.RunSummary {
	s := utils.RunSummary{
		RunID:          runID,
		StartTime:      r.StartTime,
		EndTime:        r.StartTime.Add(r.Stats.Duration),
		Window:         r.Window.String(),
		DryRun:         dryRun,
		Receipts:       r.Receipts,
		Rows:           len(r.Rows),
		Pages:          r.Stats.Pages,
		Refreshes:      r.Stats.Refreshes,
		Validation:     r.Stats.ValidationIssues,
		Ambiguities:    r.Stats.Ambiguities,
		PriceConflicts: r.Stats.PriceConflicts,
		OutputFile:     r.OutputFile,
		Artifacts:      r.Artifacts,
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline wires the components of an extraction.
type Pipeline struct {
	auth      Authorizer
	fetcher   Fetcher
	sink      export.Sink
	artifacts *utils.ArtifactWriter
	opts      Options
}

// New creates a Pipeline.
//
// PARAMETERS:
//   - auth: The session manager.
//   - f: The receipt fetcher.
//   - sink: The report writer.
//   - artifacts: The debug artifact writer.
//   - opts: Run options.
func New(auth Authorizer, f Fetcher, sink export.Sink, artifacts *utils.ArtifactWriter, opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if artifacts == nil {
		artifacts = utils.NewArtifactWriter(".")
	}
	return &Pipeline{auth: auth, fetcher: f, sink: sink, artifacts: artifacts, opts: opts}
}

// Run executes one extraction over the last days days.
func (p *Pipeline) Run(ctx context.Context, days int) Result {
	start := p.opts.Now()
	result := Result{StartTime: start}
	log := p.opts.Logger

	finish := func() Result {
		result.Stats.Duration = p.opts.Now().Sub(start)
		result.Stats.Refreshes = p.auth.Refreshes()
		return result
	}

	// =========================================================================
	// STEP 1: QUERY WINDOW
	// =========================================================================

	window, err := types.NewQueryWindow(start, days)
	if err != nil {
		result.Err = err
		return finish()
	}
	result.Window = window
	log.WithField("window", window.String()).Info("starting extract")

	// =========================================================================
	// STEP 2-3: AUTHORIZE AND FETCH
	// =========================================================================

	if _, err := p.auth.EnsureAuthorized(ctx); err != nil {
		result.Err = err
		return finish()
	}

	receipts, err := p.fetcher.FetchReceipts(ctx, window, p.auth)
	result.Stats.Pages = p.fetcher.Stats().Pages
	if err != nil {
		result.Err = err
		return finish()
	}
	result.Receipts = len(receipts)
	log.WithFields(logrus.Fields{
		"count": len(receipts),
		"pages": result.Stats.Pages,
	}).Info("receipts fetched")

	// =========================================================================
	// STEP 4: VALIDATE
	// =========================================================================

	validator := validation.NewValidator(window, validation.ValidationOptions{
		TreatWarningsAsErrors: p.opts.StrictValidation,
	})
	checked := validator.ValidateAll(receipts)
	result.Stats.ValidationIssues = len(checked.Errors)
	for _, e := range checked.Errors {
		log.WithFields(logrus.Fields{
			"receipt_id": e.ReceiptID,
			"field":      e.Field,
			"value":      e.Value,
		}).Warn(e.Message)
	}
	if !checked.IsValid {
		result.Err = fmt.Errorf("%d receipt validation error(s) with strict validation enabled", checked.ErrorCount)
		return finish()
	}

	// =========================================================================
	// STEP 5: TRANSFORM
	// =========================================================================

	resolver := address.NewResolver(address.Options{
		Debug:        p.opts.AddressDebug,
		DetailStates: p.opts.DetailStates,
		Logger:       log,
	})
	tr := transformer.New(resolver, transformer.Options{
		ShippingItemID: p.opts.ShippingItemID,
		PriceConflict:  p.opts.PriceConflict,
		Debug:          p.opts.ReceiptDebug,
		Logger:         log,
	})

	rows := make([]types.OutputRow, 0, len(receipts))
	for _, r := range receipts {
		receiptRows, conflicts := tr.Transform(r)
		rows = append(rows, receiptRows...)
		result.Stats.PriceConflicts += len(conflicts)
	}
	result.Rows = rows
	result.Stats.Ambiguities = len(resolver.Ambiguities())

	// =========================================================================
	// STEP 6: EXPORT
	// =========================================================================

	if p.opts.DryRun {
		log.WithField("rows", len(rows)).Info("dry run, report not written")
	} else {
		path := p.artifacts.GenerateFileName(p.opts.OutputFile, map[string]string{"days": strconv.Itoa(days)})
		if err := p.sink.Write(path, rows); err != nil {
			result.Err = fmt.Errorf("failed to write report: %w", err)
			return finish()
		}
		result.OutputFile = path
		log.WithFields(logrus.Fields{"rows": len(rows), "file": path}).Info("report written")
	}

	// =========================================================================
	// STEP 7: DEBUG ARTIFACTS
	// =========================================================================

	if err := p.writeArtifacts(&result, resolver, tr); err != nil {
		result.Err = err
	}
	return finish()
}

// writeArtifacts writes the enabled debug dumps.
func (p *Pipeline) writeArtifacts(result *Result, resolver *address.Resolver, tr *transformer.Transformer) error {
	var errs []error

	if p.opts.AddressDebug {
		ambiguities := resolver.Ambiguities()
		if ambiguities == nil {
			ambiguities = []address.Ambiguity{}
		}
		if path, err := p.artifacts.WriteJSON(utils.AddressDebugFile, ambiguities); err != nil {
			errs = append(errs, err)
		} else {
			result.Artifacts = append(result.Artifacts, path)
		}
	}

	if p.opts.ReceiptDebug {
		records := make(map[string]transformer.DebugRecord)
		for _, rec := range tr.DebugRecords() {
			records[rec.ReceiptID] = rec
		}
		if path, err := p.artifacts.WriteJSON(utils.ReceiptDebugFile, records); err != nil {
			errs = append(errs, err)
		} else {
			result.Artifacts = append(result.Artifacts, path)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to write debug artifacts: %w", err)
	}
	return nil
}
