// =============================================================================
// QBO Sales Receipt Extractor - Validation Engine
// =============================================================================
//
// This module checks fetched receipts for data the report cannot represent
// faithfully, before they are transformed.
//
// CHECKS (per receipt):
//   - Id present
//   - TxnDate is a YYYY-MM-DD date inside the query window
//   - CustomerRef.name present
//   - TotalAmt not negative
//   - every SalesItemLineDetail line has an ItemRef
//
// SEVERITY:
//   Every finding is a warning: the receipt is still transformed and shows
//   up in the report with blank or "Unknown" cells. With strict validation
//   warnings are treated as errors and the run stops before the report is
//   written.
//
// ERROR HANDLING:
//   - Findings are collected, not returned one by one
//   - Each finding names the receipt, the field and the offending value
//
// =============================================================================

package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/ginjaninja78/qbo-sales-receipts/internal/types"
)

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single finding.
type ValidationError struct {
	// Severity is SeverityError or SeverityWarning.
	Severity string `json:"severity"`

	// ReceiptID is the Id of the receipt, "" when it has none.
	ReceiptID string `json:"receipt_id"`

	// Field is the entity field that failed validation.
	Field string `json:"field"`

	// Value is the offending value.
	Value string `json:"value"`

	// Rule is the check that was violated.
	Rule string `json:"rule"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] Receipt %s, Field '%s': %s (value: '%s')",
		strings.ToUpper(e.Severity),
		e.ReceiptID,
		e.Field,
		e.Message,
		e.Value,
	)
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult contains the results of validation.
type ValidationResult struct {
	// IsValid is true if there are no errors.
	IsValid bool

	// Errors contains all findings, warnings included.
	Errors []*ValidationError

	// ErrorCount is the number of errors.
	ErrorCount int

	// WarningCount is the number of warnings.
	WarningCount int

	// ReceiptsValidated is the number of receipts checked.
	ReceiptsValidated int
}

// =============================================================================
// VALIDATOR
// =============================================================================

// ValidationOptions contains options for validation.
type ValidationOptions struct {
	// TreatWarningsAsErrors turns every warning into an error.
	// Default: false
	TreatWarningsAsErrors bool
}

// Validator checks receipts fetched for one window.
type Validator struct {
	window  types.QueryWindow
	options ValidationOptions
}

// NewValidator creates a Validator for receipts of window.
func NewValidator(window types.QueryWindow, options ValidationOptions) *Validator {
	return &Validator{window: window, options: options}
}

// ValidateAll validates every receipt.
func (v *Validator) ValidateAll(receipts []types.SalesReceipt) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	for i := range receipts {
		for _, e := range v.ValidateReceipt(&receipts[i]) {
			result.Errors = append(result.Errors, e)
			if e.Severity == SeverityError {
				result.ErrorCount++
				result.IsValid = false
			} else {
				result.WarningCount++
			}
		}
		result.ReceiptsValidated++
	}
	return result
}

// ValidateReceipt validates one receipt.
func (v *Validator) ValidateReceipt(r *types.SalesReceipt) []*ValidationError {
	var errs []*ValidationError
	add := func(field, value, rule, message string) {
		severity := SeverityWarning
		if v.options.TreatWarningsAsErrors {
			severity = SeverityError
		}
		errs = append(errs, &ValidationError{
			Severity:  severity,
			ReceiptID: r.ID,
			Field:     field,
			Value:     value,
			Rule:      rule,
			Message:   message,
		})
	}

	if strings.TrimSpace(r.ID) == "" {
		add("Id", "", "required", "receipt has no Id")
	}

	if msg := v.validateDate(r.TxnDate); msg != "" {
		add("TxnDate", r.TxnDate, "date", msg)
	}

	if strings.TrimSpace(r.CustomerName()) == "" {
		add("CustomerRef.name", "", "required", "receipt has no customer name")
	}

	if r.TotalAmt.IsNegative() {
		add("TotalAmt", r.TotalAmt.String(), "non_negative", "total amount is negative")
	}

	for i, line := range r.Line {
		if line.DetailType != types.DetailTypeSalesItem {
			continue
		}
		if line.SalesItemLineDetail == nil || line.SalesItemLineDetail.ItemRef == nil {
			add(fmt.Sprintf("Line[%d].SalesItemLineDetail.ItemRef", i), "", "required", "item line has no item reference")
		}
	}

	return errs
}

// validateDate returns an error message, or "" if the date is valid.
func (v *Validator) validateDate(value string) string {
	d, err := time.ParseInLocation(types.DateLayout, value, v.window.Start.Location())
	if err != nil {
		return "date is not in YYYY-MM-DD format"
	}
	if d.Before(v.window.Start) || d.After(v.window.End) {
		return fmt.Sprintf("date is outside the query window %s", v.window)
	}
	return ""
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats findings for display.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d validation issue(s):\n\n", len(errors)))
	for i, err := range errors {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}
