package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/qbo-sales-receipts/internal/types"
)

func testWindow(t *testing.T) types.QueryWindow {
	t.Helper()
	w, err := types.NewQueryWindow(time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC), 30)
	if err != nil {
		t.Fatalf("NewQueryWindow() error = %v", err)
	}
	return w
}

func validReceipt() types.SalesReceipt {
	return types.SalesReceipt{
		ID:          "42",
		TxnDate:     "2024-06-01",
		CustomerRef: &types.Ref{Value: "7", Name: "Acme Co"},
		TotalAmt:    decimal.NewFromInt(150),
		Line: []types.Line{
			{DetailType: types.DetailTypeSalesItem, SalesItemLineDetail: &types.SalesItemLineDetail{ItemRef: &types.Ref{Value: "1", Name: "A1"}}},
			{DetailType: "SubTotalLineDetail"},
		},
	}
}

func TestValidateReceipt(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(r *types.SalesReceipt)
		wantFields []string
	}{
		{name: "Valid", mutate: func(r *types.SalesReceipt) {}},
		{name: "WindowEdges", mutate: func(r *types.SalesReceipt) { r.TxnDate = "2024-05-31" }},
		{name: "MissingID", mutate: func(r *types.SalesReceipt) { r.ID = "" }, wantFields: []string{"Id"}},
		{name: "BadDate", mutate: func(r *types.SalesReceipt) { r.TxnDate = "06/01/2024" }, wantFields: []string{"TxnDate"}},
		{name: "DateOutsideWindow", mutate: func(r *types.SalesReceipt) { r.TxnDate = "2024-07-01" }, wantFields: []string{"TxnDate"}},
		{name: "NoCustomer", mutate: func(r *types.SalesReceipt) { r.CustomerRef = nil }, wantFields: []string{"CustomerRef.name"}},
		{name: "NegativeTotal", mutate: func(r *types.SalesReceipt) { r.TotalAmt = decimal.NewFromInt(-1) }, wantFields: []string{"TotalAmt"}},
		{
			name:       "ItemLineWithoutItem",
			mutate:     func(r *types.SalesReceipt) { r.Line[0].SalesItemLineDetail.ItemRef = nil },
			wantFields: []string{"Line[0].SalesItemLineDetail.ItemRef"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReceipt()
			tt.mutate(&r)

			var got []string
			for _, e := range NewValidator(testWindow(t), ValidationOptions{}).ValidateReceipt(&r) {
				if e.Severity != SeverityWarning {
					t.Errorf("Severity = %q, want warning", e.Severity)
				}
				got = append(got, e.Field)
			}
			if diff := cmp.Diff(tt.wantFields, got); diff != "" {
				t.Errorf("fields mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidateAll(t *testing.T) {
	bad := validReceipt()
	bad.ID = ""
	receipts := []types.SalesReceipt{validReceipt(), bad}

	lenient := NewValidator(testWindow(t), ValidationOptions{}).ValidateAll(receipts)
	if !lenient.IsValid || lenient.WarningCount != 1 || lenient.ErrorCount != 0 || lenient.ReceiptsValidated != 2 {
		t.Errorf("lenient result = %+v", lenient)
	}

	strict := NewValidator(testWindow(t), ValidationOptions{TreatWarningsAsErrors: true}).ValidateAll(receipts)
	if strict.IsValid || strict.ErrorCount != 1 || strict.WarningCount != 0 {
		t.Errorf("strict result = %+v", strict)
	}
}

func TestFormatErrors(t *testing.T) {
	if got := FormatErrors(nil); got != "No validation errors." {
		t.Errorf("FormatErrors(nil) = %q", got)
	}
	errs := []*ValidationError{{Severity: SeverityWarning, ReceiptID: "9", Field: "TxnDate", Value: "x", Message: "date is not in YYYY-MM-DD format"}}
	got := FormatErrors(errs)
	want := "1. [WARNING] Receipt 9, Field 'TxnDate': date is not in YYYY-MM-DD format (value: 'x')"
	if !strings.Contains(got, want) {
		t.Errorf("FormatErrors() = %q, want it to contain %q", got, want)
	}
}
