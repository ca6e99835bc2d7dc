// =============================================================================
// QBO Sales Receipt Extractor - Shared Types
// =============================================================================
//
// This package contains the records shared by the fetcher, the transformer,
// the address resolver and the export sinks. Keeping them here avoids import
// cycles between those packages.
//
// The remote SalesReceipt entity is loosely typed JSON. It is modelled here as
// a closed set of structs where every optional field is explicit, so that the
// transformer handles missing fields in one place.
//
// =============================================================================

package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownRegion is the region label used when an address cannot be resolved.
const UnknownRegion = "Unknown"

// DateLayout is the date format used by the remote API and in output rows.
const DateLayout = "2006-01-02"

// =============================================================================
// RAW RECEIPT ENTITY
// =============================================================================

// SalesReceipt is one SalesReceipt entity as returned by the query endpoint.
// Only the fields used by the extractor are decoded; Raw keeps the full
// original document for debug dumps.
type SalesReceipt struct {
	ID          string          `json:"Id"`
	DocNumber   string          `json:"DocNumber,omitempty"`
	TxnDate     string          `json:"TxnDate"`
	CustomerRef *Ref            `json:"CustomerRef,omitempty"`
	TotalAmt    decimal.Decimal `json:"TotalAmt"`
	BillAddr    *Address        `json:"BillAddr,omitempty"`
	ShipAddr    *Address        `json:"ShipAddr,omitempty"`
	Line        []Line          `json:"Line,omitempty"`

	// Raw is the undecoded entity. It is not part of the wire shape.
	Raw json.RawMessage `json:"-"`
}

// CustomerName returns the customer display name, or "" when absent.
func (r *SalesReceipt) CustomerName() string {
	if r.CustomerRef == nil {
		return ""
	}
	return r.CustomerRef.Name
}

// Ref is a reference to another entity (customer, item).
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

// Address is a physical address block (BillAddr / ShipAddr).
type Address struct {
	ID                     string `json:"Id,omitempty"`
	Line1                  string `json:"Line1,omitempty"`
	Line2                  string `json:"Line2,omitempty"`
	Line3                  string `json:"Line3,omitempty"`
	Line4                  string `json:"Line4,omitempty"`
	Line5                  string `json:"Line5,omitempty"`
	City                   string `json:"City,omitempty"`
	CountrySubDivisionCode string `json:"CountrySubDivisionCode,omitempty"`
	PostalCode             string `json:"PostalCode,omitempty"`
	Country                string `json:"Country,omitempty"`
}

// Lines returns Line1 through Line5 in order, blanks included.
func (a *Address) Lines() []string {
	return []string{a.Line1, a.Line2, a.Line3, a.Line4, a.Line5}
}

// HasLocality reports whether the block carries any usable locality data.
// A nil address has none.
func (a *Address) HasLocality() bool {
	if a == nil {
		return false
	}
	fields := append(a.Lines(), a.City, a.CountrySubDivisionCode, a.PostalCode, a.Country)
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return true
		}
	}
	return false
}

// Line is one line of a receipt. Only SalesItemLineDetail lines carry items.
type Line struct {
	ID                  string               `json:"Id,omitempty"`
	LineNum             int                  `json:"LineNum,omitempty"`
	Description         string               `json:"Description,omitempty"`
	Amount              decimal.Decimal      `json:"Amount"`
	DetailType          string               `json:"DetailType"`
	SalesItemLineDetail *SalesItemLineDetail `json:"SalesItemLineDetail,omitempty"`
}

// DetailTypeSalesItem is the DetailType of item lines.
const DetailTypeSalesItem = "SalesItemLineDetail"

// SalesItemLineDetail holds the item reference and quantity of an item line.
type SalesItemLineDetail struct {
	ItemRef   *Ref                `json:"ItemRef,omitempty"`
	Qty       decimal.NullDecimal `json:"Qty"`
	UnitPrice decimal.NullDecimal `json:"UnitPrice"`
}

// =============================================================================
// NORMALIZED RECORDS
// =============================================================================

// NormalizedAddress is the region label resolved from an address block.
type NormalizedAddress struct {
	// Label is a state code (domestic) or a country name (international),
	// or UnknownRegion.
	Label string

	// Resolved is false when Label is UnknownRegion.
	Resolved bool
}

// OutputRow is one flat row of the report. Columns are exported in the field
// order below.
type OutputRow struct {
	Date           string              `json:"date"`
	Name           string              `json:"name"`
	Region         string              `json:"region"`
	TotalAmount    decimal.Decimal     `json:"total_amount"`
	ShippingAmount decimal.Decimal     `json:"shipping_amount"`
	SKU            string              `json:"sku"`
	Quantity       decimal.NullDecimal `json:"quantity"`
}

// Columns are the header labels of an exported report, in column order.
var Columns = []string{
	"Date",
	"Customer",
	"State/Country",
	"Total Amount",
	"Shipping Cost",
	"SKU",
	"Quantity",
}

// QuantityText returns the quantity column text, blank when absent.
func (r OutputRow) QuantityText() string {
	if !r.Quantity.Valid {
		return ""
	}
	return r.Quantity.Decimal.String()
}

// AmountText renders a money amount with the decimal places it carries,
// at least two: 150.00 stays "150.00", 7 becomes "7.00".
func AmountText(d decimal.Decimal) string {
	places := int32(2)
	if exp := -d.Exponent(); exp > places {
		places = exp
	}
	return d.StringFixed(places)
}

// Strings returns the row rendered as text cells in column order.
func (r OutputRow) Strings() []string {
	return []string{
		r.Date,
		r.Name,
		r.Region,
		AmountText(r.TotalAmount),
		AmountText(r.ShippingAmount),
		r.SKU,
		r.QuantityText(),
	}
}

// =============================================================================
// QUERY WINDOW
// =============================================================================

// QueryWindow is the inclusive date range of one run.
type QueryWindow struct {
	Start time.Time
	End   time.Time
}

// NewQueryWindow returns the window ending on the calendar day of now and
// starting days before it. days must not be negative.
func NewQueryWindow(now time.Time, days int) (QueryWindow, error) {
	if days < 0 {
		return QueryWindow{}, fmt.Errorf("days must not be negative, got %d", days)
	}
	y, m, d := now.Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return QueryWindow{
		Start: end.AddDate(0, 0, -days),
		End:   end,
	}, nil
}

// StartDate returns the first day of the window as YYYY-MM-DD.
func (w QueryWindow) StartDate() string {
	return w.Start.Format(DateLayout)
}

// EndDate returns the last day of the window as YYYY-MM-DD.
func (w QueryWindow) EndDate() string {
	return w.End.Format(DateLayout)
}

func (w QueryWindow) String() string {
	return w.StartDate() + ".." + w.EndDate()
}
