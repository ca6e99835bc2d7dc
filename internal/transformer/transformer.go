// =============================================================================
// QBO Sales Receipt Extractor - Transformation Engine
// =============================================================================
//
// This module turns one raw SalesReceipt into the flat rows of the report.
//
// ROW SHAPE:
//   Every row of a receipt repeats the receipt header (date, customer,
//   region, total, shipping) and carries one SKU. A receipt without any
//   qualifying item line still produces one row with a blank SKU.
//
// LINE RULES:
//   - Only SalesItemLineDetail lines are considered.
//   - Lines referencing the shipping item add their Amount to the shipping
//     cost and are not reported as SKUs.
//   - The SKU is the part of ItemRef.name after the last ':', trimmed.
//     Empty and "Unknown" SKUs are skipped.
//   - A line without Qty counts as 1.
//   - Lines are aggregated per SKU in order of first appearance. The
//     quantity column is filled only when the total is greater than 1.
//
// PRICE CONFLICTS:
//   When one SKU appears with different unit prices inside a receipt the
//   conflict is recorded. PriceConflictMerge sums the quantities anyway;
//   PriceConflictSplit emits one row per distinct unit price.
//
// =============================================================================

package transformer

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ginjaninja78/qbo-sales-receipts/internal/config"
	"github.com/ginjaninja78/qbo-sales-receipts/internal/types"
)

// unknownSKU is the item name placeholder that is never reported.
const unknownSKU = "Unknown"

// Resolver maps an address block to a region label. *address.Resolver
// implements it.
type Resolver interface {
	Resolve(receiptID, block string, addr *types.Address) types.NormalizedAddress
}

// =============================================================================
// OPTIONS AND RECORDS
// =============================================================================

// Options configures a Transformer.
type Options struct {
	// ShippingItemID is the ItemRef.value of the shipping item.
	// Default: config.DefaultShippingItemID
	ShippingItemID string

	// PriceConflict is config.PriceConflictMerge or config.PriceConflictSplit.
	// Default: merge
	PriceConflict string

	// Debug collects a DebugRecord per receipt.
	Debug bool

	// Logger receives price conflict warnings.
	Logger logrus.FieldLogger
}

// PriceConflict is a SKU that appeared with more than one unit price in a
// receipt.
type PriceConflict struct {
	ReceiptID  string            `json:"receipt_id"`
	SKU        string            `json:"sku"`
	UnitPrices []decimal.Decimal `json:"unit_prices"`
}

// DebugRecord is the receipt dump entry: the raw entity next to what was
// made of it.
type DebugRecord struct {
	ReceiptID string            `json:"receipt_id"`
	Raw       json.RawMessage   `json:"raw"`
	Rows      []types.OutputRow `json:"rows"`
	Conflicts []PriceConflict   `json:"conflicts,omitempty"`
}

// =============================================================================
// TRANSFORMER
// =============================================================================

// Transformer converts receipts to output rows.
type Transformer struct {
	resolver Resolver
	opts     Options
	debug    []DebugRecord
}

// New creates a Transformer that resolves regions with resolver.
func New(resolver Resolver, opts Options) *Transformer {
	if opts.ShippingItemID == "" {
		opts.ShippingItemID = config.DefaultShippingItemID
	}
	if opts.PriceConflict == "" {
		opts.PriceConflict = config.PriceConflictMerge
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Transformer{resolver: resolver, opts: opts}
}

// DebugRecords returns the records collected when Debug is on, in
// transform order.
func (t *Transformer) DebugRecords() []DebugRecord {
	return t.debug
}

// aggregate is the running total of one report row.
type aggregate struct {
	sku       string
	quantity  decimal.Decimal
	unitPrice decimal.NullDecimal
}

// Transform converts one receipt. The result depends only on raw; calling
// it twice with the same receipt yields the same rows.
//
// PARAMETERS:
//   - raw: The receipt as returned by the fetcher.
//
// RETURNS:
//   - The rows of the receipt, at least one.
//   - The price conflicts found in the receipt.
func (t *Transformer) Transform(raw types.SalesReceipt) ([]types.OutputRow, []PriceConflict) {
	header := types.OutputRow{
		Date:        raw.TxnDate,
		Name:        raw.CustomerName(),
		Region:      t.region(raw),
		TotalAmount: raw.TotalAmt,
	}

	shipping := decimal.Zero
	var order []*aggregate
	index := make(map[string]*aggregate)
	prices := make(map[string][]decimal.Decimal)

	for _, line := range raw.Line {
		if line.DetailType != types.DetailTypeSalesItem || line.SalesItemLineDetail == nil {
			continue
		}
		detail := line.SalesItemLineDetail
		if detail.ItemRef == nil {
			continue
		}
		if detail.ItemRef.Value == t.opts.ShippingItemID {
			shipping = shipping.Add(line.Amount)
			continue
		}

		sku := SKU(detail.ItemRef.Name)
		if sku == "" || sku == unknownSKU {
			continue
		}

		qty := decimal.NewFromInt(1)
		if detail.Qty.Valid {
			qty = detail.Qty.Decimal
		}

		if detail.UnitPrice.Valid && !containsPrice(prices[sku], detail.UnitPrice.Decimal) {
			prices[sku] = append(prices[sku], detail.UnitPrice.Decimal)
		}

		key := sku
		if t.opts.PriceConflict == config.PriceConflictSplit && detail.UnitPrice.Valid {
			key = sku + "\x00" + detail.UnitPrice.Decimal.String()
		}

		agg, ok := index[key]
		if !ok {
			agg = &aggregate{sku: sku, unitPrice: detail.UnitPrice}
			index[key] = agg
			order = append(order, agg)
		}
		agg.quantity = agg.quantity.Add(qty)
	}
	header.ShippingAmount = shipping

	conflicts := t.conflicts(raw.ID, order, prices)

	rows := make([]types.OutputRow, 0, len(order)+1)
	for _, agg := range order {
		row := header
		row.SKU = agg.sku
		if agg.quantity.GreaterThan(decimal.NewFromInt(1)) {
			row.Quantity = decimal.NewNullDecimal(agg.quantity)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		rows = append(rows, header)
	}

	if t.opts.Debug {
		t.debug = append(t.debug, DebugRecord{
			ReceiptID: raw.ID,
			Raw:       raw.Raw,
			Rows:      rows,
			Conflicts: conflicts,
		})
	}
	return rows, conflicts
}

// region resolves the ship-to address, falling back to bill-to when the
// ship-to block is absent or empty.
func (t *Transformer) region(raw types.SalesReceipt) string {
	block, addr := "ShipAddr", raw.ShipAddr
	if !addr.HasLocality() && raw.BillAddr.HasLocality() {
		block, addr = "BillAddr", raw.BillAddr
	}
	return t.resolver.Resolve(raw.ID, block, addr).Label
}

// conflicts lists the SKUs seen with more than one unit price, in row order.
func (t *Transformer) conflicts(receiptID string, order []*aggregate, prices map[string][]decimal.Decimal) []PriceConflict {
	var out []PriceConflict
	reported := make(map[string]bool)
	for _, agg := range order {
		if reported[agg.sku] || len(prices[agg.sku]) < 2 {
			continue
		}
		reported[agg.sku] = true
		out = append(out, PriceConflict{ReceiptID: receiptID, SKU: agg.sku, UnitPrices: prices[agg.sku]})

		entry := t.opts.Logger.WithFields(logrus.Fields{
			"receipt_id": receiptID,
			"sku":        agg.sku,
			"prices":     len(prices[agg.sku]),
		})
		if t.opts.PriceConflict == config.PriceConflictSplit {
			entry.Debug("sku has several unit prices, splitting rows")
		} else {
			entry.Warn("sku has several unit prices, quantities summed")
		}
	}
	return out
}

// SKU returns the item code of an ItemRef name: the text after the last
// ':' ("Parts:Widgets:A1" is "A1"), trimmed.
func SKU(itemName string) string {
	if i := strings.LastIndex(itemName, ":"); i >= 0 {
		itemName = itemName[i+1:]
	}
	return strings.TrimSpace(itemName)
}

func containsPrice(list []decimal.Decimal, p decimal.Decimal) bool {
	for _, q := range list {
		if q.Equal(p) {
			return true
		}
	}
	return false
}
