// Package pricing holds report-level rules applied to a batch of parsed
// invoices after parsing.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/garyjia/labinvoice/internal/domain/entity"
)

// UniformUnitPrice returns the single unit price shared by every line item,
// or false when the items disagree or there are none.
func UniformUnitPrice(items []entity.LineItem) (decimal.Decimal, bool) {
	if len(items) == 0 {
		return decimal.Zero, false
	}
	price := items[0].UnitPrice
	for _, it := range items[1:] {
		if !it.UnitPrice.Equal(price) {
			return decimal.Zero, false
		}
	}
	return price, true
}

// BlankMixedUnitPrices returns the records of invoices with their unit price
// cleared wherever the line items carry more than one unit price. Renderers
// show a cleared price as blank ("mixed").
func BlankMixedUnitPrices(invoices []entity.ParsedInvoice) []entity.InvoiceRecord {
	out := make([]entity.InvoiceRecord, len(invoices))
	for i, inv := range invoices {
		rec := inv.Record
		if _, ok := UniformUnitPrice(inv.Items); !ok {
			rec.UnitPrice = decimal.NullDecimal{}
		}
		out[i] = rec
	}
	return out
}
