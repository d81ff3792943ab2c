package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/labinvoice/internal/domain/entity"
)

func item(price string) entity.LineItem {
	p := decimal.RequireFromString(price)
	return entity.LineItem{Quantity: 1, UnitPrice: p, Cost: p}
}

func parsed(items ...entity.LineItem) entity.ParsedInvoice {
	return entity.ParsedInvoice{
		Record: entity.InvoiceRecord{
			PatientName: "Marcia Miller",
			TotalUnits:  entity.BillableUnitsPerInvoice,
			UnitPrice:   decimal.NewNullDecimal(items[0].UnitPrice),
		},
		Items: items,
	}
}

func TestUniformUnitPrice(t *testing.T) {
	price, ok := UniformUnitPrice([]entity.LineItem{item("85.00"), item("85")})
	assert.True(t, ok)
	assert.True(t, decimal.RequireFromString("85").Equal(price))

	_, ok = UniformUnitPrice([]entity.LineItem{item("85.00"), item("15.00")})
	assert.False(t, ok)

	_, ok = UniformUnitPrice(nil)
	assert.False(t, ok)
}

func TestBlankMixedUnitPrices(t *testing.T) {
	in := []entity.ParsedInvoice{
		parsed(item("110.00")),
		parsed(item("85.00"), item("15.00")),
		parsed(item("40.00"), item("40.00")),
	}

	got := BlankMixedUnitPrices(in)

	require.Len(t, got, 3)
	assert.True(t, got[0].UnitPrice.Valid)
	assert.False(t, got[1].UnitPrice.Valid, "mixed prices are blanked")
	assert.True(t, got[2].UnitPrice.Valid)
	assert.True(t, in[1].Record.UnitPrice.Valid, "input records are left alone")
}
