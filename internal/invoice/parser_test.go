package invoice

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/labinvoice/internal/domain/entity"
)

const (
	spacedHeader = "D E S C R I P T I O N   Q U A N T I T Y   U N I T   P R I C E   C O S T"
	marciaFooter = "Patient: Marcia Miller, Due 10/07/2025"
)

// invoiceText lays out a document the way PDF extraction hands it over:
// letterhead, letter-spaced client and header lines, rows, then the footer.
func invoiceText(rows ...string) string {
	lines := []string{
		"Accudent Dental Lab",
		"I N V O I C E   F O R :   D R .   B R Y C E   A L L D R E D G E",
		spacedHeader,
	}
	lines = append(lines, rows...)
	lines = append(lines, "", marciaFooter)
	return strings.Join(lines, "\n")
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func requireKind(t *testing.T, err error, kind ErrorKind) *ParseError {
	t.Helper()
	require.Error(t, err)
	var pe *ParseError
	require.True(t, errors.As(err, &pe), "expected *ParseError, got %T: %v", err, err)
	require.Equal(t, kind, pe.Kind, "error: %v", err)
	return pe
}

func TestParse_SingleRow(t *testing.T) {
	rec, err := Parse(invoiceText("Crown 1 $100.00 $100.00"))

	require.NoError(t, err)
	assert.Equal(t, entity.NewDate(2025, 10, 7), rec.DueDate)
	assert.Equal(t, "Marcia Miller", rec.PatientName)
	assert.Equal(t, 1, rec.TotalUnits)
	require.True(t, rec.UnitPrice.Valid)
	assertDecimal(t, "100.00", rec.UnitPrice.Decimal)
	assertDecimal(t, "0.00", rec.AlloysExtrasCost)
	assertDecimal(t, "100.00", rec.TotalCost)
	assert.Equal(t, "DR. BRYCE ALLDREDGE", rec.ClientName)
}

func TestParse_MultipleRows(t *testing.T) {
	parsed, err := ParseDetailed(invoiceText(
		"Zirconia Crown #14 1 $85.00 $85.00",
		"Alloy Noble 3 $15.00 $45.00",
		"Custom Abutment 2 $85.00 $170.00",
	))

	require.NoError(t, err)
	rec := parsed.Record
	assertDecimal(t, "300.00", rec.TotalCost)
	assertDecimal(t, "215.00", rec.AlloysExtrasCost)
	assertDecimal(t, "85.00", rec.UnitPrice.Decimal)
	assert.Equal(t, 1, rec.TotalUnits, "one invoice is one billable unit whatever the quantities")

	require.Len(t, parsed.Items, 3)
	assert.Equal(t, "Zirconia Crown #14", parsed.Items[0].Description)
	assert.Equal(t, 3, parsed.Items[1].Quantity)
	assertDecimal(t, "15.00", parsed.Items[1].UnitPrice)
	assert.Equal(t, 4, parsed.Items[0].Line)
}

func TestParse_TotalsInvariant(t *testing.T) {
	rows := [][]string{
		{"Crown 1 $110.00 $110.00"},
		{"Crown 1 $110.00 $110.00", "Pin 4 $2.50 $10.00"},
		{"Bridge 3 $1,250.00 $3,750.00", "Alloy 1 $0.99 $0.99", "Shade match 1 $25.00 $25.00"},
	}
	for _, r := range rows {
		parsed, err := ParseDetailed(invoiceText(r...))
		require.NoError(t, err)

		sum := decimal.Zero
		for _, it := range parsed.Items {
			sum = sum.Add(it.Cost)
		}
		assert.True(t, sum.Equal(parsed.Record.TotalCost))
		assert.True(t, parsed.Record.TotalCost.Sub(parsed.Items[0].Cost).Equal(parsed.Record.AlloysExtrasCost))
		assert.True(t, parsed.Record.TotalCost.GreaterThanOrEqual(parsed.Record.AlloysExtrasCost))
		assert.Equal(t, 1, parsed.Record.TotalUnits)
	}
}

func TestParse_RowVariants(t *testing.T) {
	tests := []struct {
		name      string
		rows      []string
		wantTotal string
		wantItems int
	}{
		{
			name:      "dollar sign separated from amount",
			rows:      []string{"Bruxzir #3 Shade C1 1 $ 110.00 $ 110.00"},
			wantTotal: "110.00",
			wantItems: 1,
		},
		{
			name:      "amounts without dollar sign",
			rows:      []string{"Crown 1 110.00 110.00", "Extra 1 5.00 5.00"},
			wantTotal: "115.00",
			wantItems: 2,
		},
		{
			name:      "thousands separators",
			rows:      []string{"Full arch 1 $2,400.00 $2,400.00"},
			wantTotal: "2400.00",
			wantItems: 1,
		},
		{
			name:      "blank lines and continuation text are skipped",
			rows:      []string{"Crown 1 $100.00 $100.00", "", "   (shade per Rx attached)", "Pin 2 $5.00 $10.00"},
			wantTotal: "110.00",
			wantItems: 2,
		},
		{
			name:      "totals line ends the table",
			rows:      []string{"Crown 1 $100.00 $100.00", "Subtotal 1 $100.00 $100.00", "Stray 1 $9.00 $9.00"},
			wantTotal: "100.00",
			wantItems: 1,
		},
		{
			name:      "empty description",
			rows:      []string{"1 $40.00 $40.00"},
			wantTotal: "40.00",
			wantItems: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseDetailed(invoiceText(tt.rows...))

			require.NoError(t, err)
			assertDecimal(t, tt.wantTotal, parsed.Record.TotalCost)
			assert.Len(t, parsed.Items, tt.wantItems)
		})
	}
}

func TestParse_FooterBeforeTable(t *testing.T) {
	text := strings.Join([]string{
		marciaFooter,
		"DESCRIPTION QUANTITY UNIT PRICE COST",
		"Crown 1 $100.00 $100.00",
		"Post 1 $20.00 $20.00",
	}, "\n")

	rec, err := Parse(text)

	require.NoError(t, err)
	assertDecimal(t, "120.00", rec.TotalCost)
	assertDecimal(t, "20.00", rec.AlloysExtrasCost)
	assert.Empty(t, rec.ClientName)
}

func TestParse_HeaderSplitAcrossLines(t *testing.T) {
	text := strings.Join([]string{
		"D E S C R I P T I O N   Q U A N T I T Y",
		"U N I T   P R I C E   C O S T",
		"Crown 1 $100.00 $100.00",
		marciaFooter,
	}, "\n")

	rec, err := Parse(text)

	require.NoError(t, err)
	assertDecimal(t, "100.00", rec.TotalCost)
}

func TestParse_RowOnHeaderLineIsNotRead(t *testing.T) {
	text := strings.Join([]string{
		"DESCRIPTION QUANTITY UNIT PRICE COST Impression 1 $10.00 $10.00",
		"Crown 1 $100.00 $100.00",
		marciaFooter,
	}, "\n")

	parsed, err := ParseDetailed(text)

	require.NoError(t, err)
	require.Len(t, parsed.Items, 1)
	assert.Equal(t, "Crown", parsed.Items[0].Description)
	assertDecimal(t, "100.00", parsed.Record.TotalCost)
}

func TestParse_PatientNameIsTrimmed(t *testing.T) {
	text := strings.Join([]string{
		"DESCRIPTION QUANTITY UNIT PRICE COST",
		"Crown 1 $100.00 $100.00",
		"patient:    Ana  Lopez   ,  due 1/5/2026",
	}, "\n")

	rec, err := Parse(text)

	require.NoError(t, err)
	assert.Equal(t, "Ana  Lopez", rec.PatientName)
	assert.Equal(t, entity.NewDate(2026, 1, 5), rec.DueDate)
}

func TestParse_Failures(t *testing.T) {
	t.Run("missing patient token", func(t *testing.T) {
		text := strings.Replace(invoiceText("Crown 1 $100.00 $100.00"), "Patient:", "Name:", 1)

		_, err := Parse(text)

		pe := requireKind(t, err, KindMissingFooter)
		assert.True(t, errors.Is(err, ErrMissingFooter))
		assert.True(t, pe.Structural())
	})

	t.Run("footer without due date points at the patient line", func(t *testing.T) {
		text := strings.Replace(invoiceText("Crown 1 $100.00 $100.00"), "Due 10/07/2025", "Due soon", 1)

		_, err := Parse(text)

		pe := requireKind(t, err, KindMissingFooter)
		assert.Equal(t, 6, pe.Line)
		assert.Contains(t, pe.Context, "Marcia Miller")
	})

	t.Run("month out of range", func(t *testing.T) {
		text := strings.Replace(invoiceText("Crown 1 $100.00 $100.00"), "10/07/2025", "13/07/2025", 1)

		_, err := Parse(text)

		pe := requireKind(t, err, KindInvalidDate)
		assert.Equal(t, "13/07/2025", pe.Context)
		assert.False(t, pe.Structural())
	})

	t.Run("day out of range", func(t *testing.T) {
		text := strings.Replace(invoiceText("Crown 1 $100.00 $100.00"), "10/07/2025", "2/30/2025", 1)

		_, err := Parse(text)

		requireKind(t, err, KindInvalidDate)
	})

	t.Run("no table header", func(t *testing.T) {
		text := strings.Replace(invoiceText("Crown 1 $100.00 $100.00"), spacedHeader, "ITEM QTY PRICE", 1)

		_, err := Parse(text)

		requireKind(t, err, KindMissingTableHeader)
		assert.True(t, errors.Is(err, ErrMissingTableHeader))
	})

	t.Run("header labels out of order", func(t *testing.T) {
		text := strings.Replace(invoiceText("Crown 1 $100.00 $100.00"), spacedHeader, "QUANTITY DESCRIPTION UNIT PRICE COST", 1)

		_, err := Parse(text)

		requireKind(t, err, KindMissingTableHeader)
	})

	t.Run("no rows before footer", func(t *testing.T) {
		_, err := Parse(invoiceText("Thank you for your business"))

		requireKind(t, err, KindNoLineItems)
	})

	t.Run("three fractional digits", func(t *testing.T) {
		_, err := Parse(invoiceText("Crown 1 $100.00 $100.00", "Pin 1 $5.000 $5.00"))

		pe := requireKind(t, err, KindInvalidAmount)
		assert.Equal(t, 5, pe.Line)
		assert.Equal(t, "Pin 1 $5.000 $5.00", pe.Context)
		assert.True(t, errors.Is(err, ErrInvalidAmount))
	})

	t.Run("stray characters in amount", func(t *testing.T) {
		_, err := Parse(invoiceText("Crown 1 $1O0.00 $100.00"))

		requireKind(t, err, KindInvalidAmount)
	})

	rebates := map[string]string{
		"parenthesised cost":          "Rebate 1 ($10.00) ($10.00)",
		"parenthesised detached sign": "Rebate 1 $ 110.00 ($ 110.00)",
		"negative cost":               "Rebate 1 $10.00 -10.00",
		"negative detached sign":      "Rebate 1 $10.00 -$ 10.00",
	}
	for name, row := range rebates {
		t.Run("rebate row with "+name, func(t *testing.T) {
			_, err := Parse(invoiceText("Crown 1 $100.00 $100.00", row))

			pe := requireKind(t, err, KindInvalidAmount)
			assert.Equal(t, 5, pe.Line)
			assert.Equal(t, row, pe.Context)
		})
	}

	t.Run("quantity too large", func(t *testing.T) {
		row := "Crown 99999999999999999999 $100.00 $100.00"
		_, err := Parse(invoiceText(row, "Pin 1 $5.00 $5.00"))

		pe := requireKind(t, err, KindInvalidQuantity)
		assert.Equal(t, 4, pe.Line)
		assert.Equal(t, row, pe.Context)
		assert.True(t, errors.Is(err, ErrInvalidQuantity))
		assert.False(t, pe.Structural())
	})
}

func TestParse_HeaderWhitespaceInvariance(t *testing.T) {
	valid := []string{
		"DESCRIPTION QUANTITY UNIT PRICE COST",
		"Description   Quantity   Unit Price   Cost",
		"D E S C R I P T I O N  Q U A N T I T Y  U N I T  P R I C E  C O S T",
		"D  E  S  C  R  I  P  T  I  O  N     QUANTITY     U N I T   P R I C E     COST",
		"DESC RIPTION   QUAN  TITY   UNIT PRICE   CO ST",
		"DESCRIPTION\tQUANTITY\tUNITPRICE\tCOST",
	}
	for _, hdr := range valid {
		t.Run(hdr, func(t *testing.T) {
			_, err := Parse(strings.Replace(invoiceText("Crown 1 $100.00 $100.00"), spacedHeader, hdr, 1))
			assert.NoError(t, err)
		})
	}

	merged := []string{
		"D E S C R I P T I O N Q U A N T I T Y U N I T P R I C E C O S T",
		"DESCRIPTIONQUANTITY UNIT PRICE COST",
		"DESCRIPTION QUANTITY UNIT PRICECOST",
	}
	for _, hdr := range merged {
		t.Run(hdr, func(t *testing.T) {
			_, err := Parse(strings.Replace(invoiceText("Crown 1 $100.00 $100.00"), spacedHeader, hdr, 1))
			requireKind(t, err, KindMissingTableHeader)
		})
	}
}

func TestParser_MatchesPackageFunctions(t *testing.T) {
	text := invoiceText("Crown 1 $100.00 $100.00")
	p := NewParser()

	rec, err := p.Parse(text)
	require.NoError(t, err)
	want, err := Parse(text)
	require.NoError(t, err)

	assert.Equal(t, want, rec)
}
