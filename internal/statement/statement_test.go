package statement

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/labinvoice/internal/domain/entity"
	"github.com/garyjia/labinvoice/internal/reconcile"
)

func rec(day int, name, total string) entity.InvoiceRecord {
	t := decimal.RequireFromString(total)
	return entity.InvoiceRecord{
		DueDate:          entity.NewDate(2025, time.October, day),
		PatientName:      name,
		TotalUnits:       1,
		UnitPrice:        decimal.NewNullDecimal(t),
		AlloysExtrasCost: decimal.Zero,
		TotalCost:        t,
	}
}

func TestPeriodEndAndPaymentDue(t *testing.T) {
	tests := []struct {
		month   string
		end     time.Time
		payment time.Time
	}{
		{"2025-10", entity.NewDate(2025, 10, 31), entity.NewDate(2025, 11, 25)},
		{"2025-12", entity.NewDate(2025, 12, 31), entity.NewDate(2026, 1, 25)},
		{"2024-02", entity.NewDate(2024, 2, 29), entity.NewDate(2024, 3, 25)},
	}
	for _, tt := range tests {
		t.Run(tt.month, func(t *testing.T) {
			end, err := PeriodEnd(tt.month)
			require.NoError(t, err)
			assert.Equal(t, tt.end, end)

			due, err := PaymentDue(tt.month, 25)
			require.NoError(t, err)
			assert.Equal(t, tt.payment, due)
		})
	}

	_, err := PeriodEnd("Oct 2025")
	assert.Error(t, err)
}

func TestTotal(t *testing.T) {
	set := reconcile.RecordSet{rec(1, "A", "110.00"), rec(2, "B", "300.00")}
	assert.True(t, decimal.RequireFromString("410.00").Equal(Total(set)))
	assert.True(t, Total(nil).IsZero())
}

func TestClean(t *testing.T) {
	assert.Equal(t, "Griffin Office", clean("Griﬀin Oﬃce"))
	assert.Equal(t, "Muller", clean("Muller"))
}

func TestRenderer_Render(t *testing.T) {
	r := NewRenderer(Letterhead{
		LabName:       "Accudent Dental Lab",
		AddressLine:   "1200 Main Street",
		Phone:         "801-231-6161",
		PaymentDueDay: 25,
	}, zap.NewNop())
	r.compress = false

	var buf bytes.Buffer
	err := r.Render(&buf, Statement{
		Month:   "2025-10",
		Client:  "DR. BRYCE ALLDREDGE",
		Records: reconcile.RecordSet{rec(7, "Marcia Miller", "100.00"), rec(9, "Griﬃth", "1234.50")},
	})

	require.NoError(t, err)
	out := buf.String()
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Contains(t, out, "Statement for period ending 10/31/2025 for DR. BRYCE ALLDREDGE")
	assert.Contains(t, out, "Marcia Miller")
	assert.Contains(t, out, "Griffith")
	assert.Contains(t, out, "$1,334.50")
	assert.Contains(t, out, "THANK YOU")
	assert.Contains(t, out, "Questions call 801-231-6161")
	assert.Contains(t, out, "Payment due by: 11/25/2025")
}

func TestRenderer_WriteFile(t *testing.T) {
	r := NewRenderer(Letterhead{LabName: "Lab", PaymentDueDay: 25}, zap.NewNop())
	path := filepath.Join(t.TempDir(), "2025-10_Statement.pdf")

	require.NoError(t, r.WriteFile(path, Statement{Month: "2025-10"}))
	assert.FileExists(t, path)

	err := r.WriteFile(path, Statement{Month: "bad"})
	assert.Error(t, err)
	assert.FileExists(t, path, "failed render keeps the previous statement")
}
