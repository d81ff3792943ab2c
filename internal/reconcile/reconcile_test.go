package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/labinvoice/internal/domain/entity"
)

func record(month time.Month, day int, name, total, extras string) entity.InvoiceRecord {
	t := decimal.RequireFromString(total)
	e := decimal.RequireFromString(extras)
	return entity.InvoiceRecord{
		DueDate:          entity.NewDate(2025, month, day),
		PatientName:      name,
		TotalUnits:       entity.BillableUnitsPerInvoice,
		UnitPrice:        decimal.NewNullDecimal(t.Sub(e)),
		AlloysExtrasCost: e,
		TotalCost:        t,
	}
}

func octoberSet() RecordSet {
	return RecordSet{
		record(10, 1, "Ana Lopez", "110.00", "0.00"),
		record(10, 3, "Ben Ortiz", "195.00", "85.00"),
		record(10, 7, "Marcia Miller", "100.00", "0.00"),
		record(10, 7, "Cal Reyes", "120.00", "10.00"),
		record(10, 20, "Dee Park", "300.00", "215.00"),
	}
}

func names(s RecordSet) []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = r.PatientName
	}
	return out
}

func TestReconcile_InsertsNewRecord(t *testing.T) {
	existing := octoberSet()

	got, outcome := Reconcile(existing, record(10, 5, "Eve Grant", "150.00", "40.00"))

	assert.Equal(t, Inserted, outcome)
	require.Len(t, got, 6)
	assert.True(t, got.Sorted())
	assert.Equal(t, []string{"Ana Lopez", "Ben Ortiz", "Eve Grant", "Marcia Miller", "Cal Reyes", "Dee Park"}, names(got))
	assert.Len(t, existing, 5, "input set is left alone")
}

func TestReconcile_UpdatesMatchingRecord(t *testing.T) {
	existing := octoberSet()
	incoming := record(10, 3, "Ben Ortiz", "195.00", "95.00")

	got, outcome := Reconcile(existing, incoming)

	assert.Equal(t, Updated, outcome)
	require.Len(t, got, 5)
	assert.Equal(t, incoming, got[1])
	assert.True(t, decimal.RequireFromString("85.00").Equal(existing[1].AlloysExtrasCost), "input set is left alone")
}

func TestReconcile_IdentityKey(t *testing.T) {
	base := record(10, 7, "Marcia Miller", "100.00", "0.00")

	tests := []struct {
		name     string
		incoming entity.InvoiceRecord
		want     Outcome
	}{
		{"name differs only in case and padding", record(10, 7, "  MARCIA miller ", "100.00", "0.00"), Updated},
		{"cost differs only in scale", record(10, 7, "Marcia Miller", "100", "0"), Updated},
		{"different day", record(10, 8, "Marcia Miller", "100.00", "0.00"), Inserted},
		{"different total", record(10, 7, "Marcia Miller", "100.01", "0.00"), Inserted},
		{"different patient", record(10, 7, "Marcia Millers", "100.00", "0.00"), Inserted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, outcome := Reconcile(RecordSet{base}, tt.incoming)
			assert.Equal(t, tt.want, outcome)
		})
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	incoming := record(10, 12, "Fay Chen", "210.00", "30.00")

	once, first := Reconcile(octoberSet(), incoming)
	twice, second := Reconcile(once, incoming)

	assert.Equal(t, Inserted, first)
	assert.Equal(t, Updated, second)
	assert.Equal(t, once, twice)
}

func TestReconcile_StableForEqualDates(t *testing.T) {
	set := RecordSet{}
	for _, n := range []string{"First", "Second", "Third"} {
		set, _ = Reconcile(set, record(10, 7, n, "100.00", "0.00"))
	}
	set, _ = Reconcile(set, record(10, 1, "Early", "50.00", "0.00"))
	set, outcome := Reconcile(set, record(10, 7, "Second", "100.00", "20.00"))

	assert.Equal(t, Updated, outcome)
	assert.Equal(t, []string{"Early", "First", "Second", "Third"}, names(set))
}

func TestReconcile_ReplacesFirstOfDuplicates(t *testing.T) {
	dup := record(10, 7, "Marcia Miller", "100.00", "0.00")
	existing := RecordSet{dup, dup}

	got, outcome := Reconcile(existing, record(10, 7, "Marcia Miller", "100.00", "5.00"))

	assert.Equal(t, Updated, outcome)
	require.Len(t, got, 2)
	assert.True(t, decimal.RequireFromString("5.00").Equal(got[0].AlloysExtrasCost))
	assert.True(t, decimal.Zero.Equal(got[1].AlloysExtrasCost))
}

func TestApplyBatch(t *testing.T) {
	t.Run("later records see earlier ones", func(t *testing.T) {
		batch := []entity.InvoiceRecord{
			record(10, 9, "Gus Hall", "80.00", "0.00"),
			record(10, 2, "Ivy Lam", "90.00", "0.00"),
			record(10, 9, "gus hall", "80.00", "12.00"),
		}

		got, changes := ApplyBatch(octoberSet(), batch)

		require.Len(t, changes, 3)
		assert.Equal(t, []Outcome{Inserted, Inserted, Updated},
			[]Outcome{changes[0].Outcome, changes[1].Outcome, changes[2].Outcome})
		assert.Len(t, got, 7)
		assert.True(t, got.Sorted())
	})

	t.Run("rerunning a batch changes nothing", func(t *testing.T) {
		batch := []entity.InvoiceRecord{
			record(10, 9, "Gus Hall", "80.00", "0.00"),
			record(10, 2, "Ivy Lam", "90.00", "0.00"),
		}

		first, _ := ApplyBatch(nil, batch)
		second, changes := ApplyBatch(first, batch)

		assert.Equal(t, first, second)
		for _, c := range changes {
			assert.Equal(t, Updated, c.Outcome)
		}
	})

	t.Run("empty batch on empty set", func(t *testing.T) {
		got, changes := ApplyBatch(nil, nil)

		assert.NotNil(t, got)
		assert.Empty(t, got)
		assert.Empty(t, changes)
	})
}

func TestGroupByMonth(t *testing.T) {
	records := []entity.InvoiceRecord{
		record(11, 2, "B", "1.00", "0.00"),
		record(10, 30, "A", "1.00", "0.00"),
		record(11, 1, "C", "1.00", "0.00"),
	}

	t.Run("months ascend and keep input order", func(t *testing.T) {
		got := GroupByMonth(records, "")

		require.Len(t, got, 2)
		assert.Equal(t, "2025-10", got[0].Month)
		assert.Equal(t, "2025-11", got[1].Month)
		assert.Equal(t, []string{"B", "C"}, names(got[1].Records))
	})

	t.Run("override collects everything", func(t *testing.T) {
		got := GroupByMonth(records, "2025-12")

		require.Len(t, got, 1)
		assert.Equal(t, "2025-12", got[0].Month)
		assert.Len(t, got[0].Records, 3)
	})
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "inserted", Inserted.String())
	assert.Equal(t, "updated", Updated.String())
	assert.Equal(t, "unknown", Outcome(0).String())
}

func TestRecordSet_Total(t *testing.T) {
	assert.True(t, decimal.RequireFromString("825.00").Equal(octoberSet().Total()))
	assert.True(t, decimal.Zero.Equal(RecordSet{}.Total()))
}
