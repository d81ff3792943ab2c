// Package reconcile merges freshly parsed invoice records into a month's
// record set by business identity, so reprocessing the same documents never
// duplicates a row.
package reconcile

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/garyjia/labinvoice/internal/domain/entity"
)

// Outcome tells the caller what a reconcile call did to the set
type Outcome int

const (
	Inserted Outcome = iota + 1
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// IdentityKey is the duplicate-detection policy: two records are the same
// invoice when their due date, patient name (trimmed, case-insensitive) and
// total cost are equal. There is no document hash; two distinct invoices for
// the same patient, day and amount are treated as one.
type IdentityKey struct {
	DueDate     time.Time
	PatientName string
	TotalCost   decimal.Decimal
}

var folder = cases.Fold()

// KeyOf derives the identity key of r
func KeyOf(r entity.InvoiceRecord) IdentityKey {
	return IdentityKey{
		DueDate:     entity.DateOf(r.DueDate),
		PatientName: folder.String(strings.TrimSpace(r.PatientName)),
		TotalCost:   r.TotalCost,
	}
}

// Equal compares keys field by field; decimals compare by value so 100.0
// and 100.00 are the same cost.
func (k IdentityKey) Equal(o IdentityKey) bool {
	return k.DueDate.Equal(o.DueDate) &&
		k.PatientName == o.PatientName &&
		k.TotalCost.Equal(o.TotalCost)
}

// RecordSet is one month's records, ascending by due date
type RecordSet []entity.InvoiceRecord

// Sorted reports whether the set is in due date order
func (s RecordSet) Sorted() bool {
	return sort.SliceIsSorted(s, func(i, j int) bool { return s[i].DueDate.Before(s[j].DueDate) })
}

// Total sums the total cost of every record
func (s RecordSet) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, r := range s {
		sum = sum.Add(r.TotalCost)
	}
	return sum
}

// IndexOf returns the position of the first record matching key, or -1
func (s RecordSet) IndexOf(key IdentityKey) int {
	for i, r := range s {
		if KeyOf(r).Equal(key) {
			return i
		}
	}
	return -1
}

// Reconcile returns existing with incoming merged in. A record with the same
// identity key is replaced where it stands; otherwise incoming is appended.
// The result is then stable-sorted by due date. existing is not modified.
func Reconcile(existing RecordSet, incoming entity.InvoiceRecord) (RecordSet, Outcome) {
	out := make(RecordSet, len(existing), len(existing)+1)
	copy(out, existing)

	outcome := Inserted
	if i := out.IndexOf(KeyOf(incoming)); i >= 0 {
		out[i] = incoming
		outcome = Updated
	} else {
		out = append(out, incoming)
	}

	slices.SortStableFunc(out, func(a, b entity.InvoiceRecord) int {
		return a.DueDate.Compare(b.DueDate)
	})
	return out, outcome
}

// Change is the outcome of one record of a batch
type Change struct {
	Record  entity.InvoiceRecord
	Outcome Outcome
}

// ApplyBatch reconciles records one at a time in order, each against the
// result of the previous call, so a later record sees earlier updates.
func ApplyBatch(existing RecordSet, records []entity.InvoiceRecord) (RecordSet, []Change) {
	set := existing
	changes := make([]Change, 0, len(records))
	for _, r := range records {
		var outcome Outcome
		set, outcome = Reconcile(set, r)
		changes = append(changes, Change{Record: r, Outcome: outcome})
	}
	if set == nil {
		set = RecordSet{}
	}
	return set, changes
}

// MonthBatch is the records of one calendar month, in input order
type MonthBatch struct {
	Month   string
	Records []entity.InvoiceRecord
}

// GroupByMonth buckets records by the month of their due date and returns
// the buckets in ascending month order. A non-empty override puts every
// record into that month.
func GroupByMonth(records []entity.InvoiceRecord, override string) []MonthBatch {
	idx := make(map[string]int)
	var batches []MonthBatch
	for _, r := range records {
		m := override
		if m == "" {
			m = r.Month()
		}
		i, ok := idx[m]
		if !ok {
			i = len(batches)
			idx[m] = i
			batches = append(batches, MonthBatch{Month: m})
		}
		batches[i].Records = append(batches[i].Records, r)
	}
	slices.SortFunc(batches, func(a, b MonthBatch) int { return strings.Compare(a.Month, b.Month) })
	return batches
}
