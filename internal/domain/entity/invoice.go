package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the m/d/yyyy form used on invoices and in rendered reports
const DateLayout = "1/2/2006"

// MonthLayout names a calendar month (folder and workbook prefix)
const MonthLayout = "2006-01"

// BillableUnitsPerInvoice is the Total Units value of every invoice record.
// Confirmed business rule: one invoice is one billable unit on the monthly
// report, whatever quantities its line items carry.
const BillableUnitsPerInvoice = 1

// LineItem is one row of an invoice's itemized table
type LineItem struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Cost        decimal.Decimal `json:"cost"`
	Line        int             `json:"line"` // 1-based line number in the extracted text
}

// InvoiceRecord is the structured result of parsing one invoice document.
// Records are values: reconciliation supersedes a record, it never edits one.
type InvoiceRecord struct {
	DueDate     time.Time `json:"due_date"` // date only, midnight UTC
	PatientName string    `json:"patient_name"`
	TotalUnits  int       `json:"total_units"`
	// UnitPrice is the first line item's unit price. Invalid means "mixed"
	// once the uniform-price post-processing step has blanked it.
	UnitPrice        decimal.NullDecimal `json:"unit_price"`
	AlloysExtrasCost decimal.Decimal     `json:"alloys_extras_cost"`
	TotalCost        decimal.Decimal     `json:"total_cost"`
	ClientName       string              `json:"client_name,omitempty"`
}

// Month returns the calendar month of the record's due date (YYYY-MM)
func (r InvoiceRecord) Month() string {
	return r.DueDate.Format(MonthLayout)
}

// ParsedInvoice pairs a record with the line items it was computed from
type ParsedInvoice struct {
	Record InvoiceRecord `json:"record"`
	Items  []LineItem    `json:"items"`
}

// NewDate returns the calendar date as midnight UTC
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf drops the clock and location from t
func DateOf(t time.Time) time.Time {
	return NewDate(t.Year(), t.Month(), t.Day())
}
