package workbook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/garyjia/labinvoice/internal/domain/entity"
	"github.com/garyjia/labinvoice/internal/invoice"
	"github.com/garyjia/labinvoice/internal/reconcile"
)

type csvRow struct {
	DateDue          string `csv:"Date Due"`
	PatientName      string `csv:"Patient Name"`
	TotalUnits       string `csv:"Total Units"`
	UnitPrice        string `csv:"Unit Price"`
	AlloysExtrasCost string `csv:"Alloys/Extras Cost"`
	TotalCost        string `csv:"Total Cost"`
}

// FormatMoney renders an amount as US dollars, e.g. "$1,234.56"
func FormatMoney(d decimal.Decimal) string {
	return money.New(d.Round(2).Shift(2).IntPart(), money.USD).Display()
}

// WriteCSV writes the CSV mirror of set to path
func WriteCSV(path string, set reconcile.RecordSet) error {
	rows := make([]*csvRow, len(set))
	for i, r := range set {
		row := &csvRow{
			DateDue:          r.DueDate.Format(entity.DateLayout),
			PatientName:      r.PatientName,
			TotalUnits:       strconv.Itoa(r.TotalUnits),
			AlloysExtrasCost: FormatMoney(r.AlloysExtrasCost),
			TotalCost:        FormatMoney(r.TotalCost),
		}
		if r.UnitPrice.Valid {
			row.UnitPrice = FormatMoney(r.UnitPrice.Decimal)
		}
		rows[i] = row
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "~*.csv")
	if err != nil {
		return fmt.Errorf("failed to create csv: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gocsv.MarshalFile(&rows, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close csv: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace csv: %w", err)
	}
	return nil
}

// ReadCSV loads a record set from a CSV mirror. A missing file is an
// empty month.
func ReadCSV(path string) (reconcile.RecordSet, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return reconcile.RecordSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	var rows []*csvRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}

	set := make(reconcile.RecordSet, 0, len(rows))
	for i, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", i+2, err)
		}
		set = append(set, rec)
	}
	return set, nil
}

func (row *csvRow) record() (entity.InvoiceRecord, error) {
	var rec entity.InvoiceRecord
	due, err := time.Parse(entity.DateLayout, row.DateDue)
	if err != nil {
		return rec, fmt.Errorf("%w: date %q", ErrMalformedRow, row.DateDue)
	}
	rec.DueDate = entity.DateOf(due)
	rec.PatientName = row.PatientName
	if rec.TotalUnits, err = strconv.Atoi(row.TotalUnits); err != nil {
		return rec, fmt.Errorf("%w: total units %q", ErrMalformedRow, row.TotalUnits)
	}
	if row.UnitPrice != "" {
		d, err := csvAmount(row.UnitPrice)
		if err != nil {
			return rec, err
		}
		rec.UnitPrice = decimal.NewNullDecimal(d)
	}
	if rec.AlloysExtrasCost, err = csvAmount(row.AlloysExtrasCost); err != nil {
		return rec, err
	}
	if rec.TotalCost, err = csvAmount(row.TotalCost); err != nil {
		return rec, err
	}
	return rec, nil
}

func csvAmount(s string) (decimal.Decimal, error) {
	d, err := invoice.ParseAmount(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q", ErrMalformedRow, s)
	}
	return d, nil
}
