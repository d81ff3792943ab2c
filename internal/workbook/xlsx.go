// Package workbook persists a month's record set as the Invoices workbook
// and its CSV mirror.
package workbook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/garyjia/labinvoice/internal/domain/entity"
	"github.com/garyjia/labinvoice/internal/reconcile"
)

// SheetName is the only sheet of a month workbook
const SheetName = "Invoices"

// Columns of the month workbook, left to right
var Columns = []string{"Date Due", "Patient Name", "Total Units", "Unit Price", "Alloys/Extras Cost", "Total Cost"}

var columnWidths = []float64{12, 28, 11, 12, 18, 12}

const (
	dateFormat  = "m/d/yyyy"
	moneyFormat = "$#,##0.00"
)

// ErrMalformedRow is returned when a stored row cannot be read back
var ErrMalformedRow = errors.New("malformed workbook row")

// WriteXLSX rewrites the workbook at path from set. The file is written
// next to path first and renamed over it, so a failed save leaves the old
// workbook intact.
func WriteXLSX(path string, set reconcile.RecordSet) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", lastColumn()+"1", styles.header); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, r := range set {
		row := i + 2
		if err := writeRecord(f, row, r, styles); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}

	if err := layout(f, len(set)); err != nil {
		return err
	}

	tmp := filepath.Join(filepath.Dir(path), "~"+filepath.Base(path))
	if err := f.SaveAs(tmp); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace workbook: %w", err)
	}
	return nil
}

type styleIDs struct {
	header, date, money int
}

func newStyles(f *excelize.File) (styleIDs, error) {
	var s styleIDs
	var err error
	s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return s, fmt.Errorf("failed to create header style: %w", err)
	}
	df := dateFormat
	if s.date, err = f.NewStyle(&excelize.Style{CustomNumFmt: &df}); err != nil {
		return s, fmt.Errorf("failed to create date style: %w", err)
	}
	mf := moneyFormat
	if s.money, err = f.NewStyle(&excelize.Style{CustomNumFmt: &mf}); err != nil {
		return s, fmt.Errorf("failed to create money style: %w", err)
	}
	return s, nil
}

func writeRecord(f *excelize.File, row int, r entity.InvoiceRecord, styles styleIDs) error {
	cell := func(col int) string {
		name, _ := excelize.CoordinatesToCellName(col, row)
		return name
	}

	values := []interface{}{
		r.DueDate,
		r.PatientName,
		r.TotalUnits,
		nil,
		r.AlloysExtrasCost.InexactFloat64(),
		r.TotalCost.InexactFloat64(),
	}
	if r.UnitPrice.Valid {
		values[3] = r.UnitPrice.Decimal.InexactFloat64()
	}
	for i, v := range values {
		if v == nil {
			continue
		}
		if err := f.SetCellValue(SheetName, cell(i+1), v); err != nil {
			return err
		}
	}

	if err := f.SetCellStyle(SheetName, cell(1), cell(1), styles.date); err != nil {
		return err
	}
	return f.SetCellStyle(SheetName, cell(4), cell(6), styles.money)
}

func layout(f *excelize.File, rows int) error {
	for i, w := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(SheetName, col, col, w); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}
	ref := fmt.Sprintf("A1:%s%d", lastColumn(), rows+1)
	if err := f.AutoFilter(SheetName, ref, nil); err != nil {
		return fmt.Errorf("failed to add auto filter: %w", err)
	}
	return nil
}

func lastColumn() string {
	col, _ := excelize.ColumnNumberToName(len(Columns))
	return col
}

// ReadXLSX loads the record set stored at path. A missing file is an empty
// month, not an error.
func ReadXLSX(path string) (reconcile.RecordSet, error) {
	f, err := excelize.OpenFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return reconcile.RecordSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := SheetName
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	set := reconcile.RecordSet{}
	for i, row := range rows {
		if i == 0 || isBlank(row) {
			continue
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		set = append(set, rec)
	}
	return set, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseRow(row []string) (entity.InvoiceRecord, error) {
	get := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var rec entity.InvoiceRecord
	serial, err := strconv.ParseFloat(get(0), 64)
	if err != nil {
		return rec, fmt.Errorf("%w: date %q", ErrMalformedRow, get(0))
	}
	due, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return rec, fmt.Errorf("%w: date %q", ErrMalformedRow, get(0))
	}
	rec.DueDate = entity.DateOf(due)
	rec.PatientName = get(1)

	if rec.TotalUnits, err = strconv.Atoi(get(2)); err != nil {
		return rec, fmt.Errorf("%w: total units %q", ErrMalformedRow, get(2))
	}
	if s := get(3); s != "" {
		d, err := cellDecimal(s)
		if err != nil {
			return rec, err
		}
		rec.UnitPrice = decimal.NewNullDecimal(d)
	}
	if rec.AlloysExtrasCost, err = cellDecimal(get(4)); err != nil {
		return rec, err
	}
	if rec.TotalCost, err = cellDecimal(get(5)); err != nil {
		return rec, err
	}
	return rec, nil
}

// cellDecimal reads a stored amount back to cents precision; the cell holds
// a binary float, so the value is rounded, never truncated.
func cellDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q", ErrMalformedRow, s)
	}
	return d.Round(2), nil
}
