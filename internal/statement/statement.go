// Package statement renders the monthly statement PDF sent to the client
// practice: every invoice of the month, a total and the payment due date.
package statement

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/garyjia/labinvoice/internal/domain/entity"
	"github.com/garyjia/labinvoice/internal/reconcile"
	"github.com/garyjia/labinvoice/internal/workbook"
)

// Letterhead is the lab's identity printed on every statement
type Letterhead struct {
	LabName       string
	AddressLine   string
	Phone         string
	PaymentDueDay int // day of the month after the statement period
}

// Statement is the content of one month's statement
type Statement struct {
	Month   string // YYYY-MM
	Client  string
	Records reconcile.RecordSet
}

// PeriodEnd returns the last day of month
func PeriodEnd(month string) (time.Time, error) {
	start, err := time.Parse(entity.MonthLayout, month)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid statement month %q: %w", month, err)
	}
	return start.AddDate(0, 1, -1), nil
}

// PaymentDue returns day of the month following month
func PaymentDue(month string, day int) (time.Time, error) {
	start, err := time.Parse(entity.MonthLayout, month)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid statement month %q: %w", month, err)
	}
	next := start.AddDate(0, 1, 0)
	return entity.NewDate(next.Year(), next.Month(), day), nil
}

// Total sums the total cost of every record
func Total(set reconcile.RecordSet) decimal.Decimal {
	return set.Total()
}

// Renderer draws statements with gofpdf
type Renderer struct {
	head     Letterhead
	compress bool
	logger   *zap.Logger
}

// NewRenderer creates a statement renderer
func NewRenderer(head Letterhead, logger *zap.Logger) *Renderer {
	return &Renderer{
		head:     head,
		compress: true,
		logger:   logger,
	}
}

// letter page, half inch margins, in millimetres
const (
	margin    = 12.7
	rowHeight = 7.0
)

var columnWidths = []float64{25.4, 50.8, 25.4, 25.4, 33.0, 25.4}

// WriteFile renders s to path, replacing any previous statement
func (r *Renderer) WriteFile(path string, s Statement) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "~*.pdf")
	if err != nil {
		return fmt.Errorf("failed to create statement: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := r.Render(tmp, s); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close statement: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace statement: %w", err)
	}

	r.logger.Info("Statement written",
		zap.String("month", s.Month),
		zap.String("path", path),
		zap.Int("rows", len(s.Records)))
	return nil
}

// Render writes the statement PDF to w
func (r *Renderer) Render(w io.Writer, s Statement) error {
	periodEnd, err := PeriodEnd(s.Month)
	if err != nil {
		return err
	}
	due, err := PaymentDue(s.Month, r.head.PaymentDueDay)
	if err != nil {
		return err
	}

	pdf := gofpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetCompression(r.compress)
	pdf.SetTitle("Statement "+s.Month, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	text := func(s string) string { return tr(clean(s)) }

	pdf.AddPage()
	pageWidth, _ := pdf.GetPageSize()
	contentWidth := pageWidth - 2*margin

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(contentWidth, 10, text(r.head.LabName), "", 1, "C", false, 0, "")
	if r.head.AddressLine != "" {
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(contentWidth, 5, text(r.head.AddressLine), "", 1, "C", false, 0, "")
	}
	pdf.Ln(6)

	client := s.Client
	if client == "" {
		client = "Unknown Client"
	}
	pdf.SetFont("Helvetica", "B", 12)
	title := fmt.Sprintf("Statement for period ending %s for %s", periodEnd.Format(entity.DateLayout), client)
	pdf.CellFormat(contentWidth, 8, text(title), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	r.drawTable(pdf, text, s.Records)

	pdf.Ln(12)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(contentWidth, 6, "THANK YOU", "", 1, "C", false, 0, "")
	if r.head.Phone != "" {
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(contentWidth, 6, text("Questions call "+r.head.Phone), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(contentWidth, 6, "Payment due by: "+due.Format(entity.DateLayout), "", 1, "L", false, 0, "")

	if err := pdf.Output(w); err != nil {
		r.logger.Error("Failed to render statement", zap.String("month", s.Month), zap.Error(err))
		return fmt.Errorf("failed to render statement: %w", err)
	}
	return nil
}

func (r *Renderer) drawTable(pdf *gofpdf.Fpdf, text func(string) string, set reconcile.RecordSet) {
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range workbook.Columns {
		pdf.CellFormat(columnWidths[i], rowHeight+2, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, rec := range set {
		unit := ""
		if rec.UnitPrice.Valid {
			unit = workbook.FormatMoney(rec.UnitPrice.Decimal)
		}
		cells := []string{
			rec.DueDate.Format(entity.DateLayout),
			text(rec.PatientName),
			strconv.Itoa(rec.TotalUnits),
			unit,
			workbook.FormatMoney(rec.AlloysExtrasCost),
			workbook.FormatMoney(rec.TotalCost),
		}
		aligns := []string{"C", "L", "R", "R", "R", "R"}
		for i, c := range cells {
			pdf.CellFormat(columnWidths[i], rowHeight, c, "LR", 0, aligns[i], false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetFont("Helvetica", "B", 10)
	for i := 0; i < 4; i++ {
		pdf.CellFormat(columnWidths[i], rowHeight+2, "", "LTB", 0, "", false, 0, "")
	}
	pdf.CellFormat(columnWidths[4], rowHeight+2, "TOTAL:", "TB", 0, "R", false, 0, "")
	pdf.CellFormat(columnWidths[5], rowHeight+2, workbook.FormatMoney(Total(set)), "1", 1, "R", false, 0, "")
}

// clean folds typographic ligatures (U+FB00..U+FB06) and other
// compatibility forms into plain letters the core fonts can draw.
func clean(s string) string {
	return norm.NFKC.String(s)
}
