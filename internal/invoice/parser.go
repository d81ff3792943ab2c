// Package invoice turns the extracted text of one lab invoice into an
// InvoiceRecord. Parsing is a pure function of the text: no I/O, no shared
// state, safe to run on many documents concurrently.
package invoice

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/labinvoice/internal/domain/entity"
)

// Parser parses invoice text. The zero value is ready to use.
type Parser struct{}

// NewParser creates a new invoice parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse returns the invoice record for text
func (p *Parser) Parse(text string) (*entity.InvoiceRecord, error) {
	return Parse(text)
}

// ParseDetailed returns the invoice record together with its line items
func (p *Parser) ParseDetailed(text string) (*entity.ParsedInvoice, error) {
	return ParseDetailed(text)
}

// Parse returns the invoice record for text, or a *ParseError
func Parse(text string) (*entity.InvoiceRecord, error) {
	parsed, err := ParseDetailed(text)
	if err != nil {
		return nil, err
	}
	return &parsed.Record, nil
}

// ParseDetailed parses text in three passes: the footer fact, the table
// header, then the rows between them. Any failure is terminal and no
// partial record is returned.
func ParseDetailed(text string) (*entity.ParsedInvoice, error) {
	ft, err := findFooter(text)
	if err != nil {
		return nil, err
	}

	doc := newDocument(text)
	hdr, err := doc.findHeader()
	if err != nil {
		return nil, err
	}

	// the footer usually closes the table, but extraction order is not
	// guaranteed; when it comes first the table runs to the end
	end := len(doc.lines)
	if footerLine := doc.lineIndex(ft.start); footerLine > hdr.lastLine {
		end = footerLine
	}

	items, err := doc.parseRows(hdr.lastLine+1, end)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &ParseError{
			Kind:    KindNoLineItems,
			Offset:  hdr.offset,
			Line:    hdr.firstLine + 1,
			Context: fmt.Sprintf("no rows between header (line %d) and line %d", hdr.lastLine+1, end),
		}
	}

	record := aggregate(items)
	record.DueDate = ft.dueDate
	record.PatientName = ft.patientName
	record.ClientName = clientName(text[:hdr.offset])

	return &entity.ParsedInvoice{Record: record, Items: items}, nil
}

// aggregate computes the record totals from the ordered rows. The first row
// is the restoration itself; every later row is an alloy or extra.
func aggregate(items []entity.LineItem) entity.InvoiceRecord {
	total := decimal.Zero
	extras := decimal.Zero
	for i, it := range items {
		total = total.Add(it.Cost)
		if i > 0 {
			extras = extras.Add(it.Cost)
		}
	}
	return entity.InvoiceRecord{
		TotalUnits:       entity.BillableUnitsPerInvoice,
		UnitPrice:        decimal.NewNullDecimal(items[0].UnitPrice),
		AlloysExtrasCost: extras,
		TotalCost:        total,
	}
}

var periodBeforeWord = regexp.MustCompile(`\.(\S)`)

// clientName reads the optional "INVOICE FOR: <name>" fact that precedes
// the table header. The name runs to the end of its line.
func clientName(before string) string {
	words := CollapseLetterSpacing(before)
	for i := 0; i+1 < len(words); i++ {
		if !strings.EqualFold(words[i].Text, "INVOICE") {
			continue
		}
		next := strings.ToUpper(words[i+1].Text)
		nameFrom := i + 2
		switch {
		case next == "FOR:":
		case next == "FOR" && nameFrom < len(words) && words[nameFrom].Text == ":":
			nameFrom++
		default:
			continue
		}

		var parts []string
		prevEnd := words[nameFrom-1].End
		for _, w := range words[nameFrom:] {
			if strings.Contains(before[prevEnd:w.Start], "\n") {
				break
			}
			parts = append(parts, w.Text)
			prevEnd = w.End
		}
		name := strings.Join(parts, " ")
		name = periodBeforeWord.ReplaceAllString(name, ". $1")
		return strings.Join(strings.Fields(name), " ")
	}
	return ""
}
