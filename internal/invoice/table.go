package invoice

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/labinvoice/internal/domain/entity"
)

// HeaderTokens are the table column labels, left to right
var HeaderTokens = []string{"DESCRIPTION", "QUANTITY", "UNIT PRICE", "COST"}

var headerNormalizer = NewNormalizer(HeaderTokens...)

// a header label may be broken over at most this many extracted lines
const maxHeaderLines = 4

var quantityPattern = regexp.MustCompile(`^\d+$`)

// document is the extracted text split into lines with their byte offsets
type document struct {
	text   string
	lines  []string
	starts []int
}

func newDocument(text string) *document {
	d := &document{text: text, lines: strings.Split(text, "\n")}
	d.starts = make([]int, len(d.lines))
	off := 0
	for i, l := range d.lines {
		d.starts[i] = off
		off += len(l) + 1
	}
	return d
}

// lineIndex returns the 0-based line holding byte offset off
func (d *document) lineIndex(off int) int {
	return lineAt(d.text, off) - 1
}

type header struct {
	firstLine, lastLine int
	offset              int // byte offset of the DESCRIPTION label
}

// findHeader locates the smallest run of consecutive lines whose normalized
// words contain the four header labels in order and next to each other.
func (d *document) findHeader() (*header, error) {
	for i := range d.lines {
		for n := 1; n <= maxHeaderLines && i+n <= len(d.lines); n++ {
			region := strings.Join(d.lines[i:i+n], "\n")
			words := headerNormalizer.Normalize(region)
			if p := indexOfSequence(words, HeaderTokens); p >= 0 {
				return &header{
					firstLine: d.lineIndex(d.starts[i] + words[p].Start),
					lastLine:  i + n - 1,
					offset:    d.starts[i] + words[p].Start,
				}, nil
			}
		}
	}
	return nil, newParseError(KindMissingTableHeader,
		fmt.Sprintf("expected %s in one header region", strings.Join(HeaderTokens, ", ")))
}

func indexOfSequence(words []Word, seq []string) int {
	for p := 0; p+len(seq) <= len(words); p++ {
		ok := true
		for k, tok := range seq {
			if words[p+k].Text != tok {
				ok = false
				break
			}
		}
		if ok {
			return p
		}
	}
	return -1
}

// parseRows reads line items from lines [from, to). Blank lines and lines
// that do not split into description, quantity, unit price and cost are
// skipped; a totals line ends the table. A row is one whole line: text that
// shares a line with the header or the footer fact is not read as a row.
func (d *document) parseRows(from, to int) ([]entity.LineItem, error) {
	var items []entity.LineItem
	for i := from; i < to; i++ {
		line := strings.TrimSpace(d.lines[i])
		if line == "" {
			continue
		}
		if isTotalsLine(line) {
			break
		}
		item, ok, err := parseRow(line)
		if err != nil {
			var pe *ParseError
			if !errors.As(err, &pe) {
				return nil, err
			}
			pe.Line = i + 1
			pe.Offset = d.starts[i]
			pe.Context = excerpt(line)
			return nil, pe
		}
		if !ok {
			continue
		}
		item.Line = i + 1
		items = append(items, item)
	}
	return items, nil
}

func isTotalsLine(line string) bool {
	words := CollapseLetterSpacing(line)
	if len(words) == 0 {
		return false
	}
	first := strings.TrimSuffix(strings.ToUpper(words[0].Text), ":")
	switch first {
	case "TOTAL", "SUBTOTAL", "SUB-TOTAL":
		return true
	}
	return false
}

// rowFields splits a row on whitespace, re-attaching a "$" that extraction
// separated from its amount ("$ 110.00", "($ 110.00)").
func rowFields(line string) []string {
	raw := strings.Fields(line)
	fields := make([]string, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if isDetachedDollar(raw[i]) && i+1 < len(raw) {
			fields = append(fields, raw[i]+raw[i+1])
			i++
			continue
		}
		fields = append(fields, raw[i])
	}
	return fields
}

func isDetachedDollar(s string) bool {
	switch s {
	case "$", "($", "-$":
		return true
	}
	return false
}

// parseRow decomposes one table line. ok is false when the line is not a
// row at all; err is set when it is a row with a malformed amount or a
// quantity too large to hold.
func parseRow(line string) (item entity.LineItem, ok bool, err error) {
	f := rowFields(line)
	n := len(f)
	if n < 3 {
		return item, false, nil
	}
	qtyText, priceText, costText := f[n-3], f[n-2], f[n-1]
	if !quantityPattern.MatchString(qtyText) || !looksLikeAmount(priceText) || !looksLikeAmount(costText) {
		return item, false, nil
	}
	qty, convErr := strconv.Atoi(qtyText)
	if convErr != nil {
		return item, false, newParseError(KindInvalidQuantity, qtyText)
	}

	var price, cost decimal.Decimal
	if price, err = ParseAmount(priceText); err != nil {
		return item, false, err
	}
	if cost, err = ParseAmount(costText); err != nil {
		return item, false, err
	}

	return entity.LineItem{
		Description: strings.Join(f[:n-3], " "),
		Quantity:    qty,
		UnitPrice:   price,
		Cost:        cost,
	}, true, nil
}
