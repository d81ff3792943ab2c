package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PlainExtractor reads text with a pure Go PDF reader. It is the fallback
// when MuPDF is unavailable or cannot read a file.
type PlainExtractor struct {
	maxPages int
}

// NewPlainExtractor creates a pure Go extractor; maxPages <= 0 reads all pages
func NewPlainExtractor(maxPages int) *PlainExtractor {
	return &PlainExtractor{maxPages: maxPages}
}

// Name implements TextExtractor
func (e *PlainExtractor) Name() string { return "pdf" }

// ExtractText implements TextExtractor
func (e *PlainExtractor) ExtractText(ctx context.Context, path string) (text string, err error) {
	// the reader panics on some malformed streams
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("failed to read PDF: %v", p)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	if e.maxPages > 0 && n > e.maxPages {
		n = e.maxPages
	}

	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i, err)
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, joinRow(row.Content))
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return joinPages(pages), nil
}

// joinRow glues the text runs of one row, inserting a space where the
// horizontal gap between two runs is wider than a fraction of the font size.
func joinRow(runs []pdf.Text) string {
	var b strings.Builder
	for i, t := range runs {
		if i > 0 {
			prev := runs[i-1]
			end := prev.X + prev.W
			if prev.W == 0 {
				// no width table for the font: assume an average glyph
				end = prev.X + prev.FontSize*0.5
			}
			if gap := t.X - end; gap > prev.FontSize*0.15 {
				b.WriteByte(' ')
			}
		}
		b.WriteString(t.S)
	}
	return b.String()
}
