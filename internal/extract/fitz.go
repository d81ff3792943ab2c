package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// FitzExtractor reads text through MuPDF
type FitzExtractor struct {
	maxPages int
}

// NewFitzExtractor creates a MuPDF extractor; maxPages <= 0 reads all pages
func NewFitzExtractor(maxPages int) *FitzExtractor {
	return &FitzExtractor{maxPages: maxPages}
}

// Name implements TextExtractor
func (e *FitzExtractor) Name() string { return "fitz" }

// ExtractText implements TextExtractor
func (e *FitzExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if e.maxPages > 0 && n > e.maxPages {
		n = e.maxPages
	}

	pages := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i+1, err)
		}
		pages = append(pages, strings.TrimRight(text, "\n"))
	}
	return joinPages(pages), nil
}
