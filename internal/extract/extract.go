// Package extract turns a PDF file into the flat text the invoice parser
// reads: pages in order, separated by a blank line.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrNoText is returned when no extractor produced any text
var ErrNoText = errors.New("no text could be extracted")

// PageSeparator joins the text of consecutive pages
const PageSeparator = "\n\n"

// TextExtractor reads the visible text of a PDF
type TextExtractor interface {
	Name() string
	ExtractText(ctx context.Context, path string) (string, error)
}

// Chain tries extractors in order and keeps the first non-empty result
type Chain struct {
	extractors []TextExtractor
	logger     *zap.Logger
}

// NewChain creates a chain of extractors
func NewChain(logger *zap.Logger, extractors ...TextExtractor) *Chain {
	return &Chain{
		extractors: extractors,
		logger:     logger,
	}
}

// New builds the chain named by order ("fitz", "pdf")
func New(order []string, maxPages int, logger *zap.Logger) (*Chain, error) {
	var ex []TextExtractor
	for _, name := range order {
		switch name {
		case "fitz":
			ex = append(ex, NewFitzExtractor(maxPages))
		case "pdf":
			ex = append(ex, NewPlainExtractor(maxPages))
		default:
			return nil, fmt.Errorf("unknown extractor %q", name)
		}
	}
	if len(ex) == 0 {
		return nil, fmt.Errorf("no extractors configured")
	}
	return NewChain(logger, ex...), nil
}

// Name implements TextExtractor
func (c *Chain) Name() string {
	names := make([]string, len(c.extractors))
	for i, e := range c.extractors {
		names[i] = e.Name()
	}
	return strings.Join(names, ",")
}

// ExtractText implements TextExtractor
func (c *Chain) ExtractText(ctx context.Context, path string) (string, error) {
	var errs []error
	for _, e := range c.extractors {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := e.ExtractText(ctx, path)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errors.New("empty text")
		}
		if err != nil {
			c.logger.Debug("Extractor failed, trying next",
				zap.String("extractor", e.Name()),
				zap.String("path", path),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}

		c.logger.Debug("Extracted text",
			zap.String("extractor", e.Name()),
			zap.String("path", path),
			zap.Int("length", len(text)))
		return text, nil
	}
	return "", fmt.Errorf("%w from %s: %w", ErrNoText, path, errors.Join(errs...))
}

func joinPages(pages []string) string {
	return strings.Join(pages, PageSeparator)
}
