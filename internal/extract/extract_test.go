package extract

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubExtractor struct {
	name  string
	text  string
	err   error
	calls int
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	s.calls++
	return s.text, s.err
}

func TestChain_ExtractText(t *testing.T) {
	ctx := context.Background()

	t.Run("first extractor wins", func(t *testing.T) {
		a := &stubExtractor{name: "a", text: "Patient: A, Due 1/1/2025"}
		b := &stubExtractor{name: "b", text: "other"}

		text, err := NewChain(zap.NewNop(), a, b).ExtractText(ctx, "x.pdf")

		require.NoError(t, err)
		assert.Equal(t, "Patient: A, Due 1/1/2025", text)
		assert.Zero(t, b.calls)
	})

	t.Run("falls back on error and on blank text", func(t *testing.T) {
		a := &stubExtractor{name: "a", err: errors.New("cgo unavailable")}
		b := &stubExtractor{name: "b", text: "  \n "}
		c := &stubExtractor{name: "c", text: "text"}

		text, err := NewChain(zap.NewNop(), a, b, c).ExtractText(ctx, "x.pdf")

		require.NoError(t, err)
		assert.Equal(t, "text", text)
		assert.Equal(t, 1, b.calls)
	})

	t.Run("all failing reports every cause", func(t *testing.T) {
		a := &stubExtractor{name: "a", err: errors.New("boom")}
		b := &stubExtractor{name: "b"}

		_, err := NewChain(zap.NewNop(), a, b).ExtractText(ctx, "scan.pdf")

		assert.ErrorIs(t, err, ErrNoText)
		assert.ErrorContains(t, err, "a: boom")
		assert.ErrorContains(t, err, "b: empty text")
	})

	t.Run("stops when cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		a := &stubExtractor{name: "a", text: "text"}

		_, err := NewChain(zap.NewNop(), a).ExtractText(cctx, "x.pdf")

		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, a.calls)
	})
}

func TestNew(t *testing.T) {
	c, err := New([]string{"fitz", "pdf"}, 5, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "fitz,pdf", c.Name())

	_, err = New([]string{"ocr"}, 0, zap.NewNop())
	assert.Error(t, err)

	_, err = New(nil, 0, zap.NewNop())
	assert.Error(t, err)
}

func TestExtractors_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.pdf")

	for _, e := range []TextExtractor{NewFitzExtractor(0), NewPlainExtractor(0)} {
		t.Run(e.Name(), func(t *testing.T) {
			_, err := e.ExtractText(context.Background(), path)
			assert.Error(t, err)
		})
	}
}

func TestJoinRow(t *testing.T) {
	runs := []pdf.Text{
		{S: "Crown", X: 10, W: 30, FontSize: 10},
		{S: "1", X: 45, W: 5, FontSize: 10},
		{S: "$100", X: 60, W: 20, FontSize: 10},
		{S: ".00", X: 80, W: 15, FontSize: 10},
	}
	assert.Equal(t, "Crown 1 $100.00", joinRow(runs))

	unknownWidths := []pdf.Text{
		{S: "A", X: 0, FontSize: 10},
		{S: "B", X: 6, FontSize: 10},
		{S: "C", X: 20, FontSize: 10},
	}
	assert.Equal(t, "AB C", joinRow(unknownWidths))
}
