// Package convert makes sure a dropped document is available as a PDF.
package convert

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnsupportedType is returned for extensions other than .pdf and .pages
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrNoPreview is returned when a .pages package embeds no preview PDF
	ErrNoPreview = errors.New("no Preview.pdf in .pages package")
)

// SupportedExtensions lists the document types EnsurePDF accepts
var SupportedExtensions = []string{".pdf", ".pages"}

// Supported reports whether path has a supported extension
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Runner runs an external command and returns its combined output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, err
	}
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Paths are passed as arguments, never spliced into the script text
const exportScript = `on run argv
	set inPath to POSIX file (item 1 of argv) as alias
	set outPath to POSIX file (item 2 of argv)
	tell application "Pages"
		set docRef to open inPath
		export docRef to outPath as PDF
		close docRef saving no
	end tell
end run`

// Converter turns .pages documents into PDFs
type Converter struct {
	runner  Runner
	timeout time.Duration
	logger  *zap.Logger
}

// NewConverter creates a converter that drives the Pages app through
// osascript, giving up after timeout
func NewConverter(timeout time.Duration, logger *zap.Logger) *Converter {
	return NewConverterWithRunner(execRunner{}, timeout, logger)
}

// NewConverterWithRunner creates a converter with a custom command runner
func NewConverterWithRunner(runner Runner, timeout time.Duration, logger *zap.Logger) *Converter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Converter{
		runner:  runner,
		timeout: timeout,
		logger:  logger,
	}
}

func noop() {}

// EnsurePDF returns a PDF path for the document at path. A .pdf is returned
// as is. A .pages document is exported by the Pages app, or failing that
// its embedded QuickLook preview is used. Call cleanup once the PDF has been
// read; it removes any intermediate file.
func (c *Converter) EnsurePDF(ctx context.Context, path string) (pdfPath string, cleanup func(), err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return path, noop, nil
	case ".pages":
	default:
		return "", noop, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(path))
	}

	tmpDir, err := os.MkdirTemp("", "labinvoice-pages-")
	if err != nil {
		return "", noop, fmt.Errorf("failed to create temp folder: %w", err)
	}
	cleanup = func() { _ = os.RemoveAll(tmpDir) }

	out := filepath.Join(tmpDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".pdf")

	scriptErr := c.exportWithPages(ctx, path, out)
	if scriptErr == nil {
		return out, cleanup, nil
	}
	c.logger.Debug("Pages export failed, using embedded preview",
		zap.String("path", path),
		zap.Error(scriptErr))

	if err := extractPreview(path, out); err != nil {
		cleanup()
		c.logger.Warn("Failed to convert .pages document",
			zap.String("path", path),
			zap.NamedError("export_error", scriptErr),
			zap.NamedError("preview_error", err))
		return "", noop, fmt.Errorf("failed to convert %s: export: %v; preview: %w", filepath.Base(path), scriptErr, err)
	}
	return out, cleanup, nil
}

func (c *Converter) exportWithPages(ctx context.Context, in, out string) error {
	abs, err := filepath.Abs(in)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.runner.Run(ctx, "osascript", "-e", exportScript, abs, out)
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("conversion timed out after %s", c.timeout)
	}
	if err != nil {
		return fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(output)))
	}
	if _, err := os.Stat(out); err != nil {
		return fmt.Errorf("PDF was not created")
	}
	return nil
}

// extractPreview copies QuickLook/Preview.pdf out of a .pages document,
// which is either a zip archive or, for older documents, a folder bundle.
func extractPreview(pagesPath, out string) error {
	info, err := os.Stat(pagesPath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		src, err := os.Open(filepath.Join(pagesPath, "QuickLook", "Preview.pdf"))
		if errors.Is(err, os.ErrNotExist) {
			return ErrNoPreview
		}
		if err != nil {
			return err
		}
		defer src.Close()
		return copyTo(out, src)
	}

	zr, err := zip.OpenReader(pagesPath)
	if err != nil {
		return fmt.Errorf("not a valid .pages file: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !strings.EqualFold(path.Base(f.Name), "preview.pdf") {
			continue
		}
		src, err := f.Open()
		if err != nil {
			return err
		}
		defer src.Close()
		return copyTo(out, src)
	}
	return ErrNoPreview
}

func copyTo(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
