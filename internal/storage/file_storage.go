package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// UploadsDirName holds documents received over HTTP, one folder per batch
const UploadsDirName = "uploads"

// FileStorage stores incoming documents before they are imported
type FileStorage interface {
	// SaveUpload copies r into a new file named after name inside batchDir
	SaveUpload(batchDir, name string, r io.Reader) (string, error)

	// NewBatchDir creates an empty folder for one upload batch
	NewBatchDir() (string, error)

	// ValidatePath checks path security (no traversal, within base)
	ValidatePath(fullPath string) error
}

// LocalFileStorage implements FileStorage under <base>/uploads
type LocalFileStorage struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalFileStorage creates a new LocalFileStorage rooted at baseDir
func NewLocalFileStorage(baseDir string, logger *zap.Logger) *LocalFileStorage {
	return &LocalFileStorage{
		baseDir: filepath.Join(baseDir, UploadsDirName),
		logger:  logger,
	}
}

// NewBatchDir creates uploads/<timestamp>-<n>/
func (s *LocalFileStorage) NewBatchDir() (string, error) {
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create uploads folder: %w", err)
	}
	dir, err := os.MkdirTemp(s.baseDir, time.Now().UTC().Format("20060102_150405")+"-")
	if err != nil {
		s.logger.Error("Failed to create upload batch folder", zap.Error(err))
		return "", fmt.Errorf("failed to create batch folder: %w", err)
	}
	return dir, nil
}

// SaveUpload writes r to batchDir/<sanitized name>
func (s *LocalFileStorage) SaveUpload(batchDir, name string, r io.Reader) (string, error) {
	safe := SanitizeFileName(name)
	if safe == "" {
		return "", fmt.Errorf("cannot save upload: empty file name")
	}
	fullPath := filepath.Join(batchDir, safe)
	if err := s.ValidatePath(fullPath); err != nil {
		return "", err
	}

	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		s.logger.Error("Failed to create upload file",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(fullPath)
		if copyErr == nil {
			copyErr = closeErr
		}
		return "", fmt.Errorf("failed to write file: %w", copyErr)
	}

	s.logger.Debug("Upload saved",
		zap.String("path", fullPath),
		zap.Int64("size", n))
	return fullPath, nil
}

// ValidatePath checks that the path is safe and within the uploads folder
func (s *LocalFileStorage) ValidatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return fmt.Errorf("path escapes base directory: %s", fullPath)
	}
	return nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9 ._\-()#]`)

// SanitizeFileName keeps the base name of name and drops characters that
// are unsafe in a file name. The extension is preserved.
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeFileChars.ReplaceAllString(name, "")
	name = strings.TrimLeft(strings.TrimSpace(name), ".")
	return name
}
