package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/labinvoice/internal/domain/entity"
)

// ErrInvalidMonth is returned for a month name that is not YYYY-MM
var ErrInvalidMonth = errors.New("month must be YYYY-MM")

// LogsDirName is the run log folder under the base directory
const LogsDirName = "logs"

// MonthStore lays out per-month output folders:
//
//	<base>/<YYYY-MM>/<YYYY-MM>_Invoices.xlsx
//	<base>/<YYYY-MM>/<YYYY-MM>_Invoices.csv
//	<base>/<YYYY-MM>/<YYYY-MM>_Statement.pdf
//	<base>/logs/
type MonthStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewMonthStore creates a new MonthStore
func NewMonthStore(baseDir string, logger *zap.Logger) *MonthStore {
	return &MonthStore{
		baseDir: baseDir,
		logger:  logger,
	}
}

// BaseDir returns the root output folder
func (s *MonthStore) BaseDir() string {
	return s.baseDir
}

// ValidateMonth checks that month is a YYYY-MM name
func ValidateMonth(month string) error {
	if _, err := time.Parse(entity.MonthLayout, month); err != nil || len(month) != len(entity.MonthLayout) {
		return fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	return nil
}

// MonthOf returns the month a record is filed under: override when set,
// otherwise the month of the due date.
func MonthOf(due time.Time, override string) string {
	if override != "" {
		return override
	}
	return due.Format(entity.MonthLayout)
}

// EnsureMonth creates the month folder and the logs folder
// Returns the month folder path
func (s *MonthStore) EnsureMonth(month string) (string, error) {
	if err := ValidateMonth(month); err != nil {
		return "", err
	}

	dir := s.MonthDir(month)
	for _, d := range []string{dir, s.LogsDir()} {
		if err := os.MkdirAll(d, 0755); err != nil {
			s.logger.Error("Failed to create month folder",
				zap.String("month", month),
				zap.String("folder_path", d),
				zap.Error(err))
			return "", fmt.Errorf("failed to create folder: %w", err)
		}
	}

	s.logger.Debug("Ensured month folder",
		zap.String("month", month),
		zap.String("folder_path", dir))
	return dir, nil
}

// MonthDir returns the folder of a month without creating it
func (s *MonthStore) MonthDir(month string) string {
	return filepath.Join(s.baseDir, month)
}

// LogsDir returns the run log folder
func (s *MonthStore) LogsDir() string {
	return filepath.Join(s.baseDir, LogsDirName)
}

// WorkbookPath returns <month>_Invoices.xlsx
func (s *MonthStore) WorkbookPath(month string) string {
	return filepath.Join(s.MonthDir(month), month+"_Invoices.xlsx")
}

// CSVPath returns <month>_Invoices.csv
func (s *MonthStore) CSVPath(month string) string {
	return filepath.Join(s.MonthDir(month), month+"_Invoices.csv")
}

// StatementPath returns <month>_Statement.pdf
func (s *MonthStore) StatementPath(month string) string {
	return filepath.Join(s.MonthDir(month), month+"_Statement.pdf")
}

// RunLogPath returns a timestamped importer log file path
func (s *MonthStore) RunLogPath(now time.Time) string {
	return filepath.Join(s.LogsDir(), "importer_"+now.Format("20060102_150405")+".log")
}

// ResetMonth removes the generated files of a month. Missing files are not
// an error, so resetting twice is fine. Other files in the folder are kept.
func (s *MonthStore) ResetMonth(month string) ([]string, error) {
	if err := ValidateMonth(month); err != nil {
		return nil, err
	}

	var removed []string
	for _, p := range []string{s.WorkbookPath(month), s.CSVPath(month), s.StatementPath(month)} {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed = append(removed, p)
		case errors.Is(err, os.ErrNotExist):
		default:
			s.logger.Error("Failed to reset month file",
				zap.String("month", month),
				zap.String("path", p),
				zap.Error(err))
			return removed, fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}

	s.logger.Info("Reset month",
		zap.String("month", month),
		zap.Int("removed", len(removed)))
	return removed, nil
}

// Months lists the month folders present under the base directory, ascending
func (s *MonthStore) Months() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read output folder: %w", err)
	}

	var months []string
	for _, e := range entries {
		if e.IsDir() && ValidateMonth(e.Name()) == nil {
			months = append(months, e.Name())
		}
	}
	sort.Strings(months)
	return months, nil
}
