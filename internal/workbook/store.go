package workbook

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/labinvoice/internal/reconcile"
	"github.com/garyjia/labinvoice/internal/storage"
)

// Store loads and saves month record sets in the month folders
type Store struct {
	months    *storage.MonthStore
	csvMirror bool
	logger    *zap.Logger
}

// NewStore creates a workbook store. With csvMirror set, every save also
// writes <month>_Invoices.csv.
func NewStore(months *storage.MonthStore, csvMirror bool, logger *zap.Logger) *Store {
	return &Store{
		months:    months,
		csvMirror: csvMirror,
		logger:    logger,
	}
}

// Load returns the stored record set of month. When the workbook is
// missing but a CSV mirror exists, the mirror is read instead.
func (s *Store) Load(month string) (reconcile.RecordSet, error) {
	if err := storage.ValidateMonth(month); err != nil {
		return nil, err
	}

	path := s.months.WorkbookPath(month)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		csvPath := s.months.CSVPath(month)
		if _, err := os.Stat(csvPath); err == nil {
			s.logger.Warn("Workbook missing, loading CSV mirror",
				zap.String("month", month),
				zap.String("path", csvPath))
			return ReadCSV(csvPath)
		}
		return reconcile.RecordSet{}, nil
	}

	set, err := ReadXLSX(path)
	if err != nil {
		s.logger.Error("Failed to load workbook", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	s.logger.Debug("Loaded workbook", zap.String("month", month), zap.Int("rows", len(set)))
	return set, nil
}

// Save writes set as the month workbook and, when enabled, its CSV mirror
func (s *Store) Save(month string, set reconcile.RecordSet) error {
	if _, err := s.months.EnsureMonth(month); err != nil {
		return err
	}

	path := s.months.WorkbookPath(month)
	if err := WriteXLSX(path, set); err != nil {
		s.logger.Error("Failed to save workbook", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("failed to save %s: %w", path, err)
	}

	if s.csvMirror {
		csvPath := s.months.CSVPath(month)
		if err := WriteCSV(csvPath, set); err != nil {
			s.logger.Error("Failed to save CSV mirror", zap.String("path", csvPath), zap.Error(err))
			return fmt.Errorf("failed to save %s: %w", csvPath, err)
		}
	}

	s.logger.Info("Saved workbook",
		zap.String("month", month),
		zap.String("path", path),
		zap.Int("rows", len(set)))
	return nil
}
