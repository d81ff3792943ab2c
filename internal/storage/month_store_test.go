package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/labinvoice/internal/domain/entity"
)

func TestMonthStore_Layout(t *testing.T) {
	base := t.TempDir()
	s := NewMonthStore(base, zap.NewNop())

	dir, err := s.EnsureMonth("2025-10")

	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.DirExists(t, filepath.Join(base, "logs"))
	assert.Equal(t, filepath.Join(base, "2025-10", "2025-10_Invoices.xlsx"), s.WorkbookPath("2025-10"))
	assert.Equal(t, filepath.Join(base, "2025-10", "2025-10_Invoices.csv"), s.CSVPath("2025-10"))
	assert.Equal(t, filepath.Join(base, "2025-10", "2025-10_Statement.pdf"), s.StatementPath("2025-10"))
	assert.Equal(t, filepath.Join(base, "logs", "importer_20251007_093000.log"),
		s.RunLogPath(time.Date(2025, 10, 7, 9, 30, 0, 0, time.UTC)))
}

func TestMonthStore_RejectsBadMonth(t *testing.T) {
	s := NewMonthStore(t.TempDir(), zap.NewNop())

	for _, m := range []string{"", "2025-13", "2025-1", "../etc", "2025-10/.."} {
		t.Run(m, func(t *testing.T) {
			_, err := s.EnsureMonth(m)
			assert.ErrorIs(t, err, ErrInvalidMonth)
			_, err = s.ResetMonth(m)
			assert.ErrorIs(t, err, ErrInvalidMonth)
		})
	}
}

func TestMonthStore_ResetMonth(t *testing.T) {
	s := NewMonthStore(t.TempDir(), zap.NewNop())
	dir, err := s.EnsureMonth("2025-10")
	require.NoError(t, err)

	for _, p := range []string{s.WorkbookPath("2025-10"), s.StatementPath("2025-10"), filepath.Join(dir, "notes.txt")} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}

	removed, err := s.ResetMonth("2025-10")
	require.NoError(t, err)
	assert.Len(t, removed, 2)
	assert.NoFileExists(t, s.WorkbookPath("2025-10"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"), "unrelated files stay")

	removed, err = s.ResetMonth("2025-10")
	require.NoError(t, err, "resetting twice is fine")
	assert.Empty(t, removed)
}

func TestMonthStore_Months(t *testing.T) {
	base := t.TempDir()
	s := NewMonthStore(base, zap.NewNop())
	for _, m := range []string{"2025-11", "2025-09"} {
		_, err := s.EnsureMonth(m)
		require.NoError(t, err)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(base, "uploads"), 0755))

	months, err := s.Months()

	require.NoError(t, err)
	assert.Equal(t, []string{"2025-09", "2025-11"}, months)

	empty, err := NewMonthStore(filepath.Join(base, "missing"), zap.NewNop()).Months()
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMonthOf(t *testing.T) {
	due := entity.NewDate(2025, 10, 7)
	assert.Equal(t, "2025-10", MonthOf(due, ""))
	assert.Equal(t, "2025-12", MonthOf(due, "2025-12"))
}
