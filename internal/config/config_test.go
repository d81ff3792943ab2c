package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "output", cfg.Output.BaseDir)
	assert.True(t, cfg.Output.CSVMirror)
	assert.Equal(t, 4, cfg.Import.Workers)
	assert.Equal(t, []string{"fitz", "pdf"}, cfg.Extraction.Order)
	assert.Equal(t, 25, cfg.Statement.PaymentDueDay)
	assert.Equal(t, 30*time.Second, cfg.Import.PagesTimeout)
	assert.False(t, cfg.Review.Enabled)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
output:
  base_dir: /srv/invoices
  month_override: "2025-10"
  blank_mixed_unit_price: true
statement:
  lab_name: Accudent Dental Lab
  payment_due_day: 10
import:
  workers: 8
review:
  enabled: true
`)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LABINVOICE_IMPORT_WORKERS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/invoices", cfg.Output.BaseDir)
	assert.Equal(t, "2025-10", cfg.Output.MonthOverride)
	assert.True(t, cfg.Output.BlankMixedUnitPrice)
	assert.Equal(t, "Accudent Dental Lab", cfg.Statement.LabName)
	assert.Equal(t, 10, cfg.Statement.PaymentDueDay)
	assert.Equal(t, "sk-test", cfg.Review.APIKey)
	assert.Equal(t, 2, cfg.Import.Workers, "environment wins over the file")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad month override", "output:\n  month_override: October\n"},
		{"due day out of range", "statement:\n  payment_due_day: 31\n"},
		{"no workers", "import:\n  workers: 0\n"},
		{"unknown extractor", "extraction:\n  order: [ocr]\n"},
		{"review without key", "review:\n  enabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", "")
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorContains(t, err, "invalid configuration")
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
