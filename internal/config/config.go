package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Output     OutputConfig     `mapstructure:"output"`
	Statement  StatementConfig  `mapstructure:"statement"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Import     ImportConfig     `mapstructure:"import"`
	Inbox      InboxConfig      `mapstructure:"inbox"`
	Review     ReviewConfig     `mapstructure:"review"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxUploadMB  int64         `mapstructure:"max_upload_mb"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// OutputConfig controls where month workbooks and reports are written
type OutputConfig struct {
	BaseDir             string `mapstructure:"base_dir"`
	CSVMirror           bool   `mapstructure:"csv_mirror"`
	MonthOverride       string `mapstructure:"month_override"` // YYYY-MM, empty = month of the due date
	BlankMixedUnitPrice bool   `mapstructure:"blank_mixed_unit_price"`
}

// StatementConfig holds the letterhead of the monthly statement
type StatementConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	LabName            string `mapstructure:"lab_name"`
	AddressLine        string `mapstructure:"address_line"`
	Phone              string `mapstructure:"phone"`
	ClientNameOverride string `mapstructure:"client_name_override"`
	PaymentDueDay      int    `mapstructure:"payment_due_day"`
}

// ExtractionConfig selects PDF text extractors, tried in order
type ExtractionConfig struct {
	Order    []string `mapstructure:"order"` // fitz, pdf
	MaxPages int      `mapstructure:"max_pages"`
}

// ImportConfig holds batch import settings
type ImportConfig struct {
	Workers      int           `mapstructure:"workers"`
	PagesTimeout time.Duration `mapstructure:"pages_timeout"`
}

// InboxConfig holds the drop folder watcher settings
type InboxConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Dir      string        `mapstructure:"dir"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// ReviewConfig holds the optional AI review suggestion settings
type ReviewConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables.
// An empty configPath uses defaults and the environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LABINVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_upload_mb", 32)

	v.SetDefault("database.path", "data/labinvoice.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("output.base_dir", "output")
	v.SetDefault("output.csv_mirror", true)
	v.SetDefault("output.blank_mixed_unit_price", false)

	v.SetDefault("statement.enabled", true)
	v.SetDefault("statement.lab_name", "Dental Lab")
	v.SetDefault("statement.payment_due_day", 25)

	v.SetDefault("extraction.order", []string{"fitz", "pdf"})
	v.SetDefault("extraction.max_pages", 20)

	v.SetDefault("import.workers", 4)
	v.SetDefault("import.pages_timeout", 30*time.Second)

	v.SetDefault("inbox.enabled", false)
	v.SetDefault("inbox.dir", "inbox")
	v.SetDefault("inbox.debounce", 2*time.Second)

	v.SetDefault("review.enabled", false)
	v.SetDefault("review.model", "gpt-4o-mini")
	v.SetDefault("review.temperature", 0)
	v.SetDefault("review.max_tokens", 300)
	v.SetDefault("review.timeout", 60*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	_ = v.BindEnv("review.api_key", "OPENAI_API_KEY")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Output.BaseDir == "" {
		return fmt.Errorf("output.base_dir is required")
	}
	if c.Output.MonthOverride != "" {
		if _, err := time.Parse("2006-01", c.Output.MonthOverride); err != nil {
			return fmt.Errorf("output.month_override must be YYYY-MM: %q", c.Output.MonthOverride)
		}
	}
	if c.Statement.PaymentDueDay < 1 || c.Statement.PaymentDueDay > 28 {
		return fmt.Errorf("statement.payment_due_day must be between 1 and 28")
	}
	if c.Import.Workers < 1 {
		return fmt.Errorf("import.workers must be at least 1")
	}
	for _, name := range c.Extraction.Order {
		if name != "fitz" && name != "pdf" {
			return fmt.Errorf("extraction.order: unknown extractor %q", name)
		}
	}
	if len(c.Extraction.Order) == 0 {
		return fmt.Errorf("extraction.order must name at least one extractor")
	}
	if c.Review.Enabled && c.Review.APIKey == "" {
		return fmt.Errorf("review.api_key is required when review is enabled")
	}
	if c.Inbox.Enabled && c.Inbox.Dir == "" {
		return fmt.Errorf("inbox.dir is required when the inbox is enabled")
	}
	return nil
}
