// Package container wires the importer's components from configuration.
package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/labinvoice/internal/config"
	"github.com/garyjia/labinvoice/internal/convert"
	"github.com/garyjia/labinvoice/internal/extract"
	"github.com/garyjia/labinvoice/internal/importer"
	"github.com/garyjia/labinvoice/internal/repository"
	"github.com/garyjia/labinvoice/internal/review"
	"github.com/garyjia/labinvoice/internal/statement"
	"github.com/garyjia/labinvoice/internal/storage"
	"github.com/garyjia/labinvoice/internal/workbook"
	"github.com/garyjia/labinvoice/internal/worker"
	"github.com/garyjia/labinvoice/pkg/database"
)

// Container owns every long-lived component. Start initializes them in
// dependency order and Close tears them down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	db         *database.DB
	documents  *repository.DocumentRepository
	exceptions *repository.ExceptionRepository

	months  *storage.MonthStore
	uploads *storage.LocalFileStorage

	importer *importer.Service
	workers  *worker.Manager
	inbox    *worker.InboxWatcher

	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// New creates a container. It does not initialize components; call Start.
func New(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Container{config: cfg, logger: logger}, nil
}

// Start initializes, in order: the ledger database, month storage, the
// import pipeline, then the inbox watcher when enabled.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	if err := c.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized", zap.String("path", c.config.Database.Path))

	c.months = storage.NewMonthStore(c.config.Output.BaseDir, c.logger)
	c.uploads = storage.NewLocalFileStorage(c.config.Output.BaseDir, c.logger)

	if err := c.initImporter(); err != nil {
		return fmt.Errorf("failed to initialize importer: %w", err)
	}
	c.logger.Info("Importer initialized")

	c.workers = worker.NewManager(c.logger)
	if c.config.Inbox.Enabled {
		c.inbox = worker.NewInboxWatcher(c.config.Inbox.Dir, c.config.Inbox.Debounce, c.importer, c.logger)
		c.workers.Register(c.inbox)
	}
	if err := c.workers.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	c.ready.Store(true)
	c.logger.Info("Container started", zap.Int("workers", c.workers.Count()))
	return nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	db, err := database.New(database.Config{
		Path:            c.config.Database.Path,
		MaxOpenConns:    c.config.Database.MaxOpenConns,
		MaxIdleConns:    c.config.Database.MaxIdleConns,
		ConnMaxLifetime: c.config.Database.ConnMaxLifetime,
	}, c.logger)
	if err != nil {
		return err
	}
	if err := database.NewMigrator(db, c.logger).Migrate(ctx); err != nil {
		db.Close()
		return err
	}
	c.db = db
	c.documents = repository.NewDocumentRepository(db.DB, c.logger)
	c.exceptions = repository.NewExceptionRepository(db.DB, c.logger)
	return nil
}

func (c *Container) initImporter() error {
	cfg := c.config

	extractor, err := extract.New(cfg.Extraction.Order, cfg.Extraction.MaxPages, c.logger)
	if err != nil {
		return err
	}

	deps := importer.Dependencies{
		Months:     c.months,
		Converter:  convert.NewConverter(cfg.Import.PagesTimeout, c.logger),
		Extractor:  extractor,
		Store:      workbook.NewStore(c.months, cfg.Output.CSVMirror, c.logger),
		Ledger:     c.documents,
		Exceptions: c.exceptions,
		Tx:         c.db,
	}
	if cfg.Statement.Enabled {
		deps.Statements = statement.NewRenderer(statement.Letterhead{
			LabName:       cfg.Statement.LabName,
			AddressLine:   cfg.Statement.AddressLine,
			Phone:         cfg.Statement.Phone,
			PaymentDueDay: cfg.Statement.PaymentDueDay,
		}, c.logger)
	}
	if cfg.Review.Enabled {
		deps.Suggester = review.NewSuggester(review.Config{
			APIKey:      cfg.Review.APIKey,
			Model:       cfg.Review.Model,
			Temperature: cfg.Review.Temperature,
			MaxTokens:   cfg.Review.MaxTokens,
			Timeout:     cfg.Review.Timeout,
		}, c.logger)
	}

	c.importer = importer.NewService(deps, importer.Options{
		Workers:             cfg.Import.Workers,
		MonthOverride:       cfg.Output.MonthOverride,
		BlankMixedUnitPrice: cfg.Output.BlankMixedUnitPrice,
		ClientNameOverride:  cfg.Statement.ClientNameOverride,
	}, c.logger)
	return nil
}

// Close stops the workers and closes the database
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}
	c.closed.Store(true)
	c.ready.Store(false)

	if c.workers != nil {
		c.workers.StopAll()
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			return fmt.Errorf("close database: %w", err)
		}
	}
	c.logger.Info("Container closed")
	return nil
}

// Ready reports whether Start completed
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	if c.db == nil {
		status.Components["database"] = ComponentHealth{Message: "not initialized"}
		status.Overall = false
	} else if err := c.db.Ping(); err != nil {
		status.Components["database"] = ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)}
		status.Overall = false
	} else {
		status.Components["database"] = ComponentHealth{Healthy: true}
	}

	if c.inbox != nil {
		st := c.inbox.Status()
		h := ComponentHealth{
			Healthy: st.IsRunning,
			Message: fmt.Sprintf("processed: %d, review: %d", st.ProcessedCount, st.ReviewCount),
		}
		if st.LastError != nil {
			h.Message += ", last error: " + st.LastError.Error()
		}
		status.Components["inbox"] = h
		status.Overall = status.Overall && st.IsRunning
	}
	return status
}

// Importer returns the import service
func (c *Container) Importer() *importer.Service { return c.importer }

// Exceptions returns the review exception repository
func (c *Container) Exceptions() *repository.ExceptionRepository { return c.exceptions }

// Uploads returns the upload storage
func (c *Container) Uploads() *storage.LocalFileStorage { return c.uploads }

// Months returns the month folder layout
func (c *Container) Months() *storage.MonthStore { return c.months }
